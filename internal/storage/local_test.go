package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fileNamePattern = regexp.MustCompile(`^\d{14}_[a-z0-9]{32}_(.+)$`)

func upload(name, body string) FileUpload {
	return FileUpload{Name: name, Reader: strings.NewReader(body), Size: int64(len(body))}
}

func newStore(t *testing.T) *LocalImageStore {
	t.Helper()
	s, err := NewLocalImageStore(filepath.Join(t.TempDir(), "announcement_images"), "/images")
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 10, 19, 8, 30, 5, 0, time.UTC) }
	return s
}

func TestPersistPadsToThreeSlots(t *testing.T) {
	s := newStore(t)

	paths, err := s.Persist(context.Background(), []FileUpload{upload("dog.png", "png-bytes")})
	require.NoError(t, err)

	require.NotEmpty(t, paths[0])
	assert.Empty(t, paths[1])
	assert.Empty(t, paths[2])

	assert.Equal(t, s.Dir(), filepath.Dir(paths[0]))
	m := fileNamePattern.FindStringSubmatch(filepath.Base(paths[0]))
	require.NotNil(t, m, filepath.Base(paths[0]))
	assert.True(t, strings.HasPrefix(filepath.Base(paths[0]), "20261019083005_"))
	assert.Equal(t, "dog.png", m[1])

	body, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(body))
}

func TestPersistIgnoresExtraFiles(t *testing.T) {
	s := newStore(t)

	paths, err := s.Persist(context.Background(), []FileUpload{
		upload("1.jpg", "a"), upload("2.jpg", "b"), upload("3.jpg", "c"), upload("4.jpg", "d"),
	})
	require.NoError(t, err)
	for _, p := range paths {
		assert.NotEmpty(t, p)
	}

	listed, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, listed, 3)
}

func TestPersistNoFiles(t *testing.T) {
	s := newStore(t)

	paths, err := s.Persist(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, [MaxImages]string{}, paths)
}

func TestPersistSameNameTwiceDoesNotCollide(t *testing.T) {
	s := newStore(t)

	paths, err := s.Persist(context.Background(), []FileUpload{upload("a.png", "1"), upload("a.png", "2")})
	require.NoError(t, err)
	assert.NotEqual(t, paths[0], paths[1])
}

func TestPersistStripsDirectories(t *testing.T) {
	s := newStore(t)

	paths, err := s.Persist(context.Background(), []FileUpload{upload("../../etc/passwd.png", "x"), upload(`C:\Users\me\cat.jpg`, "y")})
	require.NoError(t, err)
	assert.Equal(t, s.Dir(), filepath.Dir(paths[0]))
	assert.True(t, strings.HasSuffix(paths[0], "_passwd.png"))
	assert.True(t, strings.HasSuffix(paths[1], "_cat.jpg"))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestPersistRollsBackOnFailure(t *testing.T) {
	s := newStore(t)

	_, err := s.Persist(context.Background(), []FileUpload{upload("ok.png", "1"), {Name: "bad.png", Reader: failingReader{}}})
	require.Error(t, err)

	listed, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestRemove(t *testing.T) {
	s := newStore(t)

	paths, err := s.Persist(context.Background(), []FileUpload{upload("a.png", "1")})
	require.NoError(t, err)

	require.NoError(t, s.Remove(context.Background(), paths[:]))
	_, err = os.Stat(paths[0])
	assert.True(t, errors.Is(err, os.ErrNotExist))

	// 重复删除不报错
	assert.NoError(t, s.Remove(context.Background(), paths[:]))
	// 目录外的文件不删除
	assert.Error(t, s.Remove(context.Background(), []string{"/etc/hosts"}))
}

func TestURL(t *testing.T) {
	s := newStore(t)
	assert.Equal(t, "/images/x.png", s.URL(filepath.Join(s.Dir(), "x.png")))
	assert.Equal(t, "", s.URL(""))
}

func TestImageTimestamp(t *testing.T) {
	ts, ok := ImageTimestamp(filepath.Join("announcement_images", "20261019083005_abc_dog.png"))
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 10, 19, 8, 30, 5, 0, time.Local), ts)

	_, ok = ImageTimestamp("announcement_images/readme.txt")
	assert.False(t, ok)
}
