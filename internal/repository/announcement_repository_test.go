package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lostfound/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

func sampleAnnouncements() []model.Announcement {
	return []model.Announcement{
		{
			ID:             "1",
			Type:           model.TypeLost,
			Category:       "Bags",
			City:           "Salmiya",
			Description:    "Black leather wallet, \"Gucci\", lost near the mall,\nreward offered",
			Images:         [model.ImageSlots]string{"announcement_images/a.png", "", ""},
			Phone:          "12345678",
			PostedDate:     date(2026, 10, 1),
			EventDate:      date(2026, 9, 30),
			DeletePassword: "secret",
			Resolved:       true,
		},
		{
			ID:             "2",
			Type:           model.TypeFound,
			Category:       "Pets",
			City:           "Jahra",
			Description:    "Grey cat",
			Phone:          "87654321",
			PostedDate:     date(2026, 10, 2),
			EventDate:      date(2026, 10, 2),
			DeletePassword: "pw",
		},
	}
}

func TestLoadMissingFileReturnsEmptyTable(t *testing.T) {
	repo := NewAnnouncementRepository(filepath.Join(t.TempDir(), "announcements.csv"))

	items, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	repo := NewAnnouncementRepository(filepath.Join(t.TempDir(), "announcements.csv"))
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sampleAnnouncements()))
	first, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleAnnouncements(), first)

	require.NoError(t, repo.Save(ctx, first))
	second, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSaveWritesFixedHeaderAndLiterals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "announcements.csv")
	repo := NewAnnouncementRepository(path)

	require.NoError(t, repo.Save(context.Background(), sampleAnnouncements()[1:]))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ID,Type,Category,City,Description,Image1,Image2,Image3,Phone,Date,EventDate,DeletePassword,Resolved", lines[0])
	assert.Equal(t, "2,found,Pets,Jahra,Grey cat,,,,87654321,2026-10-02,2026-10-02,pw,False", lines[1])
}

func TestLoadNormalizesLegacyRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "announcements.csv")
	legacy := "Type,ID,Description,Resolved,Date\n" +
		"Lost,7,old wallet,TRUE,2025-01-02\n" +
		"found,8,keys,maybe,2025-01-03 10:11:12\n" +
		"lost,9,umbrella,1\n" +
		"lost,10,phone,0,not-a-date\n"
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0644))

	items, err := NewAnnouncementRepository(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 4)

	assert.Equal(t, "7", items[0].ID)
	assert.Equal(t, model.TypeLost, items[0].Type)
	assert.True(t, items[0].Resolved)
	assert.Equal(t, date(2025, 1, 2), items[0].PostedDate)
	assert.Equal(t, "", items[0].Phone)
	assert.Equal(t, [model.ImageSlots]string{}, items[0].Images)

	assert.False(t, items[1].Resolved)
	assert.Equal(t, date(2025, 1, 3), items[1].PostedDate)

	assert.True(t, items[2].Resolved)
	assert.True(t, items[2].PostedDate.IsZero())

	assert.False(t, items[3].Resolved)
	assert.True(t, items[3].PostedDate.IsZero())
	assert.Equal(t, "not-a-date", items[3].RawPostedDate)
	assert.Empty(t, items[2].RawPostedDate)
}

func TestSaveKeepsUnparseableDates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "announcements.csv")
	legacy := "ID,Type,Description,Date,EventDate,Resolved\n" +
		"1,lost,wallet,last week,2025/01/02,False\n" +
		"2,found,keys,2025-01-03,,False\n"
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0644))

	repo := NewAnnouncementRepository(path)
	ctx := context.Background()
	items, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)

	// 修改其他行后整表重写
	items[1].Resolved = true
	require.NoError(t, repo.Save(ctx, items))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "1,lost,,,wallet,,,,,last week,2025/01/02,,False", lines[1])
	assert.Equal(t, "2,found,,,keys,,,,,2025-01-03,,,True", lines[2])

	reloaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, items, reloaded)
}

func TestLoadHeaderOnlyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "announcements.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(Columns, ",")+"\n"), 0644))

	items, err := NewAnnouncementRepository(path).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestLoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "announcements.csv")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	items, err := NewAnnouncementRepository(path).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestLoadUnreadableIsStorageError(t *testing.T) {
	// 路径是目录，无法作为文件读取
	dir := t.TempDir()
	_, err := NewAnnouncementRepository(dir).Load(context.Background())

	var storageErr *StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, dir, storageErr.Path)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	repo := NewAnnouncementRepository(filepath.Join(dir, "announcements.csv"))

	require.NoError(t, repo.Save(context.Background(), sampleAnnouncements()))
	require.NoError(t, repo.Save(context.Background(), nil))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "announcements.csv", entries[0].Name())
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := NewAnnouncementRepository(filepath.Join(t.TempDir(), "announcements.csv"))
	_, err := repo.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, repo.Save(ctx, nil), context.Canceled)
}

func TestParseResolved(t *testing.T) {
	for in, want := range map[string]bool{
		"True": true, "true": true, "1": true, " TRUE ": true,
		"False": false, "0": false, "": false, "yes": false, "nan": false,
	} {
		assert.Equal(t, want, ParseResolved(in), in)
	}
}
