package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// LocalImageStore 将图片保存到本地目录
type LocalImageStore struct {
	dir     string
	urlBase string
	now     func() time.Time
}

// NewLocalImageStore 创建本地图片存储，目录不存在时自动创建
func NewLocalImageStore(dir, urlBase string) (*LocalImageStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建图片目录失败: %w", err)
	}
	return &LocalImageStore{dir: dir, urlBase: urlBase, now: time.Now}, nil
}

// Dir 返回图片目录
func (s *LocalImageStore) Dir() string {
	return s.dir
}

// Persist 保存图片，任一图片写入失败时删除本次已写入的文件
func (s *LocalImageStore) Persist(ctx context.Context, files []FileUpload) ([MaxImages]string, error) {
	var paths [MaxImages]string

	written := make([]string, 0, MaxImages)
	for i, f := range uploadsToPersist(files) {
		if err := ctx.Err(); err != nil {
			s.Remove(context.Background(), written)
			return [MaxImages]string{}, err
		}

		p := filepath.Join(s.dir, imageFileName(s.now(), f.Name))
		if err := writeFile(p, f.Reader); err != nil {
			s.Remove(context.Background(), written)
			return [MaxImages]string{}, fmt.Errorf("保存图片 %s 失败: %w", f.Name, err)
		}
		written = append(written, p)
		paths[i] = p
	}
	return paths, nil
}

// Remove 删除图片文件；只删除图片目录内的文件
func (s *LocalImageStore) Remove(ctx context.Context, paths []string) error {
	var errs []error
	for _, p := range paths {
		if p == "" {
			continue
		}
		if filepath.Dir(filepath.Clean(p)) != filepath.Clean(s.dir) {
			errs = append(errs, fmt.Errorf("图片 %s 不在目录 %s 中", p, s.dir))
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// List 列出图片目录中的全部文件
func (s *LocalImageStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, e.Name()))
	}
	return paths, nil
}

// URL 返回静态文件路由下的访问地址
func (s *LocalImageStore) URL(p string) string {
	if p == "" {
		return ""
	}
	return s.urlBase + "/" + filepath.Base(p)
}

func writeFile(p string, r io.Reader) error {
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(p)
		return err
	}
	return f.Close()
}
