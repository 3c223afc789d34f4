package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"lostfound/config"
)

// MinIOImageStore 将图片保存到MinIO对象存储
type MinIOImageStore struct {
	client     *minio.Client
	bucketName string
	prefix     string
	publicBase string
	now        func() time.Time
}

// NewMinIOImageStore 创建MinIO图片存储，桶不存在时自动创建
func NewMinIOImageStore(ctx context.Context, cfg config.MinIOConfig, prefix string) (*MinIOImageStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
	}

	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}

	return &MinIOImageStore{
		client:     client,
		bucketName: cfg.Bucket,
		prefix:     strings.Trim(prefix, "/"),
		publicBase: fmt.Sprintf("%s://%s/%s", scheme, strings.TrimSuffix(cfg.Endpoint, "/"), cfg.Bucket),
		now:        time.Now,
	}, nil
}

// Persist 上传图片，任一图片失败时删除本次已上传的对象
func (s *MinIOImageStore) Persist(ctx context.Context, files []FileUpload) ([MaxImages]string, error) {
	var keys [MaxImages]string

	uploaded := make([]string, 0, MaxImages)
	for i, f := range uploadsToPersist(files) {
		key := s.prefix + "/" + imageFileName(s.now(), f.Name)
		size := f.Size
		if size <= 0 {
			size = -1
		}
		_, err := s.client.PutObject(ctx, s.bucketName, key, f.Reader, size, minio.PutObjectOptions{
			ContentType: f.ContentType,
		})
		if err != nil {
			s.Remove(context.Background(), uploaded)
			return [MaxImages]string{}, fmt.Errorf("failed to upload image %s: %w", f.Name, err)
		}
		uploaded = append(uploaded, key)
		keys[i] = key
	}
	return keys, nil
}

// Remove 删除对象
func (s *MinIOImageStore) Remove(ctx context.Context, keys []string) error {
	var errs []error
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// List 列出前缀下的全部对象
func (s *MinIOImageStore) List(ctx context.Context) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{Prefix: s.prefix + "/", Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// URL 返回对象的公开地址
func (s *MinIOImageStore) URL(key string) string {
	if key == "" {
		return ""
	}
	return s.publicBase + "/" + key
}
