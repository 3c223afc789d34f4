package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/rand"

	"lostfound/internal/model"
)

// MaxImages 每条公告最多保存的图片数
const MaxImages = model.ImageSlots

// timestampLayout 图片文件名中的时间戳格式
const timestampLayout = "20060102150405"

// FileUpload 上传的图片文件
type FileUpload struct {
	Name        string
	Reader      io.Reader
	Size        int64
	ContentType string
}

// ImageStore 公告图片存储
type ImageStore interface {
	// Persist 保存前三个图片，返回固定三个槽位的路径，未使用的槽位为空字符串
	Persist(ctx context.Context, files []FileUpload) ([MaxImages]string, error)
	// Remove 删除图片，不存在的图片忽略
	Remove(ctx context.Context, paths []string) error
	// List 列出已保存的全部图片路径
	List(ctx context.Context) ([]string, error)
	// URL 返回图片的访问地址
	URL(p string) string
}

// uploadsToPersist 取前三个上传项，跳过空项
func uploadsToPersist(files []FileUpload) []FileUpload {
	if len(files) > MaxImages {
		files = files[:MaxImages]
	}
	out := make([]FileUpload, 0, len(files))
	for _, f := range files {
		if f.Reader != nil {
			out = append(out, f)
		}
	}
	return out
}

// imageFileName 生成 {时间戳}_{随机串}_{原文件名}
func imageFileName(now time.Time, original string) string {
	return fmt.Sprintf("%s_%s_%s", now.Format(timestampLayout), rand.String(32), sanitizeName(original))
}

// sanitizeName 只保留原文件名的最后一段，去掉目录部分
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	if name == "." || name == "/" || name == ".." || name == "" {
		return "image"
	}
	return name
}

// ImageTimestamp 从图片文件名中解析保存时间
func ImageTimestamp(p string) (time.Time, bool) {
	name := path.Base(strings.ReplaceAll(p, "\\", "/"))
	if len(name) < len(timestampLayout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(timestampLayout, name[:len(timestampLayout)], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
