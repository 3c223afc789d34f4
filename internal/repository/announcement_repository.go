package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"lostfound/internal/model"
)

// 公告表的固定列
const (
	ColID             = "ID"
	ColType           = "Type"
	ColCategory       = "Category"
	ColCity           = "City"
	ColDescription    = "Description"
	ColImage1         = "Image1"
	ColImage2         = "Image2"
	ColImage3         = "Image3"
	ColPhone          = "Phone"
	ColDate           = "Date"
	ColEventDate      = "EventDate"
	ColDeletePassword = "DeletePassword"
	ColResolved       = "Resolved"
)

// Columns 公告表列顺序
var Columns = []string{
	ColID, ColType, ColCategory, ColCity, ColDescription,
	ColImage1, ColImage2, ColImage3, ColPhone, ColDate,
	ColEventDate, ColDeletePassword, ColResolved,
}

// StorageError 公告表读写失败
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// AnnouncementRepository 基于CSV文件的公告存储库
type AnnouncementRepository struct {
	path string
	mu   sync.Mutex
}

// NewAnnouncementRepository 创建公告存储库实例
func NewAnnouncementRepository(path string) *AnnouncementRepository {
	return &AnnouncementRepository{path: path}
}

// Path 返回公告表文件路径
func (r *AnnouncementRepository) Path() string {
	return r.path
}

// Load 读取全部公告；文件不存在时返回空表
func (r *AnnouncementRepository) Load(ctx context.Context) ([]model.Announcement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.Open(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []model.Announcement{}, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "open", Path: r.path, Err: err}
	}
	defer f.Close()

	items, err := decodeTable(f)
	if err != nil {
		return nil, &StorageError{Op: "read", Path: r.path, Err: err}
	}
	return items, nil
}

// Save 整表重写；先写临时文件再重命名，避免读到写了一半的文件
func (r *AnnouncementRepository) Save(ctx context.Context, items []model.Announcement) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &StorageError{Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return &StorageError{Op: "create", Path: r.path, Err: err}
	}
	tmpName := tmp.Name()

	if err := encodeTable(tmp, items); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &StorageError{Op: "write", Path: r.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &StorageError{Op: "close", Path: r.path, Err: err}
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return &StorageError{Op: "rename", Path: r.path, Err: err}
	}
	return nil
}

func decodeTable(rd io.Reader) ([]model.Announcement, error) {
	cr := csv.NewReader(rd)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return []model.Announcement{}, nil
	}
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}

	items := []model.Announcement{}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		// 缺失的列按空字符串处理
		get := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(record) {
				return ""
			}
			return record[i]
		}

		posted, rawPosted := parseDateField(get(ColDate))
		event, rawEvent := parseDateField(get(ColEventDate))
		items = append(items, model.Announcement{
			ID:             get(ColID),
			Type:           strings.ToLower(get(ColType)),
			Category:       get(ColCategory),
			City:           get(ColCity),
			Description:    get(ColDescription),
			Images:         [model.ImageSlots]string{get(ColImage1), get(ColImage2), get(ColImage3)},
			Phone:          get(ColPhone),
			PostedDate:     posted,
			EventDate:      event,
			DeletePassword: get(ColDeletePassword),
			Resolved:       ParseResolved(get(ColResolved)),
			RawPostedDate:  rawPosted,
			RawEventDate:   rawEvent,
		})
	}
	return items, nil
}

func encodeTable(w io.Writer, items []model.Announcement) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, a := range items {
		record := []string{
			a.ID,
			a.Type,
			a.Category,
			a.City,
			a.Description,
			a.Images[0],
			a.Images[1],
			a.Images[2],
			a.Phone,
			formatDateField(a.PostedDate, a.RawPostedDate),
			formatDateField(a.EventDate, a.RawEventDate),
			a.DeletePassword,
			FormatResolved(a.Resolved),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ParseResolved "true"/"1"（不区分大小写）为真，其余一律为假
func ParseResolved(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1":
		return true
	default:
		return false
	}
}

// FormatResolved 以True/False写入
func FormatResolved(v bool) string {
	if v {
		return "True"
	}
	return "False"
}

// ParseDate 解析YYYY-MM-DD，带时间部分的取日期部分；无法解析时返回零值
func ParseDate(v string) time.Time {
	v = strings.TrimSpace(v)
	if len(v) > len(model.DateLayout) {
		v = v[:len(model.DateLayout)]
	}
	t, err := time.ParseInLocation(model.DateLayout, v, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

// parseDateField 解析失败时同时返回原始文本
func parseDateField(v string) (time.Time, string) {
	t := ParseDate(v)
	if t.IsZero() && strings.TrimSpace(v) != "" {
		return t, v
	}
	return t, ""
}

func formatDateField(t time.Time, raw string) string {
	if t.IsZero() && raw != "" {
		return raw
	}
	return FormatDate(t)
}

// FormatDate 零值写为空字符串
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(model.DateLayout)
}
