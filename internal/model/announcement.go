package model

import (
	"slices"
	"strings"
	"time"
)

// DateLayout 公告表中日期的存储格式
const DateLayout = "2006-01-02"

// ImageSlots 每条公告固定的图片槽位数
const ImageSlots = 3

// 公告类型
const (
	TypeLost  = "lost"
	TypeFound = "found"
)

// FilterAll 筛选条件中表示不过滤的取值
const FilterAll = "All"

// Types 公告类型列表
var Types = []string{TypeLost, TypeFound}

// Categories 物品分类列表
var Categories = []string{
	"Pets",
	"Electronics",
	"Bags",
	"Jewelry",
	"Personal Items",
	"Others",
}

// Cities 城市/地区列表
var Cities = []string{
	"Kuwait City",
	"Salmiya",
	"Hawally",
	"Jahra",
	"Farwaniya",
	"Ahmadi",
	"Mubarak Al-Kabeer",
}

// Announcement 失物招领公告
type Announcement struct {
	ID             string             `json:"id"`
	Type           string             `json:"type"`
	Category       string             `json:"category"`
	City           string             `json:"city"`
	Description    string             `json:"description"`
	Images         [ImageSlots]string `json:"images"`
	Phone          string             `json:"phone"`
	PostedDate     time.Time          `json:"posted_date"`
	EventDate      time.Time          `json:"event_date"`
	DeletePassword string             `json:"-"`
	Resolved       bool               `json:"resolved"`

	// 无法解析的原始日期文本，保存时原样写回
	RawPostedDate string `json:"-"`
	RawEventDate  string `json:"-"`
}

// ImagePaths 返回非空的图片路径
func (a Announcement) ImagePaths() []string {
	paths := make([]string, 0, ImageSlots)
	for _, p := range a.Images {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// IsNew 判断公告是否在最近days天内发布，按整天计算
func (a Announcement) IsNew(now time.Time, days int) bool {
	if a.PostedDate.IsZero() {
		return false
	}
	elapsed := int(now.Sub(a.PostedDate) / (24 * time.Hour))
	return elapsed <= days
}

// FilterCriteria 公告筛选条件
type FilterCriteria struct {
	Type            string     `json:"type"`
	City            string     `json:"city"`
	Category        string     `json:"category"`
	IncludeResolved bool       `json:"include_resolved"`
	Keyword         string     `json:"keyword"`
	StartDate       *time.Time `json:"start_date,omitempty"`
	EndDate         *time.Time `json:"end_date,omitempty"`
}

// IsValidType 判断公告类型是否合法（不区分大小写）
func IsValidType(t string) bool {
	t = strings.ToLower(t)
	return t == TypeLost || t == TypeFound
}

// IsValidCategory 判断分类是否在固定列表中
func IsValidCategory(c string) bool {
	return slices.Contains(Categories, c)
}

// IsValidCity 判断城市是否在固定列表中
func IsValidCity(c string) bool {
	return slices.Contains(Cities, c)
}
