package service

import (
	"sort"
	"strings"
	"time"

	"lostfound/internal/model"
)

// FilterAnnouncements 按条件筛选公告，结果按发布日期倒序，同一天的保持原有顺序
func FilterAnnouncements(items []model.Announcement, criteria model.FilterCriteria) []model.Announcement {
	keyword := strings.ToLower(criteria.Keyword)

	result := make([]model.Announcement, 0, len(items))
	for _, a := range items {
		if !isAll(criteria.Type) && !strings.EqualFold(a.Type, criteria.Type) {
			continue
		}
		if !isAll(criteria.City) && a.City != criteria.City {
			continue
		}
		if !isAll(criteria.Category) && a.Category != criteria.Category {
			continue
		}
		if !criteria.IncludeResolved && a.Resolved {
			continue
		}
		if keyword != "" && !strings.Contains(strings.ToLower(a.Description), keyword) {
			continue
		}
		if !inDateRange(a.EventDate, criteria.StartDate, criteria.EndDate) {
			continue
		}
		result = append(result, a)
	}

	sortByPostedDateDesc(result)
	return result
}

// RecentAnnouncements 最近发布的n条公告（含已解决）
func RecentAnnouncements(items []model.Announcement, n int) []model.Announcement {
	result := make([]model.Announcement, len(items))
	copy(result, items)
	sortByPostedDateDesc(result)
	if n >= 0 && len(result) > n {
		result = result[:n]
	}
	return result
}

func sortByPostedDateDesc(items []model.Announcement) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PostedDate.After(items[j].PostedDate)
	})
}

func isAll(v string) bool {
	return v == "" || strings.EqualFold(v, model.FilterAll)
}

// inDateRange 按日期比较，两端都包含；设置了边界时日期缺失的公告不匹配
func inDateRange(d time.Time, start, end *time.Time) bool {
	if start == nil && end == nil {
		return true
	}
	if d.IsZero() {
		return false
	}
	day := dateOnly(d)
	if start != nil && day.Before(dateOnly(*start)) {
		return false
	}
	if end != nil && day.After(dateOnly(*end)) {
		return false
	}
	return true
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
