package handler

import (
	"errors"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"lostfound/internal/constants"
	"lostfound/internal/model"
	"lostfound/internal/repository"
	"lostfound/internal/service"
	"lostfound/internal/storage"
	"lostfound/pkg/logger"

	"github.com/gin-gonic/gin"
)

// allowedImageExts 允许上传的图片扩展名
var allowedImageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// AnnouncementHandler 公告处理器
type AnnouncementHandler struct {
	announcementService *service.AnnouncementService
	recentLimit         int
	logger              *logger.Logger
}

// NewAnnouncementHandler 创建公告处理器实例
func NewAnnouncementHandler(announcementService *service.AnnouncementService, recentLimit int, logger *logger.Logger) *AnnouncementHandler {
	if recentLimit <= 0 {
		recentLimit = 6
	}
	return &AnnouncementHandler{
		announcementService: announcementService,
		recentLimit:         recentLimit,
		logger:              logger,
	}
}

// AnnouncementView 公告卡片
type AnnouncementView struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Category    string   `json:"category"`
	City        string   `json:"city"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
	Phone       string   `json:"phone"`
	PostedDate  string   `json:"posted_date"`
	EventDate   string   `json:"event_date"`
	Resolved    bool     `json:"resolved"`
	IsNew       bool     `json:"is_new"`
}

func (h *AnnouncementHandler) toView(a model.Announcement) AnnouncementView {
	images := make([]string, 0, model.ImageSlots)
	for _, p := range a.ImagePaths() {
		images = append(images, h.announcementService.ImageURL(p))
	}
	return AnnouncementView{
		ID:          a.ID,
		Type:        a.Type,
		Category:    a.Category,
		City:        a.City,
		Description: a.Description,
		Images:      images,
		Phone:       a.Phone,
		PostedDate:  repository.FormatDate(a.PostedDate),
		EventDate:   repository.FormatDate(a.EventDate),
		Resolved:    a.Resolved,
		IsNew:       h.announcementService.IsNew(a),
	}
}

func (h *AnnouncementHandler) toViews(items []model.Announcement) []AnnouncementView {
	views := make([]AnnouncementView, 0, len(items))
	for _, a := range items {
		views = append(views, h.toView(a))
	}
	return views
}

// GetAnnouncements 获取公告列表
// @Summary 获取公告列表
// @Description 按类型、城市、分类、关键字、日期范围筛选，按发布日期倒序
// @Tags 公告
// @Produce json
// @Param type query string false "All/lost/found"
// @Param city query string false "城市"
// @Param category query string false "分类"
// @Param include_resolved query bool false "是否包含已解决"
// @Param keyword query string false "关键字"
// @Param start_date query string false "YYYY-MM-DD"
// @Param end_date query string false "YYYY-MM-DD"
// @Success 200 {object} map[string]interface{} "成功"
// @Router /api/v1/announcements [get]
func (h *AnnouncementHandler) GetAnnouncements(c *gin.Context) {
	criteria := model.FilterCriteria{
		Type:     c.DefaultQuery("type", model.FilterAll),
		City:     c.DefaultQuery("city", model.FilterAll),
		Category: c.DefaultQuery("category", model.FilterAll),
		Keyword:  strings.TrimSpace(c.Query("keyword")),
	}

	var err error
	if criteria.IncludeResolved, err = strconv.ParseBool(c.DefaultQuery("include_resolved", "false")); err != nil {
		c.JSON(http.StatusOK, gin.H{"code": 400, "msg": constants.ErrInvalidParams})
		return
	}
	if criteria.StartDate, err = parseOptionalDate(c.Query("start_date")); err != nil {
		c.JSON(http.StatusOK, gin.H{"code": 400, "msg": constants.ErrInvalidDate})
		return
	}
	if criteria.EndDate, err = parseOptionalDate(c.Query("end_date")); err != nil {
		c.JSON(http.StatusOK, gin.H{"code": 400, "msg": constants.ErrInvalidDate})
		return
	}

	items, err := h.announcementService.List(c.Request.Context(), criteria)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"msg":  constants.SuccessGet,
		"data": gin.H{
			"total": len(items),
			"items": h.toViews(items),
		},
	})
}

// GetRecentAnnouncements 最近发布的公告
// @Summary 最近发布的公告
// @Tags 公告
// @Produce json
// @Success 200 {object} map[string]interface{} "成功"
// @Router /api/v1/announcements/recent [get]
func (h *AnnouncementHandler) GetRecentAnnouncements(c *gin.Context) {
	items, err := h.announcementService.Recent(c.Request.Context(), h.recentLimit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"msg":  constants.SuccessGet,
		"data": h.toViews(items),
	})
}

// GetAnnouncementByID 获取公告详情
// @Summary 获取公告详情
// @Tags 公告
// @Produce json
// @Param id path string true "公告ID"
// @Success 200 {object} map[string]interface{} "成功"
// @Router /api/v1/announcements/{id} [get]
func (h *AnnouncementHandler) GetAnnouncementByID(c *gin.Context) {
	announcement, err := h.announcementService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"msg":  constants.SuccessGet,
		"data": h.toView(*announcement),
	})
}

// CreateAnnouncementRequest 发布公告表单
type CreateAnnouncementRequest struct {
	Type           string `form:"type"`
	Category       string `form:"category"`
	City           string `form:"city"`
	Description    string `form:"description"`
	EventDate      string `form:"event_date"`
	Phone          string `form:"phone"`
	DeletePassword string `form:"delete_password"`
}

// CreateAnnouncement 发布公告
// @Summary 发布公告
// @Description multipart表单，images字段最多3张png/jpg/jpeg图片，多余的忽略
// @Tags 公告
// @Accept multipart/form-data
// @Produce json
// @Success 200 {object} map[string]interface{} "成功"
// @Router /api/v1/announcements [post]
func (h *AnnouncementHandler) CreateAnnouncement(c *gin.Context) {
	var req CreateAnnouncementRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.Warn("发布公告参数绑定失败", "error", err)
		c.JSON(http.StatusOK, gin.H{"code": 400, "msg": constants.ErrInvalidRequest})
		return
	}

	eventDate, err := parseOptionalDate(req.EventDate)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"code": 400, "msg": constants.ErrInvalidDate})
		return
	}

	var headers []*multipart.FileHeader
	if form, err := c.MultipartForm(); err == nil && form.File != nil {
		headers = form.File["images"]
	}
	if len(headers) > storage.MaxImages {
		headers = headers[:storage.MaxImages]
	}

	files := make([]storage.FileUpload, 0, len(headers))
	for _, fh := range headers {
		if !allowedImageExts[strings.ToLower(filepath.Ext(fh.Filename))] {
			c.JSON(http.StatusOK, gin.H{"code": 400, "msg": constants.ErrImageType})
			return
		}
		f, err := fh.Open()
		if err != nil {
			h.logger.Error("读取上传图片失败", "filename", fh.Filename, "error", err)
			c.JSON(http.StatusOK, gin.H{"code": 400, "msg": constants.ErrInvalidRequest})
			return
		}
		defer f.Close()
		files = append(files, storage.FileUpload{
			Name:        fh.Filename,
			Reader:      f,
			Size:        fh.Size,
			ContentType: fh.Header.Get("Content-Type"),
		})
	}

	input := service.CreateAnnouncementInput{
		Description:    req.Description,
		Phone:          strings.TrimSpace(req.Phone),
		DeletePassword: req.DeletePassword,
		Type:           req.Type,
		Category:       req.Category,
		City:           req.City,
	}
	if eventDate != nil {
		input.EventDate = *eventDate
	}

	announcement, err := h.announcementService.Create(c.Request.Context(), input, files)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"msg":  constants.SuccessCreate,
		"data": h.toView(*announcement),
	})
}

// ResolveAnnouncementRequest 标记解决状态请求
type ResolveAnnouncementRequest struct {
	Resolved *bool `json:"resolved" binding:"required"`
}

// ResolveAnnouncement 标记公告为已解决/未解决
// @Summary 标记公告解决状态
// @Tags 公告
// @Accept json
// @Produce json
// @Param id path string true "公告ID"
// @Param body body ResolveAnnouncementRequest true "解决状态"
// @Success 200 {object} map[string]interface{} "成功"
// @Router /api/v1/announcements/{id}/resolve [post]
func (h *AnnouncementHandler) ResolveAnnouncement(c *gin.Context) {
	var req ResolveAnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, gin.H{"code": 400, "msg": constants.ErrInvalidParams})
		return
	}

	announcement, err := h.announcementService.SetResolved(c.Request.Context(), c.Param("id"), *req.Resolved)
	if err != nil {
		h.respondError(c, err)
		return
	}

	msg := constants.SuccessUnresolved
	if announcement.Resolved {
		msg = constants.SuccessResolved
	}
	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"msg":  msg,
		"data": h.toView(*announcement),
	})
}

// DeleteAnnouncementRequest 删除公告请求
type DeleteAnnouncementRequest struct {
	ID       string `json:"id" binding:"required"`
	Password string `json:"password"`
}

// DeleteAnnouncement 凭删除密码删除公告
// @Summary 删除公告
// @Tags 公告
// @Accept json
// @Produce json
// @Param body body DeleteAnnouncementRequest true "公告ID和删除密码"
// @Success 200 {object} map[string]interface{} "成功"
// @Router /api/v1/announcements/delete [post]
func (h *AnnouncementHandler) DeleteAnnouncement(c *gin.Context) {
	var req DeleteAnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, gin.H{"code": 400, "msg": constants.ErrInvalidParams})
		return
	}

	if err := h.announcementService.Delete(c.Request.Context(), req.ID, req.Password); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"msg":  constants.SuccessDelete,
	})
}

// GetOptions 表单可选项
// @Summary 类型、分类、城市的可选值
// @Tags 公告
// @Produce json
// @Success 200 {object} map[string]interface{} "成功"
// @Router /api/v1/options [get]
func (h *AnnouncementHandler) GetOptions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"msg":  constants.SuccessGet,
		"data": gin.H{
			"types":      model.Types,
			"categories": model.Categories,
			"cities":     model.Cities,
		},
	})
}

// respondError 将服务层错误转换为响应码
func (h *AnnouncementHandler) respondError(c *gin.Context, err error) {
	var validationErr *service.ValidationError
	var storageErr *repository.StorageError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusOK, gin.H{"code": 400, "msg": validationErr.Message, "field": validationErr.Field})
	case errors.Is(err, service.ErrUnauthorized):
		c.JSON(http.StatusOK, gin.H{"code": 403, "msg": constants.ErrIncorrectPassword})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusOK, gin.H{"code": 404, "msg": constants.ErrAnnouncementNotFound})
	case errors.As(err, &storageErr):
		h.logger.Error("公告表读写失败", "error", err)
		c.JSON(http.StatusOK, gin.H{"code": 500, "msg": constants.ErrStorage})
	default:
		h.logger.Error("处理公告请求失败", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusOK, gin.H{"code": 500, "msg": constants.ErrInternalServer})
	}
}

func parseOptionalDate(v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(model.DateLayout, v, time.Local)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
