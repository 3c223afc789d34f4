package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"lostfound/internal/constants"
	"lostfound/internal/model"
	"lostfound/internal/storage"
	"lostfound/pkg/async"
	"lostfound/pkg/events"
	"lostfound/pkg/logger"
)

const cacheKeyPrefix = "announcements:"

// AnnouncementStore 公告表的读写
type AnnouncementStore interface {
	Load(ctx context.Context) ([]model.Announcement, error)
	Save(ctx context.Context, items []model.Announcement) error
}

// Options 公告服务的业务参数
type Options struct {
	CacheTTL            time.Duration
	NewBadgeDays        int
	HashDeletePasswords bool
	Now                 func() time.Time
}

// CreateAnnouncementInput 发布公告的表单输入；字段顺序即校验顺序
type CreateAnnouncementInput struct {
	Description    string    `json:"description" validate:"required"`
	Phone          string    `json:"phone" validate:"len=8,digits"`
	DeletePassword string    `json:"delete_password" validate:"required"`
	Type           string    `json:"type" validate:"announcement_type"`
	Category       string    `json:"category" validate:"category"`
	City           string    `json:"city" validate:"city"`
	EventDate      time.Time `json:"event_date"`
}

// AnnouncementEvent 公告变更事件
type AnnouncementEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Category  string    `json:"category"`
	City      string    `json:"city"`
	Resolved  bool      `json:"resolved"`
	Timestamp time.Time `json:"timestamp"`
}

// AnnouncementService 公告服务
type AnnouncementService struct {
	// 写操作从读表到清缓存全程持有写锁；列表和清理持有读锁，旧的查询结果不会在清缓存之后写回
	mu          sync.RWMutex
	repo        AnnouncementStore
	images      storage.ImageStore
	redisClient *redis.Client
	publisher   events.Publisher
	worker      *async.Worker
	logger      *logger.Logger
	validate    *validator.Validate
	opts        Options
}

// NewAnnouncementService 创建公告服务实例；redisClient、publisher、worker可以为nil
func NewAnnouncementService(
	repo AnnouncementStore,
	images storage.ImageStore,
	redisClient *redis.Client,
	publisher events.Publisher,
	worker *async.Worker,
	logger *logger.Logger,
	opts Options,
) *AnnouncementService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &AnnouncementService{
		repo:        repo,
		images:      images,
		redisClient: redisClient,
		publisher:   publisher,
		worker:      worker,
		logger:      logger,
		validate:    newValidator(),
		opts:        opts,
	}
}

// announcementValidations 发布表单使用的自定义校验
var announcementValidations = map[string]validator.Func{
	"digits": func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		for _, r := range s {
			if r < '0' || r > '9' {
				return false
			}
		}
		return s != ""
	},
	"announcement_type": func(fl validator.FieldLevel) bool {
		return model.IsValidType(fl.Field().String())
	},
	"category": func(fl validator.FieldLevel) bool {
		return model.IsValidCategory(fl.Field().String())
	},
	"city": func(fl validator.FieldLevel) bool {
		return model.IsValidCity(fl.Field().String())
	},
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	if err := registerValidations(v, announcementValidations); err != nil {
		panic(err)
	}
	return v
}

func registerValidations(v *validator.Validate, funcs map[string]validator.Func) error {
	for tag, fn := range funcs {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("register validation %q: %w", tag, err)
		}
	}
	return nil
}

// validationMessages 字段对应的提示信息
var validationMessages = map[string]string{
	"description":     constants.ErrDescriptionRequired,
	"phone":           constants.ErrPhoneInvalid,
	"delete_password": constants.ErrPasswordRequired,
	"type":            constants.ErrTypeInvalid,
	"category":        constants.ErrCategoryInvalid,
	"city":            constants.ErrCityInvalid,
}

// Validate 校验发布输入，返回第一个不合法字段的ValidationError
func (s *AnnouncementService) Validate(input CreateAnnouncementInput) error {
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	field := fieldErrs[0].Field()
	return &ValidationError{Field: field, Message: validationMessages[field]}
}

// List 按条件获取公告列表
func (s *AnnouncementService) List(ctx context.Context, criteria model.FilterCriteria) ([]model.Announcement, error) {
	cacheKey := ""
	if data, err := json.Marshal(criteria); err == nil {
		cacheKey = cacheKeyPrefix + "list:" + string(data)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var cached []model.Announcement
	if s.getCache(ctx, cacheKey, &cached) {
		return cached, nil
	}

	items, err := s.repo.Load(ctx)
	if err != nil {
		s.logger.Error("加载公告表失败", "error", err)
		return nil, err
	}

	result := FilterAnnouncements(items, criteria)
	s.setCache(ctx, cacheKey, result)
	return result, nil
}

// Recent 最近发布的n条公告
func (s *AnnouncementService) Recent(ctx context.Context, n int) ([]model.Announcement, error) {
	cacheKey := fmt.Sprintf("%srecent:%d", cacheKeyPrefix, n)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var cached []model.Announcement
	if s.getCache(ctx, cacheKey, &cached) {
		return cached, nil
	}

	items, err := s.repo.Load(ctx)
	if err != nil {
		s.logger.Error("加载公告表失败", "error", err)
		return nil, err
	}

	result := RecentAnnouncements(items, n)
	s.setCache(ctx, cacheKey, result)
	return result, nil
}

// Get 根据ID获取公告
func (s *AnnouncementService) Get(ctx context.Context, id string) (*model.Announcement, error) {
	items, err := s.repo.Load(ctx)
	if err != nil {
		s.logger.Error("加载公告表失败", "error", err)
		return nil, err
	}
	i := indexOf(items, id)
	if i < 0 {
		return nil, ErrNotFound
	}
	return &items[i], nil
}

// Create 发布公告；校验失败时不写入任何数据
func (s *AnnouncementService) Create(ctx context.Context, input CreateAnnouncementInput, files []storage.FileUpload) (*model.Announcement, error) {
	input.DeletePassword = strings.TrimSpace(input.DeletePassword)
	if strings.TrimSpace(input.Description) == "" {
		input.Description = ""
	}
	if err := s.Validate(input); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.repo.Load(ctx)
	if err != nil {
		s.logger.Error("加载公告表失败", "error", err)
		return nil, err
	}

	password := input.DeletePassword
	if s.opts.HashDeletePasswords {
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash delete password: %w", err)
		}
		password = string(hashed)
	}

	paths, err := s.images.Persist(ctx, files)
	if err != nil {
		s.logger.Error("保存公告图片失败", "error", err)
		return nil, err
	}

	today := s.today()
	eventDate := input.EventDate
	if eventDate.IsZero() {
		eventDate = today
	}

	announcement := model.Announcement{
		ID:             uuid.NewString(),
		Type:           strings.ToLower(input.Type),
		Category:       input.Category,
		City:           input.City,
		Description:    input.Description,
		Images:         paths,
		Phone:          input.Phone,
		PostedDate:     today,
		EventDate:      truncateDay(eventDate),
		DeletePassword: password,
		Resolved:       false,
	}

	if err := s.repo.Save(ctx, append(items, announcement)); err != nil {
		s.logger.Error("保存公告表失败", "error", err)
		if rmErr := s.images.Remove(context.Background(), announcement.ImagePaths()); rmErr != nil {
			s.logger.Warn("清理公告图片失败", "error", rmErr)
		}
		return nil, err
	}

	s.logger.Info("公告已发布", "id", announcement.ID, "type", announcement.Type, "city", announcement.City)
	s.afterMutation(ctx, events.AnnouncementCreated, announcement)
	return &announcement, nil
}

// SetResolved 标记公告为已解决或未解决
func (s *AnnouncementService) SetResolved(ctx context.Context, id string, resolved bool) (*model.Announcement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.repo.Load(ctx)
	if err != nil {
		s.logger.Error("加载公告表失败", "error", err)
		return nil, err
	}

	i := indexOf(items, id)
	if i < 0 {
		return nil, ErrNotFound
	}

	items[i].Resolved = resolved
	if err := s.repo.Save(ctx, items); err != nil {
		s.logger.Error("保存公告表失败", "id", id, "error", err)
		return nil, err
	}

	s.logger.Info("公告状态已更新", "id", id, "resolved", resolved)
	s.afterMutation(ctx, events.AnnouncementResolved, items[i])
	return &items[i], nil
}

// Delete 校验删除密码后删除公告，图片在后台清理
func (s *AnnouncementService) Delete(ctx context.Context, id, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.repo.Load(ctx)
	if err != nil {
		s.logger.Error("加载公告表失败", "error", err)
		return err
	}

	i := indexOf(items, id)
	if i < 0 {
		return ErrNotFound
	}
	removed := items[i]
	if !s.passwordMatches(removed.DeletePassword, password) {
		s.logger.Warn("删除密码错误", "id", id)
		return ErrUnauthorized
	}

	remaining := make([]model.Announcement, 0, len(items)-1)
	remaining = append(remaining, items[:i]...)
	remaining = append(remaining, items[i+1:]...)
	if err := s.repo.Save(ctx, remaining); err != nil {
		s.logger.Error("保存公告表失败", "id", id, "error", err)
		return err
	}

	s.logger.Info("公告已删除", "id", id)

	if paths := removed.ImagePaths(); len(paths) > 0 {
		s.runAsync("remove-images:"+id, func(ctx context.Context) error {
			return s.images.Remove(ctx, paths)
		})
	}
	s.afterMutation(ctx, events.AnnouncementDeleted, removed)
	return nil
}

// SweepOrphanImages 删除没有被任何公告引用、且保存时间早于minAge的图片，返回删除数量
func (s *AnnouncementService) SweepOrphanImages(ctx context.Context, minAge time.Duration) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items, err := s.repo.Load(ctx)
	if err != nil {
		return 0, err
	}
	referenced := make(map[string]bool, len(items)*model.ImageSlots)
	for _, a := range items {
		for _, p := range a.ImagePaths() {
			referenced[p] = true
		}
	}

	stored, err := s.images.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list images: %w", err)
	}

	cutoff := s.opts.Now().Add(-minAge)
	var orphans []string
	for _, p := range stored {
		if referenced[p] {
			continue
		}
		// 无法识别的文件不处理；太新的图片可能属于正在发布的公告
		ts, ok := storage.ImageTimestamp(p)
		if !ok || ts.After(cutoff) {
			continue
		}
		orphans = append(orphans, p)
	}
	if len(orphans) == 0 {
		return 0, nil
	}
	if err := s.images.Remove(ctx, orphans); err != nil {
		return 0, err
	}
	s.logger.Info("已清理孤立图片", "count", len(orphans))
	return len(orphans), nil
}

// IsNew 是否显示"新"标记
func (s *AnnouncementService) IsNew(a model.Announcement) bool {
	return a.IsNew(s.opts.Now(), s.opts.NewBadgeDays)
}

// ImageURL 图片访问地址
func (s *AnnouncementService) ImageURL(p string) string {
	return s.images.URL(p)
}

// InvalidateCache 使缓存失效
func (s *AnnouncementService) InvalidateCache(ctx context.Context) error {
	if s.redisClient == nil {
		return nil
	}
	iter := s.redisClient.Scan(ctx, 0, cacheKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.redisClient.Del(ctx, iter.Val()).Err(); err != nil {
			s.logger.Error("删除缓存失败", "key", iter.Val(), "error", err)
		}
	}
	return iter.Err()
}

func (s *AnnouncementService) afterMutation(ctx context.Context, routingKey string, a model.Announcement) {
	if err := s.InvalidateCache(ctx); err != nil {
		s.logger.Warn("清除公告缓存失败", "error", err)
	}

	event := AnnouncementEvent{
		ID:        a.ID,
		Type:      a.Type,
		Category:  a.Category,
		City:      a.City,
		Resolved:  a.Resolved,
		Timestamp: s.opts.Now(),
	}
	s.runAsync("publish:"+routingKey, func(ctx context.Context) error {
		return s.publisher.Publish(ctx, routingKey, event)
	})
}

// runAsync 交给工作器执行；没有工作器或工作器已停止时同步执行
func (s *AnnouncementService) runAsync(name string, fn func(ctx context.Context) error) {
	if s.worker != nil {
		if _, err := s.worker.AddTask(name, fn); err == nil {
			return
		}
	}
	if err := fn(context.Background()); err != nil {
		s.logger.Warn("后台任务失败", "name", name, "error", err)
	}
}

func (s *AnnouncementService) getCache(ctx context.Context, key string, dest interface{}) bool {
	if s.redisClient == nil || key == "" {
		return false
	}
	data, err := s.redisClient.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dest) == nil
}

func (s *AnnouncementService) setCache(ctx context.Context, key string, value interface{}) {
	if s.redisClient == nil || key == "" {
		return
	}
	if data, err := json.Marshal(value); err == nil {
		if err := s.redisClient.Set(ctx, key, data, s.opts.CacheTTL).Err(); err != nil {
			s.logger.Warn("写入公告缓存失败", "key", key, "error", err)
		}
	}
}

// passwordMatches 开启哈希时按bcrypt比较，旧的明文密码仍按原文比较
func (s *AnnouncementService) passwordMatches(stored, supplied string) bool {
	if s.opts.HashDeletePasswords && isBcryptHash(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(supplied)) == nil
	}
	return stored == supplied
}

func isBcryptHash(v string) bool {
	return len(v) == 60 && (strings.HasPrefix(v, "$2a$") || strings.HasPrefix(v, "$2b$") || strings.HasPrefix(v, "$2y$"))
}

func (s *AnnouncementService) today() time.Time {
	return truncateDay(s.opts.Now())
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

func indexOf(items []model.Announcement, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}
