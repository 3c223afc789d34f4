package api

import (
	"lostfound/config"
	"lostfound/internal/api/apis"
	"lostfound/internal/api/handler"
	"lostfound/internal/middleware"
	"lostfound/internal/service"
	"lostfound/internal/storage"
	"lostfound/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ImagesURLPrefix 本地图片的静态访问路径
const ImagesURLPrefix = "/images"

// maxRequestBody 单次请求体上限（3张图片加表单）
const maxRequestBody = 32 << 20

// SetupRouter 设置API路由
func SetupRouter(cfg *config.Config, logger *logger.Logger, announcementService *service.AnnouncementService, images storage.ImageStore) *gin.Engine {
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.MaxMultipartMemory = 8 << 20

	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS())
	router.Use(middleware.BodyLimit(maxRequestBody))

	announcementHandler := handler.NewAnnouncementHandler(announcementService, cfg.Board.RecentLimit, logger)

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// 本地存储的图片直接由静态路由提供
	if local, ok := images.(*storage.LocalImageStore); ok {
		router.Static(ImagesURLPrefix, local.Dir())
	}

	v1 := router.Group("/api/v1")
	apis.RegisterRoutes(v1, announcementHandler)

	return router
}
