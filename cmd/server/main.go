package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"lostfound/config"
	"lostfound/internal/api"
	"lostfound/internal/repository"
	"lostfound/internal/scheduler"
	"lostfound/internal/service"
	"lostfound/internal/storage"
	"lostfound/pkg/async"
	"lostfound/pkg/database"
	"lostfound/pkg/events"
	"lostfound/pkg/logger"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 初始化日志
	logger := logger.NewLoggerWithConfig(cfg.LogLevel, cfg.LogFile)
	defer logger.Close()

	ctx := context.Background()

	// 图片存储
	var images storage.ImageStore
	switch cfg.Images.Backend {
	case "minio":
		images, err = storage.NewMinIOImageStore(ctx, cfg.Images.MinIO, filepath.Base(cfg.Images.Dir))
	default:
		images, err = storage.NewLocalImageStore(cfg.Images.Dir, api.ImagesURLPrefix)
	}
	if err != nil {
		logger.Fatal("初始化图片存储失败", "backend", cfg.Images.Backend, "error", err)
	}

	// Redis缓存（可选）
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = database.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal("无法链接到Redis", "error", err)
		}
		defer redisClient.Close()
	}

	// 事件发布（可选）
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.AMQP.Enabled {
		rabbit, err := events.NewRabbitMQPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
		if err != nil {
			logger.Fatal("无法链接到RabbitMQ", "error", err)
		}
		publisher = rabbit
	}
	defer publisher.Close()

	// 后台任务：图片清理、事件发布
	worker := async.NewWorker(100, logger)
	worker.Start(2)

	repo := repository.NewAnnouncementRepository(cfg.Storage.DataFile)
	announcementService := service.NewAnnouncementService(repo, images, redisClient, publisher, worker, logger, service.Options{
		CacheTTL:            time.Duration(cfg.Redis.CacheTTL) * time.Second,
		NewBadgeDays:        cfg.Board.NewBadgeDays,
		HashDeletePasswords: cfg.Board.HashDeletePasswords,
	})

	var sweepScheduler *scheduler.ImageSweepScheduler
	if cfg.Images.SweepInterval > 0 {
		sweepScheduler = scheduler.NewImageSweepScheduler(announcementService, time.Duration(cfg.Images.SweepInterval)*time.Minute, time.Hour, logger)
		sweepScheduler.Start()
	}

	router := api.SetupRouter(cfg, logger, announcementService, images)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.APIPort),
		Handler: router,
	}

	// 启动服务器（非阻塞）
	go func() {
		logger.Info("服务器启动", "port", cfg.APIPort, "data_file", cfg.Storage.DataFile)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("启动服务器失败", "error", err)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("正在关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("服务器被强制关闭", "error", err)
	}
	if sweepScheduler != nil {
		sweepScheduler.Stop()
	}
	worker.Stop()

	logger.Info("服务器已正常退出")
}
