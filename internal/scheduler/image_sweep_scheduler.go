package scheduler

import (
	"context"
	"sync"
	"time"

	"lostfound/pkg/logger"
)

// ImageSweeper 清理孤立图片
type ImageSweeper interface {
	SweepOrphanImages(ctx context.Context, minAge time.Duration) (int, error)
}

// ImageSweepScheduler 定时清理没有被公告引用的图片
type ImageSweepScheduler struct {
	sweeper  ImageSweeper
	interval time.Duration
	minAge   time.Duration
	logger   *logger.Logger
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewImageSweepScheduler 创建图片清理调度器；minAge以内保存的图片不清理
func NewImageSweepScheduler(sweeper ImageSweeper, interval, minAge time.Duration, logger *logger.Logger) *ImageSweepScheduler {
	return &ImageSweepScheduler{
		sweeper:  sweeper,
		interval: interval,
		minAge:   minAge,
		logger:   logger,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start 启动图片清理调度器
func (s *ImageSweepScheduler) Start() {
	go s.run()
	s.logger.Info("图片清理调度器启动", "interval", s.interval)
}

// Stop 停止调度器并等待当前清理结束
func (s *ImageSweepScheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		<-s.done
		s.logger.Info("图片清理调度器停止")
	})
}

func (s *ImageSweepScheduler) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.quit:
			return
		}
	}
}

// sweep 执行一次清理
func (s *ImageSweepScheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	count, err := s.sweeper.SweepOrphanImages(ctx, s.minAge)
	if err != nil {
		s.logger.Error("孤立图片清理失败", "error", err)
		return
	}
	s.logger.Debug("孤立图片清理完成", "removed", count)
}
