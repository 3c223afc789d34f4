package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"lostfound/pkg/logger"
)

// ErrWorkerStopped 工作器已停止，不再接收任务
var ErrWorkerStopped = errors.New("async worker stopped")

// Task 表示一个异步任务
type Task struct {
	ID       string
	Name     string
	Handler  func(ctx context.Context) error
	Timeout  time.Duration
	RetryMax int
}

// Result 表示任务执行结果
type Result struct {
	TaskID    string
	Completed bool
	Error     error
	StartTime time.Time
	EndTime   time.Time
}

// Worker 异步任务处理器
type Worker struct {
	taskQueue chan Task
	results   map[string]Result
	mu        sync.RWMutex
	stopMu    sync.RWMutex
	stopped   bool
	seq       atomic.Uint64
	backoff   time.Duration
	logger    *logger.Logger
	wg        sync.WaitGroup
}

// NewWorker 创建一个新的工作器
func NewWorker(queueSize int, logger *logger.Logger) *Worker {
	return &Worker{
		taskQueue: make(chan Task, queueSize),
		results:   make(map[string]Result),
		backoff:   time.Second,
		logger:    logger,
	}
}

// Start 启动工作器
func (w *Worker) Start(numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		w.wg.Add(1)
		go w.processTask()
	}
}

// Stop 停止接收任务，并等待队列中的任务执行完
func (w *Worker) Stop() {
	w.stopMu.Lock()
	if w.stopped {
		w.stopMu.Unlock()
		return
	}
	w.stopped = true
	close(w.taskQueue)
	w.stopMu.Unlock()

	w.wg.Wait()
}

// Submit 将任务加入队列，返回任务ID
func (w *Worker) Submit(task Task) (string, error) {
	if task.ID == "" {
		task.ID = fmt.Sprintf("task_%d_%d", time.Now().UnixNano(), w.seq.Add(1))
	}

	w.stopMu.RLock()
	defer w.stopMu.RUnlock()
	if w.stopped {
		return "", ErrWorkerStopped
	}
	w.taskQueue <- task
	return task.ID, nil
}

// AddTask 以默认参数提交任务：超时30秒，失败重试2次
func (w *Worker) AddTask(name string, handler func(ctx context.Context) error) (string, error) {
	return w.Submit(Task{
		Name:     name,
		Handler:  handler,
		Timeout:  30 * time.Second,
		RetryMax: 2,
	})
}

// GetResult 获取任务结果
func (w *Worker) GetResult(taskID string) (Result, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	result, exists := w.results[taskID]
	return result, exists
}

// processTask 处理任务的工作循环
func (w *Worker) processTask() {
	defer w.wg.Done()

	for task := range w.taskQueue {
		w.executeTask(task)
	}
}

// executeTask 执行单个任务
func (w *Worker) executeTask(task Task) {
	result := Result{
		TaskID:    task.ID,
		StartTime: time.Now(),
	}

	w.logger.Debug("开始执行异步任务", "task_id", task.ID, "name", task.Name)

	ctx := context.Background()
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	var err error
	for attempt := 0; attempt <= task.RetryMax; attempt++ {
		if attempt > 0 {
			w.logger.Info("重试异步任务", "task_id", task.ID, "attempt", attempt)
			time.Sleep(w.backoff * time.Duration(attempt))
		}

		err = w.run(ctx, task)
		if err == nil {
			break
		}

		w.logger.Warn("异步任务执行失败", "task_id", task.ID, "name", task.Name, "attempt", attempt, "error", err)
	}

	result.EndTime = time.Now()
	result.Error = err
	result.Completed = err == nil

	w.mu.Lock()
	w.results[task.ID] = result
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("异步任务最终失败", "task_id", task.ID, "name", task.Name, "error", err)
	} else {
		w.logger.Debug("异步任务完成", "task_id", task.ID, "name", task.Name, "duration", result.EndTime.Sub(result.StartTime))
	}
}

// run 执行任务处理函数，panic转为错误
func (w *Worker) run(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task.Handler(ctx)
}
