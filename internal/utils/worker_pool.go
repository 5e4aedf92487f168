package utils

import (
	"sync"

	"go.uber.org/zap"
)

// WorkerPool 通用协程池，承接推送等非关键路径任务
type WorkerPool struct {
	jobQueue  chan func()
	workerNum int
	wg        sync.WaitGroup
	quit      chan struct{}
	logger    *zap.Logger
}

// NewWorkerPool 创建一个新的协程池
func NewWorkerPool(workerNum int, queueSize int, logger *zap.Logger) *WorkerPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerPool{
		jobQueue:  make(chan func(), queueSize),
		workerNum: workerNum,
		quit:      make(chan struct{}),
		logger:    logger,
	}
}

// Start 启动协程池
func (p *WorkerPool) Start() {
	for i := 0; i < p.workerNum; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			for {
				select {
				case job := <-p.jobQueue:
					// 使用 defer recover 防止单个任务 panic 导致 worker 挂掉
					func() {
						defer func() {
							if r := recover(); r != nil {
								p.logger.Error("worker panic", zap.Int("worker", workerID), zap.Any("panic", r))
							}
						}()
						job()
					}()
				case <-p.quit:
					return
				}
			}
		}(i)
	}
	p.logger.Info("worker pool started", zap.Int("workers", p.workerNum))
}

// Submit 提交任务到协程池
// 如果队列已满，此方法会阻塞，直到有空位
func (p *WorkerPool) Submit(job func()) {
	p.jobQueue <- job
}

// TrySubmit 非阻塞提交：队列满时直接丢弃并返回 false
// 推送等尽力而为的任务用这个入口，避免拖慢请求路径
func (p *WorkerPool) TrySubmit(job func()) bool {
	select {
	case p.jobQueue <- job:
		return true
	default:
		return false
	}
}

// Stop 停止协程池
func (p *WorkerPool) Stop() {
	close(p.quit)
	p.wg.Wait()
}
