package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task 脱离关键路径执行的任务
type Task func(ctx context.Context) error

// ErrorSink 接收任务失败或 panic
type ErrorSink func(name string, err error)

type namedTask struct {
	name string
	run  Task
}

// WorkerPool 协程池
//
// 用于执行不阻塞调用方的任务（例如开通通知）。任务使用独立于提交方的 context，
// 失败和 panic 统一交给 ErrorSink，不会影响提交方。
type WorkerPool struct {
	maxWorkers  int
	taskQueue   chan namedTask
	taskTimeout time.Duration
	sink        ErrorSink
	logger      *zap.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	workers sync.WaitGroup

	mu      sync.Mutex
	stopped bool
	pending int
	idle    chan struct{} // pending 降为 0 时关闭
}

// Options 协程池配置
type Options struct {
	MaxWorkers  int           // 最大协程数
	QueueSize   int           // 任务队列大小
	TaskTimeout time.Duration // 单个任务超时，0 表示不限制
}

// NewWorkerPool 创建协程池
//
// 参数:
//   - opts: 协程数、队列大小和任务超时
//   - sink: 错误接收器，可以为 nil
//   - logger: 日志记录器
func NewWorkerPool(opts Options, sink ErrorSink, logger *zap.Logger) *WorkerPool {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 2
	}
	if opts.QueueSize < 0 {
		opts.QueueSize = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	return &WorkerPool{
		idle:        idle,
		maxWorkers:  opts.MaxWorkers,
		taskQueue:   make(chan namedTask, opts.QueueSize),
		taskTimeout: opts.TaskTimeout,
		sink:        sink,
		logger:      logger,
		baseCtx:     ctx,
		cancel:      cancel,
	}
}

// Start 启动协程池
func (p *WorkerPool) Start() {
	for i := 0; i < p.maxWorkers; i++ {
		p.workers.Add(1)
		go p.worker()
	}
}

// Go 提交脱离关键路径的任务，从不阻塞
//
// 队列已满时任务在单独的协程中执行。协程池已停止时任务被丢弃并报告给 ErrorSink。
func (p *WorkerPool) Go(name string, task Task) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		p.report(name, fmt.Errorf("pool stopped, task dropped"))
		return
	}
	if p.pending == 0 {
		p.idle = make(chan struct{})
	}
	p.pending++
	t := namedTask{name: name, run: task}
	select {
	case p.taskQueue <- t:
		p.mu.Unlock()
	default:
		p.mu.Unlock()
		p.logger.Debug("task queue full, running task on its own goroutine", zap.String("task", name))
		go p.execute(t)
	}
}

// Wait 等待没有未完成的任务
//
// 可以与 Go 并发调用。超时返回 false。
func (p *WorkerPool) Wait(timeout time.Duration) bool {
	p.mu.Lock()
	idle := p.idle
	p.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-idle:
		return true
	case <-timer.C:
		return false
	}
}

// done 标记一个任务结束
func (p *WorkerPool) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending--
	if p.pending == 0 {
		close(p.idle)
	}
}

// Stop 停止协程池
//
// 等待最多 timeout 让已提交的任务完成，之后取消仍在运行的任务。
func (p *WorkerPool) Stop(timeout time.Duration) bool {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return true
	}
	p.stopped = true
	p.mu.Unlock()

	drained := p.Wait(timeout)
	if !drained {
		p.logger.Warn("detached tasks still running at shutdown, cancelling")
	}
	p.cancel()
	close(p.taskQueue)
	p.workers.Wait()
	return drained
}

// worker 工作协程
func (p *WorkerPool) worker() {
	defer p.workers.Done()

	for t := range p.taskQueue {
		p.execute(t)
	}
}

// execute 执行任务（捕获 panic）
func (p *WorkerPool) execute(t namedTask) {
	defer p.done()
	defer func() {
		if r := recover(); r != nil {
			p.report(t.name, fmt.Errorf("panic: %v", r))
		}
	}()

	ctx := p.baseCtx
	if p.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.taskTimeout)
		defer cancel()
	}

	if err := t.run(ctx); err != nil {
		p.report(t.name, err)
	}
}

func (p *WorkerPool) report(name string, err error) {
	p.logger.Error("detached task failed", zap.String("task", name), zap.Error(err))
	if p.sink != nil {
		p.sink(name, err)
	}
}
