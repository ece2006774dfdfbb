package statemachine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Executor 有界协程池，用于承载异步转换体
type Executor struct {
	mu      sync.RWMutex
	queue   chan *job
	closed  atomic.Bool
	running atomic.Int32
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	workers      int
	queueSize    int
	jobTimeout   time.Duration
	panicHandler func(r interface{})
}

type job struct {
	ctx      context.Context
	cancel   context.CancelFunc
	fn       func(ctx context.Context) error
	deferred *Deferred
}

// ExecutorOption 执行器配置选项
type ExecutorOption func(*Executor)

// WithWorkers 设置工作协程数
func WithWorkers(n int) ExecutorOption {
	return func(e *Executor) {
		e.workers = n
	}
}

// WithQueueSize 设置队列大小
func WithQueueSize(size int) ExecutorOption {
	return func(e *Executor) {
		e.queueSize = size
	}
}

// WithJobTimeout 设置单个任务超时，0 表示不限
func WithJobTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.jobTimeout = d
	}
}

// WithPanicHandler 设置panic处理函数
func WithPanicHandler(fn func(r interface{})) ExecutorOption {
	return func(e *Executor) {
		e.panicHandler = fn
	}
}

// NewExecutor 创建并启动执行器
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		workers:   4,
		queueSize: 64,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers <= 0 {
		e.workers = 1
	}
	if e.queueSize < 0 {
		e.queueSize = 0
	}

	e.queue = make(chan *job, e.queueSize)
	e.ctx, e.cancel = context.WithCancel(context.Background())

	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.work()
	}
	return e
}

// Submit 提交任务，返回的 Pending 在任务结束时完成；Abort 会取消任务的 ctx。
// 队列满或已关闭时返回已失败的 Pending
func (e *Executor) Submit(ctx context.Context, fn func(ctx context.Context) error) Pending {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed.Load() {
		return Rejected(ErrExecutorClosed)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	j := &job{
		ctx:      jobCtx,
		cancel:   cancel,
		fn:       fn,
		deferred: NewDeferred().OnAbortFunc(cancel),
	}

	select {
	case e.queue <- j:
		return j.deferred
	default:
		cancel()
		return Rejected(ErrQueueFull)
	}
}

// Async 把普通函数包装为在执行器中运行的 AsyncFunc
func (e *Executor) Async(fn func(ctx context.Context, args ...any) error) AsyncFunc {
	return func(ctx context.Context, args ...any) Pending {
		return e.Submit(ctx, func(ctx context.Context) error {
			return fn(ctx, args...)
		})
	}
}

// Running 正在执行的任务数
func (e *Executor) Running() int {
	return int(e.running.Load())
}

// QueueLength 排队中的任务数
func (e *Executor) QueueLength() int {
	return len(e.queue)
}

// Close 停止接收任务并等待队列排空；ctx 到期时取消剩余任务并立即返回
func (e *Executor) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed.CompareAndSwap(false, true) {
		e.mu.Unlock()
		return nil
	}
	close(e.queue)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		// 剩余任务的 ctx 被取消，忽略 ctx 的任务在后台结束
		e.cancel()
		return ctx.Err()
	}
}

func (e *Executor) work() {
	defer e.wg.Done()
	for j := range e.queue {
		e.execute(j)
	}
}

// execute 执行单个任务，已被中止的任务直接跳过
func (e *Executor) execute(j *job) {
	defer j.cancel()
	if e.ctx.Err() != nil {
		j.deferred.Reject(ErrExecutorClosed)
		return
	}
	if j.ctx.Err() != nil {
		j.deferred.Reject(j.ctx.Err())
		return
	}

	e.running.Add(1)
	defer e.running.Add(-1)

	stop := context.AfterFunc(e.ctx, j.cancel)
	defer stop()

	runCtx := j.ctx
	if e.jobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, e.jobTimeout)
		defer cancel()
	}

	j.deferred.settle(e.safeRun(runCtx, j.fn))
}

func (e *Executor) safeRun(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
			if e.panicHandler != nil {
				e.panicHandler(r)
			}
		}
	}()
	return fn(ctx)
}
