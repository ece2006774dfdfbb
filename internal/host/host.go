// Package host 服务进程运行时：按顺序启动组件，收到信号或组件出错时逆序停止
package host

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/junbin-yang/go-fsmkit/pkg/logger"
)

var (
	// ErrComponentExists 组件名重复
	ErrComponentExists = errors.New("host: component already exists")

	// ErrShutdownTimeout 组件未在超时内退出
	ErrShutdownTimeout = errors.New("host: shutdown timeout")

	// ErrAlreadyRunning Run 只能调用一次
	ErrAlreadyRunning = errors.New("host: already running")
)

// RunFunc 组件主循环，ctx 取消时应返回
type RunFunc func(ctx context.Context) error

// StopFunc 组件停止函数，在 ctx 超时前完成
type StopFunc func(ctx context.Context) error

// HookFunc 启动/退出钩子
type HookFunc func(ctx context.Context) error

// ExitFunc 组件退出通知
type ExitFunc func(name string, err error)

type component struct {
	name string
	run  RunFunc
	stop StopFunc
}

// Host 组件运行时
type Host struct {
	mu         sync.Mutex
	components []*component
	onStartup  []HookFunc
	onShutdown []HookFunc
	onTimeout  []HookFunc
	onExit     []ExitFunc

	signals         []os.Signal
	shutdownTimeout time.Duration
	log             logger.Logger

	running  bool
	wg       sync.WaitGroup
	errCh    chan error
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New 默认监听 SIGINT/SIGTERM，退出超时 30s
func New(opts ...Option) *Host {
	h := &Host{
		signals:         []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		shutdownTimeout: 30 * time.Second,
		log:             logger.Default(),
		errCh:           make(chan error, 1),
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Add 登记组件，须在 Run 之前调用。stop 可为 nil
func (h *Host) Add(name string, run RunFunc, stop StopFunc) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return ErrAlreadyRunning
	}
	for _, c := range h.components {
		if c.name == name {
			return ErrComponentExists
		}
	}
	h.components = append(h.components, &component{name: name, run: run, stop: stop})
	return nil
}

// OnStartup 启动钩子，任一失败则不启动组件
func (h *Host) OnStartup(fn HookFunc) {
	h.mu.Lock()
	h.onStartup = append(h.onStartup, fn)
	h.mu.Unlock()
}

// OnShutdown 所有组件退出后调用
func (h *Host) OnShutdown(fn HookFunc) {
	h.mu.Lock()
	h.onShutdown = append(h.onShutdown, fn)
	h.mu.Unlock()
}

// OnTimeout 退出超时时调用
func (h *Host) OnTimeout(fn HookFunc) {
	h.mu.Lock()
	h.onTimeout = append(h.onTimeout, fn)
	h.mu.Unlock()
}

// OnExit 组件退出时调用
func (h *Host) OnExit(fn ExitFunc) {
	h.mu.Lock()
	h.onExit = append(h.onExit, fn)
	h.mu.Unlock()
}

// Stop 请求退出，可重复调用
func (h *Host) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

// Run 启动全部组件并阻塞，直到收到信号、ctx 取消、Stop 被调用或某个组件出错。
// 组件出错时返回该错误，否则返回退出流程的结果
func (h *Host) Run(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrAlreadyRunning
	}
	h.running = true
	components := append([]*component(nil), h.components...)
	startup := append([]HookFunc(nil), h.onStartup...)
	h.mu.Unlock()

	for _, fn := range startup {
		if err := fn(ctx); err != nil {
			return err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	for _, c := range components {
		h.start(runCtx, c)
	}
	h.log.Info("host started", logger.Int("components", len(components)))

	sigCh := make(chan os.Signal, 1)
	if len(h.signals) > 0 {
		signal.Notify(sigCh, h.signals...)
		defer signal.Stop(sigCh)
	}

	var runErr error
	select {
	case sig := <-sigCh:
		h.log.Info("signal received", logger.String("signal", sig.String()))
	case runErr = <-h.errCh:
		h.log.Error("component failed", logger.Err(runErr))
	case <-ctx.Done():
	case <-h.stopCh:
	}

	cancel()
	if err := h.shutdown(components); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (h *Host) start(ctx context.Context, c *component) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		err := c.run(ctx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}

		h.mu.Lock()
		exits := append([]ExitFunc(nil), h.onExit...)
		h.mu.Unlock()
		for _, fn := range exits {
			fn(c.name, err)
		}

		if err != nil {
			select {
			case h.errCh <- err:
			default:
			}
		}
	}()
}

// shutdown 逆序调用停止函数并等待组件退出
func (h *Host) shutdown(components []*component) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()

	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		if c.stop == nil {
			continue
		}
		if err := c.stop(ctx); err != nil {
			h.log.Warn("component stop failed", logger.String("component", c.name), logger.Err(err))
		}
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	h.mu.Lock()
	timeoutHooks := append([]HookFunc(nil), h.onTimeout...)
	shutdownHooks := append([]HookFunc(nil), h.onShutdown...)
	h.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		for _, fn := range timeoutHooks {
			_ = fn(ctx)
		}
		return ErrShutdownTimeout
	}

	for _, fn := range shutdownHooks {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	h.log.Info("host stopped")
	return nil
}
