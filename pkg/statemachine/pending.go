package statemachine

import (
	"context"
	"sync"
)

// Pending 异步转换返回的挂起操作句柄。
// OnSettle 注册的回调恰好触发一次，err 为 nil 表示成功；Abort 可重复调用。
type Pending interface {
	OnSettle(fn func(err error))
	Abort()
}

// Deferred 可手动完成的 Pending 实现
type Deferred struct {
	mu        sync.Mutex
	done      chan struct{}
	settled   bool
	err       error
	callbacks []func(error)
	onAbort   func()
}

// NewDeferred 创建未完成的 Deferred
func NewDeferred() *Deferred {
	return &Deferred{done: make(chan struct{})}
}

// Resolved 已成功完成的 Pending
func Resolved() *Deferred {
	d := NewDeferred()
	d.Resolve()
	return d
}

// Rejected 已失败的 Pending
func Rejected(err error) *Deferred {
	d := NewDeferred()
	d.Reject(err)
	return d
}

// Go 在新协程中执行 fn，fn 返回后完成。Abort 会取消传给 fn 的 ctx
func Go(ctx context.Context, fn func(ctx context.Context) error) *Deferred {
	runCtx, cancel := context.WithCancel(ctx)
	d := NewDeferred()
	d.onAbort = cancel

	go func() {
		defer cancel()
		err := fn(runCtx)
		d.settle(err)
	}()
	return d
}

// OnAbortFunc 设置中止时执行的清理函数，须在 Abort 之前调用
func (d *Deferred) OnAbortFunc(fn func()) *Deferred {
	d.mu.Lock()
	d.onAbort = fn
	d.mu.Unlock()
	return d
}

// Resolve 成功完成，已完成时无效
func (d *Deferred) Resolve() {
	d.settle(nil)
}

// Reject 以错误完成，已完成时无效
func (d *Deferred) Reject(err error) {
	if err == nil {
		err = ErrRejected
	}
	d.settle(err)
}

// Abort 以 ErrAborted 完成并执行中止清理。之后底层操作的结果被忽略
func (d *Deferred) Abort() {
	d.mu.Lock()
	abort := d.onAbort
	d.onAbort = nil
	d.mu.Unlock()

	d.settle(ErrAborted)
	if abort != nil {
		abort()
	}
}

// OnSettle 注册完成回调，已完成时立即在当前协程调用
func (d *Deferred) OnSettle(fn func(err error)) {
	d.mu.Lock()
	if d.settled {
		err := d.err
		d.mu.Unlock()
		fn(err)
		return
	}
	d.callbacks = append(d.callbacks, fn)
	d.mu.Unlock()
}

// Done 完成时关闭
func (d *Deferred) Done() <-chan struct{} {
	return d.done
}

// Err 完成结果，未完成时为 nil
func (d *Deferred) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Settled 是否已完成
func (d *Deferred) Settled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settled
}

func (d *Deferred) settle(err error) {
	d.mu.Lock()
	if d.settled {
		d.mu.Unlock()
		return
	}
	d.settled = true
	d.err = err
	callbacks := d.callbacks
	d.callbacks = nil
	d.mu.Unlock()

	close(d.done)
	for _, fn := range callbacks {
		fn(err)
	}
}
