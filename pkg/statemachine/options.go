package statemachine

import (
	"github.com/junbin-yang/go-fsmkit/pkg/logger"
)

// Option 状态机构造选项
type Option func(*Machine)

// ErrorHandler 接收没有调用方可返回的错误（异步完成阶段）
type ErrorHandler func(transition string, err error)

// WithLogger 设置日志器，默认使用 logger.Default()
func WithLogger(l logger.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.log = l
		}
	}
}

// WithErrorHandler 设置异步错误回调
func WithErrorHandler(fn ErrorHandler) Option {
	return func(m *Machine) {
		m.onError = fn
	}
}

// WithObserver 追加转换事件观察者
func WithObserver(o Observer) Option {
	return func(m *Machine) {
		if o != nil {
			m.observers = append(m.observers, o)
		}
	}
}

// WithCollisionPolicy 设置转换表冲突策略
func WithCollisionPolicy(p CollisionPolicy) Option {
	return func(m *Machine) {
		m.policy = p
	}
}

// WithAfterOnCancel 异步转换被取消后是否仍调用 After，默认不调用
func WithAfterOnCancel(enable bool) Option {
	return func(m *Machine) {
		m.afterOnCancel = enable
	}
}

// WithEmptyTransitionNoop 没有 Transition 钩子的同步转换只执行 Before/After，不提交记录
func WithEmptyTransitionNoop(enable bool) Option {
	return func(m *Machine) {
		m.emptyNoop = enable
	}
}

// WithHistory 保留最近 n 条转换事件
func WithHistory(n int) Option {
	return func(m *Machine) {
		if n < 0 {
			n = 0
		}
		m.historyCap = n
	}
}
