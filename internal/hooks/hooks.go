// Package hooks 定义文件可引用的内置钩子
package hooks

import (
	"context"
	"fmt"
	"time"

	"github.com/junbin-yang/go-fsmkit/pkg/logger"
	"github.com/junbin-yang/go-fsmkit/pkg/statemachine"
)

// DefaultSleep sleep 钩子未指定时长时的等待时间
const DefaultSleep = 100 * time.Millisecond

// Option 内置钩子选项
type Option func(*builtins)

type builtins struct {
	exec *statemachine.Executor
}

// WithExecutor sleep 钩子在执行器中运行，受其并发与队列上限约束
func WithExecutor(e *statemachine.Executor) Option {
	return func(b *builtins) {
		b.exec = e
	}
}

// New 返回登记了全部内置钩子的注册表
func New(log logger.Logger, opts ...Option) *statemachine.Registry {
	reg := statemachine.NewRegistry()
	Register(reg, log, opts...)
	return reg
}

// Register 向已有注册表登记内置钩子：log、noop、sleep、arg0
func Register(reg *statemachine.Registry, log logger.Logger, opts ...Option) {
	if log == nil {
		log = logger.Default()
	}
	var b builtins
	for _, opt := range opts {
		opt(&b)
	}

	reg.RegisterHook("log", func(ctx context.Context, args ...any) error {
		log.Info("hook invoked", logger.Any("args", args))
		return nil
	})
	reg.RegisterHook("noop", func(ctx context.Context, args ...any) error {
		return nil
	})
	if b.exec != nil {
		reg.RegisterAsync("sleep", b.exec.Async(wait))
	} else {
		reg.RegisterAsync("sleep", Sleep)
	}
	reg.RegisterResolver("arg0", Arg0)
}

// Sleep 异步等待第一个参数指定的时长，ctx 取消时提前结束
func Sleep(ctx context.Context, args ...any) statemachine.Pending {
	if _, err := sleepDuration(args); err != nil {
		return statemachine.Rejected(err)
	}
	return statemachine.Go(ctx, func(ctx context.Context) error {
		return wait(ctx, args...)
	})
}

func wait(ctx context.Context, args ...any) error {
	d, err := sleepDuration(args)
	if err != nil {
		return err
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sleepDuration 支持 time.Duration、时长字符串，数字按毫秒
func sleepDuration(args []any) (time.Duration, error) {
	if len(args) == 0 || args[0] == nil {
		return DefaultSleep, nil
	}
	switch v := args[0].(type) {
	case time.Duration:
		return v, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("sleep: %w", err)
		}
		return d, nil
	case int:
		return time.Duration(v) * time.Millisecond, nil
	case int64:
		return time.Duration(v) * time.Millisecond, nil
	case float64:
		return time.Duration(v * float64(time.Millisecond)), nil
	default:
		return 0, fmt.Errorf("sleep: unsupported duration %T", v)
	}
}

// Arg0 以第一个参数作为扇出键
func Arg0(args ...any) string {
	if len(args) == 0 || args[0] == nil {
		return ""
	}
	if s, ok := args[0].(string); ok {
		return s
	}
	return fmt.Sprint(args[0])
}
