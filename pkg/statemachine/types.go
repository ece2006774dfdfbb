package statemachine

import "context"

// State 状态标识
type State string

const (
	// Wildcard 匹配任意当前状态的源状态
	Wildcard State = "*"

	// DefaultInitial 未配置初始状态时使用的状态
	DefaultInitial State = "initial"
)

// ExecType 最近一次转换的执行方式
type ExecType string

const (
	TypeNone  ExecType = ""
	TypeSync  ExecType = "SYNC"
	TypeAsync ExecType = "ASYNC"
)

// Status 最近一次转换的执行结果
type Status string

const (
	StatusSucceeded  Status = "SUCCEEDED"
	StatusStarted    Status = "STARTED"
	StatusCancelled  Status = "CANCELLED"
	StatusFailed     Status = "FAILED"
	StatusNotStarted Status = "NOT_STARTED"
)

// HookFunc 生命周期钩子（before/transition/after），接收调用转换函数时的原始参数
type HookFunc func(ctx context.Context, args ...any) error

// AsyncFunc 异步转换体，返回挂起操作句柄。ctx 在 Cancel 时被取消
type AsyncFunc func(ctx context.Context, args ...any) Pending

// ResolveFunc 扇出转换的分支解析函数，返回分支键
type ResolveFunc func(args ...any) string

// TransitionFunc 为每个转换名合成的可调用函数
type TransitionFunc func(ctx context.Context, args ...any) error

// Definition 转换定义，构造后不可变
type Definition struct {
	From            State       // 源状态，可为 Wildcard
	To              Destination // 单一目标或扇出映射
	TransitionState State       // 异步转换进行中占用的中间状态，可选

	Before     HookFunc
	Transition HookFunc // 同步转换体
	Async      AsyncFunc
	After      HookFunc
	OnResolve  ResolveFunc // To 为扇出时必填
}

// IsAsync 是否为异步转换
func (d *Definition) IsAsync() bool {
	return d.Async != nil
}

// Transitions 转换名到定义的映射
type Transitions map[string]Definition

// Config 状态机构造配置
type Config struct {
	Name        string
	Initial     State
	Transitions Transitions
}
