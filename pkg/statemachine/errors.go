package statemachine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDefinition 转换定义不完整
	ErrInvalidDefinition = errors.New("statemachine: invalid transition definition")

	// ErrUnknownTransition Fire 了未定义的转换名
	ErrUnknownTransition = errors.New("statemachine: unknown transition")

	// ErrTransitionPending 异步转换进行中，拒绝恢复快照
	ErrTransitionPending = errors.New("statemachine: asynchronous transition pending")

	// ErrAborted 挂起操作被中止
	ErrAborted = errors.New("statemachine: pending operation aborted")

	// ErrRejected 挂起操作以空错误失败
	ErrRejected = errors.New("statemachine: pending operation rejected")

	// ErrQueueFull 执行器队列已满
	ErrQueueFull = errors.New("statemachine: executor queue is full")

	// ErrExecutorClosed 执行器已关闭
	ErrExecutorClosed = errors.New("statemachine: executor is closed")

	// ErrTaskPanic 异步任务执行panic
	ErrTaskPanic = errors.New("statemachine: task panic")

	// ErrMachineNotFound 分组中不存在该状态机
	ErrMachineNotFound = errors.New("statemachine: machine not found")

	// ErrMachineExists 分组中已存在同名状态机
	ErrMachineExists = errors.New("statemachine: machine already exists")
)

// CollisionError 同一源状态下两个分支声明了相同目标
type CollisionError struct {
	From       State
	To         State
	Transition string
	Existing   string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("collision on transition table[%s][%s]: %q conflicts with %q",
		e.From, e.To, e.Transition, e.Existing)
}

// DuplicatePropertyError 转换名与状态机已有成员冲突
type DuplicatePropertyError struct {
	Name string
}

func (e *DuplicatePropertyError) Error() string {
	return fmt.Sprintf("property %q already exists on machine", e.Name)
}

// InvalidTransitionError 解析出的目标不可从源状态到达
type InvalidTransitionError struct {
	Transition string
	From       State
	To         State
	Key        string // 扇出时 OnResolve 返回的键
}

func (e *InvalidTransitionError) Error() string {
	if e.To == "" {
		return fmt.Sprintf("invalid transition %q: no destination for key %q from %q", e.Transition, e.Key, e.From)
	}
	return fmt.Sprintf("invalid transition %q: %q is not reachable from %q", e.Transition, e.To, e.From)
}

// MissingCallbackError 扇出转换缺少 OnResolve
type MissingCallbackError struct {
	Transition string
	Callback   string
}

func (e *MissingCallbackError) Error() string {
	return fmt.Sprintf("transition %q requires callback %s", e.Transition, e.Callback)
}

// HookError 钩子返回了错误
type HookError struct {
	Transition string
	Hook       string
	Err        error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("transition %q: %s hook failed: %v", e.Transition, e.Hook, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

func IsCollisionError(err error) bool {
	var e *CollisionError
	return errors.As(err, &e)
}

func IsDuplicatePropertyError(err error) bool {
	var e *DuplicatePropertyError
	return errors.As(err, &e)
}

func IsInvalidTransitionError(err error) bool {
	var e *InvalidTransitionError
	return errors.As(err, &e)
}

func IsMissingCallbackError(err error) bool {
	var e *MissingCallbackError
	return errors.As(err, &e)
}

func IsHookError(err error) bool {
	var e *HookError
	return errors.As(err, &e)
}
