package statemachine

import "time"

// Outcome 转换步骤的结果
type Outcome string

const (
	OutcomeStarted   Outcome = "started"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Event 转换步骤完成后发布给观察者的事件
type Event struct {
	Machine    string        `json:"machine"`
	Transition string        `json:"transition"`
	Attempt    string        `json:"attempt,omitempty"` // 异步转换的尝试ID
	Type       ExecType      `json:"type"`
	Outcome    Outcome       `json:"outcome"`
	Record     Record        `json:"record"`
	Err        error         `json:"-"`
	Duration   time.Duration `json:"duration"`
	Time       time.Time     `json:"time"`
}

// Observer 转换事件观察者，在状态机锁外同步调用
type Observer interface {
	OnTransition(ev Event)
}

// ObserverFunc 函数适配器
type ObserverFunc func(ev Event)

func (f ObserverFunc) OnTransition(ev Event) { f(ev) }
