package statemachine

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/junbin-yang/go-fsmkit/pkg/logger"
)

// Machine 声明式状态机。转换函数在构造时按转换名合成，通过 Fire 或 Transition 调用。
// 所有记录更新都经由 Model.apply 原子完成；钩子在锁外执行，可以回调状态机。
type Machine struct {
	name  string
	table *Table
	model *Model
	fns   map[string]TransitionFunc

	log           logger.Logger
	onError       ErrorHandler
	observers     []Observer
	policy        CollisionPolicy
	afterOnCancel bool
	emptyNoop     bool

	historyCap int
	histMu     sync.Mutex
	history    []Event

	inflightMu sync.Mutex
	inflight   *attempt
}

// attempt 一次进行中的异步转换
type attempt struct {
	id        string
	name      string
	pending   Pending
	cancel    context.CancelFunc
	started   time.Time
	cancelled atomic.Bool
}

// reservedNames 状态机方法名，转换名不可与之冲突（忽略大小写）
var reservedNames = func() map[string]struct{} {
	names := make(map[string]struct{})
	t := reflect.TypeOf((*Machine)(nil))
	for i := 0; i < t.NumMethod(); i++ {
		names[strings.ToLower(t.Method(i).Name)] = struct{}{}
	}
	return names
}()

// New 编译转换表并合成转换函数
func New(cfg Config, opts ...Option) (*Machine, error) {
	initial := cfg.Initial
	if initial == "" {
		initial = DefaultInitial
	}

	m := &Machine{
		name:  cfg.Name,
		model: NewModel(initial),
		log:   logger.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.name != "" {
		m.log = m.log.With(logger.String("machine", m.name))
	}

	table, err := Compile(cfg.Transitions, WithTableCollisionPolicy(m.policy))
	if err != nil {
		return nil, err
	}
	m.table = table

	m.fns = make(map[string]TransitionFunc, len(cfg.Transitions))
	for _, name := range table.Names() {
		if _, taken := reservedNames[strings.ToLower(name)]; taken {
			return nil, &DuplicatePropertyError{Name: name}
		}
		def, _ := table.Definition(name)
		m.fns[name] = m.buildTransitionFn(name, def)
	}

	m.log.Debug("machine compiled",
		logger.String("initial", string(initial)),
		logger.Int("transitions", len(m.fns)),
		logger.String("collision_policy", m.policy.String()),
	)
	return m, nil
}

// MustNew 构造失败时 panic
func MustNew(cfg Config, opts ...Option) *Machine {
	m, err := New(cfg, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create state machine: %v", err))
	}
	return m
}

// Name 状态机名称
func (m *Machine) Name() string {
	return m.name
}

// Table 编译后的转换表
func (m *Machine) Table() *Table {
	return m.table
}

// Model 底层可观察状态容器
func (m *Machine) Model() *Model {
	return m.model
}

// Transition 按名称取合成的转换函数
func (m *Machine) Transition(name string) (TransitionFunc, bool) {
	fn, ok := m.fns[name]
	return fn, ok
}

// Transitions 所有转换名
func (m *Machine) Transitions() []string {
	return m.table.Names()
}

// Fire 按名称调用转换函数。当前状态不匹配源状态时静默忽略并返回 nil
func (m *Machine) Fire(ctx context.Context, name string, args ...any) error {
	fn, ok := m.fns[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTransition, name)
	}
	return fn(ctx, args...)
}

// Can 当前状态下调用该转换是否会生效
func (m *Machine) Can(name string) bool {
	def, ok := m.table.Definition(name)
	if !ok {
		return false
	}
	return def.From == Wildcard || def.From == m.Current()
}

// GetState 展示状态，与 Current 相互独立，由外部通过 SetDisplayState 维护
func (m *Machine) GetState() State {
	return m.model.DisplayState()
}

// SetDisplayState 设置展示状态
func (m *Machine) SetDisplayState(s State) {
	m.model.SetDisplayState(s)
}

// Record 当前运行记录
func (m *Machine) Record() Record {
	return m.model.Record()
}

// Current 当前状态
func (m *Machine) Current() State {
	return m.model.Record().Current
}

// IsValidTransition from->to 是否在转换表中（含通配符行）
func (m *Machine) IsValidTransition(from, to State) bool {
	return m.table.IsValid(from, to)
}

// Subscribe 订阅记录变化
func (m *Machine) Subscribe(fn Listener) func() {
	return m.model.Subscribe(fn)
}

// Cancel 取消进行中的异步转换。仅当 Status==STARTED 且 Type==ASYNC 时生效
func (m *Machine) Cancel() bool {
	m.inflightMu.Lock()
	att := m.inflight
	m.inflightMu.Unlock()

	rec, ok := m.model.apply(func(r *Record) bool {
		if !r.InFlight() {
			return false
		}
		r.Status = StatusCancelled
		return true
	})
	if !ok {
		return false
	}

	if att != nil {
		att.cancelled.Store(true)
		att.pending.Abort()
		att.cancel()
	}
	m.log.Warn("asynchronous transition cancelled",
		logger.String("transition", rec.Transition),
		logger.String("current", string(rec.Current)),
	)
	return true
}

// History 最近的转换事件，旧的在前
func (m *Machine) History() []Event {
	m.histMu.Lock()
	defer m.histMu.Unlock()
	return append([]Event(nil), m.history...)
}

func (m *Machine) publish(ev Event) {
	ev.Machine = m.name
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	if m.historyCap > 0 {
		m.histMu.Lock()
		m.history = append(m.history, ev)
		if over := len(m.history) - m.historyCap; over > 0 {
			m.history = append(m.history[:0:0], m.history[over:]...)
		}
		m.histMu.Unlock()
	}

	for _, o := range m.observers {
		o.OnTransition(ev)
	}
}

// report 没有调用方可接收的错误走错误回调
func (m *Machine) report(name string, err error) {
	m.log.Error("asynchronous transition failed",
		logger.String("transition", name),
		logger.Err(err),
	)
	if m.onError != nil {
		m.onError(name, err)
	}
}

func (m *Machine) setInflight(att *attempt) {
	m.inflightMu.Lock()
	m.inflight = att
	m.inflightMu.Unlock()
}

// releaseInflight 清除进行中的尝试，返回 att 是否仍是当前尝试
func (m *Machine) releaseInflight(att *attempt) bool {
	m.inflightMu.Lock()
	defer m.inflightMu.Unlock()
	if m.inflight != att {
		return false
	}
	m.inflight = nil
	return true
}
