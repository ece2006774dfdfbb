package statemachine

import "sync"

// Change 一次更新的变更通知
type Change struct {
	Fields   []string // 变化的字段：current/prev/transition/type/status/state
	Old      Record
	New      Record
	OldState State // 展示状态
	NewState State
}

// Listener 变更监听函数
type Listener func(Change)

// Model 可观察的状态容器，持有运行记录与独立的展示状态。
// 每次 apply 是一个原子更新，监听函数在锁外按注册顺序同步调用。
type Model struct {
	mu        sync.RWMutex
	record    Record
	display   State
	listeners []listenerEntry
	nextID    uint64
}

type listenerEntry struct {
	id uint64
	fn Listener
}

// NewModel 创建状态容器，展示状态默认为 DefaultInitial
func NewModel(initial State) *Model {
	return &Model{
		record:  newRecord(initial),
		display: DefaultInitial,
	}
}

// Record 当前记录的副本
func (m *Model) Record() Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.record
}

// DisplayState 展示状态，状态机自身从不写入
func (m *Model) DisplayState() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.display
}

// SetDisplayState 由外部设置展示状态
func (m *Model) SetDisplayState(s State) {
	m.mu.Lock()
	old := m.display
	if old == s {
		m.mu.Unlock()
		return
	}
	m.display = s
	rec := m.record
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	notify(listeners, Change{Fields: []string{"state"}, Old: rec, New: rec, OldState: old, NewState: s})
}

// Subscribe 注册监听函数，返回取消函数
func (m *Model) Subscribe(fn Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.listeners = append(m.listeners, listenerEntry{id: id, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, l := range m.listeners {
			if l.id == id {
				m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

// apply 原子地读改写记录。fn 返回 false 表示放弃本次更新
func (m *Model) apply(fn func(r *Record) bool) (Record, bool) {
	m.mu.Lock()
	old := m.record
	next := old
	if !fn(&next) {
		m.mu.Unlock()
		return old, false
	}
	m.record = next
	display := m.display
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	if fields := changedFields(old, next); len(fields) > 0 {
		notify(listeners, Change{Fields: fields, Old: old, New: next, OldState: display, NewState: display})
	}
	return next, true
}

// replace 整体替换记录与展示状态，用于恢复快照
func (m *Model) replace(rec Record, display State) {
	m.mu.Lock()
	old, oldDisplay := m.record, m.display
	m.record = rec
	m.display = display
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	fields := changedFields(old, rec)
	if oldDisplay != display {
		fields = append(fields, "state")
	}
	if len(fields) > 0 {
		notify(listeners, Change{Fields: fields, Old: old, New: rec, OldState: oldDisplay, NewState: display})
	}
}

func (m *Model) snapshotListeners() []Listener {
	out := make([]Listener, len(m.listeners))
	for i, l := range m.listeners {
		out[i] = l.fn
	}
	return out
}

func notify(listeners []Listener, c Change) {
	for _, fn := range listeners {
		fn(c)
	}
}
