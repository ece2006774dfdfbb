package statemachine

import (
	"context"
	"sort"
	"sync"
)

// Group 按名称管理多个状态机
type Group struct {
	mu       sync.RWMutex
	machines map[string]*Machine
}

// NewGroup 创建状态机分组
func NewGroup() *Group {
	return &Group{
		machines: make(map[string]*Machine),
	}
}

// Add 添加状态机，名称取 Machine.Name()
func (g *Group) Add(m *Machine) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.machines[m.Name()]; exists {
		return ErrMachineExists
	}
	g.machines[m.Name()] = m
	return nil
}

// Replace 添加或替换同名状态机，返回被替换者
func (g *Group) Replace(m *Machine) *Machine {
	g.mu.Lock()
	defer g.mu.Unlock()
	old := g.machines[m.Name()]
	g.machines[m.Name()] = m
	return old
}

// Remove 移除状态机
func (g *Group) Remove(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.machines, name)
}

// Get 获取状态机
func (g *Group) Get(name string) (*Machine, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.machines[name]
	return m, ok
}

// Names 所有状态机名称，排序后返回
func (g *Group) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.machines))
	for name := range g.machines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fire 调用指定状态机的转换
func (g *Group) Fire(ctx context.Context, machine, transition string, args ...any) error {
	m, ok := g.Get(machine)
	if !ok {
		return ErrMachineNotFound
	}
	return m.Fire(ctx, transition, args...)
}

// FireAll 并发地在所有定义了该转换的状态机上调用它
func (g *Group) FireAll(ctx context.Context, transition string, args ...any) map[string]error {
	machines := g.snapshot()

	results := make(map[string]error)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, m := range machines {
		if _, ok := m.Transition(transition); !ok {
			continue
		}
		wg.Add(1)
		go func(n string, m *Machine) {
			defer wg.Done()
			err := m.Fire(ctx, transition, args...)
			mu.Lock()
			results[n] = err
			mu.Unlock()
		}(name, m)
	}

	wg.Wait()
	return results
}

// Records 所有状态机的当前记录
func (g *Group) Records() map[string]Record {
	g.mu.RLock()
	defer g.mu.RUnlock()

	records := make(map[string]Record, len(g.machines))
	for name, m := range g.machines {
		records[name] = m.Record()
	}
	return records
}

// CancelAll 取消所有进行中的异步转换，返回被取消的状态机名称
func (g *Group) CancelAll() []string {
	var cancelled []string
	for name, m := range g.snapshot() {
		if m.Cancel() {
			cancelled = append(cancelled, name)
		}
	}
	sort.Strings(cancelled)
	return cancelled
}

// Len 状态机数量
func (g *Group) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.machines)
}

func (g *Group) snapshot() map[string]*Machine {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]*Machine, len(g.machines))
	for name, m := range g.machines {
		out[name] = m
	}
	return out
}
