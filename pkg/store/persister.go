package store

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/junbin-yang/go-fsmkit/pkg/logger"
	"github.com/junbin-yang/go-fsmkit/pkg/statemachine"
)

// Persister 转换事件观察者：每次转换结束后把所属状态机的快照写入存储。
// STARTED 事件不保存，进行中的快照无法恢复
type Persister struct {
	store   Store
	group   atomic.Pointer[statemachine.Group]
	log     logger.Logger
	timeout time.Duration
}

// PersisterOption 持久化观察者选项
type PersisterOption func(*Persister)

func WithPersisterLogger(l logger.Logger) PersisterOption {
	return func(p *Persister) {
		if l != nil {
			p.log = l
		}
	}
}

// WithSaveTimeout 单次保存超时，默认 2s
func WithSaveTimeout(d time.Duration) PersisterOption {
	return func(p *Persister) {
		p.timeout = d
	}
}

func NewPersister(s Store, opts ...PersisterOption) *Persister {
	p := &Persister{
		store:   s,
		log:     logger.Default(),
		timeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Bind 设置用于按事件中的状态机名称查找状态机的分组，重载定义后重新绑定
func (p *Persister) Bind(g *statemachine.Group) {
	p.group.Store(g)
}

func (p *Persister) OnTransition(ev statemachine.Event) {
	if ev.Outcome == statemachine.OutcomeStarted {
		return
	}
	g := p.group.Load()
	if g == nil {
		return
	}
	m, ok := g.Get(ev.Machine)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	snap := m.Snapshot(map[string]interface{}{
		"transition": ev.Transition,
		"outcome":    string(ev.Outcome),
	})
	if err := p.store.Save(ctx, ev.Machine, snap); err != nil {
		p.log.Error("snapshot save failed",
			logger.String("machine", ev.Machine),
			logger.String("transition", ev.Transition),
			logger.Err(err),
		)
	}
}

// RestoreAll 为已绑定分组中每个已保存快照的状态机恢复状态，返回恢复的名称
func (p *Persister) RestoreAll(ctx context.Context) ([]string, error) {
	g := p.group.Load()
	if g == nil {
		return nil, nil
	}
	var restored []string
	for _, name := range g.Names() {
		snap, err := p.store.Load(ctx, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return restored, err
		}

		m, ok := g.Get(name)
		if !ok {
			continue
		}
		if err := m.Restore(snap); err != nil {
			p.log.Warn("snapshot skipped",
				logger.String("machine", name),
				logger.Err(err),
			)
			continue
		}
		restored = append(restored, name)
	}
	return restored, nil
}
