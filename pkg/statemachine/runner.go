package statemachine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/junbin-yang/go-fsmkit/pkg/logger"
)

// buildTransitionFn 为转换名合成调用函数
func (m *Machine) buildTransitionFn(name string, def *Definition) TransitionFunc {
	return func(ctx context.Context, args ...any) error {
		if ctx == nil {
			ctx = context.Background()
		}
		return m.run(ctx, name, def, args)
	}
}

// run 执行协议：源状态守卫 -> Before -> 异步或同步分支
func (m *Machine) run(ctx context.Context, name string, def *Definition, args []any) error {
	current := m.Current()
	if current != def.From && def.From != Wildcard {
		m.log.Debug("transition ignored in current state",
			logger.String("transition", name),
			logger.String("current", string(current)),
			logger.String("from", string(def.From)),
		)
		return nil
	}

	if def.Before != nil {
		if err := def.Before(ctx, args...); err != nil {
			return &HookError{Transition: name, Hook: "before", Err: err}
		}
	}

	if def.IsAsync() {
		m.beginAsync(ctx, name, def, args)
		return nil
	}
	return m.runSync(ctx, name, def, args)
}

func (m *Machine) runSync(ctx context.Context, name string, def *Definition, args []any) error {
	if def.Transition != nil {
		if err := def.Transition(ctx, args...); err != nil {
			herr := &HookError{Transition: name, Hook: "transition", Err: err}
			m.publish(Event{Transition: name, Type: TypeSync, Outcome: OutcomeFailed, Record: m.Record(), Err: herr})
			return herr
		}
	} else if m.emptyNoop {
		return m.callAfter(ctx, name, def, args)
	}

	key := m.resolveKey(def, args)
	var resolveErr error
	rec, ok := m.model.apply(func(r *Record) bool {
		to, err := m.destination(name, def, key, r.Current)
		if err != nil {
			resolveErr = err
			return false
		}
		*r = Record{
			Type:       TypeSync,
			Status:     StatusSucceeded,
			Prev:       r.Current,
			Current:    to,
			Transition: name,
		}
		return true
	})
	if !ok {
		m.publish(Event{Transition: name, Type: TypeSync, Outcome: OutcomeFailed, Record: rec, Err: resolveErr})
		return resolveErr
	}

	m.log.Info("transition committed",
		logger.String("transition", name),
		logger.String("prev", string(rec.Prev)),
		logger.String("current", string(rec.Current)),
	)
	m.publish(Event{Transition: name, Type: TypeSync, Outcome: OutcomeCompleted, Record: rec})

	return m.callAfter(ctx, name, def, args)
}

// beginAsync 调用 Async 取得挂起句柄，写入 STARTED 记录并注册完成回调
func (m *Machine) beginAsync(ctx context.Context, name string, def *Definition, args []any) {
	base := context.WithoutCancel(ctx)
	hookCtx, cancel := context.WithCancel(base)

	pending := def.Async(hookCtx, args...)
	if pending == nil {
		pending = Resolved()
	}

	att := &attempt{
		id:      uuid.NewString(),
		name:    name,
		pending: pending,
		cancel:  cancel,
		started: time.Now(),
	}
	m.setInflight(att)

	rec, _ := m.model.apply(func(r *Record) bool {
		next := r.Current
		if def.TransitionState != "" {
			next = def.TransitionState
		}
		*r = Record{
			Type:       TypeAsync,
			Status:     StatusStarted,
			Prev:       r.Current,
			Current:    next,
			Transition: name,
		}
		return true
	})

	m.log.Debug("asynchronous transition started",
		logger.String("transition", name),
		logger.String("attempt", att.id),
		logger.String("current", string(rec.Current)),
	)
	m.publish(Event{Transition: name, Attempt: att.id, Type: TypeAsync, Outcome: OutcomeStarted, Record: rec})

	pending.OnSettle(func(err error) {
		m.completeAsync(base, name, def, args, att, err)
	})
}

// completeAsync 挂起操作完成。已取消则记为 FAILED 并跳过目标解析
func (m *Machine) completeAsync(ctx context.Context, name string, def *Definition, args []any, att *attempt, settleErr error) {
	defer att.cancel()
	// 已取消且被新的尝试取代时不再改写记录
	superseded := !m.releaseInflight(att) && att.cancelled.Load()

	var key string
	if settleErr == nil && !att.cancelled.Load() && m.Record().Status != StatusCancelled {
		key = m.resolveKey(def, args)
	}

	outcome := OutcomeCompleted
	var failure error
	rec, _ := m.model.apply(func(r *Record) bool {
		if superseded {
			outcome = OutcomeCancelled
			return false
		}
		if att.cancelled.Load() || r.Status == StatusCancelled {
			outcome = OutcomeCancelled
		} else if settleErr != nil {
			outcome, failure = OutcomeFailed, settleErr
		} else {
			from := r.Current
			if def.TransitionState != "" {
				from = r.Prev
			}
			to, err := m.destination(name, def, key, from)
			if err != nil {
				outcome, failure = OutcomeFailed, err
			} else {
				*r = Record{
					Type:       TypeAsync,
					Status:     StatusSucceeded,
					Prev:       r.Current,
					Current:    to,
					Transition: name,
				}
				return true
			}
		}
		*r = Record{
			Type:       TypeAsync,
			Status:     StatusFailed,
			Prev:       r.Prev,
			Current:    r.Current,
			Transition: name,
		}
		return true
	})

	elapsed := time.Since(att.started)
	m.publish(Event{
		Transition: name,
		Attempt:    att.id,
		Type:       TypeAsync,
		Outcome:    outcome,
		Record:     rec,
		Err:        failure,
		Duration:   elapsed,
	})

	switch outcome {
	case OutcomeCompleted:
		m.log.Info("asynchronous transition committed",
			logger.String("transition", name),
			logger.String("attempt", att.id),
			logger.String("prev", string(rec.Prev)),
			logger.String("current", string(rec.Current)),
			logger.Duration("elapsed", elapsed),
		)
	case OutcomeFailed:
		m.report(name, failure)
		return
	case OutcomeCancelled:
		if !m.afterOnCancel {
			return
		}
	}

	if err := m.callAfter(ctx, name, def, args); err != nil {
		m.report(name, err)
	}
}

func (m *Machine) callAfter(ctx context.Context, name string, def *Definition, args []any) error {
	if def.After == nil {
		return nil
	}
	if err := def.After(ctx, args...); err != nil {
		return &HookError{Transition: name, Hook: "after", Err: err}
	}
	return nil
}

// resolveKey 在锁外调用 OnResolve，单一目标返回空键
func (m *Machine) resolveKey(def *Definition, args []any) string {
	if !def.To.IsFanOut() || def.OnResolve == nil {
		return ""
	}
	return def.OnResolve(args...)
}

// destination 由分支键求目标并按转换表校验 from->to
func (m *Machine) destination(name string, def *Definition, key string, from State) (State, error) {
	to := def.To.Single()
	if def.To.IsFanOut() {
		if def.OnResolve == nil {
			return "", &MissingCallbackError{Transition: name, Callback: "OnResolve"}
		}
		branch, ok := def.To.Branch(key)
		if !ok {
			return "", &InvalidTransitionError{Transition: name, From: from, Key: key}
		}
		to = branch
	}

	if !m.table.IsValid(from, to) {
		return "", &InvalidTransitionError{Transition: name, From: from, To: to, Key: key}
	}
	return to, nil
}
