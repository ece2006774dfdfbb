package statemachine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitSettled(t *testing.T, p Pending) error {
	t.Helper()
	ch := make(chan error, 1)
	p.OnSettle(func(err error) { ch <- err })
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("pending did not settle")
		return nil
	}
}

func TestExecutor_Submit(t *testing.T) {
	e := NewExecutor(WithWorkers(2), WithQueueSize(4))
	defer e.Close(context.Background())

	var ran atomic.Int32
	p := e.Submit(context.Background(), func(ctx context.Context) error {
		ran.Add(1)
		return nil
	})
	require.NoError(t, waitSettled(t, p))
	assert.Equal(t, int32(1), ran.Load())

	boom := errors.New("boom")
	assert.ErrorIs(t, waitSettled(t, e.Submit(context.Background(), func(ctx context.Context) error { return boom })), boom)
}

func TestExecutor_Panic(t *testing.T) {
	var recovered atomic.Value
	e := NewExecutor(WithWorkers(1), WithPanicHandler(func(r interface{}) { recovered.Store(r) }))
	defer e.Close(context.Background())

	err := waitSettled(t, e.Submit(context.Background(), func(ctx context.Context) error { panic("kaboom") }))
	assert.ErrorIs(t, err, ErrTaskPanic)
	assert.Equal(t, "kaboom", recovered.Load())
}

func TestExecutor_Timeout(t *testing.T) {
	e := NewExecutor(WithWorkers(1), WithJobTimeout(20*time.Millisecond))
	defer e.Close(context.Background())

	err := waitSettled(t, e.Submit(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecutor_QueueFullAndClosed(t *testing.T) {
	e := NewExecutor(WithWorkers(1), WithQueueSize(1))

	release := make(chan struct{})
	started := make(chan struct{})
	first := e.Submit(context.Background(), func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	second := e.Submit(context.Background(), func(ctx context.Context) error { return nil })
	third := e.Submit(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, waitSettled(t, third), ErrQueueFull)
	assert.Equal(t, 1, e.Running())
	assert.Equal(t, 1, e.QueueLength())

	close(release)
	require.NoError(t, waitSettled(t, first))
	require.NoError(t, waitSettled(t, second))

	require.NoError(t, e.Close(context.Background()))
	assert.ErrorIs(t, waitSettled(t, e.Submit(context.Background(), func(ctx context.Context) error { return nil })), ErrExecutorClosed)
	require.NoError(t, e.Close(context.Background()))
}

func TestExecutor_AbortQueuedJob(t *testing.T) {
	e := NewExecutor(WithWorkers(1), WithQueueSize(2))
	defer e.Close(context.Background())

	release := make(chan struct{})
	started := make(chan struct{})
	e.Submit(context.Background(), func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	var ran atomic.Bool
	queued := e.Submit(context.Background(), func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	queued.Abort()
	close(release)

	assert.ErrorIs(t, waitSettled(t, queued), ErrAborted)
	require.NoError(t, e.Close(context.Background()))
	assert.False(t, ran.Load())
}

func TestExecutor_DrivesAsyncTransition(t *testing.T) {
	e := NewExecutor(WithWorkers(1))
	defer e.Close(context.Background())

	done := make(chan struct{})
	m := newTestMachine(t, Config{
		Initial: "idle",
		Transitions: Transitions{"sync": {
			From:            "idle",
			To:              To("synced"),
			TransitionState: "syncing",
			Async: e.Async(func(ctx context.Context, args ...any) error {
				assert.Equal(t, []any{"payload"}, args)
				return nil
			}),
			After: func(ctx context.Context, args ...any) error { close(done); return nil },
		}},
	})

	require.NoError(t, m.Fire(context.Background(), "sync", "payload"))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async transition did not complete")
	}
	assert.Equal(t, State("synced"), m.Current())
}

func TestExecutor_CloseHonoursDeadline(t *testing.T) {
	e := NewExecutor(WithWorkers(1), WithQueueSize(1))

	release := make(chan struct{})
	started := make(chan struct{})
	stuck := e.Submit(context.Background(), func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started
	queued := e.Submit(context.Background(), func(ctx context.Context) error { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	begin := time.Now()
	assert.ErrorIs(t, e.Close(ctx), context.DeadlineExceeded)
	assert.Less(t, time.Since(begin), time.Second)

	close(release)
	require.NoError(t, waitSettled(t, stuck))
	assert.ErrorIs(t, waitSettled(t, queued), ErrExecutorClosed)
}
