package hooks

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junbin-yang/go-fsmkit/pkg/logger"
	"github.com/junbin-yang/go-fsmkit/pkg/statemachine"
)

func settle(t *testing.T, p statemachine.Pending) error {
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

func TestSleepDuration(t *testing.T) {
	tests := []struct {
		args []any
		want time.Duration
	}{
		{nil, DefaultSleep},
		{[]any{5 * time.Millisecond}, 5 * time.Millisecond},
		{[]any{"20ms"}, 20 * time.Millisecond},
		{[]any{7}, 7 * time.Millisecond},
		{[]any{float64(3)}, 3 * time.Millisecond},
	}
	for _, tt := range tests {
		got, err := sleepDuration(tt.args)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := sleepDuration([]any{"soon"})
	assert.Error(t, err)
	_, err = sleepDuration([]any{struct{}{}})
	assert.Error(t, err)
}

func TestSleep(t *testing.T) {
	assert.NoError(t, settle(t, Sleep(context.Background(), time.Millisecond)))
	assert.Error(t, settle(t, Sleep(context.Background(), "bogus")))

	ctx, cancel := context.WithCancel(context.Background())
	p := Sleep(ctx, time.Hour)
	cancel()
	assert.ErrorIs(t, settle(t, p), context.Canceled)

	p = Sleep(context.Background(), time.Hour)
	p.Abort()
	assert.ErrorIs(t, settle(t, p), statemachine.ErrAborted)
}

func TestArg0(t *testing.T) {
	assert.Equal(t, "", Arg0())
	assert.Equal(t, "ok", Arg0("ok", "ignored"))
	assert.Equal(t, "42", Arg0(42))
}

func TestBuiltinsDriveDefinitions(t *testing.T) {
	doc, err := statemachine.LoadDocument(filepath.Join("..", "testdata", "machines.yml"))
	require.NoError(t, err)

	g, err := statemachine.BuildGroup(doc, New(logger.NewNop()), statemachine.WithLogger(logger.NewNop()))
	require.NoError(t, err)

	done := make(chan struct{})
	loader, ok := g.Get("loader")
	require.True(t, ok)
	loader.Subscribe(func(c statemachine.Change) {
		if c.New.Status == statemachine.StatusSucceeded && c.New.Current == "ready" {
			close(done)
		}
	})

	ctx := context.Background()
	require.NoError(t, g.Fire(ctx, "loader", "load", "50ms"))
	assert.Equal(t, statemachine.State("loading"), loader.Current())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sleep hook never settled")
	}

	require.NoError(t, g.Fire(ctx, "loader", "route", "retry"))
	assert.Equal(t, statemachine.State("idle"), loader.Current())

	require.NoError(t, g.Fire(ctx, "door", "open"))
	require.NoError(t, g.Fire(ctx, "door", "lock"), "lock from opened is ignored")
	door, _ := g.Get("door")
	assert.Equal(t, statemachine.State("opened"), door.Current())
}

func TestSleepOnExecutor(t *testing.T) {
	exec := statemachine.NewExecutor(statemachine.WithWorkers(1), statemachine.WithQueueSize(1))
	defer exec.Close(context.Background())

	reg := New(logger.NewNop(), WithExecutor(exec))
	sleep, ok := reg.Async("sleep")
	require.True(t, ok)

	assert.NoError(t, settle(t, sleep(context.Background(), time.Millisecond)))
	assert.Error(t, settle(t, sleep(context.Background(), "bogus")))

	// 单个工作协程占满后，队列也满时立即拒绝
	first := sleep(context.Background(), time.Hour)
	require.Eventually(t, func() bool { return exec.Running() == 1 }, time.Second, 5*time.Millisecond)
	second := sleep(context.Background(), time.Hour)
	assert.ErrorIs(t, settle(t, sleep(context.Background(), time.Hour)), statemachine.ErrQueueFull)

	first.Abort()
	second.Abort()
	assert.ErrorIs(t, settle(t, first), statemachine.ErrAborted)
	assert.ErrorIs(t, settle(t, second), statemachine.ErrAborted)
}
