package statemachine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroup(t *testing.T) {
	g := NewGroup()

	door := newTestMachine(t, doorConfig())
	require.NoError(t, g.Add(door))
	assert.ErrorIs(t, g.Add(door), ErrMachineExists)

	var d *Deferred
	loader := newTestMachine(t, Config{
		Name:    "loader",
		Initial: "idle",
		Transitions: Transitions{
			"load":  {From: "idle", To: To("ready"), Async: deferredAsync(&d, nil)},
			"close": {From: "ready", To: To("idle")},
		},
	})
	require.NoError(t, g.Add(loader))

	assert.Equal(t, []string{"door", "loader"}, g.Names())
	assert.Equal(t, 2, g.Len())

	ctx := context.Background()
	require.NoError(t, g.Fire(ctx, "door", "open"))
	assert.ErrorIs(t, g.Fire(ctx, "garage", "open"), ErrMachineNotFound)

	results := g.FireAll(ctx, "close")
	assert.Len(t, results, 2)
	assert.NoError(t, results["door"])
	assert.Equal(t, State("closed"), door.Current())
	assert.Equal(t, State("idle"), loader.Current(), "close is a no-op from idle")

	results = g.FireAll(ctx, "open")
	assert.Len(t, results, 1, "only machines defining the transition are fired")

	require.NoError(t, g.Fire(ctx, "loader", "load"))
	assert.Equal(t, []string{"loader"}, g.CancelAll())
	assert.Equal(t, StatusFailed, g.Records()["loader"].Status)

	replacement := newTestMachine(t, doorConfig())
	assert.Same(t, door, g.Replace(replacement))
	got, ok := g.Get("door")
	require.True(t, ok)
	assert.Same(t, replacement, got)

	g.Remove("door")
	_, ok = g.Get("door")
	assert.False(t, ok)
}
