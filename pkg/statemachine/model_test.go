package statemachine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModel_ApplyNotifies(t *testing.T) {
	m := NewModel("a")
	var changes []Change
	m.Subscribe(func(c Change) { changes = append(changes, c) })

	rec, ok := m.apply(func(r *Record) bool {
		r.Prev, r.Current = r.Current, "b"
		return true
	})
	require.True(t, ok)
	assert.Equal(t, State("b"), rec.Current)
	require.Len(t, changes, 1)
	assert.Equal(t, []string{"current", "prev"}, changes[0].Fields)
	assert.Equal(t, State("a"), changes[0].Old.Current)

	_, ok = m.apply(func(r *Record) bool {
		r.Current = "zzz"
		return false
	})
	assert.False(t, ok)
	assert.Equal(t, State("b"), m.Record().Current, "rejected update is discarded")
	assert.Len(t, changes, 1)

	_, ok = m.apply(func(r *Record) bool { return true })
	assert.True(t, ok)
	assert.Len(t, changes, 1, "no-op update does not notify")
}

func TestModel_ListenerMayReadModel(t *testing.T) {
	m := NewModel("a")
	var seen State
	m.Subscribe(func(c Change) { seen = m.Record().Current })

	m.apply(func(r *Record) bool { r.Current = "b"; return true })
	assert.Equal(t, State("b"), seen)
}

func TestModel_DisplayState(t *testing.T) {
	m := NewModel("a")
	assert.Equal(t, DefaultInitial, m.DisplayState())

	var changes []Change
	unsubscribe := m.Subscribe(func(c Change) { changes = append(changes, c) })

	m.SetDisplayState("visible")
	m.SetDisplayState("visible")
	require.Len(t, changes, 1)
	assert.Equal(t, []string{"state"}, changes[0].Fields)
	assert.Equal(t, DefaultInitial, changes[0].OldState)
	assert.Equal(t, State("visible"), changes[0].NewState)
	assert.Equal(t, State("a"), m.Record().Current)

	unsubscribe()
	m.SetDisplayState("hidden")
	assert.Len(t, changes, 1)
}
