package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junbin-yang/go-fsmkit/pkg/statemachine"
)

func sampleSnapshot(current statemachine.State) *statemachine.Snapshot {
	return &statemachine.Snapshot{
		Machine: "door",
		Record: statemachine.Record{
			Current:    current,
			Prev:       "closed",
			Transition: "open",
			Type:       statemachine.TypeSync,
			Status:     statemachine.StatusSucceeded,
		},
		DisplayState: "visible",
		Timestamp:    time.Now().UTC().Truncate(time.Second),
		Metadata:     map[string]interface{}{"owner": "ops"},
	}
}

// runStoreContract 所有后端共同遵守的行为
func runStoreContract(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("Save and Load", func(t *testing.T) {
		snap := sampleSnapshot("opened")
		require.NoError(t, s.Save(ctx, "door", snap))

		loaded, err := s.Load(ctx, "door")
		require.NoError(t, err)
		assert.Equal(t, snap.Record, loaded.Record)
		assert.Equal(t, snap.DisplayState, loaded.DisplayState)
		assert.Equal(t, "door", loaded.Machine)
		assert.Equal(t, "ops", loaded.Metadata["owner"])
		assert.True(t, snap.Timestamp.Equal(loaded.Timestamp))
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, "door", sampleSnapshot("locked")))
		loaded, err := s.Load(ctx, "door")
		require.NoError(t, err)
		assert.Equal(t, statemachine.State("locked"), loaded.Record.Current)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := s.Load(ctx, "garage")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("List", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, "window", sampleSnapshot("opened")))
		keys, err := s.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"door", "window"}, keys)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "window"))
		require.NoError(t, s.Delete(ctx, "window"))
		_, err := s.Load(ctx, "window")
		assert.ErrorIs(t, err, ErrNotFound)

		keys, err := s.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"door"}, keys)
	})

	t.Run("Key Named Index", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, "index", sampleSnapshot("opened")))
		keys, err := s.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"door", "index"}, keys)

		loaded, err := s.Load(ctx, "index")
		require.NoError(t, err)
		assert.Equal(t, statemachine.State("opened"), loaded.Record.Current)

		require.NoError(t, s.Delete(ctx, "index"))
		keys, err = s.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"door"}, keys)
	})

	t.Run("Invalid Key", func(t *testing.T) {
		assert.Error(t, s.Save(ctx, "", sampleSnapshot("x")))
		assert.Error(t, s.Save(ctx, "../escape", sampleSnapshot("x")))
	})
}

func TestMemoryStore_Contract(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	runStoreContract(t, s)
}

func TestMemoryStore_CopiesSnapshot(t *testing.T) {
	s := NewMemoryStore()
	snap := sampleSnapshot("opened")
	require.NoError(t, s.Save(context.Background(), "door", snap))
	snap.Metadata["owner"] = "mutated"

	loaded, err := s.Load(context.Background(), "door")
	require.NoError(t, err)
	assert.Equal(t, "ops", loaded.Metadata["owner"])
}

func TestFileStore_Contract(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)
	defer s.Close()
	runStoreContract(t, s)

	_, err := os.Stat(filepath.Join(dir, "door.yml"))
	assert.NoError(t, err)
}

func TestFileStore_EmptyDirList(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "missing"))
	keys, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return mr, backend.NewClient(&backend.Options{Addr: mr.Addr()})
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newMiniRedis(t)
	s := NewRedisStoreFromClient(client, WithPrefix("test:"))
	defer s.Close()
	require.NoError(t, s.Ping(context.Background()))
	runStoreContract(t, s)
}

func TestRedisStore_TTL(t *testing.T) {
	mr, client := newMiniRedis(t)
	s := NewRedisStoreFromClient(client, WithTTL(time.Minute))
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "door", sampleSnapshot("opened")))
	assert.True(t, mr.Exists("fsm:snap:door"))
	assert.Equal(t, time.Minute, mr.TTL("fsm:snap:door"))

	mr.FastForward(2 * time.Minute)
	_, err := s.Load(ctx, "door")
	assert.ErrorIs(t, err, ErrNotFound)
}
