package store

import (
	"context"
	"sort"
	"sync"

	"github.com/junbin-yang/go-fsmkit/pkg/statemachine"
)

// MemoryStore 进程内存储，保存快照副本
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]statemachine.Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]statemachine.Snapshot)}
}

func (s *MemoryStore) Save(ctx context.Context, key string, snap *statemachine.Snapshot) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	s.snaps[key] = copySnapshot(snap)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, key string) (*statemachine.Snapshot, error) {
	s.mu.RLock()
	snap, ok := s.snaps[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	cp := copySnapshot(&snap)
	return &cp, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.snaps, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.snaps))
	for k := range s.snaps {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) Close() error { return nil }

func copySnapshot(snap *statemachine.Snapshot) statemachine.Snapshot {
	cp := *snap
	if snap.Metadata != nil {
		cp.Metadata = make(map[string]interface{}, len(snap.Metadata))
		for k, v := range snap.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}
