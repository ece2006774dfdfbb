// Package store 状态机快照的持久化后端：内存、本地 YAML 文件与 Redis。
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/junbin-yang/go-fsmkit/pkg/statemachine"
)

// ErrNotFound 快照不存在
var ErrNotFound = errors.New("store: snapshot not found")

// Store 快照存储，key 通常为状态机名称
type Store interface {
	// Save 保存快照，已存在时覆盖
	Save(ctx context.Context, key string, snap *statemachine.Snapshot) error

	// Load 读取快照，不存在时返回 ErrNotFound
	Load(ctx context.Context, key string) (*statemachine.Snapshot, error)

	Delete(ctx context.Context, key string) error

	// List 所有已保存的 key，排序后返回
	List(ctx context.Context) ([]string, error)

	Close() error
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("store: key cannot be empty")
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("store: invalid key %q", key)
	}
	return nil
}
