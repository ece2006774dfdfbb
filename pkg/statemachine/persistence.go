package statemachine

import (
	"fmt"
	"time"
)

// Snapshot 状态快照
type Snapshot struct {
	Machine      string                 `json:"machine" yaml:"machine"`
	Record       Record                 `json:"record" yaml:"record"`
	DisplayState State                  `json:"state" yaml:"state"`
	Timestamp    time.Time              `json:"timestamp" yaml:"timestamp"`
	Metadata     map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Snapshot 创建当前状态快照
func (m *Machine) Snapshot(metadata map[string]interface{}) *Snapshot {
	return &Snapshot{
		Machine:      m.name,
		Record:       m.model.Record(),
		DisplayState: m.model.DisplayState(),
		Timestamp:    time.Now(),
		Metadata:     metadata,
	}
}

// Restore 恢复快照。异步转换进行中时拒绝，快照本身处于 STARTED 时也拒绝，
// 因为挂起操作无法随快照恢复
func (m *Machine) Restore(s *Snapshot) error {
	if s == nil {
		return fmt.Errorf("%w: nil snapshot", ErrInvalidDefinition)
	}
	if m.model.Record().InFlight() || s.Record.InFlight() {
		return ErrTransitionPending
	}
	if s.Record.Current == "" {
		return fmt.Errorf("%w: snapshot has no current state", ErrInvalidDefinition)
	}

	display := s.DisplayState
	if display == "" {
		display = DefaultInitial
	}
	m.model.replace(s.Record, display)
	return nil
}
