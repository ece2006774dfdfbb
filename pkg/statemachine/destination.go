package statemachine

import "sort"

// Destination 转换目标：单一状态或按键扇出的多个状态
type Destination struct {
	single   State
	branches map[string]State
}

// To 单一目标
func To(state State) Destination {
	return Destination{single: state}
}

// FanOut 扇出目标，调用时由 OnResolve 返回的键决定
func FanOut(branches map[string]State) Destination {
	cp := make(map[string]State, len(branches))
	for k, v := range branches {
		cp[k] = v
	}
	return Destination{branches: cp}
}

// IsFanOut 是否为扇出目标
func (d Destination) IsFanOut() bool {
	return d.branches != nil
}

// IsZero 未设置目标
func (d Destination) IsZero() bool {
	return d.branches == nil && d.single == ""
}

// Single 单一目标状态
func (d Destination) Single() State {
	return d.single
}

// Branch 按键查找扇出目标
func (d Destination) Branch(key string) (State, bool) {
	s, ok := d.branches[key]
	return s, ok
}

// Keys 扇出键，按字典序
func (d Destination) Keys() []string {
	keys := make([]string, 0, len(d.branches))
	for k := range d.branches {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// States 所有可能的目标状态，扇出时按键序
func (d Destination) States() []State {
	if !d.IsFanOut() {
		if d.single == "" {
			return nil
		}
		return []State{d.single}
	}
	keys := d.Keys()
	states := make([]State, 0, len(keys))
	for _, k := range keys {
		states = append(states, d.branches[k])
	}
	return states
}
