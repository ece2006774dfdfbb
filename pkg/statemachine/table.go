package statemachine

import (
	"fmt"
	"sort"
)

// CollisionPolicy 编译转换表时的冲突检测策略
type CollisionPolicy int

const (
	// CollisionFanOutOnly 仅检测扇出分支冲突，单一目标静默覆盖
	CollisionFanOutOnly CollisionPolicy = iota
	// CollisionStrict 单一目标重复占用同一单元格也视为冲突
	CollisionStrict
)

func (p CollisionPolicy) String() string {
	switch p {
	case CollisionStrict:
		return "strict"
	default:
		return "fanout-only"
	}
}

// Edge 转换表单元格
type Edge struct {
	Name       string
	Definition *Definition
}

// Table 编译后的 from -> to -> 转换定义 查找矩阵，只读
type Table struct {
	matrix map[State]map[State]Edge
	defs   map[string]*Definition
	policy CollisionPolicy
}

// CompileOption 编译选项
type CompileOption func(*Table)

// WithTableCollisionPolicy 设置冲突检测策略
func WithTableCollisionPolicy(p CollisionPolicy) CompileOption {
	return func(t *Table) {
		t.policy = p
	}
}

// Compile 编译转换定义。遍历按转换名排序，冲突报告可复现
func Compile(transitions Transitions, opts ...CompileOption) (*Table, error) {
	t := &Table{
		matrix: make(map[State]map[State]Edge),
		defs:   make(map[string]*Definition, len(transitions)),
	}
	for _, opt := range opts {
		opt(t)
	}

	names := make([]string, 0, len(transitions))
	for name := range transitions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := transitions[name]
		if err := validateDefinition(name, &def); err != nil {
			return nil, err
		}
		if err := t.insert(name, &def); err != nil {
			return nil, err
		}
		t.defs[name] = &def
	}
	return t, nil
}

func validateDefinition(name string, def *Definition) error {
	if name == "" {
		return fmt.Errorf("%w: empty transition name", ErrInvalidDefinition)
	}
	if def.From == "" {
		return fmt.Errorf("%w: transition %q has no source state", ErrInvalidDefinition, name)
	}
	if def.To.IsZero() {
		return fmt.Errorf("%w: transition %q has no destination", ErrInvalidDefinition, name)
	}
	if def.To.IsFanOut() {
		if len(def.To.branches) == 0 {
			return fmt.Errorf("%w: transition %q has an empty fan-out", ErrInvalidDefinition, name)
		}
		if def.OnResolve == nil {
			return &MissingCallbackError{Transition: name, Callback: "OnResolve"}
		}
	}
	return nil
}

func (t *Table) insert(name string, def *Definition) error {
	row, ok := t.matrix[def.From]
	if !ok {
		row = make(map[State]Edge)
		t.matrix[def.From] = row
	}

	edge := Edge{Name: name, Definition: def}
	if !def.To.IsFanOut() {
		to := def.To.Single()
		if existing, taken := row[to]; taken && t.policy == CollisionStrict {
			return &CollisionError{From: def.From, To: to, Transition: name, Existing: existing.Name}
		}
		row[to] = edge
		return nil
	}

	for _, key := range def.To.Keys() {
		to := def.To.branches[key]
		if existing, taken := row[to]; taken {
			return &CollisionError{From: def.From, To: to, Transition: name, Existing: existing.Name}
		}
		row[to] = edge
	}
	return nil
}

// IsValid from->to 直接存在或通配符行包含 to
func (t *Table) IsValid(from, to State) bool {
	if _, ok := t.matrix[from][to]; ok {
		return true
	}
	_, ok := t.matrix[Wildcard][to]
	return ok
}

// Lookup 精确查找单元格，不回退到通配符
func (t *Table) Lookup(from, to State) (Edge, bool) {
	e, ok := t.matrix[from][to]
	return e, ok
}

// Definition 按转换名取编译后的定义
func (t *Table) Definition(name string) (*Definition, bool) {
	d, ok := t.defs[name]
	return d, ok
}

// Names 所有转换名，排序后返回
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.defs))
	for name := range t.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Policy 编译时使用的冲突策略
func (t *Table) Policy() CollisionPolicy {
	return t.policy
}

// Sources 所有源状态，排序后返回
func (t *Table) Sources() []State {
	out := make([]State, 0, len(t.matrix))
	for from := range t.matrix {
		out = append(out, from)
	}
	sortStates(out)
	return out
}

// Destinations 某源状态下登记的目标，排序后返回
func (t *Table) Destinations(from State) []State {
	row := t.matrix[from]
	out := make([]State, 0, len(row))
	for to := range row {
		out = append(out, to)
	}
	sortStates(out)
	return out
}

func sortStates(s []State) {
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
}
