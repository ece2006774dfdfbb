package statemachine

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/junbin-yang/go-fsmkit/pkg/config"
)

// Document 状态机定义文件
type Document struct {
	Machines map[string]MachineSpec `yaml:"machines" json:"machines"`
}

// MachineSpec 单个状态机的声明
type MachineSpec struct {
	Initial         State                     `yaml:"initial,omitempty" json:"initial,omitempty"`
	CollisionPolicy string                    `yaml:"collision_policy,omitempty" json:"collision_policy,omitempty"`
	AfterOnCancel   bool                      `yaml:"after_on_cancel,omitempty" json:"after_on_cancel,omitempty"`
	EmptyNoop       bool                      `yaml:"empty_transition_noop,omitempty" json:"empty_transition_noop,omitempty"`
	Transitions     map[string]TransitionSpec `yaml:"transitions" json:"transitions"`
}

// TransitionSpec 转换声明，钩子以注册表中的名称引用
type TransitionSpec struct {
	From            State           `yaml:"from" json:"from"`
	To              DestinationSpec `yaml:"to" json:"to"`
	TransitionState State           `yaml:"transition_state,omitempty" json:"transition_state,omitempty"`
	Before          string          `yaml:"before,omitempty" json:"before,omitempty"`
	Transition      string          `yaml:"transition,omitempty" json:"transition,omitempty"`
	Async           string          `yaml:"async,omitempty" json:"async,omitempty"`
	After           string          `yaml:"after,omitempty" json:"after,omitempty"`
	OnResolve       string          `yaml:"on_resolve,omitempty" json:"on_resolve,omitempty"`
}

// DestinationSpec 文件中的目标：字符串为单一目标，映射为扇出
type DestinationSpec struct {
	Single   State
	Branches map[string]State
}

func (d *DestinationSpec) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var single string
	if err := unmarshal(&single); err == nil {
		*d = DestinationSpec{Single: State(single)}
		return nil
	}
	var branches map[string]State
	if err := unmarshal(&branches); err != nil {
		return fmt.Errorf("destination must be a state or a key->state mapping: %w", err)
	}
	*d = DestinationSpec{Branches: branches}
	return nil
}

func (d DestinationSpec) MarshalYAML() (interface{}, error) {
	if d.Branches != nil {
		return d.Branches, nil
	}
	return string(d.Single), nil
}

func (d *DestinationSpec) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*d = DestinationSpec{Single: State(single)}
		return nil
	}
	var branches map[string]State
	if err := json.Unmarshal(data, &branches); err != nil {
		return fmt.Errorf("destination must be a state or a key->state mapping: %w", err)
	}
	*d = DestinationSpec{Branches: branches}
	return nil
}

func (d DestinationSpec) MarshalJSON() ([]byte, error) {
	if d.Branches != nil {
		return json.Marshal(d.Branches)
	}
	return json.Marshal(string(d.Single))
}

// Destination 转换为运行时目标
func (d DestinationSpec) Destination() Destination {
	if d.Branches != nil {
		return FanOut(d.Branches)
	}
	return To(d.Single)
}

// Names 状态机名称，排序后返回
func (doc *Document) Names() []string {
	names := make([]string, 0, len(doc.Machines))
	for name := range doc.Machines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadDocument 通过配置管理器读取定义文件，格式按后缀识别
func LoadDocument(path string, opts ...config.Option) (*Document, error) {
	doc := &Document{}
	cm := config.NewConfigManager(doc, opts...)
	defer cm.Close()
	if err := cm.LoadConfig(path); err != nil {
		return nil, err
	}
	if len(doc.Machines) == 0 {
		return nil, fmt.Errorf("%w: %s declares no machines", ErrInvalidDefinition, path)
	}
	return doc, nil
}

// ParseCollisionPolicy 解析策略名，空串为默认策略
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch s {
	case "", "fanout-only":
		return CollisionFanOutOnly, nil
	case "strict":
		return CollisionStrict, nil
	default:
		return CollisionFanOutOnly, fmt.Errorf("unknown collision policy %q", s)
	}
}

// ErrUnknownHook 定义文件引用了未注册的钩子
var ErrUnknownHook = errors.New("statemachine: unknown hook")

// UnknownHookError 引用了注册表中不存在的钩子
type UnknownHookError struct {
	Transition string
	Kind       string // before/transition/async/after/on_resolve
	Name       string
}

func (e *UnknownHookError) Error() string {
	return fmt.Sprintf("transition %q: %s hook %q is not registered", e.Transition, e.Kind, e.Name)
}

func (e *UnknownHookError) Unwrap() error { return ErrUnknownHook }

// Registry 按名称登记钩子，供定义文件引用
type Registry struct {
	mu        sync.RWMutex
	hooks     map[string]HookFunc
	asyncs    map[string]AsyncFunc
	resolvers map[string]ResolveFunc
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{
		hooks:     make(map[string]HookFunc),
		asyncs:    make(map[string]AsyncFunc),
		resolvers: make(map[string]ResolveFunc),
	}
}

// RegisterHook 登记 before/transition/after 钩子，同名覆盖
func (r *Registry) RegisterHook(name string, fn HookFunc) {
	r.mu.Lock()
	r.hooks[name] = fn
	r.mu.Unlock()
}

// RegisterAsync 登记异步转换体
func (r *Registry) RegisterAsync(name string, fn AsyncFunc) {
	r.mu.Lock()
	r.asyncs[name] = fn
	r.mu.Unlock()
}

// RegisterResolver 登记扇出解析函数
func (r *Registry) RegisterResolver(name string, fn ResolveFunc) {
	r.mu.Lock()
	r.resolvers[name] = fn
	r.mu.Unlock()
}

func (r *Registry) Hook(name string) (HookFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.hooks[name]
	return fn, ok
}

func (r *Registry) Async(name string) (AsyncFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.asyncs[name]
	return fn, ok
}

func (r *Registry) Resolver(name string) (ResolveFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.resolvers[name]
	return fn, ok
}

// Definition 按注册表把声明转换为运行时定义
func (r *Registry) Definition(name string, spec TransitionSpec) (Definition, error) {
	def := Definition{
		From:            spec.From,
		To:              spec.To.Destination(),
		TransitionState: spec.TransitionState,
	}

	hook := func(kind, ref string) (HookFunc, error) {
		if ref == "" {
			return nil, nil
		}
		fn, ok := r.Hook(ref)
		if !ok {
			return nil, &UnknownHookError{Transition: name, Kind: kind, Name: ref}
		}
		return fn, nil
	}

	var err error
	if def.Before, err = hook("before", spec.Before); err != nil {
		return def, err
	}
	if def.Transition, err = hook("transition", spec.Transition); err != nil {
		return def, err
	}
	if def.After, err = hook("after", spec.After); err != nil {
		return def, err
	}
	if spec.Async != "" {
		fn, ok := r.Async(spec.Async)
		if !ok {
			return def, &UnknownHookError{Transition: name, Kind: "async", Name: spec.Async}
		}
		def.Async = fn
	}
	if spec.OnResolve != "" {
		fn, ok := r.Resolver(spec.OnResolve)
		if !ok {
			return def, &UnknownHookError{Transition: name, Kind: "on_resolve", Name: spec.OnResolve}
		}
		def.OnResolve = fn
	}
	return def, nil
}

// BuildMachine 由声明构造状态机。声明中的策略在 opts 之后生效
func BuildMachine(name string, spec MachineSpec, reg *Registry, opts ...Option) (*Machine, error) {
	policy, err := ParseCollisionPolicy(spec.CollisionPolicy)
	if err != nil {
		return nil, fmt.Errorf("machine %q: %w", name, err)
	}

	transitions := make(Transitions, len(spec.Transitions))
	for tname, ts := range spec.Transitions {
		def, err := reg.Definition(tname, ts)
		if err != nil {
			return nil, fmt.Errorf("machine %q: %w", name, err)
		}
		transitions[tname] = def
	}

	all := append(append([]Option(nil), opts...), WithCollisionPolicy(policy))
	if spec.AfterOnCancel {
		all = append(all, WithAfterOnCancel(true))
	}
	if spec.EmptyNoop {
		all = append(all, WithEmptyTransitionNoop(true))
	}
	m, err := New(Config{Name: name, Initial: spec.Initial, Transitions: transitions}, all...)
	if err != nil {
		return nil, fmt.Errorf("machine %q: %w", name, err)
	}
	return m, nil
}

// BuildGroup 构造定义文件中的全部状态机，任一失败即返回
func BuildGroup(doc *Document, reg *Registry, opts ...Option) (*Group, error) {
	g := NewGroup()
	for _, name := range doc.Names() {
		m, err := BuildMachine(name, doc.Machines[name], reg, opts...)
		if err != nil {
			return nil, err
		}
		if err := g.Add(m); err != nil {
			return nil, err
		}
	}
	return g, nil
}
