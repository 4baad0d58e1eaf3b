package xfuse

import (
	"context"
	"sync"
)

// levelSeparator 级别前缀与名称之间的分隔符，构成 "level::name" 形式的注册键
const levelSeparator = "::"

// Registry 命名熔断器注册表。
//
// 同名（含级别前缀）的调用共享同一个熔断器实例，实例在首次使用时惰性创建。
// 所有方法并发安全。
type Registry struct {
	opts    *options
	metrics *Metrics

	defaults Policy
	perName  map[string]Policy

	mu       sync.RWMutex
	breakers map[string]*Breaker
	closed   bool
}

// New 创建注册表。
// 默认策略的来源优先级：WithDefaultPolicy > WithConfig 的 default 段 > 内置默认值。
//
// 使用示例:
//
//	reg, _ := xfuse.New(
//	    xfuse.WithLogger(logger),
//	    xfuse.WithDefaultPolicy(xfuse.Policy{Timeout: 2 * time.Second}),
//	)
//	defer reg.Close()
//
//	value, err := reg.Execute(ctx, "user-service", fetchUser,
//	    xfuse.WithArgs("uid-1"), xfuse.WithFallback(cachedUser))
func New(opts ...Option) (*Registry, error) {
	o := resolveOptions(opts)

	metrics, err := NewMetrics(o.meterProvider)
	if err != nil {
		return nil, err
	}

	defaults := DefaultPolicy()
	perName := map[string]Policy{}
	if o.config != nil {
		if err := o.config.Validate(); err != nil {
			return nil, err
		}
		defaults = o.config.Default.withDefaults()
		for name, p := range o.config.Breakers {
			perName[name] = p
		}
	}
	if o.defaultPolicy != nil {
		defaults = o.defaultPolicy.withDefaults()
		if err := defaults.Validate(); err != nil {
			return nil, err
		}
	}

	return &Registry{
		opts:     o,
		metrics:  metrics,
		defaults: defaults,
		perName:  perName,
		breakers: make(map[string]*Breaker),
	}, nil
}

// registryKey 组合级别前缀与名称。不同级别的同名熔断器互相独立。
func registryKey(name, level string) string {
	if level == "" {
		return name
	}
	return level + levelSeparator + name
}

// Resolve 返回指定名称的熔断器，不存在时按策略优先级创建：
// WithPolicy > 配置中的同名条目 > 注册表默认策略。
// 已存在的实例策略不变，后续调用的 WithPolicy 被忽略。
func (r *Registry) Resolve(name string, opts ...CallOption) (*Breaker, error) {
	if name == "" {
		return nil, ErrNameEmpty
	}
	co := resolveCallOptions(opts)
	key := registryKey(name, co.level)

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, ErrRegistryClosed
	}
	if b, ok := r.breakers[key]; ok {
		r.mu.RUnlock()
		return b, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	if b, ok := r.breakers[key]; ok {
		return b, nil
	}

	policy := r.defaults
	if p, ok := r.perName[key]; ok {
		policy = p
	}
	if co.policy != nil {
		policy = *co.policy
	}

	b, err := newBreaker(key, policy, r.opts, r.metrics)
	if err != nil {
		return nil, err
	}
	r.breakers[key] = b
	return b, nil
}

// Execute 按名称解析熔断器并执行受保护调用
func (r *Registry) Execute(ctx context.Context, name string, fn Func, opts ...CallOption) (any, error) {
	b, err := r.Resolve(name, opts...)
	if err != nil {
		return nil, err
	}
	return b.Execute(ctx, fn, opts...)
}

// Do 按名称解析熔断器并执行无返回值的受保护操作
func (r *Registry) Do(ctx context.Context, name string, fn func(ctx context.Context) error, opts ...CallOption) error {
	b, err := r.Resolve(name, opts...)
	if err != nil {
		return err
	}
	return b.Do(ctx, fn, opts...)
}

// ExecuteIn 按名称解析熔断器并执行受保护调用（泛型版本）
func ExecuteIn[T any](ctx context.Context, r *Registry, name string, fn func(ctx context.Context) (T, error), opts ...CallOption) (T, error) {
	b, err := r.Resolve(name, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return Execute(ctx, b, fn, opts...)
}

// Remove 关闭并移除指定名称的熔断器，不存在时为空操作
func (r *Registry) Remove(name string, opts ...CallOption) {
	co := resolveCallOptions(opts)
	key := registryKey(name, co.level)

	r.mu.Lock()
	b, ok := r.breakers[key]
	if ok {
		delete(r.breakers, key)
	}
	r.mu.Unlock()

	if ok {
		b.Close()
	}
}

// Names 返回当前已注册的熔断器键（含级别前缀），顺序不定
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.breakers))
	for key := range r.breakers {
		names = append(names, key)
	}
	return names
}

// Stats 返回全部熔断器的统计快照，键为含级别前缀的注册键
func (r *Registry) Stats() map[string]Stats {
	r.mu.RLock()
	targets := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		targets = append(targets, b)
	}
	r.mu.RUnlock()

	out := make(map[string]Stats, len(targets))
	for _, b := range targets {
		out[b.Name()] = b.Stats()
	}
	return out
}

// Close 关闭注册表及其全部熔断器。幂等。
// 关闭后 Resolve 与 Execute 返回 ErrRegistryClosed。
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	targets := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		targets = append(targets, b)
	}
	r.breakers = nil
	r.mu.Unlock()

	for _, b := range targets {
		b.Close()
	}
}
