package xfuse

import (
	"context"

	"github.com/omeyang/fusekit/pkg/observability/xlog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ErrorFilter 错误过滤谓词。
// 返回 true 的错误（如业务校验失败）不计入失败率和延迟统计，
// 但仍按失败路径走降级/向调用方传播。
type ErrorFilter func(err error) bool

// HealthCheck 健康检查探测函数。
// 配置后，熔断打开期间的恢复探测改由健康检查驱动：
// ResetTimeout 到期时执行健康检查，成功则直接闭合，失败则继续熔断。
type HealthCheck func(ctx context.Context) error

// Option 组件初始化选项函数，Registry 和 Breaker 共用。
// WithDefaultPolicy 和 WithConfig 仅对 Registry 生效，
// NewBreaker 的策略通过参数直接传入。
type Option func(*options)

// options 组件初始化选项配置（内部使用，小写）
type options struct {
	logger         xlog.Logger
	filter         ErrorFilter
	keyFn          KeyFunc
	health         HealthCheck
	subs           []subscription
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	defaultPolicy  *Policy
	config         *Config
}

func resolveOptions(opts []Option) *options {
	o := &options{
		logger: xlog.Nop(),
		keyFn:  DefaultKeyFunc,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// WithLogger 设置 Logger，传入 nil 时使用 xlog.Nop()
func WithLogger(logger xlog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = xlog.Nop()
		} else {
			o.logger = logger
		}
	}
}

// WithErrorFilter 设置错误过滤谓词
//
// 使用示例:
//
//	// 业务校验错误不触发熔断
//	brk, _ := xfuse.NewBreaker("user-service", xfuse.Policy{},
//	    xfuse.WithErrorFilter(func(err error) bool {
//	        return errors.Is(err, ErrBadRequest)
//	    }),
//	)
func WithErrorFilter(filter ErrorFilter) Option {
	return func(o *options) {
		o.filter = filter
	}
}

// WithCacheKeyFunc 设置自定义缓存键推导函数，替换 DefaultKeyFunc
func WithCacheKeyFunc(fn KeyFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.keyFn = fn
		}
	}
}

// WithHealthCheck 设置健康检查探测函数
func WithHealthCheck(fn HealthCheck) Option {
	return func(o *options) {
		o.health = fn
	}
}

// WithListener 订阅单一类型的事件。约束见 Listener 文档。
func WithListener(kind EventKind, fn Listener) Option {
	return func(o *options) {
		o.subs = append(o.subs, subscription{kind: kind, fn: fn})
	}
}

// WithAllEvents 订阅所有类型的事件。约束见 Listener 文档。
func WithAllEvents(fn Listener) Option {
	return func(o *options) {
		o.subs = append(o.subs, subscription{all: true, fn: fn})
	}
}

// WithMeterProvider 设置 OTel MeterProvider，nil 表示不收集指标
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithTracerProvider 设置 OTel TracerProvider，未设置时使用全局默认
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithDefaultPolicy 设置注册表的默认策略（仅 Registry 使用）
func WithDefaultPolicy(p Policy) Option {
	return func(o *options) {
		o.defaultPolicy = &p
	}
}

// WithConfig 用加载好的 Config 初始化注册表（仅 Registry 使用）。
// Config.Default 作为默认策略，Config.Breakers 按名称覆盖。
// 与 WithDefaultPolicy 同时使用时，后应用的选项生效。
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.config = &cfg
	}
}

// CallOption 单次调用选项函数
type CallOption func(*callOptions)

// callOptions 单次调用选项配置（内部使用，小写）
type callOptions struct {
	args            []any
	fallback        FallbackFunc
	fallbackArgs    []any
	hasFallbackArgs bool
	cacheKey        string
	level           string
	policy          *Policy
}

func resolveCallOptions(opts []CallOption) *callOptions {
	co := &callOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(co)
		}
	}
	return co
}

// WithArgs 设置传递给被包裹函数的参数，同时作为默认缓存键的推导来源
func WithArgs(args ...any) CallOption {
	return func(co *callOptions) {
		co.args = args
	}
}

// WithFallback 设置降级函数。主路径失败或被拒绝时调用，
// cause 为触发降级的原始错误。
func WithFallback(fb FallbackFunc) CallOption {
	return func(co *callOptions) {
		co.fallback = fb
	}
}

// WithFallbackArgs 设置降级函数的参数，未设置时复用 WithArgs 的参数
func WithFallbackArgs(args ...any) CallOption {
	return func(co *callOptions) {
		co.fallbackArgs = args
		co.hasFallbackArgs = true
	}
}

// WithCacheKey 显式指定本次调用的缓存键，跳过键推导
func WithCacheKey(key string) CallOption {
	return func(co *callOptions) {
		co.cacheKey = key
	}
}

// WithLevel 设置层级前缀。注册表用 "<Level>::<name>" 作为熔断器标识，
// 不同层级下的同名熔断器相互独立。仅 Registry 的调用入口使用。
func WithLevel(level string) CallOption {
	return func(co *callOptions) {
		co.level = level
	}
}

// WithPolicy 设置首次使用某名称时创建熔断器的策略。
// 策略在创建时固化，对已存在的熔断器无效。仅 Registry 的调用入口使用。
func WithPolicy(p Policy) CallOption {
	return func(co *callOptions) {
		co.policy = &p
	}
}
