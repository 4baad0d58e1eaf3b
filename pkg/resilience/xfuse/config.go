package xfuse

import (
	"fmt"
	"time"
)

// 默认策略值。
// 历史上该组件的不同文档给出过 10s 和 3s 两种默认超时，这里统一取 10s。
const (
	// DefaultTimeout 默认调用超时
	DefaultTimeout = 10 * time.Second
	// DefaultErrorThresholdPercentage 默认失败率阈值（百分比）
	DefaultErrorThresholdPercentage = 50.0
	// DefaultVolumeThreshold 默认最小请求数
	DefaultVolumeThreshold = 10
	// DefaultResetTimeout 默认熔断持续时间
	DefaultResetTimeout = 30 * time.Second
	// DefaultWindowDuration 默认滚动统计窗口时长
	DefaultWindowDuration = 10 * time.Second
	// DefaultWindowBuckets 默认滚动窗口桶数
	DefaultWindowBuckets = 10
	// DefaultCacheSize 默认结果缓存条目上限
	DefaultCacheSize = 1024
)

// NoTimeout 显式禁用调用超时的哨兵值
const NoTimeout time.Duration = -1

// Policy 单个熔断器的策略配置
//
// 策略在熔断器创建时固化，同名熔断器的后续调用不会更新策略。
// 零值字段使用默认值（见 Default* 常量），因此 Policy{} 即为默认策略。
type Policy struct {
	// Timeout 单次调用超时。0 使用默认值，NoTimeout(-1) 禁用超时。
	Timeout time.Duration `json:"timeout" yaml:"timeout" koanf:"timeout"`

	// ErrorThresholdPercentage 失败率阈值（0-100）。
	// 窗口内 (失败+超时)/放行 × 100 达到该值时熔断。0 使用默认值 50。
	ErrorThresholdPercentage float64 `json:"error_threshold_percentage" yaml:"error_threshold_percentage" koanf:"error_threshold_percentage"`

	// VolumeThreshold 最小请求数。窗口内放行数未达到该值前不做熔断判定。
	// 0 使用默认值 10。
	VolumeThreshold int64 `json:"volume_threshold" yaml:"volume_threshold" koanf:"volume_threshold"`

	// ResetTimeout 熔断持续时间。进入 Open 后等待该时长转入 HalfOpen。
	// 0 使用默认值 30s。
	ResetTimeout time.Duration `json:"reset_timeout" yaml:"reset_timeout" koanf:"reset_timeout"`

	// WindowDuration 滚动统计窗口总时长。0 使用默认值 10s。
	WindowDuration time.Duration `json:"window_duration" yaml:"window_duration" koanf:"window_duration"`

	// WindowBuckets 滚动窗口桶数。0 使用默认值 10。
	WindowBuckets int `json:"window_buckets" yaml:"window_buckets" koanf:"window_buckets"`

	// WarmUp 预热开关。开启后创建起一个窗口时长内的失败
	// 照常计入统计，但不参与熔断判定。
	WarmUp bool `json:"warm_up" yaml:"warm_up" koanf:"warm_up"`

	// Capacity 并发容量。在途调用达到该值后新调用被立即拒绝。
	// 0 表示不限并发。
	Capacity int64 `json:"capacity" yaml:"capacity" koanf:"capacity"`

	// Disabled 禁用开关。禁用后调用绕过熔断器直接执行，不做任何统计。
	Disabled bool `json:"disabled" yaml:"disabled" koanf:"disabled"`

	// Cache 结果缓存开关。开启后每个键的首个成功结果被记忆，
	// 后续同键调用直接返回缓存值，熔断打开期间缓存命中仍可服务。
	Cache bool `json:"cache" yaml:"cache" koanf:"cache"`

	// CacheTTL 缓存条目过期时间。0 表示永不过期，直到显式 Flush。
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl" koanf:"cache_ttl"`

	// CacheSize 缓存条目数上限（LRU 淘汰）。0 使用默认值 1024。
	CacheSize int `json:"cache_size" yaml:"cache_size" koanf:"cache_size"`
}

// DefaultPolicy 返回填充了所有默认值的策略
func DefaultPolicy() Policy {
	return Policy{}.withDefaults()
}

// withDefaults 返回零值字段填充为默认值的副本
func (p Policy) withDefaults() Policy {
	if p.Timeout == 0 {
		p.Timeout = DefaultTimeout
	}
	if p.ErrorThresholdPercentage == 0 {
		p.ErrorThresholdPercentage = DefaultErrorThresholdPercentage
	}
	if p.VolumeThreshold == 0 {
		p.VolumeThreshold = DefaultVolumeThreshold
	}
	if p.ResetTimeout == 0 {
		p.ResetTimeout = DefaultResetTimeout
	}
	if p.WindowDuration == 0 {
		p.WindowDuration = DefaultWindowDuration
	}
	if p.WindowBuckets == 0 {
		p.WindowBuckets = DefaultWindowBuckets
	}
	if p.CacheSize == 0 {
		p.CacheSize = DefaultCacheSize
	}
	return p
}

// Validate 校验策略合法性。应在 withDefaults 之后调用。
func (p Policy) Validate() error {
	if p.Timeout < NoTimeout {
		return fmt.Errorf("%w: timeout must be >= -1, got %v", ErrInvalidPolicy, p.Timeout)
	}
	if p.ErrorThresholdPercentage < 0 || p.ErrorThresholdPercentage > 100 {
		return fmt.Errorf("%w: error threshold percentage must be in [0, 100], got %v", ErrInvalidPolicy, p.ErrorThresholdPercentage)
	}
	if p.VolumeThreshold < 0 {
		return fmt.Errorf("%w: volume threshold must be >= 0, got %d", ErrInvalidPolicy, p.VolumeThreshold)
	}
	if p.ResetTimeout <= 0 {
		return fmt.Errorf("%w: reset timeout must be > 0, got %v", ErrInvalidPolicy, p.ResetTimeout)
	}
	if p.WindowBuckets <= 0 {
		return fmt.Errorf("%w: window buckets must be > 0, got %d", ErrInvalidPolicy, p.WindowBuckets)
	}
	if p.WindowDuration < time.Duration(p.WindowBuckets) {
		return fmt.Errorf("%w: window duration %v too short for %d buckets", ErrInvalidPolicy, p.WindowDuration, p.WindowBuckets)
	}
	if p.Capacity < 0 {
		return fmt.Errorf("%w: capacity must be >= 0, got %d", ErrInvalidPolicy, p.Capacity)
	}
	if p.CacheTTL < 0 {
		return fmt.Errorf("%w: cache TTL must be >= 0, got %v", ErrInvalidPolicy, p.CacheTTL)
	}
	if p.CacheSize <= 0 {
		return fmt.Errorf("%w: cache size must be > 0, got %d", ErrInvalidPolicy, p.CacheSize)
	}
	return nil
}

// Config 注册表级配置：默认策略 + 按名称覆盖
type Config struct {
	// Default 应用到所有未单独配置的熔断器的默认策略
	Default Policy `json:"default" yaml:"default" koanf:"default"`

	// Breakers 按熔断器名称（含层级前缀，如 "Sub::user-service"）
	// 覆盖的策略
	Breakers map[string]Policy `json:"breakers" yaml:"breakers" koanf:"breakers"`
}

// Validate 校验所有策略
func (c Config) Validate() error {
	if err := c.Default.withDefaults().Validate(); err != nil {
		return fmt.Errorf("default policy: %w", err)
	}
	for name, p := range c.Breakers {
		if err := p.withDefaults().Validate(); err != nil {
			return fmt.Errorf("breaker %q: %w", name, err)
		}
	}
	return nil
}
