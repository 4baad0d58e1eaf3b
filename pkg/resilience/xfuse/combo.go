package xfuse

import (
	"context"
	"errors"
	"math"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// safeUintToInt 将 uint 安全转换为 int，超过 MaxInt 的值截断到 MaxInt。
// 用于将 retry-go 的重试次数 (uint) 传递给用户回调 (int)。
func safeUintToInt(n uint) int {
	if n > uint(math.MaxInt) {
		return math.MaxInt
	}
	return int(n)
}

// FuseRetryer 熔断器+重试组合执行器
//
// 组合熔断器和重试，提供更强的容错能力：
//   - 熔断器负责快速失败，防止级联故障
//   - 重试负责处理瞬时故障，提高成功率
//   - 每次重试尝试都经过熔断器检查和统计
//
// 遇到熔断拒绝类错误（Retryable() == false）时立即停止重试：
// 熔断器已判定下游不可用，继续重试只会空转等待。
// 底层使用 avast/retry-go/v5 实现重试逻辑。
type FuseRetryer struct {
	breaker  *Breaker
	attempts uint
	delay    time.Duration
	maxDelay time.Duration
	onRetry  func(attempt int, err error)
}

// RetryOption FuseRetryer 配置选项
type RetryOption func(*FuseRetryer)

// WithAttempts 设置最大尝试次数（含首次调用），默认 3
func WithAttempts(n uint) RetryOption {
	return func(fr *FuseRetryer) {
		if n > 0 {
			fr.attempts = n
		}
	}
}

// WithRetryDelay 设置指数退避的初始延迟，默认 100ms
func WithRetryDelay(d time.Duration) RetryOption {
	return func(fr *FuseRetryer) {
		if d > 0 {
			fr.delay = d
		}
	}
}

// WithMaxRetryDelay 设置退避延迟上限，默认 2s
func WithMaxRetryDelay(d time.Duration) RetryOption {
	return func(fr *FuseRetryer) {
		if d > 0 {
			fr.maxDelay = d
		}
	}
}

// WithOnRetry 设置重试回调，attempt 从 1 开始表示第几次失败
func WithOnRetry(f func(attempt int, err error)) RetryOption {
	return func(fr *FuseRetryer) {
		if f != nil {
			fr.onRetry = f
		}
	}
}

// NewFuseRetryer 创建熔断器+重试组合执行器
//
// 示例:
//
//	brk, _ := xfuse.NewBreaker("payment", xfuse.Policy{})
//	combo, _ := xfuse.NewFuseRetryer(brk,
//	    xfuse.WithAttempts(3),
//	    xfuse.WithRetryDelay(50*time.Millisecond),
//	)
//	err := combo.Do(ctx, chargeCard)
func NewFuseRetryer(breaker *Breaker, opts ...RetryOption) (*FuseRetryer, error) {
	if breaker == nil {
		return nil, ErrNilBreaker
	}
	fr := &FuseRetryer{
		breaker:  breaker,
		attempts: 3,
		delay:    100 * time.Millisecond,
		maxDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(fr)
	}
	return fr, nil
}

// Breaker 返回底层熔断器
func (fr *FuseRetryer) Breaker() *Breaker {
	return fr.breaker
}

// buildOptions 构建 retry-go 的选项。
// 每次调用重建选项切片，避免跨调用共享闭包状态。
func (fr *FuseRetryer) buildOptions(ctx context.Context) []retry.Option {
	opts := make([]retry.Option, 0, 6)
	opts = append(opts,
		retry.Context(ctx),
		retry.Attempts(fr.attempts),
		retry.RetryIf(retryableError),
		retry.DelayType(func(n uint, _ error, _ retry.DelayContext) time.Duration {
			// retry-go v5 中 n 从 1 开始；2 倍指数退避，封顶 maxDelay
			d := float64(fr.delay) * math.Pow(2, float64(safeUintToInt(n)-1))
			if d > float64(fr.maxDelay) || math.IsNaN(d) {
				return fr.maxDelay
			}
			return time.Duration(d)
		}),
		retry.LastErrorOnly(true),
	)
	if fr.onRetry != nil {
		opts = append(opts, retry.OnRetry(func(n uint, err error) {
			// retry-go v5 中 OnRetry 的 n 从 0 开始，转换为 1-based
			fr.onRetry(safeUintToInt(n)+1, err)
		}))
	}
	return opts
}

// retryableError 重试判定：熔断拒绝与实例关闭不可重试，
// 降级失败时按触发降级的原始错误判定
func retryableError(err error) bool {
	if errors.Is(err, ErrBreakerDisposed) || errors.Is(err, ErrRegistryClosed) {
		return false
	}
	var fbErr *FallbackError
	if errors.As(err, &fbErr) {
		err = fbErr.Cause
	}
	var fuseErr *FuseError
	if errors.As(err, &fuseErr) {
		return fuseErr.Retryable()
	}
	return true
}

// Do 执行带熔断和重试的操作，每次尝试都经过熔断器
func (fr *FuseRetryer) Do(ctx context.Context, fn func(ctx context.Context) error, callOpts ...CallOption) error {
	if fr == nil || fr.breaker == nil {
		return ErrNilBreaker
	}
	if ctx == nil {
		return ErrNilContext
	}
	if fn == nil {
		return ErrNilFunc
	}
	return retry.New(fr.buildOptions(ctx)...).Do(func() error {
		return fr.breaker.Do(ctx, fn, callOpts...)
	})
}

// ExecuteWithRetry 执行带熔断和重试的操作（泛型版本）
//
// 每次重试尝试都经过熔断器检查和记录。连续失败可能在重试过程中
// 触发熔断，此后剩余的重试被快速失败且不再继续。
func ExecuteWithRetry[T any](ctx context.Context, fr *FuseRetryer, fn func(ctx context.Context) (T, error), callOpts ...CallOption) (T, error) {
	var zero T
	if fr == nil || fr.breaker == nil {
		return zero, ErrNilBreaker
	}
	if ctx == nil {
		return zero, ErrNilContext
	}
	if fn == nil {
		return zero, ErrNilFunc
	}
	return retry.NewWithData[T](fr.buildOptions(ctx)...).Do(func() (T, error) {
		return Execute(ctx, fr.breaker, fn, callOpts...)
	})
}
