package xfuse

import (
	"errors"
	"fmt"
)

// 熔断器运行时错误
var (
	// ErrOpenState 熔断器处于 Open 状态，调用被快速失败拒绝
	ErrOpenState = errors.New("xfuse: circuit is open")

	// ErrTooManyRequests 半开状态下探测调用已占用唯一探测名额
	ErrTooManyRequests = errors.New("xfuse: half-open probe already in flight")

	// ErrCapacityExceeded 并发闸门容量耗尽，调用未被执行
	ErrCapacityExceeded = errors.New("xfuse: concurrency capacity exceeded")

	// ErrTimeout 被包裹函数超过配置的超时时间
	ErrTimeout = errors.New("xfuse: call timed out")

	// ErrUnavailable 服务不可用（被拒绝且无降级函数时的最终错误）
	ErrUnavailable = errors.New("xfuse: service unavailable")

	// ErrBreakerDisposed 熔断器已被 Close，不再接受调用
	ErrBreakerDisposed = errors.New("xfuse: breaker has been shut down")

	// ErrRegistryClosed 注册表已被 Close
	ErrRegistryClosed = errors.New("xfuse: registry has been closed")
)

// 参数校验错误
var (
	// ErrNameEmpty 熔断器名称为空
	ErrNameEmpty = errors.New("xfuse: breaker name is empty")

	// ErrNilContext 传入的 context 为 nil
	ErrNilContext = errors.New("xfuse: context cannot be nil")

	// ErrNilFunc 传入的操作函数为 nil
	ErrNilFunc = errors.New("xfuse: function cannot be nil")

	// ErrNilBreaker 传入的 Breaker 为 nil
	ErrNilBreaker = errors.New("xfuse: breaker cannot be nil")

	// ErrInvalidPolicy 策略配置无效
	ErrInvalidPolicy = errors.New("xfuse: invalid policy")

	// ErrUnsupportedFormat 配置格式不受支持
	ErrUnsupportedFormat = errors.New("xfuse: unsupported config format")

	// ErrConfigParse 配置数据解析失败
	ErrConfigParse = errors.New("xfuse: config parse failed")
)

// FuseError 熔断器错误包装类型
//
// 包装拒绝类错误（ErrOpenState、ErrTooManyRequests、ErrCapacityExceeded）
// 和超时错误（ErrTimeout），携带熔断器名称与发生时的状态，
// 便于调用方在日志和监控中直接读取。
//
// FuseError 实现 Retryable()：熔断拒绝意味着下游不可用，重试器
// （见 FuseRetryer）遇到此类错误应立即停止重试；超时可能是瞬时抖动，可以重试。
type FuseError struct {
	Err   error  // 原始 sentinel 错误
	Name  string // 熔断器名称
	State State  // 错误发生时的熔断器状态
}

// Error 实现 error 接口
func (e *FuseError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("fuse %s: %v", e.Name, e.Err)
	}
	return e.Err.Error()
}

// Unwrap 实现 errors.Unwrap 接口
func (e *FuseError) Unwrap() error {
	return e.Err
}

// Is 让拒绝类 FuseError 同时匹配 ErrUnavailable。
// 调用方可统一用 errors.Is(err, ErrUnavailable) 判断"调用未被执行"，
// 而不必逐一枚举拒绝原因。超时不属于拒绝（函数已被执行），不参与匹配。
func (e *FuseError) Is(target error) bool {
	if target != ErrUnavailable {
		return false
	}
	switch e.Err {
	case ErrOpenState, ErrTooManyRequests, ErrCapacityExceeded:
		return true
	}
	return false
}

// Retryable 是否值得重试。
// 超时可能是瞬时抖动，重试有意义；各类拒绝（Open 快速失败、探测名额占用、
// 容量耗尽）说明当前不具备执行条件，重试只会加剧下游压力。
func (e *FuseError) Retryable() bool {
	return errors.Is(e.Err, ErrTimeout)
}

// newFuseError 创建熔断器错误
//
// 设计决策: State 由调用方在错误产生点传入，而非事后查询 Breaker.State()。
// 错误产生到查询之间其他 goroutine 可能触发状态变化，事后查询会引入
// TOCTOU 竞态，导致 State 字段与错误发生时的实际状态不一致。
func newFuseError(err error, name string, state State) *FuseError {
	return &FuseError{
		Err:   err,
		Name:  name,
		State: state,
	}
}

// FallbackError 降级函数自身失败时的错误
//
// 同时携带降级错误与触发降级的原始错误，两者都参与 errors.Is/As 匹配。
type FallbackError struct {
	Err   error // 降级函数返回的错误
	Cause error // 触发降级的原始错误
}

// Error 实现 error 接口
func (e *FallbackError) Error() string {
	return fmt.Sprintf("xfuse: fallback failed: %v (primary: %v)", e.Err, e.Cause)
}

// Unwrap 同时暴露降级错误与原始错误
func (e *FallbackError) Unwrap() []error {
	return []error{e.Err, e.Cause}
}

// IsOpen 检查错误是否是熔断器打开错误
func IsOpen(err error) bool {
	return errors.Is(err, ErrOpenState)
}

// IsTooManyRequests 检查错误是否是半开探测名额占用错误
func IsTooManyRequests(err error) bool {
	return errors.Is(err, ErrTooManyRequests)
}

// IsCapacityExceeded 检查错误是否是并发容量耗尽错误
func IsCapacityExceeded(err error) bool {
	return errors.Is(err, ErrCapacityExceeded)
}

// IsTimeout 检查错误是否是调用超时错误
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsUnavailable 检查错误是否属于"调用未被执行"的拒绝类错误。
// 包括熔断打开、半开名额占用、并发容量耗尽，以及显式的 ErrUnavailable。
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsFuseError 检查错误是否是熔断器产生的错误（拒绝或超时）
func IsFuseError(err error) bool {
	var fe *FuseError
	return errors.As(err, &fe)
}
