package xfuse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/omeyang/fusekit/pkg/observability/xlog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// State 熔断器状态
type State int

const (
	// StateClosed 闭合状态，调用正常放行
	StateClosed State = iota
	// StateOpen 打开状态，调用快速失败
	StateOpen
	// StateHalfOpen 半开状态，只放行一个探测调用
	StateHalfOpen
)

// String 返回状态的字符串表示
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Func 被熔断器保护的函数。
// args 来自调用选项 WithArgs，同时是默认缓存键的推导来源。
type Func func(ctx context.Context, args ...any) (any, error)

// FallbackFunc 降级函数。
// cause 为触发降级的原始错误（调用失败、超时或各类拒绝）。
type FallbackFunc func(ctx context.Context, cause error, args ...any) (any, error)

// Stats 熔断器统计快照（滚动窗口内的聚合值，copy-out，与内部状态无共享）
type Stats struct {
	// State 当前状态
	State State
	// Fires 放行并开始执行的调用数
	Fires int64
	// Successes 成功数
	Successes int64
	// Failures 失败数（不含被过滤的错误）
	Failures int64
	// Timeouts 超时数
	Timeouts int64
	// Rejects 熔断拒绝数（Open 快速失败 + 半开名额占用）
	Rejects int64
	// GateRejections 并发容量拒绝数
	GateRejections int64
	// CacheHits 缓存命中数
	CacheHits int64
	// CacheMisses 缓存未命中数
	CacheMisses int64
	// Fallbacks 降级成功数
	Fallbacks int64
	// ErrorPercentage (失败+超时)/放行 的百分比
	ErrorPercentage float64
	// LatencyMean 成功调用的平均延迟
	LatencyMean time.Duration
	// Percentiles 成功调用的延迟分位数（p50/p90/p95/p99/p99.5）
	Percentiles map[float64]time.Duration
}

// outcome 单次调用的结果分类（内部使用）
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeTimeout
)

// Breaker 单个命名熔断器
//
// 状态机和滚动统计由同一把互斥锁串行化，statistics 快照为 copy-out。
// 必须通过 NewBreaker 或 Registry 创建，使用完毕后调用 Close 释放定时器。
type Breaker struct {
	name    string
	policy  Policy
	logger  xlog.Logger
	filter  ErrorFilter
	keyFn   KeyFunc
	health  HealthCheck
	events  *eventTable
	metrics *Metrics
	tracer  trace.Tracer

	gate  *gate
	cache *resultCache

	mu          sync.Mutex
	state       State
	window      *window
	openedAt    time.Time
	resetTimer  *time.Timer
	probing     bool
	warmUpUntil time.Time
	disposed    bool
}

// NewBreaker 创建独立的熔断器实例。
// policy 的零值字段使用默认值；策略在创建时固化。
//
// 使用示例:
//
//	brk, _ := xfuse.NewBreaker("user-service", xfuse.Policy{
//	    Timeout:                  2 * time.Second,
//	    ErrorThresholdPercentage: 50,
//	    VolumeThreshold:          4,
//	    ResetTimeout:             time.Second,
//	}, xfuse.WithLogger(logger))
//	defer brk.Close()
func NewBreaker(name string, policy Policy, opts ...Option) (*Breaker, error) {
	o := resolveOptions(opts)
	metrics, err := NewMetrics(o.meterProvider)
	if err != nil {
		return nil, err
	}
	return newBreaker(name, policy, o, metrics)
}

// newBreaker 内部构造函数，Registry 复用时共享 Metrics 实例
func newBreaker(name string, policy Policy, o *options, metrics *Metrics) (*Breaker, error) {
	if name == "" {
		return nil, ErrNameEmpty
	}
	policy = policy.withDefaults()
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	b := &Breaker{
		name:    name,
		policy:  policy,
		logger:  o.logger.With(slog.String("component", "xfuse"), slog.String("breaker", name)),
		filter:  o.filter,
		keyFn:   o.keyFn,
		health:  o.health,
		events:  newEventTable(o.subs),
		metrics: metrics,
		tracer:  getTracer(o.tracerProvider),
		state:   StateClosed,
		window:  newWindow(policy.WindowDuration, policy.WindowBuckets),
		gate:    newGate(policy.Capacity),
	}
	if policy.Cache {
		b.cache = newResultCache(policy.CacheSize, policy.CacheTTL)
	}
	if policy.WarmUp {
		b.warmUpUntil = time.Now().Add(policy.WindowDuration)
	}

	b.logger.Debug(context.Background(), "breaker created",
		slog.Duration("timeout", policy.Timeout),
		slog.Float64("error_threshold_percentage", policy.ErrorThresholdPercentage),
		slog.Int64("volume_threshold", policy.VolumeThreshold),
		slog.Duration("reset_timeout", policy.ResetTimeout))
	return b, nil
}

// Name 返回熔断器名称
func (b *Breaker) Name() string {
	return b.name
}

// Policy 返回生效的策略（含默认值填充）
func (b *Breaker) Policy() Policy {
	return b.policy
}

// State 返回当前状态
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats 返回统计快照
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.window.aggregate(time.Now())
	return Stats{
		State:           b.state,
		Fires:           t.fires,
		Successes:       t.successes,
		Failures:        t.failures,
		Timeouts:        t.timeouts,
		Rejects:         t.rejects,
		GateRejections:  t.gateRejects,
		CacheHits:       t.cacheHits,
		CacheMisses:     t.cacheMisses,
		Fallbacks:       t.fallbacks,
		ErrorPercentage: t.errorPercentage(),
		LatencyMean:     t.latencyMean(),
		Percentiles:     t.percentiles(),
	}
}

// Reset 手动复位为 Closed 并清空统计，用于运维场景的强制恢复
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed {
		return
	}
	if b.state != StateClosed {
		b.transitionLocked(StateClosed, time.Now())
		return
	}
	b.window.reset()
}

// FlushCache 清空结果缓存，未开启缓存时为空操作
func (b *Breaker) FlushCache() {
	if b.cache != nil {
		b.cache.flush()
	}
}

// Close 关闭熔断器：停止复位定时器、清空缓存、发出 shutdown 事件。幂等。
// 关闭后所有调用返回 ErrBreakerDisposed。
func (b *Breaker) Close() {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}
	b.disposed = true
	b.stopResetTimerLocked()
	b.events.emit(EventShutdown, b.name)
	b.mu.Unlock()

	if b.cache != nil {
		b.cache.close()
	}
	b.logger.Debug(context.Background(), "breaker shut down")
}

// Do 执行无返回值的受保护操作
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error, opts ...CallOption) error {
	if fn == nil {
		return ErrNilFunc
	}
	_, err := b.Execute(ctx, func(ctx context.Context, _ ...any) (any, error) {
		return nil, fn(ctx)
	}, opts...)
	return err
}

// Execute 执行受熔断器保护的调用。
//
// 单次调用的完整流程：缓存查询（Open 状态下命中仍可服务）→ 熔断判定 →
// 并发闸门 → 带超时竞速的函数执行 → 结果统计与状态机更新 → 降级。
// 并发许可在每条执行路径上都会归还，归还先于状态机更新。
func (b *Breaker) Execute(ctx context.Context, fn Func, opts ...CallOption) (any, error) {
	if b == nil {
		return nil, ErrNilBreaker
	}
	if ctx == nil {
		return nil, ErrNilContext
	}
	if fn == nil {
		return nil, ErrNilFunc
	}
	co := resolveCallOptions(opts)

	// 禁用时绕过熔断器直接执行，不做任何统计
	if b.policy.Disabled {
		return fn(ctx, co.args...)
	}

	ctx, span := startSpan(ctx, b.tracer, spanNameExecute,
		attribute.String(attrBreaker, b.name))
	start := time.Now()

	res := b.execute(ctx, co, fn)

	span.SetAttributes(
		attribute.String(attrOutcome, res.outcome),
		attribute.Bool(attrFallback, res.fallbackUsed),
	)
	if res.err != nil {
		setSpanError(span, res.err)
	} else {
		setSpanOK(span)
	}
	span.End()
	b.metrics.RecordExecute(ctx, b.name, res.outcome, time.Since(start))

	return res.value, res.err
}

// Execute 执行受熔断器保护的调用（泛型版本）
//
// 此函数是包级函数而非方法，因为 Go 不支持方法的类型参数。
// 缓存命中时返回缓存值的类型断言结果。
func Execute[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error), opts ...CallOption) (T, error) {
	var zero T
	if b == nil {
		return zero, ErrNilBreaker
	}
	if fn == nil {
		return zero, ErrNilFunc
	}

	result, err := b.Execute(ctx, func(ctx context.Context, _ ...any) (any, error) {
		return fn(ctx)
	}, opts...)
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}
	if typed, ok := result.(T); ok {
		return typed, nil
	}
	return zero, nil
}

// execResult 单次调用的内部结果
type execResult struct {
	value        any
	err          error
	outcome      string
	fallbackUsed bool
}

// callReturn 被包裹函数的返回值载体
type callReturn struct {
	value any
	err   error
}

func (b *Breaker) execute(ctx context.Context, co *callOptions, fn Func) execResult {
	now := time.Now()

	// 缓存查询先于熔断判定：Open 状态下缓存命中仍可服务
	var cacheKey string
	if b.cache != nil {
		cacheKey = b.deriveKey(ctx, co)
		if cacheKey != "" {
			if v, ok := b.cache.get(cacheKey); ok {
				b.recordCacheHit(ctx)
				return execResult{value: v, outcome: EventCacheHit.String()}
			}
			b.recordCacheMiss(ctx)
		}
	}

	probe, admitErr := b.admit(now)
	if admitErr != nil {
		if errors.Is(admitErr, ErrBreakerDisposed) {
			return execResult{err: admitErr, outcome: "disposed"}
		}
		res := b.withFallback(ctx, co, admitErr)
		res.outcome = EventReject.String()
		return res
	}

	if !b.gate.tryAcquire() {
		if probe {
			b.cancelProbe()
		}
		b.recordGateReject()
		res := b.withFallback(ctx, co, newFuseError(ErrCapacityExceeded, b.name, b.State()))
		res.outcome = EventGateRejected.String()
		return res
	}
	released := false
	release := func() {
		if !released {
			released = true
			b.gate.release()
		}
	}
	defer release()

	b.recordFire()

	callCtx := ctx
	cancel := context.CancelFunc(func() {})
	if b.policy.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, b.policy.Timeout)
	}
	defer cancel()

	invokeStart := time.Now()
	done := make(chan callReturn, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callReturn{err: fmt.Errorf("xfuse: wrapped function panicked: %v", r)}
			}
		}()
		v, err := fn(callCtx, co.args...)
		done <- callReturn{value: v, err: err}
	}()

	select {
	case r := <-done:
		latency := time.Since(invokeStart)
		release()
		switch {
		case r.err == nil:
			b.afterCall(outcomeSuccess, latency, probe)
			if b.cache != nil && cacheKey != "" {
				b.cache.setIfAbsent(cacheKey, r.value)
			}
			return execResult{value: r.value, outcome: EventSuccess.String()}
		case b.filter != nil && b.filter(r.err):
			// 被过滤的错误不计入失败率和延迟统计，但仍走降级/传播路径
			b.afterFiltered(probe)
			res := b.withFallback(ctx, co, r.err)
			res.outcome = "filtered"
			return res
		default:
			b.afterCall(outcomeFailure, latency, probe)
			res := b.withFallback(ctx, co, r.err)
			res.outcome = EventFailure.String()
			return res
		}

	case <-callCtx.Done():
		// 取消子 context，在途调用的最终结果被缓冲 channel 吸收后丢弃，
		// 不会污染已按超时记录的统计
		cancel()
		release()
		if ctx.Err() != nil {
			// 调用方自身取消：不计入错误统计，直接传播
			b.afterFiltered(probe)
			return execResult{err: ctx.Err(), outcome: "canceled"}
		}
		b.afterCall(outcomeTimeout, 0, probe)
		res := b.withFallback(ctx, co, newFuseError(ErrTimeout, b.name, b.State()))
		res.outcome = EventTimeout.String()
		return res
	}
}

// withFallback 失败路径的降级处理。
// 无降级函数时原样返回 cause；降级失败时返回 FallbackError。
func (b *Breaker) withFallback(ctx context.Context, co *callOptions, cause error) execResult {
	if co.fallback == nil {
		return execResult{err: cause}
	}

	args := co.args
	if co.hasFallbackArgs {
		args = co.fallbackArgs
	}
	v, err := co.fallback(ctx, cause, args...)
	if err != nil {
		return execResult{err: &FallbackError{Err: err, Cause: cause}}
	}
	b.recordFallback()
	return execResult{value: v, fallbackUsed: true}
}

// deriveKey 推导缓存键，失败时返回空串（本次调用跳过缓存）
func (b *Breaker) deriveKey(ctx context.Context, co *callOptions) string {
	if co.cacheKey != "" {
		return co.cacheKey
	}
	key, err := b.keyFn(co.args...)
	if err != nil {
		b.logger.Debug(ctx, "cache key derivation failed, bypassing cache", xlog.Err(err))
		return ""
	}
	return key
}

// ========================================
// 状态机（调用点均持有 b.mu 或在此加锁）
// ========================================

// admit 熔断判定。放行时返回的 probe 标记本次调用是否为半开探测。
func (b *Breaker) admit(now time.Time) (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disposed {
		return false, ErrBreakerDisposed
	}

	if b.state == StateOpen {
		// 复位定时器触发延迟时的兜底：调用路径也可惰性触发半开切换。
		// 配置了健康检查时恢复完全由定时器驱动，不走此路径。
		if b.health == nil && now.Sub(b.openedAt) >= b.policy.ResetTimeout {
			b.transitionLocked(StateHalfOpen, now)
		} else {
			b.recordRejectLocked(now)
			return false, newFuseError(ErrOpenState, b.name, StateOpen)
		}
	}

	if b.state == StateHalfOpen {
		if b.probing {
			b.recordRejectLocked(now)
			return false, newFuseError(ErrTooManyRequests, b.name, StateHalfOpen)
		}
		b.probing = true
		return true, nil
	}

	return false, nil
}

// afterCall 记录调用结果并推进状态机。
// 在并发许可归还后调用。
func (b *Breaker) afterCall(kind outcome, latency time.Duration, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	switch kind {
	case outcomeSuccess:
		b.window.at(now).successes++
		b.window.recordLatency(now, latency)
		b.events.emit(EventSuccess, b.name)
	case outcomeFailure:
		b.window.at(now).failures++
		b.events.emit(EventFailure, b.name)
	case outcomeTimeout:
		b.window.at(now).timeouts++
		b.events.emit(EventTimeout, b.name)
	}

	if probe {
		b.probing = false
		if b.state == StateHalfOpen {
			if kind == outcomeSuccess {
				b.transitionLocked(StateClosed, now)
			} else {
				b.transitionLocked(StateOpen, now)
			}
		}
		return
	}

	if b.state == StateClosed && kind != outcomeSuccess {
		b.evaluateTripLocked(now)
	}
}

// afterFiltered 被过滤错误（或调用方取消）的收尾：
// 不记录统计、不触发状态切换。探测调用释放探测名额但不判定结果——
// 业务层错误说明服务可达，由下一个调用继续探测。
func (b *Breaker) afterFiltered(probe bool) {
	if !probe {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
}

// evaluateTripLocked 熔断判定：窗口内放行数达到最小请求数且失败率达标时打开。
// 预热期内失败照常入窗，但判定被抑制。
func (b *Breaker) evaluateTripLocked(now time.Time) {
	if b.policy.WarmUp && now.Before(b.warmUpUntil) {
		return
	}
	t := b.window.aggregate(now)
	if t.fires >= b.policy.VolumeThreshold && t.errorPercentage() >= b.policy.ErrorThresholdPercentage {
		b.transitionLocked(StateOpen, now)
	}
}

// transitionLocked 执行状态切换并触发事件、日志与指标
func (b *Breaker) transitionLocked(to State, now time.Time) {
	from := b.state
	if from == to {
		return
	}
	b.state = to

	switch to {
	case StateOpen:
		b.openedAt = now
		b.probing = false
		b.armResetTimerLocked()
		b.events.emit(EventOpen, b.name)
		b.logger.Warn(context.Background(), "circuit opened",
			slog.String("from", from.String()))
	case StateHalfOpen:
		b.probing = false
		b.events.emit(EventHalfOpen, b.name)
		b.logger.Info(context.Background(), "circuit half-open, probing")
	case StateClosed:
		b.window.reset()
		b.probing = false
		b.stopResetTimerLocked()
		b.events.emit(EventClose, b.name)
		b.logger.Info(context.Background(), "circuit closed",
			slog.String("from", from.String()))
	}

	b.metrics.RecordTransition(context.Background(), b.name, from, to)
}

// armResetTimerLocked 装载复位定时器，Open 状态的恢复探测由它驱动
func (b *Breaker) armResetTimerLocked() {
	b.stopResetTimerLocked()
	b.resetTimer = time.AfterFunc(b.policy.ResetTimeout, b.onResetTimeout)
}

func (b *Breaker) stopResetTimerLocked() {
	if b.resetTimer != nil {
		b.resetTimer.Stop()
		b.resetTimer = nil
	}
}

// onResetTimeout 复位定时器到期：无健康检查时转入半开等待流量探测，
// 有健康检查时由健康检查充当探测
func (b *Breaker) onResetTimeout() {
	b.mu.Lock()
	if b.disposed || b.state != StateOpen {
		b.mu.Unlock()
		return
	}
	if b.health == nil {
		b.transitionLocked(StateHalfOpen, time.Now())
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	b.runHealthProbe()
}

// runHealthProbe 在定时器 goroutine 中执行健康检查探测
func (b *Breaker) runHealthProbe() {
	ctx := context.Background()
	cancel := context.CancelFunc(func() {})
	if b.policy.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, b.policy.Timeout)
	}
	err := b.health(ctx)
	cancel()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed || b.state != StateOpen {
		return
	}
	if err != nil {
		b.events.emit(EventHealthCheckFailed, b.name)
		b.logger.Warn(context.Background(), "health check failed, circuit stays open", xlog.Err(err))
		b.armResetTimerLocked()
		return
	}
	b.transitionLocked(StateClosed, time.Now())
}

// cancelProbe 探测调用在闸门处被拒时释放探测名额
func (b *Breaker) cancelProbe() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
}

// ========================================
// 计数与事件记录
// ========================================

func (b *Breaker) recordFire() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.window.at(time.Now()).fires++
	b.events.emit(EventFire, b.name)
}

func (b *Breaker) recordRejectLocked(now time.Time) {
	b.window.at(now).rejects++
	b.events.emit(EventReject, b.name)
}

func (b *Breaker) recordGateReject() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.window.at(time.Now()).gateRejects++
	b.events.emit(EventGateRejected, b.name)
}

func (b *Breaker) recordFallback() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.window.at(time.Now()).fallbacks++
	b.events.emit(EventFallback, b.name)
}

func (b *Breaker) recordCacheHit(ctx context.Context) {
	b.mu.Lock()
	b.window.at(time.Now()).cacheHits++
	b.events.emit(EventCacheHit, b.name)
	b.mu.Unlock()
	b.metrics.RecordCache(ctx, b.name, true)
}

func (b *Breaker) recordCacheMiss(ctx context.Context) {
	b.mu.Lock()
	b.window.at(time.Now()).cacheMisses++
	b.events.emit(EventCacheMiss, b.name)
	b.mu.Unlock()
	b.metrics.RecordCache(ctx, b.name, false)
}
