package xfuse

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// 设计决策: 指标前缀使用 "xfuse.*"，与 OTel Meter scope name 保持一致
// （Meter("xfuse")），各包自治命名。如需统一命名空间，应在采集端处理。
const (
	// metricNameExecuteTotal 调用次数计数器
	metricNameExecuteTotal = "xfuse.execute.total"
	// metricNameExecuteDuration 调用耗时直方图
	metricNameExecuteDuration = "xfuse.execute.duration"
	// metricNameTransitionTotal 状态切换次数计数器
	metricNameTransitionTotal = "xfuse.state.transition.total"
	// metricNameCacheTotal 缓存查询次数计数器
	metricNameCacheTotal = "xfuse.cache.total"
)

// durationBuckets 耗时直方图的桶边界
var durationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}

// Metrics 熔断器指标收集器
type Metrics struct {
	executeTotal    metric.Int64Counter
	executeDuration metric.Float64Histogram
	transitionTotal metric.Int64Counter
	cacheTotal      metric.Int64Counter
}

// NewMetrics 创建指标收集器。
// meterProvider 为 nil 时返回 nil（不收集指标），所有记录方法均为 nil 安全。
func NewMetrics(meterProvider metric.MeterProvider) (*Metrics, error) {
	if meterProvider == nil {
		return nil, nil
	}

	meter := meterProvider.Meter(tracerName,
		metric.WithInstrumentationVersion(instrumentationVersion),
	)

	m := &Metrics{}
	var err error
	if m.executeTotal, err = meter.Int64Counter(metricNameExecuteTotal,
		metric.WithDescription("熔断器调用次数"), metric.WithUnit("{call}")); err != nil {
		return nil, err
	}
	if m.executeDuration, err = meter.Float64Histogram(metricNameExecuteDuration,
		metric.WithDescription("熔断器调用耗时"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...)); err != nil {
		return nil, err
	}
	if m.transitionTotal, err = meter.Int64Counter(metricNameTransitionTotal,
		metric.WithDescription("熔断器状态切换次数"), metric.WithUnit("{transition}")); err != nil {
		return nil, err
	}
	if m.cacheTotal, err = meter.Int64Counter(metricNameCacheTotal,
		metric.WithDescription("结果缓存查询次数"), metric.WithUnit("{lookup}")); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordExecute 记录一次调用的最终走向
// outcome 取事件名："success"、"failure"、"timeout"、"reject"、"gate_rejected" 等
func (m *Metrics) RecordExecute(ctx context.Context, breaker, outcome string, duration time.Duration) {
	if m == nil {
		return
	}

	// 使用 context.WithoutCancel 确保即使 ctx 被取消，指标仍能记录
	metricsCtx := context.WithoutCancel(ctx)

	attrs := metric.WithAttributes(
		attribute.String(attrBreaker, breaker),
		attribute.String(attrOutcome, outcome),
	)
	m.executeTotal.Add(metricsCtx, 1, attrs)
	m.executeDuration.Record(metricsCtx, duration.Seconds(), attrs)
}

// RecordTransition 记录一次状态切换
func (m *Metrics) RecordTransition(ctx context.Context, breaker string, from, to State) {
	if m == nil {
		return
	}

	metricsCtx := context.WithoutCancel(ctx)

	m.transitionTotal.Add(metricsCtx, 1, metric.WithAttributes(
		attribute.String(attrBreaker, breaker),
		attribute.String(attrFromState, from.String()),
		attribute.String(attrToState, to.String()),
	))
}

// RecordCache 记录一次缓存查询
func (m *Metrics) RecordCache(ctx context.Context, breaker string, hit bool) {
	if m == nil {
		return
	}

	metricsCtx := context.WithoutCancel(ctx)

	m.cacheTotal.Add(metricsCtx, 1, metric.WithAttributes(
		attribute.String(attrBreaker, breaker),
		attribute.Bool(attrCacheHit, hit),
	))
}
