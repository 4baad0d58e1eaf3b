package xfuse

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// tracerName 追踪器与 Meter 的 scope 名称
	tracerName = "xfuse"

	// instrumentationVersion 观测组件版本号
	instrumentationVersion = "0.1.0"
)

// Span 操作名称
const (
	spanNameExecute = "xfuse.Execute"
)

// Span 属性名称（Metrics 也复用这些常量，确保 trace 与 metrics 键名一致）
const (
	attrBreaker   = "xfuse.breaker"
	attrState     = "xfuse.state"
	attrOutcome   = "xfuse.outcome"
	attrFromState = "xfuse.from_state"
	attrToState   = "xfuse.to_state"
	attrCacheHit  = "xfuse.cache_hit"
	attrFallback  = "xfuse.fallback_used"
)

// getTracer 获取 tracer 实例。
// 配置了 TracerProvider 时使用它，否则使用全局默认。
func getTracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(tracerName, trace.WithInstrumentationVersion(instrumentationVersion))
}

// startSpan 创建一个内部类型的观测跨度
func startSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// setSpanError 标记跨度失败并记录错误
func setSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// setSpanOK 标记跨度成功
func setSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
