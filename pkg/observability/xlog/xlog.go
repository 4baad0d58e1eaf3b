package xlog

import (
	"context"
	"log/slog"
	"time"
)

// Logger 日志接口
//
// 所有方法都需要 context.Context 参数，确保追踪信息正确传播。
// 方法签名只接受 slog.Attr，保证类型安全。
type Logger interface {
	// Debug 记录 Debug 级别日志
	Debug(ctx context.Context, msg string, attrs ...slog.Attr)

	// Info 记录 Info 级别日志
	Info(ctx context.Context, msg string, attrs ...slog.Attr)

	// Warn 记录 Warn 级别日志
	Warn(ctx context.Context, msg string, attrs ...slog.Attr)

	// Error 记录 Error 级别日志
	Error(ctx context.Context, msg string, attrs ...slog.Attr)

	// With 返回带额外属性的派生 Logger
	With(attrs ...slog.Attr) Logger
}

// 编译时接口检查
var (
	_ Logger = (*xlogger)(nil)
	_ Logger = nopLogger{}
)

// xlogger Logger 接口的 slog 实现
type xlogger struct {
	handler slog.Handler
}

// New 基于 slog.Handler 创建 Logger。
// handler 为 nil 时返回 Nop()。
func New(handler slog.Handler) Logger {
	if handler == nil {
		return Nop()
	}
	return &xlogger{handler: handler}
}

// Default 返回基于 slog 全局默认 Handler 的 Logger。
func Default() Logger {
	return &xlogger{handler: slog.Default().Handler()}
}

func (l *xlogger) log(ctx context.Context, level slog.Level, msg string, attrs []slog.Attr) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.handler.Enabled(ctx, level) {
		return
	}

	// 库内日志不记录调用方源码位置，pc 置零即可
	r := slog.NewRecord(time.Now(), level, msg, 0)
	r.AddAttrs(attrs...)

	// Handler 错误静默丢弃：日志失败不应扩散到业务调用链
	_ = l.handler.Handle(ctx, r)
}

func (l *xlogger) Debug(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelDebug, msg, attrs)
}

func (l *xlogger) Info(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelInfo, msg, attrs)
}

func (l *xlogger) Warn(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelWarn, msg, attrs)
}

func (l *xlogger) Error(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelError, msg, attrs)
}

func (l *xlogger) With(attrs ...slog.Attr) Logger {
	if len(attrs) == 0 {
		return l
	}
	return &xlogger{handler: l.handler.WithAttrs(attrs)}
}

// nopLogger 空实现，丢弃所有日志
type nopLogger struct{}

// Nop 返回丢弃所有日志的 Logger。
// fusekit 组件未配置日志时的默认值。
func Nop() Logger {
	return nopLogger{}
}

func (nopLogger) Debug(context.Context, string, ...slog.Attr) {}
func (nopLogger) Info(context.Context, string, ...slog.Attr)  {}
func (nopLogger) Warn(context.Context, string, ...slog.Attr)  {}
func (nopLogger) Error(context.Context, string, ...slog.Attr) {}
func (nopLogger) With(...slog.Attr) Logger                    { return nopLogger{} }

// Err 构造错误属性，nil error 输出空字符串。
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
