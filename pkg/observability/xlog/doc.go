// Package xlog 提供 fusekit 内部使用的结构化日志门面。
//
// xlog 基于标准库 log/slog 构建，只做两件事：
//   - 强制 context 传递，确保追踪信息随日志传播
//   - 方法签名只接受 slog.Attr，避免隐式 key-value 转换开销
//
// # 基本使用
//
//	logger := xlog.New(slog.NewJSONHandler(os.Stdout, nil))
//	logger.Info(ctx, "circuit opened", slog.String("breaker", "user-service"))
//
// # 设计决策
//
// fusekit 是库而非应用，日志属于可选的诊断输出。因此 xlog 刻意保持最小化：
// 不提供动态级别、全局单例、日志轮转等应用级能力，调用方通过传入自定义
// slog.Handler 获得这些功能。组件默认使用 Nop()，不产生任何输出。
package xlog
