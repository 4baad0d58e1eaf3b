// Package observability 提供可观测性相关的子包。
//
// 子包列表：
//   - xlog: 结构化日志，基于 log/slog 扩展
//
// 设计原则：
//   - 遵循 OpenTelemetry 语义规范
//   - 所有日志方法携带 context.Context，便于接入追踪信息
//   - 组件库自身只依赖 Logger 接口，不绑定具体日志实现
package observability
