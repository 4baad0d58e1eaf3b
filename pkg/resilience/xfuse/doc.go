// Package xfuse 提供基于滚动统计窗口的熔断器，保护系统免受级联故障影响。
//
// # 设计理念
//
// xfuse 在滚动分桶窗口上统计失败率，按失败率+最小请求量双阈值熔断，
// 并在熔断路径上整合了并发闸门、结果缓存、超时竞速与降级。
// 熔断器可独立创建（NewBreaker），也可由 Registry 按名称统一管理，
// 同名调用自动共享实例。
//
// # 熔断器状态
//
//   - StateClosed（闭合）：正常状态，调用正常放行
//   - StateOpen（打开）：熔断状态，调用快速失败，命中缓存的调用仍可服务
//   - StateHalfOpen（半开）：探测状态，只放行一个探测调用，
//     探测成功即闭合，失败则重新打开
//
// # 熔断判定
//
// 窗口内 (失败+超时)/放行 的百分比达到 ErrorThresholdPercentage，
// 且窗口内放行数达到 VolumeThreshold 时熔断。被 WithErrorFilter
// 过滤的错误（如业务校验失败）不计入失败率。
//
// # 默认值
//
//   - 调用超时 10s，错误率阈值 50%，最小请求量 10
//   - 复位等待 30s，统计窗口 10s / 10 桶
//
// # 使用示例
//
//	reg, _ := xfuse.New(xfuse.WithLogger(logger))
//	defer reg.Close()
//
//	value, err := reg.Execute(ctx, "user-service",
//	    func(ctx context.Context, args ...any) (any, error) {
//	        return fetchUser(ctx, args[0].(string))
//	    },
//	    xfuse.WithArgs("uid-1"),
//	    xfuse.WithFallback(func(ctx context.Context, cause error, args ...any) (any, error) {
//	        return cachedUser(args[0].(string)), nil
//	    }),
//	)
package xfuse
