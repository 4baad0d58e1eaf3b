package xfuse

import "golang.org/x/sync/semaphore"

// gate 并发闸门，限制单个熔断器的在途调用数
//
// 采用非阻塞拒绝语义：容量耗尽时调用立即以 ErrCapacityExceeded 失败，
// 不排队等待。nil gate 表示不限并发。
type gate struct {
	sem *semaphore.Weighted
}

// newGate 创建并发闸门，capacity <= 0 返回 nil（不限并发）
func newGate(capacity int64) *gate {
	if capacity <= 0 {
		return nil
	}
	return &gate{sem: semaphore.NewWeighted(capacity)}
}

// tryAcquire 非阻塞获取一个许可，nil gate 恒为成功
func (g *gate) tryAcquire() bool {
	if g == nil {
		return true
	}
	return g.sem.TryAcquire(1)
}

// release 归还许可。每条获取成功的执行路径都必须恰好归还一次。
func (g *gate) release() {
	if g == nil {
		return
	}
	g.sem.Release(1)
}
