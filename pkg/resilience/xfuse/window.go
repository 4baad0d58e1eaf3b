package xfuse

import (
	"math"
	"slices"
	"time"
)

// maxLatencySamplesPerBucket 单桶保留的延迟样本上限。
// 超出后样本被丢弃，延迟总和仍然累加，均值不受影响，
// 极端流量下分位数退化为前 N 个样本的近似值。
const maxLatencySamplesPerBucket = 1024

// trackedPercentiles 统计快照暴露的分位数
var trackedPercentiles = []float64{0.5, 0.9, 0.95, 0.99, 0.995}

// bucket 滚动窗口中的单个时间桶
//
// epoch 是桶覆盖时段的序号（自 Unix 纪元起的第 N 个桶周期）。
// 环形复用时通过 epoch 比对判断桶内容是否过期，无需后台轮转定时器。
type bucket struct {
	epoch int64

	fires       int64
	successes   int64
	failures    int64
	timeouts    int64
	rejects     int64
	gateRejects int64
	cacheHits   int64
	cacheMisses int64
	fallbacks   int64

	latencySum time.Duration
	latencies  []time.Duration
}

// window 固定时长的分桶滚动统计窗口
//
// 非并发安全，调用方（Breaker）持锁访问。
//
// 设计决策: 桶轮转采用惰性策略——写入和聚合时按当前时间推导桶序号，
// 序号不匹配的桶视为过期并就地清零复用。相比定时器驱动的显式轮转，
// 惰性轮转天然没有后台 goroutine，也就不存在测试中泄漏定时器的问题。
type window struct {
	buckets   []bucket
	bucketDur time.Duration
}

// newWindow 创建滚动窗口。dur 为窗口总时长，n 为桶数。
func newWindow(dur time.Duration, n int) *window {
	return &window{
		buckets:   make([]bucket, n),
		bucketDur: dur / time.Duration(n),
	}
}

// epochAt 返回 now 所属的桶序号
func (w *window) epochAt(now time.Time) int64 {
	return now.UnixNano() / int64(w.bucketDur)
}

// at 返回 now 所属的桶，过期桶就地清零复用
func (w *window) at(now time.Time) *bucket {
	epoch := w.epochAt(now)
	b := &w.buckets[epoch%int64(len(w.buckets))]
	if b.epoch != epoch {
		*b = bucket{epoch: epoch}
	}
	return b
}

// recordLatency 向 now 所属的桶追加一个成功调用的延迟样本
func (w *window) recordLatency(now time.Time, d time.Duration) {
	b := w.at(now)
	b.latencySum += d
	if len(b.latencies) < maxLatencySamplesPerBucket {
		b.latencies = append(b.latencies, d)
	}
}

// reset 清空所有桶（半开探测成功后重新计数）
func (w *window) reset() {
	for i := range w.buckets {
		w.buckets[i] = bucket{}
	}
}

// totals 窗口内仍然存活的桶的聚合计数
type totals struct {
	fires       int64
	successes   int64
	failures    int64
	timeouts    int64
	rejects     int64
	gateRejects int64
	cacheHits   int64
	cacheMisses int64
	fallbacks   int64

	latencySum time.Duration
	latencies  []time.Duration
}

// aggregate 聚合 now 时刻窗口内的所有存活桶。
// 桶存活条件：epoch 落在 (nowEpoch - 桶数, nowEpoch] 区间内。
func (w *window) aggregate(now time.Time) totals {
	nowEpoch := w.epochAt(now)
	oldest := nowEpoch - int64(len(w.buckets))

	var t totals
	for i := range w.buckets {
		b := &w.buckets[i]
		if b.epoch <= oldest || b.epoch > nowEpoch {
			continue
		}
		t.fires += b.fires
		t.successes += b.successes
		t.failures += b.failures
		t.timeouts += b.timeouts
		t.rejects += b.rejects
		t.gateRejects += b.gateRejects
		t.cacheHits += b.cacheHits
		t.cacheMisses += b.cacheMisses
		t.fallbacks += b.fallbacks
		t.latencySum += b.latencySum
		t.latencies = append(t.latencies, b.latencies...)
	}
	return t
}

// errorPercentage 返回 (失败+超时)/放行 的百分比，无放行时为 0
func (t totals) errorPercentage() float64 {
	if t.fires == 0 {
		return 0
	}
	return float64(t.failures+t.timeouts) / float64(t.fires) * 100
}

// latencyMean 返回成功调用的平均延迟，无成功调用时为 0
func (t totals) latencyMean() time.Duration {
	if t.successes == 0 {
		return 0
	}
	return t.latencySum / time.Duration(t.successes)
}

// percentiles 惰性计算延迟分位数，仅在统计查询时调用
func (t totals) percentiles() map[float64]time.Duration {
	result := make(map[float64]time.Duration, len(trackedPercentiles))
	if len(t.latencies) == 0 {
		for _, p := range trackedPercentiles {
			result[p] = 0
		}
		return result
	}

	sorted := slices.Clone(t.latencies)
	slices.Sort(sorted)
	for _, p := range trackedPercentiles {
		result[p] = percentileOf(sorted, p)
	}
	return result
}

// percentileOf 最近秩法取分位数，sorted 必须已升序排列且非空
func percentileOf(sorted []time.Duration, p float64) time.Duration {
	rank := int(math.Ceil(p * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}
