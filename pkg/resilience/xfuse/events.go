package xfuse

import (
	"strconv"
	"time"
)

// EventKind 熔断器事件类型
type EventKind int

// 事件类型枚举。事件是纯观测性的，监听器无法影响熔断器行为。
const (
	// EventFire 调用被放行并开始执行
	EventFire EventKind = iota
	// EventSuccess 调用成功
	EventSuccess
	// EventFailure 调用失败（未被 ErrorFilter 过滤）
	EventFailure
	// EventTimeout 调用超时
	EventTimeout
	// EventReject 熔断打开或半开名额占用导致的拒绝
	EventReject
	// EventGateRejected 并发闸门容量耗尽导致的拒绝
	EventGateRejected
	// EventFallback 降级函数被调用且成功返回
	EventFallback
	// EventCacheHit 结果缓存命中
	EventCacheHit
	// EventCacheMiss 结果缓存未命中
	EventCacheMiss
	// EventOpen 状态切换为 Open
	EventOpen
	// EventClose 状态切换为 Closed
	EventClose
	// EventHalfOpen 状态切换为 HalfOpen
	EventHalfOpen
	// EventHealthCheckFailed 健康检查探测失败
	EventHealthCheckFailed
	// EventShutdown 熔断器被关闭
	EventShutdown

	// eventKindCount 事件类型总数（内部使用）
	eventKindCount
)

// String 返回事件类型的字符串表示
func (k EventKind) String() string {
	switch k {
	case EventFire:
		return "fire"
	case EventSuccess:
		return "success"
	case EventFailure:
		return "failure"
	case EventTimeout:
		return "timeout"
	case EventReject:
		return "reject"
	case EventGateRejected:
		return "gate_rejected"
	case EventFallback:
		return "fallback"
	case EventCacheHit:
		return "cache_hit"
	case EventCacheMiss:
		return "cache_miss"
	case EventOpen:
		return "open"
	case EventClose:
		return "close"
	case EventHalfOpen:
		return "half_open"
	case EventHealthCheckFailed:
		return "health_check_failed"
	case EventShutdown:
		return "shutdown"
	default:
		return "EventKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Event 熔断器事件
type Event struct {
	// Kind 事件类型
	Kind EventKind
	// Breaker 产生事件的熔断器名称（含层级前缀）
	Breaker string
	// Time 事件发生时间
	Time time.Time
}

// Listener 事件监听器
//
// 监听器在事件产生点同步调用，且可能持有熔断器内部锁。
// 调用方必须遵守以下约束：
//   - 严禁在监听器中调用 Breaker/Registry 自身的任何方法，否则会死锁
//   - 应避免耗时操作，如需复杂处理应将事件发送到外部 channel 异步消费
type Listener func(Event)

// subscription 一条监听订阅
type subscription struct {
	kind EventKind
	all  bool
	fn   Listener
}

// eventTable 按事件类型索引的监听器查找表
type eventTable struct {
	byKind [eventKindCount][]Listener
}

// newEventTable 从订阅列表构建查找表
func newEventTable(subs []subscription) *eventTable {
	t := &eventTable{}
	for _, s := range subs {
		if s.fn == nil {
			continue
		}
		if s.all {
			for k := EventKind(0); k < eventKindCount; k++ {
				t.byKind[k] = append(t.byKind[k], s.fn)
			}
			continue
		}
		if s.kind >= 0 && s.kind < eventKindCount {
			t.byKind[s.kind] = append(t.byKind[s.kind], s.fn)
		}
	}
	return t
}

// emit 同步通知所有监听器，单个监听器 panic 被隔离，不扩散到业务调用链
func (t *eventTable) emit(kind EventKind, breaker string) {
	listeners := t.byKind[kind]
	if len(listeners) == 0 {
		return
	}
	ev := Event{Kind: kind, Breaker: breaker, Time: time.Now()}
	for _, fn := range listeners {
		safeInvoke(fn, ev)
	}
}

func safeInvoke(fn Listener, ev Event) {
	defer func() {
		_ = recover()
	}()
	fn(ev)
}
