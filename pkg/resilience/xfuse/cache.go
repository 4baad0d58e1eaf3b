package xfuse

import (
	"encoding/json"
	"reflect"
	"strconv"
	"sync"
	"time"
	"unsafe"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// KeyFunc 从调用参数推导缓存键。
// 返回错误时本次调用跳过缓存（既不读也不写）。
type KeyFunc func(args ...any) (string, error)

// DefaultKeyFunc 默认缓存键推导：参数列表做稳定 JSON 序列化后取 xxhash。
// 参数含不可序列化类型（channel、函数等）时返回错误，调用退化为不走缓存。
func DefaultKeyFunc(args ...any) (string, error) {
	if len(args) == 0 {
		return "_", nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(xxhash.Sum64(data), 16), nil
}

// resultCache 单个熔断器的结果缓存
//
// 基于 hashicorp/golang-lru/v2/expirable：LRU 容量上界 + 条目级 TTL。
// TTL 为 0 时条目永不过期，直到显式 Flush。
// 只保留每个键的首个成功结果，后续成功不覆盖也不刷新 TTL。
type resultCache struct {
	lru       *expirable.LRU[string, any]
	closeOnce sync.Once
}

// newResultCache 创建结果缓存。ttl <= 0 表示永不过期。
func newResultCache(size int, ttl time.Duration) *resultCache {
	return &resultCache{
		// expirable.NewLRU 对 ttl <= 0 使用内部的"十年"哨兵值，等效永不过期
		lru: expirable.NewLRU[string, any](size, nil, ttl),
	}
}

// get 查询缓存，过期条目视为未命中
func (c *resultCache) get(key string) (any, bool) {
	return c.lru.Get(key)
}

// setIfAbsent 仅在键不存在时写入，保证"首个成功结果"语义
func (c *resultCache) setIfAbsent(key string, value any) {
	if _, ok := c.lru.Peek(key); ok {
		return
	}
	c.lru.Add(key, value)
}

// flush 清空所有缓存条目
func (c *resultCache) flush() {
	c.lru.Purge()
}

// close 清空缓存并停止底层库的 TTL 清理 goroutine，幂等
func (c *resultCache) close() {
	c.closeOnce.Do(func() {
		c.lru.Purge()
		stopCleanupGoroutine(c.lru)
	})
}

// stopCleanupGoroutine 停止 expirable.LRU 内部的过期清理 goroutine。
// 返回 true 表示成功停止，false 表示降级为无操作。
//
// 设计决策: golang-lru/v2@v2.0.7 在 TTL > 0 时启动后台清理 goroutine，
// 但未提供公开的 Close 方法。这里通过 reflect + unsafe 访问内部 done
// 通道（chan struct{}）并关闭它，使 goroutine 退出，避免测试中被 goleak
// 捕获为泄漏。升级 golang-lru 版本时需验证内部字段未变化；若上游提供了
// 公开 Close，应移除此函数改用上游实现。
func stopCleanupGoroutine(lru any) (stopped bool) {
	defer func() {
		// done 已关闭时 close 会 panic，静默捕获并返回 false
		if r := recover(); r != nil {
			stopped = false
		}
	}()

	v := reflect.ValueOf(lru)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return false
	}

	doneField := v.Elem().FieldByName("done")
	if !doneField.IsValid() || doneField.IsNil() {
		return false
	}
	if doneField.Type() != reflect.TypeOf(make(chan struct{})) {
		return false
	}

	doneCh := *(*chan struct{})(unsafe.Pointer(doneField.UnsafeAddr())) //nolint:gosec // 有意使用 unsafe 访问内部字段
	close(doneCh)
	return true
}
