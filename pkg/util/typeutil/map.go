package typeutil

import (
	"sync"

	"go.uber.org/atomic"
)

// ConcurrentMap 是 sync.Map 的泛型封装，额外维护元素个数。
type ConcurrentMap[K comparable, V any] struct {
	inner sync.Map
	len   atomic.Int64
}

func NewConcurrentMap[K comparable, V any]() *ConcurrentMap[K, V] {
	return &ConcurrentMap[K, V]{}
}

// Insert 写入键值，覆盖已有值。
func (m *ConcurrentMap[K, V]) Insert(key K, value V) {
	if _, loaded := m.inner.Swap(key, value); !loaded {
		m.len.Inc()
	}
}

func (m *ConcurrentMap[K, V]) Get(key K) (V, bool) {
	var zero V
	value, ok := m.inner.Load(key)
	if !ok {
		return zero, false
	}
	return value.(V), true
}

// GetOrInsert 返回已有值；不存在时写入 value 并返回，loaded 表示值是否已存在。
func (m *ConcurrentMap[K, V]) GetOrInsert(key K, value V) (V, bool) {
	actual, loaded := m.inner.LoadOrStore(key, value)
	if !loaded {
		m.len.Inc()
	}
	return actual.(V), loaded
}

func (m *ConcurrentMap[K, V]) Remove(key K) {
	if _, loaded := m.inner.LoadAndDelete(key); loaded {
		m.len.Dec()
	}
}

func (m *ConcurrentMap[K, V]) Len() int {
	return int(m.len.Load())
}

// Range 遍历所有键值，回调返回 false 时终止。
func (m *ConcurrentMap[K, V]) Range(fn func(key K, value V) bool) {
	m.inner.Range(func(key, value any) bool {
		return fn(key.(K), value.(V))
	})
}
