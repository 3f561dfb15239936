// Package mysync provides typed wrappers around the sync package.
package mysync

import (
	"maps"
	"sync"
)

// Mutex guards a value of type T. The value is only handed out while the lock is held.
type Mutex[T any] struct {
	mu sync.RWMutex
	v  T
}

type MutexUnlock struct {
	mu *sync.RWMutex
}

type MutexRUnlock struct {
	mu *sync.RWMutex
}

func NewMutex[T any](v T) *Mutex[T] {
	return &Mutex[T]{v: v}
}

func (mu *Mutex[T]) Lock() (T, MutexUnlock) {
	mu.mu.Lock()
	return mu.v, MutexUnlock{&mu.mu}
}

func (mu *Mutex[T]) RLock() (T, MutexRUnlock) {
	mu.mu.RLock()
	return mu.v, MutexRUnlock{&mu.mu}
}

// With calls fn with the guarded value while holding the write lock.
func (mu *Mutex[T]) With(fn func(T)) {
	v, unlock := mu.Lock()
	defer unlock.Unlock()
	fn(v)
}

// View calls fn with the guarded value while holding the read lock. fn must not modify the value.
func (mu *Mutex[T]) View(fn func(T)) {
	v, unlock := mu.RLock()
	defer unlock.RUnlock()
	fn(v)
}

func (u MutexUnlock) Unlock()   { u.mu.Unlock() }
func (u MutexRUnlock) RUnlock() { u.mu.RUnlock() }

// Counters is a set of named counters that is safe for concurrent use. The zero value is not usable; use
// NewCounters.
type Counters[K comparable] struct {
	m *Mutex[map[K]int64]
}

func NewCounters[K comparable]() Counters[K] {
	return Counters[K]{m: NewMutex(map[K]int64{})}
}

// Add adds n to the counter for k and returns the new count.
func (c Counters[K]) Add(k K, n int64) int64 {
	var out int64
	c.m.With(func(m map[K]int64) {
		m[k] += n
		out = m[k]
	})
	return out
}

func (c Counters[K]) Get(k K) int64 {
	var out int64
	c.m.View(func(m map[K]int64) { out = m[k] })
	return out
}

// Snapshot returns a copy of all counters.
func (c Counters[K]) Snapshot() map[K]int64 {
	var out map[K]int64
	c.m.View(func(m map[K]int64) { out = maps.Clone(m) })
	return out
}
