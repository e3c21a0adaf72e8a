// Package syncx provides small generic synchronization helpers
package syncx

import "sync"

// Guard protects a value with an RWMutex.
type Guard[T any] struct {
	mu    sync.RWMutex
	value T
}

// NewGuard creates a guarded value.
func NewGuard[T any](initial T) *Guard[T] {
	return &Guard[T]{value: initial}
}

// Get returns a copy of the value (T should be a value type or immutable).
func (g *Guard[T]) Get() T {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.value
}

// Set replaces the value.
func (g *Guard[T]) Set(v T) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = v
}

// Update mutates the value under the write lock.
func (g *Guard[T]) Update(fn func(*T)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.value)
}

// Read derives a result from the value under the read lock.
func Read[T, R any](g *Guard[T], fn func(T) R) R {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return fn(g.value)
}

// Map is a mutex-guarded map.
type Map[K comparable, V any] struct {
	g *Guard[map[K]V]
}

// NewMap creates an empty map.
func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{g: NewGuard(make(map[K]V))}
}

// Store sets key to v.
func (m *Map[K, V]) Store(key K, v V) {
	m.g.Update(func(mp *map[K]V) { (*mp)[key] = v })
}

// Load returns the value for key.
func (m *Map[K, V]) Load(key K) (V, bool) {
	type result struct {
		v  V
		ok bool
	}
	r := Read(m.g, func(mp map[K]V) result {
		v, ok := mp[key]
		return result{v, ok}
	})
	return r.v, r.ok
}

// Delete removes key and reports whether it was present.
func (m *Map[K, V]) Delete(key K) bool {
	var ok bool
	m.g.Update(func(mp *map[K]V) {
		_, ok = (*mp)[key]
		delete(*mp, key)
	})
	return ok
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int {
	return Read(m.g, func(mp map[K]V) int { return len(mp) })
}

// Snapshot returns a copy of the entries.
func (m *Map[K, V]) Snapshot() map[K]V {
	return Read(m.g, func(mp map[K]V) map[K]V {
		out := make(map[K]V, len(mp))
		for k, v := range mp {
			out[k] = v
		}
		return out
	})
}
