// Package computed memoizes results derived from input artifacts, keyed by a fingerprint of their content.
package computed

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/sync/singleflight"

	"honnef.co/go/lantern/mysync"
	"honnef.co/go/lantern/tinylfu"
)

// Key is the fingerprint of a computation's inputs.
type Key [sha256.Size]byte

func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// Fingerprint hashes parts into a key. Parts are length-prefixed, so moving bytes between adjacent parts changes the
// key.
func Fingerprint(parts ...[]byte) Key {
	h := sha256.New()
	var n [8]byte
	for _, p := range parts {
		binary.LittleEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write(p)
	}
	var k Key
	h.Sum(k[:0])
	return k
}

// Cache holds up to a fixed number of computed values, admitting and evicting them with TinyLFU. Concurrent
// computations of the same key are coalesced. Caches are safe for concurrent use.
type Cache[V any] struct {
	entries *mysync.Mutex[*tinylfu.T[Key, V]]
	group   singleflight.Group
}

func New[V any](size int) *Cache[V] {
	return &Cache[V]{
		entries: mysync.NewMutex(tinylfu.New[Key, V](size, size*10)),
	}
}

func (c *Cache[V]) Get(key Key) (V, bool) {
	// Lookups update frequency counts, so they need the write lock.
	entries, unlock := c.entries.Lock()
	defer unlock.Unlock()
	return entries.Get(key)
}

func (c *Cache[V]) Add(key Key, v V) {
	c.entries.With(func(entries *tinylfu.T[Key, V]) {
		entries.Add(key, v)
	})
}

func (c *Cache[V]) Len() int {
	entries, unlock := c.entries.Lock()
	defer unlock.Unlock()
	return entries.Len()
}

// Do returns the cached value for key, computing it with fn if necessary. Errors are returned but not cached.
func (c *Cache[V]) Do(key Key, fn func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	out, err, _ := c.group.Do(key.String(), func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := fn()
		if err != nil {
			return v, err
		}
		c.Add(key, v)
		return v, nil
	})
	v, _ := out.(V)
	return v, err
}
