package tinylfu

import "honnef.co/go/lantern/tinylfu/internal/list"

// slruItem is an entry of either the admission window (segment 0) or one of the two SLRU segments.
type slruItem[K comparable, V any] struct {
	segment int
	key     K
	value   V
	keyh    uint64
}

// slruCache is a segmented LRU. New entries land in the probation segment and are promoted to the protected
// segment on their next access. It shares its index with the admission window.
type slruCache[K comparable, V any] struct {
	data                  map[K]*list.Element[*slruItem[K, V]]
	probationCap, protCap int
	probation, protected  *list.List[*slruItem[K, V]]
}

func newSLRU[K comparable, V any](probationCap, protCap int, data map[K]*list.Element[*slruItem[K, V]]) *slruCache[K, V] {
	return &slruCache[K, V]{
		data:         data,
		probationCap: probationCap,
		protCap:      protCap,
		probation:    list.New[*slruItem[K, V]](),
		protected:    list.New[*slruItem[K, V]](),
	}
}

func (slru *slruCache[K, V]) len() int {
	return slru.probation.Len() + slru.protected.Len()
}

func (slru *slruCache[K, V]) full() bool {
	return slru.len() >= slru.probationCap+slru.protCap
}

// get records an access to e.
func (slru *slruCache[K, V]) get(e *list.Element[*slruItem[K, V]]) {
	item := e.Value
	if item.segment == 2 {
		slru.protected.MoveToFront(e)
		return
	}

	if slru.protected.Len() < slru.protCap {
		slru.probation.Remove(e)
		item.segment = 2
		slru.data[item.key] = slru.protected.PushFront(item)
		return
	}

	// Demote the least recently used protected entry by swapping it with item.
	back := slru.protected.Back()
	demoted := back.Value
	*demoted, *item = *item, *demoted
	demoted.segment = 2
	item.segment = 1
	slru.data[item.key] = e
	slru.data[demoted.key] = back
	slru.probation.MoveToFront(e)
	slru.protected.MoveToFront(back)
}

// add inserts item into the probation segment, replacing the least recently used probation entry if the cache is
// full.
func (slru *slruCache[K, V]) add(item slruItem[K, V]) {
	item.segment = 1
	if slru.probation.Len() < slru.probationCap || !slru.full() {
		slru.data[item.key] = slru.probation.PushFront(&item)
		return
	}

	e := slru.probation.Back()
	delete(slru.data, e.Value.key)
	*e.Value = item
	slru.data[item.key] = e
	slru.probation.MoveToFront(e)
}

// victim returns the entry that the next add would evict, or nil if there is still room.
func (slru *slruCache[K, V]) victim() *slruItem[K, V] {
	if !slru.full() {
		return nil
	}
	return slru.probation.Back().Value
}

func (slru *slruCache[K, V]) remove(key K) {
	e, ok := slru.data[key]
	if !ok {
		return
	}
	if e.Value.segment == 2 {
		slru.protected.Remove(e)
	} else {
		slru.probation.Remove(e)
	}
	delete(slru.data, key)
}
