package tinylfu

import "honnef.co/go/lantern/tinylfu/internal/list"

// lruCache is the admission window in front of the segmented LRU. It shares its index with the SLRU.
type lruCache[K comparable, V any] struct {
	data map[K]*list.Element[*slruItem[K, V]]
	cap  int
	ll   *list.List[*slruItem[K, V]]
}

func newLRU[K comparable, V any](cap int, data map[K]*list.Element[*slruItem[K, V]]) *lruCache[K, V] {
	return &lruCache[K, V]{
		data: data,
		cap:  cap,
		ll:   list.New[*slruItem[K, V]](),
	}
}

func (lru *lruCache[K, V]) get(v *list.Element[*slruItem[K, V]]) {
	lru.ll.MoveToFront(v)
}

// add inserts newitem, returning the item it displaced, if any.
func (lru *lruCache[K, V]) add(newitem slruItem[K, V]) (oitem slruItem[K, V], evicted bool) {
	if lru.ll.Len() < lru.cap {
		lru.data[newitem.key] = lru.ll.PushFront(&newitem)
		return slruItem[K, V]{}, false
	}

	// reuse the tail item
	e := lru.ll.Back()
	item := e.Value

	delete(lru.data, item.key)

	oitem = *item
	*item = newitem

	lru.data[item.key] = e
	lru.ll.MoveToFront(e)

	return oitem, true
}

func (lru *lruCache[K, V]) remove(key K) {
	e, ok := lru.data[key]
	if !ok {
		return
	}
	lru.ll.Remove(e)
	delete(lru.data, key)
}
