package container

type Set[T comparable] map[T]struct{}

func (set Set[T]) Add(v T) {
	set[v] = struct{}{}
}

func (set Set[T]) Delete(v T) {
	delete(set, v)
}

func (set Set[T]) Has(v T) bool {
	_, ok := set[v]
	return ok
}

// AddNew adds v and reports whether it wasn't already present.
func (set Set[T]) AddNew(v T) bool {
	if _, ok := set[v]; ok {
		return false
	}
	set[v] = struct{}{}
	return true
}
