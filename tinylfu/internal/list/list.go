// Package list implements a generic, intrusive doubly linked list, sized for the needs of the tinylfu cache.
package list

// Element is an element of a linked list.
type Element[T any] struct {
	next, prev *Element[T]
	list       *List[T]

	Value T
}

// List is a doubly linked list with a sentinel root. The zero value is not usable; use New.
type List[T any] struct {
	root Element[T]
	len  int
}

func New[T any]() *List[T] {
	l := &List[T]{}
	l.root.next = &l.root
	l.root.prev = &l.root
	return l
}

func (l *List[T]) Len() int { return l.len }

// Back returns the last element of the list, or nil.
func (l *List[T]) Back() *Element[T] {
	if l.len == 0 {
		return nil
	}
	return l.root.prev
}

func (l *List[T]) insertAfter(e, at *Element[T]) *Element[T] {
	e.prev = at
	e.next = at.next
	e.prev.next = e
	e.next.prev = e
	e.list = l
	l.len++
	return e
}

func (l *List[T]) unlink(e *Element[T]) {
	e.prev.next = e.next
	e.next.prev = e.prev
}

// PushFront inserts a new element with value v at the front of the list.
func (l *List[T]) PushFront(v T) *Element[T] {
	return l.insertAfter(&Element[T]{Value: v}, &l.root)
}

// Remove removes e from l if it belongs to l.
func (l *List[T]) Remove(e *Element[T]) T {
	if e.list == l {
		l.unlink(e)
		e.next = nil
		e.prev = nil
		e.list = nil
		l.len--
	}
	return e.Value
}

// MoveToFront moves e to the front of l. e must belong to l.
func (l *List[T]) MoveToFront(e *Element[T]) {
	if e.list != l || l.root.next == e {
		return
	}
	l.unlink(e)
	e.prev = &l.root
	e.next = l.root.next
	e.prev.next = e
	e.next.prev = e
}
