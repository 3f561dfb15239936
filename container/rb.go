package container

import (
	"cmp"

	"golang.org/x/exp/constraints"
)

// Interval is a closed interval [Min, Max].
type Interval[T constraints.Ordered] struct {
	Min, Max T
}

func (ival Interval[T]) compare(o Interval[T]) int {
	if c := cmp.Compare(ival.Min, o.Min); c != 0 {
		return c
	}
	return cmp.Compare(ival.Max, o.Max)
}

func (ival Interval[T]) Overlaps(o Interval[T]) bool {
	return ival.Min <= o.Max && ival.Max >= o.Min
}

func (ival Interval[T]) Contains(o Interval[T]) bool {
	return ival.Min <= o.Min && ival.Max >= o.Max
}

type color bool

const (
	black color = false
	red   color = true
)

const (
	left  = 0
	right = 1
)

// intervalNode holds all values sharing one interval. maxEnd is the largest Max in the node's subtree.
type intervalNode[T constraints.Ordered, V any] struct {
	parent   *intervalNode[T, V]
	children [2]*intervalNode[T, V]
	color    color

	key    Interval[T]
	maxEnd T
	values []V
}

func (n *intervalNode[T, V]) dir() int {
	if n.parent.children[right] == n {
		return right
	}
	return left
}

// IntervalTree is an augmented red-black tree of intervals, ordered by start and then end. The zero value is an empty
// tree.
type IntervalTree[T constraints.Ordered, V any] struct {
	root *intervalNode[T, V]
	size int
}

func NewIntervalTree[T constraints.Ordered, V any]() *IntervalTree[T, V] {
	return &IntervalTree[T, V]{}
}

// Len returns the number of distinct intervals in the tree.
func (t *IntervalTree[T, V]) Len() int { return t.size }

// Insert adds value under [min, max]. Values of equal intervals are kept in insertion order.
func (t *IntervalTree[T, V]) Insert(min, max T, value V) {
	key := Interval[T]{min, max}
	var p *intervalNode[T, V]
	dir := left
	for x := t.root; x != nil; x = x.children[dir] {
		c := key.compare(x.key)
		if c == 0 {
			x.values = append(x.values, value)
			return
		}
		p = x
		if c < 0 {
			dir = left
		} else {
			dir = right
		}
	}

	n := &intervalNode[T, V]{parent: p, color: red, key: key, maxEnd: max, values: []V{value}}
	t.size++
	if p == nil {
		t.root = n
		n.color = black
		return
	}
	p.children[dir] = n
	t.fixMaxEnd(p)
	t.rebalance(n)
}

func (t *IntervalTree[T, V]) rebalance(n *intervalNode[T, V]) {
	for {
		p := n.parent
		if p == nil {
			n.color = black
			return
		}
		if p.color == black {
			return
		}
		g := p.parent
		if g == nil {
			p.color = black
			return
		}

		dir := p.dir()
		u := g.children[1-dir]
		if u != nil && u.color == red {
			p.color = black
			u.color = black
			g.color = red
			n = g
			continue
		}

		if n == p.children[1-dir] {
			t.rotate(p, dir)
			p = g.children[dir]
		}
		t.rotate(g, 1-dir)
		p.color = black
		g.color = red
		return
	}
}

// rotate moves p down in direction dir, promoting its child on the other side.
func (t *IntervalTree[T, V]) rotate(p *intervalNode[T, V], dir int) {
	g := p.parent
	s := p.children[1-dir]
	c := s.children[dir]

	p.children[1-dir] = c
	if c != nil {
		c.parent = p
	}
	s.children[dir] = p
	p.parent = s
	s.parent = g
	switch {
	case g == nil:
		t.root = s
	case g.children[right] == p:
		g.children[right] = s
	default:
		g.children[left] = s
	}

	t.updateMaxEnd(p)
	t.updateMaxEnd(s)
}

func (t *IntervalTree[T, V]) updateMaxEnd(n *intervalNode[T, V]) {
	m := n.key.Max
	for _, c := range n.children {
		if c != nil {
			m = max(m, c.maxEnd)
		}
	}
	n.maxEnd = m
}

// fixMaxEnd recomputes maxEnd from n up to the root.
func (t *IntervalTree[T, V]) fixMaxEnd(n *intervalNode[T, V]) {
	for ; n != nil; n = n.parent {
		t.updateMaxEnd(n)
	}
}

// Overlapping calls cb for every value whose interval overlaps [min, max], in order of interval start. Iteration stops
// when cb returns true.
func (t *IntervalTree[T, V]) Overlapping(min, max T, cb func(ival Interval[T], v V) bool) {
	t.walk(t.root, Interval[T]{min, max}, func(n *intervalNode[T, V]) bool {
		for _, v := range n.values {
			if cb(n.key, v) {
				return true
			}
		}
		return false
	})
}

// Enclosing calls cb for every value whose interval contains [min, max], in order of interval start. Iteration stops
// when cb returns true.
func (t *IntervalTree[T, V]) Enclosing(min, max T, cb func(ival Interval[T], v V) bool) {
	want := Interval[T]{min, max}
	t.Overlapping(min, max, func(ival Interval[T], v V) bool {
		return ival.Contains(want) && cb(ival, v)
	})
}

func (t *IntervalTree[T, V]) walk(n *intervalNode[T, V], q Interval[T], cb func(*intervalNode[T, V]) bool) bool {
	// Nothing in this subtree ends after the query starts.
	if n == nil || q.Min > n.maxEnd {
		return false
	}
	if t.walk(n.children[left], q, cb) {
		return true
	}
	// Everything to the right starts after the query ends.
	if n.key.Min > q.Max {
		return false
	}
	if n.key.Overlaps(q) && cb(n) {
		return true
	}
	return t.walk(n.children[right], q, cb)
}
