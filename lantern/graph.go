package lantern

import (
	"errors"
	"iter"
	"strings"

	"golang.org/x/exp/slices"

	"honnef.co/go/lantern/container"
	myslices "honnef.co/go/lantern/slices"
)

var ErrCyclicDependency = errors.New("dependency graph contains a cycle")

// CycleError describes a cycle in the dependency graph.
type CycleError struct {
	// Path lists the IDs of the nodes on the cycle. The first node depends on the last one.
	Path []string
}

func (err *CycleError) Error() string {
	return "dependency graph contains a cycle: " + strings.Join(err.Path, " -> ")
}

func (err *CycleError) Unwrap() error {
	return ErrCyclicDependency
}

// connected returns all nodes connected to root in either direction, sorted by observed start time.
func connected(root Node) []Node {
	seen := container.Set[Node]{}
	seen.Add(root)
	stack := []Node{root}
	out := []Node{root}
	for len(stack) > 0 {
		var n Node
		n, stack, _ = myslices.Pop(stack)
		for _, edges := range [2][]Node{n.Dependents(), n.Dependencies()} {
			for _, o := range edges {
				if seen.AddNew(o) {
					stack = append(stack, o)
					out = append(out, o)
				}
			}
		}
	}
	slices.SortFunc(out, compareNodes)
	return out
}

// Traverse yields the nodes of root's graph in dependency order: every node is yielded after all of its
// dependencies. Among nodes whose dependencies have all been yielded, earlier observed start times come first.
// Nodes that are part of a cycle are never yielded.
//
// Every iteration performs a fresh traversal.
func Traverse(root Node) iter.Seq[Node] {
	return func(yield func(Node) bool) {
		nodes := connected(root)
		pending := make(map[Node]int, len(nodes))
		var ready []Node
		for _, n := range nodes {
			pending[n] = len(n.Dependencies())
			if pending[n] == 0 {
				ready = append(ready, n)
			}
		}
		for len(ready) > 0 {
			var n Node
			n, ready, _ = myslices.PopFront(ready)
			if !yield(n) {
				return
			}
			for _, d := range n.Dependents() {
				pending[d]--
				if pending[d] == 0 {
					ready = myslices.InsertSorted(ready, d, compareNodes)
				}
			}
		}
	}
}

// Nodes returns the nodes of root's graph in the order of Traverse.
func Nodes(root Node) []Node {
	var out []Node
	for n := range Traverse(root) {
		out = append(out, n)
	}
	return out
}

// FindCycle returns a cycle in root's graph, or nil if the graph is acyclic.
func FindCycle(root Node) *CycleError {
	const (
		unvisited = iota
		visiting
		done
	)
	type frame struct {
		node Node
		next int
	}

	state := map[Node]uint8{}
	for _, start := range connected(root) {
		if state[start] != unvisited {
			continue
		}
		state[start] = visiting
		stack := []frame{{node: start}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			dependents := top.node.Dependents()
			if top.next == len(dependents) {
				var f frame
				f, stack, _ = myslices.Pop(stack)
				state[f.node] = done
				continue
			}
			d := dependents[top.next]
			top.next++
			switch state[d] {
			case unvisited:
				state[d] = visiting
				stack = append(stack, frame{node: d})
			case visiting:
				var path []string
				for i := len(stack) - 1; i >= 0; i-- {
					path = append(path, stack[i].node.ID())
					if stack[i].node == d {
						break
					}
				}
				return &CycleError{Path: path}
			}
		}
	}
	return nil
}

// CloneWithRelationships returns a copy of root's graph that only contains the nodes matching predicate, the
// dependencies of those nodes, and root itself. Relationships between the copied nodes are preserved.
func CloneWithRelationships(root Node, predicate func(Node) bool) Node {
	include := container.Set[Node]{}
	var stack []Node
	mark := func(n Node) {
		if include.AddNew(n) {
			stack = append(stack, n)
		}
		for len(stack) > 0 {
			var m Node
			m, stack, _ = myslices.Pop(stack)
			for _, dep := range m.Dependencies() {
				if include.AddNew(dep) {
					stack = append(stack, dep)
				}
			}
		}
	}

	mark(root)
	nodes := connected(root)
	for _, n := range nodes {
		if !include.Has(n) && predicate(n) {
			mark(n)
		}
	}

	clones := make(map[Node]Node, len(include))
	for _, n := range nodes {
		if include.Has(n) {
			clones[n] = n.clone()
		}
	}
	for _, n := range nodes {
		c, ok := clones[n]
		if !ok {
			continue
		}
		for _, dep := range n.Dependencies() {
			addDependency(c, clones[dep])
		}
	}
	return clones[root]
}
