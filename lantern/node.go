// Package lantern estimates page load metrics by simulating a dependency graph of network requests and main thread
// tasks under different network and CPU conditions.
package lantern

import (
	"cmp"
	"fmt"
	"strings"

	"honnef.co/go/lantern/netlog"
	"honnef.co/go/lantern/trace"
	"honnef.co/go/lantern/trace/ptrace"
)

type NodeType uint8

const (
	NodeTypeNetwork NodeType = iota
	NodeTypeCPU
)

func (typ NodeType) String() string {
	switch typ {
	case NodeTypeNetwork:
		return "network"
	case NodeTypeCPU:
		return "cpu"
	default:
		return fmt.Sprintf("NodeType(%d)", typ)
	}
}

// Node is a vertex of the dependency graph, either a *NetworkNode or a *CPUNode. Start and end times are the
// observed times, on the trace clock.
type Node interface {
	ID() string
	Type() NodeType
	StartTime() trace.Timestamp
	EndTime() trace.Timestamp
	Dependencies() []Node
	Dependents() []Node

	base() *baseNode
	// clone returns a copy of the node without any relationships.
	clone() Node
}

type baseNode struct {
	id           string
	start        trace.Timestamp
	end          trace.Timestamp
	dependencies []Node
	dependents   []Node
}

func (n *baseNode) ID() string                 { return n.id }
func (n *baseNode) StartTime() trace.Timestamp { return n.start }
func (n *baseNode) EndTime() trace.Timestamp   { return n.end }
func (n *baseNode) Dependencies() []Node       { return n.dependencies }
func (n *baseNode) Dependents() []Node         { return n.dependents }
func (n *baseNode) base() *baseNode            { return n }

// NetworkNode is a network request.
type NetworkNode struct {
	baseNode
	Record *netlog.Record
	// IsMainDocument is set for the request of the page's main document.
	IsMainDocument bool
}

func (n *NetworkNode) Type() NodeType { return NodeTypeNetwork }

func (n *NetworkNode) clone() Node {
	return &NetworkNode{
		baseNode:       baseNode{id: n.id, start: n.start, end: n.end},
		Record:         n.Record,
		IsMainDocument: n.IsMainDocument,
	}
}

// CPUNode is a top-level task of the main thread.
type CPUNode struct {
	baseNode
	Task *ptrace.Task
	// Events are the task's child events.
	Events []*trace.Event
}

func (n *CPUNode) Type() NodeType { return NodeTypeCPU }

func (n *CPUNode) clone() Node {
	return &CPUNode{
		baseNode: baseNode{id: n.id, start: n.start, end: n.end},
		Task:     n.Task,
		Events:   n.Events,
	}
}

// Duration returns the task's observed duration in milliseconds.
func (n *CPUNode) Duration() float64 {
	return n.end.Since(n.start)
}

// addDependency makes n depend on dep. Existing edges and self edges are ignored.
func addDependency(n, dep Node) {
	if n == dep {
		return
	}
	b := n.base()
	for _, d := range b.dependencies {
		if d == dep {
			return
		}
	}
	b.dependencies = append(b.dependencies, dep)
	dep.base().dependents = append(dep.base().dependents, n)
}

// compareNodes orders nodes by observed start time, then by ID.
func compareNodes(a, b Node) int {
	if c := cmp.Compare(a.StartTime(), b.StartTime()); c != 0 {
		return c
	}
	return strings.Compare(a.ID(), b.ID())
}
