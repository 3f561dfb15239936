package lantern

import (
	"errors"
	"fmt"

	"honnef.co/go/lantern/netlog"
	"honnef.co/go/lantern/trace"
	"honnef.co/go/lantern/trace/ptrace"
)

var (
	ErrNoMilestone    = errors.New("milestone is missing from the trace")
	ErrFMPInvalidated = errors.New("first meaningful paint was invalidated")
	ErrLCPInvalidated = errors.New("largest contentful paint was invalidated")
)

// Coefficients weigh the optimistic and pessimistic estimates into the blended estimate.
type Coefficients struct {
	Intercept   float64 `json:"intercept"`
	Optimistic  float64 `json:"optimistic"`
	Pessimistic float64 `json:"pessimistic"`
}

// Metric is a paint milestone that can be estimated by simulation.
type Metric interface {
	Name() ptrace.MilestoneName
	// Milestone returns the observed milestone the metric is anchored on.
	Milestone(tr *ptrace.Trace) (ptrace.Milestone, error)
	OptimisticGraph(root Node, m ptrace.Milestone) Node
	PessimisticGraph(root Node, m ptrace.Milestone) Node
	Coefficients() Coefficients
}

var (
	FirstContentfulPaint   Metric = firstContentfulPaint{}
	FirstMeaningfulPaint   Metric = firstMeaningfulPaint{}
	LargestContentfulPaint Metric = largestContentfulPaint{}
)

// Metrics lists the supported metrics.
var Metrics = []Metric{FirstContentfulPaint, FirstMeaningfulPaint, LargestContentfulPaint}

// MetricByName returns the metric for a milestone name, such as "firstContentfulPaint".
func MetricByName(name string) (Metric, bool) {
	for _, m := range Metrics {
		if string(m.Name()) == name {
			return m, true
		}
	}
	return nil, false
}

func milestone(tr *ptrace.Trace, name ptrace.MilestoneName) (ptrace.Milestone, error) {
	m, ok := tr.Milestones.Get(name).Get()
	if !ok {
		return ptrace.Milestone{}, fmt.Errorf("%w: %s", ErrNoMilestone, name)
	}
	return m, nil
}

// firstPaintBasedGraph keeps the network requests that finished before the paint and match filter, and the tasks
// that ended before the paint. The main document is always kept.
func firstPaintBasedGraph(root Node, paint trace.Timestamp, filter func(*NetworkNode) bool) Node {
	return CloneWithRelationships(root, func(n Node) bool {
		switch n := n.(type) {
		case *NetworkNode:
			if n.IsMainDocument {
				return true
			}
			if n.EndTime() > paint || n.StartTime() > paint {
				return false
			}
			return filter(n)
		case *CPUNode:
			return n.EndTime() <= paint
		default:
			return false
		}
	})
}

func isRenderBlocking(n *NetworkNode) bool {
	return netlog.HasRenderBlockingPriority(n.Record)
}

func isRenderBlockingNotFromScript(n *NetworkNode) bool {
	return isRenderBlocking(n) && n.Record.Initiator.Type != "script"
}

var defaultCoefficients = Coefficients{Intercept: 0, Optimistic: 0.5, Pessimistic: 0.5}

type firstContentfulPaint struct{}

func (firstContentfulPaint) Name() ptrace.MilestoneName { return ptrace.FirstContentfulPaint }

func (firstContentfulPaint) Milestone(tr *ptrace.Trace) (ptrace.Milestone, error) {
	return milestone(tr, ptrace.FirstContentfulPaint)
}

func (firstContentfulPaint) OptimisticGraph(root Node, m ptrace.Milestone) Node {
	return firstPaintBasedGraph(root, m.Timestamp, isRenderBlockingNotFromScript)
}

func (firstContentfulPaint) PessimisticGraph(root Node, m ptrace.Milestone) Node {
	return firstPaintBasedGraph(root, m.Timestamp, isRenderBlocking)
}

func (firstContentfulPaint) Coefficients() Coefficients { return defaultCoefficients }

type firstMeaningfulPaint struct{}

func (firstMeaningfulPaint) Name() ptrace.MilestoneName { return ptrace.FirstMeaningfulPaint }

func (firstMeaningfulPaint) Milestone(tr *ptrace.Trace) (ptrace.Milestone, error) {
	if tr.Milestones.FMPInvalidated {
		return ptrace.Milestone{}, ErrFMPInvalidated
	}
	return milestone(tr, ptrace.FirstMeaningfulPaint)
}

func (firstMeaningfulPaint) OptimisticGraph(root Node, m ptrace.Milestone) Node {
	return firstPaintBasedGraph(root, m.Timestamp, isRenderBlockingNotFromScript)
}

func (firstMeaningfulPaint) PessimisticGraph(root Node, m ptrace.Milestone) Node {
	return firstPaintBasedGraph(root, m.Timestamp, func(*NetworkNode) bool { return true })
}

func (firstMeaningfulPaint) Coefficients() Coefficients { return defaultCoefficients }

type largestContentfulPaint struct{}

func (largestContentfulPaint) Name() ptrace.MilestoneName { return ptrace.LargestContentfulPaint }

func (largestContentfulPaint) Milestone(tr *ptrace.Trace) (ptrace.Milestone, error) {
	if tr.Milestones.LCPInvalidated {
		return ptrace.Milestone{}, ErrLCPInvalidated
	}
	return milestone(tr, ptrace.LargestContentfulPaint)
}

// isNotLowPriorityImage excludes images the browser did not consider important.
func isNotLowPriorityImage(n *NetworkNode) bool {
	rec := n.Record
	if rec.ResourceType != netlog.ResourceTypeImage {
		return true
	}
	return rec.Priority != netlog.PriorityLow && rec.Priority != netlog.PriorityVeryLow
}

func (largestContentfulPaint) OptimisticGraph(root Node, m ptrace.Milestone) Node {
	return firstPaintBasedGraph(root, m.Timestamp, isNotLowPriorityImage)
}

func (largestContentfulPaint) PessimisticGraph(root Node, m ptrace.Milestone) Node {
	return firstPaintBasedGraph(root, m.Timestamp, func(*NetworkNode) bool { return true })
}

func (largestContentfulPaint) Coefficients() Coefficients { return defaultCoefficients }
