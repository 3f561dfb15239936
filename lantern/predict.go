package lantern

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"honnef.co/go/lantern/diag"
	"honnef.co/go/lantern/netlog"
	"honnef.co/go/lantern/trace/ptrace"
)

var ErrUnsupportedMode = errors.New("unsupported gather mode")

// GatherModeNavigation is the only supported gather mode: a trace of a single page navigation.
const GatherModeNavigation = "navigation"

// Input is the observed page load.
type Input struct {
	Trace *ptrace.Trace
	// Tasks are the main thread tasks of Trace. They are computed from Trace if nil.
	Tasks   []*ptrace.Task
	Records []*netlog.Record
	URLs    URLs
	// GatherMode defaults to GatherModeNavigation.
	GatherMode string
	// Graph is the dependency graph of the load. It is built from the other fields if nil.
	Graph Node
}

type Options struct {
	// Settings are used when Optimistic or Pessimistic are nil. The zero value selects DefaultSettings.
	Settings    Settings
	Optimistic  *Policy
	Pessimistic *Policy
	Logger      *zap.Logger
	Diag        *diag.Recorder
}

func (opts Options) logger() *zap.Logger {
	if opts.Logger == nil {
		return zap.NewNop()
	}
	return opts.Logger
}

func (opts Options) policies() (Policy, Policy) {
	settings := opts.Settings
	if settings == (Settings{}) {
		settings = DefaultSettings()
	}
	opt, pess := settings.Optimistic(), settings.Pessimistic()
	if opts.Optimistic != nil {
		opt = *opts.Optimistic
	}
	if opts.Pessimistic != nil {
		pess = *opts.Pessimistic
	}
	return opt, pess
}

// MetricResult is the estimate of a metric. All times are in milliseconds.
type MetricResult struct {
	Metric ptrace.MilestoneName
	// Observed is the milestone's timing in the trace.
	Observed float64
	// Timing is the pessimistic simulated end of the last request that finished before the milestone was observed,
	// or Observed if no such request exists.
	Timing float64
	// Blended weighs the optimistic and pessimistic estimates according to the metric's coefficients.
	Blended float64

	OptimisticEstimate  Simulation
	PessimisticEstimate Simulation
	OptimisticGraph     Node
	PessimisticGraph    Node
}

// Predict estimates metric for the page load described by in. The optimistic and pessimistic simulations run
// concurrently.
func Predict(ctx context.Context, in Input, metric Metric, opts Options) (*MetricResult, error) {
	log := opts.logger()
	if mode := in.GatherMode; mode != "" && mode != GatherModeNavigation {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
	}
	m, err := metric.Milestone(in.Trace)
	if err != nil {
		return nil, err
	}

	root := in.Graph
	if root == nil {
		tasks := in.Tasks
		if tasks == nil {
			tasks = ptrace.MainThreadTasks(in.Trace)
		}
		root, err = BuildGraph(in.Records, in.Trace, tasks, in.URLs, BuildOptions{Logger: log, Diag: opts.Diag})
		if err != nil {
			return nil, err
		}
	}

	res := &MetricResult{
		Metric:           metric.Name(),
		Observed:         m.Timing,
		OptimisticGraph:  metric.OptimisticGraph(root, m),
		PessimisticGraph: metric.PessimisticGraph(root, m),
	}
	optPolicy, pessPolicy := opts.policies()
	sim := &Simulator{Analysis: AnalyzeNetwork(in.Records), Logger: log}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		s, err := sim.Simulate(res.OptimisticGraph, optPolicy)
		res.OptimisticEstimate = s
		return err
	})
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		s, err := sim.Simulate(res.PessimisticGraph, pessPolicy)
		res.PessimisticEstimate = s
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res.Timing = m.Timing
	if anchor := lastRequestBefore(res.PessimisticGraph, m); anchor != nil {
		res.Timing = res.PessimisticEstimate.NodeTimings[anchor].EndTime
	}
	c := metric.Coefficients()
	res.Blended = c.Intercept +
		c.Optimistic*res.OptimisticEstimate.TimeInMs +
		c.Pessimistic*res.PessimisticEstimate.TimeInMs

	log.Debug("predicted metric",
		zap.String("metric", string(res.Metric)),
		zap.Float64("observed", res.Observed),
		zap.Float64("timing", res.Timing),
		zap.Float64("optimistic", res.OptimisticEstimate.TimeInMs),
		zap.Float64("pessimistic", res.PessimisticEstimate.TimeInMs))
	return res, nil
}

// lastRequestBefore returns the network node of root's graph whose observed end is closest to, but not after, the
// milestone.
func lastRequestBefore(root Node, m ptrace.Milestone) Node {
	var best Node
	for n := range Traverse(root) {
		if n.Type() != NodeTypeNetwork || n.EndTime() > m.Timestamp {
			continue
		}
		if best == nil || n.EndTime() > best.EndTime() || (n.EndTime() == best.EndTime() && compareNodes(n, best) > 0) {
			best = n
		}
	}
	return best
}
