package lantern

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"honnef.co/go/lantern/mem"
	"honnef.co/go/lantern/netlog"
)

var ErrInvalidPolicy = errors.New("invalid simulation policy")

const (
	// maxCPUTaskDuration caps the simulated duration of a single task, in milliseconds.
	maxCPUTaskDuration = 10_000
	bytesPerMB         = 1024 * 1024
)

// NodeTiming is the simulated timing of a node, in milliseconds since the start of the simulation.
type NodeTiming struct {
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Duration  float64 `json:"duration"`
	// QueuedTime is how long the node waited for a connection or the CPU after its dependencies had finished.
	QueuedTime float64 `json:"queuedTime"`
}

// Simulation is the result of simulating a graph once.
type Simulation struct {
	TimeInMs    float64
	NodeTimings map[Node]NodeTiming
}

type Simulator struct {
	// Analysis provides per-origin network estimates. If nil, the requests of the simulated graph are analyzed.
	Analysis *NetworkAnalysis
	Logger   *zap.Logger
}

// Simulate simulates loading root's graph under policy. Nodes start as soon as their dependencies have finished and
// the resources they need are available: a connection to their origin for network requests, the main thread for
// tasks. Of several nodes that can start at the same time, the one observed to start first goes first.
//
// Simulate does not modify the graph and can be called concurrently.
func (s *Simulator) Simulate(root Node, policy Policy) (Simulation, error) {
	if policy.Throughput <= 0 || policy.RTT < 0 || policy.CPUSlowdown < 0 {
		return Simulation{}, fmt.Errorf("%w %q: rtt=%g throughput=%g cpu slowdown=%g",
			ErrInvalidPolicy, policy.Name, policy.RTT, policy.Throughput, policy.CPUSlowdown)
	}
	if cerr := FindCycle(root); cerr != nil {
		return Simulation{}, cerr
	}

	nodes := Nodes(root)
	analysis := s.Analysis
	if analysis == nil {
		analysis = AnalyzeNetwork(networkRecords(root))
	}
	sim := &simulation{
		policy:   policy,
		analysis: analysis,
		pools:    map[string]*pool{},
		index:    make(map[Node]int, len(nodes)),
		pending:  make(map[Node]int, len(nodes)),
		readyAt:  make(map[Node]float64, len(nodes)),
	}
	for i, n := range nodes {
		sim.index[n] = i
		sim.pending[n] = len(n.Dependencies())
		sim.timings.Append(NodeTiming{})
	}
	sim.run(root)

	out := Simulation{NodeTimings: make(map[Node]NodeTiming, len(nodes))}
	for i, n := range nodes {
		t := sim.timings.Get(i)
		out.NodeTimings[n] = t
		out.TimeInMs = max(out.TimeInMs, t.EndTime)
	}
	if s.Logger != nil {
		s.Logger.Debug("simulated graph",
			zap.String("policy", policy.Name),
			zap.Int("nodes", len(nodes)),
			zap.Float64("timeInMs", out.TimeInMs))
	}
	return out, nil
}

type simulation struct {
	policy   Policy
	analysis *NetworkAnalysis

	pools     map[string]*pool
	cpuFreeAt float64

	index   map[Node]int
	timings mem.BucketSlice[NodeTiming]
	pending map[Node]int
	readyAt map[Node]float64
}

func (sim *simulation) run(root Node) {
	ready := []Node{root}
	for len(ready) > 0 {
		best := -1
		var bestStart float64
		for i, n := range ready {
			start := sim.earliestStart(n)
			if best == -1 || start < bestStart || (start == bestStart && compareNodes(n, ready[best]) < 0) {
				best, bestStart = i, start
			}
		}
		n := ready[best]
		ready = slices.Delete(ready, best, best+1)
		end := sim.start(n, bestStart)

		for _, d := range n.Dependents() {
			sim.readyAt[d] = max(sim.readyAt[d], end)
			sim.pending[d]--
			if sim.pending[d] == 0 {
				ready = append(ready, d)
			}
		}
	}
}

func usesConnection(rec *netlog.Record) bool {
	return !netlog.IsNonNetworkRequest(rec) && !rec.FromDiskCache && !rec.FromMemoryCache
}

func (sim *simulation) pool(origin string) *pool {
	p := sim.pools[origin]
	if p == nil {
		if sim.policy.Multiplex && sim.analysis.Multiplexed(origin) {
			p = newPool(0, true)
		} else {
			p = newPool(max(sim.analysis.Connections(origin), sim.policy.MinConnectionsPerOrigin), false)
		}
		sim.pools[origin] = p
	}
	return p
}

// earliestStart returns the earliest time at which n could start.
func (sim *simulation) earliestStart(n Node) float64 {
	readyAt := sim.readyAt[n]
	switch n := n.(type) {
	case *CPUNode:
		return max(readyAt, sim.cpuFreeAt)
	case *NetworkNode:
		if !usesConnection(n.Record) {
			return readyAt
		}
		at, _ := sim.pool(netlog.Origin(n.Record)).available(readyAt)
		return at
	default:
		panic(fmt.Sprintf("unhandled node type %T", n))
	}
}

// start starts n at t and returns its end time.
func (sim *simulation) start(n Node, t float64) float64 {
	var dur float64
	switch n := n.(type) {
	case *CPUNode:
		dur = min(n.Duration()*sim.policy.CPUSlowdown, maxCPUTaskDuration)
		sim.cpuFreeAt = t + dur
	case *NetworkNode:
		rec := n.Record
		sizeMB := float64(rec.TransferSize) / bytesPerMB
		switch {
		case netlog.IsNonNetworkRequest(rec):
			dur = 2 + 10*sizeMB
		case rec.FromDiskCache || rec.FromMemoryCache:
			dur = 8 + 20*sizeMB
		default:
			conn := sim.pool(netlog.Origin(rec)).acquire(t)
			dur = sim.requestDuration(rec, conn)
			conn.freeAt = t + dur
			conn.warm = true
		}
	}

	*sim.timings.Ptr(sim.index[n]) = NodeTiming{
		StartTime:  t,
		EndTime:    t + dur,
		Duration:   dur,
		QueuedTime: t - sim.readyAt[n],
	}
	return t + dur
}

// requestDuration returns the time needed to complete rec over conn.
func (sim *simulation) requestDuration(rec *netlog.Record, conn *connection) float64 {
	origin := netlog.Origin(rec)
	rtt := sim.policy.RTT + sim.analysis.AdditionalRTT(origin)

	coldSetup := 1
	if rec.ParsedURL.Scheme == "https" || rec.ParsedURL.Scheme == "wss" {
		coldSetup++
	}
	setup := 0
	if !conn.warm {
		setup = coldSetup
	}
	if sim.policy.ColdRTTs > 0 {
		setup = max(sim.policy.ColdRTTs, coldSetup)
	}
	if !conn.warm || !sim.policy.KeepCongestionWindow {
		conn.cwnd = initialCongestionWnd
	}

	ttfb := rtt + sim.analysis.ServerResponseTime(origin)
	return float64(setup)*rtt + ttfb + conn.download(float64(rec.TransferSize), rtt, sim.policy.Throughput)
}
