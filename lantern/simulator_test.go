package lantern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honnef.co/go/lantern/netlog"
	"honnef.co/go/lantern/netlog/netlogtest"
	"honnef.co/go/lantern/trace"
)

// stylesheetRequests is a document without a body that loads two stylesheets of one initial congestion window each.
func stylesheetRequests() []netlogtest.Request {
	return []netlogtest.Request{
		{URL: pageURL, Type: netlog.ResourceTypeDocument, Priority: netlog.PriorityVeryHigh, StartTime: 1, EndTime: 1.2},
		{
			URL:          pageURL + "a.css",
			Type:         netlog.ResourceTypeStylesheet,
			Priority:     netlog.PriorityVeryHigh,
			StartTime:    1.3,
			EndTime:      1.4,
			TransferSize: initialCongestionWnd,
			Initiator:    parserInitiated(),
		},
		{
			URL:          pageURL + "b.css",
			Type:         netlog.ResourceTypeStylesheet,
			Priority:     netlog.PriorityVeryHigh,
			StartTime:    1.3,
			EndTime:      1.45,
			TransferSize: initialCongestionWnd,
			Initiator:    parserInitiated(),
		},
	}
}

func timingsByID(sim Simulation) map[string]NodeTiming {
	out := map[string]NodeTiming{}
	for n, t := range sim.NodeTimings {
		out[n.ID()] = t
	}
	return out
}

func TestSimulatePessimistic(t *testing.T) {
	root, err := BuildGraph(records(stylesheetRequests()), nil, nil, pageURLs, BuildOptions{})
	require.NoError(t, err)

	sim, err := (&Simulator{}).Simulate(root, DefaultSettings().Pessimistic())
	require.NoError(t, err)
	timings := timingsByID(sim)
	require.Len(t, timings, 3)

	// Connection setup and the request round trip.
	assert.Equal(t, NodeTiming{StartTime: 0, EndTime: 450, Duration: 450}, timings["1"])
	// Setup, request, and two round trips to deliver the body at 400 Kbps.
	assert.Equal(t, NodeTiming{StartTime: 450, EndTime: 1342, Duration: 892}, timings["2"])
	// Only a single connection was observed, so the second stylesheet has to wait.
	assert.Equal(t, NodeTiming{StartTime: 1342, EndTime: 2234, Duration: 892, QueuedTime: 892}, timings["3"])
	assert.Equal(t, 2234.0, sim.TimeInMs)
}

func TestSimulateOptimistic(t *testing.T) {
	root, err := BuildGraph(records(stylesheetRequests()), nil, nil, pageURLs, BuildOptions{})
	require.NoError(t, err)

	sim, err := (&Simulator{}).Simulate(root, DefaultSettings().Optimistic())
	require.NoError(t, err)
	timings := timingsByID(sim)

	body := initialCongestionWnd / (1638.4 / 8)
	assert.Equal(t, 450.0, timings["1"].EndTime)
	// The warm connection of the document is reused.
	assert.Equal(t, 450.0, timings["2"].StartTime)
	assert.InDelta(t, 150+body, timings["2"].Duration, 1e-9)
	// The other stylesheet opens a new connection instead of waiting.
	assert.Equal(t, 450.0, timings["3"].StartTime)
	assert.Zero(t, timings["3"].QueuedTime)
	assert.InDelta(t, 450+body, timings["3"].Duration, 1e-9)
	assert.InDelta(t, 900+body, sim.TimeInMs, 1e-9)
}

func TestSimulateDeterministic(t *testing.T) {
	root, err := BuildGraph(records(pageRequests()), nil, nil, pageURLs, BuildOptions{})
	require.NoError(t, err)

	for _, policy := range []Policy{DefaultSettings().Optimistic(), DefaultSettings().Pessimistic()} {
		t.Run(policy.Name, func(t *testing.T) {
			s := &Simulator{}
			first, err := s.Simulate(root, policy)
			require.NoError(t, err)
			for range 5 {
				again, err := s.Simulate(root, policy)
				require.NoError(t, err)
				assert.Equal(t, first.TimeInMs, again.TimeInMs)
				assert.Equal(t, timingsByID(first), timingsByID(again))
			}
		})
	}
}

func TestOptimisticNotSlowerThanPessimistic(t *testing.T) {
	for name, reqs := range map[string][]netlogtest.Request{
		"page":        pageRequests(),
		"stylesheets": stylesheetRequests(),
	} {
		t.Run(name, func(t *testing.T) {
			root, err := BuildGraph(records(reqs), nil, nil, pageURLs, BuildOptions{})
			require.NoError(t, err)
			s := &Simulator{}
			opt, err := s.Simulate(root, DefaultSettings().Optimistic())
			require.NoError(t, err)
			pess, err := s.Simulate(root, DefaultSettings().Pessimistic())
			require.NoError(t, err)

			assert.LessOrEqual(t, opt.TimeInMs, pess.TimeInMs)
			for n, o := range opt.NodeTimings {
				assert.LessOrEqual(t, o.EndTime, pess.NodeTimings[n].EndTime, n.ID())
			}
		})
	}
}

func TestSimulateCPU(t *testing.T) {
	recs := records(stylesheetRequests()[:1])
	root, err := BuildGraph(recs, nil, nil, pageURLs, BuildOptions{})
	require.NoError(t, err)
	short := &CPUNode{baseNode: baseNode{id: "cpu.1", start: 2_000_000, end: 2_010_000}}
	long := &CPUNode{baseNode: baseNode{id: "cpu.2", start: 2_000_000, end: 2_020_000}}
	addDependency(short, root)
	addDependency(long, root)

	sim, err := (&Simulator{}).Simulate(root, DefaultSettings().Optimistic())
	require.NoError(t, err)
	timings := timingsByID(sim)

	// There is only one main thread.
	assert.Equal(t, NodeTiming{StartTime: 450, EndTime: 490, Duration: 40}, timings["cpu.1"])
	assert.Equal(t, NodeTiming{StartTime: 490, EndTime: 570, Duration: 80, QueuedTime: 40}, timings["cpu.2"])
}

func TestSimulateCachedAndNonNetwork(t *testing.T) {
	recs := records(stylesheetRequests()[:1])
	data := &netlog.Record{RequestID: "data", URL: "data:image/png;base64,AAAA", TransferSize: 0}
	data.ParsedURL.Scheme = "data"
	cached := &netlog.Record{RequestID: "cached", URL: pageURL + "cached.css", FromDiskCache: true}
	recs = append(recs, data, cached)

	root, err := BuildGraph(recs, nil, nil, pageURLs, BuildOptions{})
	require.NoError(t, err)
	sim, err := (&Simulator{}).Simulate(root, DefaultSettings().Pessimistic())
	require.NoError(t, err)
	timings := timingsByID(sim)
	assert.Equal(t, 2.0, timings["data"].Duration)
	assert.Equal(t, 8.0, timings["cached"].Duration)
}

func TestSimulateInvalidPolicy(t *testing.T) {
	root, err := BuildGraph(records(stylesheetRequests()), nil, nil, pageURLs, BuildOptions{})
	require.NoError(t, err)
	policy := DefaultSettings().Optimistic()
	policy.Throughput = 0
	_, err = (&Simulator{}).Simulate(root, policy)
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestConnectionDownload(t *testing.T) {
	c := newConnection()
	// 1000 bytes per millisecond and 100ms round trips allow a window of 100000 bytes.
	const throughput = 8000
	assert.Equal(t, 0.0, c.download(0, 100, throughput))
	// 14600, 29200 and 58400 bytes take three round trips, the last of which is covered by the transfer time.
	assert.Equal(t, 200+100.0, c.download(100_000, 100, throughput))
	assert.Equal(t, float64(100_000), c.cwnd)
	// A warm window delivers the same amount in one go.
	assert.Equal(t, 100.0, c.download(100_000, 100, throughput))
}

func TestClampedRequestTimes(t *testing.T) {
	recs := records([]netlogtest.Request{
		{URL: pageURL, Type: netlog.ResourceTypeDocument, StartTime: 1, EndTime: 1.2},
		{URL: pageURL + "x.js", StartTime: 1.5, EndTime: -1},
	})
	root, err := BuildGraph(recs, nil, nil, pageURLs, BuildOptions{})
	require.NoError(t, err)
	n := findNode(t, root, "2")
	assert.Equal(t, trace.Timestamp(1_500_000)+MinRequestDuration, n.EndTime())
}
