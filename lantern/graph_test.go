package lantern

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honnef.co/go/lantern/diag"
	"honnef.co/go/lantern/netlog"
	"honnef.co/go/lantern/netlog/netlogtest"
	"honnef.co/go/lantern/trace"
	"honnef.co/go/lantern/trace/ptrace"
	"honnef.co/go/lantern/trace/tracetest"
)

const pageURL = "https://example.com/"

var pageURLs = URLs{RequestedURL: pageURL, MainDocumentURL: pageURL, FinalURL: pageURL}

func parserInitiated() netlog.Initiator {
	return netlog.Initiator{Type: "parser", URL: pageURL}
}

func scriptInitiated(url string) netlog.Initiator {
	return netlog.Initiator{
		Type:  "script",
		Stack: &netlog.StackTrace{CallFrames: []netlog.CallFrame{{FunctionName: "load", URL: url}}},
	}
}

// pageRequests is a document loading a stylesheet and a script, with the script loading an image.
func pageRequests() []netlogtest.Request {
	return []netlogtest.Request{
		{
			URL:          pageURL,
			Type:         netlog.ResourceTypeDocument,
			Priority:     netlog.PriorityVeryHigh,
			StartTime:    1,
			EndTime:      1.2,
			TransferSize: 14600,
			ConnectionID: 1,
		},
		{
			URL:              pageURL + "style.css",
			Type:             netlog.ResourceTypeStylesheet,
			Priority:         netlog.PriorityVeryHigh,
			StartTime:        1.25,
			EndTime:          1.3,
			TransferSize:     5000,
			ConnectionID:     1,
			ConnectionReused: true,
			Initiator:        parserInitiated(),
		},
		{
			URL:          pageURL + "app.js",
			Type:         netlog.ResourceTypeScript,
			Priority:     netlog.PriorityHigh,
			StartTime:    1.25,
			EndTime:      1.4,
			TransferSize: 30000,
			ConnectionID: 2,
			Initiator:    parserInitiated(),
		},
		{
			URL:              pageURL + "img.png",
			Type:             netlog.ResourceTypeImage,
			Priority:         netlog.PriorityLow,
			StartTime:        1.5,
			EndTime:          1.6,
			TransferSize:     50000,
			ConnectionID:     2,
			ConnectionReused: true,
			Initiator:        scriptInitiated(pageURL + "app.js"),
		},
	}
}

func records(reqs []netlogtest.Request) []*netlog.Record {
	return netlog.Reconstruct(netlogtest.Messages(reqs), netlog.Options{})
}

func ids(nodes []Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID()
	}
	return out
}

func dependencyIDs(n Node) []string {
	return ids(n.Dependencies())
}

func findNode(t *testing.T, root Node, id string) Node {
	t.Helper()
	for n := range Traverse(root) {
		if n.ID() == id {
			return n
		}
	}
	t.Fatalf("node %q not found", id)
	return nil
}

func TestBuildGraph(t *testing.T) {
	rec := diag.NewNop()
	root, err := BuildGraph(records(pageRequests()), nil, nil, pageURLs, BuildOptions{Diag: rec})
	require.NoError(t, err)

	assert.Equal(t, "1", root.ID())
	assert.True(t, root.(*NetworkNode).IsMainDocument)
	assert.Empty(t, root.Dependencies())
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids(Nodes(root)))

	// The stylesheet's initiator and connection both point at the document.
	assert.Equal(t, []string{"1"}, dependencyIDs(findNode(t, root, "2")))
	assert.Equal(t, []string{"1"}, dependencyIDs(findNode(t, root, "3")))
	assert.Equal(t, []string{"3"}, dependencyIDs(findNode(t, root, "4")))

	assert.Zero(t, rec.Count(diag.GraphClampedRequest))
	assert.Zero(t, rec.Count(diag.GraphUnresolvedInitiator))
}

func TestBuildGraphRedirect(t *testing.T) {
	recs := records([]netlogtest.Request{
		{
			URL:       "http://example.com/",
			Type:      netlog.ResourceTypeDocument,
			Priority:  netlog.PriorityVeryHigh,
			StartTime: 1,
			EndTime:   1.1,
			RedirectTo: &netlogtest.Request{
				URL:     pageURL,
				EndTime: 1.3,
			},
		},
		{
			URL:       pageURL + "late.js",
			Type:      netlog.ResourceTypeScript,
			StartTime: 1.4,
			EndTime:   1.5,
			Initiator: scriptInitiated("https://unknown.example.com/x.js"),
		},
	})
	rec := diag.NewNop()
	root, err := BuildGraph(recs, nil, nil, URLs{MainDocumentURL: pageURL}, BuildOptions{Diag: rec})
	require.NoError(t, err)

	assert.Equal(t, "1", root.ID())
	assert.False(t, root.(*NetworkNode).IsMainDocument)
	doc := findNode(t, root, "1:redirect").(*NetworkNode)
	assert.True(t, doc.IsMainDocument)
	assert.Equal(t, []string{"1"}, dependencyIDs(doc))

	// Unresolvable initiators fall back to the root.
	assert.Equal(t, []string{"1"}, dependencyIDs(findNode(t, root, "2")))
	assert.Equal(t, int64(1), rec.Count(diag.GraphUnresolvedInitiator))
}

func TestBuildGraphNoMainDocument(t *testing.T) {
	recs := records([]netlogtest.Request{
		{URL: pageURL + "app.js", Type: netlog.ResourceTypeScript, StartTime: 1, EndTime: 2},
	})
	_, err := BuildGraph(recs, nil, nil, URLs{MainDocumentURL: "https://other.example.com/"}, BuildOptions{})
	assert.ErrorIs(t, err, ErrNoMainDocument)

	_, err = BuildGraph(nil, nil, nil, pageURLs, BuildOptions{})
	assert.ErrorIs(t, err, ErrNoMainDocument)
}

func TestBuildGraphMainDocumentGuess(t *testing.T) {
	rec := diag.NewNop()
	root, err := BuildGraph(records(pageRequests()), nil, nil, URLs{MainDocumentURL: "https://other.example.com/"},
		BuildOptions{Diag: rec})
	require.NoError(t, err)
	assert.Equal(t, "1", root.ID())
	assert.True(t, root.(*NetworkNode).IsMainDocument)
	assert.Equal(t, int64(1), rec.Count(diag.GraphMainDocumentGuess))

	// Matching the URL is not a guess.
	rec = diag.NewNop()
	_, err = BuildGraph(records(pageRequests()), nil, nil, pageURLs, BuildOptions{Diag: rec})
	require.NoError(t, err)
	assert.Zero(t, rec.Count(diag.GraphMainDocumentGuess))
}

func TestBuildGraphCPU(t *testing.T) {
	res := tracetest.Result(tracetest.Options{
		TimeOrigin: 1_000_000,
		Tasks: []tracetest.Task{
			{
				// Short, but evaluates a script, installs a timer and sends a request.
				Ts:  1_450_000,
				Dur: 5_000,
				Children: []tracetest.Raw{
					{"name": "EvaluateScript", "ph": "X", "ts": 1_450_100.0, "dur": 1_000.0, "args": tracetest.Raw{"data": tracetest.Raw{"url": pageURL + "app.js"}}},
					{"name": "TimerInstall", "ph": "I", "ts": 1_451_200.0, "s": "t", "args": tracetest.Raw{"data": tracetest.Raw{"timerId": 1}}},
					{"name": "ResourceSendRequest", "ph": "I", "ts": 1_451_300.0, "s": "t", "args": tracetest.Raw{"data": tracetest.Raw{"requestId": "4"}}},
				},
			},
			{
				Ts:  1_700_000,
				Dur: 2_000,
				Children: []tracetest.Raw{
					{"name": "TimerFire", "ph": "X", "ts": 1_700_100.0, "dur": 500.0, "args": tracetest.Raw{"data": tracetest.Raw{"timerId": 1}}},
				},
			},
			// Short and unrelated to anything.
			{Ts: 1_800_000, Dur: 1_000},
			// Long tasks are always kept.
			{Ts: 1_900_000, Dur: 15_000},
		},
	})
	tr, err := ptrace.Parse(res, ptrace.Options{})
	require.NoError(t, err)
	tasks := ptrace.MainThreadTasks(tr)
	require.Len(t, tasks, 4)

	root, err := BuildGraph(records(pageRequests()), tr, tasks, pageURLs, BuildOptions{})
	require.NoError(t, err)

	var cpu []*CPUNode
	for n := range Traverse(root) {
		if n, ok := n.(*CPUNode); ok {
			cpu = append(cpu, n)
		}
	}
	require.Len(t, cpu, 3)

	script, timer, long := cpu[0], cpu[1], cpu[2]
	assert.Equal(t, trace.Timestamp(1_450_000), script.StartTime())
	assert.Equal(t, []string{"3"}, dependencyIDs(script))
	assert.Equal(t, []string{script.ID()}, dependencyIDs(timer))
	assert.Equal(t, []string{"1"}, dependencyIDs(long))
	assert.InDelta(t, 15.0, long.Duration(), 1e-9)

	img := findNode(t, root, "4")
	assert.ElementsMatch(t, []string{"3", script.ID()}, dependencyIDs(img))
}

func TestCycle(t *testing.T) {
	a := &NetworkNode{baseNode: baseNode{id: "a"}}
	b := &NetworkNode{baseNode: baseNode{id: "b"}}
	c := &NetworkNode{baseNode: baseNode{id: "c"}}
	addDependency(b, a)
	addDependency(c, b)
	addDependency(b, c)

	cerr := FindCycle(a)
	require.NotNil(t, cerr)
	assert.Equal(t, []string{"c", "b"}, cerr.Path)
	assert.True(t, errors.Is(cerr, ErrCyclicDependency))

	// Nodes on the cycle are never yielded.
	assert.Equal(t, []string{"a"}, ids(Nodes(a)))

	_, err := (&Simulator{}).Simulate(a, DefaultSettings().Optimistic())
	var target *CycleError
	require.ErrorAs(t, err, &target)
	assert.ErrorIs(t, err, ErrCyclicDependency)
}

func TestAddDependencyIgnoresDuplicates(t *testing.T) {
	a := &NetworkNode{baseNode: baseNode{id: "a"}}
	b := &NetworkNode{baseNode: baseNode{id: "b"}}
	addDependency(b, a)
	addDependency(b, a)
	addDependency(a, a)
	assert.Len(t, b.Dependencies(), 1)
	assert.Len(t, a.Dependents(), 1)
	assert.Empty(t, a.Dependencies())
}

func TestTraverseIsRepeatable(t *testing.T) {
	root, err := BuildGraph(records(pageRequests()), nil, nil, pageURLs, BuildOptions{})
	require.NoError(t, err)

	seq := Traverse(root)
	var first, second []string
	for n := range seq {
		first = append(first, n.ID())
	}
	for n := range seq {
		second = append(second, n.ID())
		if len(second) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"1", "2", "3", "4"}, first)
	assert.Equal(t, first[:2], second)
}

func TestCloneWithRelationships(t *testing.T) {
	root, err := BuildGraph(records(pageRequests()), nil, nil, pageURLs, BuildOptions{})
	require.NoError(t, err)

	clone := CloneWithRelationships(root, func(n Node) bool { return n.ID() == "4" })
	assert.Equal(t, []string{"1", "3", "4"}, ids(Nodes(clone)))
	assert.NotSame(t, root, clone)
	assert.Same(t, root.(*NetworkNode).Record, clone.(*NetworkNode).Record)
	assert.True(t, clone.(*NetworkNode).IsMainDocument)

	// The original graph is untouched.
	assert.Len(t, root.Dependents(), 2)
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids(Nodes(root)))

	// The root is kept even if nothing matches.
	assert.Equal(t, []string{"1"}, ids(Nodes(CloneWithRelationships(root, func(Node) bool { return false }))))
}
