package lantern

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"honnef.co/go/lantern/diag"
	"honnef.co/go/lantern/netlog"
	"honnef.co/go/lantern/trace"
	"honnef.co/go/lantern/trace/ptrace"
)

var ErrNoMainDocument = errors.New("could not find the main document request")

const (
	// SignificantTaskDuration is the minimum duration of a task that has no relationships for it to be included in
	// the graph.
	SignificantTaskDuration = 10 * time.Millisecond
	// MinRequestDuration is the duration, in microseconds, given to requests whose observed end is missing or
	// precedes their start.
	MinRequestDuration trace.Timestamp = 1000
	// urlDependencyTolerance is how long, in microseconds, a request may still be running after the start of a task
	// that uses its URL.
	urlDependencyTolerance trace.Timestamp = 100_000
)

// URLs identifies the page that was loaded.
type URLs struct {
	RequestedURL    string
	MainDocumentURL string
	FinalURL        string
}

type BuildOptions struct {
	Logger *zap.Logger
	Diag   *diag.Recorder
}

func (opts BuildOptions) logger() *zap.Logger {
	if opts.Logger == nil {
		return zap.NewNop()
	}
	return opts.Logger
}

type graphBuilder struct {
	tr     *ptrace.Trace
	origin trace.Timestamp
	log    *zap.Logger
	diag   *diag.Recorder

	root     *NetworkNode
	network  []*NetworkNode
	byRecord map[*netlog.Record]*NetworkNode
	byID     map[string]*NetworkNode
	byURL    map[string][]*NetworkNode
	byConn   map[int64][]*NetworkNode
	cpu      []*CPUNode
}

// BuildGraph builds the dependency graph of a page load and returns its root, the first request of the main
// document's redirect chain. tr may be nil, in which case the graph only contains network requests. tasks are the
// main thread tasks of tr, as returned by ptrace.MainThreadTasks.
func BuildGraph(records []*netlog.Record, tr *ptrace.Trace, tasks []*ptrace.Task, urls URLs, opts BuildOptions) (Node, error) {
	doc, err := findMainDocument(records, urls, opts.logger(), opts.Diag)
	if err != nil {
		return nil, err
	}

	b := &graphBuilder{
		tr:       tr,
		log:      opts.logger(),
		diag:     opts.Diag,
		byRecord: map[*netlog.Record]*NetworkNode{},
		byID:     map[string]*NetworkNode{},
		byURL:    map[string][]*NetworkNode{},
		byConn:   map[int64][]*NetworkNode{},
	}
	if tr != nil {
		b.origin = tr.Timestamps[ptrace.TimeOrigin]
	}

	b.addNetworkNodes(records, doc)
	head := doc
	for head.RedirectSource != nil && b.byRecord[head.RedirectSource] != nil {
		head = head.RedirectSource
	}
	b.root = b.byRecord[head]
	b.linkNetworkNodes()
	if tr != nil {
		b.addCPUNodes(tasks)
		b.linkCPUNodes()
	}

	if cerr := FindCycle(b.root); cerr != nil {
		return nil, cerr
	}
	b.log.Debug("built dependency graph",
		zap.String("root", b.root.ID()),
		zap.Int("networkNodes", len(b.network)),
		zap.Int("cpuNodes", len(b.cpu)))
	return b.root, nil
}

func stripFragment(u string) string {
	if i := strings.IndexByte(u, '#'); i >= 0 {
		return u[:i]
	}
	return u
}

// findMainDocument returns the last request of the main document's redirect chain. If no request matches the page's
// URL, the first document request is used instead.
func findMainDocument(records []*netlog.Record, urls URLs, log *zap.Logger, rec *diag.Recorder) (*netlog.Record, error) {
	want := urls.MainDocumentURL
	if want == "" {
		want = urls.FinalURL
	}
	if want == "" {
		want = urls.RequestedURL
	}
	want = stripFragment(want)

	var doc *netlog.Record
	if want != "" {
		for _, r := range records {
			if stripFragment(r.URL) == want && r.ResourceType == netlog.ResourceTypeDocument {
				doc = r
				break
			}
		}
		if doc == nil {
			for _, r := range records {
				if stripFragment(r.URL) == want {
					doc = r
					break
				}
			}
		}
	}
	if doc == nil {
		for _, r := range records {
			if r.ResourceType == netlog.ResourceTypeDocument {
				doc = r
				break
			}
		}
		if doc != nil && want != "" {
			rec.Inc(diag.GraphMainDocumentGuess)
			log.Debug("no request for the page's URL, using the first document",
				zap.String("url", want),
				zap.String("document", doc.URL))
		}
	}
	if doc == nil {
		return nil, ErrNoMainDocument
	}
	for doc.RedirectDestination != nil {
		doc = doc.RedirectDestination
	}
	return doc, nil
}

func (b *graphBuilder) addNetworkNodes(records []*netlog.Record, doc *netlog.Record) {
	for _, rec := range records {
		start := trace.Timestamp(rec.StartTime * 1e6)
		end := trace.Timestamp(rec.EndTime * 1e6)
		clamped := false
		if start < b.origin {
			start = b.origin
			clamped = true
		}
		if end <= start {
			end = start + MinRequestDuration
			clamped = true
		}
		if clamped {
			b.diag.Inc(diag.GraphClampedRequest)
			b.log.Debug("clamping request times",
				zap.String("requestId", rec.RequestID),
				zap.Float64("startTime", rec.StartTime),
				zap.Float64("endTime", rec.EndTime))
		}

		n := &NetworkNode{
			baseNode:       baseNode{id: rec.RequestID, start: start, end: end},
			Record:         rec,
			IsMainDocument: rec == doc,
		}
		b.network = append(b.network, n)
		b.byRecord[rec] = n
		b.byID[rec.RequestID] = n
		b.byURL[rec.URL] = append(b.byURL[rec.URL], n)
		if rec.ConnectionID != 0 {
			b.byConn[rec.ConnectionID] = append(b.byConn[rec.ConnectionID], n)
		}
	}
}

func isMultiplexed(protocol string) bool {
	switch protocol {
	case "h2", "h3", "quic", "spdy":
		return true
	default:
		return false
	}
}

func (b *graphBuilder) linkNetworkNodes() {
	for _, n := range b.network {
		if n == b.root {
			continue
		}
		rec := n.Record
		if src := b.byRecord[rec.RedirectSource]; rec.RedirectSource != nil && src != nil {
			addDependency(n, src)
			continue
		}

		linked := false
		if init := b.initiator(n); init != nil {
			addDependency(n, init)
			linked = true
		}
		if prev := b.previousOnConnection(n); prev != nil {
			addDependency(n, prev)
			linked = true
		}
		if !linked {
			addDependency(n, b.root)
		}
	}
}

// latestBefore returns the latest request for url that was observed before n.
func (b *graphBuilder) latestBefore(url string, n Node) *NetworkNode {
	var best *NetworkNode
	for _, c := range b.byURL[url] {
		if compareNodes(c, n) >= 0 {
			continue
		}
		if best == nil || compareNodes(c, best) > 0 {
			best = c
		}
	}
	return best
}

func (b *graphBuilder) initiator(n *NetworkNode) *NetworkNode {
	in := n.Record.Initiator
	var urls []string
	if in.URL != "" {
		urls = append(urls, in.URL)
	}
	urls = append(urls, in.StackURLs()...)
	if len(urls) == 0 {
		return nil
	}
	for _, u := range urls {
		if c := b.latestBefore(u, n); c != nil {
			return c
		}
	}
	b.diag.Inc(diag.GraphUnresolvedInitiator)
	b.log.Debug("could not resolve initiator", zap.String("requestId", n.ID()), zap.Strings("urls", urls))
	return nil
}

// previousOnConnection returns the request that last used n's connection before n, if n reused a connection that
// can only serve one request at a time.
func (b *graphBuilder) previousOnConnection(n *NetworkNode) *NetworkNode {
	rec := n.Record
	if !rec.ConnectionReused || rec.ConnectionID == 0 || isMultiplexed(rec.Protocol) {
		return nil
	}
	var best *NetworkNode
	for _, c := range b.byConn[rec.ConnectionID] {
		if c == n || c.end > n.start {
			continue
		}
		if best == nil || c.end > best.end || (c.end == best.end && compareNodes(c, best) > 0) {
			best = c
		}
	}
	return best
}

func (b *graphBuilder) addCPUNodes(tasks []*ptrace.Task) {
	for _, task := range tasks {
		if task.Start < b.root.start {
			continue
		}
		n := &CPUNode{
			baseNode: baseNode{id: "cpu." + strconv.Itoa(int(task.Event)), start: task.Start, end: task.End},
			Task:     task,
		}
		for _, id := range task.Children {
			n.Events = append(n.Events, b.tr.Event(id))
		}
		b.cpu = append(b.cpu, n)
	}
	slices.SortFunc(b.cpu, func(x, y *CPUNode) int { return compareNodes(x, y) })
}

func timerKey(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func (b *graphBuilder) linkCPUNodes() {
	timers := map[string]*CPUNode{}
	for _, n := range b.cpu {
		for _, ev := range n.Events {
			if ev.Name == "ParseHTML" && ev.Args.BeginData != nil {
				b.dependOnURL(n, ev.Args.BeginData.URL)
			}
			data := ev.Args.Data
			if data == nil {
				continue
			}
			switch ev.Name {
			case "TimerInstall":
				if k := timerKey(data.TimerID); k != "" {
					timers[k] = n
				}
			case "TimerFire":
				if inst := timers[timerKey(data.TimerID)]; inst != nil {
					addDependency(n, inst)
				}
			case "EvaluateScript", "v8.compile", "FunctionCall":
				b.dependOnURL(n, data.URL)
			case "ParseAuthorStyleSheet":
				b.dependOnURL(n, data.StyleSheetURL)
			case "XHRReadyStateChange":
				if data.ReadyState == 4 {
					b.dependOnURL(n, data.URL)
				}
			case "ResourceSendRequest":
				if req := b.byID[data.RequestID]; req != nil && req != b.root {
					addDependency(req, n)
				}
			}
			for _, cf := range data.StackTrace {
				b.dependOnURL(n, cf.URL)
			}
		}
	}

	kept := b.cpu[:0]
	for _, n := range b.cpu {
		linked := len(n.dependencies) != 0 || len(n.dependents) != 0
		if !linked && n.Task.Duration() < SignificantTaskDuration {
			continue
		}
		if len(n.dependencies) == 0 {
			addDependency(n, b.root)
		}
		kept = append(kept, n)
	}
	b.cpu = kept
}

// dependOnURL makes n depend on the request for url that ended closest to n's start.
func (b *graphBuilder) dependOnURL(n *CPUNode, url string) {
	if url == "" {
		return
	}
	var best *NetworkNode
	var bestDist trace.Timestamp
	for _, c := range b.byURL[url] {
		if c.start >= n.start {
			continue
		}
		dist := n.start - c.end
		if dist < -urlDependencyTolerance {
			continue
		}
		if best == nil || dist < bestDist {
			best, bestDist = c, dist
		}
	}
	if best != nil {
		addDependency(n, best)
	}
}
