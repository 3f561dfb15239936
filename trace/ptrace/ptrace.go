// Package ptrace processes a browser trace and enriches it with additional information: the tracked tab, its lifecycle
// milestones, and the partitions of events that belong to it.
package ptrace

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"honnef.co/go/lantern/container"
	"honnef.co/go/lantern/diag"
	"honnef.co/go/lantern/trace"
)

var (
	// ErrNoNavigationStart is returned when the trace has no time origin for the tracked frame.
	ErrNoNavigationStart = errors.New("no navigationStart event found")
	// ErrNoTracingStarted describes traces without any marker identifying the tracked tab. It is only ever returned
	// together with ErrNoNavigationStart.
	ErrNoTracingStarted = errors.New("no TracingStartedInBrowser or TracingStartedInPage event found")
)

// EventID indexes Trace.Events.
type EventID int32

// MainFrameIDs identifies the tracked tab.
type MainFrameIDs struct {
	Pid     int64  `json:"pid"`
	Tid     int64  `json:"tid"`
	FrameID string `json:"frameId"`
}

type Frame struct {
	ID     string `json:"id"`
	Parent string `json:"parent,omitempty"`
	URL    string `json:"url"`
}

type MilestoneName string

const (
	TimeOrigin                    MilestoneName = "timeOrigin"
	FirstPaint                    MilestoneName = "firstPaint"
	FirstContentfulPaint          MilestoneName = "firstContentfulPaint"
	FirstContentfulPaintAllFrames MilestoneName = "firstContentfulPaintAllFrames"
	FirstMeaningfulPaint          MilestoneName = "firstMeaningfulPaint"
	LargestContentfulPaint        MilestoneName = "largestContentfulPaint"
	DOMContentLoaded              MilestoneName = "domContentLoaded"
	Load                          MilestoneName = "load"
	TraceEnd                      MilestoneName = "traceEnd"
)

// Milestone is a located lifecycle event.
type Milestone struct {
	Event     EventID         `json:"event"`
	Timestamp trace.Timestamp `json:"timestamp"`
	// Timing is the time since the time origin, in milliseconds.
	Timing float64 `json:"timing"`
}

type Milestones struct {
	TimeOrigin                    Milestone
	FirstPaint                    container.Option[Milestone]
	FirstContentfulPaint          container.Option[Milestone]
	FirstContentfulPaintAllFrames container.Option[Milestone]
	FirstMeaningfulPaint          container.Option[Milestone]
	LargestContentfulPaint        container.Option[Milestone]
	DOMContentLoaded              container.Option[Milestone]
	Load                          container.Option[Milestone]

	// FMPFellBack is set when the main frame has no firstMeaningfulPaint event and either one from another frame of
	// the tracked process or the last candidate was used instead.
	FMPFellBack bool
	// FMPInvalidated is set when a navigation started after the chosen first meaningful paint.
	FMPInvalidated bool
	// LCPInvalidated is set when the largest contentful paint was invalidated, either explicitly or by a later
	// navigation.
	LCPInvalidated bool
}

// Get returns the milestone with the given name. TraceEnd is not a milestone and is never returned.
func (ms *Milestones) Get(name MilestoneName) container.Option[Milestone] {
	switch name {
	case TimeOrigin:
		return container.Some(ms.TimeOrigin)
	case FirstPaint:
		return ms.FirstPaint
	case FirstContentfulPaint:
		return ms.FirstContentfulPaint
	case FirstContentfulPaintAllFrames:
		return ms.FirstContentfulPaintAllFrames
	case FirstMeaningfulPaint:
		return ms.FirstMeaningfulPaint
	case LargestContentfulPaint:
		return ms.LargestContentfulPaint
	case DOMContentLoaded:
		return ms.DOMContentLoaded
	case Load:
		return ms.Load
	default:
		return container.None[Milestone]()
	}
}

type Options struct {
	Logger *zap.Logger
	Diag   *diag.Recorder
}

func (opts Options) logger() *zap.Logger {
	if opts.Logger == nil {
		return zap.NewNop()
	}
	return opts.Logger
}

// Trace is a trace that has been attributed to a single tab.
type Trace struct {
	trace.ParseResult

	MainFrameIDs MainFrameIDs
	Frames       []Frame

	// All events of the tracked process.
	ProcessEvents []EventID
	// Events of the tracked process's main thread.
	MainThreadEvents []EventID
	// Events of the tracked process that belong to the main frame.
	FrameEvents []EventID
	// Events of any process that belong to the main frame or one of its descendants.
	FrameTreeEvents []EventID

	Milestones Milestones
	// TraceEndTs is the latest end of any event.
	TraceEndTs trace.Timestamp

	// Timings maps milestones to milliseconds since the time origin. Absent milestones have no entry.
	Timings map[MilestoneName]float64
	// Timestamps maps milestones to their absolute timestamps.
	Timestamps map[MilestoneName]trace.Timestamp

	log  *zap.Logger
	diag *diag.Recorder
}

func (tr *Trace) Event(id EventID) *trace.Event {
	return &tr.Events[id]
}

// Parse locates the tracked tab in res and extracts its milestones.
func Parse(res trace.ParseResult, opts Options) (*Trace, error) {
	tr := &Trace{
		ParseResult: res,
		log:         opts.logger(),
		diag:        opts.Diag,
	}
	tr.diag.Add(diag.TraceQuarantinedEvent, int64(res.Quarantined))
	tr.diag.Add(diag.TraceMalformedArgs, int64(res.MalformedArgs))

	ids, err := findMainFrameIDs(res.Events)
	if err != nil {
		return nil, err
	}
	tr.MainFrameIDs = ids
	tr.partition()

	if err := tr.computeMilestones(); err != nil {
		return nil, err
	}
	tr.log.Debug("processed trace",
		zap.Int64("pid", ids.Pid),
		zap.Int64("tid", ids.Tid),
		zap.String("frame", ids.FrameID),
		zap.Int("processEvents", len(tr.ProcessEvents)),
		zap.Int("mainThreadEvents", len(tr.MainThreadEvents)))
	return tr, nil
}

// findMainFrameIDs locates the process, thread and frame of the tab that was traced.
func findMainFrameIDs(events []trace.Event) (MainFrameIDs, error) {
	// Prefer the browser's description of the frame tree, the outermost frame being the one without a parent.
	for i := range events {
		ev := &events[i]
		if ev.Name != "TracingStartedInBrowser" || ev.Args.Data == nil || len(ev.Args.Data.Frames) == 0 {
			continue
		}
		var main *trace.FrameInfo
		for j := range ev.Args.Data.Frames {
			if ev.Args.Data.Frames[j].Parent == "" {
				main = &ev.Args.Data.Frames[j]
				break
			}
		}
		if main == nil || main.ProcessID == 0 {
			break
		}
		tid := ev.Tid
		if tn, ok := findRendererMain(events, main.ProcessID); ok {
			tid = tn
		}
		return MainFrameIDs{Pid: main.ProcessID, Tid: tid, FrameID: main.Frame}, nil
	}

	for i := range events {
		ev := &events[i]
		if ev.Name == "TracingStartedInPage" && ev.Args.Data != nil && ev.Args.Data.Page != "" {
			return MainFrameIDs{Pid: ev.Pid, Tid: ev.Tid, FrameID: ev.Args.Data.Page}, nil
		}
	}

	for i := range events {
		ev := &events[i]
		if !isNavigationStartOfInterest(ev) || ev.Args.Data == nil {
			continue
		}
		if ev.Args.Data.IsLoadingMainFrame && ev.Args.Data.DocumentLoaderURL != "" {
			return MainFrameIDs{Pid: ev.Pid, Tid: ev.Tid, FrameID: ev.Args.Frame}, nil
		}
	}

	return MainFrameIDs{}, fmt.Errorf("%w: %w", ErrNoNavigationStart, ErrNoTracingStarted)
}

func findRendererMain(events []trace.Event, pid int64) (int64, bool) {
	for i := range events {
		ev := &events[i]
		if ev.Pid == pid && ev.Ph == trace.PhaseMetadata && ev.Name == "thread_name" && ev.Args.Name == "CrRendererMain" {
			return ev.Tid, true
		}
	}
	return 0, false
}

func isNavigationStartOfInterest(ev *trace.Event) bool {
	if ev.Name != "navigationStart" {
		return false
	}
	if ev.Args.Data == nil || ev.Args.Data.DocumentLoaderURL == "" {
		return true
	}
	// Navigations to about:blank and friends don't load a page.
	return strings.HasPrefix(ev.Args.Data.DocumentLoaderURL, "http")
}

func (tr *Trace) partition() {
	ids := tr.MainFrameIDs

	// Build the frame tree from frame commits, seeded with the main frame.
	parents := map[string]string{}
	seen := container.Set[string]{}
	addFrame := func(f trace.FrameInfo) {
		if f.Frame == "" {
			return
		}
		if f.Parent != "" {
			parents[f.Frame] = f.Parent
		}
		if seen.AddNew(f.Frame) {
			tr.Frames = append(tr.Frames, Frame{ID: f.Frame, Parent: f.Parent, URL: f.URL})
		}
	}
	for i := range tr.Events {
		ev := &tr.Events[i]
		if ev.Name == "FrameCommittedInBrowser" && ev.Args.Data != nil {
			addFrame(trace.FrameInfo{
				Frame:  ev.Args.Data.Frame,
				Parent: ev.Args.Data.Parent,
				URL:    ev.Args.Data.URL,
			})
		}
	}

	inTree := map[string]bool{ids.FrameID: true}
	var isInTree func(frame string, depth int) bool
	isInTree = func(frame string, depth int) bool {
		if v, ok := inTree[frame]; ok {
			return v
		}
		parent, ok := parents[frame]
		// The depth limit protects against malformed parent cycles.
		v := ok && depth < 64 && isInTree(parent, depth+1)
		inTree[frame] = v
		return v
	}

	for i := range tr.Events {
		ev := &tr.Events[i]
		id := EventID(i)
		frame := ev.FrameID()
		if ev.Pid == ids.Pid {
			tr.ProcessEvents = append(tr.ProcessEvents, id)
			if ev.Tid == ids.Tid {
				tr.MainThreadEvents = append(tr.MainThreadEvents, id)
			}
			if ev.Args.Frame == ids.FrameID {
				tr.FrameEvents = append(tr.FrameEvents, id)
			}
		}
		if frame != "" && isInTree(frame, 0) {
			tr.FrameTreeEvents = append(tr.FrameTreeEvents, id)
		}
		if end := ev.End(); end > tr.TraceEndTs {
			tr.TraceEndTs = end
		}
	}
}

// first returns the first event in ids for which fn returns true.
func (tr *Trace) first(ids []EventID, fn func(ev *trace.Event) bool) (EventID, bool) {
	for _, id := range ids {
		if fn(tr.Event(id)) {
			return id, true
		}
	}
	return -1, false
}

func (tr *Trace) computeMilestones() error {
	originID, ok := tr.first(tr.FrameEvents, isNavigationStartOfInterest)
	if !ok {
		return ErrNoNavigationStart
	}
	origin := tr.Event(originID).Ts
	ms := &tr.Milestones
	ms.TimeOrigin = Milestone{Event: originID, Timestamp: origin}

	milestone := func(id EventID) container.Option[Milestone] {
		ts := tr.Event(id).Ts
		return container.Some(Milestone{Event: id, Timestamp: ts, Timing: ts.Since(origin)})
	}
	named := func(name string) func(ev *trace.Event) bool {
		return func(ev *trace.Event) bool {
			return ev.Name == name && ev.Ts > origin
		}
	}
	// findFrame prefers events of the main frame and falls back to the first candidate anywhere in the tracked
	// process. fellBack reports whether the fallback was used.
	findFrame := func(name string) (m container.Option[Milestone], fellBack bool) {
		if id, ok := tr.first(tr.FrameEvents, named(name)); ok {
			return milestone(id), false
		}
		if id, ok := tr.first(tr.ProcessEvents, named(name)); ok {
			return milestone(id), true
		}
		return container.None[Milestone](), false
	}
	find := func(name string) container.Option[Milestone] {
		m, _ := findFrame(name)
		return m
	}

	ms.FirstPaint = find("firstPaint")
	ms.FirstContentfulPaint = find("firstContentfulPaint")
	if id, ok := tr.first(tr.FrameTreeEvents, named("firstContentfulPaint")); ok {
		ms.FirstContentfulPaintAllFrames = milestone(id)
	} else {
		ms.FirstContentfulPaintAllFrames = ms.FirstContentfulPaint
	}
	ms.DOMContentLoaded = find("domContentLoadedEventEnd")
	ms.Load = find("loadEventEnd")

	ms.FirstMeaningfulPaint, ms.FMPFellBack = findFrame("firstMeaningfulPaint")
	if !ms.FirstMeaningfulPaint.Set() {
		var last EventID = -1
		for _, id := range tr.FrameEvents {
			if ev := tr.Event(id); ev.Name == "firstMeaningfulPaintCandidate" && ev.Ts > origin {
				last = id
			}
		}
		if last != -1 {
			ms.FirstMeaningfulPaint = milestone(last)
			ms.FMPFellBack = true
		}
	}

	var lcp EventID = -1
	for _, id := range tr.FrameEvents {
		ev := tr.Event(id)
		if ev.Ts <= origin {
			continue
		}
		switch ev.Name {
		case "largestContentfulPaint::Candidate":
			lcp = id
			ms.LCPInvalidated = false
		case "largestContentfulPaint::Invalidate":
			lcp = -1
			ms.LCPInvalidated = true
		}
	}
	if lcp != -1 {
		ms.LargestContentfulPaint = milestone(lcp)
	}

	// A later navigation replaces the page the paint milestones describe.
	navigatedAfter := func(m container.Option[Milestone]) bool {
		v, ok := m.Get()
		if !ok {
			return false
		}
		_, found := tr.first(tr.FrameEvents, func(ev *trace.Event) bool {
			return ev.Ts > v.Timestamp && isNavigationStartOfInterest(ev)
		})
		return found
	}
	if navigatedAfter(ms.FirstMeaningfulPaint) {
		ms.FMPInvalidated = true
	}
	if navigatedAfter(ms.LargestContentfulPaint) {
		ms.LCPInvalidated = true
	}

	tr.Timings = map[MilestoneName]float64{}
	tr.Timestamps = map[MilestoneName]trace.Timestamp{}
	for _, name := range []MilestoneName{
		TimeOrigin, FirstPaint, FirstContentfulPaint, FirstContentfulPaintAllFrames, FirstMeaningfulPaint,
		LargestContentfulPaint, DOMContentLoaded, Load,
	} {
		if m, ok := ms.Get(name).Get(); ok {
			tr.Timings[name] = m.Timing
			tr.Timestamps[name] = m.Timestamp
		}
	}
	tr.Timings[TraceEnd] = tr.TraceEndTs.Since(origin)
	tr.Timestamps[TraceEnd] = tr.TraceEndTs
	return nil
}
