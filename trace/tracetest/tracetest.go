// Package tracetest builds small synthetic traces for tests.
//
// The generated trace mimics a single tab: a browser process announcing its frame tree, a renderer main thread with a
// navigationStart, a first contentful paint shortly after, optional top-level tasks, and a final event marking the end
// of the trace.
package tracetest

import (
	"bytes"
	"fmt"

	"github.com/go-json-experiment/json"

	"honnef.co/go/lantern/trace"
)

const (
	Pid     = 1111
	Tid     = 222
	FrameID = "3EFC2700D7BC3F4734CAF2F726EFB78C"
	URL     = "https://example.com/"
)

// Raw is a trace event in its JSON form.
type Raw = map[string]any

// Task is a top-level main thread task.
type Task struct {
	Name     string          // defaults to RunTask
	Ts       trace.Timestamp // start, in microseconds
	Dur      float64         // duration, in microseconds
	Children []Raw           // nested events; pid and tid are filled in
}

type Options struct {
	// TimeOrigin is the timestamp of navigationStart, in microseconds.
	TimeOrigin trace.Timestamp
	// FCPOffset is the distance between navigationStart and firstContentfulPaint, in microseconds. Defaults to 10.
	// A negative offset omits the event.
	FCPOffset float64
	// TraceEnd is the timestamp of the last event, in microseconds. Defaults to TimeOrigin + 2000000.
	TraceEnd trace.Timestamp
	URL      string
	Tasks    []Task
	// Extra events are appended verbatim, after filling in missing pid and tid.
	Extra []Raw
}

// Events returns the trace as a list of raw events.
func Events(opts Options) []Raw {
	if opts.FCPOffset == 0 {
		opts.FCPOffset = 10
	}
	if opts.TraceEnd == 0 {
		opts.TraceEnd = opts.TimeOrigin + 2_000_000
	}
	if opts.URL == "" {
		opts.URL = URL
	}

	evs := []Raw{
		{
			"name": "TracingStartedInBrowser",
			"ts":   float64(opts.TimeOrigin),
			"pid":  Pid,
			"tid":  Tid,
			"ph":   "I",
			"cat":  "disabled-by-default-devtools.timeline",
			"s":    "t",
			"args": Raw{"data": Raw{
				"frameTreeNodeId": 6,
				"persistentIds":   true,
				"frames": []Raw{
					{"frame": FrameID, "url": "about:blank", "name": "", "processId": Pid},
				},
			}},
		},
		{
			"name": "thread_name",
			"ts":   float64(opts.TimeOrigin),
			"dur":  0,
			"pid":  Pid,
			"tid":  Tid,
			"ph":   "M",
			"cat":  "__metadata",
			"args": Raw{"name": "CrRendererMain"},
		},
		{
			"name": "navigationStart",
			"ts":   float64(opts.TimeOrigin),
			"pid":  Pid,
			"tid":  Tid,
			"ph":   "R",
			"cat":  "blink.user_timing",
			"args": Raw{
				"frame": FrameID,
				"data": Raw{
					"documentLoaderURL":  opts.URL,
					"isLoadingMainFrame": true,
					"navigationId":       "0x1",
				},
			},
		},
	}
	if opts.FCPOffset > 0 {
		evs = append(evs, Mark("firstContentfulPaint", opts.TimeOrigin+trace.Timestamp(opts.FCPOffset)))
	}

	for _, task := range opts.Tasks {
		name := task.Name
		if name == "" {
			name = "RunTask"
		}
		evs = append(evs, Raw{
			"name": name,
			"ts":   float64(task.Ts),
			"dur":  task.Dur,
			"pid":  Pid,
			"tid":  Tid,
			"ph":   "X",
			"cat":  "toplevel",
			"args": Raw{},
		})
		for _, child := range task.Children {
			evs = append(evs, fill(child))
		}
	}
	for _, ev := range opts.Extra {
		evs = append(evs, fill(ev))
	}

	evs = append(evs, Raw{
		"name": "Some trace end event",
		"ts":   float64(opts.TraceEnd),
		"pid":  Pid,
		"tid":  Tid,
		"ph":   "I",
		"cat":  "devtools.timeline",
		"s":    "t",
	})
	return evs
}

func fill(ev Raw) Raw {
	out := make(Raw, len(ev)+2)
	for k, v := range ev {
		out[k] = v
	}
	if _, ok := out["pid"]; !ok {
		out["pid"] = Pid
	}
	if _, ok := out["tid"]; !ok {
		out["tid"] = Tid
	}
	if _, ok := out["cat"]; !ok {
		out["cat"] = "devtools.timeline"
	}
	return out
}

// Mark returns a mark event for the tracked frame, as used for paint and lifecycle milestones.
func Mark(name string, ts trace.Timestamp) Raw {
	return Raw{
		"name": name,
		"ts":   float64(ts),
		"pid":  Pid,
		"tid":  Tid,
		"ph":   "R",
		"cat":  "loading,rail,devtools.timeline",
		"args": Raw{"frame": FrameID},
	}
}

// Marshal encodes the trace in the JSON object format.
func Marshal(opts Options) []byte {
	b, err := json.Marshal(Raw{"traceEvents": Events(opts)})
	if err != nil {
		panic(fmt.Sprintf("tracetest: cannot encode trace: %s", err))
	}
	return b
}

// Result parses the trace described by opts.
func Result(opts Options) trace.ParseResult {
	res, err := trace.Parse(bytes.NewReader(Marshal(opts)))
	if err != nil {
		panic(fmt.Sprintf("tracetest: cannot parse trace: %s", err))
	}
	return res
}
