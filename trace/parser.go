package trace

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/golang/snappy"
)

// Timestamp is a point on the trace clock, in microseconds.
type Timestamp float64

// Since returns the time elapsed between origin and ts in milliseconds.
func (ts Timestamp) Since(origin Timestamp) float64 {
	return float64(ts-origin) / 1000
}

// Event describes one event in the trace.
type Event struct {
	Name string
	Cat  string
	Ph   Phase
	Pid  int64
	Tid  int64
	Ts   Timestamp // timestamp in microseconds
	Tts  Timestamp // thread timestamp in microseconds, 0 if absent
	Dur  float64   // duration in microseconds for complete events
	S    string    // scope of instant events
	Args Args

	// Seq is the event's position in the original stream. It is used to keep sorting stable and to identify events
	// across partitions.
	Seq int
}

// End returns the end of a complete event, or its timestamp for all other events.
func (ev *Event) End() Timestamp {
	return ev.Ts + Timestamp(ev.Dur)
}

// FrameID returns the frame the event belongs to, looking at both args.frame and args.data.frame.
func (ev *Event) FrameID() string {
	if ev.Args.Frame != "" {
		return ev.Args.Frame
	}
	if ev.Args.Data != nil {
		return ev.Args.Data.Frame
	}
	return ""
}

// Args holds the subset of event arguments that we make use of. Unknown members are ignored.
type Args struct {
	Frame     string    `json:"frame"`
	Name      string    `json:"name"`
	Data      *ArgsData `json:"data"`
	BeginData *ArgsData `json:"beginData"`
}

type ArgsData struct {
	Frame              string      `json:"frame"`
	Parent             string      `json:"parent"`
	ProcessID          int64       `json:"processId"`
	Frames             []FrameInfo `json:"frames"`
	Page               string      `json:"page"`
	URL                string      `json:"url"`
	Name               string      `json:"name"`
	RequestID          string      `json:"requestId"`
	StackTrace         []CallFrame `json:"stackTrace"`
	ReadyState         int         `json:"readyState"`
	TimerID            any         `json:"timerId"`
	IsLoadingMainFrame bool        `json:"isLoadingMainFrame"`
	DocumentLoaderURL  string      `json:"documentLoaderURL"`
	NavigationID       string      `json:"navigationId"`
	StyleSheetURL      string      `json:"styleSheetUrl"`
}

// FrameInfo describes a frame as listed by TracingStartedInBrowser and FrameCommittedInBrowser.
type FrameInfo struct {
	Frame     string `json:"frame"`
	Parent    string `json:"parent"`
	URL       string `json:"url"`
	Name      string `json:"name"`
	ProcessID int64  `json:"processId"`
}

// CallFrame is a frame in JavaScript stack traces.
type CallFrame struct {
	FunctionName string `json:"functionName"`
	URL          string `json:"url"`
	LineNumber   int    `json:"lineNumber"`
	ColumnNumber int    `json:"columnNumber"`
}

// ParseResult is the result of Parse.
type ParseResult struct {
	// Events is the sorted list of Events in the trace.
	Events []Event
	// Quarantined is the number of events that were dropped because their phase was unknown or their fields had the
	// wrong types.
	Quarantined int
	// MalformedArgs is the number of events whose arguments could not be decoded. These events are kept, with empty
	// arguments.
	MalformedArgs int
}

// ErrEmptyTrace is returned by Parse when the input contains no usable events.
var ErrEmptyTrace = errors.New("trace is empty")

// rawEvent is a helper type used during parsing.
type rawEvent struct {
	Name string         `json:"name"`
	Cat  string         `json:"cat"`
	Ph   string         `json:"ph"`
	Pid  int64          `json:"pid"`
	Tid  int64          `json:"tid"`
	Ts   float64        `json:"ts"`
	Tts  float64        `json:"tts"`
	Dur  float64        `json:"dur"`
	S    string         `json:"s"`
	Args jsontext.Value `json:"args"`
}

type traceObject struct {
	TraceEvents []jsontext.Value `json:"traceEvents"`
}

var decodeOptions = json.JoinOptions(
	jsontext.AllowDuplicateNames(true),
	jsontext.AllowInvalidUTF8(true),
)

// snappyMagic is the stream identifier chunk of the snappy framing format.
var snappyMagic = []byte("\xff\x06\x00\x00sNaPpY")

// Decompress returns a reader that transparently decodes snappy-framed input. Other input is returned unchanged.
func Decompress(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(snappyMagic)); err == nil && bytes.Equal(head, snappyMagic) {
		return snappy.NewReader(br)
	}
	return br
}

// Parse parses a trace in either the JSON array format or the JSON object format with a traceEvents member, and
// returns its events in stable timestamp order.
func Parse(r io.Reader) (ParseResult, error) {
	data, err := io.ReadAll(Decompress(r))
	if err != nil {
		return ParseResult{}, fmt.Errorf("failed to read trace: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ParseResult{}, ErrEmptyTrace
	}

	var raws []jsontext.Value
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &raws, decodeOptions); err != nil {
			return ParseResult{}, fmt.Errorf("failed to decode trace events: %w", err)
		}
	case '{':
		var obj traceObject
		if err := json.Unmarshal(data, &obj, decodeOptions); err != nil {
			return ParseResult{}, fmt.Errorf("failed to decode trace object: %w", err)
		}
		raws = obj.TraceEvents
	default:
		return ParseResult{}, fmt.Errorf("not a trace file: unexpected leading byte %q", data[0])
	}

	var res ParseResult
	res.Events = make([]Event, 0, len(raws))
	for i, v := range raws {
		raw := &rawEvent{}
		if err := json.Unmarshal(v, raw, decodeOptions); err != nil {
			res.Quarantined++
			continue
		}
		ph, ok := ParsePhase(raw.Ph)
		if !ok {
			res.Quarantined++
			continue
		}
		ev := Event{
			Name: raw.Name,
			Cat:  raw.Cat,
			Ph:   ph,
			Pid:  raw.Pid,
			Tid:  raw.Tid,
			Ts:   Timestamp(raw.Ts),
			Tts:  Timestamp(raw.Tts),
			Dur:  raw.Dur,
			S:    raw.S,
			Seq:  i,
		}
		if len(raw.Args) != 0 {
			if err := json.Unmarshal(raw.Args, &ev.Args, decodeOptions); err != nil {
				ev.Args = Args{}
				res.MalformedArgs++
			}
		}
		res.Events = append(res.Events, ev)
	}
	if len(res.Events) == 0 {
		return ParseResult{}, ErrEmptyTrace
	}

	Sort(res.Events)
	return res, nil
}
