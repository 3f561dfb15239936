// Package diag counts recoverable data anomalies encountered while processing traces and network logs.
//
// None of the anomalies are errors; processing continues with the best available value. Counting them makes these
// paths observable. Counts are kept in memory and, when a meter is configured, exported as an OpenTelemetry counter.
package diag

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/exp/slices"

	"honnef.co/go/lantern/mysync"
)

type Kind string

const (
	TraceQuarantinedEvent Kind = "trace.quarantined_event"
	TraceMalformedArgs    Kind = "trace.malformed_args"
	TraceUnmatchedEnd     Kind = "trace.unmatched_end"
	TraceUnclosedTask     Kind = "trace.unclosed_task"

	NetlogUnknownMethod    Kind = "netlog.unknown_method"
	NetlogMalformedParams  Kind = "netlog.malformed_params"
	NetlogUnmatchedEvent   Kind = "netlog.unmatched_event"
	NetlogDuplicateRequest Kind = "netlog.duplicate_request"
	NetlogNegativeWindow   Kind = "netlog.negative_window"
	NetlogUnfinished       Kind = "netlog.unfinished_request"

	RelayMalformedHeader Kind = "relay.malformed_header"
	RelayDeclined        Kind = "relay.declined"

	GraphClampedRequest      Kind = "lantern.clamped_request"
	GraphUnresolvedInitiator Kind = "lantern.unresolved_initiator"
	GraphMainDocumentGuess   Kind = "lantern.main_document_guess"
)

// AnomalyCounterName is the name of the exported OpenTelemetry counter.
const AnomalyCounterName = "lantern.anomalies"

// Recorder counts anomalies. A nil *Recorder is valid and discards everything. Recorders are safe for concurrent use.
type Recorder struct {
	counter metric.Int64Counter
	counts  mysync.Counters[Kind]
}

// New returns a recorder that exports its counts through meter. A nil meter only counts in memory.
func New(meter metric.Meter) (*Recorder, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("honnef.co/go/lantern")
	}
	counter, err := meter.Int64Counter(
		AnomalyCounterName,
		metric.WithDescription("Recoverable anomalies in trace and network log input."),
		metric.WithUnit("{anomaly}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create anomaly counter: %w", err)
	}
	return &Recorder{
		counter: counter,
		counts:  mysync.NewCounters[Kind](),
	}, nil
}

// NewNop returns a recorder that only counts in memory.
func NewNop() *Recorder {
	r, err := New(nil)
	if err != nil {
		// The noop meter never fails.
		panic(err)
	}
	return r
}

func (r *Recorder) Add(kind Kind, n int64) {
	if r == nil || n == 0 {
		return
	}
	r.counts.Add(kind, n)
	r.counter.Add(context.Background(), n, metric.WithAttributes(attribute.String("kind", string(kind))))
}

func (r *Recorder) Inc(kind Kind) { r.Add(kind, 1) }

func (r *Recorder) Count(kind Kind) int64 {
	if r == nil {
		return 0
	}
	return r.counts.Get(kind)
}

// Counts returns a snapshot of all non-zero counts.
func (r *Recorder) Counts() map[Kind]int64 {
	if r == nil {
		return nil
	}
	return r.counts.Snapshot()
}

// Kinds returns the kinds that have been recorded, sorted by name.
func (r *Recorder) Kinds() []Kind {
	counts := r.Counts()
	out := make([]Kind, 0, len(counts))
	for k := range counts {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
