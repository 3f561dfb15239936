package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"honnef.co/go/lantern/diag"
	"honnef.co/go/lantern/lantern"
	"honnef.co/go/lantern/netlog"
	"honnef.co/go/lantern/trace/ptrace"
)

type metricReport struct {
	Metric ptrace.MilestoneName `json:"metric"`
	Error  string               `json:"error,omitempty"`

	Observed    float64 `json:"observed"`
	Timing      float64 `json:"timing"`
	Blended     float64 `json:"blended"`
	Optimistic  float64 `json:"optimistic"`
	Pessimistic float64 `json:"pessimistic"`

	OptimisticNodes  int `json:"optimisticNodes"`
	PessimisticNodes int `json:"pessimisticNodes"`
}

type report struct {
	Milestones  map[ptrace.MilestoneName]float64 `json:"milestones"`
	FMPFellBack bool                             `json:"fmpFellBack,omitempty"`

	Requests     int   `json:"requests"`
	Failed       int   `json:"failed"`
	TransferSize int64 `json:"transferSize"`
	Tasks        int   `json:"tasks"`

	Metrics   []metricReport `json:"metrics"`
	Anomalies []anomaly      `json:"anomalies,omitempty"`
}

// anomaly counts how often a kind of malformed or inconsistent input was tolerated.
type anomaly struct {
	Kind  diag.Kind `json:"kind"`
	Count int64     `json:"count"`
}

func newReport(in *inputs, metrics []lantern.Metric, results []*lantern.MetricResult, errs []error, rec *diag.Recorder) *report {
	rep := &report{
		Milestones:  in.trace.Timings,
		FMPFellBack: in.trace.Milestones.FMPFellBack,
		Requests:    len(in.records),
		Tasks:       len(in.tasks),
	}
	for _, kind := range rec.Kinds() {
		rep.Anomalies = append(rep.Anomalies, anomaly{Kind: kind, Count: rec.Count(kind)})
	}
	for _, r := range in.records {
		rep.TransferSize += r.TransferSize
		if r.Status == netlog.StatusFailed || r.Status == netlog.StatusCanceled {
			rep.Failed++
		}
	}
	for i, res := range results {
		if err := errs[i]; err != nil {
			rep.Metrics = append(rep.Metrics, metricReport{Metric: metrics[i].Name(), Error: err.Error()})
			continue
		}
		rep.Metrics = append(rep.Metrics, metricReport{
			Metric:           res.Metric,
			Observed:         res.Observed,
			Timing:           res.Timing,
			Blended:          res.Blended,
			Optimistic:       res.OptimisticEstimate.TimeInMs,
			Pessimistic:      res.PessimisticEstimate.TimeInMs,
			OptimisticNodes:  len(res.OptimisticEstimate.NodeTimings),
			PessimisticNodes: len(res.PessimisticEstimate.NodeTimings),
		})
	}
	return rep
}

func writeJSON(w io.Writer, rep *report) error {
	b, err := json.Marshal(rep, json.Deterministic(true), jsontext.WithIndent("  "))
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

func ms(v float64) string {
	return humanize.FormatFloat("#,###.#", v) + " ms"
}

func writeText(w io.Writer, rep *report) error {
	fmt.Fprintf(w, "Requests: %s (%s transferred, %s failed)\n",
		humanize.Comma(int64(rep.Requests)), humanize.Bytes(uint64(max(rep.TransferSize, 0))), humanize.Comma(int64(rep.Failed)))
	fmt.Fprintf(w, "Main thread tasks: %s\n", humanize.Comma(int64(rep.Tasks)))
	for _, m := range rep.Metrics {
		if m.Error != "" {
			fmt.Fprintf(w, "%s: error: %s\n", m.Metric, m.Error)
			continue
		}
		fmt.Fprintf(w, "%s: %s (observed %s, optimistic %s, pessimistic %s, blended %s)\n",
			m.Metric, ms(m.Timing), ms(m.Observed), ms(m.Optimistic), ms(m.Pessimistic), ms(m.Blended))
	}
	if len(rep.Anomalies) > 0 {
		fmt.Fprintln(w, "Anomalies:")
		for _, a := range rep.Anomalies {
			fmt.Fprintf(w, "  %s: %s\n", a.Kind, humanize.Comma(a.Count))
		}
	}
	return nil
}
