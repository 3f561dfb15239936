// Command lantern estimates paint metrics of a page load from a Chrome trace and a DevTools network log.
//
// Usage:
//
//	lantern [flags] <trace.json[.sz]> <devtools.json[.sz]> [metric...]
//
// Metrics default to firstContentfulPaint, firstMeaningfulPaint and largestContentfulPaint. Configuration is read from
// LANTERN_* environment variables.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"honnef.co/go/lantern/computed"
	"honnef.co/go/lantern/config"
	"honnef.co/go/lantern/diag"
	"honnef.co/go/lantern/lantern"
	"honnef.co/go/lantern/netlog"
	"honnef.co/go/lantern/trace"
	"honnef.co/go/lantern/trace/ptrace"
)

type options struct {
	format  string
	url     string
	stats   bool
	metrics []lantern.Metric
}

func main() {
	fs := flag.NewFlagSet("lantern", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [flags] <trace> <devtools log> [metric...]\n", os.Args[0])
		fs.PrintDefaults()
	}
	var opts options
	fs.StringVar(&opts.format, "format", "json", "output format: json or text")
	fs.StringVar(&opts.url, "url", "", "URL of the main document, defaults to the URL of the traced navigation")
	fs.BoolVar(&opts.stats, "stats", false, "print main thread task statistics as CSV instead of estimates")
	fs.Parse(os.Args[1:])

	if fs.NArg() < 2 {
		fs.Usage()
		os.Exit(2)
	}
	for _, name := range fs.Args()[2:] {
		m, ok := lantern.MetricByName(name)
		if !ok {
			fmt.Fprintf(os.Stderr, "unknown metric %q\n", name)
			os.Exit(2)
		}
		opts.metrics = append(opts.metrics, m)
	}
	if opts.format != "json" && opts.format != "text" {
		fmt.Fprintf(os.Stderr, "unknown format %q\n", opts.format)
		os.Exit(2)
	}

	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %s\n", err)
		os.Exit(2)
	}
	log, err := newLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(context.Background(), cfg, log, fs.Arg(0), fs.Arg(1), opts, os.Stdout); err != nil {
		log.Error("failed to estimate metrics", zap.Error(err))
		os.Exit(1)
	}
}

// inputs are the loaded and processed input files.
type inputs struct {
	traceData, logData []byte

	trace   *ptrace.Trace
	tasks   []*ptrace.Task
	records []*netlog.Record
}

func load(ctx context.Context, cfg config.Config, log *zap.Logger, rec *diag.Recorder, tracePath, logPath string) (*inputs, error) {
	in := &inputs{}
	var msgs []netlog.Message

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := os.ReadFile(tracePath)
		if err != nil {
			return err
		}
		res, err := trace.Parse(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("%s: %w", tracePath, err)
		}
		tr, err := ptrace.Parse(res, ptrace.Options{Logger: log, Diag: rec})
		if err != nil {
			return fmt.Errorf("%s: %w", tracePath, err)
		}
		in.traceData = data
		in.trace = tr
		in.tasks = ptrace.MainThreadTasks(tr)
		return nil
	})
	g.Go(func() error {
		data, err := os.ReadFile(logPath)
		if err != nil {
			return err
		}
		res, err := netlog.ParseLog(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("%s: %w", logPath, err)
		}
		rec.Add(diag.NetlogUnknownMethod, int64(res.UnknownMethods))
		rec.Add(diag.NetlogMalformedParams, int64(res.MalformedParams))
		in.logData = data
		msgs = res.Messages
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	in.records = netlog.Reconstruct(msgs, netlog.Options{TrustedRelay: cfg.TrustedRelay, Logger: log, Diag: rec})
	return in, nil
}

// navigationURL returns the URL of the document that was navigated to at the time origin.
func navigationURL(tr *ptrace.Trace) string {
	ev := tr.Event(tr.Milestones.TimeOrigin.Event)
	if ev.Args.Data == nil {
		return ""
	}
	return ev.Args.Data.DocumentLoaderURL
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger, tracePath, logPath string, opts options, w io.Writer) error {
	rec, err := diag.New(otel.GetMeterProvider().Meter("honnef.co/go/lantern"))
	if err != nil {
		return err
	}
	in, err := load(ctx, cfg, log, rec, tracePath, logPath)
	if err != nil {
		return err
	}
	if opts.stats {
		return writeStatistics(w, ptrace.ComputeStatisticsByTag(in.tasks))
	}

	url := opts.url
	if url == "" {
		url = navigationURL(in.trace)
	}
	urls := lantern.URLs{RequestedURL: url, MainDocumentURL: url, FinalURL: url}
	root, err := lantern.BuildGraph(in.records, in.trace, in.tasks, urls, lantern.BuildOptions{Logger: log, Diag: rec})
	if err != nil {
		return err
	}

	metrics := opts.metrics
	if len(metrics) == 0 {
		metrics = lantern.Metrics
	}
	settings := cfg.Settings()
	cache := computed.New[*lantern.MetricResult](cfg.CacheSize)
	results := make([]*lantern.MetricResult, len(metrics))
	errs := make([]error, len(metrics))

	var g errgroup.Group
	for i, m := range metrics {
		key := computed.Fingerprint(in.traceData, in.logData, []byte(m.Name()), fmt.Appendf(nil, "%+v %s %t", settings, url, cfg.TrustedRelay))
		g.Go(func() error {
			res, err := cache.Do(key, func() (*lantern.MetricResult, error) {
				return lantern.Predict(ctx, lantern.Input{
					Trace:   in.trace,
					Tasks:   in.tasks,
					Records: in.records,
					URLs:    urls,
					Graph:   root,
				}, m, lantern.Options{Settings: settings, Logger: log, Diag: rec})
			})
			// A missing milestone only affects its own metric.
			results[i], errs[i] = res, err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	rep := newReport(in, metrics, results, errs, rec)
	switch opts.format {
	case "text":
		return writeText(w, rep)
	default:
		return writeJSON(w, rep)
	}
}
