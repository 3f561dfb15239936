package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-json-experiment/json"
	"github.com/golang/snappy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"honnef.co/go/lantern/config"
	"honnef.co/go/lantern/diag"
	"honnef.co/go/lantern/lantern"
	"honnef.co/go/lantern/netlog"
	"honnef.co/go/lantern/netlog/netlogtest"
	"honnef.co/go/lantern/trace/ptrace"
	"honnef.co/go/lantern/trace/tracetest"
)

func testConfig() config.Config {
	s := lantern.DefaultSettings()
	return config.Config{
		RTT:                        s.RTT,
		Throughput:                 s.Throughput,
		CPUSlowdown:                s.CPUSlowdown,
		OptimisticMaxConnections:   s.OptimisticMaxConnections,
		PessimisticColdRTTs:        s.PessimisticColdRTTs,
		PessimisticThroughputFloor: s.PessimisticThroughputFloor,
		CacheSize:                  8,
	}
}

// writeInputs writes a trace with only a firstContentfulPaint and a log of a document loading a stylesheet.
func writeInputs(t *testing.T, compress bool) (string, string) {
	t.Helper()
	dir := t.TempDir()

	traceData := tracetest.Marshal(tracetest.Options{
		TimeOrigin: 1_000_000,
		FCPOffset:  350_000,
		Tasks:      []tracetest.Task{{Ts: 1_100_000, Dur: 20_000}},
	})
	logData, err := netlog.MarshalLog(netlogtest.Messages([]netlogtest.Request{
		{URL: tracetest.URL, Type: netlog.ResourceTypeDocument, Priority: netlog.PriorityVeryHigh, StartTime: 1, EndTime: 1.2, TransferSize: 10_000},
		{
			URL:          tracetest.URL + "style.css",
			Type:         netlog.ResourceTypeStylesheet,
			Priority:     netlog.PriorityVeryHigh,
			StartTime:    1.25,
			EndTime:      1.3,
			TransferSize: 2_000,
			Initiator:    netlog.Initiator{Type: "parser", URL: tracetest.URL},
		},
	}))
	require.NoError(t, err)

	tracePath := filepath.Join(dir, "trace.json")
	if compress {
		var buf bytes.Buffer
		w := snappy.NewBufferedWriter(&buf)
		_, err := w.Write(traceData)
		require.NoError(t, err)
		require.NoError(t, w.Close())
		traceData = buf.Bytes()
		tracePath += ".sz"
	}
	logPath := filepath.Join(dir, "devtools.json")
	require.NoError(t, os.WriteFile(tracePath, traceData, 0o644))
	require.NoError(t, os.WriteFile(logPath, logData, 0o644))
	return tracePath, logPath
}

func TestRunJSON(t *testing.T) {
	for _, compress := range []bool{false, true} {
		tracePath, logPath := writeInputs(t, compress)
		var out bytes.Buffer
		err := run(context.Background(), testConfig(), zap.NewNop(), tracePath, logPath, options{format: "json"}, &out)
		require.NoError(t, err)

		var rep report
		require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
		assert.Equal(t, 2, rep.Requests)
		assert.Equal(t, int64(12_000), rep.TransferSize)
		assert.Equal(t, 1, rep.Tasks)
		assert.InDelta(t, 350.0, rep.Milestones[ptrace.FirstContentfulPaint], 1e-9)

		require.Len(t, rep.Metrics, 3)
		fcp := rep.Metrics[0]
		assert.Equal(t, ptrace.FirstContentfulPaint, fcp.Metric)
		assert.Empty(t, fcp.Error)
		assert.InDelta(t, 350.0, fcp.Observed, 1e-9)
		assert.Positive(t, fcp.Timing)
		assert.LessOrEqual(t, fcp.Optimistic, fcp.Pessimistic)

		// Missing milestones fail only their own metric.
		for _, m := range rep.Metrics[1:] {
			assert.Contains(t, m.Error, lantern.ErrNoMilestone.Error())
		}
	}
}

func TestRunText(t *testing.T) {
	tracePath, logPath := writeInputs(t, false)
	var out bytes.Buffer
	opts := options{format: "text", metrics: []lantern.Metric{lantern.FirstContentfulPaint}}
	require.NoError(t, run(context.Background(), testConfig(), zap.NewNop(), tracePath, logPath, opts, &out))

	text := out.String()
	assert.Contains(t, text, "Requests: 2 (12 kB transferred, 0 failed)")
	assert.Contains(t, text, "Main thread tasks: 1")
	assert.Contains(t, text, "firstContentfulPaint: ")
	assert.NotContains(t, text, "largestContentfulPaint")
}

func TestRunStatistics(t *testing.T) {
	tracePath, logPath := writeInputs(t, false)
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), testConfig(), zap.NewNop(), tracePath, logPath, options{stats: true}, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Tags,Count,Min,Max,Total,Average,Median", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], ",1,20000000,20000000,20000000,20000000.000000,20000000.000000"), lines[1])
}

func TestRunUnknownMainDocument(t *testing.T) {
	// No request matches the URL, so the first document is used.
	tracePath, logPath := writeInputs(t, false)
	var out bytes.Buffer
	opts := options{url: "https://other.example.com/", metrics: []lantern.Metric{lantern.FirstContentfulPaint}}
	require.NoError(t, run(context.Background(), testConfig(), zap.NewNop(), tracePath, logPath, opts, &out))

	var rep report
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
	require.Len(t, rep.Metrics, 1)
	assert.Empty(t, rep.Metrics[0].Error)
	assert.Contains(t, rep.Anomalies, anomaly{Kind: diag.GraphMainDocumentGuess, Count: 1})
}

func TestRunMissingFile(t *testing.T) {
	_, logPath := writeInputs(t, false)
	err := run(context.Background(), testConfig(), zap.NewNop(), filepath.Join(t.TempDir(), "missing.json"), logPath,
		options{}, &bytes.Buffer{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}
