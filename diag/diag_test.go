package diag

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRecorderCounts(t *testing.T) {
	rec := NewNop()
	rec.Inc(NetlogUnmatchedEvent)
	rec.Add(NetlogUnmatchedEvent, 2)
	rec.Add(TraceUnmatchedEnd, 0)
	rec.Inc(GraphClampedRequest)

	assert.Equal(t, int64(3), rec.Count(NetlogUnmatchedEvent))
	assert.Zero(t, rec.Count(TraceUnmatchedEnd))
	assert.Equal(t, map[Kind]int64{NetlogUnmatchedEvent: 3, GraphClampedRequest: 1}, rec.Counts())
	assert.Equal(t, []Kind{GraphClampedRequest, NetlogUnmatchedEvent}, rec.Kinds())
}

func TestNilRecorder(t *testing.T) {
	var rec *Recorder
	rec.Inc(RelayDeclined)
	assert.Zero(t, rec.Count(RelayDeclined))
	assert.Empty(t, rec.Kinds())
}

func TestRecorderConcurrent(t *testing.T) {
	rec := NewNop()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				rec.Inc(TraceQuarantinedEvent)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(800), rec.Count(TraceQuarantinedEvent))
}

func TestRecorderExportsCounter(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	rec, err := New(provider.Meter("test"))
	require.NoError(t, err)

	rec.Add(RelayMalformedHeader, 2)
	rec.Inc(RelayDeclined)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)
	m := rm.ScopeMetrics[0].Metrics[0]
	assert.Equal(t, AnomalyCounterName, m.Name)

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	got := map[string]int64{}
	for _, dp := range sum.DataPoints {
		kind, _ := dp.Attributes.Value(attribute.Key("kind"))
		got[kind.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{string(RelayMalformedHeader): 2, string(RelayDeclined): 1}, got)
}
