package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/tik-regcrawler/internal/progress"
)

func runBatch() []progress.Event {
	now := time.Now()
	return []progress.Event{
		{RunID: "r1", SourceID: "jdih", TS: now, Stage: progress.StageRunStart},
		{
			RunID: "r1", SourceID: "jdih", TS: now, Stage: progress.StageFetchDone,
			URL: "https://jdih.example.go.id/doc/1", FetchStatus: "ok", StatusCode: 200,
			StatusClass: progress.Status2xx, Bytes: 2048, Dur: 300 * time.Millisecond, Strategy: "plain",
		},
		{
			RunID: "r1", SourceID: "jdih", TS: now, Stage: progress.StageDocument,
			URL: "https://jdih.example.go.id/doc/1", Outcome: "saved", Score: 19,
		},
		{RunID: "r1", SourceID: "jdih", TS: now, Stage: progress.StageRunDone, Dur: 5 * time.Second},
	}
}

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	require.NoError(t, sink.Consume(context.Background(), runBatch()))

	require.InDelta(t, 1.0, testutil.ToFloat64(sink.runsStarted.WithLabelValues("jdih")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("jdih", "success")), 1e-9)
	require.InDelta(t, 0.0, testutil.ToFloat64(sink.runsInFlight), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.fetches.WithLabelValues("jdih.example.go.id", "2xx")), 1e-9)
	require.InDelta(t, 2048.0, testutil.ToFloat64(sink.fetchBytes.WithLabelValues("jdih.example.go.id")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.documents.WithLabelValues("jdih.example.go.id", "saved")), 1e-9)

	_, err = NewPrometheusSink(reg)
	require.Error(t, err, "duplicate registration must fail")
}

func TestLogSinkFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))
	require.NoError(t, sink.Consume(context.Background(), runBatch()))
	require.Equal(t, 4, logs.Len())

	fetch := logs.All()[1].ContextMap()
	require.Equal(t, "https://jdih.example.go.id/doc/1", fetch["url"])
	require.Equal(t, "ok", fetch["status"])
	require.Equal(t, "plain", fetch["strategy"])
	require.Equal(t, 300*time.Millisecond, fetch["latency"])

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: "r2", SourceID: "jdih", TS: time.Now(), Stage: progress.StageRunError, Note: "discovery failed"},
	}))
	last := logs.All()[logs.Len()-1]
	require.Equal(t, zap.ErrorLevel, last.Level)
	require.Equal(t, "discovery failed", last.ContextMap()["note"])
}
