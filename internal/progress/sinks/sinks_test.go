package sinks

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/seedcrawl/internal/progress"
)

func runBatch(total int, outcomes ...string) []progress.Event {
	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{{RunID: runID, TS: now, Stage: progress.StageRunStart, Total: total}}
	for i, outcome := range outcomes {
		batch = append(batch,
			progress.Event{RunID: runID, TS: now, Stage: progress.StageFetchStart, Seq: i, URL: "http://a.test/"},
			progress.Event{
				RunID: runID, TS: now, Stage: progress.StageFetchDone, Seq: i, URL: "http://a.test/",
				Outcome: outcome, StatusClass: progress.Status2xx, Bytes: 100, Dur: time.Millisecond,
			},
		)
	}
	return append(batch, progress.Event{RunID: runID, TS: now, Stage: progress.StageRunDone, Total: len(outcomes)})
}

func TestBarSinkCountsFetches(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewBarSink(&buf)
	require.NoError(t, sink.Consume(context.Background(), runBatch(3, "ok", "fetch_failed", "ok")))
	require.NoError(t, sink.Close(context.Background()))

	assert.Equal(t, int64(3), sink.Completed())
	assert.Contains(t, buf.String(), "3/3")
	assert.Contains(t, buf.String(), "1 failed")
}

func TestBarSinkIgnoresFetchesBeforeStart(t *testing.T) {
	t.Parallel()

	sink := NewBarSink(&bytes.Buffer{})
	batch := runBatch(2, "ok")[1:]
	require.NoError(t, sink.Consume(context.Background(), batch))
	assert.Zero(t, sink.Completed())
	require.NoError(t, sink.Close(context.Background()))
}

func TestBarSinkCloseKeepsIncompleteCount(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewBarSink(&buf)
	batch := runBatch(5, "ok", "ok")
	require.NoError(t, sink.Consume(context.Background(), batch[:len(batch)-1]))
	require.NoError(t, sink.Close(context.Background()))
	assert.Equal(t, int64(2), sink.Completed())
	assert.NotContains(t, buf.String(), "5/5")
}

func TestBarSinkRunErrorKeepsIncompleteCount(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewBarSink(&buf)
	batch := runBatch(5, "ok", "fetch_failed")
	batch[len(batch)-1].Stage = progress.StageRunError
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.NoError(t, sink.Close(context.Background()))

	assert.Equal(t, int64(2), sink.Completed())
	assert.Contains(t, buf.String(), "2/5")
	assert.NotContains(t, buf.String(), "5/5")
}

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))
	require.NoError(t, sink.Consume(context.Background(), runBatch(1, "http_error")))
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "fetch started", entries[1].Message)
	assert.Equal(t, zapcore.DebugLevel, entries[2].Level)
	assert.Equal(t, "http_error", entries[2].ContextMap()["outcome"])
	assert.Equal(t, "RUN_DONE", entries[3].ContextMap()["stage"])

	errCore, errLogs := observer.New(zapcore.InfoLevel)
	NewLogSink(zap.New(errCore)).Consume(context.Background(), []progress.Event{{ //nolint:errcheck // always nil
		RunID: progress.UUIDToBytes(uuid.New()), TS: time.Now(), Stage: progress.StageRunError, Note: "disk full",
	}})
	require.Equal(t, 1, errLogs.Len())
	assert.Equal(t, zapcore.WarnLevel, errLogs.All()[0].Level)

	assert.NoError(t, NewLogSink(nil).Consume(context.Background(), runBatch(0)))
}
