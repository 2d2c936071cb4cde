package worker

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/seedcrawl/internal/crawler"
	"github.com/JakeFAU/seedcrawl/internal/extract"
	"github.com/JakeFAU/seedcrawl/internal/frontier"
	"github.com/JakeFAU/seedcrawl/internal/progress"
)

type fakeFetcher struct {
	outcomes map[string]crawler.FetchOutcome
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) crawler.FetchOutcome {
	if out, ok := f.outcomes[rawURL]; ok {
		out.URL = rawURL
		return out
	}
	return crawler.FetchOutcome{
		URL: rawURL,
		Err: &crawler.FetchError{Kind: crawler.ErrorKindOther, URL: rawURL, Err: errors.New("unknown fixture")},
	}
}

type recordingSink struct {
	mu       sync.Mutex
	records  []crawler.ResultRecord
	extended []*crawler.ExtendedRecord
	failOn   string
	failWith error
}

func (s *recordingSink) Record(_ context.Context, record crawler.ResultRecord, ext *crawler.ExtendedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != "" && record.URL == s.failOn {
		return s.failWith
	}
	s.records = append(s.records, record)
	s.extended = append(s.extended, ext)
	return nil
}

func (s *recordingSink) Close() error { return nil }

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *recordingEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func fixtureFetcher() *fakeFetcher {
	return &fakeFetcher{outcomes: map[string]crawler.FetchOutcome{
		"https://ok.test/": {
			StatusCode: http.StatusOK,
			Body:       []byte("<html><title>OK</title><a href=\"/a\">a</a></html>"),
			Elapsed:    5 * time.Millisecond,
		},
		"https://missing.test/": {
			StatusCode: http.StatusNotFound,
			Body:       []byte("<html><title>Not Found</title></html>"),
		},
		"https://slow.test/": {
			Elapsed: time.Second,
			Err: &crawler.FetchError{
				Kind: crawler.ErrorKindTimeout,
				URL:  "https://slow.test/",
				Err:  context.DeadlineExceeded,
			},
		},
	}}
}

func TestWorker_RunDrainsFrontier(t *testing.T) {
	t.Parallel()

	urls := []string{"https://ok.test/", "https://missing.test/", "https://slow.test/"}
	front, err := frontier.FromURLs(urls)
	require.NoError(t, err)
	sink := &recordingSink{}
	emitter := &recordingEmitter{}

	w := New(front, fixtureFetcher(), extract.New(true), sink, emitter, Config{RunID: uuid.New(), Index: 2}, zap.NewNop())
	stats, err := w.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Stats{Processed: 3, Succeeded: 1, HTTPErrors: 1, Failed: 1}, stats)
	require.Len(t, sink.records, 3)
	for i, rec := range sink.records {
		assert.Equal(t, i, rec.Seq)
		assert.Equal(t, urls[i], rec.URL)
	}
	assert.Equal(t, "OK", sink.records[0].Title)
	require.NotNil(t, sink.extended[0])
	assert.Equal(t, "https://ok.test/", sink.extended[0].URL)
	assert.Equal(t, []string{"https://ok.test/a"}, sink.extended[0].Links)

	assert.Equal(t, http.StatusNotFound, sink.records[1].StatusCode)
	assert.Equal(t, "Not Found", sink.records[1].Title)

	assert.Equal(t, "timeout", sink.records[2].Error)
	assert.Nil(t, sink.extended[2])
	assert.Zero(t, front.Len())
}

func TestWorker_EmitsFetchEvents(t *testing.T) {
	t.Parallel()

	front, err := frontier.FromURLs([]string{"https://ok.test/", "https://slow.test/"})
	require.NoError(t, err)
	emitter := &recordingEmitter{}
	runID := uuid.New()

	w := New(front, fixtureFetcher(), extract.New(false), &recordingSink{}, emitter, Config{RunID: runID, Index: 7}, nil)
	_, err = w.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, emitter.events, 4)
	stages := make([]progress.Stage, 0, len(emitter.events))
	for _, evt := range emitter.events {
		stages = append(stages, evt.Stage)
		assert.Equal(t, 7, evt.Worker)
		assert.Equal(t, runID, evt.RunUUID())
		require.NoError(t, evt.Validate())
	}
	assert.Equal(t, []progress.Stage{
		progress.StageFetchStart, progress.StageFetchDone,
		progress.StageFetchStart, progress.StageFetchDone,
	}, stages)

	done := emitter.events[1]
	assert.Equal(t, string(crawler.OutcomeOK), done.Outcome)
	assert.Equal(t, progress.Status2xx, done.StatusClass)
	assert.Equal(t, "ok.test", done.Site)

	failed := emitter.events[3]
	assert.Equal(t, string(crawler.OutcomeFetchFailed), failed.Outcome)
	assert.Equal(t, "timeout", failed.ErrorKind)
	assert.Equal(t, progress.StatusOther, failed.StatusClass)
}

func TestWorker_WriteFailureStopsLoop(t *testing.T) {
	t.Parallel()

	front, err := frontier.FromURLs([]string{"https://ok.test/", "https://missing.test/", "https://slow.test/"})
	require.NoError(t, err)
	cause := errors.New("disk full")
	sink := &recordingSink{failOn: "https://missing.test/", failWith: cause}

	w := New(front, fixtureFetcher(), extract.New(false), sink, nil, Config{Index: 1}, nil)
	stats, err := w.Run(context.Background())
	require.Error(t, err)

	var writeErr *crawler.WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, 1, writeErr.Seq)
	assert.Equal(t, 1, writeErr.Attempts)
	require.ErrorIs(t, err, cause)

	assert.Equal(t, Stats{Processed: 1, Succeeded: 1}, stats)
	assert.Equal(t, 1, front.Len(), "the task after the failure must not be fetched")
}

func TestWorker_WriteErrorPassesThrough(t *testing.T) {
	t.Parallel()

	front, err := frontier.FromURLs([]string{"https://ok.test/"})
	require.NoError(t, err)
	original := &crawler.WriteError{URL: "https://ok.test/", Seq: 0, Attempts: 3, Err: errors.New("conn reset")}
	sink := &recordingSink{failOn: "https://ok.test/", failWith: original}

	w := New(front, fixtureFetcher(), extract.New(false), sink, nil, Config{}, nil)
	_, err = w.Run(context.Background())

	var writeErr *crawler.WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Same(t, original, writeErr)
}

func TestWorker_CanceledContextFetchesNothing(t *testing.T) {
	t.Parallel()

	front, err := frontier.FromURLs([]string{"https://ok.test/", "https://missing.test/"})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &recordingSink{}
	w := New(front, fixtureFetcher(), extract.New(false), sink, nil, Config{}, nil)
	stats, err := w.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Processed)
	assert.Empty(t, sink.records)
	assert.Equal(t, 2, front.Len())
}

func TestStatsAdd(t *testing.T) {
	t.Parallel()

	total := Stats{Processed: 2, Succeeded: 2}
	total.Add(Stats{Processed: 3, HTTPErrors: 1, Failed: 2})
	assert.Equal(t, Stats{Processed: 5, Succeeded: 2, HTTPErrors: 1, Failed: 2}, total)
}
