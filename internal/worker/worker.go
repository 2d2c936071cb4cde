// Package worker implements the per-URL fetch, extract, and record loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/seedcrawl/internal/crawler"
	"github.com/JakeFAU/seedcrawl/internal/metrics"
	"github.com/JakeFAU/seedcrawl/internal/progress"
)

// Config controls Worker behavior.
type Config struct {
	RunID uuid.UUID
	Index int
}

// Stats counts the records a worker handed to the sink, bucketed by outcome.
type Stats struct {
	Processed  int
	Succeeded  int
	HTTPErrors int
	Failed     int
}

// Add folds other into s.
func (s *Stats) Add(other Stats) {
	s.Processed += other.Processed
	s.Succeeded += other.Succeeded
	s.HTTPErrors += other.HTTPErrors
	s.Failed += other.Failed
}

func (s *Stats) count(outcome crawler.Outcome) {
	s.Processed++
	switch outcome {
	case crawler.OutcomeOK:
		s.Succeeded++
	case crawler.OutcomeHTTPError:
		s.HTTPErrors++
	case crawler.OutcomeFetchFailed:
		s.Failed++
	}
}

// Worker drains tasks from a shared frontier until it is empty or the run is
// canceled.
type Worker struct {
	frontier  crawler.Frontier
	fetcher   crawler.Fetcher
	extractor crawler.Extractor
	sink      crawler.ResultSink
	emitter   progress.Emitter
	runID     [16]byte
	index     int
	logger    *zap.Logger
}

// New constructs a Worker. A nil emitter discards progress events and a nil
// logger is replaced by a no-op logger.
func New(
	frontier crawler.Frontier,
	fetcher crawler.Fetcher,
	extractor crawler.Extractor,
	sink crawler.ResultSink,
	emitter progress.Emitter,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if emitter == nil {
		emitter = progress.NopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Worker{
		frontier:  frontier,
		fetcher:   fetcher,
		extractor: extractor,
		sink:      sink,
		emitter:   emitter,
		runID:     progress.UUIDToBytes(cfg.RunID),
		index:     cfg.Index,
		logger:    logger,
	}
}

// Run processes tasks until the frontier is empty, ctx is done, or the sink
// rejects a record. ctx is checked before each dequeue and never interrupts a
// fetch in progress. Per-URL fetch failures are recorded and never end the
// loop. A write failure is returned as a *crawler.WriteError.
func (w *Worker) Run(ctx context.Context) (Stats, error) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	var stats Stats
	for {
		if ctx.Err() != nil {
			w.logger.Debug("worker stopping", zap.Error(ctx.Err()), zap.Int("processed", stats.Processed))
			return stats, nil
		}
		task, ok := w.frontier.TryDequeue()
		if !ok {
			w.logger.Debug("frontier drained", zap.Int("processed", stats.Processed))
			return stats, nil
		}
		record, err := w.process(ctx, task)
		if err != nil {
			return stats, err
		}
		stats.count(record.Outcome())
	}
}

func (w *Worker) process(ctx context.Context, task crawler.CrawlTask) (crawler.ResultRecord, error) {
	w.emit(progress.Event{
		Stage: progress.StageFetchStart,
		Seq:   task.Seq,
		URL:   task.URL,
	})

	// cancellation only stops new fetches; one already started runs to its
	// own timeout
	outcome := w.fetcher.Fetch(context.WithoutCancel(ctx), task.URL)
	record, extended := w.extractor.Extract(outcome)
	record.Seq = task.Seq
	record.URL = task.URL
	if extended != nil {
		extended.URL = task.URL
	}

	errKind := ""
	if outcome.Err != nil {
		errKind = string(outcome.Err.Kind)
		w.logger.Info("fetch failed",
			zap.Int("seq", task.Seq),
			zap.String("url", task.URL),
			zap.String("kind", errKind),
			zap.Error(outcome.Err.Err),
		)
	} else {
		w.logger.Debug("fetched",
			zap.Int("seq", task.Seq),
			zap.String("url", task.URL),
			zap.Int("status", outcome.StatusCode),
			zap.Int("bytes", len(outcome.Body)),
			zap.Bool("truncated", outcome.Truncated),
			zap.Duration("elapsed", outcome.Elapsed),
		)
	}

	if err := w.sink.Record(ctx, record, extended); err != nil {
		metrics.ObserveWriteError()
		var writeErr *crawler.WriteError
		if !errors.As(err, &writeErr) {
			err = crawler.NewWriteError(record, 1, err)
		}
		w.logger.Error("record failed", zap.Int("seq", task.Seq), zap.String("url", task.URL), zap.Error(err))
		return record, fmt.Errorf("worker %d: %w", w.index, err)
	}

	result := record.Outcome()
	metrics.ObserveFetch(task.URL, string(result), errKind, record.BodySize, outcome.Elapsed)
	w.emit(progress.Event{
		Stage:       progress.StageFetchDone,
		Seq:         task.Seq,
		URL:         task.URL,
		Site:        metrics.SanitizeSite(task.URL),
		Bytes:       int64(record.BodySize),
		StatusClass: progress.ClassifyStatus(record.StatusCode),
		Outcome:     string(result),
		ErrorKind:   errKind,
		Dur:         outcome.Elapsed,
	})
	return record, nil
}

func (w *Worker) emit(evt progress.Event) {
	evt.RunID = w.runID
	evt.TS = time.Now().UTC()
	evt.Worker = w.index
	w.emitter.Emit(evt)
}
