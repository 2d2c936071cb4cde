// Package engine runs one bounded-concurrency crawl over a fixed seed list.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/seedcrawl/internal/crawler"
	"github.com/JakeFAU/seedcrawl/internal/dispatcher"
	"github.com/JakeFAU/seedcrawl/internal/frontier"
	"github.com/JakeFAU/seedcrawl/internal/metrics"
	"github.com/JakeFAU/seedcrawl/internal/progress"
	"github.com/JakeFAU/seedcrawl/internal/worker"
)

// MaxThreads caps the worker pool size.
const MaxThreads = 1024

// ErrAlreadyRun is returned when Run is called a second time.
var ErrAlreadyRun = errors.New("engine already run")

// Run statuses reported to metrics.
const (
	statusSucceeded = "succeeded"
	statusFailed    = "failed"
	statusCanceled  = "canceled"
)

// Config sizes the worker pool.
type Config struct {
	Threads int
}

// Summary reports how a run went.
type Summary struct {
	RunID      uuid.UUID
	Total      int
	Succeeded  int
	HTTPErrors int
	Failed     int
	Elapsed    time.Duration
}

// Recorded is the number of result rows handed to the sink.
func (s Summary) Recorded() int {
	return s.Succeeded + s.HTTPErrors + s.Failed
}

// Option customizes an Engine.
type Option func(*Engine)

// WithEmitter routes progress events to emitter.
func WithEmitter(emitter progress.Emitter) Option {
	return func(e *Engine) {
		if emitter != nil {
			e.emitter = emitter
		}
	}
}

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id uuid.UUID) Option {
	return func(e *Engine) {
		if id != uuid.Nil {
			e.runID = id
		}
	}
}

// Engine owns the frontier, the worker pool, and the result sink for a run.
type Engine struct {
	cfg       Config
	frontier  *frontier.Frontier
	total     int
	fetcher   crawler.Fetcher
	extractor crawler.Extractor
	sink      crawler.ResultSink
	emitter   progress.Emitter
	runID     uuid.UUID
	logger    *zap.Logger
	ran       atomic.Bool
}

// New validates the configuration and loads every seed into a sealed
// frontier. Nothing is fetched until Run.
func New(
	cfg Config,
	seeds []string,
	fetcher crawler.Fetcher,
	extractor crawler.Extractor,
	sink crawler.ResultSink,
	logger *zap.Logger,
	opts ...Option,
) (*Engine, error) {
	if cfg.Threads < 1 || cfg.Threads > MaxThreads {
		return nil, &crawler.ConfigError{
			Key:    "crawler.threads",
			Reason: fmt.Sprintf("must be between 1 and %d, got %d", MaxThreads, cfg.Threads),
		}
	}
	if len(seeds) == 0 {
		return nil, &crawler.ConfigError{Key: "input.path", Reason: "contains no seed URLs"}
	}
	if sink == nil {
		return nil, &crawler.ConfigError{Key: "output", Reason: "requires a result sink"}
	}
	if fetcher == nil || extractor == nil {
		return nil, &crawler.ConfigError{Key: "crawler", Reason: "requires a fetcher and an extractor"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	front, err := frontier.FromURLs(seeds)
	if err != nil {
		return nil, fmt.Errorf("load frontier: %w", err)
	}

	e := &Engine{
		cfg:       cfg,
		frontier:  front,
		total:     len(seeds),
		fetcher:   fetcher,
		extractor: extractor,
		sink:      sink,
		emitter:   progress.NopEmitter{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.runID == uuid.Nil {
		e.runID = newRunID()
	}
	metrics.Init()
	return e, nil
}

func newRunID() uuid.UUID {
	if id, err := uuid.NewV7(); err == nil {
		return id
	}
	return uuid.New()
}

// RunID identifies this run in logs, progress events, and database rows.
func (e *Engine) RunID() uuid.UUID {
	return e.runID
}

// Run fetches every seed with a fixed pool of workers and closes the sink.
// It returns after all workers have stopped. A write failure or a canceled
// ctx ends the run early and is returned alongside the partial summary.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	if !e.ran.CompareAndSwap(false, true) {
		return Summary{RunID: e.runID}, ErrAlreadyRun
	}

	start := time.Now()
	threads := e.cfg.Threads
	e.logger.Info("crawl started",
		zap.String("run_id", e.runID.String()),
		zap.Int("urls", e.total),
		zap.Int("workers", threads),
	)
	e.emit(progress.Event{Stage: progress.StageRunStart, Total: e.total})

	runners := make([]dispatcher.Runner, 0, threads)
	for i := range threads {
		runners = append(runners, worker.New(
			e.frontier,
			e.fetcher,
			e.extractor,
			e.sink,
			e.emitter,
			worker.Config{RunID: e.runID, Index: i},
			e.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	stats, runErr := dispatcher.New(runners, e.logger.Named("dispatcher")).Run(ctx)

	if err := e.sink.Close(); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("close sink: %w", err))
	}
	if runErr == nil && ctx.Err() != nil && stats.Processed < e.total {
		runErr = fmt.Errorf("run canceled: %w", ctx.Err())
	}

	summary := Summary{
		RunID:      e.runID,
		Total:      e.total,
		Succeeded:  stats.Succeeded,
		HTTPErrors: stats.HTTPErrors,
		Failed:     stats.Failed,
		Elapsed:    time.Since(start),
	}
	fields := []zap.Field{
		zap.String("run_id", e.runID.String()),
		zap.Int("recorded", summary.Recorded()),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("http_errors", summary.HTTPErrors),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", summary.Elapsed),
	}

	if runErr != nil {
		status := statusFailed
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			status = statusCanceled
		}
		metrics.ObserveRun(status)
		e.logger.Error("crawl aborted", append(fields, zap.Error(runErr))...)
		e.emit(progress.Event{
			Stage: progress.StageRunError,
			Total: summary.Recorded(),
			Dur:   summary.Elapsed,
			Note:  runErr.Error(),
		})
		return summary, runErr
	}

	metrics.ObserveRun(statusSucceeded)
	e.logger.Info("crawl finished", fields...)
	e.emit(progress.Event{
		Stage: progress.StageRunDone,
		Total: summary.Recorded(),
		Dur:   summary.Elapsed,
	})
	return summary, nil
}

func (e *Engine) emit(evt progress.Event) {
	evt.RunID = progress.UUIDToBytes(e.runID)
	evt.TS = time.Now().UTC()
	e.emitter.Emit(evt)
}
