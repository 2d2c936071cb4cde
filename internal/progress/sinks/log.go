package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/seedcrawl/internal/progress"
)

// LogSink emits structured logs for progress streams. Run milestones log at
// info level, per-URL events at debug.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageFetchStart:
			s.logger.Debug("fetch started",
				zap.Int("seq", evt.Seq),
				zap.Int("worker", evt.Worker),
				zap.String("url", evt.URL),
			)
		case progress.StageFetchDone:
			s.logger.Debug("fetch finished",
				zap.Int("seq", evt.Seq),
				zap.Int("worker", evt.Worker),
				zap.String("url", evt.URL),
				zap.String("outcome", evt.Outcome),
				zap.String("status_class", string(evt.StatusClass)),
				zap.String("error_kind", evt.ErrorKind),
				zap.Int64("bytes", evt.Bytes),
				zap.Duration("dur", evt.Dur),
			)
		case progress.StageRunError:
			s.logger.Warn("run failed",
				zap.Stringer("run_id", evt.RunUUID()),
				zap.Int("records", evt.Total),
				zap.Duration("dur", evt.Dur),
				zap.String("note", evt.Note),
			)
		default:
			s.logger.Info("run progress",
				zap.Stringer("run_id", evt.RunUUID()),
				zap.String("stage", string(evt.Stage)),
				zap.Int("total", evt.Total),
				zap.Duration("dur", evt.Dur),
			)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
