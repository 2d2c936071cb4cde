package sinks

import (
	"context"
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/JakeFAU/seedcrawl/internal/progress"
)

// BarSink renders a console progress bar sized by RUN_START and advanced by
// every FETCH_DONE.
type BarSink struct {
	w        io.Writer
	bar      *progressbar.ProgressBar
	failures int
	done     bool
}

// NewBarSink draws on w.
func NewBarSink(w io.Writer) *BarSink {
	return &BarSink{w: w}
}

// Consume advances the bar. It is only called from the hub goroutine.
func (s *BarSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.bar = s.newBar(evt.Total)
			s.done = false
		case progress.StageFetchDone:
			if s.bar == nil {
				continue
			}
			if evt.Outcome != "ok" {
				s.failures++
				s.bar.Describe(fmt.Sprintf("crawling (%d failed)", s.failures))
			}
			if err := s.bar.Add(1); err != nil {
				return fmt.Errorf("advance progress bar: %w", err)
			}
		case progress.StageRunDone:
			if err := s.finish(); err != nil {
				return err
			}
		case progress.StageRunError:
			if err := s.abandon(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *BarSink) newBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(s.w),
		progressbar.OptionSetDescription("crawling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(s.w)
		}),
	)
}

// Completed reports how many fetches the bar has counted.
func (s *BarSink) Completed() int64 {
	if s.bar == nil {
		return 0
	}
	return s.bar.State().CurrentNum
}

func (s *BarSink) finish() error {
	if s.bar == nil || s.done {
		return nil
	}
	s.done = true
	if err := s.bar.Finish(); err != nil {
		return fmt.Errorf("finish progress bar: %w", err)
	}
	return nil
}

// abandon stops drawing and leaves the bar at the count actually reached.
func (s *BarSink) abandon() error {
	if s.bar == nil || s.done {
		return nil
	}
	s.done = true
	if err := s.bar.Exit(); err != nil {
		return fmt.Errorf("exit progress bar: %w", err)
	}
	return nil
}

// Close stops a bar whose run never reported an outcome, without filling it.
func (s *BarSink) Close(context.Context) error {
	return s.abandon()
}
