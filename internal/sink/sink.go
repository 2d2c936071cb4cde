// Package sink holds helpers shared by the result sink implementations.
package sink

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/seedcrawl/internal/crawler"
)

// Table names of the auxiliary extended-mode outputs.
const (
	TableLinks    = "links"
	TableImages   = "images"
	TableHeadings = "headings"
)

// ExtendedPath derives the file for an extended table from the primary
// output path: results.csv becomes results_links.csv.
func ExtendedPath(primary, table string) string {
	ext := filepath.Ext(primary)
	stem := strings.TrimSuffix(primary, ext)
	return stem + "_" + table + ext
}

// ExtendedPaths returns the links, images, and headings files for primary.
func ExtendedPaths(primary string) []string {
	return []string{
		ExtendedPath(primary, TableLinks),
		ExtendedPath(primary, TableImages),
		ExtendedPath(primary, TableHeadings),
	}
}

// Retrying retries failed records on a sink whose writes leave no partial
// state behind.
type Retrying struct {
	next   crawler.ResultSink
	policy crawler.RetryPolicy
	logger *zap.Logger
	sleep  func(time.Duration)
}

// RetryOption customizes a Retrying sink.
type RetryOption func(*Retrying)

// WithRetryLogger sets the logger used to report retried writes.
func WithRetryLogger(logger *zap.Logger) RetryOption {
	return func(r *Retrying) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithSleep replaces the function used to wait between attempts.
func WithSleep(sleep func(time.Duration)) RetryOption {
	return func(r *Retrying) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// NewRetrying wraps next with policy.
func NewRetrying(next crawler.ResultSink, policy crawler.RetryPolicy, opts ...RetryOption) *Retrying {
	r := &Retrying{
		next:   next,
		policy: policy,
		logger: zap.NewNop(),
		sleep:  time.Sleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record writes through to the wrapped sink, retrying while the policy allows.
// The returned WriteError reports the total number of attempts.
func (r *Retrying) Record(ctx context.Context, record crawler.ResultRecord, extended *crawler.ExtendedRecord) error {
	for attempt := 1; ; attempt++ {
		err := r.next.Record(ctx, record, extended)
		if err == nil {
			return nil
		}
		if !r.policy.ShouldRetry(err, attempt) {
			var werr *crawler.WriteError
			if errors.As(err, &werr) {
				werr.Attempts = attempt
				return werr
			}
			return crawler.NewWriteError(record, attempt, err)
		}
		backoff := r.policy.Backoff(attempt)
		r.logger.Warn("record write failed, retrying",
			zap.Int("seq", record.Seq),
			zap.String("url", record.URL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		r.sleep(backoff)
	}
}

// Close closes the wrapped sink.
func (r *Retrying) Close() error {
	return r.next.Close()
}

var _ crawler.ResultSink = (*Retrying)(nil)
