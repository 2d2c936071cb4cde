package crawler

import (
	"context"
	"time"
)

// Frontier hands out each pending task exactly once.
type Frontier interface {
	TryDequeue() (CrawlTask, bool)
}

// Fetcher retrieves one URL. Network failures are reported on the outcome,
// never as a Go error.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) FetchOutcome
}

// Extractor turns a fetch outcome into a result row and, in extended mode, the
// page's links, images, and headings.
type Extractor interface {
	Extract(outcome FetchOutcome) (ResultRecord, *ExtendedRecord)
}

// ResultSink durably records results. Record must be safe for concurrent use
// and must never interleave the rows of two records.
type ResultSink interface {
	Record(ctx context.Context, record ResultRecord, extended *ExtendedRecord) error
	Close() error
}

// RetryPolicy decides whether a failed write is attempted again.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}
