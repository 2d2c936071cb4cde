// Package jsonlsink writes crawl results as JSON lines, one object per URL.
package jsonlsink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/JakeFAU/seedcrawl/internal/crawler"
)

type line struct {
	crawler.ResultRecord
	*extendedFields
}

type extendedFields struct {
	Links    []string          `json:"links"`
	Images   []string          `json:"images"`
	Headings []crawler.Heading `json:"headings"`
}

// Sink implements crawler.ResultSink over a single JSON-lines file. Each
// record, extended data included, is one line written with one call.
type Sink struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	extended bool
	closed   bool
	failed   error
}

// New creates (or truncates) the output file.
func New(path string, extended bool) (*Sink, error) {
	if path == "" {
		return nil, &crawler.ConfigError{Key: "output.path", Reason: "must not be empty"}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, &crawler.ConfigError{Key: "output.path", Reason: "must be writable", Err: err}
	}
	// #nosec G304 -- output path comes from operator configuration.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, &crawler.ConfigError{Key: "output.path", Reason: "must be writable", Err: err}
	}
	return &Sink{path: path, file: f, extended: extended}, nil
}

// Record appends one line for the record.
func (s *Sink) Record(_ context.Context, record crawler.ResultRecord, extended *crawler.ExtendedRecord) error {
	l := line{ResultRecord: record}
	if s.extended && extended != nil {
		l.extendedFields = &extendedFields{
			Links:    nonNil(extended.Links),
			Images:   nonNil(extended.Images),
			Headings: extended.Headings,
		}
		if l.Headings == nil {
			l.Headings = []crawler.Heading{}
		}
	}
	payload, err := json.Marshal(l)
	if err != nil {
		return crawler.NewWriteError(record, 1, fmt.Errorf("marshal record: %w", err))
	}
	payload = append(payload, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return crawler.NewWriteError(record, 1, crawler.ErrSinkClosed)
	}
	if s.failed != nil {
		return crawler.NewWriteError(record, 1, fmt.Errorf("sink failed earlier: %w", s.failed))
	}
	if _, err := s.file.Write(payload); err != nil {
		s.failed = fmt.Errorf("write %s: %w", s.path, err)
		return crawler.NewWriteError(record, 1, s.failed)
	}
	return nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// Paths lists the file this sink writes.
func (s *Sink) Paths() []string {
	return []string{s.path}
}

// Close closes the file. Closing twice is a no-op.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.path, err)
	}
	return nil
}

var _ crawler.ResultSink = (*Sink)(nil)
