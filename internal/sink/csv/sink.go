// Package csvsink writes crawl results as CSV files.
package csvsink

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/JakeFAU/seedcrawl/internal/crawler"
	"github.com/JakeFAU/seedcrawl/internal/sink"
)

var (
	primaryHeader  = []string{"sequence_index", "url", "http_status", "title", "body_size", "elapsed_ms", "error", "truncated"}
	linksHeader    = []string{"url", "position", "href"}
	imagesHeader   = []string{"url", "position", "src"}
	headingsHeader = []string{"url", "position", "level", "text"}
)

type table struct {
	path string
	file *os.File
	w    *csv.Writer
}

// Sink implements crawler.ResultSink over one primary CSV file and, in
// extended mode, three auxiliary files. A failed write is not retried; the
// sink stays failed.
type Sink struct {
	mu       sync.Mutex
	primary  *table
	links    *table
	images   *table
	headings *table
	closed   bool
	failed   error
}

// New creates (or truncates) the output files and writes their headers.
func New(path string, extended bool) (*Sink, error) {
	if path == "" {
		return nil, &crawler.ConfigError{Key: "output.path", Reason: "must not be empty"}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, &crawler.ConfigError{Key: "output.path", Reason: "must be writable", Err: err}
	}
	s := &Sink{}
	var err error
	if s.primary, err = openTable(path, primaryHeader); err != nil {
		return nil, err
	}
	if extended {
		paths := sink.ExtendedPaths(path)
		for i, tbl := range []struct {
			dst    **table
			header []string
		}{
			{&s.links, linksHeader},
			{&s.images, imagesHeader},
			{&s.headings, headingsHeader},
		} {
			if *tbl.dst, err = openTable(paths[i], tbl.header); err != nil {
				_ = s.closeFiles()
				return nil, err
			}
		}
	}
	return s, nil
}

func openTable(path string, header []string) (*table, error) {
	// #nosec G304 -- output path comes from operator configuration.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, &crawler.ConfigError{Key: "output.path", Reason: "must be writable", Err: err}
	}
	t := &table{path: path, file: f, w: csv.NewWriter(f)}
	if err := t.write(header); err != nil {
		_ = f.Close()
		return nil, &crawler.ConfigError{Key: "output.path", Reason: "must be writable", Err: err}
	}
	return t, nil
}

func (t *table) write(rows ...[]string) error {
	for _, row := range rows {
		if err := t.w.Write(row); err != nil {
			return fmt.Errorf("write %s: %w", t.path, err)
		}
	}
	t.w.Flush()
	if err := t.w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", t.path, err)
	}
	return nil
}

// Record appends the record's rows. Extended rows land before the primary
// row so a visible primary row always has its extended rows.
func (s *Sink) Record(_ context.Context, record crawler.ResultRecord, extended *crawler.ExtendedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return crawler.NewWriteError(record, 1, crawler.ErrSinkClosed)
	}
	if s.failed != nil {
		return crawler.NewWriteError(record, 1, fmt.Errorf("sink failed earlier: %w", s.failed))
	}
	if err := s.write(record, extended); err != nil {
		s.failed = err
		return crawler.NewWriteError(record, 1, err)
	}
	return nil
}

func (s *Sink) write(record crawler.ResultRecord, extended *crawler.ExtendedRecord) error {
	if extended != nil && s.links != nil {
		if err := s.links.write(positional(extended.URL, extended.Links)...); err != nil {
			return err
		}
		if err := s.images.write(positional(extended.URL, extended.Images)...); err != nil {
			return err
		}
		rows := make([][]string, 0, len(extended.Headings))
		for i, h := range extended.Headings {
			rows = append(rows, []string{extended.URL, strconv.Itoa(i), strconv.Itoa(h.Level), h.Text})
		}
		if err := s.headings.write(rows...); err != nil {
			return err
		}
	}
	return s.primary.write(primaryRow(record))
}

func positional(url string, values []string) [][]string {
	rows := make([][]string, 0, len(values))
	for i, v := range values {
		rows = append(rows, []string{url, strconv.Itoa(i), v})
	}
	return rows
}

func primaryRow(r crawler.ResultRecord) []string {
	status := ""
	if r.StatusCode != 0 {
		status = strconv.Itoa(r.StatusCode)
	}
	return []string{
		strconv.Itoa(r.Seq),
		r.URL,
		status,
		r.Title,
		strconv.Itoa(r.BodySize),
		strconv.FormatInt(r.ElapsedMillis, 10),
		r.Error,
		strconv.FormatBool(r.Truncated),
	}
}

// Paths lists every file this sink writes, primary first.
func (s *Sink) Paths() []string {
	paths := []string{s.primary.path}
	for _, t := range []*table{s.links, s.images, s.headings} {
		if t != nil {
			paths = append(paths, t.path)
		}
	}
	return paths
}

// Close flushes and closes all files. Closing twice is a no-op.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.closeFiles()
}

func (s *Sink) closeFiles() error {
	var errs []error
	for _, t := range []*table{s.primary, s.links, s.images, s.headings} {
		if t == nil {
			continue
		}
		t.w.Flush()
		if err := t.w.Error(); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", t.path, err))
		}
		if err := t.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", t.path, err))
		}
	}
	return errors.Join(errs...)
}

var _ crawler.ResultSink = (*Sink)(nil)
