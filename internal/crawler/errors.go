package crawler

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the frontier and sinks.
var (
	ErrFrontierSealed = errors.New("frontier is sealed")
	ErrFrontierFull   = errors.New("frontier is full")
	ErrSinkClosed     = errors.New("result sink is closed")
)

// ConfigError is a fatal problem detected before any URL is fetched.
type ConfigError struct {
	Key    string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s", e.Key, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// FetchError describes a per-URL network failure. It is recorded on the
// result row and never stops the run.
type FetchError struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError reports HTML that could not be parsed. Extraction degrades to an
// empty result instead of failing the task.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// WriteError means a record could not be persisted. It aborts the run.
type WriteError struct {
	URL      string
	Seq      int
	Attempts int
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write record %d (%s) after %d attempt(s): %v", e.Seq, e.URL, e.Attempts, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// NewWriteError wraps err for the given record.
func NewWriteError(record ResultRecord, attempts int, err error) *WriteError {
	return &WriteError{URL: record.URL, Seq: record.Seq, Attempts: attempts, Err: err}
}
