// Package postgres records crawl results in Postgres, one transaction per URL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/seedcrawl/internal/crawler"
	"github.com/JakeFAU/seedcrawl/internal/sink"
)

var validTablePrefix = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultWriteTimeout = 15 * time.Second

// Config controls the connection pool and table naming.
type Config struct {
	DSN         string
	TablePrefix string
	MaxConns    int32
	RunID       string
	Extended    bool
}

type txPool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

type tableNames struct {
	results  string
	links    string
	images   string
	headings string
}

// Sink implements crawler.ResultSink. A record and its extended rows commit
// together or not at all, so a failed write can be retried safely.
type Sink struct {
	mu           sync.RWMutex
	pool         txPool
	tables       tableNames
	runID        string
	extended     bool
	writeTimeout time.Duration
	closed       bool
}

// New connects to Postgres using cfg.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.DSN == "" {
		return nil, &crawler.ConfigError{Key: "db.dsn", Reason: "is required for postgres output"}
	}
	tables, err := newTableNames(cfg.TablePrefix)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, &crawler.ConfigError{Key: "db.dsn", Reason: "must be a valid connection string", Err: err}
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Sink{
		pool:         pool,
		tables:       tables,
		runID:        cfg.RunID,
		extended:     cfg.Extended,
		writeTimeout: defaultWriteTimeout,
	}, nil
}

// NewWithPool constructs a sink over an existing pool (primarily for testing).
func NewWithPool(pool txPool, cfg Config) (*Sink, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	tables, err := newTableNames(cfg.TablePrefix)
	if err != nil {
		return nil, err
	}
	return &Sink{
		pool:         pool,
		tables:       tables,
		runID:        cfg.RunID,
		extended:     cfg.Extended,
		writeTimeout: defaultWriteTimeout,
	}, nil
}

func newTableNames(prefix string) (tableNames, error) {
	if prefix == "" {
		prefix = "crawl_"
	}
	if !validTablePrefix.MatchString(prefix) {
		return tableNames{}, &crawler.ConfigError{Key: "db.table_prefix", Reason: fmt.Sprintf("must be a SQL identifier, got %q", prefix)}
	}
	return tableNames{
		results:  prefix + "results",
		links:    prefix + sink.TableLinks,
		images:   prefix + sink.TableImages,
		headings: prefix + sink.TableHeadings,
	}, nil
}

// EnsureSchema creates the result tables when they are missing.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id TEXT NOT NULL,
	sequence_index INTEGER NOT NULL,
	url TEXT NOT NULL,
	http_status INTEGER,
	title TEXT NOT NULL DEFAULT '',
	body_size INTEGER NOT NULL,
	elapsed_ms BIGINT NOT NULL,
	error TEXT,
	truncated BOOLEAN NOT NULL DEFAULT FALSE,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, sequence_index)
)`, s.tables.results),
		positionalTableDDL(s.tables.links, "href TEXT NOT NULL"),
		positionalTableDDL(s.tables.images, "src TEXT NOT NULL"),
		positionalTableDDL(s.tables.headings, "level SMALLINT NOT NULL,\n\ttext TEXT NOT NULL"),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func positionalTableDDL(table, columns string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id TEXT NOT NULL,
	sequence_index INTEGER NOT NULL,
	url TEXT NOT NULL,
	position INTEGER NOT NULL,
	%s,
	PRIMARY KEY (run_id, sequence_index, position)
)`, table, columns)
}

// Record writes the record in a single transaction. The write outlives
// cancellation of ctx so a record in progress is never half-abandoned.
func (s *Sink) Record(ctx context.Context, record crawler.ResultRecord, extended *crawler.ExtendedRecord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return crawler.NewWriteError(record, 1, crawler.ErrSinkClosed)
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
	defer cancel()

	tx, err := s.pool.Begin(wctx)
	if err != nil {
		return crawler.NewWriteError(record, 1, fmt.Errorf("begin transaction: %w", err))
	}
	if err := s.insert(wctx, tx, record, extended); err != nil {
		if rbErr := tx.Rollback(wctx); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return crawler.NewWriteError(record, 1, err)
	}
	if err := tx.Commit(wctx); err != nil {
		return crawler.NewWriteError(record, 1, fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (s *Sink) insert(ctx context.Context, tx pgx.Tx, record crawler.ResultRecord, extended *crawler.ExtendedRecord) error {
	if extended != nil && s.extended {
		for i, href := range extended.Links {
			if err := s.insertPositional(ctx, tx, s.tables.links, "href", record, i, href); err != nil {
				return err
			}
		}
		for i, src := range extended.Images {
			if err := s.insertPositional(ctx, tx, s.tables.images, "src", record, i, src); err != nil {
				return err
			}
		}
		query := fmt.Sprintf(`
INSERT INTO %s (run_id, sequence_index, url, position, level, text)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT DO NOTHING`, s.tables.headings)
		for i, h := range extended.Headings {
			if _, err := tx.Exec(ctx, query, s.runID, record.Seq, record.URL, i, h.Level, h.Text); err != nil {
				return fmt.Errorf("insert heading: %w", err)
			}
		}
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	sequence_index,
	url,
	http_status,
	title,
	body_size,
	elapsed_ms,
	error,
	truncated
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)
ON CONFLICT DO NOTHING`, s.tables.results)
	args := []any{
		s.runID,
		record.Seq,
		record.URL,
		nullableInt(record.StatusCode),
		record.Title,
		record.BodySize,
		record.ElapsedMillis,
		nullableString(record.Error),
		record.Truncated,
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *Sink) insertPositional(
	ctx context.Context,
	tx pgx.Tx,
	table, column string,
	record crawler.ResultRecord,
	position int,
	value string,
) error {
	query := fmt.Sprintf(`
INSERT INTO %s (run_id, sequence_index, url, position, %s)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT DO NOTHING`, table, column)
	if _, err := tx.Exec(ctx, query, s.runID, record.Seq, record.URL, position, value); err != nil {
		return fmt.Errorf("insert %s row: %w", column, err)
	}
	return nil
}

func nullableInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

func nullableString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// Close waits for in-flight writes and releases the pool.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.pool.Close()
	return nil
}

var _ crawler.ResultSink = (*Sink)(nil)
