package featurerecorder

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rstorm/scancore/internal/histogram"
)

// sqlSink is the Postgres-backed recorder backend, an optional
// SQL-output mode. Records are batched and flushed with pgx.Batch
// rather than one round trip per feature, the same batching discipline
// the rest of this codebase uses for its own bulk writes.
type sqlSink struct {
	pool  *pgxpool.Pool
	table string

	mu      sync.Mutex
	pending pgx.Batch
	queued  int
}

const sqlSinkBatchSize = 500

// newSQLSink uses the caller's pool to ensure the recorder's table
// exists.
func newSQLSink(ctx context.Context, pool *pgxpool.Pool, recorderName string) (*sqlSink, error) {
	table := "features_" + sanitizeTableName(recorderName)
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id SERIAL PRIMARY KEY,
		pos0 TEXT NOT NULL,
		feature TEXT NOT NULL,
		context TEXT
	)`, table)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("sqlsink: create table %s: %w", table, err)
	}
	return &sqlSink{pool: pool, table: table}, nil
}

func sanitizeTableName(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

func (s *sqlSink) WriteRecord(pos0Str, feature, context string, noContext bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := fmt.Sprintf("INSERT INTO %s (pos0, feature, context) VALUES ($1, $2, $3)", s.table)
	var ctxArg any
	if !noContext {
		ctxArg = context
	}
	s.pending.Queue(q, pos0Str, feature, ctxArg)
	s.queued++
	if s.queued >= sqlSinkBatchSize {
		return s.flushLocked()
	}
	return nil
}

// WriteHistogram materializes h to its own "{table}_hist_{name}" table,
// one row per projected feature value, upserted so a re-run against the
// same database replaces rather than duplicates counts — the SQL-backend
// strategy for the shutdown-time histograms_generate() step.
func (s *sqlSink) WriteHistogram(name string, h *histogram.Histogram) error {
	table := s.table + "_hist_" + sanitizeTableName(name)
	ctx := context.Background()
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		value TEXT PRIMARY KEY,
		count BIGINT NOT NULL
	)`, table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("sqlsink: create histogram table %s: %w", table, err)
	}

	entries := h.Entries()
	if len(entries) == 0 {
		return nil
	}

	var batch pgx.Batch
	q := fmt.Sprintf(`INSERT INTO %s (value, count) VALUES ($1, $2)
		ON CONFLICT (value) DO UPDATE SET count = EXCLUDED.count`, table)
	for _, e := range entries {
		batch.Queue(q, e.Key, e.Count)
	}
	br := s.pool.SendBatch(ctx, &batch)
	var firstErr error
	for range entries {
		if _, err := br.Exec(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("sqlsink: histogram %s: batch exec: %w", table, err)
		}
	}
	if err := br.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("sqlsink: histogram %s: batch close: %w", table, err)
	}
	return firstErr
}

func (s *sqlSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *sqlSink) flushLocked() error {
	if s.queued == 0 {
		return nil
	}
	br := s.pool.SendBatch(context.Background(), &s.pending)
	var firstErr error
	for i := 0; i < s.queued; i++ {
		if _, err := br.Exec(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("sqlsink %s: batch exec: %w", s.table, err)
		}
	}
	if err := br.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("sqlsink %s: batch close: %w", s.table, err)
	}
	s.pending = pgx.Batch{}
	s.queued = 0
	return firstErr
}

func (s *sqlSink) Shutdown() error {
	return s.Flush()
}
