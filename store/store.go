// Package store is the persistence gateway. It owns the Postgres schema,
// the retried write path, the row-locked arbitrageur upsert, and the filtered
// query surface used by request/response adapters.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/relab/arbmon/logging"
	"github.com/relab/arbmon/metrics"
)

// ErrPersistence wraps a database failure that survived all retries.
// Callers log it and skip the current unit of work.
var ErrPersistence = errors.New("persistence failure")

const (
	maxIdleConns = 5
	maxOpenConns = 20
	opTimeout    = 5 * time.Second

	retryAttempts  = 3
	retryBaseDelay = 500 * time.Millisecond
)

// MaxPageSize caps every query-surface response.
const MaxPageSize = 1000

// DefaultPageSize applies when a filter does not set a limit.
const DefaultPageSize = 100

// Store is the pooled Postgres gateway shared by all components.
type Store struct {
	db     *sqlx.DB
	logger logging.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// Open connects to the database, configures the pool, and verifies
// connectivity. It does not create the schema; call Bootstrap for that.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxIdleConns(maxIdleConns)
	db.SetMaxOpenConns(maxOpenConns)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{
		db:     db,
		logger: logging.New("store"),
		sleep:  sleepCtx,
	}, nil
}

// NewWithDB wraps an existing connection; used by tests and the aggregator.
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db, logger: logging.New("store"), sleep: sleepCtx}
}

// DB exposes the underlying pool for components that own their SQL
// (the stats aggregator and the retention service).
func (s *Store) DB() *sqlx.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Bootstrap creates all tables, indexes and triggers. Every statement is
// idempotent, so running it on every startup is safe.
func (s *Store) Bootstrap(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("schema bootstrap: %w", err)
	}
	s.logger.Infof("schema bootstrap complete")
	return nil
}

// withRetry runs op up to retryAttempts times with 0.5s, 1s, 2s backoff.
// Exhaustion surfaces ErrPersistence wrapping the terminal error.
func (s *Store) withRetry(ctx context.Context, name string, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, opTimeout)
		err := op(opCtx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		s.logger.Warnw("database operation failed", "op", name, "attempt", attempt+1, "err", err)
		if attempt < retryAttempts-1 {
			if err := s.sleep(ctx, retryBaseDelay<<attempt); err != nil {
				return err
			}
		}
	}
	metrics.DBErrors.WithLabelValues(name).Inc()
	return fmt.Errorf("%w: %s: %v", ErrPersistence, name, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// pageLimit normalizes a requested limit onto [1, MaxPageSize].
func pageLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	}
	return limit
}
