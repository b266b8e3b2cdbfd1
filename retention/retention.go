// Package retention prunes aged rows: old opportunities are deleted and
// old transactions are moved to the archive table on a daily schedule.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/relab/arbmon/config"
	"github.com/relab/arbmon/logging"
)

// Service runs the daily retention sweep.
type Service struct {
	db     *sqlx.DB
	logger logging.Logger

	opportunityRetention time.Duration
	transactionArchive   time.Duration
	runHourUTC           int

	now func() time.Time
}

// New builds the retention service from the retention knobs in cfg.
func New(db *sqlx.DB, cfg config.Config) *Service {
	return &Service{
		db:                   db,
		logger:               logging.New("retention"),
		opportunityRetention: time.Duration(cfg.OpportunityRetentionDays) * 24 * time.Hour,
		transactionArchive:   time.Duration(cfg.TransactionArchiveDays) * 24 * time.Hour,
		runHourUTC:           cfg.RetentionHourUTC,
		now:                  time.Now,
	}
}

// Sweep applies both retention policies once. Archival is transactional:
// a transaction row is either still in the live table or in the archive,
// never gone and never duplicated.
func (s *Service) Sweep(ctx context.Context) error {
	now := s.now().UTC()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM opportunities WHERE detected_at < $1`,
		now.Add(-s.opportunityRetention))
	if err != nil {
		return fmt.Errorf("delete old opportunities: %w", err)
	}
	deleted, _ := res.RowsAffected()

	archived, err := s.archiveTransactions(ctx, now.Add(-s.transactionArchive))
	if err != nil {
		return err
	}

	s.logger.Infow("retention sweep done",
		"opportunities_deleted", deleted,
		"transactions_archived", archived)
	return nil
}

func (s *Service) archiveTransactions(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin archive: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		WITH moved AS (
			DELETE FROM transactions WHERE detected_at < $1 RETURNING *
		)
		INSERT INTO transactions_archive SELECT * FROM moved`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("archive transactions: %w", err)
	}
	archived, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit archive: %w", err)
	}
	return archived, nil
}

// Run sweeps at the configured UTC hour every day until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	s.logger.Infow("retention service started", "run_hour_utc", s.runHourUTC)
	for {
		next := NextRunTime(s.now().UTC(), s.runHourUTC)
		timer := time.NewTimer(next.Sub(s.now().UTC()))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Infof("retention service stopped")
			return
		case <-timer.C:
		}
		if err := s.Sweep(ctx); err != nil {
			s.logger.Errorw("retention sweep failed", "err", err)
		}
	}
}

// NextRunTime returns the next occurrence of hourUTC after now.
func NextRunTime(now time.Time, hourUTC int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
