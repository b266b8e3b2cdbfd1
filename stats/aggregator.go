// Package stats materializes hourly per-chain statistics: capture rates,
// small-opportunity tracking, competition level, and the profit
// distribution of detected transactions.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/relab/arbmon/config"
	"github.com/relab/arbmon/logging"
)

// Aggregator rolls the just-closed hour up into chain_stats once per hour.
// Re-running it for the same hour overwrites the row, so it is idempotent.
type Aggregator struct {
	db     *sqlx.DB
	logger logging.Logger

	smallMinUSD decimal.Decimal
	smallMaxUSD decimal.Decimal

	now func() time.Time
}

// New builds an aggregator on the store's connection pool.
func New(db *sqlx.DB, cfg config.Config) *Aggregator {
	return &Aggregator{
		db:          db,
		logger:      logging.New("stats"),
		smallMinUSD: cfg.SmallOppMinUSD,
		smallMaxUSD: cfg.SmallOppMaxUSD,
		now:         time.Now,
	}
}

// opportunityCounts is the per-hour opportunity roll-up.
type opportunityCounts struct {
	Detected      int64 `db:"detected"`
	Captured      int64 `db:"captured"`
	Small         int64 `db:"small"`
	SmallCaptured int64 `db:"small_captured"`
}

// transactionStats is the per-hour transaction roll-up, computed over rows
// with non-null profit for the distribution columns.
type transactionStats struct {
	Detected           int64               `db:"detected"`
	UniqueArbitrageurs int64               `db:"unique_arbitrageurs"`
	TotalProfitUSD     decimal.NullDecimal `db:"total_profit_usd"`
	TotalGasSpentUSD   decimal.NullDecimal `db:"total_gas_spent_usd"`
	AvgProfitUSD       decimal.NullDecimal `db:"avg_profit_usd"`
	MedianProfitUSD    decimal.NullDecimal `db:"median_profit_usd"`
	MaxProfitUSD       decimal.NullDecimal `db:"max_profit_usd"`
	MinProfitUSD       decimal.NullDecimal `db:"min_profit_usd"`
	P95ProfitUSD       decimal.NullDecimal `db:"p95_profit_usd"`
}

// AggregateHour computes and upserts the chain's stats for the hour
// containing hourTimestamp. The timestamp is truncated to the hour.
func (a *Aggregator) AggregateHour(ctx context.Context, chainID int64, hourTimestamp time.Time) error {
	hourStart := hourTimestamp.UTC().Truncate(time.Hour)
	hourEnd := hourStart.Add(time.Hour)

	var opps opportunityCounts
	err := a.db.GetContext(ctx, &opps, `
		SELECT
			COUNT(*) AS detected,
			COUNT(*) FILTER (WHERE captured) AS captured,
			COUNT(*) FILTER (WHERE profit_usd BETWEEN $1 AND $2) AS small,
			COUNT(*) FILTER (WHERE captured AND profit_usd BETWEEN $1 AND $2) AS small_captured
		FROM opportunities
		WHERE chain_id = $3 AND detected_at >= $4 AND detected_at < $5`,
		a.smallMinUSD, a.smallMaxUSD, chainID, hourStart, hourEnd)
	if err != nil {
		return fmt.Errorf("aggregate opportunities: %w", err)
	}

	var txs transactionStats
	err = a.db.GetContext(ctx, &txs, `
		SELECT
			COUNT(*) AS detected,
			COUNT(DISTINCT from_address) AS unique_arbitrageurs,
			SUM(profit_net_usd) AS total_profit_usd,
			SUM(gas_cost_usd) AS total_gas_spent_usd,
			AVG(profit_net_usd) AS avg_profit_usd,
			PERCENTILE_CONT(0.5) WITHIN GROUP (ORDER BY profit_net_usd) AS median_profit_usd,
			MAX(profit_net_usd) AS max_profit_usd,
			MIN(profit_net_usd) AS min_profit_usd,
			PERCENTILE_CONT(0.95) WITHIN GROUP (ORDER BY profit_net_usd) AS p95_profit_usd
		FROM transactions
		WHERE chain_id = $1 AND detected_at >= $2 AND detected_at < $3
		  AND profit_net_usd IS NOT NULL`,
		chainID, hourStart, hourEnd)
	if err != nil {
		return fmt.Errorf("aggregate transactions: %w", err)
	}

	captureRate := Rate(opps.Captured, opps.Detected)
	smallRate := Rate(opps.SmallCaptured, opps.Small)
	competition := CompetitionLevel(txs.UniqueArbitrageurs, opps.Detected)

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO chain_stats (
			chain_id, hour_timestamp,
			opportunities_detected, opportunities_captured,
			small_opportunities_count, small_opps_captured,
			transactions_detected, unique_arbitrageurs,
			total_profit_usd, total_gas_spent_usd,
			avg_profit_usd, median_profit_usd,
			max_profit_usd, min_profit_usd, p95_profit_usd,
			capture_rate, small_opp_capture_rate, avg_competition_level
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18
		)
		ON CONFLICT (chain_id, hour_timestamp) DO UPDATE SET
			opportunities_detected = EXCLUDED.opportunities_detected,
			opportunities_captured = EXCLUDED.opportunities_captured,
			small_opportunities_count = EXCLUDED.small_opportunities_count,
			small_opps_captured = EXCLUDED.small_opps_captured,
			transactions_detected = EXCLUDED.transactions_detected,
			unique_arbitrageurs = EXCLUDED.unique_arbitrageurs,
			total_profit_usd = EXCLUDED.total_profit_usd,
			total_gas_spent_usd = EXCLUDED.total_gas_spent_usd,
			avg_profit_usd = EXCLUDED.avg_profit_usd,
			median_profit_usd = EXCLUDED.median_profit_usd,
			max_profit_usd = EXCLUDED.max_profit_usd,
			min_profit_usd = EXCLUDED.min_profit_usd,
			p95_profit_usd = EXCLUDED.p95_profit_usd,
			capture_rate = EXCLUDED.capture_rate,
			small_opp_capture_rate = EXCLUDED.small_opp_capture_rate,
			avg_competition_level = EXCLUDED.avg_competition_level`,
		chainID, hourStart,
		opps.Detected, opps.Captured, opps.Small, opps.SmallCaptured,
		txs.Detected, txs.UniqueArbitrageurs,
		coalesceZero(txs.TotalProfitUSD), coalesceZero(txs.TotalGasSpentUSD),
		txs.AvgProfitUSD, txs.MedianProfitUSD,
		txs.MaxProfitUSD, txs.MinProfitUSD, txs.P95ProfitUSD,
		captureRate, smallRate, competition)
	if err != nil {
		return fmt.Errorf("upsert chain_stats: %w", err)
	}

	a.logger.Infow("hourly stats aggregated",
		"chain_id", chainID,
		"hour", hourStart.Format(time.RFC3339),
		"opportunities", opps.Detected,
		"transactions", txs.Detected,
		"capture_rate", captureRate.StringFixed(2))
	return nil
}

// AggregateAll rolls up the given hour for every chain in the chains table.
// A failing chain logs and does not stop the others.
func (a *Aggregator) AggregateAll(ctx context.Context, hourTimestamp time.Time) {
	var chainIDs []int64
	if err := a.db.SelectContext(ctx, &chainIDs, `SELECT chain_id FROM chains ORDER BY chain_id`); err != nil {
		a.logger.Errorw("cannot list chains for aggregation", "err", err)
		return
	}
	for _, chainID := range chainIDs {
		if err := a.AggregateHour(ctx, chainID, hourTimestamp); err != nil {
			a.logger.Errorw("hourly aggregation failed", "chain_id", chainID, "err", err)
		}
	}
}

// Run aggregates the previous hour immediately, then re-runs shortly after
// the top of every hour until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context) {
	a.logger.Infof("stats aggregator started")
	for {
		a.AggregateAll(ctx, a.now().UTC().Add(-time.Hour))

		next := NextRunTime(a.now().UTC())
		timer := time.NewTimer(next.Sub(a.now().UTC()))
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Infof("stats aggregator stopped")
			return
		case <-timer.C:
		}
	}
}

// NextRunTime returns the next aggregation instant: one minute past the
// next hour, leaving room for in-flight detections to commit.
func NextRunTime(now time.Time) time.Time {
	return now.Truncate(time.Hour).Add(time.Hour + time.Minute)
}

// Rate returns part/whole as a percentage, or zero when whole is zero.
func Rate(part, whole int64) decimal.Decimal {
	if whole == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(part).Div(decimal.NewFromInt(whole)).Mul(decimal.NewFromInt(100))
}

// CompetitionLevel returns arbitrageurs per detected opportunity, or zero
// when no opportunities were detected.
func CompetitionLevel(arbitrageurs, opportunities int64) decimal.Decimal {
	if opportunities == 0 || arbitrageurs == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(arbitrageurs).Div(decimal.NewFromInt(opportunities))
}

func coalesceZero(d decimal.NullDecimal) decimal.Decimal {
	if d.Valid {
		return d.Decimal
	}
	return decimal.Zero
}
