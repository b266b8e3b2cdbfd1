package store

import (
	"context"
	"fmt"
	"time"
)

// StatsPeriod is the query-surface time-period selector, resolved against
// hour_timestamp.
type StatsPeriod string

const (
	PeriodHour  StatsPeriod = "1h"
	PeriodDay   StatsPeriod = "24h"
	PeriodWeek  StatsPeriod = "7d"
	PeriodMonth StatsPeriod = "30d"
)

// Duration returns the period's lookback window, or an error for an
// unknown selector.
func (p StatsPeriod) Duration() (time.Duration, error) {
	switch p {
	case PeriodHour:
		return time.Hour, nil
	case PeriodDay:
		return 24 * time.Hour, nil
	case PeriodWeek:
		return 7 * 24 * time.Hour, nil
	case PeriodMonth:
		return 30 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown stats period %q", string(p))
	}
}

const chainStatColumns = `
	id, chain_id, hour_timestamp,
	opportunities_detected, opportunities_captured,
	small_opportunities_count, small_opps_captured,
	transactions_detected, unique_arbitrageurs,
	total_profit_usd, total_gas_spent_usd,
	avg_profit_usd, median_profit_usd, max_profit_usd, min_profit_usd,
	p95_profit_usd, capture_rate, small_opp_capture_rate,
	avg_competition_level`

// ChainStats returns the chain's hourly buckets within the period, newest
// first, capped at MaxPageSize rows.
func (s *Store) ChainStats(ctx context.Context, chainID int64, period StatsPeriod) ([]ChainStat, error) {
	window, err := period.Duration()
	if err != nil {
		return nil, err
	}
	since := time.Now().UTC().Add(-window)

	q := `SELECT ` + chainStatColumns + `
		FROM chain_stats
		WHERE chain_id = $1 AND hour_timestamp >= $2
		ORDER BY hour_timestamp DESC
		LIMIT $3`

	var out []ChainStat
	err = s.withRetry(ctx, "query_chain_stats", func(ctx context.Context) error {
		out = out[:0]
		return s.db.SelectContext(ctx, &out, q, chainID, since, MaxPageSize)
	})
	if err != nil {
		return nil, fmt.Errorf("query chain stats: %w", err)
	}
	return out, nil
}
