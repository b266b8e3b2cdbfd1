package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

// SaveOpportunity inserts the opportunity and fills in its assigned ID.
func (s *Store) SaveOpportunity(ctx context.Context, opp *Opportunity) error {
	const q = `
		INSERT INTO opportunities (
			chain_id, pool_name, pool_address, imbalance_pct,
			profit_usd, profit_native, reserve0, reserve1,
			block_number, detected_at, captured
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`
	return s.withRetry(ctx, "save_opportunity", func(ctx context.Context) error {
		return s.db.QueryRowxContext(ctx, q,
			opp.ChainID, opp.PoolName, opp.PoolAddress, opp.ImbalancePct,
			opp.ProfitUSD, opp.ProfitNative, opp.Reserve0, opp.Reserve1,
			opp.BlockNumber, opp.DetectedAt, opp.Captured,
		).Scan(&opp.ID)
	})
}

// MarkOpportunitiesCaptured marks recent uncaptured opportunities on the
// given pools as captured by the given transaction. Opportunities older than
// window are left alone. Returns the number of rows updated.
func (s *Store) MarkOpportunitiesCaptured(
	ctx context.Context, chainID int64, pools []string,
	capturedBy, captureTxHash string, window time.Duration,
) (int64, error) {
	if len(pools) == 0 {
		return 0, nil
	}
	const q = `
		UPDATE opportunities
		SET captured = TRUE, captured_by = $1, capture_tx_hash = $2
		WHERE chain_id = $3
		  AND captured = FALSE
		  AND pool_address = ANY($4)
		  AND detected_at >= $5`
	var updated int64
	err := s.withRetry(ctx, "mark_captured", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, q,
			capturedBy, captureTxHash, chainID, pq.Array(pools), time.Now().UTC().Add(-window))
		if err != nil {
			return err
		}
		updated, err = res.RowsAffected()
		return err
	})
	return updated, err
}

// buildOpportunityQuery translates filters into SQL. Split out so the
// generated statement and argument list are testable without a database.
func buildOpportunityQuery(f OpportunityFilters) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.ChainID != nil {
		where = append(where, "chain_id = "+arg(*f.ChainID))
	}
	if f.MinProfit != nil {
		where = append(where, "profit_usd >= "+arg(*f.MinProfit))
	}
	if f.MaxProfit != nil {
		where = append(where, "profit_usd <= "+arg(*f.MaxProfit))
	}
	if f.Captured != nil {
		where = append(where, "captured = "+arg(*f.Captured))
	}

	q := `SELECT * FROM opportunities`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY detected_at DESC"
	q += " LIMIT " + arg(pageLimit(f.Limit))
	q += " OFFSET " + arg(max(f.Offset, 0))
	return q, args
}

// Opportunities returns opportunities matching the filters, newest first.
func (s *Store) Opportunities(ctx context.Context, f OpportunityFilters) ([]Opportunity, error) {
	q, args := buildOpportunityQuery(f)
	var out []Opportunity
	err := s.withRetry(ctx, "query_opportunities", func(ctx context.Context) error {
		out = out[:0]
		return s.db.SelectContext(ctx, &out, q, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("query opportunities: %w", err)
	}
	return out, nil
}
