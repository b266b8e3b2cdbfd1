package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// SaveTransaction inserts the transaction. Re-ingesting the same block is a
// no-op thanks to the (chain_id, tx_hash) uniqueness: the insert conflicts
// and inserted reports false without an error.
func (s *Store) SaveTransaction(ctx context.Context, tx *ArbitrageTransaction) (inserted bool, err error) {
	const q = `
		INSERT INTO transactions (
			chain_id, tx_hash, from_address, block_number, block_timestamp,
			gas_price_gwei, gas_used, gas_cost_native, gas_cost_usd,
			swap_count, strategy, profit_gross_usd, profit_net_usd,
			pools_involved, tokens_involved, success, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (chain_id, tx_hash) DO NOTHING
		RETURNING id`
	err = s.withRetry(ctx, "save_transaction", func(ctx context.Context) error {
		err := s.db.QueryRowxContext(ctx, q,
			tx.ChainID, tx.TxHash, tx.FromAddress, tx.BlockNumber, tx.BlockTimestamp,
			tx.GasPriceGwei, tx.GasUsed, tx.GasCostNative, tx.GasCostUSD,
			tx.SwapCount, tx.Strategy, tx.ProfitGrossUSD, tx.ProfitNetUSD,
			tx.PoolsInvolved, tx.TokensInvolved, tx.Success, tx.DetectedAt,
		).Scan(&tx.ID)
		if errors.Is(err, sql.ErrNoRows) {
			// Conflict: the row already exists.
			return nil
		}
		if err == nil {
			inserted = true
		}
		return err
	})
	return inserted, err
}

func buildTransactionQuery(f TransactionFilters) (string, []any) {
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
	if f.FromAddress != nil {
		where = append(where, "from_address = "+arg(strings.ToLower(*f.FromAddress)))
	}
	if f.MinProfit != nil {
		where = append(where, "profit_net_usd >= "+arg(*f.MinProfit))
	}
	if f.MaxProfit != nil {
		where = append(where, "profit_net_usd <= "+arg(*f.MaxProfit))
	}
	if f.MinSwaps != nil {
		where = append(where, "swap_count >= "+arg(*f.MinSwaps))
	}
	if f.Strategy != nil {
		where = append(where, "strategy = "+arg(*f.Strategy))
	}

	q := `SELECT * FROM transactions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY detected_at DESC"
	q += " LIMIT " + arg(pageLimit(f.Limit))
	q += " OFFSET " + arg(max(f.Offset, 0))
	return q, args
}

// Transactions returns arbitrage transactions matching the filters,
// newest first.
func (s *Store) Transactions(ctx context.Context, f TransactionFilters) ([]ArbitrageTransaction, error) {
	q, args := buildTransactionQuery(f)
	var out []ArbitrageTransaction
	err := s.withRetry(ctx, "query_transactions", func(ctx context.Context) error {
		out = out[:0]
		return s.db.SelectContext(ctx, &out, q, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	return out, nil
}
