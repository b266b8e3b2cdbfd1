package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ArbitrageurUpdate is the per-transaction delta applied to a profile.
type ArbitrageurUpdate struct {
	Address      string
	ChainID      int64
	Success      bool
	ProfitNetUSD decimal.NullDecimal
	GasSpentUSD  decimal.Decimal
	GasPriceGwei decimal.Decimal
	Strategy     string
	SeenAt       time.Time
}

// clampedProfit returns the profile contribution: max(0, net profit).
// Losses never reduce a cumulative profit total.
func (u ArbitrageurUpdate) clampedProfit() decimal.Decimal {
	if u.ProfitNetUSD.Valid && u.ProfitNetUSD.Decimal.IsPositive() {
		return u.ProfitNetUSD.Decimal
	}
	return decimal.Zero
}

// UpsertArbitrageur applies one transaction to the (address, chain_id)
// profile. The row is locked for the duration of the update so concurrent
// monitors preserve total = successful + failed and the running gas-price
// mean. preferred_strategy is the most frequent strategy across the
// address's persisted transactions.
func (s *Store) UpsertArbitrageur(ctx context.Context, u ArbitrageurUpdate) error {
	return s.withRetry(ctx, "upsert_arbitrageur", func(ctx context.Context) error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		const lockProfile = `
			SELECT * FROM arbitrageurs
			WHERE address = $1 AND chain_id = $2
			FOR UPDATE`

		var cur Arbitrageur
		err = tx.GetContext(ctx, &cur, lockProfile, u.Address, u.ChainID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			var inserted bool
			inserted, err = s.insertArbitrageur(ctx, tx, u)
			if err == nil && !inserted {
				// A concurrent writer created the profile after our miss;
				// fold this transaction into the now-existing row.
				if err = tx.GetContext(ctx, &cur, lockProfile, u.Address, u.ChainID); err == nil {
					err = s.updateArbitrageur(ctx, tx, cur, u)
				}
			}
		case err == nil:
			err = s.updateArbitrageur(ctx, tx, cur, u)
		}
		if err != nil {
			return err
		}
		return tx.Commit()
	})
}

// insertArbitrageur creates the profile from its first transaction. inserted
// is false when another writer won the (address, chain_id) race.
func (s *Store) insertArbitrageur(ctx context.Context, tx execer, u ArbitrageurUpdate) (inserted bool, err error) {
	success, failed := 0, 1
	if u.Success {
		success, failed = 1, 0
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO arbitrageurs (
			address, chain_id, first_seen, last_seen,
			total_transactions, successful_transactions, failed_transactions,
			total_profit_usd, total_gas_spent_usd, avg_gas_price_gwei,
			preferred_strategy, is_bot, contract_address
		) VALUES ($1, $2, $3, $3, 1, $4, $5, $6, $7, $8, $9, FALSE, FALSE)
		ON CONFLICT (address, chain_id) DO NOTHING`,
		u.Address, u.ChainID, u.SeenAt,
		success, failed, u.clampedProfit(), u.GasSpentUSD, u.GasPriceGwei, u.Strategy)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (s *Store) updateArbitrageur(ctx context.Context, tx execer, cur Arbitrageur, u ArbitrageurUpdate) error {
	total := cur.TotalTransactions + 1
	successful, failed := cur.SuccessfulTransactions, cur.FailedTransactions
	if u.Success {
		successful++
	} else {
		failed++
	}

	// Running mean over all observed transactions.
	avgGas := u.GasPriceGwei
	if cur.AvgGasPriceGwei.Valid {
		avgGas = cur.AvgGasPriceGwei.Decimal.
			Mul(decimal.NewFromInt(cur.TotalTransactions)).
			Add(u.GasPriceGwei).
			Div(decimal.NewFromInt(total))
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE arbitrageurs
		SET last_seen = $1,
		    total_transactions = $2,
		    successful_transactions = $3,
		    failed_transactions = $4,
		    total_profit_usd = total_profit_usd + $5,
		    total_gas_spent_usd = total_gas_spent_usd + $6,
		    avg_gas_price_gwei = $7,
		    preferred_strategy = (
		        SELECT t.strategy FROM transactions t
		        WHERE t.from_address = $8 AND t.chain_id = $9
		        GROUP BY t.strategy
		        ORDER BY COUNT(*) DESC, t.strategy
		        LIMIT 1
		    )
		WHERE address = $8 AND chain_id = $9`,
		u.SeenAt, total, successful, failed,
		u.clampedProfit(), u.GasSpentUSD, avgGas,
		u.Address, u.ChainID)
	return err
}

// execer covers both *sqlx.Tx and *sqlx.DB for the upsert helpers.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func buildArbitrageurQuery(f ArbitrageurFilters) (string, []any) {
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
	if f.MinTransactions != nil {
		where = append(where, "total_transactions >= "+arg(*f.MinTransactions))
	}

	q := `SELECT * FROM arbitrageurs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY total_profit_usd DESC"
	q += " LIMIT " + arg(pageLimit(f.Limit))
	q += " OFFSET " + arg(max(f.Offset, 0))
	return q, args
}

// Arbitrageurs returns profiles matching the filters, most profitable first.
func (s *Store) Arbitrageurs(ctx context.Context, f ArbitrageurFilters) ([]Arbitrageur, error) {
	q, args := buildArbitrageurQuery(f)
	var out []Arbitrageur
	err := s.withRetry(ctx, "query_arbitrageurs", func(ctx context.Context) error {
		out = out[:0]
		return s.db.SelectContext(ctx, &out, q, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("query arbitrageurs: %w", err)
	}
	return out, nil
}
