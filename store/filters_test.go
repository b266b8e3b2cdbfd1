package store

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

func ptr[T any](v T) *T { return &v }

func TestBuildOpportunityQuery(t *testing.T) {
	chainID := int64(56)
	minProfit := decimal.NewFromInt(10_000)
	captured := false

	tests := []struct {
		name     string
		filters  OpportunityFilters
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "no filters uses defaults",
			filters:  OpportunityFilters{},
			wantSQL:  "SELECT * FROM opportunities ORDER BY detected_at DESC LIMIT $1 OFFSET $2",
			wantArgs: []any{DefaultPageSize, 0},
		},
		{
			name: "all filters",
			filters: OpportunityFilters{
				ChainID:   &chainID,
				MinProfit: &minProfit,
				MaxProfit: ptr(decimal.NewFromInt(100_000)),
				Captured:  &captured,
				Limit:     50,
				Offset:    10,
			},
			wantSQL: "SELECT * FROM opportunities" +
				" WHERE chain_id = $1 AND profit_usd >= $2 AND profit_usd <= $3 AND captured = $4" +
				" ORDER BY detected_at DESC LIMIT $5 OFFSET $6",
			wantArgs: []any{chainID, minProfit, decimal.NewFromInt(100_000), captured, 50, 10},
		},
		{
			name:     "limit capped at max page size",
			filters:  OpportunityFilters{Limit: 50_000},
			wantSQL:  "SELECT * FROM opportunities ORDER BY detected_at DESC LIMIT $1 OFFSET $2",
			wantArgs: []any{MaxPageSize, 0},
		},
		{
			name:     "negative offset normalized",
			filters:  OpportunityFilters{Limit: 10, Offset: -5},
			wantSQL:  "SELECT * FROM opportunities ORDER BY detected_at DESC LIMIT $1 OFFSET $2",
			wantArgs: []any{10, 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := buildOpportunityQuery(tt.filters)
			if sql != tt.wantSQL {
				t.Errorf("sql = %q\nwant  %q", sql, tt.wantSQL)
			}
			if diff := cmp.Diff(tt.wantArgs, args); diff != "" {
				t.Errorf("args mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildTransactionQuery(t *testing.T) {
	chainID := int64(137)
	from := "0xAbCd000000000000000000000000000000000001"
	minSwaps := 3
	strategy := "3-hop"

	sql, args := buildTransactionQuery(TransactionFilters{
		ChainID:     &chainID,
		FromAddress: &from,
		MinSwaps:    &minSwaps,
		Strategy:    &strategy,
		Limit:       25,
	})

	wantSQL := "SELECT * FROM transactions" +
		" WHERE chain_id = $1 AND from_address = $2 AND swap_count >= $3 AND strategy = $4" +
		" ORDER BY detected_at DESC LIMIT $5 OFFSET $6"
	if sql != wantSQL {
		t.Errorf("sql = %q\nwant  %q", sql, wantSQL)
	}
	// Address filters compare lowercased.
	if got := args[1].(string); got != "0xabcd000000000000000000000000000000000001" {
		t.Errorf("from_address arg = %q, want lowercased", got)
	}
	if len(args) != 6 {
		t.Fatalf("len(args) = %d, want 6", len(args))
	}
}

func TestBuildArbitrageurQuery(t *testing.T) {
	minTx := int64(5)
	sql, args := buildArbitrageurQuery(ArbitrageurFilters{MinTransactions: &minTx, Limit: 10})
	wantSQL := "SELECT * FROM arbitrageurs WHERE total_transactions >= $1" +
		" ORDER BY total_profit_usd DESC LIMIT $2 OFFSET $3"
	if sql != wantSQL {
		t.Errorf("sql = %q\nwant  %q", sql, wantSQL)
	}
	if len(args) != 3 {
		t.Fatalf("len(args) = %d, want 3", len(args))
	}
}

func TestClampedProfit(t *testing.T) {
	tests := []struct {
		name   string
		profit decimal.NullDecimal
		want   string
	}{
		{"positive kept", decimal.NewNullDecimal(decimal.NewFromInt(42)), "42"},
		{"loss clamped to zero", decimal.NewNullDecimal(decimal.NewFromInt(-10)), "0"},
		{"null counts as zero", decimal.NullDecimal{}, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := ArbitrageurUpdate{ProfitNetUSD: tt.profit}
			if got := u.clampedProfit(); !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("clampedProfit() = %s, want %s", got, tt.want)
			}
		})
	}
}
