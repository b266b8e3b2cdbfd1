package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type fakeResult struct {
	rows int64
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.rows, nil }

type fakeExecer struct {
	rows int64
	args []any
}

func (e *fakeExecer) ExecContext(_ context.Context, _ string, args ...any) (sql.Result, error) {
	e.args = args
	return fakeResult{rows: e.rows}, nil
}

func testUpdate(success bool) ArbitrageurUpdate {
	return ArbitrageurUpdate{
		Address:      "0xaaaa000000000000000000000000000000000001",
		ChainID:      56,
		Success:      success,
		ProfitNetUSD: decimal.NewNullDecimal(decimal.NewFromInt(120)),
		GasSpentUSD:  decimal.NewFromInt(3),
		GasPriceGwei: decimal.NewFromInt(5),
		Strategy:     "2-hop",
		SeenAt:       time.Now().UTC(),
	}
}

func TestInsertArbitrageurReportsInsert(t *testing.T) {
	s := &Store{}
	ex := &fakeExecer{rows: 1}

	inserted, err := s.insertArbitrageur(context.Background(), ex, testUpdate(true))
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Fatal("inserted = false for a fresh profile")
	}
}

func TestInsertArbitrageurReportsLostRace(t *testing.T) {
	// ON CONFLICT DO NOTHING affects zero rows when a concurrent writer
	// created the profile first; the caller must fall back to an update so
	// the transaction's contribution is not dropped.
	s := &Store{}
	ex := &fakeExecer{rows: 0}

	inserted, err := s.insertArbitrageur(context.Background(), ex, testUpdate(false))
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Fatal("inserted = true when the unique key already existed")
	}
}

func TestInsertArbitrageurCountsOutcome(t *testing.T) {
	s := &Store{}
	for _, success := range []bool{true, false} {
		ex := &fakeExecer{rows: 1}
		if _, err := s.insertArbitrageur(context.Background(), ex, testUpdate(success)); err != nil {
			t.Fatal(err)
		}
		// args: address, chain_id, seen_at, successful, failed, ...
		wantSuccess, wantFailed := 0, 1
		if success {
			wantSuccess, wantFailed = 1, 0
		}
		if ex.args[3] != wantSuccess || ex.args[4] != wantFailed {
			t.Errorf("success=%v: counters = (%v, %v), want (%d, %d)",
				success, ex.args[3], ex.args[4], wantSuccess, wantFailed)
		}
	}
}
