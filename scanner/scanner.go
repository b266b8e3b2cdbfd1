// Package scanner samples liquidity-pool reserves and emits pool-imbalance
// opportunities using the constant-product invariant.
package scanner

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/relab/arbmon/config"
	"github.com/relab/arbmon/logging"
	"github.com/relab/arbmon/metrics"
	"github.com/relab/arbmon/store"
)

// Uniswap V2-style pair ABI, getReserves only.
const pairABIJSON = `[{
	"constant": true,
	"inputs": [],
	"name": "getReserves",
	"outputs": [
		{"internalType": "uint112", "name": "_reserve0", "type": "uint112"},
		{"internalType": "uint112", "name": "_reserve1", "type": "uint112"},
		{"internalType": "uint32", "name": "_blockTimestampLast", "type": "uint32"}
	],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}]`

var (
	pairABI         abi.ABI
	getReservesData []byte
)

func init() {
	var err error
	pairABI, err = abi.JSON(strings.NewReader(pairABIJSON))
	if err != nil {
		panic(err)
	}
	getReservesData, err = pairABI.Pack("getReserves")
	if err != nil {
		panic(err)
	}
}

// Caller is the chain-connector subset the scanner needs.
type Caller interface {
	LatestHeight(ctx context.Context) (uint64, error)
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// OpportunityStore persists detected opportunities.
type OpportunityStore interface {
	SaveOpportunity(ctx context.Context, opp *store.Opportunity) error
}

// Publisher fans an opportunity out to live subscribers.
type Publisher interface {
	PublishOpportunity(opp *store.Opportunity)
}

// Reserves is one getReserves() snapshot.
type Reserves struct {
	Pool               common.Address
	Label              string
	Reserve0           *big.Int
	Reserve1           *big.Int
	BlockTimestampLast uint32
}

// Imbalance is the CPMM deviation of a reserve snapshot.
type Imbalance struct {
	Pct            decimal.Decimal
	ProfitNative   decimal.Decimal
	ProfitUSD      decimal.Decimal
	OptimalReserve decimal.Decimal
}

// Scanner runs the periodic reserve scan for one chain.
type Scanner struct {
	chain  config.ChainConfig
	caller Caller
	db     OpportunityStore
	hub    Publisher
	logger logging.Logger

	interval     time.Duration
	thresholdPct decimal.Decimal
	feePct       decimal.Decimal
	smallMinUSD  decimal.Decimal
	smallMaxUSD  decimal.Decimal

	smallCount int64
}

// New builds a scanner from the chain config and the global thresholds.
// db and hub may be nil; detection then still runs (and logs) without
// persistence or fan-out, which the verification tools rely on.
func New(cfg config.ChainConfig, caller Caller, db OpportunityStore, hub Publisher, global config.Config) *Scanner {
	return &Scanner{
		chain:        cfg,
		caller:       caller,
		db:           db,
		hub:          hub,
		logger:       logging.New("scanner").With("chain", cfg.Name),
		interval:     cfg.ScanInterval,
		thresholdPct: global.ImbalanceThresholdPct,
		feePct:       global.SwapFeePct,
		smallMinUSD:  global.SmallOppMinUSD,
		smallMaxUSD:  global.SmallOppMaxUSD,
	}
}

// PoolReserves calls getReserves() on the pool via eth_call.
func (s *Scanner) PoolReserves(ctx context.Context, label string, pool common.Address) (*Reserves, error) {
	out, err := s.caller.Call(ctx, pool, getReservesData)
	if err != nil {
		return nil, fmt.Errorf("getReserves %s: %w", label, err)
	}
	vals, err := pairABI.Unpack("getReserves", out)
	if err != nil {
		return nil, fmt.Errorf("decode getReserves %s: %w", label, err)
	}
	return &Reserves{
		Pool:               pool,
		Label:              label,
		Reserve0:           vals[0].(*big.Int),
		Reserve1:           vals[1].(*big.Int),
		BlockTimestampLast: vals[2].(uint32),
	}, nil
}

// ComputeImbalance applies the CPMM formula: with k = r0*r1 the balanced
// point is (sqrt k, sqrt k), and the imbalance is the larger relative
// deviation of the two reserves, as a percentage. Profit potential is the
// imbalance in excess of the swap fee applied to the smaller reserve,
// with token1 assumed to be an 18-decimal stablecoin for the USD figure.
// Returns ok=false when either reserve is zero.
func (s *Scanner) ComputeImbalance(reserve0, reserve1 *big.Int) (Imbalance, bool) {
	if reserve0.Sign() == 0 || reserve1.Sign() == 0 {
		return Imbalance{}, false
	}

	k := new(big.Int).Mul(reserve0, reserve1)
	sqrt := new(big.Float).SetPrec(256).Sqrt(new(big.Float).SetPrec(256).SetInt(k))
	optimal, err := decimal.NewFromString(sqrt.Text('f', 18))
	if err != nil || optimal.IsZero() {
		return Imbalance{}, false
	}

	r0 := decimal.NewFromBigInt(reserve0, 0)
	r1 := decimal.NewFromBigInt(reserve1, 0)
	hundred := decimal.NewFromInt(100)

	dev0 := r0.Sub(optimal).Abs().Div(optimal).Mul(hundred)
	dev1 := r1.Sub(optimal).Abs().Div(optimal).Mul(hundred)
	pct := decimal.Max(dev0, dev1)

	imb := Imbalance{Pct: pct, OptimalReserve: optimal}
	if pct.GreaterThan(s.feePct) {
		profitPct := pct.Sub(s.feePct)
		imb.ProfitNative = profitPct.Div(hundred).Mul(decimal.Min(r0, r1))
		// Token base units to stablecoin units.
		imb.ProfitUSD = imb.ProfitNative.Shift(-18)
	} else {
		imb.ProfitNative = decimal.Zero
		imb.ProfitUSD = decimal.Zero
	}
	return imb, true
}

// IsSmallOpportunity reports whether the profit falls in the configured
// small-trader band.
func (s *Scanner) IsSmallOpportunity(profitUSD decimal.Decimal) bool {
	return profitUSD.GreaterThanOrEqual(s.smallMinUSD) && profitUSD.LessThanOrEqual(s.smallMaxUSD)
}

// SmallOpportunityCount returns the small opportunities seen since Run
// started.
func (s *Scanner) SmallOpportunityCount() int64 { return s.smallCount }

// ScanPools performs one full pass over the chain's pools and returns the
// opportunities emitted. A failed pool read logs and continues; it never
// aborts the tick.
func (s *Scanner) ScanPools(ctx context.Context) []*store.Opportunity {
	height, err := s.caller.LatestHeight(ctx)
	if err != nil {
		s.logger.Warnw("cannot read chain tip, skipping scan", "err", err)
		return nil
	}

	var opportunities []*store.Opportunity
	for label, addr := range s.chain.Pools {
		if ctx.Err() != nil {
			return opportunities
		}
		reserves, err := s.PoolReserves(ctx, label, common.HexToAddress(addr))
		if err != nil {
			s.logger.Warnw("pool read failed", "pool", label, "err", err)
			continue
		}
		imb, ok := s.ComputeImbalance(reserves.Reserve0, reserves.Reserve1)
		if !ok {
			s.logger.Debugw("zero reserve, skipping pool", "pool", label)
			continue
		}
		if imb.Pct.LessThan(s.thresholdPct) {
			continue
		}

		opp := &store.Opportunity{
			ChainID:      s.chain.ChainID,
			PoolName:     label,
			PoolAddress:  addr,
			ImbalancePct: imb.Pct,
			ProfitUSD:    imb.ProfitUSD,
			ProfitNative: imb.ProfitNative,
			Reserve0:     decimal.NewFromBigInt(reserves.Reserve0, 0),
			Reserve1:     decimal.NewFromBigInt(reserves.Reserve1, 0),
			BlockNumber:  height,
			DetectedAt:   time.Now().UTC(),
		}
		opportunities = append(opportunities, opp)

		small := s.IsSmallOpportunity(imb.ProfitUSD)
		if small {
			s.smallCount++
		}
		metrics.OpportunitiesDetected.WithLabelValues(s.chain.Name).Inc()
		s.logger.Infow("opportunity detected",
			"pool", label,
			"imbalance_pct", imb.Pct.StringFixed(4),
			"profit_usd", imb.ProfitUSD.StringFixed(2),
			"small", small,
			"block", height)

		if s.db != nil {
			if err := s.db.SaveOpportunity(ctx, opp); err != nil {
				s.logger.Errorw("failed to save opportunity", "pool", label, "err", err)
			}
		}
		if s.hub != nil {
			s.hub.PublishOpportunity(opp)
		}
	}
	return opportunities
}

// Run scans on the chain's configured interval until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) {
	s.smallCount = 0
	s.logger.Infow("pool scanner started",
		"interval", s.interval,
		"threshold_pct", s.thresholdPct.String(),
		"pools", len(s.chain.Pools))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.ScanPools(ctx)
		select {
		case <-ctx.Done():
			s.logger.Infof("pool scanner stopped")
			return
		case <-ticker.C:
		}
	}
}
