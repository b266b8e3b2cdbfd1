// Package monitor drives per-chain block ingestion: it walks new blocks,
// pushes candidate transactions through the analyzer and profit
// calculator, persists confirmed arbitrage, and keeps the checkpoint and
// sync status current.
package monitor

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/relab/arbmon/config"
	"github.com/relab/arbmon/detect"
	"github.com/relab/arbmon/logging"
	"github.com/relab/arbmon/metrics"
	"github.com/relab/arbmon/store"
)

const (
	// pollInterval is how often the monitor checks for new blocks. Block
	// times on the supported chains are 1-3s, so 1s keeps lag near zero
	// without hammering the endpoints between blocks.
	pollInterval = time.Second

	// captureWindow bounds how far back a transaction may claim detected
	// opportunities on the pools it touched.
	captureWindow = 10 * time.Minute
)

// ChainClient is the read surface the monitor needs from the connector.
type ChainClient interface {
	LatestHeight(ctx context.Context) (uint64, error)
	Block(ctx context.Context, height uint64) (*types.Block, error)
	Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// TransactionStore is the persistence surface for detected arbitrage.
type TransactionStore interface {
	SaveTransaction(ctx context.Context, tx *store.ArbitrageTransaction) (bool, error)
	UpsertArbitrageur(ctx context.Context, u store.ArbitrageurUpdate) error
	MarkOpportunitiesCaptured(ctx context.Context, chainID int64, pools []string,
		capturedBy, captureTxHash string, window time.Duration) (int64, error)
	UpdateSyncStatus(ctx context.Context, chainID int64, lastSynced uint64, blocksBehind int64) error
}

// Checkpoints records sync progress across restarts.
type Checkpoints interface {
	LastSynced(chainID int64) (uint64, bool, error)
	SetLastSynced(chainID int64, height uint64) error
}

// Publisher receives confirmed arbitrage for live fan-out.
type Publisher interface {
	PublishTransaction(tx *store.ArbitrageTransaction)
}

// Monitor ingests one chain. Run one Monitor per configured chain.
type Monitor struct {
	chain   string
	chainID int64

	client      ChainClient
	analyzer    *detect.Analyzer
	calculator  *detect.Calculator
	db          TransactionStore
	checkpoints Checkpoints
	hub         Publisher
	logger      logging.Logger

	signer types.Signer
	now    func() time.Time
}

// New builds a monitor for the chain. db, checkpoints, and hub may be nil
// for dry runs; the corresponding steps are skipped.
func New(cfg config.ChainConfig, client ChainClient, analyzer *detect.Analyzer,
	calculator *detect.Calculator, db TransactionStore, checkpoints Checkpoints, hub Publisher,
) *Monitor {
	return &Monitor{
		chain:       cfg.Name,
		chainID:     cfg.ChainID,
		client:      client,
		analyzer:    analyzer,
		calculator:  calculator,
		db:          db,
		checkpoints: checkpoints,
		hub:         hub,
		logger:      logging.New("monitor").With("chain", cfg.Name),
		signer:      types.LatestSignerForChainID(big.NewInt(cfg.ChainID)),
		now:         time.Now,
	}
}

// Run polls for new blocks until ctx is cancelled. Failed blocks are
// retried on the next tick; the checkpoint only advances past blocks that
// were fully processed.
func (m *Monitor) Run(ctx context.Context) {
	synced, err := m.startHeight(ctx)
	if err != nil {
		m.logger.Errorw("cannot determine start height", "err", err)
		return
	}
	m.logger.Infow("monitor started", "from_block", synced+1)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.logger.Infof("monitor stopped")
			return
		case <-ticker.C:
		}
		synced = m.syncOnce(ctx, synced)
	}
}

// startHeight resumes from the checkpoint, or from the current tip on a
// fresh deployment so the monitor never backfills history.
func (m *Monitor) startHeight(ctx context.Context) (uint64, error) {
	if m.checkpoints != nil {
		if height, ok, err := m.checkpoints.LastSynced(m.chainID); err != nil {
			return 0, err
		} else if ok {
			return height, nil
		}
	}
	return m.client.LatestHeight(ctx)
}

// syncOnce processes every block in (synced, tip] and returns the new
// synced height. A block that fails mid-processing stops the pass; the
// next tick retries it from the same height.
func (m *Monitor) syncOnce(ctx context.Context, synced uint64) uint64 {
	tip, err := m.client.LatestHeight(ctx)
	if err != nil {
		m.logger.Warnw("cannot read chain tip", "err", err)
		return synced
	}

	for height := synced + 1; height <= tip; height++ {
		if ctx.Err() != nil {
			return synced
		}
		if err := m.processBlock(ctx, height); err != nil {
			m.logger.Errorw("block processing failed, will retry",
				"block", height, "err", err)
			break
		}
		synced = height
		if m.checkpoints != nil {
			if err := m.checkpoints.SetLastSynced(m.chainID, height); err != nil {
				m.logger.Warnw("checkpoint write failed", "block", height, "err", err)
			}
		}
	}

	behind := int64(tip) - int64(synced)
	metrics.BlocksBehind.WithLabelValues(m.chain).Set(float64(behind))
	if m.db != nil {
		if err := m.db.UpdateSyncStatus(ctx, m.chainID, synced, behind); err != nil {
			m.logger.Warnw("sync status update failed", "err", err)
		}
	}
	return synced
}

// processBlock scans one block for arbitrage. Per-transaction failures log
// and continue; only a block fetch failure aborts the block.
func (m *Monitor) processBlock(ctx context.Context, height uint64) error {
	block, err := m.client.Block(ctx, height)
	if err != nil {
		return err
	}
	blockTime := time.Unix(int64(block.Time()), 0).UTC()

	for _, tx := range block.Transactions() {
		if !m.analyzer.IsRouter(tx.To()) {
			continue
		}
		if err := m.processTransaction(ctx, tx, height, blockTime); err != nil {
			m.logger.Errorw("transaction processing failed",
				"tx_hash", tx.Hash().Hex(), "err", err)
		}
	}
	return nil
}

func (m *Monitor) processTransaction(ctx context.Context, tx *types.Transaction, height uint64, blockTime time.Time) error {
	receipt, err := m.client.Receipt(ctx, tx.Hash())
	if err != nil {
		return err
	}
	if !m.analyzer.IsArbitrage(tx, receipt) {
		return nil
	}

	swaps := m.analyzer.ParseSwapEvents(receipt)
	if len(swaps) < 2 {
		// Classification counts Swap-topic logs, but decoding may drop
		// malformed ones; below two decoded swaps there is no arbitrage
		// record to persist.
		m.logger.Warnw("too few decodable swap events, skipping",
			"tx_hash", tx.Hash().Hex(), "decoded", len(swaps))
		return nil
	}
	profit, profitKnown := m.calculator.Profit(swaps, receipt)

	from, err := types.Sender(m.signer, tx)
	if err != nil {
		return err
	}

	record := m.buildRecord(tx, receipt, swaps, profit, profitKnown, from, height, blockTime)

	if m.db == nil {
		return nil
	}
	inserted, err := m.db.SaveTransaction(ctx, record)
	if err != nil {
		return err
	}
	if !inserted {
		// Already seen (restart replay); do not double-count.
		return nil
	}

	if err := m.db.UpsertArbitrageur(ctx, store.ArbitrageurUpdate{
		Address:      record.FromAddress,
		ChainID:      m.chainID,
		Success:      record.Success,
		ProfitNetUSD: record.ProfitNetUSD,
		GasSpentUSD:  record.GasCostUSD,
		GasPriceGwei: record.GasPriceGwei,
		Strategy:     record.Strategy,
		SeenAt:       record.DetectedAt,
	}); err != nil {
		m.logger.Errorw("arbitrageur update failed",
			"address", record.FromAddress, "err", err)
	}

	captured, err := m.db.MarkOpportunitiesCaptured(ctx, m.chainID,
		record.PoolsInvolved, record.FromAddress, record.TxHash, captureWindow)
	if err != nil {
		m.logger.Errorw("capture marking failed", "tx_hash", record.TxHash, "err", err)
	} else if captured > 0 {
		m.logger.Infow("opportunities captured",
			"tx_hash", record.TxHash, "count", captured)
	}

	if m.hub != nil {
		m.hub.PublishTransaction(record)
	}

	metrics.TransactionsDetected.WithLabelValues(m.chain).Inc()
	if record.ProfitNetUSD.Valid {
		net, _ := record.ProfitNetUSD.Decimal.Float64()
		if net > 0 {
			metrics.ProfitDetectedUSD.WithLabelValues(m.chain).Add(net)
		}
	}
	m.logger.Infow("arbitrage detected",
		"tx_hash", record.TxHash,
		"from", record.FromAddress,
		"swaps", record.SwapCount,
		"strategy", record.Strategy,
		"success", record.Success,
		"profit_net_usd", nullDecimalString(record.ProfitNetUSD))
	return nil
}

func (m *Monitor) buildRecord(tx *types.Transaction, receipt *types.Receipt,
	swaps []detect.SwapEvent, profit detect.ProfitData, profitKnown bool,
	from common.Address, height uint64, blockTime time.Time,
) *store.ArbitrageTransaction {
	record := &store.ArbitrageTransaction{
		ChainID:        m.chainID,
		TxHash:         strings.ToLower(tx.Hash().Hex()),
		FromAddress:    strings.ToLower(from.Hex()),
		BlockNumber:    height,
		BlockTimestamp: blockTime,
		GasPriceGwei:   profit.Gas.PriceGwei,
		GasUsed:        receipt.GasUsed,
		GasCostNative:  profit.Gas.CostNative,
		GasCostUSD:     profit.Gas.CostUSD,
		SwapCount:      len(swaps),
		Strategy:       detect.Strategy(len(swaps)),
		PoolsInvolved:  poolAddresses(swaps),
		TokensInvolved: pq.StringArray{},
		Success:        receipt.Status == types.ReceiptStatusSuccessful,
		DetectedAt:     m.now().UTC(),
	}
	if profitKnown {
		record.ProfitGrossUSD = decimal.NewNullDecimal(profit.GrossUSD)
		record.ProfitNetUSD = decimal.NewNullDecimal(profit.NetUSD)
	}
	return record
}

// poolAddresses returns the per-swap pool list in swap order, lowercased.
// Duplicates are preserved so len(pools) always equals the swap count.
func poolAddresses(swaps []detect.SwapEvent) pq.StringArray {
	pools := make(pq.StringArray, 0, len(swaps))
	for _, swap := range swaps {
		pools = append(pools, strings.ToLower(swap.Pool.Hex()))
	}
	return pools
}

func nullDecimalString(d decimal.NullDecimal) string {
	if !d.Valid {
		return "unknown"
	}
	return d.Decimal.String()
}
