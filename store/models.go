package store

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Opportunity is a detected pool imbalance. It is created by the pool
// scanner and may later be marked captured by the chain monitor.
type Opportunity struct {
	ID            int64               `db:"id" json:"id"`
	ChainID       int64               `db:"chain_id" json:"chain_id"`
	PoolName      string              `db:"pool_name" json:"pool_name"`
	PoolAddress   string              `db:"pool_address" json:"pool_address"`
	ImbalancePct  decimal.Decimal     `db:"imbalance_pct" json:"imbalance_pct"`
	ProfitUSD     decimal.Decimal     `db:"profit_usd" json:"profit_usd"`
	ProfitNative  decimal.Decimal     `db:"profit_native" json:"profit_native"`
	Reserve0      decimal.Decimal     `db:"reserve0" json:"reserve0"`
	Reserve1      decimal.Decimal     `db:"reserve1" json:"reserve1"`
	BlockNumber   uint64              `db:"block_number" json:"block_number"`
	DetectedAt    time.Time           `db:"detected_at" json:"detected_at"`
	Captured      bool                `db:"captured" json:"captured"`
	CapturedBy    *string             `db:"captured_by" json:"captured_by,omitempty"`
	CaptureTxHash *string             `db:"capture_tx_hash" json:"capture_tx_hash,omitempty"`
}

// ArbitrageTransaction is a confirmed multi-swap transaction through a known
// router. Rows are immutable after insert; (chain_id, tx_hash) is unique.
type ArbitrageTransaction struct {
	ID             int64               `db:"id" json:"id"`
	ChainID        int64               `db:"chain_id" json:"chain_id"`
	TxHash         string              `db:"tx_hash" json:"tx_hash"`
	FromAddress    string              `db:"from_address" json:"from_address"`
	BlockNumber    uint64              `db:"block_number" json:"block_number"`
	BlockTimestamp time.Time           `db:"block_timestamp" json:"block_timestamp"`
	GasPriceGwei   decimal.Decimal     `db:"gas_price_gwei" json:"gas_price_gwei"`
	GasUsed        uint64              `db:"gas_used" json:"gas_used"`
	GasCostNative  decimal.Decimal     `db:"gas_cost_native" json:"gas_cost_native"`
	GasCostUSD     decimal.Decimal     `db:"gas_cost_usd" json:"gas_cost_usd"`
	SwapCount      int                 `db:"swap_count" json:"swap_count"`
	Strategy       string              `db:"strategy" json:"strategy"`
	ProfitGrossUSD decimal.NullDecimal `db:"profit_gross_usd" json:"profit_gross_usd"`
	ProfitNetUSD   decimal.NullDecimal `db:"profit_net_usd" json:"profit_net_usd"`
	PoolsInvolved  pq.StringArray      `db:"pools_involved" json:"pools_involved"`
	TokensInvolved pq.StringArray      `db:"tokens_involved" json:"tokens_involved"`
	Success        bool                `db:"success" json:"success"`
	DetectedAt     time.Time           `db:"detected_at" json:"detected_at"`
}

// Arbitrageur is the cumulative per-address profile, upserted atomically on
// every detected transaction. total = successful + failed always holds.
type Arbitrageur struct {
	ID                     int64               `db:"id" json:"id"`
	Address                string              `db:"address" json:"address"`
	ChainID                int64               `db:"chain_id" json:"chain_id"`
	FirstSeen              time.Time           `db:"first_seen" json:"first_seen"`
	LastSeen               time.Time           `db:"last_seen" json:"last_seen"`
	TotalTransactions      int64               `db:"total_transactions" json:"total_transactions"`
	SuccessfulTransactions int64               `db:"successful_transactions" json:"successful_transactions"`
	FailedTransactions     int64               `db:"failed_transactions" json:"failed_transactions"`
	TotalProfitUSD         decimal.Decimal     `db:"total_profit_usd" json:"total_profit_usd"`
	TotalGasSpentUSD       decimal.Decimal     `db:"total_gas_spent_usd" json:"total_gas_spent_usd"`
	AvgGasPriceGwei        decimal.NullDecimal `db:"avg_gas_price_gwei" json:"avg_gas_price_gwei"`
	PreferredStrategy      *string             `db:"preferred_strategy" json:"preferred_strategy,omitempty"`
	IsBot                  bool                `db:"is_bot" json:"is_bot"`
	ContractAddress        bool                `db:"contract_address" json:"contract_address"`
}

// ChainStat is one hourly aggregation bucket per chain. The
// (chain_id, hour_timestamp) pair is unique and re-aggregation overwrites.
type ChainStat struct {
	ID                      int64               `db:"id" json:"id"`
	ChainID                 int64               `db:"chain_id" json:"chain_id"`
	HourTimestamp           time.Time           `db:"hour_timestamp" json:"hour_timestamp"`
	OpportunitiesDetected   int64               `db:"opportunities_detected" json:"opportunities_detected"`
	OpportunitiesCaptured   int64               `db:"opportunities_captured" json:"opportunities_captured"`
	SmallOpportunitiesCount int64               `db:"small_opportunities_count" json:"small_opportunities_count"`
	SmallOppsCaptured       int64               `db:"small_opps_captured" json:"small_opps_captured"`
	TransactionsDetected    int64               `db:"transactions_detected" json:"transactions_detected"`
	UniqueArbitrageurs      int64               `db:"unique_arbitrageurs" json:"unique_arbitrageurs"`
	TotalProfitUSD          decimal.Decimal     `db:"total_profit_usd" json:"total_profit_usd"`
	TotalGasSpentUSD        decimal.Decimal     `db:"total_gas_spent_usd" json:"total_gas_spent_usd"`
	AvgProfitUSD            decimal.NullDecimal `db:"avg_profit_usd" json:"avg_profit_usd"`
	MedianProfitUSD         decimal.NullDecimal `db:"median_profit_usd" json:"median_profit_usd"`
	MaxProfitUSD            decimal.NullDecimal `db:"max_profit_usd" json:"max_profit_usd"`
	MinProfitUSD            decimal.NullDecimal `db:"min_profit_usd" json:"min_profit_usd"`
	P95ProfitUSD            decimal.NullDecimal `db:"p95_profit_usd" json:"p95_profit_usd"`
	CaptureRate             decimal.Decimal     `db:"capture_rate" json:"capture_rate"`
	SmallOppCaptureRate     decimal.Decimal     `db:"small_opp_capture_rate" json:"small_opp_capture_rate"`
	AvgCompetitionLevel     decimal.Decimal     `db:"avg_competition_level" json:"avg_competition_level"`
}

// ChainStatus is the sync-health row kept per chain for the health surface.
type ChainStatus struct {
	Name            string          `db:"name" json:"name"`
	ChainID         int64           `db:"chain_id" json:"chain_id"`
	LastSyncedBlock uint64          `db:"last_synced_block" json:"last_synced_block"`
	BlocksBehind    int64           `db:"blocks_behind" json:"blocks_behind"`
	Status          string          `db:"status" json:"status"`
	BlockTime       decimal.Decimal `db:"block_time_seconds" json:"block_time_seconds"`
	NativeToken     string          `db:"native_token" json:"native_token"`
	NativeTokenUSD  decimal.Decimal `db:"native_token_usd" json:"native_token_usd"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// OpportunityFilters selects opportunities on the query surface.
// Zero limit means the default page size; limits are capped at MaxPageSize.
type OpportunityFilters struct {
	ChainID   *int64
	MinProfit *decimal.Decimal
	MaxProfit *decimal.Decimal
	Captured  *bool
	Limit     int
	Offset    int
}

// TransactionFilters selects arbitrage transactions on the query surface.
type TransactionFilters struct {
	ChainID     *int64
	FromAddress *string
	MinProfit   *decimal.Decimal
	MaxProfit   *decimal.Decimal
	MinSwaps    *int
	Strategy    *string
	Limit       int
	Offset      int
}

// ArbitrageurFilters selects arbitrageur profiles, ordered by cumulative
// profit.
type ArbitrageurFilters struct {
	ChainID         *int64
	MinTransactions *int64
	Limit           int
	Offset          int
}
