// Package detect classifies confirmed transactions as arbitrage and
// reconstructs their economics: swap-log decoding, token flow extraction,
// and profit math.
package detect

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/relab/arbmon/logging"
)

// SwapTopic is the topic-0 of the canonical Uniswap-V2-style Swap event:
//
//	Swap(address indexed sender, uint256 amount0In, uint256 amount1In,
//	     uint256 amount0Out, uint256 amount1Out, address indexed to)
//
// A log entry counts as a swap iff its first topic equals this hash; Transfer,
// Sync, Approval, Mint and Burn events in the same receipt are ignored.
var SwapTopic = crypto.Keccak256Hash([]byte("Swap(address,uint256,uint256,uint256,uint256,address)"))

// DefaultSwapSelectors is the allow-list of recognized swap-function
// selectors (first 4 bytes of the call data). It covers the Uniswap V2
// router family including fee-on-transfer variants, the Uniswap V3 exact
// input/output calls, and Balancer batch swaps.
var DefaultSwapSelectors = []string{
	"38ed1739", // swapExactTokensForTokens
	"8803dbee", // swapTokensForExactTokens
	"7ff36ab5", // swapExactETHForTokens
	"18cbafe5", // swapExactTokensForETH
	"fb3bdb41", // swapETHForExactTokens
	"4a25d94a", // swapTokensForExactETH
	"5c11d795", // swapExactTokensForTokensSupportingFeeOnTransferTokens
	"b6f9de95", // swapExactETHForTokensSupportingFeeOnTransferTokens
	"791ac947", // swapExactTokensForETHSupportingFeeOnTransferTokens
	"472b43f3", // swapExactAmountIn (Balancer)
	"128acb08", // swapExactAmountOut (Balancer)
	"c04b8d59", // exactInput (Uniswap V3)
	"09b81346", // exactInputSingle (Uniswap V3)
	"f28c0498", // exactOutput (Uniswap V3)
	"db3e2198", // exactOutputSingle (Uniswap V3)
}

// SwapEvent is one decoded Swap log entry. Amounts are uint256 base units.
type SwapEvent struct {
	Pool       common.Address
	Sender     common.Address
	Recipient  common.Address
	Amount0In  *big.Int
	Amount1In  *big.Int
	Amount0Out *big.Int
	Amount1Out *big.Int
	LogIndex   uint
}

// Analyzer decides whether a transaction is arbitrage and decodes its swaps.
// It is stateless after construction and safe for concurrent use.
type Analyzer struct {
	chain     string
	routers   map[common.Address]bool
	selectors map[[4]byte]bool
	logger    logging.Logger
}

// NewAnalyzer builds an analyzer for one chain. routers maps DEX labels to
// addresses; selectors is the hex selector allow-list (DefaultSwapSelectors
// when nil).
func NewAnalyzer(chainName string, routers map[string]string, selectors []string) *Analyzer {
	a := &Analyzer{
		chain:     chainName,
		routers:   make(map[common.Address]bool, len(routers)),
		selectors: make(map[[4]byte]bool),
		logger:    logging.New("analyzer").With("chain", chainName),
	}
	for _, addr := range routers {
		a.routers[common.HexToAddress(addr)] = true
	}
	if selectors == nil {
		selectors = DefaultSwapSelectors
	}
	for _, s := range selectors {
		b := common.FromHex(s)
		if len(b) != 4 {
			continue
		}
		a.selectors[[4]byte(b)] = true
	}
	return a
}

// IsRouter reports whether to is a known DEX router on this chain.
// common.Address comparison makes the check case-insensitive by construction.
func (a *Analyzer) IsRouter(to *common.Address) bool {
	return to != nil && a.routers[*to]
}

// CountSwapEvents counts the receipt's logs whose topic-0 is SwapTopic.
func (a *Analyzer) CountSwapEvents(receipt *types.Receipt) int {
	count := 0
	for _, log := range receipt.Logs {
		if len(log.Topics) > 0 && log.Topics[0] == SwapTopic {
			count++
		}
	}
	return count
}

// IsArbitrage reports whether the transaction is an arbitrage: addressed to a
// known router, entered through a recognized swap selector, and emitting at
// least two Swap events. Anything failing a condition is not-arbitrage, not
// unknown.
func (a *Analyzer) IsArbitrage(tx *types.Transaction, receipt *types.Receipt) bool {
	if !a.IsRouter(tx.To()) {
		return false
	}
	data := tx.Data()
	if len(data) < 4 || !a.selectors[[4]byte(data[:4])] {
		return false
	}
	count := a.CountSwapEvents(receipt)
	if count < 2 {
		return false
	}
	a.logger.Debugw("arbitrage detected",
		"tx_hash", tx.Hash().Hex(), "router", tx.To().Hex(), "swap_count", count)
	return true
}

// ParseSwapEvents decodes every Swap log in the receipt, in ascending
// log-index order. Malformed entries (missing indexed topics, short data)
// are skipped with a log line; they never abort the transaction.
func (a *Analyzer) ParseSwapEvents(receipt *types.Receipt) []SwapEvent {
	var swaps []SwapEvent
	for _, log := range receipt.Logs {
		if len(log.Topics) == 0 || log.Topics[0] != SwapTopic {
			continue
		}
		if len(log.Topics) < 3 {
			a.logger.Warnw("swap log missing indexed topics",
				"tx_hash", receipt.TxHash.Hex(), "log_index", log.Index)
			continue
		}
		// Data carries amount0In, amount1In, amount0Out, amount1Out,
		// one 32-byte word each.
		if len(log.Data) < 128 {
			a.logger.Warnw("swap log data too short",
				"tx_hash", receipt.TxHash.Hex(), "log_index", log.Index, "len", len(log.Data))
			continue
		}
		swaps = append(swaps, SwapEvent{
			Pool:       log.Address,
			Sender:     common.BytesToAddress(log.Topics[1].Bytes()),
			Recipient:  common.BytesToAddress(log.Topics[2].Bytes()),
			Amount0In:  new(big.Int).SetBytes(log.Data[0:32]),
			Amount1In:  new(big.Int).SetBytes(log.Data[32:64]),
			Amount0Out: new(big.Int).SetBytes(log.Data[64:96]),
			Amount1Out: new(big.Int).SetBytes(log.Data[96:128]),
			LogIndex:   log.Index,
		})
	}
	sort.Slice(swaps, func(i, j int) bool { return swaps[i].LogIndex < swaps[j].LogIndex })
	return swaps
}

// Strategy returns the hop-count label for a swap count: 2-hop, 3-hop,
// 4-hop, or N-hop for anything longer.
func Strategy(swapCount int) string {
	switch swapCount {
	case 2:
		return "2-hop"
	case 3:
		return "3-hop"
	case 4:
		return "4-hop"
	default:
		return "N-hop"
	}
}
