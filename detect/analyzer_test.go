package detect

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	poolA  = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	poolB  = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	poolC  = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	router = common.HexToAddress("0x10ed43c718714eb63d5aa57b78b54704e256024e")
	trader = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

var (
	transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	syncTopic     = crypto.Keccak256Hash([]byte("Sync(uint112,uint112)"))
)

func testAnalyzer() *Analyzer {
	return NewAnalyzer("BSC", map[string]string{"pancakeswap_v2": router.Hex()}, nil)
}

func swapLog(pool common.Address, index uint, a0in, a1in, a0out, a1out int64) *types.Log {
	data := make([]byte, 0, 128)
	for _, v := range []int64{a0in, a1in, a0out, a1out} {
		data = append(data, common.LeftPadBytes(big.NewInt(v).Bytes(), 32)...)
	}
	return &types.Log{
		Address: pool,
		Topics:  []common.Hash{SwapTopic, common.BytesToHash(trader.Bytes()), common.BytesToHash(trader.Bytes())},
		Data:    data,
		Index:   index,
	}
}

func otherLog(topic common.Hash, index uint) *types.Log {
	return &types.Log{
		Address: poolA,
		Topics:  []common.Hash{topic},
		Data:    make([]byte, 64),
		Index:   index,
	}
}

func receiptWith(logs ...*types.Log) *types.Receipt {
	return &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		Logs:              logs,
		TxHash:            common.HexToHash("0xfeed"),
		GasUsed:           150_000,
		EffectiveGasPrice: big.NewInt(5_000_000_000),
	}
}

func routerTx(to *common.Address, selector string) *types.Transaction {
	data := common.FromHex(selector)
	data = append(data, make([]byte, 128)...)
	return types.NewTx(&types.LegacyTx{
		Nonce: 1, To: to, Gas: 500_000,
		GasPrice: big.NewInt(5_000_000_000),
		Value:    new(big.Int), Data: data,
	})
}

func TestCountSwapEventsIgnoresOtherTopics(t *testing.T) {
	a := testAnalyzer()
	tests := []struct {
		name string
		logs []*types.Log
		want int
	}{
		{"empty receipt", nil, 0},
		{"single swap", []*types.Log{swapLog(poolA, 0, 0, 1000, 1100, 0)}, 1},
		{
			"swap among transfer and sync",
			[]*types.Log{
				swapLog(poolA, 0, 0, 1000, 1100, 0),
				otherLog(transferTopic, 1),
				otherLog(syncTopic, 2),
			},
			1,
		},
		{
			"three swaps two transfers one sync",
			[]*types.Log{
				swapLog(poolA, 0, 0, 1000, 1100, 0),
				otherLog(transferTopic, 1),
				swapLog(poolB, 2, 1100, 0, 0, 1200),
				otherLog(transferTopic, 3),
				otherLog(syncTopic, 4),
				swapLog(poolC, 5, 1200, 0, 0, 1050),
			},
			3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.CountSwapEvents(receiptWith(tt.logs...)); got != tt.want {
				t.Errorf("CountSwapEvents() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIsArbitrage(t *testing.T) {
	a := testAnalyzer()
	other := common.HexToAddress("0x2222222222222222222222222222222222222222")
	twoSwaps := receiptWith(
		swapLog(poolA, 0, 0, 1000, 1100, 0),
		swapLog(poolB, 1, 1100, 0, 0, 1050),
	)
	oneSwap := receiptWith(
		swapLog(poolA, 0, 0, 1000, 1100, 0),
		otherLog(transferTopic, 1),
		otherLog(syncTopic, 2),
	)

	tests := []struct {
		name    string
		tx      *types.Transaction
		receipt *types.Receipt
		want    bool
	}{
		{"two swaps via router", routerTx(&router, "38ed1739"), twoSwaps, true},
		{"single swap rejected", routerTx(&router, "38ed1739"), oneSwap, false},
		{"non-router target", routerTx(&other, "38ed1739"), twoSwaps, false},
		{"unknown selector", routerTx(&router, "deadbeef"), twoSwaps, false},
		{"contract creation", routerTx(nil, "38ed1739"), twoSwaps, false},
		{"fee-on-transfer selector", routerTx(&router, "5c11d795"), twoSwaps, true},
		{"uniswap v3 exactInput", routerTx(&router, "c04b8d59"), twoSwaps, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.IsArbitrage(tt.tx, tt.receipt); got != tt.want {
				t.Errorf("IsArbitrage() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsArbitrageEmptyInput(t *testing.T) {
	a := testAnalyzer()
	tx := types.NewTx(&types.LegacyTx{Nonce: 1, To: &router, Gas: 21_000,
		GasPrice: big.NewInt(1), Value: big.NewInt(1)})
	receipt := receiptWith(
		swapLog(poolA, 0, 0, 1000, 1100, 0),
		swapLog(poolB, 1, 1100, 0, 0, 1050),
	)
	if a.IsArbitrage(tx, receipt) {
		t.Error("transaction without call data classified as arbitrage")
	}
}

func TestParseSwapEvents(t *testing.T) {
	a := testAnalyzer()
	receipt := receiptWith(
		swapLog(poolA, 0, 0, 1000, 1100, 0),
		otherLog(transferTopic, 1),
		swapLog(poolB, 2, 1100, 0, 0, 1050),
	)

	swaps := a.ParseSwapEvents(receipt)
	if len(swaps) != 2 {
		t.Fatalf("len(swaps) = %d, want 2", len(swaps))
	}
	first, second := swaps[0], swaps[1]
	if first.Pool != poolA || second.Pool != poolB {
		t.Errorf("pools = %s, %s, want %s, %s", first.Pool, second.Pool, poolA, poolB)
	}
	if first.LogIndex != 0 || second.LogIndex != 2 {
		t.Errorf("log indexes = %d, %d, want 0, 2", first.LogIndex, second.LogIndex)
	}
	if first.Amount1In.Int64() != 1000 || first.Amount0Out.Int64() != 1100 {
		t.Errorf("first swap amounts = in1 %v out0 %v, want 1000, 1100",
			first.Amount1In, first.Amount0Out)
	}
	if first.Sender != trader || first.Recipient != trader {
		t.Errorf("indexed addresses = %s, %s, want %s", first.Sender, first.Recipient, trader)
	}
}

func TestParseSwapEventsOrdersByLogIndex(t *testing.T) {
	a := testAnalyzer()
	receipt := receiptWith(
		swapLog(poolB, 5, 1100, 0, 0, 1050),
		swapLog(poolA, 1, 0, 1000, 1100, 0),
	)
	swaps := a.ParseSwapEvents(receipt)
	if len(swaps) != 2 {
		t.Fatalf("len(swaps) = %d, want 2", len(swaps))
	}
	if swaps[0].LogIndex != 1 || swaps[1].LogIndex != 5 {
		t.Errorf("order = %d, %d, want ascending 1, 5", swaps[0].LogIndex, swaps[1].LogIndex)
	}
}

func TestParseSwapEventsSkipsMalformed(t *testing.T) {
	a := testAnalyzer()
	short := &types.Log{
		Address: poolA,
		Topics:  []common.Hash{SwapTopic, common.BytesToHash(trader.Bytes()), common.BytesToHash(trader.Bytes())},
		Data:    make([]byte, 64), // needs 128
		Index:   0,
	}
	missingTopics := &types.Log{
		Address: poolA,
		Topics:  []common.Hash{SwapTopic},
		Data:    make([]byte, 128),
		Index:   1,
	}
	receipt := receiptWith(short, missingTopics, swapLog(poolB, 2, 1100, 0, 0, 1050))
	swaps := a.ParseSwapEvents(receipt)
	if len(swaps) != 1 {
		t.Fatalf("len(swaps) = %d, want 1 (malformed entries skipped)", len(swaps))
	}
	if swaps[0].Pool != poolB {
		t.Errorf("pool = %s, want %s", swaps[0].Pool, poolB)
	}
}

func TestStrategy(t *testing.T) {
	tests := []struct {
		count int
		want  string
	}{
		{2, "2-hop"}, {3, "3-hop"}, {4, "4-hop"}, {5, "N-hop"}, {17, "N-hop"},
	}
	for _, tt := range tests {
		if got := Strategy(tt.count); got != tt.want {
			t.Errorf("Strategy(%d) = %q, want %q", tt.count, got, tt.want)
		}
	}
}
