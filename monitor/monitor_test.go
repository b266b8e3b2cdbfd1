package monitor

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/relab/arbmon/chain"
	"github.com/relab/arbmon/config"
	"github.com/relab/arbmon/detect"
	"github.com/relab/arbmon/store"
)

var (
	routerAddr = common.HexToAddress("0x10ED43C718714eb63d5aA57B78B54704E256024E")
	poolA      = common.HexToAddress("0xaaaa000000000000000000000000000000000001")
	poolB      = common.HexToAddress("0xaaaa000000000000000000000000000000000002")
)

type fakeClient struct {
	tip          uint64
	tipErr       error
	blocks       map[uint64]*types.Block
	blockErrs    map[uint64]error
	receipts     map[common.Hash]*types.Receipt
	receiptCalls int
}

func (c *fakeClient) LatestHeight(context.Context) (uint64, error) {
	return c.tip, c.tipErr
}

func (c *fakeClient) Block(_ context.Context, height uint64) (*types.Block, error) {
	if err := c.blockErrs[height]; err != nil {
		return nil, err
	}
	b, ok := c.blocks[height]
	if !ok {
		return nil, errors.New("block not found")
	}
	return b, nil
}

func (c *fakeClient) Receipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	c.receiptCalls++
	r, ok := c.receipts[txHash]
	if !ok {
		return nil, errors.New("receipt not found")
	}
	return r, nil
}

type fakeStore struct {
	saved       []*store.ArbitrageTransaction
	duplicate   bool
	upserts     []store.ArbitrageurUpdate
	captures    [][]string
	syncUpdates []int64
}

func (s *fakeStore) SaveTransaction(_ context.Context, tx *store.ArbitrageTransaction) (bool, error) {
	if s.duplicate {
		return false, nil
	}
	s.saved = append(s.saved, tx)
	return true, nil
}

func (s *fakeStore) UpsertArbitrageur(_ context.Context, u store.ArbitrageurUpdate) error {
	s.upserts = append(s.upserts, u)
	return nil
}

func (s *fakeStore) MarkOpportunitiesCaptured(_ context.Context, _ int64, pools []string,
	_, _ string, _ time.Duration,
) (int64, error) {
	s.captures = append(s.captures, pools)
	return int64(len(pools)), nil
}

func (s *fakeStore) UpdateSyncStatus(_ context.Context, _ int64, _ uint64, behind int64) error {
	s.syncUpdates = append(s.syncUpdates, behind)
	return nil
}

type fakeCheckpoints struct {
	heights map[int64]uint64
}

func (c *fakeCheckpoints) LastSynced(chainID int64) (uint64, bool, error) {
	h, ok := c.heights[chainID]
	return h, ok, nil
}

func (c *fakeCheckpoints) SetLastSynced(chainID int64, height uint64) error {
	if height > c.heights[chainID] {
		c.heights[chainID] = height
	}
	return nil
}

type fakePublisher struct {
	published []*store.ArbitrageTransaction
}

func (p *fakePublisher) PublishTransaction(tx *store.ArbitrageTransaction) {
	p.published = append(p.published, tx)
}

func testConfig() config.ChainConfig {
	return config.ChainConfig{
		Name:    "bsc",
		ChainID: 56,
		DexRouters: map[string]string{
			"pancakeswap_v2": routerAddr.Hex(),
		},
	}
}

func testMonitor(client *fakeClient, db *fakeStore, cp *fakeCheckpoints, pub *fakePublisher) *Monitor {
	cfg := testConfig()
	analyzer := detect.NewAnalyzer(cfg.Name, cfg.DexRouters, nil)
	calc := detect.NewCalculator(cfg.Name, chain.NewPriceFeed(decimal.NewFromInt(300)))
	var dbIface TransactionStore
	if db != nil {
		dbIface = db
	}
	var cpIface Checkpoints
	if cp != nil {
		cpIface = cp
	}
	var pubIface Publisher
	if pub != nil {
		pubIface = pub
	}
	return New(cfg, client, analyzer, calc, dbIface, cpIface, pubIface)
}

func swapLog(pool common.Address, index uint, a0in, a1in, a0out, a1out int64) *types.Log {
	data := make([]byte, 0, 128)
	for _, v := range []int64{a0in, a1in, a0out, a1out} {
		data = append(data, common.LeftPadBytes(big.NewInt(v).Bytes(), 32)...)
	}
	return &types.Log{
		Address: pool,
		Topics: []common.Hash{
			detect.SwapTopic,
			common.BytesToHash(routerAddr.Bytes()),
			common.BytesToHash(routerAddr.Bytes()),
		},
		Data:  data,
		Index: index,
	}
}

// truncatedSwapLog carries the Swap topic but only two data words, so it
// counts for classification yet fails decoding.
func truncatedSwapLog(pool common.Address, index uint) *types.Log {
	return &types.Log{
		Address: pool,
		Topics: []common.Hash{
			detect.SwapTopic,
			common.BytesToHash(routerAddr.Bytes()),
			common.BytesToHash(routerAddr.Bytes()),
		},
		Data:  make([]byte, 64),
		Index: index,
	}
}

// signedRouterTx returns a signed swap call to the router and its sender.
func signedRouterTx(t *testing.T, nonce uint64) (*types.Transaction, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	signer := types.LatestSignerForChainID(big.NewInt(56))
	tx, err := types.SignNewTx(key, signer, &types.LegacyTx{
		Nonce:    nonce,
		To:       &routerAddr,
		Gas:      300_000,
		GasPrice: big.NewInt(5_000_000_000),
		Data:     common.FromHex("0x38ed1739"),
	})
	if err != nil {
		t.Fatal(err)
	}
	return tx, crypto.PubkeyToAddress(key.PublicKey)
}

func blockAt(height uint64, txs ...*types.Transaction) *types.Block {
	header := &types.Header{
		Number: big.NewInt(int64(height)),
		Time:   1_700_000_000 + height,
	}
	return types.NewBlockWithHeader(header).WithBody(txs, nil)
}

func arbReceipt(logs ...*types.Log) *types.Receipt {
	return &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		GasUsed:           150_000,
		EffectiveGasPrice: big.NewInt(5_000_000_000),
		Logs:              logs,
	}
}

func TestSyncOnceAdvancesThroughEmptyBlocks(t *testing.T) {
	client := &fakeClient{
		tip: 102,
		blocks: map[uint64]*types.Block{
			101: blockAt(101),
			102: blockAt(102),
		},
	}
	db := &fakeStore{}
	cp := &fakeCheckpoints{heights: map[int64]uint64{56: 100}}
	m := testMonitor(client, db, cp, nil)

	synced := m.syncOnce(context.Background(), 100)
	if synced != 102 {
		t.Fatalf("synced = %d, want 102", synced)
	}
	if cp.heights[56] != 102 {
		t.Errorf("checkpoint = %d, want 102", cp.heights[56])
	}
	if len(db.syncUpdates) != 1 || db.syncUpdates[0] != 0 {
		t.Errorf("sync updates = %v, want [0]", db.syncUpdates)
	}
}

func TestSyncOnceRetriesFailedBlock(t *testing.T) {
	client := &fakeClient{
		tip: 102,
		blocks: map[uint64]*types.Block{
			101: blockAt(101),
			102: blockAt(102),
		},
		blockErrs: map[uint64]error{101: errors.New("rpc down")},
	}
	cp := &fakeCheckpoints{heights: map[int64]uint64{}}
	m := testMonitor(client, &fakeStore{}, cp, nil)

	synced := m.syncOnce(context.Background(), 100)
	if synced != 100 {
		t.Fatalf("synced = %d, want 100 after block error", synced)
	}

	// Next tick succeeds from the same height.
	delete(client.blockErrs, 101)
	synced = m.syncOnce(context.Background(), synced)
	if synced != 102 {
		t.Fatalf("synced = %d after retry, want 102", synced)
	}
}

func TestStartHeightFreshDeploymentUsesTip(t *testing.T) {
	client := &fakeClient{tip: 5000}
	m := testMonitor(client, nil, &fakeCheckpoints{heights: map[int64]uint64{}}, nil)

	height, err := m.startHeight(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if height != 5000 {
		t.Errorf("start height = %d, want tip 5000", height)
	}
}

func TestStartHeightResumesFromCheckpoint(t *testing.T) {
	client := &fakeClient{tip: 5000}
	cp := &fakeCheckpoints{heights: map[int64]uint64{56: 4200}}
	m := testMonitor(client, nil, cp, nil)

	height, err := m.startHeight(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if height != 4200 {
		t.Errorf("start height = %d, want checkpoint 4200", height)
	}
}

func TestDetectsAndPersistsArbitrage(t *testing.T) {
	tx, from := signedRouterTx(t, 0)
	client := &fakeClient{
		tip:    101,
		blocks: map[uint64]*types.Block{101: blockAt(101, tx)},
		receipts: map[common.Hash]*types.Receipt{
			tx.Hash(): arbReceipt(
				swapLog(poolA, 0, 1000, 0, 0, 900),
				swapLog(poolB, 1, 0, 900, 1050, 0),
			),
		},
	}
	db := &fakeStore{}
	pub := &fakePublisher{}
	m := testMonitor(client, db, &fakeCheckpoints{heights: map[int64]uint64{}}, pub)

	if synced := m.syncOnce(context.Background(), 100); synced != 101 {
		t.Fatalf("synced = %d, want 101", synced)
	}
	if len(db.saved) != 1 {
		t.Fatalf("saved %d transactions, want 1", len(db.saved))
	}

	got := db.saved[0]
	if got.ChainID != 56 {
		t.Errorf("chain_id = %d, want 56", got.ChainID)
	}
	if got.TxHash != strings.ToLower(tx.Hash().Hex()) {
		t.Errorf("tx_hash = %s, want lowercased hash", got.TxHash)
	}
	if got.FromAddress != strings.ToLower(from.Hex()) {
		t.Errorf("from_address = %s, want %s", got.FromAddress, strings.ToLower(from.Hex()))
	}
	if got.BlockNumber != 101 {
		t.Errorf("block_number = %d, want 101", got.BlockNumber)
	}
	if got.SwapCount != 2 || got.Strategy != "2-hop" {
		t.Errorf("swaps = %d strategy = %s, want 2 and 2-hop", got.SwapCount, got.Strategy)
	}
	if !got.Success {
		t.Error("success = false, want true for status 1 receipt")
	}
	wantPools := []string{strings.ToLower(poolA.Hex()), strings.ToLower(poolB.Hex())}
	if len(got.PoolsInvolved) != 2 || got.PoolsInvolved[0] != wantPools[0] || got.PoolsInvolved[1] != wantPools[1] {
		t.Errorf("pools = %v, want %v", got.PoolsInvolved, wantPools)
	}
	if !got.ProfitNetUSD.Valid {
		t.Error("profit_net_usd should be set for a complete token flow")
	}

	if len(db.upserts) != 1 {
		t.Fatalf("arbitrageur upserts = %d, want 1", len(db.upserts))
	}
	if db.upserts[0].Address != got.FromAddress || !db.upserts[0].Success {
		t.Errorf("upsert = %+v, want from address with success", db.upserts[0])
	}
	if len(db.captures) != 1 || len(db.captures[0]) != 2 {
		t.Errorf("captures = %v, want one call with both pools", db.captures)
	}
	if len(pub.published) != 1 {
		t.Errorf("published %d transactions, want 1", len(pub.published))
	}
}

func TestSkipsNonRouterTransactions(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	other := common.HexToAddress("0xbbbb000000000000000000000000000000000001")
	signer := types.LatestSignerForChainID(big.NewInt(56))
	tx, err := types.SignNewTx(key, signer, &types.LegacyTx{
		To:       &other,
		Gas:      21_000,
		GasPrice: big.NewInt(5_000_000_000),
	})
	if err != nil {
		t.Fatal(err)
	}

	client := &fakeClient{
		tip:    101,
		blocks: map[uint64]*types.Block{101: blockAt(101, tx)},
	}
	db := &fakeStore{}
	m := testMonitor(client, db, &fakeCheckpoints{heights: map[int64]uint64{}}, nil)

	if synced := m.syncOnce(context.Background(), 100); synced != 101 {
		t.Fatalf("synced = %d, want 101", synced)
	}
	if client.receiptCalls != 0 {
		t.Errorf("fetched %d receipts for non-router transactions, want 0", client.receiptCalls)
	}
	if len(db.saved) != 0 {
		t.Errorf("saved %d transactions, want 0", len(db.saved))
	}
}

func TestDuplicateTransactionNotRepublished(t *testing.T) {
	tx, _ := signedRouterTx(t, 0)
	client := &fakeClient{
		tip:    101,
		blocks: map[uint64]*types.Block{101: blockAt(101, tx)},
		receipts: map[common.Hash]*types.Receipt{
			tx.Hash(): arbReceipt(
				swapLog(poolA, 0, 1000, 0, 0, 900),
				swapLog(poolB, 1, 0, 900, 1050, 0),
			),
		},
	}
	db := &fakeStore{duplicate: true}
	pub := &fakePublisher{}
	m := testMonitor(client, db, &fakeCheckpoints{heights: map[int64]uint64{}}, pub)

	m.syncOnce(context.Background(), 100)
	if len(db.upserts) != 0 {
		t.Errorf("duplicate transaction updated arbitrageur profile %d times, want 0", len(db.upserts))
	}
	if len(pub.published) != 0 {
		t.Errorf("duplicate transaction published %d times, want 0", len(pub.published))
	}
}

func TestTooFewDecodableSwapsNotPersisted(t *testing.T) {
	// Two Swap-topic logs classify as arbitrage, but only one decodes;
	// a single-swap record must never reach the store.
	tx, _ := signedRouterTx(t, 0)
	client := &fakeClient{
		tip:    101,
		blocks: map[uint64]*types.Block{101: blockAt(101, tx)},
		receipts: map[common.Hash]*types.Receipt{
			tx.Hash(): arbReceipt(
				swapLog(poolA, 0, 1000, 0, 0, 900),
				truncatedSwapLog(poolB, 1),
			),
		},
	}
	db := &fakeStore{}
	pub := &fakePublisher{}
	m := testMonitor(client, db, &fakeCheckpoints{heights: map[int64]uint64{}}, pub)

	if synced := m.syncOnce(context.Background(), 100); synced != 101 {
		t.Fatalf("synced = %d, want 101 (skip must not fail the block)", synced)
	}
	if len(db.saved) != 0 {
		t.Fatalf("saved %d transactions, want 0", len(db.saved))
	}
	if len(db.upserts) != 0 || len(pub.published) != 0 {
		t.Errorf("skipped transaction reached tracker or hub: upserts=%d published=%d",
			len(db.upserts), len(pub.published))
	}
}

func TestFailedSwapRecordedAsUnsuccessful(t *testing.T) {
	tx, _ := signedRouterTx(t, 0)
	receipt := arbReceipt(
		swapLog(poolA, 0, 1000, 0, 0, 900),
		swapLog(poolB, 1, 0, 900, 950, 0),
	)
	receipt.Status = types.ReceiptStatusFailed
	client := &fakeClient{
		tip:      101,
		blocks:   map[uint64]*types.Block{101: blockAt(101, tx)},
		receipts: map[common.Hash]*types.Receipt{tx.Hash(): receipt},
	}
	db := &fakeStore{}
	m := testMonitor(client, db, &fakeCheckpoints{heights: map[int64]uint64{}}, nil)

	m.syncOnce(context.Background(), 100)
	if len(db.saved) != 1 {
		t.Fatalf("saved %d transactions, want 1", len(db.saved))
	}
	if db.saved[0].Success {
		t.Error("success = true for a failed receipt")
	}
	if db.upserts[0].Success {
		t.Error("arbitrageur update counted failed transaction as success")
	}
}

func TestPoolAddressesKeepsSwapOrderAndDuplicates(t *testing.T) {
	swaps := []detect.SwapEvent{
		{Pool: poolA}, {Pool: poolB}, {Pool: poolA},
	}
	pools := poolAddresses(swaps)
	if len(pools) != len(swaps) {
		t.Fatalf("pools = %v, want one entry per swap", pools)
	}
	want := []string{
		strings.ToLower(poolA.Hex()),
		strings.ToLower(poolB.Hex()),
		strings.ToLower(poolA.Hex()),
	}
	for i := range want {
		if pools[i] != want[i] {
			t.Errorf("pools[%d] = %s, want %s", i, pools[i], want[i])
		}
	}
}
