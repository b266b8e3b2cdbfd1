package detect

import (
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/relab/arbmon/chain"
	"github.com/relab/arbmon/logging"
)

// TokenFlow is the extracted input/output of a swap sequence: the first
// swap's non-zero amount-in and the last swap's non-zero amount-out.
type TokenFlow struct {
	InputAmount  *big.Int
	OutputAmount *big.Int
	// Which side of the pool carried the amount (token0 = 0, token1 = 1).
	InputTokenIndex  int
	OutputTokenIndex int
}

// GasCost is the gas spend of one transaction in every unit callers need.
type GasCost struct {
	GasUsed     uint64
	GasPriceWei *big.Int
	PriceGwei   decimal.Decimal
	CostNative  decimal.Decimal
	CostUSD     decimal.Decimal
}

// ProfitData is the complete profit reconstruction for one transaction.
// Gross and net values are signed; losses are preserved.
type ProfitData struct {
	GrossNative  decimal.Decimal
	GrossUSD     decimal.Decimal
	Gas          GasCost
	NetNative    decimal.Decimal
	NetUSD       decimal.Decimal
	ROIPct       decimal.NullDecimal // unset when input amount is zero
	InputNative  decimal.Decimal
	OutputNative decimal.Decimal
}

// nativeDecimals scales base units to native units. Chain-specific token
// decimals are a future parameter; every supported chain uses 18 today.
const nativeDecimals = 18

// Calculator turns a swap sequence plus its receipt into ProfitData.
// All monetary math is decimal; token amounts stay arbitrary precision.
type Calculator struct {
	chain  string
	price  *chain.PriceFeed
	logger logging.Logger
}

// NewCalculator builds a calculator reading the native-token USD price from
// the given feed on every call, so externally refreshed prices take effect
// immediately.
func NewCalculator(chainName string, price *chain.PriceFeed) *Calculator {
	return &Calculator{
		chain:  chainName,
		price:  price,
		logger: logging.New("profit").With("chain", chainName),
	}
}

// ExtractTokenFlow determines input and output amounts for the sequence.
// It returns false when either end cannot be determined (both candidate
// amounts zero); the caller then records the transaction with null profit.
func (c *Calculator) ExtractTokenFlow(swaps []SwapEvent) (TokenFlow, bool) {
	if len(swaps) == 0 {
		return TokenFlow{}, false
	}
	var flow TokenFlow

	first := swaps[0]
	switch {
	case first.Amount0In.Sign() > 0:
		flow.InputAmount, flow.InputTokenIndex = first.Amount0In, 0
	case first.Amount1In.Sign() > 0:
		flow.InputAmount, flow.InputTokenIndex = first.Amount1In, 1
	default:
		c.logger.Debugw("no input amount in first swap", "pool", first.Pool.Hex())
		return TokenFlow{}, false
	}

	last := swaps[len(swaps)-1]
	switch {
	case last.Amount0Out.Sign() > 0:
		flow.OutputAmount, flow.OutputTokenIndex = last.Amount0Out, 0
	case last.Amount1Out.Sign() > 0:
		flow.OutputAmount, flow.OutputTokenIndex = last.Amount1Out, 1
	default:
		c.logger.Debugw("no output amount in last swap", "pool", last.Pool.Hex())
		return TokenFlow{}, false
	}
	return flow, true
}

// GasCost computes the gas spend from the receipt's gasUsed and effective
// gas price (wei).
func (c *Calculator) GasCost(gasUsed uint64, effectiveGasPrice *big.Int) GasCost {
	if effectiveGasPrice == nil {
		effectiveGasPrice = new(big.Int)
	}
	costWei := new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), effectiveGasPrice)
	costNative := decimal.NewFromBigInt(costWei, -nativeDecimals)
	return GasCost{
		GasUsed:     gasUsed,
		GasPriceWei: effectiveGasPrice,
		PriceGwei:   decimal.NewFromBigInt(effectiveGasPrice, -9),
		CostNative:  costNative,
		CostUSD:     costNative.Mul(c.price.Price()),
	}
}

// Profit reconstructs the full profit picture for an ordered swap sequence.
// ok is false when the token flow is undeterminable; the returned ProfitData
// then still carries the gas cost so the transaction can be persisted with
// null profit fields.
func (c *Calculator) Profit(swaps []SwapEvent, receipt *types.Receipt) (ProfitData, bool) {
	gas := c.GasCost(receipt.GasUsed, receipt.EffectiveGasPrice)

	flow, ok := c.ExtractTokenFlow(swaps)
	if !ok {
		return ProfitData{Gas: gas}, false
	}

	usd := c.price.Price()
	input := decimal.NewFromBigInt(flow.InputAmount, -nativeDecimals)
	output := decimal.NewFromBigInt(flow.OutputAmount, -nativeDecimals)

	gross := output.Sub(input)
	net := gross.Sub(gas.CostNative)

	data := ProfitData{
		GrossNative:  gross,
		GrossUSD:     gross.Mul(usd),
		Gas:          gas,
		NetNative:    net,
		NetUSD:       gross.Mul(usd).Sub(gas.CostUSD),
		InputNative:  input,
		OutputNative: output,
	}
	if input.IsPositive() {
		data.ROIPct = decimal.NewNullDecimal(net.Div(input).Mul(decimal.NewFromInt(100)))
	}

	c.logger.Debugw("profit calculated",
		"tx_hash", receipt.TxHash.Hex(),
		"gross_usd", data.GrossUSD.String(),
		"gas_usd", gas.CostUSD.String(),
		"net_usd", data.NetUSD.String(),
		"swap_count", len(swaps))
	return data, true
}
