package config

import (
	"time"

	"github.com/shopspring/decimal"
)

// BSC returns the built-in BNB Smart Chain definition.
func BSC() ChainConfig {
	return ChainConfig{
		Name:           "BSC",
		ChainID:        56,
		BlockTime:      3 * time.Second,
		ScanInterval:   3 * time.Second,
		NativeToken:    "BNB",
		NativeTokenUSD: decimal.NewFromInt(300),
		DexRouters: map[string]string{
			"PancakeSwap V2": "0x10ed43c718714eb63d5aa57b78b54704e256024e",
			"PancakeSwap V3": "0x13f4ea83d0bd40e75c8222255bc855a974568dd4",
			"BiSwap":         "0x3a6d8ca21d1cf76f653a67577fa0d27453350dd8",
			"ApeSwap":        "0xcf0febd3f17cef5b47b0cd257acf6025c5bff3b7",
			"THENA":          "0xd4ae6eca985340dd434d38f470accce4dc78d109",
		},
		Pools: map[string]string{
			"WBNB-BUSD": "0x58f876857a02d6762e0101bb5c46a8c1ed44dc16",
			"WBNB-USDT": "0x16b9a82891338f9ba80e2d6970fdda79d1eb0dae",
		},
	}
}

// Polygon returns the built-in Polygon PoS definition.
func Polygon() ChainConfig {
	return ChainConfig{
		Name:           "Polygon",
		ChainID:        137,
		BlockTime:      2 * time.Second,
		ScanInterval:   2 * time.Second,
		NativeToken:    "MATIC",
		NativeTokenUSD: decimal.NewFromFloat(0.80),
		DexRouters: map[string]string{
			"QuickSwap":  "0xa5e0829caced8ffdd4de3c43696c57f7d7a678ff",
			"SushiSwap":  "0x1b02da8cb0d097eb8d57a175b88c7d8b47997506",
			"Uniswap V3": "0xe592427a0aece92de3edee1f18e0157c05861564",
			"Balancer":   "0xba12222222228d8ba445958a75a0704d566bf2c8",
		},
		Pools: map[string]string{
			"WMATIC-USDC": "0x6e7a5fafcec6bb1e78baa2a0430e3b1b64b5c0d7",
			"WMATIC-USDT": "0x604229c960e5cacf2aaeac8be68ac07ba9df81c3",
		},
	}
}
