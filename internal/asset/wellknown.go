package asset

import "github.com/ethereum/go-ethereum/common"

// Chain IDs
const (
	ChainIDEthereum = 1
	ChainIDOptimism = 10
	ChainIDBSC      = 56
	ChainIDPolygon  = 137
	ChainIDBase     = 8453
	ChainIDArbitrum = 42161
	ChainIDSepolia  = 11155111
)

// Bridged and wrapped deployments that represent the same logical asset.
var wellKnownAliases = map[string]string{
	"ETH":    "ETH",
	"WETH":   "ETH",
	"WETH.E": "ETH",
	"USDC":   "USDC",
	"USDC.E": "USDC",
	"USDBC":  "USDC",
	"USDT":   "USDT",
	"USDT.E": "USDT",
	"DAI":    "DAI",
	"DAI.E":  "DAI",
	"WBTC":   "BTC",
	"BTC.B":  "BTC",
}

var stableLogicals = map[string]struct{}{
	"USDC": {},
	"USDT": {},
	"DAI":  {},
}

// Well-known token deployments on Ethereum Mainnet.
var (
	USDCEthereum = Asset{
		ChainID: ChainIDEthereum, Symbol: "USDC", Logical: "USDC", Decimals: 6, Stable: true,
		Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
	}
	USDTEthereum = Asset{
		ChainID: ChainIDEthereum, Symbol: "USDT", Logical: "USDT", Decimals: 6, Stable: true,
		Address: common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"),
	}
	WETHEthereum = Asset{
		ChainID: ChainIDEthereum, Symbol: "WETH", Logical: "ETH", Decimals: 18,
		Address: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
	}
	WBTCEthereum = Asset{
		ChainID: ChainIDEthereum, Symbol: "WBTC", Logical: "BTC", Decimals: 8,
		Address: common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599"),
	}
	ETHEthereum = Asset{ChainID: ChainIDEthereum, Symbol: "ETH", Logical: "ETH", Decimals: 18}
)

// DefaultRegistry returns a registry pre-populated with Ethereum Mainnet tokens.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, a := range []Asset{ETHEthereum, WETHEthereum, USDCEthereum, USDTEthereum, WBTCEthereum} {
		_ = r.Register(a)
	}
	return r
}
