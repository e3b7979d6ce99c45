package registry

// Multicall3 ships at the same address on every chain it is deployed to.
const Multicall3Address = "0xcA11bde05977b3631167028862bE2a173976CA11"

// The 1inch Aggregation Router v6 settles Fusion orders. Like Multicall3
// it is deployed at one address across every supported chain; it is both
// the allowance spender for the input token and the EIP-712 verifying
// contract of the signed order.
const FusionRouterV6Address = "0x111111125421cA6dc452d289314280a0f8842A65"

type SwapContracts struct {
	QuoterV2      string
	Router        string
	WrappedNative string
}

// Canonical Uniswap V3 deployments used by quoting and swap execution.
// QuoterV2 and SwapRouter02 addresses differ per chain; the wrapped
// native token is what quoting substitutes for the gas token.
var swapContractsByChainID = map[int64]SwapContracts{
	1: {
		QuoterV2:      "0x61fFE014bA17989E743c5F6cB21bF9697530B21e",
		Router:        "0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45",
		WrappedNative: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
	},
	10: {
		QuoterV2:      "0x61fFE014bA17989E743c5F6cB21bF9697530B21e",
		Router:        "0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45",
		WrappedNative: "0x4200000000000000000000000000000000000006",
	},
	56: {
		QuoterV2:      "0x78D78E420Da98ad378D7799bE8f4AF69033EB077",
		Router:        "0xB971eF87ede563556b2ED4b1C0b0019111Dd85d2",
		WrappedNative: "0xbb4CdB9CBd36B01bD1cBaEF60aF814a3f6F0EE75",
	},
	137: {
		QuoterV2:      "0x61fFE014bA17989E743c5F6cB21bF9697530B21e",
		Router:        "0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45",
		WrappedNative: "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270",
	},
	8453: {
		QuoterV2:      "0x3d4e44Eb1374240CE5F1B871ab261CD16335B76a",
		Router:        "0x2626664c2603336E57B271c5C0b26F421741e481",
		WrappedNative: "0x4200000000000000000000000000000000000006",
	},
	42161: {
		QuoterV2:      "0x61fFE014bA17989E743c5F6cB21bF9697530B21e",
		Router:        "0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45",
		WrappedNative: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1",
	},
	43114: {
		QuoterV2:      "0xbe0F5544EC67e9B3b2D979aaA43f18Fd87E6257F",
		Router:        "0xbb00FF08d01D300023C629E8fFfFcb65A5a578cE",
		WrappedNative: "0xB31f66AA3C1e785363F0875A1B74E27b85FD66c7",
	},
}

func UniswapV3Contracts(chainID int64) (SwapContracts, bool) {
	contracts, ok := swapContractsByChainID[chainID]
	return contracts, ok
}

func WrappedNative(chainID int64) (string, bool) {
	contracts, ok := swapContractsByChainID[chainID]
	if !ok {
		return "", false
	}
	return contracts.WrappedNative, true
}
