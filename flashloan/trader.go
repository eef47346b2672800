package flashloan

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const bpsDenominator = 10000

// DefaultSlippageBps accepts a return 0.5% below the quote.
const DefaultSlippageBps = 50

const traderABIJson = `[{
	"inputs": [
		{"internalType": "address", "name": "flashToken", "type": "address"},
		{"internalType": "uint256", "name": "flashAmount", "type": "uint256"},
		{"internalType": "address", "name": "arbToken", "type": "address"},
		{"internalType": "bytes", "name": "zrxData", "type": "bytes"},
		{"internalType": "uint256", "name": "oneSplitMinReturn", "type": "uint256"},
		{"internalType": "uint256[]", "name": "oneSplitDistribution", "type": "uint256[]"}
	],
	"name": "getFlashloan",
	"outputs": [],
	"stateMutability": "payable",
	"type": "function"
}]`

// TraderABI is the interface of the deployed flash-loan trader contract.
var TraderABI = mustParseABI(traderABIJson)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("failed to parse trader ABI: %v", err))
	}
	return parsed
}

// MinReturn applies slippage to a quoted return, rounding down.
func MinReturn(returnAmount *big.Int, slippageBps int64) *big.Int {
	out := new(big.Int).Mul(returnAmount, big.NewInt(bpsDenominator-slippageBps))
	return out.Div(out, big.NewInt(bpsDenominator))
}

// PackGetFlashloan encodes the trader contract call.
func PackGetFlashloan(p FlashloanParams) ([]byte, error) {
	distribution := p.Distribution
	if distribution == nil {
		distribution = []*big.Int{}
	}
	data, err := TraderABI.Pack("getFlashloan",
		p.FlashToken,
		p.FlashAmount,
		p.ArbToken,
		p.ZrxData,
		p.MinReturn,
		distribution,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack getFlashloan: %w", err)
	}
	return data, nil
}
