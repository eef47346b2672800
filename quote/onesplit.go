package quote

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/orderarb/types"
)

// MainnetOneSplit is the 1inch OneSplit deployment the bot quotes against by default.
var MainnetOneSplit = common.HexToAddress("0xC586BeF4a0992C495Cf22e1aeEE4E446CECDee0E")

const (
	DefaultParts = 10
	DefaultFlags = 0
)

const oneSplitABIJson = `[{
	"constant": true,
	"inputs": [
		{"name": "fromToken", "type": "address"},
		{"name": "destToken", "type": "address"},
		{"name": "amount", "type": "uint256"},
		{"name": "parts", "type": "uint256"},
		{"name": "flags", "type": "uint256"}
	],
	"name": "getExpectedReturn",
	"outputs": [
		{"name": "returnAmount", "type": "uint256"},
		{"name": "distribution", "type": "uint256[]"}
	],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}]`

// OneSplitABI is the subset of the OneSplit interface used for quoting.
var OneSplitABI = mustParseABI(oneSplitABIJson)

func mustParseABI(data string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(data))
	if err != nil {
		panic(fmt.Sprintf("failed to parse OneSplit ABI: %v", err))
	}
	return parsed
}

// OneSplit quotes swaps through the aggregator's getExpectedReturn view.
type OneSplit struct {
	contract *bind.BoundContract
	address  common.Address
	parts    *big.Int
	flags    *big.Int
	logger   *zap.Logger
}

// NewOneSplit binds the aggregator at address. Non-positive parts fall back to DefaultParts.
func NewOneSplit(address common.Address, caller bind.ContractCaller, parts, flags int64, logger *zap.Logger) (*OneSplit, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if parts <= 0 {
		parts = DefaultParts
	}

	return &OneSplit{
		contract: bind.NewBoundContract(address, OneSplitABI, caller, nil, nil),
		address:  address,
		parts:    big.NewInt(parts),
		flags:    big.NewInt(flags),
		logger:   logger,
	}, nil
}

// Quote returns the expected return of swapping amount of from into to and
// the distribution the aggregator would route it through.
func (s *OneSplit) Quote(ctx context.Context, from, to common.Address, amount *big.Int) (*types.QuoteResult, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("quote amount must be positive")
	}

	var out []interface{}
	err := s.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getExpectedReturn", from, to, amount, s.parts, s.flags)
	if err != nil {
		return nil, fmt.Errorf("failed to get expected return: %w", err)
	}
	if len(out) != 2 {
		return nil, fmt.Errorf("unexpected getExpectedReturn output length %d", len(out))
	}

	returnAmount, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected returnAmount type %T", out[0])
	}
	distribution, ok := out[1].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected distribution type %T", out[1])
	}

	s.logger.Debug("Quoted swap",
		zap.String("from", from.Hex()),
		zap.String("to", to.Hex()),
		zap.String("amount", amount.String()),
		zap.String("return", returnAmount.String()))

	return &types.QuoteResult{
		ReturnAmount: returnAmount,
		Distribution: distribution,
	}, nil
}
