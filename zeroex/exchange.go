package zeroex

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/michaelpento.lv/orderarb/types"
)

// Exchange v3 fillOrder
const exchangeABIJSON = `[
	{
		"constant": false,
		"inputs": [
			{
				"components": [
					{"internalType": "address", "name": "makerAddress", "type": "address"},
					{"internalType": "address", "name": "takerAddress", "type": "address"},
					{"internalType": "address", "name": "feeRecipientAddress", "type": "address"},
					{"internalType": "address", "name": "senderAddress", "type": "address"},
					{"internalType": "uint256", "name": "makerAssetAmount", "type": "uint256"},
					{"internalType": "uint256", "name": "takerAssetAmount", "type": "uint256"},
					{"internalType": "uint256", "name": "makerFee", "type": "uint256"},
					{"internalType": "uint256", "name": "takerFee", "type": "uint256"},
					{"internalType": "uint256", "name": "expirationTimeSeconds", "type": "uint256"},
					{"internalType": "uint256", "name": "salt", "type": "uint256"},
					{"internalType": "bytes", "name": "makerAssetData", "type": "bytes"},
					{"internalType": "bytes", "name": "takerAssetData", "type": "bytes"},
					{"internalType": "bytes", "name": "makerFeeAssetData", "type": "bytes"},
					{"internalType": "bytes", "name": "takerFeeAssetData", "type": "bytes"}
				],
				"internalType": "struct LibOrder.Order",
				"name": "order",
				"type": "tuple"
			},
			{"internalType": "uint256", "name": "takerAssetFillAmount", "type": "uint256"},
			{"internalType": "bytes", "name": "signature", "type": "bytes"}
		],
		"name": "fillOrder",
		"outputs": [
			{
				"components": [
					{"internalType": "uint256", "name": "makerAssetFilledAmount", "type": "uint256"},
					{"internalType": "uint256", "name": "takerAssetFilledAmount", "type": "uint256"},
					{"internalType": "uint256", "name": "makerFeePaid", "type": "uint256"},
					{"internalType": "uint256", "name": "takerFeePaid", "type": "uint256"},
					{"internalType": "uint256", "name": "protocolFeePaid", "type": "uint256"}
				],
				"internalType": "struct LibFillResults.FillResults",
				"name": "fillResults",
				"type": "tuple"
			}
		],
		"payable": true,
		"stateMutability": "payable",
		"type": "function"
	}
]`

// ExchangeABI is the parsed subset of the 0x v3 Exchange interface used here.
var ExchangeABI = mustParseABI(exchangeABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("failed to parse exchange ABI: %v", err))
	}
	return parsed
}

// OrderTuple mirrors LibOrder.Order field for field so it can be ABI packed.
type OrderTuple struct {
	MakerAddress          common.Address
	TakerAddress          common.Address
	FeeRecipientAddress   common.Address
	SenderAddress         common.Address
	MakerAssetAmount      *big.Int
	TakerAssetAmount      *big.Int
	MakerFee              *big.Int
	TakerFee              *big.Int
	ExpirationTimeSeconds *big.Int
	Salt                  *big.Int
	MakerAssetData        []byte
	TakerAssetData        []byte
	MakerFeeAssetData     []byte
	TakerFeeAssetData     []byte
}

// NewOrderTuple copies an order into its ABI shape. Missing amounts become zero.
func NewOrderTuple(o *types.Order) OrderTuple {
	return OrderTuple{
		MakerAddress:          o.MakerAddress,
		TakerAddress:          o.TakerAddress,
		FeeRecipientAddress:   o.FeeRecipientAddress,
		SenderAddress:         o.SenderAddress,
		MakerAssetAmount:      orZero(o.MakerAssetAmount),
		TakerAssetAmount:      orZero(o.TakerAssetAmount),
		MakerFee:              orZero(o.MakerFee),
		TakerFee:              orZero(o.TakerFee),
		ExpirationTimeSeconds: orZero(o.ExpirationTimeSeconds),
		Salt:                  orZero(o.Salt),
		MakerAssetData:        orEmpty(o.MakerAssetData),
		TakerAssetData:        orEmpty(o.TakerAssetData),
		MakerFeeAssetData:     orEmpty(o.MakerFeeAssetData),
		TakerFeeAssetData:     orEmpty(o.TakerFeeAssetData),
	}
}

// EncodeFillOrder returns the calldata for Exchange.fillOrder.
func EncodeFillOrder(o *types.Order, fillAmount *big.Int, signature []byte) ([]byte, error) {
	if o == nil {
		return nil, fmt.Errorf("order cannot be nil")
	}
	if fillAmount == nil || fillAmount.Sign() <= 0 {
		return nil, fmt.Errorf("invalid fill amount")
	}
	data, err := ExchangeABI.Pack("fillOrder", NewOrderTuple(o), fillAmount, orEmpty(signature))
	if err != nil {
		return nil, fmt.Errorf("failed to pack fillOrder: %w", err)
	}
	return data, nil
}

// Fingerprint is a canonical content hash of an order: keccak256 over the ABI
// encoding of the order tuple followed by the signature. It does not depend on
// how the order was serialized by the API.
func Fingerprint(o *types.Order) (common.Hash, error) {
	orderArgs := ExchangeABI.Methods["fillOrder"].Inputs[:1]
	encoded, err := orderArgs.Pack(NewOrderTuple(o))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode order: %w", err)
	}
	return crypto.Keccak256Hash(encoded, o.Signature), nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func orEmpty(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
