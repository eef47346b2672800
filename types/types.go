package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Order is a signed 0x v3 limit order as published by the order book.
// It is never mutated once decoded.
type Order struct {
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
	Signature             []byte
}

// OrderMetadata is refreshed on every fetch and is not part of the order identity.
type OrderMetadata struct {
	OrderHash                         common.Hash
	RemainingFillableTakerAssetAmount *big.Int
}

// OrderRecord pairs an order with the metadata returned alongside it.
type OrderRecord struct {
	Order    *Order
	Metadata OrderMetadata
}

// AssetPairPlan names the legs of a round trip: the order book is read for
// (Base, Quote) and the received quote asset is converted back into Output.
type AssetPairPlan struct {
	Base   string
	Quote  string
	Output string
}

// NewRoundTrip returns a plan that ends in the asset it started from.
func NewRoundTrip(base, quote string) AssetPairPlan {
	return AssetPairPlan{Base: base, Quote: quote, Output: base}
}

func (p AssetPairPlan) String() string {
	return fmt.Sprintf("%s/%s->%s", p.Base, p.Quote, p.Output)
}

// QuoteResult is the aggregator answer for a conversion. Distribution is opaque
// routing data passed through to the trade request.
type QuoteResult struct {
	ReturnAmount *big.Int
	Distribution []*big.Int
}

// FeeClass tells which currency the taker fee of an order is denominated in.
type FeeClass int

const (
	NoFee FeeClass = iota
	FeeInTakerAsset
	FeeInMakerAsset
	Unrecognized
)

func (f FeeClass) String() string {
	switch f {
	case NoFee:
		return "none"
	case FeeInTakerAsset:
		return "taker_asset"
	case FeeInMakerAsset:
		return "maker_asset"
	default:
		return "unrecognized"
	}
}

// ArbOpportunity is the transient result of evaluating one order. It carries
// everything the trade executor needs.
type ArbOpportunity struct {
	Plan      AssetPairPlan
	Record    OrderRecord
	Quote     *QuoteResult
	Fee       FeeClass
	Input     *big.Int
	Output    *big.Int
	GasFee    *big.Int
	NetProfit *big.Int
	Feasible  bool
}
