package arbitrage

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/michaelpento.lv/orderarb/types"
	"github.com/michaelpento.lv/orderarb/zeroex"
)

// Classify reports which currency the taker fee of order is paid in. For a bid
// on (base, quote) the taker asset is base and the maker asset is quote.
func Classify(order *types.Order, takerAsset, makerAsset common.Address) types.FeeClass {
	if order.TakerFee == nil || order.TakerFee.Sign() == 0 {
		return types.NoFee
	}

	feeAsset, err := zeroex.DecodeERC20AssetData(order.TakerFeeAssetData)
	if err != nil {
		return types.Unrecognized
	}

	switch feeAsset {
	case takerAsset:
		return types.FeeInTakerAsset
	case makerAsset:
		return types.FeeInMakerAsset
	default:
		return types.Unrecognized
	}
}
