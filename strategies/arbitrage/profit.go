package arbitrage

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/michaelpento.lv/orderarb/types"
)

// ResolvedPlan is a pair plan with its symbols resolved to token addresses.
type ResolvedPlan struct {
	Plan         types.AssetPairPlan
	Base         common.Address
	Quote        common.Address
	Output       common.Address
	BaseDecimals int32
}

// ProfitCalculator turns a quoted order into an opportunity.
type ProfitCalculator struct {
	minProfit *big.Int
}

// NewProfitCalculator returns a calculator that additionally requires the net
// profit to reach minProfit. A nil or zero minProfit keeps the plain net > 0 rule.
func NewProfitCalculator(minProfit *big.Int) *ProfitCalculator {
	if minProfit == nil || minProfit.Sign() < 0 {
		minProfit = new(big.Int)
	}
	return &ProfitCalculator{minProfit: new(big.Int).Set(minProfit)}
}

// Evaluate computes the net profit of filling rec and swapping the received
// maker asset back into the output asset.
//
//	NoFee:           net = output - input - gasFee
//	FeeInTakerAsset: net = output - input - gasFee - takerFee
//
// Orders whose fee is paid in the maker asset, or in an unknown asset, are
// never feasible and carry no net profit.
func (p *ProfitCalculator) Evaluate(rec types.OrderRecord, plan ResolvedPlan, quote *types.QuoteResult, gasFee *big.Int) *types.ArbOpportunity {
	order := rec.Order
	opp := &types.ArbOpportunity{
		Plan:   plan.Plan,
		Record: rec,
		Quote:  quote,
		Fee:    Classify(order, plan.Base, plan.Quote),
		Input:  new(big.Int).Set(order.TakerAssetAmount),
		Output: new(big.Int).Set(quote.ReturnAmount),
		GasFee: new(big.Int).Set(gasFee),
	}

	net := new(big.Int).Sub(opp.Output, opp.Input)
	net.Sub(net, opp.GasFee)

	switch opp.Fee {
	case types.NoFee:
	case types.FeeInTakerAsset:
		net.Sub(net, order.TakerFee)
	default:
		return opp
	}

	opp.NetProfit = net
	opp.Feasible = net.Sign() > 0 && net.Cmp(p.minProfit) >= 0
	return opp
}
