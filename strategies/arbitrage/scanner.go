package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/orderarb/types"
	"github.com/michaelpento.lv/orderarb/utils"
	"github.com/michaelpento.lv/orderarb/utils/metrics"
	"github.com/michaelpento.lv/orderarb/zeroex"
)

var ErrNoPlans = errors.New("no asset pair plans to scan")

// Selection decides which feasible opportunity of a cycle is committed to.
type Selection string

const (
	// SelectFirst commits to the first feasible order in scan order.
	SelectFirst Selection = "first"
	// SelectBest evaluates every order of the cycle and commits to the one
	// with the highest net profit.
	SelectBest Selection = "best"
)

// Skip reasons used for logs and the orders_skipped metric.
const (
	skipSeen         = "seen"
	skipMakerFee     = "maker_fee"
	skipDust         = "dust"
	skipFeeAsset     = "fee_asset"
	skipUnprofitable = "unprofitable"
	skipFingerprint  = "fingerprint"
)

// minRemaining is the smallest partially filled remainder, in display units
// of the taker asset, that is still worth quoting.
var minRemaining = decimal.New(1, -2)

type OrderBookSource interface {
	Fetch(ctx context.Context, base, quote common.Address) ([]types.OrderRecord, error)
}

type QuoteProvider interface {
	Quote(ctx context.Context, from, to common.Address, amount *big.Int) (*types.QuoteResult, error)
}

type GasFeeEstimator interface {
	EstimateTradeFee(ctx context.Context) (*big.Int, error)
}

// AssetResolver maps a configured symbol to its token address and decimals.
type AssetResolver interface {
	Asset(symbol string) (common.Address, int32, error)
}

type ScannerConfig struct {
	Selection Selection
	MinProfit *big.Int
}

// Scanner walks the order books of the configured pairs and looks for a bid
// that can be filled and swapped back at a profit.
type Scanner struct {
	orders    OrderBookSource
	quotes    QuoteProvider
	gas       GasFeeEstimator
	assets    AssetResolver
	session   *ScanSession
	profit    *ProfitCalculator
	selection Selection
	metrics   *metrics.ScanMetrics
	logger    *zap.Logger
}

func NewScanner(
	cfg ScannerConfig,
	orders OrderBookSource,
	quotes QuoteProvider,
	gas GasFeeEstimator,
	assets AssetResolver,
	session *ScanSession,
	m *metrics.ScanMetrics,
	logger *zap.Logger,
) (*Scanner, error) {
	if orders == nil || quotes == nil || gas == nil || assets == nil {
		return nil, fmt.Errorf("scanner dependencies cannot be nil")
	}
	if session == nil {
		return nil, fmt.Errorf("scan session cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if m == nil {
		m = metrics.NewScanMetrics(nil, metrics.Namespace)
	}

	selection := cfg.Selection
	switch selection {
	case "":
		selection = SelectFirst
	case SelectFirst, SelectBest:
	default:
		return nil, fmt.Errorf("unknown selection policy %q", selection)
	}

	return &Scanner{
		orders:    orders,
		quotes:    quotes,
		gas:       gas,
		assets:    assets,
		session:   session,
		profit:    NewProfitCalculator(cfg.MinProfit),
		selection: selection,
		metrics:   m,
		logger:    logger,
	}, nil
}

// Session returns the session the scanner records into.
func (s *Scanner) Session() *ScanSession {
	return s.session
}

// ScanOnce runs one cycle over plans and returns the opportunity it committed
// to, or nil when there is none. A fetch or quote failure aborts the cycle.
// Orders evaluated before the failure stay recorded in the session.
func (s *Scanner) ScanOnce(ctx context.Context, plans []types.AssetPairPlan) (opp *types.ArbOpportunity, err error) {
	if len(plans) == 0 {
		return nil, ErrNoPlans
	}
	if s.session.Committed() {
		return nil, nil
	}

	start := time.Now()
	defer func() {
		s.metrics.CycleDuration.Observe(time.Since(start).Seconds())
		s.metrics.LedgerSize.Set(float64(s.session.Len()))
		if err != nil {
			s.metrics.CycleErrors.Inc()
			return
		}
		s.metrics.Cycles.Inc()
		s.logger.Debug("Scan cycle complete",
			zap.Duration("elapsed", time.Since(start)),
			zap.Int("ledger", s.session.Len()),
			zap.Float64("cycles", metrics.CounterValue(s.metrics.Cycles)),
			zap.Float64("quotes", metrics.CounterValue(s.metrics.Quotes)),
			zap.Bool("committed", opp != nil))
	}()

	gasFee, err := s.gas.EstimateTradeFee(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate gas fee: %w", err)
	}

	var best *types.ArbOpportunity
	for _, plan := range plans {
		found, err := s.scanPlan(ctx, plan, gasFee)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", plan, err)
		}
		if found == nil {
			continue
		}

		if s.selection == SelectFirst {
			return s.commit(found), nil
		}
		if best == nil || found.NetProfit.Cmp(best.NetProfit) > 0 {
			best = found
		}
	}

	if best == nil {
		return nil, nil
	}
	return s.commit(best), nil
}

func (s *Scanner) commit(opp *types.ArbOpportunity) *types.ArbOpportunity {
	if !s.session.Commit() {
		return nil
	}
	s.metrics.Opportunities.Inc()
	return opp
}

// scanPlan returns the opportunity to commit to within one order book: the
// first feasible one, or with SelectBest the most profitable one.
func (s *Scanner) scanPlan(ctx context.Context, plan types.AssetPairPlan, gasFee *big.Int) (*types.ArbOpportunity, error) {
	resolved, err := s.resolve(plan)
	if err != nil {
		return nil, err
	}

	records, err := s.orders.Fetch(ctx, resolved.Base, resolved.Quote)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order book: %w", err)
	}
	s.metrics.OrdersFetched.WithLabelValues(plan.String()).Add(float64(len(records)))

	var best *types.ArbOpportunity
	for _, rec := range records {
		if rec.Order == nil {
			continue
		}

		if reason := s.prefilter(rec, resolved); reason != "" {
			s.skip(plan, rec, reason)
			continue
		}

		quote, err := s.quotes.Quote(ctx, resolved.Quote, resolved.Output, rec.Order.MakerAssetAmount)
		if err != nil {
			return nil, fmt.Errorf("failed to quote order %s: %w", rec.Metadata.OrderHash.Hex(), err)
		}
		s.metrics.Quotes.Inc()

		opp := s.profit.Evaluate(rec, resolved, quote, gasFee)
		s.metrics.Evaluated.WithLabelValues(opp.Fee.String()).Inc()
		if opp.NetProfit != nil && opp.NetProfit.Sign() > 0 {
			wei, _ := new(big.Float).SetInt(opp.NetProfit).Float64()
			s.metrics.NetProfit.Observe(wei)
		}

		if !opp.Feasible {
			if opp.NetProfit == nil {
				s.skip(plan, rec, skipFeeAsset)
			} else {
				s.skip(plan, rec, skipUnprofitable)
			}
			continue
		}

		s.logger.Info("Found profitable order",
			zap.Stringer("plan", plan),
			zap.String("order", rec.Metadata.OrderHash.Hex()),
			zap.String("fee", opp.Fee.String()),
			zap.String("input", utils.FormatTokens(opp.Input, resolved.BaseDecimals)),
			zap.String("output", utils.FormatTokens(opp.Output, resolved.BaseDecimals)),
			zap.String("profit", utils.FormatTokens(opp.NetProfit, resolved.BaseDecimals)))

		if s.selection == SelectFirst {
			return opp, nil
		}
		if best == nil || opp.NetProfit.Cmp(best.NetProfit) > 0 {
			best = opp
		}
	}

	return best, nil
}

// prefilter applies the checks that do not need a quote. It records the order
// in the session and returns a skip reason, or "" when the order should be quoted.
func (s *Scanner) prefilter(rec types.OrderRecord, plan ResolvedPlan) string {
	fp, err := zeroex.Fingerprint(rec.Order)
	if err != nil {
		s.logger.Warn("Failed to fingerprint order", zap.Error(err))
		return skipFingerprint
	}
	if s.session.Observe(fp) {
		return skipSeen
	}

	order := rec.Order
	if order.MakerFee != nil && order.MakerFee.Sign() != 0 {
		return skipMakerFee
	}

	remaining := rec.Metadata.RemainingFillableTakerAssetAmount
	if remaining != nil && remaining.Cmp(order.TakerAssetAmount) != 0 &&
		utils.ToDisplay(remaining, plan.BaseDecimals).LessThan(minRemaining) {
		return skipDust
	}

	return ""
}

func (s *Scanner) skip(plan types.AssetPairPlan, rec types.OrderRecord, reason string) {
	s.metrics.OrdersSkipped.WithLabelValues(reason).Inc()
	if reason == skipSeen {
		return
	}
	s.logger.Debug("Skipping order",
		zap.Stringer("plan", plan),
		zap.String("order", rec.Metadata.OrderHash.Hex()),
		zap.String("reason", reason))
}

func (s *Scanner) resolve(plan types.AssetPairPlan) (ResolvedPlan, error) {
	base, decimals, err := s.assets.Asset(plan.Base)
	if err != nil {
		return ResolvedPlan{}, err
	}
	quote, _, err := s.assets.Asset(plan.Quote)
	if err != nil {
		return ResolvedPlan{}, err
	}
	output, _, err := s.assets.Asset(plan.Output)
	if err != nil {
		return ResolvedPlan{}, err
	}
	return ResolvedPlan{
		Plan:         plan,
		Base:         base,
		Quote:        quote,
		Output:       output,
		BaseDecimals: decimals,
	}, nil
}
