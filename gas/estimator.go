package gas

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"go.uber.org/zap"
)

// PriceSuggester is the part of a node client that suggests a legacy gas price.
type PriceSuggester interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Estimator provides the gas price used for transactions and the gas fee
// charged against every evaluated opportunity.
type Estimator struct {
	node         PriceSuggester
	staticPrice  *big.Int
	estimatedGas uint64
	logger       *zap.Logger

	mu        sync.RWMutex
	lastPrice *big.Int
}

// NewStaticEstimator always prices gas at price wei.
func NewStaticEstimator(price *big.Int, estimatedGas uint64, logger *zap.Logger) (*Estimator, error) {
	if price == nil || price.Sign() < 0 {
		return nil, fmt.Errorf("gas price must be non-negative")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &Estimator{
		staticPrice:  new(big.Int).Set(price),
		estimatedGas: estimatedGas,
		logger:       logger,
	}, nil
}

// NewNodeEstimator asks the node for a price on every call.
func NewNodeEstimator(node PriceSuggester, estimatedGas uint64, logger *zap.Logger) (*Estimator, error) {
	if node == nil {
		return nil, fmt.Errorf("node client cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &Estimator{
		node:         node,
		estimatedGas: estimatedGas,
		logger:       logger,
	}, nil
}

// GasPrice returns the current gas price in wei.
func (e *Estimator) GasPrice(ctx context.Context) (*big.Int, error) {
	if e.node == nil {
		return new(big.Int).Set(e.staticPrice), nil
	}

	price, err := e.node.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	e.mu.Lock()
	e.lastPrice = new(big.Int).Set(price)
	e.mu.Unlock()

	e.logger.Debug("Updated gas price", zap.String("wei", price.String()))
	return price, nil
}

// LastPrice returns the most recent node price, or the static price.
func (e *Estimator) LastPrice() *big.Int {
	if e.node == nil {
		return new(big.Int).Set(e.staticPrice)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastPrice == nil {
		return nil
	}
	return new(big.Int).Set(e.lastPrice)
}

// EstimateGasCost estimates the cost in wei of spending gasUnits.
func (e *Estimator) EstimateGasCost(ctx context.Context, gasUnits uint64) (*big.Int, error) {
	price, err := e.GasPrice(ctx)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Mul(price, new(big.Int).SetUint64(gasUnits)), nil
}

// EstimateTradeFee is the gas fee of one arbitrage trade at the configured
// gas estimate.
func (e *Estimator) EstimateTradeFee(ctx context.Context) (*big.Int, error) {
	return e.EstimateGasCost(ctx, e.estimatedGas)
}
