package gas

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeNode struct {
	price *big.Int
	err   error
	calls int
}

func (f *fakeNode) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	f.calls++
	return f.price, f.err
}

func TestStaticEstimator(t *testing.T) {
	// 500000 units at 20 gwei
	e, err := NewStaticEstimator(big.NewInt(20_000_000_000), 500000, zaptest.NewLogger(t))
	require.NoError(t, err)

	fee, err := e.EstimateTradeFee(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000", fee.String())

	cost, err := e.EstimateGasCost(context.Background(), 21000)
	require.NoError(t, err)
	assert.Equal(t, "420000000000000", cost.String())

	// callers cannot mutate the static price
	price, err := e.GasPrice(context.Background())
	require.NoError(t, err)
	price.SetInt64(1)
	assert.Equal(t, "20000000000", e.LastPrice().String())
}

func TestNodeEstimator(t *testing.T) {
	node := &fakeNode{price: big.NewInt(30_000_000_000)}
	e, err := NewNodeEstimator(node, 100000, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Nil(t, e.LastPrice())

	fee, err := e.EstimateTradeFee(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3000000000000000", fee.String())
	assert.Equal(t, "30000000000", e.LastPrice().String())
	assert.Equal(t, 1, node.calls)

	node.err = errors.New("node down")
	_, err = e.EstimateTradeFee(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node down")
	// the last good price survives a failed refresh
	assert.Equal(t, "30000000000", e.LastPrice().String())
}

func TestNewEstimatorValidation(t *testing.T) {
	_, err := NewStaticEstimator(big.NewInt(-1), 1, zaptest.NewLogger(t))
	require.Error(t, err)
	_, err = NewStaticEstimator(big.NewInt(1), 1, nil)
	require.Error(t, err)
	_, err = NewNodeEstimator(nil, 1, zaptest.NewLogger(t))
	require.Error(t, err)
}
