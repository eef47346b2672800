package flashloan

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/orderarb/simulator"
	"github.com/michaelpento.lv/orderarb/types"
	"github.com/michaelpento.lv/orderarb/utils/metrics"
	"github.com/michaelpento.lv/orderarb/zeroex"
)

const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

var (
	wethAddr   = common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	daiAddr    = common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
	traderAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

type fakeBackend struct {
	nonce   uint64
	status  uint64
	pending []common.Address
}

func (f *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.pending = append(f.pending, account)
	return f.nonce, nil
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	return &ethtypes.Receipt{TxHash: txHash, Status: f.status, GasUsed: 420000, BlockNumber: big.NewInt(100)}, nil
}

func (f *fakeBackend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

type fakeSubmitter struct {
	sent []*ethtypes.Transaction
	err  error
}

func (f *fakeSubmitter) Submit(ctx context.Context, tx *ethtypes.Transaction) error {
	f.sent = append(f.sent, tx)
	return f.err
}

func (f *fakeSubmitter) String() string { return "fake" }

type fakeGasPricer struct{ price *big.Int }

func (f *fakeGasPricer) GasPrice(ctx context.Context) (*big.Int, error) {
	return f.price, nil
}

type fakeQuotes struct {
	result *types.QuoteResult
	calls  int
}

func (f *fakeQuotes) Quote(ctx context.Context, from, to common.Address, amount *big.Int) (*types.QuoteResult, error) {
	f.calls++
	return f.result, nil
}

type fakeAssets map[string]common.Address

func (f fakeAssets) Asset(symbol string) (common.Address, int32, error) {
	addr, ok := f[symbol]
	if !ok {
		return common.Address{}, 0, fmt.Errorf("unknown asset %s", symbol)
	}
	return addr, 18, nil
}

var testAssets = fakeAssets{"WETH": wethAddr, "DAI": daiAddr}

func wei(v string) *big.Int {
	n, ok := new(big.Int).SetString(v, 10)
	if !ok {
		panic("bad amount " + v)
	}
	return n
}

func bigStrings(values []*big.Int) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.String()
	}
	return out
}

func testOpportunity() *types.ArbOpportunity {
	order := &types.Order{
		MakerAddress:          common.HexToAddress("0x1111111111111111111111111111111111111111"),
		MakerAssetAmount:      wei("2000000000000000000000"),
		TakerAssetAmount:      wei("1000000000000000000"),
		MakerFee:              big.NewInt(0),
		TakerFee:              big.NewInt(0),
		ExpirationTimeSeconds: big.NewInt(1700000000),
		Salt:                  big.NewInt(7),
		MakerAssetData:        zeroex.EncodeERC20AssetData(daiAddr),
		TakerAssetData:        zeroex.EncodeERC20AssetData(wethAddr),
		Signature:             []byte{0x1b, 0x02},
	}
	return &types.ArbOpportunity{
		Plan:      types.NewRoundTrip("WETH", "DAI"),
		Record:    types.OrderRecord{Order: order},
		Quote:     &types.QuoteResult{ReturnAmount: wei("1028000000000000000"), Distribution: []*big.Int{big.NewInt(0), big.NewInt(10)}},
		Input:     wei("1000000000000000000"),
		Output:    wei("1028000000000000000"),
		NetProfit: wei("18000000000000000"),
		Feasible:  true,
	}
}

type executorFixture struct {
	executor  *Executor
	backend   *fakeBackend
	submitter *fakeSubmitter
	quotes    *fakeQuotes
	metrics   *metrics.ExecutionMetrics
}

func newExecutorFixture(t *testing.T, mutate func(*Config)) *executorFixture {
	t.Helper()
	key, err := crypto.HexToECDSA(testKey)
	require.NoError(t, err)

	cfg := Config{
		TraderContract: traderAddr,
		ChainID:        big.NewInt(1),
		GasLimit:       3000000,
		FlashAmount:    "10000",
		SlippageBps:    DefaultSlippageBps,
		WaitForReceipt: true,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	f := &executorFixture{
		backend:   &fakeBackend{nonce: 5, status: ethtypes.ReceiptStatusSuccessful},
		submitter: &fakeSubmitter{},
		quotes:    &fakeQuotes{},
		metrics:   metrics.NewExecutionMetrics(nil, "test"),
	}
	f.executor, err = NewExecutor(cfg, f.backend, f.submitter, &fakeGasPricer{price: big.NewInt(20_000_000_000)}, f.quotes, testAssets, key, f.metrics, zaptest.NewLogger(t))
	require.NoError(t, err)
	return f
}

func unpackCall(t *testing.T, calldata []byte) []interface{} {
	t.Helper()
	method := TraderABI.Methods["getFlashloan"]
	require.Equal(t, method.ID, calldata[:4])
	args, err := method.Inputs.Unpack(calldata[4:])
	require.NoError(t, err)
	require.Len(t, args, 6)
	return args
}

func TestMinReturn(t *testing.T) {
	tests := []struct {
		amount int64
		bps    int64
		want   int64
	}{
		{amount: 1_000_000, bps: 50, want: 995_000},
		{amount: 1_000, bps: 0, want: 1_000},
		{amount: 999, bps: 50, want: 994},
		{amount: 0, bps: 50, want: 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MinReturn(big.NewInt(tt.amount), tt.bps).Int64(), "amount %d bps %d", tt.amount, tt.bps)
	}
}

func TestExecuteDryRun(t *testing.T) {
	f := newExecutorFixture(t, func(c *Config) { c.DryRun = true })
	opp := testOpportunity()

	receipt, err := f.executor.Execute(context.Background(), opp)
	require.NoError(t, err)
	assert.True(t, receipt.DryRun)
	assert.Empty(t, f.submitter.sent)
	assert.Empty(t, f.backend.pending)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.DryRuns))

	args := unpackCall(t, receipt.Calldata)
	assert.Equal(t, wethAddr, args[0].(common.Address))
	assert.Equal(t, "10000000000000000000000", args[1].(*big.Int).String())
	assert.Equal(t, daiAddr, args[2].(common.Address))
	assert.Equal(t, "1022860000000000000", args[4].(*big.Int).String())
	assert.Equal(t, []string{"0", "10"}, bigStrings(args[5].([]*big.Int)))

	// the embedded fill is for the whole order
	fill, err := zeroex.EncodeFillOrder(opp.Record.Order, opp.Record.Order.TakerAssetAmount, opp.Record.Order.Signature)
	require.NoError(t, err)
	assert.Equal(t, fill, args[3].([]byte))
}

func TestExecuteSubmitsSignedTransaction(t *testing.T) {
	f := newExecutorFixture(t, nil)

	receipt, err := f.executor.Execute(context.Background(), testOpportunity())
	require.NoError(t, err)
	require.Len(t, f.submitter.sent, 1)

	tx := f.submitter.sent[0]
	assert.Equal(t, uint64(5), tx.Nonce())
	assert.Equal(t, uint64(3000000), tx.Gas())
	assert.Equal(t, "20000000000", tx.GasPrice().String())
	assert.Equal(t, traderAddr, *tx.To())
	assert.Equal(t, receipt.Calldata, tx.Data())

	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(big.NewInt(1)), tx)
	require.NoError(t, err)
	assert.Equal(t, f.executor.Sender(), from)
	assert.Equal(t, []common.Address{from}, f.backend.pending)

	assert.Equal(t, tx.Hash(), receipt.TxHash)
	require.NotNil(t, receipt.Mined)
	assert.Equal(t, uint64(420000), receipt.Mined.GasUsed)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Successes))
}

func TestExecuteFailures(t *testing.T) {
	t.Run("submit", func(t *testing.T) {
		f := newExecutorFixture(t, nil)
		f.submitter.err = errors.New("nonce too low")

		_, err := f.executor.Execute(context.Background(), testOpportunity())
		var execErr *ExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, StageSubmit, execErr.Stage)
		assert.Contains(t, err.Error(), "nonce too low")
		assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Failures.WithLabelValues(StageSubmit)))
	})

	t.Run("reverted", func(t *testing.T) {
		f := newExecutorFixture(t, nil)
		f.backend.status = ethtypes.ReceiptStatusFailed

		receipt, err := f.executor.Execute(context.Background(), testOpportunity())
		var execErr *ExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, StageReverted, execErr.Stage)
		require.NotNil(t, receipt)
		assert.Equal(t, ethtypes.ReceiptStatusFailed, receipt.Mined.Status)
	})

	t.Run("unknown_asset", func(t *testing.T) {
		f := newExecutorFixture(t, nil)
		opp := testOpportunity()
		opp.Plan = types.NewRoundTrip("WETH", "XYZ")

		_, err := f.executor.Execute(context.Background(), opp)
		var execErr *ExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, StageResolve, execErr.Stage)
		assert.Empty(t, f.submitter.sent)
	})
}

type fakeSimulator struct {
	result *simulator.SimulationResult
	err    error
	msgs   []ethereum.CallMsg
}

func (f *fakeSimulator) Simulate(ctx context.Context, msg ethereum.CallMsg) (*simulator.SimulationResult, error) {
	f.msgs = append(f.msgs, msg)
	return f.result, f.err
}

func TestExecuteSimulation(t *testing.T) {
	t.Run("passes", func(t *testing.T) {
		f := newExecutorFixture(t, nil)
		sim := &fakeSimulator{result: &simulator.SimulationResult{Success: true, GasUsed: 410000}}
		f.executor.SetSimulator(sim)

		receipt, err := f.executor.Execute(context.Background(), testOpportunity())
		require.NoError(t, err)
		require.Len(t, sim.msgs, 1)
		assert.Equal(t, f.executor.Sender(), sim.msgs[0].From)
		assert.Equal(t, traderAddr, *sim.msgs[0].To)
		assert.Equal(t, receipt.Calldata, sim.msgs[0].Data)
		assert.Len(t, f.submitter.sent, 1)
	})

	t.Run("would_revert", func(t *testing.T) {
		f := newExecutorFixture(t, nil)
		f.executor.SetSimulator(&fakeSimulator{result: &simulator.SimulationResult{Error: errors.New("execution reverted")}})

		_, err := f.executor.Execute(context.Background(), testOpportunity())
		var execErr *ExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, StageSimulate, execErr.Stage)
		assert.Contains(t, err.Error(), "execution reverted")
		assert.Empty(t, f.submitter.sent)
		assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Failures.WithLabelValues(StageSimulate)))
	})

	t.Run("dry_run_skips", func(t *testing.T) {
		f := newExecutorFixture(t, func(c *Config) { c.DryRun = true })
		sim := &fakeSimulator{}
		f.executor.SetSimulator(sim)

		_, err := f.executor.Execute(context.Background(), testOpportunity())
		require.NoError(t, err)
		assert.Empty(t, sim.msgs)
	})
}

func TestExecuteRequote(t *testing.T) {
	t.Run("evaporated", func(t *testing.T) {
		f := newExecutorFixture(t, func(c *Config) { c.Requote = true })
		// just below 1.028e18 less 0.5%
		f.quotes.result = &types.QuoteResult{ReturnAmount: wei("1022859999999999999")}

		_, err := f.executor.Execute(context.Background(), testOpportunity())
		require.ErrorIs(t, err, ErrProfitEvaporated)
		assert.Equal(t, 1, f.quotes.calls)
		assert.Empty(t, f.submitter.sent)
	})

	t.Run("still_profitable", func(t *testing.T) {
		f := newExecutorFixture(t, func(c *Config) {
			c.Requote = true
			c.DryRun = true
		})
		fresh := []*big.Int{big.NewInt(3), big.NewInt(7)}
		f.quotes.result = &types.QuoteResult{ReturnAmount: wei("1030000000000000000"), Distribution: fresh}

		receipt, err := f.executor.Execute(context.Background(), testOpportunity())
		require.NoError(t, err)

		args := unpackCall(t, receipt.Calldata)
		// the minimum return still comes from the quote the decision was made on
		assert.Equal(t, "1022860000000000000", args[4].(*big.Int).String())
		assert.Equal(t, bigStrings(fresh), bigStrings(args[5].([]*big.Int)))
	})
}

func TestNewExecutorValidation(t *testing.T) {
	logger := zaptest.NewLogger(t)

	_, err := NewExecutor(Config{SlippageBps: 10000, DryRun: true}, nil, nil, nil, nil, testAssets, nil, nil, logger)
	require.Error(t, err)

	_, err = NewExecutor(Config{ChainID: big.NewInt(1), GasLimit: 1}, &fakeBackend{}, &fakeSubmitter{}, &fakeGasPricer{}, nil, testAssets, nil, nil, logger)
	require.Error(t, err, "a live executor needs a key")

	_, err = NewExecutor(Config{DryRun: true, Requote: true}, nil, nil, nil, nil, testAssets, nil, nil, logger)
	require.Error(t, err, "requote needs a quote provider")

	_, err = NewExecutor(Config{DryRun: true}, nil, nil, nil, nil, testAssets, nil, nil, logger)
	require.NoError(t, err)
}
