package bot

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/orderarb/config"
	"github.com/michaelpento.lv/orderarb/flashloan"
	"github.com/michaelpento.lv/orderarb/quote"
	"github.com/michaelpento.lv/orderarb/scheduler"
	"github.com/michaelpento.lv/orderarb/zeroex"
)

var (
	weth = common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	dai  = common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
)

type fakeNode struct {
	mu        sync.Mutex
	quoteOut  []byte
	sendErr   error
	sent      []*ethtypes.Transaction
	simulated int
	pending   int
}

func (n *fakeNode) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (n *fakeNode) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return n.quoteOut, nil
}

func (n *fakeNode) PendingCallContract(ctx context.Context, call ethereum.CallMsg) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending++
	return nil, nil
}

func (n *fakeNode) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.simulated++
	return 410_000, nil
}

func (n *fakeNode) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful, TxHash: txHash, BlockNumber: big.NewInt(1)}, nil
}

func (n *fakeNode) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 7, nil
}

func (n *fakeNode) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(20_000_000_000), nil
}

func (n *fakeNode) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sendErr != nil {
		return n.sendErr
	}
	n.sent = append(n.sent, tx)
	return nil
}

func (n *fakeNode) sentCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func newNode(t *testing.T, returnAmount string) *fakeNode {
	t.Helper()
	ret, ok := new(big.Int).SetString(returnAmount, 10)
	require.True(t, ok)
	out, err := quote.OneSplitABI.Methods["getExpectedReturn"].Outputs.Pack(ret, []*big.Int{big.NewInt(10), big.NewInt(0)})
	require.NoError(t, err)
	return &fakeNode{quoteOut: out}
}

// orderBookServer serves one WETH/DAI bid: 2000 DAI for 1 WETH.
func orderBookServer(t *testing.T) *httptest.Server {
	t.Helper()
	record := fmt.Sprintf(`{
		"order": {
			"makerAddress": "0x0000000000000000000000000000000000000001",
			"takerAddress": "0x0000000000000000000000000000000000000000",
			"feeRecipientAddress": "0x0000000000000000000000000000000000000002",
			"senderAddress": "0x0000000000000000000000000000000000000000",
			"makerAssetAmount": "2000000000000000000000",
			"takerAssetAmount": "1000000000000000000",
			"makerFee": "0",
			"takerFee": "0",
			"expirationTimeSeconds": "1700000000",
			"salt": "42",
			"makerAssetData": "%s",
			"takerAssetData": "%s",
			"makerFeeAssetData": "0x",
			"takerFeeAssetData": "0x",
			"signature": "0x1b02"
		},
		"metaData": {"orderHash": "0x00000000000000000000000000000000000000000000000000000000000000cd"}
	}`, hexutil.Encode(zeroex.EncodeERC20AssetData(dai)), hexutil.Encode(zeroex.EncodeERC20AssetData(weth)))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"bids": {"total": 1, "page": 1, "perPage": 100, "records": [%s]}}`, record)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(apiURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Pairs = []config.PairConfig{{Base: "WETH", Quote: "DAI"}}
	cfg.PollingInterval = 5 * time.Millisecond
	cfg.OrderBook.APIURL = apiURL
	cfg.OrderBook.PerPage = 100
	cfg.OrderBook.MaxPages = 1
	cfg.OrderBook.RateLimit.RequestsPerSecond = 1000
	cfg.OrderBook.RateLimit.BurstSize = 100
	cfg.Trade.TraderContract = "0x00000000000000000000000000000000000000ee"
	cfg.Trade.FlashAmount = "1"
	cfg.Trade.WaitForReceipt = false
	return cfg
}

func TestRunOnceDryRun(t *testing.T) {
	srv := orderBookServer(t)
	cfg := testConfig(srv.URL)
	cfg.Trade.DryRun = true
	// 1.05 WETH back for 1 WETH in, minus 0.01 WETH of gas
	node := newNode(t, "1050000000000000000")

	b, err := New(cfg, node, Options{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	opp, receipt, err := b.RunOnce(context.Background())
	require.NoError(t, err)
	require.NotNil(t, opp)
	require.NotNil(t, receipt)

	assert.Equal(t, "40000000000000000", opp.NetProfit.String())
	assert.True(t, receipt.DryRun)
	assert.True(t, b.DryRun())
	assert.Equal(t, weth, receipt.Params.FlashToken)
	assert.Equal(t, dai, receipt.Params.ArbToken)
	assert.Equal(t, "1000000000000000000", receipt.Params.FlashAmount.String())
	assert.True(t, b.Session().Committed())
	assert.Zero(t, node.sentCount())

	// committed sessions do not scan again
	opp, _, err = b.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestRunOnceUnprofitable(t *testing.T) {
	srv := orderBookServer(t)
	cfg := testConfig(srv.URL)
	cfg.Trade.DryRun = true
	node := newNode(t, "1005000000000000000")

	b, err := New(cfg, node, Options{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	opp, receipt, err := b.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Nil(t, opp)
	assert.Nil(t, receipt)
	assert.False(t, b.Session().Committed())
	assert.Equal(t, 1, b.Session().Len())
}

func TestRunOnceReleasesLatchOnFailure(t *testing.T) {
	srv := orderBookServer(t)
	cfg := testConfig(srv.URL)
	node := newNode(t, "1050000000000000000")
	node.sendErr = errors.New("nonce too low")

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	b, err := New(cfg, node, Options{Key: key}, zaptest.NewLogger(t))
	require.NoError(t, err)

	opp, _, err := b.RunOnce(context.Background())
	require.Error(t, err)
	require.NotNil(t, opp)

	var execErr *flashloan.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, flashloan.StageSubmit, execErr.Stage)
	assert.False(t, b.Session().Committed())

	// the failed order stays recorded and is not retried
	opp, _, err = b.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestRunStopsAfterTrade(t *testing.T) {
	srv := orderBookServer(t)
	cfg := testConfig(srv.URL)
	node := newNode(t, "1050000000000000000")

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	b, err := New(cfg, node, Options{Key: key}, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, b.Run(ctx))
	assert.NoError(t, ctx.Err())
	assert.Equal(t, scheduler.StateStopped, b.State())
	assert.True(t, b.Session().Committed())
	require.Equal(t, 1, node.sentCount())
	assert.Equal(t, 1, node.simulated)
	assert.Equal(t, 1, node.pending)

	tx := node.sent[0]
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, common.HexToAddress(cfg.Trade.TraderContract), *tx.To())
	assert.Equal(t, cfg.Gas.GasLimit, tx.Gas())

	sender, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(big.NewInt(cfg.Network.ChainID)), tx)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), sender)
}

func TestDryRunOption(t *testing.T) {
	cfg := testConfig("http://localhost")
	require.False(t, cfg.Trade.DryRun)

	b, err := New(cfg, newNode(t, "1"), Options{DryRun: true}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, b.DryRun())

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	b, err = New(cfg, newNode(t, "1"), Options{Key: key}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.False(t, b.DryRun())
}

func TestNewValidation(t *testing.T) {
	cfg := testConfig("http://localhost")
	node := newNode(t, "1")
	logger := zaptest.NewLogger(t)

	_, err := New(cfg, node, Options{}, logger)
	assert.ErrorContains(t, err, "private key")

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	cfg.Trade.SenderAddress = "0x0000000000000000000000000000000000000bad"
	_, err = New(cfg, node, Options{Key: key}, logger)
	assert.ErrorContains(t, err, "configured sender")

	cfg.Trade.SenderAddress = ""
	cfg.Trade.Submitter = config.SubmitterFlashbots
	_, err = New(cfg, node, Options{Key: key}, logger)
	assert.ErrorContains(t, err, config.EnvFlashbotsKey)

	_, err = New(cfg, node, Options{Key: key, FlashbotsKey: key}, logger)
	assert.NoError(t, err)

	_, err = New(cfg, nil, Options{Key: key}, logger)
	assert.Error(t, err)
}
