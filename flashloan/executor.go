package flashloan

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/orderarb/types"
	"github.com/michaelpento.lv/orderarb/utils"
	"github.com/michaelpento.lv/orderarb/utils/metrics"
	"github.com/michaelpento.lv/orderarb/zeroex"
)

// Executor turns a committed opportunity into a getFlashloan call on the
// trader contract: borrow the base asset, fill the order with it, swap the
// received quote asset back and repay.
type Executor struct {
	cfg       Config
	backend   Backend
	submitter Submitter
	gas       GasPricer
	quotes    QuoteProvider
	assets    AssetResolver
	simulator Simulator
	key       *ecdsa.PrivateKey
	sender    common.Address
	signer    ethtypes.Signer
	metrics   *metrics.ExecutionMetrics
	logger    *zap.Logger
}

func NewExecutor(
	cfg Config,
	backend Backend,
	submitter Submitter,
	gas GasPricer,
	quotes QuoteProvider,
	assets AssetResolver,
	key *ecdsa.PrivateKey,
	m *metrics.ExecutionMetrics,
	logger *zap.Logger,
) (*Executor, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if assets == nil {
		return nil, fmt.Errorf("asset resolver cannot be nil")
	}
	if cfg.SlippageBps < 0 || cfg.SlippageBps >= bpsDenominator {
		return nil, fmt.Errorf("slippage bps must be in [0, %d)", bpsDenominator)
	}
	if cfg.Requote && quotes == nil {
		return nil, fmt.Errorf("requote requires a quote provider")
	}
	if !cfg.DryRun {
		if backend == nil || submitter == nil || gas == nil {
			return nil, fmt.Errorf("backend, submitter and gas pricer are required to trade")
		}
		if key == nil {
			return nil, fmt.Errorf("private key is required to trade")
		}
		if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
			return nil, fmt.Errorf("chain id must be positive")
		}
		if cfg.GasLimit == 0 {
			return nil, fmt.Errorf("gas limit must be positive")
		}
	}
	if m == nil {
		m = metrics.NewExecutionMetrics(nil, metrics.Namespace)
	}

	e := &Executor{
		cfg:       cfg,
		backend:   backend,
		submitter: submitter,
		gas:       gas,
		quotes:    quotes,
		assets:    assets,
		key:       key,
		metrics:   m,
		logger:    logger,
	}
	if key != nil {
		e.sender = crypto.PubkeyToAddress(key.PublicKey)
	}
	if cfg.ChainID != nil {
		e.signer = ethtypes.LatestSignerForChainID(cfg.ChainID)
	}
	return e, nil
}

// SetSimulator makes every trade run through sim before submission. A trade
// that would revert is not sent.
func (e *Executor) SetSimulator(sim Simulator) {
	e.simulator = sim
}

// Sender is the account trades are sent from.
func (e *Executor) Sender() common.Address {
	return e.sender
}

// Execute builds the trade for opp and, unless running dry, signs and submits it.
func (e *Executor) Execute(ctx context.Context, opp *types.ArbOpportunity) (*Receipt, error) {
	start := time.Now()
	defer func() {
		e.metrics.ExecutionTime.Observe(time.Since(start).Seconds())
	}()
	e.metrics.Attempts.Inc()

	params, err := e.buildParams(ctx, opp)
	if err != nil {
		return nil, e.fail(err)
	}

	calldata, err := PackGetFlashloan(*params)
	if err != nil {
		return nil, e.fail(&ExecutionError{Stage: StageEncode, Err: err})
	}

	if e.cfg.DryRun {
		e.metrics.DryRuns.Inc()
		e.logger.Info("Dry run, trade not submitted",
			zap.Stringer("plan", opp.Plan),
			zap.String("flash_token", params.FlashToken.Hex()),
			zap.String("flash_amount", params.FlashAmount.String()),
			zap.String("arb_token", params.ArbToken.Hex()),
			zap.String("min_return", params.MinReturn.String()),
			zap.String("calldata", hexutil.Encode(calldata)))
		return &Receipt{Calldata: calldata, Params: *params, DryRun: true}, nil
	}

	tx, err := e.buildTransaction(ctx, calldata)
	if err != nil {
		return nil, e.fail(err)
	}

	if err := e.simulate(ctx, tx); err != nil {
		return nil, e.fail(err)
	}

	if err := e.submitter.Submit(ctx, tx); err != nil {
		return nil, e.fail(&ExecutionError{Stage: StageSubmit, Err: err})
	}
	e.logger.Info("Submitted trade",
		zap.String("tx", tx.Hash().Hex()),
		zap.Stringer("submitter", e.submitter),
		zap.Uint64("nonce", tx.Nonce()),
		zap.String("gas_price", tx.GasPrice().String()))

	receipt := &Receipt{TxHash: tx.Hash(), Calldata: calldata, Params: *params}
	if !e.cfg.WaitForReceipt {
		e.metrics.Successes.Inc()
		return receipt, nil
	}

	waitCtx := ctx
	if e.cfg.ReceiptTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, e.cfg.ReceiptTimeout)
		defer cancel()
	}
	mined, err := bind.WaitMined(waitCtx, e.backend, tx)
	if err != nil {
		return nil, e.fail(&ExecutionError{Stage: StageReceipt, Err: err})
	}
	receipt.Mined = mined
	if mined.Status != ethtypes.ReceiptStatusSuccessful {
		return receipt, e.fail(&ExecutionError{
			Stage: StageReverted,
			Err:   fmt.Errorf("transaction %s reverted in block %s", tx.Hash().Hex(), mined.BlockNumber),
		})
	}

	e.logger.Info("Trade mined",
		zap.String("tx", tx.Hash().Hex()),
		zap.Uint64("gas_used", mined.GasUsed),
		zap.Stringer("block", mined.BlockNumber))
	e.metrics.Successes.Inc()
	return receipt, nil
}

func (e *Executor) buildParams(ctx context.Context, opp *types.ArbOpportunity) (*FlashloanParams, error) {
	if opp == nil || opp.Record.Order == nil || opp.Quote == nil {
		return nil, &ExecutionError{Stage: StageResolve, Err: fmt.Errorf("incomplete opportunity")}
	}
	order := opp.Record.Order

	base, decimals, err := e.assets.Asset(opp.Plan.Base)
	if err != nil {
		return nil, &ExecutionError{Stage: StageResolve, Err: err}
	}
	quote, _, err := e.assets.Asset(opp.Plan.Quote)
	if err != nil {
		return nil, &ExecutionError{Stage: StageResolve, Err: err}
	}

	flashAmount, err := utils.FromDisplay(e.cfg.FlashAmount, decimals)
	if err != nil {
		return nil, &ExecutionError{Stage: StageResolve, Err: err}
	}

	fill, err := zeroex.EncodeFillOrder(order, order.TakerAssetAmount, order.Signature)
	if err != nil {
		return nil, &ExecutionError{Stage: StageEncode, Err: err}
	}

	minReturn := MinReturn(opp.Quote.ReturnAmount, e.cfg.SlippageBps)
	distribution := opp.Quote.Distribution

	if e.cfg.Requote {
		output, _, err := e.assets.Asset(opp.Plan.Output)
		if err != nil {
			return nil, &ExecutionError{Stage: StageResolve, Err: err}
		}
		fresh, err := e.quotes.Quote(ctx, quote, output, order.MakerAssetAmount)
		if err != nil {
			return nil, &ExecutionError{Stage: StageRequote, Err: err}
		}
		if fresh.ReturnAmount.Cmp(minReturn) < 0 {
			return nil, &ExecutionError{
				Stage: StageRequote,
				Err:   fmt.Errorf("%w: fresh return %s below minimum %s", ErrProfitEvaporated, fresh.ReturnAmount, minReturn),
			}
		}
		distribution = fresh.Distribution
	}

	return &FlashloanParams{
		FlashToken:   base,
		FlashAmount:  flashAmount,
		ArbToken:     quote,
		ZrxData:      fill,
		MinReturn:    minReturn,
		Distribution: distribution,
	}, nil
}

func (e *Executor) buildTransaction(ctx context.Context, calldata []byte) (*ethtypes.Transaction, error) {
	nonce, err := e.backend.PendingNonceAt(ctx, e.sender)
	if err != nil {
		return nil, &ExecutionError{Stage: StageBuild, Err: fmt.Errorf("failed to get nonce: %w", err)}
	}
	gasPrice, err := e.gas.GasPrice(ctx)
	if err != nil {
		return nil, &ExecutionError{Stage: StageBuild, Err: err}
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &e.cfg.TraderContract,
		Value:    new(big.Int),
		Gas:      e.cfg.GasLimit,
		GasPrice: gasPrice,
		Data:     calldata,
	})

	signed, err := ethtypes.SignTx(tx, e.signer, e.key)
	if err != nil {
		return nil, &ExecutionError{Stage: StageSign, Err: err}
	}
	return signed, nil
}

func (e *Executor) simulate(ctx context.Context, tx *ethtypes.Transaction) error {
	if e.simulator == nil {
		return nil
	}
	res, err := e.simulator.Simulate(ctx, ethereum.CallMsg{
		From:     e.sender,
		To:       tx.To(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
		Value:    tx.Value(),
		Data:     tx.Data(),
	})
	if err != nil {
		return &ExecutionError{Stage: StageSimulate, Err: err}
	}
	if !res.Success {
		return &ExecutionError{Stage: StageSimulate, Err: fmt.Errorf("trade would fail: %w", res.Error)}
	}
	e.logger.Debug("Trade simulation passed", zap.Uint64("gas", res.GasUsed))
	return nil
}

func (e *Executor) fail(err error) error {
	stage := "unknown"
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		stage = execErr.Stage
	}
	e.metrics.Failures.WithLabelValues(stage).Inc()
	e.logger.Error("Trade execution failed", zap.String("stage", stage), zap.Error(err))
	return err
}
