package bot

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/orderarb/config"
	"github.com/michaelpento.lv/orderarb/flashbots"
	"github.com/michaelpento.lv/orderarb/flashloan"
	"github.com/michaelpento.lv/orderarb/gas"
	"github.com/michaelpento.lv/orderarb/orderbook"
	"github.com/michaelpento.lv/orderarb/quote"
	"github.com/michaelpento.lv/orderarb/scheduler"
	"github.com/michaelpento.lv/orderarb/simulator"
	"github.com/michaelpento.lv/orderarb/strategies/arbitrage"
	"github.com/michaelpento.lv/orderarb/types"
	"github.com/michaelpento.lv/orderarb/utils"
	"github.com/michaelpento.lv/orderarb/utils/metrics"
)

// Node is the Ethereum client the bot runs against. *ethclient.Client
// satisfies it.
type Node interface {
	bind.ContractCaller
	flashloan.Backend
	gas.PriceSuggester
	flashloan.TransactionSender
	simulator.Backend
}

// Options carry what does not belong in the config file.
type Options struct {
	// Key signs trades. Optional in dry-run mode.
	Key *ecdsa.PrivateKey
	// FlashbotsKey authenticates with the relay when the flashbots submitter
	// is configured.
	FlashbotsKey *ecdsa.PrivateKey
	// DryRun forces dry-run mode regardless of the config file.
	DryRun bool
	// Registerer receives the metric groups. Nil leaves them unregistered.
	Registerer prometheus.Registerer
}

// Bot represents the arbitrage bot instance
type Bot struct {
	cfg       *config.Config
	plans     []types.AssetPairPlan
	session   *arbitrage.ScanSession
	scanner   *arbitrage.Scanner
	executor  *flashloan.Executor
	scheduler *scheduler.Scheduler
	dryRun    bool
	logger    *zap.Logger
}

// New wires every component from cfg.
func New(cfg *config.Config, node Node, opts Options, logger *zap.Logger) (*Bot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if node == nil {
		return nil, fmt.Errorf("node client cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	dryRun := cfg.Trade.DryRun || opts.DryRun
	if !dryRun && opts.Key == nil {
		return nil, fmt.Errorf("private key is required unless running dry")
	}
	if opts.Key != nil && cfg.Trade.SenderAddress != "" {
		sender := crypto.PubkeyToAddress(opts.Key.PublicKey)
		if sender != common.HexToAddress(cfg.Trade.SenderAddress) {
			return nil, fmt.Errorf("private key belongs to %s, not the configured sender %s", sender.Hex(), cfg.Trade.SenderAddress)
		}
	}

	book, err := orderbook.NewClient(orderbook.Config{
		BaseURL:     cfg.OrderBook.APIURL,
		PerPage:     cfg.OrderBook.PerPage,
		MaxPages:    cfg.OrderBook.MaxPages,
		Timeout:     cfg.OrderBook.Timeout,
		RateLimit:   cfg.OrderBook.RateLimit.RequestsPerSecond,
		Burst:       cfg.OrderBook.RateLimit.BurstSize,
		WaitTimeout: cfg.OrderBook.RateLimit.WaitTimeout,
	}, logger.Named("orderbook"))
	if err != nil {
		return nil, fmt.Errorf("failed to create order book client: %w", err)
	}

	oneSplit, err := quote.NewOneSplit(
		common.HexToAddress(cfg.OneSplit.Address),
		node,
		cfg.OneSplit.Parts,
		cfg.OneSplit.Flags,
		logger.Named("quote"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create quote provider: %w", err)
	}

	estimator, err := newEstimator(cfg, node, logger.Named("gas"))
	if err != nil {
		return nil, fmt.Errorf("failed to create gas estimator: %w", err)
	}

	session, err := arbitrage.NewScanSession(cfg.Scan.DedupCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan session: %w", err)
	}

	scanMetrics := metrics.NewScanMetrics(opts.Registerer, metrics.Namespace)
	execMetrics := metrics.NewExecutionMetrics(opts.Registerer, metrics.Namespace)

	scanner, err := arbitrage.NewScanner(
		arbitrage.ScannerConfig{
			Selection: arbitrage.Selection(cfg.Scan.Selection),
			MinProfit: cfg.MinProfit(),
		},
		book,
		oneSplit,
		estimator,
		cfg,
		session,
		scanMetrics,
		logger.Named("scanner"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scanner: %w", err)
	}

	var submitter flashloan.Submitter
	if !dryRun {
		submitter, err = newSubmitter(cfg, node, opts.FlashbotsKey, logger.Named("submitter"))
		if err != nil {
			return nil, err
		}
	}

	executor, err := flashloan.NewExecutor(
		flashloan.Config{
			TraderContract: common.HexToAddress(cfg.Trade.TraderContract),
			ChainID:        big.NewInt(cfg.Network.ChainID),
			GasLimit:       cfg.Gas.GasLimit,
			FlashAmount:    cfg.Trade.FlashAmount,
			SlippageBps:    cfg.Trade.SlippageBps,
			DryRun:         dryRun,
			Requote:        cfg.Trade.RequoteBeforeSubmit,
			WaitForReceipt: cfg.Trade.WaitForReceipt,
			ReceiptTimeout: cfg.Trade.ReceiptTimeout,
		},
		node,
		submitter,
		estimator,
		oneSplit,
		cfg,
		opts.Key,
		execMetrics,
		logger.Named("executor"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trade executor: %w", err)
	}
	if cfg.Trade.SimulateBeforeSend {
		sim, err := simulator.NewSimulator(node, logger.Named("simulator"))
		if err != nil {
			return nil, fmt.Errorf("failed to create simulator: %w", err)
		}
		executor.SetSimulator(sim)
	}

	b := &Bot{
		cfg:      cfg,
		plans:    cfg.PairPlans(),
		session:  session,
		scanner:  scanner,
		executor: executor,
		dryRun:   dryRun,
		logger:   logger,
	}

	b.scheduler, err = scheduler.New(cfg.PollingInterval, b.Cycle, session, scanMetrics.DroppedTicks, logger.Named("scheduler"))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return b, nil
}

func newEstimator(cfg *config.Config, node Node, logger *zap.Logger) (*gas.Estimator, error) {
	if cfg.Gas.Source == config.GasSourceNode {
		return gas.NewNodeEstimator(node, cfg.Gas.EstimatedGas, logger)
	}
	price, err := cfg.GasPriceWei()
	if err != nil {
		return nil, err
	}
	return gas.NewStaticEstimator(price, cfg.Gas.EstimatedGas, logger)
}

func newSubmitter(cfg *config.Config, node Node, authKey *ecdsa.PrivateKey, logger *zap.Logger) (flashloan.Submitter, error) {
	if cfg.Trade.Submitter != config.SubmitterFlashbots {
		return flashloan.NewRPCSubmitter(node), nil
	}
	if authKey == nil {
		return nil, fmt.Errorf("flashbots submitter requires %s", config.EnvFlashbotsKey)
	}
	client, err := flashbots.NewClient(cfg.Network.FlashbotsRelay, authKey, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create flashbots client: %w", err)
	}
	return client, nil
}

// Session returns the scan session shared by the scanner and the scheduler.
func (b *Bot) Session() *arbitrage.ScanSession {
	return b.session
}

// State reports the scheduler state.
func (b *Bot) State() scheduler.State {
	return b.scheduler.State()
}

// DryRun reports whether trades are built without being sent, from either
// the config file or Options.DryRun.
func (b *Bot) DryRun() bool {
	return b.dryRun
}

// Run polls the order books until ctx is cancelled or a trade has been
// committed.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting arbitrage bot",
		zap.Int("pairs", len(b.plans)),
		zap.Duration("interval", b.cfg.PollingInterval),
		zap.String("selection", b.cfg.Scan.Selection),
		zap.Bool("dry_run", b.dryRun))

	if err := b.scheduler.Run(ctx); err != nil {
		return err
	}

	b.logger.Info("Arbitrage bot stopped",
		zap.Bool("committed", b.session.Committed()),
		zap.Int("orders_seen", b.session.Len()))
	return nil
}

// Cycle is the scheduler's unit of work.
func (b *Bot) Cycle(ctx context.Context) error {
	_, _, err := b.RunOnce(ctx)
	return err
}

// RunOnce scans every pair once and executes the committed opportunity, if
// any. A failed execution releases the latch so later cycles can commit again.
func (b *Bot) RunOnce(ctx context.Context) (*types.ArbOpportunity, *flashloan.Receipt, error) {
	opp, err := b.scanner.ScanOnce(ctx, b.plans)
	if err != nil {
		return nil, nil, err
	}
	if opp == nil {
		return nil, nil, nil
	}

	_, decimals, err := b.cfg.Asset(opp.Plan.Base)
	if err != nil {
		decimals = 18
	}
	b.logger.Info("Executing opportunity",
		zap.Stringer("plan", opp.Plan),
		zap.String("order", opp.Record.Metadata.OrderHash.Hex()),
		zap.String("input", utils.FormatTokens(opp.Input, decimals)),
		zap.String("output", utils.FormatTokens(opp.Output, decimals)),
		zap.String("net_profit", utils.FormatTokens(opp.NetProfit, decimals)),
		zap.Stringer("fee", opp.Fee))

	receipt, err := b.executor.Execute(ctx, opp)
	if err != nil {
		b.session.Release()
		return opp, receipt, fmt.Errorf("failed to execute opportunity on %s: %w", opp.Plan, err)
	}
	return opp, receipt, nil
}
