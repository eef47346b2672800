package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"

	"github.com/michaelpento.lv/orderarb/types"
	"github.com/michaelpento.lv/orderarb/utils"
)

const DefaultConfigFile = "config.yaml"

// Selection policies for the scanner.
const (
	SelectionFirst = "first"
	SelectionBest  = "best"
)

// Gas price sources.
const (
	GasSourceStatic = "static"
	GasSourceNode   = "node"
)

// Trade submitters.
const (
	SubmitterRPC       = "rpc"
	SubmitterFlashbots = "flashbots"
)

type Config struct {
	Network         NetworkConfig          `yaml:"network"`
	PollingInterval time.Duration          `yaml:"polling_interval"`
	Assets          map[string]AssetConfig `yaml:"assets"`
	Pairs           []PairConfig           `yaml:"pairs"`
	OrderBook       OrderBookConfig        `yaml:"order_book"`
	OneSplit        OneSplitConfig         `yaml:"one_split"`
	Gas             GasConfig              `yaml:"gas"`
	Trade           TradeConfig            `yaml:"trade"`
	Scan            ScanConfig             `yaml:"scan"`
	Monitoring      MonitoringConfig       `yaml:"monitoring"`
}

type NetworkConfig struct {
	RPCEndpoint    string `yaml:"rpc_endpoint"`
	ChainID        int64  `yaml:"chain_id"`
	FlashbotsRelay string `yaml:"flashbots_relay"`
}

type AssetConfig struct {
	Address  string `yaml:"address"`
	Decimals int32  `yaml:"decimals"`
}

type PairConfig struct {
	Base  string `yaml:"base"`
	Quote string `yaml:"quote"`
}

type OrderBookConfig struct {
	APIURL    string          `yaml:"api_url"`
	PerPage   int             `yaml:"per_page"`
	MaxPages  int             `yaml:"max_pages"`
	Timeout   time.Duration   `yaml:"timeout"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	BurstSize         int           `yaml:"burst_size"`
	WaitTimeout       time.Duration `yaml:"wait_timeout"`
}

type OneSplitConfig struct {
	Address string `yaml:"address"`
	Parts   int64  `yaml:"parts"`
	Flags   int64  `yaml:"flags"`
}

type GasConfig struct {
	EstimatedGas uint64 `yaml:"estimated_gas"`
	GasPriceGwei string `yaml:"gas_price_gwei"`
	GasLimit     uint64 `yaml:"gas_limit"`
	Source       string `yaml:"source"` // static or node
}

type TradeConfig struct {
	TraderContract      string        `yaml:"trader_contract"`
	SenderAddress       string        `yaml:"sender_address"`
	FlashAmount         string        `yaml:"flash_amount"` // display units of the base asset
	SlippageBps         int64         `yaml:"slippage_bps"`
	DryRun              bool          `yaml:"dry_run"`
	RequoteBeforeSubmit bool          `yaml:"requote_before_submit"`
	SimulateBeforeSend  bool          `yaml:"simulate_before_send"`
	WaitForReceipt      bool          `yaml:"wait_for_receipt"`
	ReceiptTimeout      time.Duration `yaml:"receipt_timeout"`
	Submitter           string        `yaml:"submitter"` // rpc or flashbots
}

type ScanConfig struct {
	Selection     string `yaml:"selection"` // first or best
	DedupCapacity int    `yaml:"dedup_capacity"`
	MinProfitWei  string `yaml:"min_profit_wei"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool   `yaml:"prometheus_enabled"`
	PrometheusListen  string `yaml:"prometheus_listen"`
	Debug             bool   `yaml:"debug"`
}

// SecureConfig holds credentials that only ever come from the environment.
type SecureConfig struct {
	PrivateKey   string
	FlashbotsKey string
}

func (c *Config) ValidateConfig() error {
	var errs []string

	if c.Network.RPCEndpoint == "" {
		errs = append(errs, "network.rpc_endpoint must be specified")
	}
	if c.Network.ChainID <= 0 {
		errs = append(errs, "network.chain_id must be positive")
	}
	if c.PollingInterval <= 0 {
		errs = append(errs, "polling_interval must be positive")
	}

	if len(c.Assets) == 0 {
		errs = append(errs, "at least one asset must be configured")
	}
	for _, symbol := range sortedSymbols(c.Assets) {
		asset := c.Assets[symbol]
		if !common.IsHexAddress(asset.Address) {
			errs = append(errs, fmt.Sprintf("asset %s has invalid address %q", symbol, asset.Address))
		}
		if asset.Decimals < 0 || asset.Decimals > 36 {
			errs = append(errs, fmt.Sprintf("asset %s has invalid decimals %d", symbol, asset.Decimals))
		}
	}

	if len(c.Pairs) == 0 {
		errs = append(errs, "at least one pair must be configured")
	}
	for _, p := range c.Pairs {
		if _, ok := c.Assets[p.Base]; !ok {
			errs = append(errs, fmt.Sprintf("pair %s/%s references unknown asset %s", p.Base, p.Quote, p.Base))
		}
		if _, ok := c.Assets[p.Quote]; !ok {
			errs = append(errs, fmt.Sprintf("pair %s/%s references unknown asset %s", p.Base, p.Quote, p.Quote))
		}
		if p.Base == p.Quote {
			errs = append(errs, fmt.Sprintf("pair %s/%s must use two different assets", p.Base, p.Quote))
		}
	}

	if err := c.OrderBook.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("order book config error: %v", err))
	}
	if !common.IsHexAddress(c.OneSplit.Address) {
		errs = append(errs, "one_split.address must be a valid address")
	}
	if err := c.Gas.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("gas config error: %v", err))
	}
	if err := c.Trade.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("trade config error: %v", err))
	}
	if err := c.Scan.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("scan config error: %v", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (o *OrderBookConfig) Validate() error {
	if o.APIURL == "" {
		return fmt.Errorf("api url must be specified")
	}
	if o.PerPage <= 0 {
		return fmt.Errorf("per page must be positive")
	}
	if o.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	return o.RateLimit.Validate()
}

func (r *RateLimitConfig) Validate() error {
	if r.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive")
	}
	if r.BurstSize <= 0 {
		return fmt.Errorf("burst size must be positive")
	}
	if r.WaitTimeout <= 0 {
		return fmt.Errorf("wait timeout must be positive")
	}

	return nil
}

func (g *GasConfig) Validate() error {
	if g.EstimatedGas == 0 {
		return fmt.Errorf("estimated gas must be positive")
	}
	if g.GasLimit == 0 {
		return fmt.Errorf("gas limit must be positive")
	}
	switch g.Source {
	case GasSourceStatic:
		if _, err := utils.FromDisplay(g.GasPriceGwei, utils.GweiDecimals); err != nil {
			return fmt.Errorf("gas price: %w", err)
		}
	case GasSourceNode:
	default:
		return fmt.Errorf("unknown gas price source %q", g.Source)
	}
	return nil
}

func (t *TradeConfig) Validate() error {
	if t.SlippageBps < 0 || t.SlippageBps >= 10000 {
		return fmt.Errorf("slippage bps must be in [0, 10000)")
	}
	if _, err := utils.FromDisplay(t.FlashAmount, 0); err != nil {
		return fmt.Errorf("flash amount: %w", err)
	}
	if t.DryRun {
		return nil
	}
	if !common.IsHexAddress(t.TraderContract) {
		return fmt.Errorf("trader contract must be a valid address")
	}
	switch t.Submitter {
	case SubmitterRPC, SubmitterFlashbots:
	default:
		return fmt.Errorf("unknown submitter %q", t.Submitter)
	}
	return nil
}

func (s *ScanConfig) Validate() error {
	switch s.Selection {
	case SelectionFirst, SelectionBest:
	default:
		return fmt.Errorf("unknown selection policy %q", s.Selection)
	}
	if s.DedupCapacity <= 0 {
		return fmt.Errorf("dedup capacity must be positive")
	}
	if s.MinProfitWei != "" {
		if _, ok := new(big.Int).SetString(s.MinProfitWei, 10); !ok {
			return fmt.Errorf("invalid min profit %q", s.MinProfitWei)
		}
	}
	return nil
}

// Asset resolves a configured symbol.
func (c *Config) Asset(symbol string) (common.Address, int32, error) {
	asset, ok := c.Assets[symbol]
	if !ok {
		return common.Address{}, 0, fmt.Errorf("unknown asset %s", symbol)
	}
	return common.HexToAddress(asset.Address), asset.Decimals, nil
}

// PairPlans returns the configured pairs as closed round trips, in order.
func (c *Config) PairPlans() []types.AssetPairPlan {
	plans := make([]types.AssetPairPlan, 0, len(c.Pairs))
	for _, p := range c.Pairs {
		plans = append(plans, types.NewRoundTrip(p.Base, p.Quote))
	}
	return plans
}

// GasPriceWei returns the static gas price.
func (c *Config) GasPriceWei() (*big.Int, error) {
	return utils.FromDisplay(c.Gas.GasPriceGwei, utils.GweiDecimals)
}

// MinProfit returns the configured profit floor, zero when unset.
func (c *Config) MinProfit() *big.Int {
	v, ok := new(big.Int).SetString(c.Scan.MinProfitWei, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

func LoadConfig(cfgFile string) (*Config, error) {
	config := DefaultConfig()

	if cfgFile == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			cfgFile = DefaultConfigFile
		}
	}

	if cfgFile != "" {
		data, err := os.ReadFile(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// JSON documents are valid YAML, so both formats load here.
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}

	// Validate configuration
	if err := config.ValidateConfig(); err != nil {
		return nil, err
	}

	return config, nil
}

func LoadSecureConfig() (*SecureConfig, error) {
	privateKey, err := GetRequiredEnv(EnvPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("private key not found: %w", err)
	}

	return &SecureConfig{
		PrivateKey:   strings.TrimPrefix(privateKey, "0x"),
		FlashbotsKey: strings.TrimPrefix(os.Getenv(EnvFlashbotsKey), "0x"),
	}, nil
}

func SaveConfig(cfg *Config, cfgFile string) error {
	if cfgFile == "" {
		cfgFile = DefaultConfigFile
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(cfgFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Network: NetworkConfig{
			RPCEndpoint:    "http://localhost:8545",
			ChainID:        1,
			FlashbotsRelay: "https://relay.flashbots.net",
		},
		PollingInterval: 3 * time.Second,
		// https://api.1inch.exchange/v1.1/tokens
		Assets: map[string]AssetConfig{
			"DAI":  {Address: "0x6b175474e89094c44da98b954eedeac495271d0f", Decimals: 18},
			"WETH": {Address: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", Decimals: 18},
			"SAI":  {Address: "0x89d24a6b4ccb1b6faa2625fe562bdd9a23260359", Decimals: 18},
			"USDC": {Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Decimals: 6},
		},
		Pairs: []PairConfig{
			{Base: "WETH", Quote: "DAI"},
			{Base: "DAI", Quote: "WETH"},
			{Base: "SAI", Quote: "WETH"},
			{Base: "WETH", Quote: "SAI"},
			{Base: "USDC", Quote: "WETH"},
			{Base: "WETH", Quote: "USDC"},
		},
		OrderBook: OrderBookConfig{
			APIURL:   "https://api.0x.org",
			PerPage:  1000,
			MaxPages: 5,
			Timeout:  10 * time.Second,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 3,
				BurstSize:         3,
				WaitTimeout:       5 * time.Second,
			},
		},
		OneSplit: OneSplitConfig{
			Address: "0xC586BeF4a0992C495Cf22e1aeEE4E446CECDee0E",
			Parts:   10,
			Flags:   0,
		},
		Gas: GasConfig{
			EstimatedGas: 500000,
			GasPriceGwei: "20",
			GasLimit:     3000000,
			Source:       GasSourceStatic,
		},
		Trade: TradeConfig{
			FlashAmount:        "10000",
			SlippageBps:        50,
			SimulateBeforeSend: true,
			WaitForReceipt:     true,
			ReceiptTimeout:     5 * time.Minute,
			Submitter:          SubmitterRPC,
		},
		Scan: ScanConfig{
			Selection:     SelectionFirst,
			DedupCapacity: 100000,
		},
		Monitoring: MonitoringConfig{
			PrometheusEnabled: false,
			PrometheusListen:  ":9100",
		},
	}
}

func sortedSymbols(assets map[string]AssetConfig) []string {
	symbols := make([]string, 0, len(assets))
	for s := range assets {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

var errMissingEnv = errors.New("required environment variable not set")

func GetRequiredEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%w: %s", errMissingEnv, key)
	}
	return value, nil
}
