package cmd

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/orderarb/cmd/bot"
	"github.com/michaelpento.lv/orderarb/config"
	"github.com/michaelpento.lv/orderarb/utils"
)

// loadConfig reads .env, the config file and the environment overrides.
func loadConfig(log *zap.Logger) (*config.Config, error) {
	if err := config.LoadEnv(); err != nil {
		log.Debug("No .env file loaded", zap.Error(err))
	}
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	if cfg.Monitoring.Debug {
		utils.SetDebug(true)
	}
	return cfg, nil
}

// newBot dials the node and wires a bot. The returned func closes the node
// connection.
func newBot(ctx context.Context, cfg *config.Config, dryRun bool, reg prometheus.Registerer, log *zap.Logger) (*bot.Bot, func(), error) {
	opts := bot.Options{DryRun: dryRun, Registerer: reg}

	if !dryRun && !cfg.Trade.DryRun {
		secure, err := config.LoadSecureConfig()
		if err != nil {
			return nil, nil, err
		}
		opts.Key, err = crypto.HexToECDSA(secure.PrivateKey)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid %s: %w", config.EnvPrivateKey, err)
		}
		if secure.FlashbotsKey != "" {
			opts.FlashbotsKey, err = crypto.HexToECDSA(secure.FlashbotsKey)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid %s: %w", config.EnvFlashbotsKey, err)
			}
		}
	}

	client, err := ethclient.DialContext(ctx, cfg.Network.RPCEndpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Ethereum node: %w", err)
	}

	b, err := bot.New(cfg, client, opts, log)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return b, client.Close, nil
}
