package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvRPCURL          = "RPC_URL"
	EnvPrivateKey      = "PRIVATE_KEY"
	EnvFlashbotsKey    = "FLASHBOTS_KEY"
	EnvAddress         = "ADDRESS"
	EnvContractAddress = "CONTRACT_ADDRESS"
	EnvEstimatedGas    = "ESTIMATED_GAS"
	EnvGasPrice        = "GAS_PRICE" // gwei
	EnvGasLimit        = "GAS_LIMIT"
	EnvPollingInterval = "POLLING_INTERVAL" // milliseconds
	EnvZrxAPIURL       = "ZRX_API_URL"
	EnvFlashbotsRelay  = "FLASHBOTS_RELAY"
)

// LoadEnv loads environment variables from .env file
func LoadEnv() error {
	return godotenv.Load()
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// ApplyEnv overrides file values with the environment.
func (c *Config) ApplyEnv() error {
	c.Network.RPCEndpoint = GetEnvWithDefault(EnvRPCURL, c.Network.RPCEndpoint)
	c.Network.FlashbotsRelay = GetEnvWithDefault(EnvFlashbotsRelay, c.Network.FlashbotsRelay)
	c.OrderBook.APIURL = GetEnvWithDefault(EnvZrxAPIURL, c.OrderBook.APIURL)
	c.Trade.SenderAddress = GetEnvWithDefault(EnvAddress, c.Trade.SenderAddress)
	c.Trade.TraderContract = GetEnvWithDefault(EnvContractAddress, c.Trade.TraderContract)
	c.Gas.GasPriceGwei = GetEnvWithDefault(EnvGasPrice, c.Gas.GasPriceGwei)

	if v := os.Getenv(EnvEstimatedGas); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvEstimatedGas, err)
		}
		c.Gas.EstimatedGas = n
	}
	if v := os.Getenv(EnvGasLimit); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvGasLimit, err)
		}
		c.Gas.GasLimit = n
	}
	if v := os.Getenv(EnvPollingInterval); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPollingInterval, err)
		}
		c.PollingInterval = time.Duration(ms) * time.Millisecond
	}

	return nil
}
