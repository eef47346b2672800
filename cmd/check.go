package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/orderarb/config"
	"github.com/michaelpento.lv/orderarb/utils"
)

var checkedEnv = []string{
	config.EnvRPCURL,
	config.EnvPrivateKey,
	config.EnvFlashbotsKey,
	config.EnvAddress,
	config.EnvContractAddress,
	config.EnvEstimatedGas,
	config.EnvGasPrice,
	config.EnvGasLimit,
	config.EnvPollingInterval,
	config.EnvZrxAPIURL,
	config.EnvFlashbotsRelay,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Show which environment variables are set and validate the configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cfg, err := loadConfig(utils.GetLogger())
		printEnv(out)
		if err != nil {
			fmt.Fprintf(out, "\nConfiguration invalid: %v\n", err)
			return err
		}
		printConfig(out, cfg)
		return nil
	},
}

func printEnv(out io.Writer) {
	fmt.Fprintln(out, "Environment:")
	for _, key := range checkedEnv {
		state := "unset"
		if os.Getenv(key) != "" {
			state = "set"
		}
		fmt.Fprintf(out, "  %-18s %s\n", key, state)
	}
}

func printConfig(out io.Writer, cfg *config.Config) {
	fmt.Fprintln(out, "\nConfiguration:")
	fmt.Fprintf(out, "  rpc endpoint:      %s\n", cfg.Network.RPCEndpoint)
	fmt.Fprintf(out, "  chain id:          %d\n", cfg.Network.ChainID)
	fmt.Fprintf(out, "  polling interval:  %s\n", cfg.PollingInterval)
	fmt.Fprintf(out, "  order book:        %s\n", cfg.OrderBook.APIURL)
	for _, plan := range cfg.PairPlans() {
		fmt.Fprintf(out, "  pair:              %s\n", plan)
	}
	fmt.Fprintf(out, "  selection:         %s\n", cfg.Scan.Selection)
	fmt.Fprintf(out, "  gas source:        %s\n", cfg.Gas.Source)
	fmt.Fprintf(out, "  trader contract:   %s\n", cfg.Trade.TraderContract)
	fmt.Fprintf(out, "  submitter:         %s\n", cfg.Trade.Submitter)
	fmt.Fprintf(out, "  dry run:           %t\n", cfg.Trade.DryRun)
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
