package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/orderarb/utils"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "orderarb",
	Short: "A CLI bot arbitraging 0x order books against 1inch",
	Long: `A CLI bot that polls 0x order books for bids that can be filled and swapped
back through the 1inch OneSplit aggregator at a profit, and executes the best
one through a flash-loan trader contract.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file, YAML or JSON (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func initConfig() {
	utils.InitLogger(debug)
}
