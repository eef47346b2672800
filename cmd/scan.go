package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/orderarb/utils"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a single dry-run scan cycle and print the opportunity found",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()

		cfg, err := loadConfig(log)
		if err != nil {
			return err
		}

		b, closeNode, err := newBot(cmd.Context(), cfg, true, nil, log)
		if err != nil {
			return err
		}
		defer closeNode()

		opp, receipt, err := b.RunOnce(cmd.Context())
		if err != nil {
			log.Error("Scan failed", zap.Error(err))
			return err
		}

		out := cmd.OutOrStdout()
		if opp == nil {
			fmt.Fprintf(out, "No profitable order found (%d orders evaluated)\n", b.Session().Len())
			return nil
		}

		_, decimals, err := cfg.Asset(opp.Plan.Base)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Pair:        %s\n", opp.Plan)
		fmt.Fprintf(out, "Order:       %s\n", opp.Record.Metadata.OrderHash.Hex())
		fmt.Fprintf(out, "Fee:         %s\n", opp.Fee)
		fmt.Fprintf(out, "Input:       %s %s\n", utils.FormatTokens(opp.Input, decimals), opp.Plan.Base)
		fmt.Fprintf(out, "Output:      %s %s\n", utils.FormatTokens(opp.Output, decimals), opp.Plan.Output)
		fmt.Fprintf(out, "Gas fee:     %s %s\n", utils.FormatTokens(opp.GasFee, decimals), opp.Plan.Base)
		fmt.Fprintf(out, "Net profit:  %s %s\n", utils.FormatTokens(opp.NetProfit, decimals), opp.Plan.Base)
		if receipt != nil {
			fmt.Fprintf(out, "Min return:  %s\n", receipt.Params.MinReturn)
			fmt.Fprintf(out, "Calldata:    0x%x\n", receipt.Calldata)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
