package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/orderarb/config"
)

// The relay only uses this key to identify the searcher; it never holds funds.
var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a Flashbots authentication key",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := crypto.GenerateKey()
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s=0x%x\n", config.EnvFlashbotsKey, crypto.FromECDSA(key))
		fmt.Fprintf(out, "Address: %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
