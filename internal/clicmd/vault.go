package clicmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Vault-wide maintenance operations",
}

func init() {
	vaultCmd.AddCommand(vaultScanCmd)
}

var vaultScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Re-scan the vault, assigning identifiers to any note missing one",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Identity.ScanVault(context.Background(), a.Config.IdentityScanFanout)
		if err != nil {
			return err
		}
		fmt.Printf("%d identifiers assigned, %d preserved, %d skipped\n", report.Assigned, report.Preserved, report.Skipped)
		return nil
	},
}
