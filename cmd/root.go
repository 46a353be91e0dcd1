package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgPath string

	rootCmd = &cobra.Command{
		Use:   "ledger",
		Short: "Field work completion ledger",
		Long: `Field work completion ledger service.

Functions:
- Resolve material dosage rules for planned field activities
- Manage activity plan approval and per-block area allocations
- Record work execution events with material consumption
- Publish completed execution events to the ERP feed`,
	}
)

// Execute executes the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".", "directory containing config.yaml")
}
