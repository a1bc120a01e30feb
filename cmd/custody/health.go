package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/custody/pkg/catalog"
)

// NewHealthCommand creates the health command.
func NewHealthCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check database, content store and ledger connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, profile, logger, err := loadSettings(rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg, profile, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			report := a.catalog.Health(cmd.Context())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if report.Status == catalog.StatusUnhealthy {
				return fmt.Errorf("custody is %s", report.Status)
			}
			return nil
		},
	}
}
