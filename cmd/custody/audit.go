package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewAuditCommand creates the audit command group.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect record audit trails",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "verify <record-id>...",
		Short: "Recompute the audit hash chain of each record",
		Args:  cobra.MinimumNArgs(1),
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

			failed := 0
			for _, id := range args {
				if err := a.catalog.VerifyAuditChain(cmd.Context(), id); err != nil {
					failed++
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", id, err)
					continue
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "OK   %s\n", id)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d audit chains failed verification", failed, len(args))
			}
			return nil
		},
	})
	return cmd
}
