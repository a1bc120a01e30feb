package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/custody/pkg/config"
	"github.com/Mindburn-Labs/custody/pkg/guard"
)

// NewKeygenCommand creates the keygen command.
func NewKeygenCommand() *cobra.Command {
	var (
		path  string
		keyID string
		env   bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create a master keystore",
		Long: `Create a master keystore for SECRET_SOURCE=file.

With --env, print a base64 key for CUSTODY_MASTER_KEY instead of writing a file.
An existing keystore is never overwritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if env {
				key := make([]byte, guard.MinKeyLen)
				if _, err := rand.Read(key); err != nil {
					return err
				}
				_, err := fmt.Fprintf(out, "CUSTODY_MASTER_KEY=%s\nCUSTODY_MASTER_KEY_ID=%s\n", base64.StdEncoding.EncodeToString(key), keyID)
				return err
			}
			if path == "" {
				path = config.Load().Secrets.KeystorePath
			}
			if err := guard.GenerateKeystore(path, keyID); err != nil {
				return err
			}
			_, err := fmt.Fprintf(out, "keystore written to %s (active key %s)\n", path, keyID)
			return err
		},
	}
	cmd.Flags().StringVar(&path, "keystore", "", "keystore path (default $CUSTODY_KEYSTORE or $DATA_DIR/keystore.json)")
	cmd.Flags().StringVar(&keyID, "key-id", "k1", "identifier of the generated key")
	cmd.Flags().BoolVar(&env, "env", false, "print an environment key instead of writing a keystore")
	return cmd
}
