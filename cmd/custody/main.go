// Command custody runs the medical record custody service and its operator tooling.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/custody/pkg/config"
)

func main() {
	os.Exit(Run(os.Args[1:], os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing. It returns the process exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Profile string
}

// NewRootCommand creates the root command for the custody CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "custody",
		Short:         "Secure medical record custody",
		Long:          "Encrypts, stores and ledger-anchors medical records with owner-controlled sharing and a tamper-evident audit trail.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.Profile, "profile", "", "deployment profile YAML (overrides CUSTODY_PROFILE)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewKeygenCommand())
	cmd.AddCommand(NewHealthCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	return cmd
}

// loadSettings reads the environment and the deployment profile and installs the JSON logger.
func loadSettings(opts *RootOptions, stderr io.Writer) (*config.Config, *config.Profile, *slog.Logger, error) {
	cfg := config.Load()
	if opts.Profile != "" {
		cfg.ProfilePath = opts.Profile
	}
	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := newLogger(cfg.LogLevel, stderr)
	slog.SetDefault(logger)
	return cfg, profile, logger, nil
}

func newLogger(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
