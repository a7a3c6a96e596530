// Command hookverify verifies, signs and serves Ed25519-signed webhooks.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/xraph/hookverify/internal/config"
)

type app struct {
	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd(stderr io.Writer) *cobra.Command {
	a := &app{}
	var configPath, envFile string

	root := &cobra.Command{
		Use:           "hookverify",
		Short:         "Verify Ed25519-signed webhooks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, envFile)
			if err != nil {
				return err
			}
			if err := cfg.ApplyFlags(cmd.Flags()); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := cfg.NewLogger(stderr)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv(config.EnvPrefix+"CONFIG"), "path to a YAML config file (env HOOKVERIFY_CONFIG)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to a .env file")
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newVerifyCmd(a),
		newSignCmd(),
		newKeygenCmd(),
		newServeCmd(a),
	)
	return root
}

func main() {
	if err := newRootCmd(os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "hookverify:", err)
		os.Exit(1)
	}
}
