package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/hookverify/signature"
)

func newSignCmd() *cobra.Command {
	var (
		bodyFile string
		keyID    string
		key      string
		keyFile  string
		ts       int64
	)

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Produce a signature header for a body",
		RunE: func(cmd *cobra.Command, _ []string) error {
			encoded := key
			if keyFile != "" {
				b, err := os.ReadFile(keyFile)
				if err != nil {
					return fmt.Errorf("read private key: %w", err)
				}
				encoded = string(b)
			}
			if encoded == "" {
				return errors.New("one of --private-key or --private-key-file is required")
			}

			priv, err := signature.ParsePrivateKey(encoded)
			if err != nil {
				return err
			}
			s, err := signature.NewSigner(keyID, priv)
			if err != nil {
				return err
			}

			body, err := readBody(cmd, bodyFile)
			if err != nil {
				return fmt.Errorf("read body: %w", err)
			}
			if ts == 0 {
				ts = time.Now().Unix()
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.Sign(body, ts))
			return nil
		},
	}

	cmd.Flags().StringVar(&bodyFile, "body-file", "-", "file holding the raw body (- for stdin)")
	cmd.Flags().StringVar(&keyID, "key-id", "", "key id written into the header")
	cmd.Flags().StringVar(&key, "private-key", "", "base64 Ed25519 seed or private key")
	cmd.Flags().StringVar(&keyFile, "private-key-file", "", "file holding the base64 private key")
	cmd.Flags().Int64Var(&ts, "timestamp", 0, "unix timestamp to sign at (0 = now)")
	_ = cmd.MarkFlagRequired("key-id")
	return cmd
}
