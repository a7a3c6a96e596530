package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xraph/hookverify/signature"
)

type keygenOutput struct {
	KeyID      string            `json:"key_id"`
	PrivateKey string            `json:"private_key"`
	Bundle     map[string]string `json:"bundle"`
}

func newKeygenCmd() *cobra.Command {
	var bundleOut string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an Ed25519 signing key and its key bundle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kp, err := signature.GenerateKey()
			if err != nil {
				return err
			}
			out := keygenOutput{
				KeyID:      kp.ID,
				PrivateKey: kp.EncodedPrivate(),
				Bundle:     kp.Bundle(),
			}

			if bundleOut != "" {
				b, err := json.MarshalIndent(out.Bundle, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(bundleOut, b, 0o644); err != nil { //nolint:gosec // public keys only
					return fmt.Errorf("write bundle: %w", err)
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&bundleOut, "bundle-out", "", "also write the public key bundle to this file")
	return cmd
}
