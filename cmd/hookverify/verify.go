package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func readBody(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func newVerifyCmd(a *app) *cobra.Command {
	var (
		bodyFile string
		header   string
		now      int64
		output   string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a webhook body against its signature header",
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := readBody(cmd, bodyFile)
			if err != nil {
				return fmt.Errorf("read body: %w", err)
			}

			v, cleanup, err := buildVerifier(cmd.Context(), a.cfg, a.logger, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			at := time.Now()
			if now != 0 {
				at = time.Unix(now, 0)
			}
			out := v.VerifyAt(cmd.Context(), body, header, at, 0)

			w := cmd.OutOrStdout()
			if output == "json" {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				if err := enc.Encode(out); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(w, "%s key_id=%s timestamp=%d id=%s\n", out.Reason, out.KeyID, out.Timestamp, out.ID)
			}

			if !out.Valid {
				return fmt.Errorf("verification failed: %s", out.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bodyFile, "body-file", "-", "file holding the raw body (- for stdin)")
	cmd.Flags().StringVar(&header, "header", "", "signature header value")
	cmd.Flags().Int64Var(&now, "now", 0, "verify as of this unix time (0 = current time)")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "text|json")
	_ = cmd.MarkFlagRequired("header")
	return cmd
}
