package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-presence/internal/httpc"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var (
		url     string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the summary of a running instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				cfg, err := opts.load()
				if err != nil {
					return err
				}
				url = fmt.Sprintf("http://127.0.0.1:%d", cfg.APIPort)
			}
			endpoint := strings.TrimRight(url, "/") + "/api/summary"

			var summary map[string]any
			if err := httpc.GetJSON(cmd.Context(), httpc.NewClient(timeout), endpoint, &summary); err != nil {
				return fmt.Errorf("query %s: %w", endpoint, err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "base URL of the status API (default http://127.0.0.1:$API_PORT)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	return cmd
}
