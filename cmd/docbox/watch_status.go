package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/docboxhq/docbox/internal/client/config"
)

func init() {
	rootCmd.AddCommand(newWatchStatusCmd())
}

func newWatchStatusCmd() *cobra.Command {
	watchCmd := &cobra.Command{
		Use:   "watch-status",
		Short: "Continuously poll the local control plane /v1/status",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			interval, _ := cmd.Flags().GetDuration("interval")
			raw, _ := cmd.Flags().GetBool("raw")

			clientURL := viper.GetString("client_url")
			if clientURL == "" {
				clientURL = config.DefaultClientURL
			}
			clientToken := viper.GetString("client_token")

			statusURL := fmt.Sprintf("%s/v1/status", clientURL)
			httpClient := &http.Client{Timeout: 5 * time.Second}

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case <-ticker.C:
					req, _ := http.NewRequestWithContext(cmd.Context(), http.MethodGet, statusURL, nil)
					if clientToken != "" {
						req.Header.Set("Authorization", "Bearer "+clientToken)
					}
					resp, err := httpClient.Do(req)
					if err != nil {
						fmt.Fprintf(os.Stderr, "%s ERROR %v\n", time.Now().UTC().Format(time.RFC3339), err)
						continue
					}
					body, _ := io.ReadAll(resp.Body)
					resp.Body.Close()

					if raw {
						fmt.Printf("%s\n", body)
						continue
					}

					var v any
					if err := json.Unmarshal(body, &v); err != nil {
						fmt.Printf("%s\n", body)
						continue
					}
					pretty, _ := json.MarshalIndent(v, "", "  ")
					fmt.Printf("%s\n", pretty)
				}
			}
		},
	}

	watchCmd.Flags().Duration("interval", 1*time.Second, "poll interval")
	watchCmd.Flags().Bool("raw", false, "print raw json without pretty formatting")

	return watchCmd
}
