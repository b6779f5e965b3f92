package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/codereview/internal/llm"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the configured LLM endpoint answers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newLLMClient()
		if err != nil {
			return err
		}
		return pingRun(cmd.Context(), c)
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}

func pingRun(ctx context.Context, p interface{ Ping(context.Context) bool }) error {
	ctx = ctxOrBackground(ctx)
	timeout := time.Duration(viper.GetInt("request_timeout_seconds")) * time.Second
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	endpoint := viper.GetString("llm.base_url")
	if endpoint == "" {
		endpoint = llm.DefaultBaseURL
	}
	start := time.Now()
	if !p.Ping(ctx) {
		ui.Error("%s is not reachable", endpoint)
		return fmt.Errorf("llm endpoint unreachable")
	}
	ui.Success("%s answered in %s", endpoint, time.Since(start).Round(time.Millisecond))
	return nil
}
