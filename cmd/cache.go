package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/codereview/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the LLM response cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached LLM response",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cacheClearRun()
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func cacheClearRun() error {
	dir := viper.GetString("llm.cache.dir")
	if dryRun {
		ui.DryRunMsg("Would clear response cache at %s", dir)
		return nil
	}
	c, err := cache.New(dir, viper.GetDuration("llm.cache.ttl"))
	if err != nil {
		return err
	}
	n, err := c.Clear()
	if err != nil {
		return err
	}
	ui.Success("Removed %d cached response(s) from %s", n, dir)
	return nil
}
