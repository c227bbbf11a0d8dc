package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chrisx599/ChatEmail/internal/storage/sqlite"
)

var clearMemo bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the local cache",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which collections hold data",
	Args:  cobra.NoArgs,
	RunE:  runCacheStatus,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [collection]",
	Short: "Clear one collection, or all of them",
	Long: `Clear empties the named collection (emails, batch_summary, analyzed_emails,
calendar_events) or, without an argument, every collection.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCacheClear,
}

func init() {
	cacheClearCmd.Flags().BoolVar(&clearMemo, "memo", false, "Also drop analyses shared through redis")
}

func runCacheStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	status := application.Cache.Status(ctx)
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(status)
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		coll, err := sqlite.ParseCollection(args[0])
		if err != nil {
			return err
		}
		if err := application.Cache.Clear(ctx, coll); err != nil {
			return fmt.Errorf("failed to clear %s: %w", coll, err)
		}
		fmt.Fprintf(out, "Cleared %s\n", coll)
	} else {
		if err := application.Cache.ClearAll(ctx); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		fmt.Fprintln(out, "Cleared all collections")
	}

	if clearMemo {
		n, err := application.InvalidateMemo(ctx)
		if err != nil {
			return fmt.Errorf("failed to clear shared analyses: %w", err)
		}
		fmt.Fprintf(out, "Dropped %d shared analyses\n", n)
	}
	return nil
}
