package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chrisx599/ChatEmail/internal/batch"
	"github.com/chrisx599/ChatEmail/internal/export"
	"github.com/chrisx599/ChatEmail/internal/storage/models"
)

var (
	analyzeFetch   bool
	analyzeRefresh bool
	analyzeExport  string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch emails from the configured mailbox into the local cache",
	Args:  cobra.NoArgs,
	RunE:  runFetch,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze the cached emails as one batch",
	Long: `Analyze ranks the cached emails by priority, extracts and deduplicates
calendar events and builds the category report.

Emails whose analysis is already cached are not sent to the model again
unless --refresh is given.`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeFetch, "fetch", false, "Fetch new emails before analyzing")
	analyzeCmd.Flags().BoolVar(&analyzeRefresh, "refresh", false, "Ignore cached analyses")
	analyzeCmd.Flags().StringVar(&analyzeExport, "export", "", "Also export the result (json, csv, txt, html, pdf)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	emails, err := application.Fetcher.FetchEmails(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch emails: %w", err)
	}
	if err := application.Cache.Emails.SaveEmails(ctx, emails); err != nil {
		return fmt.Errorf("failed to cache emails: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Fetched %d email(s)\n", len(emails))
	for _, e := range emails {
		fmt.Fprintf(out, "  %s  %s  (%s)\n", e.ID, e.Subject, e.From)
	}
	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		select {
		case <-sig:
			cancel()
		case <-ctx.Done():
		}
	}()

	var format export.Format
	if analyzeExport != "" {
		f, err := export.ParseFormat(analyzeExport)
		if err != nil {
			return err
		}
		format = f
	}

	if analyzeFetch {
		if err := runFetch(cmd, args); err != nil {
			return err
		}
	}

	emails := application.Cache.Emails.GetEmails(ctx)

	out := cmd.OutOrStdout()
	opts := []batch.RunOption{batch.WithProgress(func(p batch.Progress) {
		fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] %s (%s)\n", p.Completed, p.Total, p.EmailID, p.Source)
	})}
	if analyzeRefresh {
		opts = append(opts, batch.WithRefresh())
	}

	snap, err := application.Orchestrator.Run(ctx, emails, opts...)
	if err != nil {
		return fmt.Errorf("batch analysis failed: %w", err)
	}

	printSnapshot(cmd, snap)

	if format != "" {
		path, err := writeExport(format, snap)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nExported to %s\n", path)
	}
	return nil
}

func printSnapshot(cmd *cobra.Command, snap *models.Snapshot) {
	out := cmd.OutOrStdout()
	source := "analyzed"
	if snap.FromCache {
		source = "from cache"
	}
	fmt.Fprintf(out, "Batch %s: %d email(s), %d event(s), %s\n\n",
		snap.BatchID, len(snap.AnalyzedEmails), len(snap.CalendarEvents), source)

	for i, e := range snap.AnalyzedEmails {
		fmt.Fprintf(out, "%2d. [%2d %-6s] %s  (%s)\n", i+1, e.Priority.Score, e.Priority.UrgencyLevel, e.Subject, e.From)
	}
	if len(snap.CalendarEvents) > 0 {
		fmt.Fprintln(out, "\nEvents:")
		for _, ev := range snap.CalendarEvents {
			fmt.Fprintf(out, "  %s %s  %s\n", ev.Date, ev.Time, ev.Title)
		}
	}
}
