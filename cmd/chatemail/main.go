package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/chrisx599/ChatEmail/internal/app"
	"github.com/chrisx599/ChatEmail/pkg/config"
	appLogger "github.com/chrisx599/ChatEmail/pkg/logger"
)

var (
	verbose    bool
	timeout    time.Duration
	sqlitePath string

	// application is built by the root pre-run and closed by execute.
	application *app.App
)

var rootCmd = &cobra.Command{
	Use:   "chatemail",
	Short: "Fetch, analyze and export email batches",
	Long: `chatemail fetches messages from an IMAP mailbox, ranks them with a
language model, extracts calendar events and exports the batch report.

Results are cached in a local SQLite store, so re-running a batch over the
same emails does not call the model again.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if sqlitePath != "" {
			cfg.SQLite.Path = sqlitePath
		}

		level := "warn"
		if verbose {
			level = "debug"
		}
		if err := appLogger.Init(level, "console", "stderr"); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		application, err = app.New(cmd.Context(), cfg)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Operation timeout")
	rootCmd.PersistentFlags().StringVar(&sqlitePath, "db", "", "Local store path (overrides sqlite.path)")

	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(cacheCmd)
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, timeout)
}

// execute runs the command tree and releases the application afterwards.
// Cobra skips post-run hooks when a command fails, so cleanup lives here.
func execute(ctx context.Context, args []string) error {
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)

	if application != nil {
		err = errors.Join(err, application.Close())
		application = nil
	}
	appLogger.Sync()
	return err
}

func main() {
	if err := execute(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
