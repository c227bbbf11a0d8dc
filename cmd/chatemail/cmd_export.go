package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chrisx599/ChatEmail/internal/export"
	"github.com/chrisx599/ChatEmail/internal/storage/models"
)

var exportDir string

var exportCmd = &cobra.Command{
	Use:       "export <format>",
	Short:     "Export the latest cached batch report",
	Long:      "Export renders the cached batch as json, csv, txt, html or pdf. PDF is written as print-ready HTML.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"json", "csv", "txt", "html", "pdf"},
	RunE:      runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportDir, "out", "o", "", "Output directory (overrides export.dir)")
}

func runExport(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	snap, ok := application.Orchestrator.LoadCached(ctx)
	if !ok {
		return fmt.Errorf("no cached batch to export, run analyze first")
	}

	path, err := writeExport(format, snap)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func writeExport(format export.Format, snap *models.Snapshot) (string, error) {
	artifact, err := export.Export(format, snap, export.Options{
		GeneratedAt:    time.Now(),
		FilenamePrefix: application.Config.Export.FilenamePrefix,
	})
	if err != nil {
		return "", fmt.Errorf("failed to export: %w", err)
	}

	dir := exportDir
	if dir == "" {
		dir = application.Config.Export.Dir
	}
	return artifact.WriteTo(dir)
}
