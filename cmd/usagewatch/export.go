package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/j-veylop/usagewatch/internal/config"
	"github.com/j-veylop/usagewatch/internal/db"
	"github.com/j-veylop/usagewatch/internal/models"
)

// NewExportCommand builds the `export` command: dump a profile's recorded
// snapshots to stdout as JSON or CSV.
func NewExportCommand() *cobra.Command {
	var (
		profileID string
		windowArg string
		format    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export recorded usage history for a profile",
		RunE: func(_ *cobra.Command, _ []string) error {
			window, err := parseWindowArg(windowArg)
			if err != nil {
				return err
			}
			return runExport(profileID, window, format)
		},
	}

	cmd.Flags().StringVar(&profileID, "profile", "", "profile ID to export (required)")
	cmd.Flags().StringVar(&windowArg, "window", "", "restrict to one window: session, weekly or billingCycle (default: all)")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or csv")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

func parseWindowArg(arg string) (*models.WindowKind, error) {
	if arg == "" {
		return nil, nil
	}
	for _, kind := range models.WindowKinds {
		if arg == string(kind) {
			return &kind, nil
		}
	}
	return nil, fmt.Errorf("unknown window %q", arg)
}

func runExport(profileID string, window *models.WindowKind, format string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	database, err := db.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer func() { _ = database.Close() }()

	var out string
	switch format {
	case "json":
		out, err = database.ExportJSON(profileID, window)
	case "csv":
		out, err = database.ExportCSV(profileID, window)
	default:
		return fmt.Errorf("unknown format %q, want json or csv", format)
	}
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	fmt.Fprintln(os.Stdout, out)
	return nil
}
