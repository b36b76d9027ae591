package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/yairfalse/reaper/ledger"
)

var (
	reportType   string
	reportFormat string
	reportLedger string
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show recorded decisions and sweep history",
	Long: `Read the local ledger and report what the reaper has decided.

Two report types:
- decisions: the latest recorded decision per instance
- sweeps: one row per sweep run with its totals`,
	Example: `  reaper report                       # Latest decision per instance
  reaper report --type sweeps         # Sweep run history
  reaper report --format json         # Machine-readable output
  reaper report --ledger ./ledger.db  # Read a specific ledger file`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVarP(&reportType, "type", "t", "decisions", "Report type: decisions, sweeps")
	reportCmd.Flags().StringVarP(&reportFormat, "format", "f", "table", "Output format: table, json")
	reportCmd.Flags().StringVarP(&reportLedger, "ledger", "l", "", "Ledger path (overrides config)")
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadReportConfig()
	if err != nil {
		return err
	}

	book, err := ledger.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer func() { _ = book.Close() }()

	switch reportType {
	case "decisions":
		return reportDecisions(book)
	case "sweeps":
		return reportSweeps(book)
	default:
		return fmt.Errorf("invalid report type: %s (must be decisions or sweeps)", reportType)
	}
}

func loadReportConfig() (string, error) {
	if reportLedger != "" {
		return reportLedger, nil
	}
	cfg, err := loadConfigOnly()
	if err != nil {
		return "", err
	}
	return cfg.LedgerPath, nil
}

func reportDecisions(book *ledger.Ledger) error {
	records := book.List()

	if reportFormat == "json" {
		return printJSON(records)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Instance", "Action", "Reason", "Expiry", "Mode", "Rev", "Updated")

	for _, record := range records {
		expiry := "-"
		if !record.Expiry.IsZero() {
			expiry = record.Expiry.UTC().Format(time.RFC3339)
		}
		mode := "live"
		if record.DryRun {
			mode = "dry-run"
		}
		table.Append(
			record.InstanceID,
			record.Action,
			string(record.Reason),
			expiry,
			mode,
			fmt.Sprintf("%d", record.SweepRev),
			record.UpdatedAt.UTC().Format(time.RFC3339),
		)
	}

	table.Render()
	fmt.Printf("\n%d instance(s)\n", len(records))
	return nil
}

func reportSweeps(book *ledger.Ledger) error {
	sweeps, err := book.Sweeps()
	if err != nil {
		return fmt.Errorf("failed to read sweep history: %w", err)
	}

	if reportFormat == "json" {
		return printJSON(sweeps)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Rev", "Started", "Duration", "Scanned", "Terminated", "Anomalous", "Failed", "Mode")

	for _, sweep := range sweeps {
		mode := "dry-run"
		if sweep.LiveMode {
			mode = "live"
		}
		table.Append(
			fmt.Sprintf("%d", sweep.Rev),
			sweep.StartedAt.UTC().Format(time.RFC3339),
			fmt.Sprintf("%.1fs", sweep.Duration),
			fmt.Sprintf("%d", sweep.Scanned),
			fmt.Sprintf("%d", sweep.Terminated),
			fmt.Sprintf("%d", sweep.Anomalous),
			fmt.Sprintf("%d", sweep.Failed),
			mode,
		)
	}

	table.Render()
	fmt.Printf("\n%d sweep(s)\n", len(sweeps))
	return nil
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
