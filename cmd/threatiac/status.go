package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hakim/threatiac/internal/models"
	"github.com/hakim/threatiac/internal/report"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [scan-id]",
	Short: "Show one scan or the most recent scans",
	Long: `With a scan id, print that scan's status and results.
Without one, display a table of recent scans, newest first.

Use --limit to cap the number of rows shown (default: 10) and --json to print
the stored record as-is.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Step 1: Get flags
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		// Step 2: Config check
		if err := requireConfig(); err != nil {
			return err
		}

		// Step 3: Open bbolt store
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		// Step 4: Single scan
		if len(args) == 1 {
			scan, err := store.GetScan(args[0])
			if err != nil {
				return fmt.Errorf("reading scan %s: %w", args[0], err)
			}
			if scan == nil {
				return fmt.Errorf("scan %s not found", args[0])
			}
			if asJSON {
				return printJSON(scan)
			}
			report.PrintSummary(os.Stdout, scan)
			return nil
		}

		// Step 5: List scans (sorted newest-first by store.ListScans)
		scans, err := store.ListScans(limit)
		if err != nil {
			return fmt.Errorf("listing scans: %w", err)
		}
		if asJSON {
			return printJSON(scans)
		}

		if len(scans) == 0 {
			fmt.Println("No scans recorded yet")
			return nil
		}

		// Step 6: Print formatted table
		const separator = "────────────────────────────────────────────────────────────────────────"

		fmt.Printf("\nScan History\n")
		fmt.Println(separator)
		fmt.Printf("  %-3s  %-16s  %-20s  %-10s  %-9s  %s\n", "#", "Scan ID", "Created", "Status", "Resources", "Worst")
		fmt.Println(separator)

		for i, scan := range scans {
			fmt.Printf("  %-3d  %-16s  %-20s  %-10s  %-9d  %s\n",
				i+1,
				shortScanID(scan.ID),
				scan.CreatedAt.UTC().Format("2006-01-02 15:04"),
				formatStatus(scan.Status),
				len(scan.Results),
				worstColumn(scan))
		}

		fmt.Println(separator)
		fmt.Printf("Total: %d scan(s)\n\n", len(scans))

		return nil
	},
}

// shortScanID returns the "scan-" prefix plus the first 8 characters of the
// UUID followed by "..." for compact table display.
func shortScanID(id string) string {
	if len(id) <= 13 {
		return id
	}
	return id[:13] + "..."
}

// formatStatus converts a ScanStatus to a consistent lowercase display string.
func formatStatus(s models.ScanStatus) string {
	switch s {
	case models.StatusCompleted:
		return "completed"
	case models.StatusFailed:
		return "failed"
	case models.StatusWorking:
		return "working"
	case models.StatusPending:
		return "pending"
	default:
		return string(s)
	}
}

// worstColumn returns "-" until a scan has completed.
func worstColumn(scan *models.Scan) string {
	if scan.Status != models.StatusCompleted {
		return "-"
	}
	return string(scan.WorstSeverity())
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	statusCmd.Flags().Int("limit", 10, "Maximum number of scans to display")
	statusCmd.Flags().Bool("json", false, "print raw JSON")
	rootCmd.AddCommand(statusCmd)
}
