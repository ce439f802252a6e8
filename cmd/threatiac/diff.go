package main

import (
	"fmt"

	"github.com/hakim/threatiac/internal/diff"
	"github.com/hakim/threatiac/internal/models"
	"github.com/hakim/threatiac/internal/report"
	"github.com/hakim/threatiac/internal/storage"
	"github.com/spf13/cobra"
)

var diffCmd = &cobra.Command{
	Use:   "diff [previous-scan-id] [current-scan-id]",
	Short: "Compare two scans and report what changed",
	Long: `Compare two completed scans: resources that became risky, resources that
were resolved or removed, score changes, and findings that appeared or went away.

With no arguments the two most recent completed scans are compared. With one
argument that scan is compared against the completed scan recorded just before
it.

Use --output to write the markdown diff report to a file.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Step 1: Get flags
		output, _ := cmd.Flags().GetString("output")
		asJSON, _ := cmd.Flags().GetBool("json")

		// Step 2: Config check
		if err := requireConfig(); err != nil {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		// Step 3: Resolve both scans
		previous, current, err := resolveDiffScans(store, args)
		if err != nil {
			return err
		}
		if previous == nil {
			fmt.Printf("[!] No previous scan found for comparison\n")
			return nil
		}

		fmt.Printf("[*] Previous: %s (%d resources)\n", previous.ID, len(previous.Results))
		fmt.Printf("[*] Current:  %s (%d resources)\n", current.ID, len(current.Results))

		// Step 4: Compute diff
		result := diff.ComputeDiff(current, previous)

		if asJSON {
			return printJSON(result)
		}

		// Step 5: Print summary
		fmt.Printf("[+] Diff complete:\n")
		fmt.Printf("    Newly risky:        %d\n", len(result.NewlyRisky()))
		fmt.Printf("    Escalated:          %d\n", len(result.Escalated))
		fmt.Printf("    De-escalated:       %d\n", len(result.Deescalated))
		fmt.Printf("    Resources:          +%d / -%d\n", len(result.NewResources), len(result.RemovedResources))
		fmt.Printf("    Findings:           +%d / -%d\n", len(result.NewFindings), len(result.ResolvedFindings))

		// Step 6: Write report
		if output != "" {
			if err := report.WriteDiffReport(result, output); err != nil {
				return err
			}
			fmt.Printf("[+] Diff report: %s\n", output)
		}

		return nil
	},
}

// resolveDiffScans loads the scans named in args, filling in missing ones
// from history. previous is nil when history has nothing to compare against.
func resolveDiffScans(store *storage.Store, args []string) (previous, current *models.Scan, err error) {
	if len(args) == 2 {
		if previous, err = loadScan(store, args[0]); err != nil {
			return nil, nil, err
		}
		if current, err = loadScan(store, args[1]); err != nil {
			return nil, nil, err
		}
		return previous, current, nil
	}

	scans, err := store.ListScans(0)
	if err != nil {
		return nil, nil, fmt.Errorf("listing scans: %w", err)
	}
	var completed []*models.Scan
	for _, s := range scans {
		if s.Status == models.StatusCompleted {
			completed = append(completed, s)
		}
	}

	if len(args) == 1 {
		if current, err = loadScan(store, args[0]); err != nil {
			return nil, nil, err
		}
		for _, s := range completed {
			if s.ID != current.ID && s.CreatedAt.Before(current.CreatedAt) {
				return s, current, nil
			}
		}
		return nil, current, nil
	}

	if len(completed) == 0 {
		return nil, nil, fmt.Errorf("no completed scans. Run 'threatiac scan <plan.json>' first")
	}
	if len(completed) == 1 {
		return nil, completed[0], nil
	}
	return completed[1], completed[0], nil
}

func loadScan(store *storage.Store, id string) (*models.Scan, error) {
	scan, err := store.GetScan(id)
	if err != nil {
		return nil, fmt.Errorf("reading scan %s: %w", id, err)
	}
	if scan == nil {
		return nil, fmt.Errorf("scan %s not found", id)
	}
	return scan, nil
}

func init() {
	diffCmd.Flags().StringP("output", "o", "", "write the markdown diff report to this path")
	diffCmd.Flags().Bool("json", false, "print the diff as JSON")
	rootCmd.AddCommand(diffCmd)
}
