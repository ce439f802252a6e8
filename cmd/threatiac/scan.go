package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hakim/threatiac/internal/models"
	"github.com/hakim/threatiac/internal/report"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan <plan.json>",
	Short: "Scan a plan inline and gate on the result",
	Long: `Run a full scan of a plan document in this process, without the queue.

The plan is stored and recorded exactly as 'threatiac submit' would, then
processed immediately. A summary is printed and a markdown report is written.

The command exits with status 2 when the worst resource score reaches
report.block_severity (or --block-severity), or when the scan fails, so it can
gate a CI pipeline.

Examples:
  terraform show -json tfplan > plan.json
  threatiac scan plan.json
  threatiac scan plan.json --preset reputation --block-severity CRITICAL
  threatiac scan plan.json --output reports/plan-risk.md`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// ── 1. Read all flags ──────────────────────────────────────────────────
		presetName, _ := cmd.Flags().GetString("preset")
		blockFlag, _ := cmd.Flags().GetString("block-severity")
		output, _ := cmd.Flags().GetString("output")
		noBlock, _ := cmd.Flags().GetBool("no-block")

		// ── 2. Config check ────────────────────────────────────────────────────
		if err := requireConfig(); err != nil {
			return err
		}

		threshold := cfg.BlockSeverity()
		if blockFlag != "" {
			sev, ok := models.ParseSeverity(blockFlag)
			if !ok {
				return fmt.Errorf("invalid --block-severity %q", blockFlag)
			}
			threshold = sev
		}

		preset, err := resolvePreset(presetName)
		if err != nil {
			return err
		}
		fmt.Printf("[*] Using preset: %s (%s)\n", preset.Name, preset.Description)

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading plan: %w", err)
		}

		// ── 3. Open stores ─────────────────────────────────────────────────────
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		artifacts, err := openArtifacts()
		if err != nil {
			return err
		}

		orch, err := buildOrchestrator(store, artifacts, preset)
		if err != nil {
			return err
		}

		// ── 4. Submit and process inline ───────────────────────────────────────
		ctx := context.Background()
		job, err := submitPlan(ctx, store, artifacts, data)
		if err != nil {
			return err
		}
		fmt.Printf("[*] Scan ID: %s\n", job.ScanID)

		if _, err := orch.ProcessScan(ctx, job); err != nil {
			return err
		}

		scan, err := store.GetScan(job.ScanID)
		if err != nil {
			return fmt.Errorf("reading scan %s: %w", job.ScanID, err)
		}
		if scan == nil {
			return fmt.Errorf("scan %s vanished from the database", job.ScanID)
		}

		// ── 5. Report ──────────────────────────────────────────────────────────
		fmt.Println()
		report.PrintSummary(os.Stdout, scan)

		if output == "" {
			output = filepath.Join(cfg.ArtifactDir, "reports", scan.ID+".md")
		}
		if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
			fmt.Printf("[!] Warning: could not create report directory: %v\n", err)
		} else if err := report.WriteScanReport(scan, output); err != nil {
			fmt.Printf("[!] Warning: failed to write report: %v\n", err)
		} else {
			fmt.Printf("[+] Report written to %s\n", output)
		}

		// ── 6. Gate ────────────────────────────────────────────────────────────
		if !noBlock && report.ShouldBlock(scan, threshold) {
			if scan.Status == models.StatusFailed {
				return fmt.Errorf("%w: scan failed: %s", errBlocked, scan.Error)
			}
			return fmt.Errorf("%w: worst severity %s reaches block threshold %s",
				errBlocked, scan.WorstSeverity(), threshold)
		}

		return nil
	},
}

func init() {
	scanCmd.Flags().String("preset", "", "feed preset (full, reputation, exposure, offline)")
	scanCmd.Flags().String("block-severity", "", "override report.block_severity")
	scanCmd.Flags().StringP("output", "o", "", "markdown report path (default: {artifact_dir}/reports/{scan_id}.md)")
	scanCmd.Flags().Bool("no-block", false, "always exit 0 when the scan completes")
	rootCmd.AddCommand(scanCmd)
}
