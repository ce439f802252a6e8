package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hakim/threatiac/internal/models"
	"github.com/hakim/threatiac/internal/storage"
	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit <plan.json>",
	Short: "Submit a plan for asynchronous scanning",
	Long: `Store a plan document, record a PENDING scan and put a job on the queue.

A running 'threatiac worker' picks the job up. Use 'threatiac status <scan-id>'
to follow it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireConfig(); err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading plan: %w", err)
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		artifacts, err := openArtifacts()
		if err != nil {
			return err
		}

		q, err := openQueue()
		if err != nil {
			return err
		}
		defer q.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		job, err := submitPlan(ctx, store, artifacts, data)
		if err != nil {
			return err
		}

		if err := q.Enqueue(ctx, job); err != nil {
			return err
		}

		fmt.Printf("[+] Submitted scan %s\n", job.ScanID)
		fmt.Printf("[*] Artifact: %s\n", job.ArtifactKey)
		return nil
	},
}

// submitPlan stores the plan and creates the PENDING record. It returns the
// job to hand to a worker.
func submitPlan(ctx context.Context, store *storage.Store, artifacts *storage.ArtifactStore, data []byte) (models.ScanJob, error) {
	scanID := models.NewScanID()
	key := storage.ArtifactKey(scanID)

	if err := artifacts.Put(ctx, key, data); err != nil {
		return models.ScanJob{}, fmt.Errorf("storing plan: %w", err)
	}

	if err := store.CreateScan(scanID, key, models.StatusPending, time.Now()); err != nil {
		return models.ScanJob{}, fmt.Errorf("recording scan: %w", err)
	}

	return models.ScanJob{ScanID: scanID, ArtifactKey: key}, nil
}

func init() {
	rootCmd.AddCommand(submitCmd)
}
