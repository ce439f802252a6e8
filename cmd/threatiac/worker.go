package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hakim/threatiac/internal/pipeline"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process queued scans",
	Long: `Consume scan jobs from the Redis queue and run each one.

A job is acknowledged once its final status is recorded. If the status write
fails the job goes back on the queue; after queue.max_deliveries attempts it is
moved to the dead-letter list. Jobs a previous worker left unacknowledged are
put back on the queue at startup, so run one worker process per queue.
--workers runs several consumers in this
process against the same database. SIGINT or SIGTERM stops the worker after the
scan in progress finishes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireConfig(); err != nil {
			return err
		}
		presetName, _ := cmd.Flags().GetString("preset")
		workers, _ := cmd.Flags().GetInt("workers")
		if workers < 1 {
			return fmt.Errorf("--workers must be at least 1")
		}

		preset, err := resolvePreset(presetName)
		if err != nil {
			return err
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

		orch, err := buildOrchestrator(store, artifacts, preset)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		requeued, dead, err := q.Recover(ctx)
		if err != nil {
			return err
		}
		if requeued+dead > 0 {
			fmt.Printf("[!] Recovered %d abandoned job(s), %d dead-lettered\n", requeued, dead)
		}

		fmt.Printf("[*] %d worker(s) listening on %s (preset: %s)\n", workers, cfg.Queue.Name, preset.Name)

		// Workers share the store and queue connection; bbolt serializes writes.
		p := pool.New().WithErrors()
		for i := 0; i < workers; i++ {
			w := pipeline.NewWorker(q, orch, cfg.PollTimeout(), logger.WithField("worker", i))
			p.Go(func() error { return w.Run(ctx) })
		}
		err = p.Wait()
		fmt.Println("[*] Worker stopped")
		return err
	},
}

func init() {
	workerCmd.Flags().Int("workers", 1, "number of concurrent workers")
	workerCmd.Flags().String("preset", "", "feed preset (full, reputation, exposure, offline)")
	rootCmd.AddCommand(workerCmd)
}
