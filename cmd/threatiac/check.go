package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/hakim/threatiac/internal/feeds"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Show which threat feeds are live",
	Long: `List every feed, whether it is enabled by the active preset, and whether
it has a credential. A feed without a credential runs degraded: it returns a
LOW placeholder finding instead of querying the provider.

With --queue, also connect to Redis and print the job queue depth.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		presetName, _ := cmd.Flags().GetString("preset")
		checkQueue, _ := cmd.Flags().GetBool("queue")

		if err := requireConfig(); err != nil {
			return err
		}

		preset, err := resolvePreset(presetName)
		if err != nil {
			return err
		}
		enabled := feedOptions(preset)
		all := cfg.FeedOptions(nil)

		// Create table writer
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "Feed\tStatus\tMode\tBase URL")
		fmt.Fprintln(w, "----\t------\t----\t--------")

		live := 0
		for _, name := range feeds.Known {
			status := "[-]"
			mode := "disabled"
			if _, ok := enabled[name]; ok {
				if all[name].APIKey != "" {
					status = "[+]"
					mode = "live"
					live++
				} else {
					status = "[!]"
					mode = "degraded"
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, status, mode, all[name].BaseURL)
		}

		w.Flush()

		// Print summary
		fmt.Println()
		fmt.Printf("Summary: %d/%d enabled feeds live (preset: %s)\n", live, len(enabled), preset.Name)

		if checkQueue {
			q, err := openQueue()
			if err != nil {
				return err
			}
			defer q.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			stats, err := q.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Queue %s: %d pending, %d processing, %d dead-lettered\n",
				cfg.Queue.Name, stats.Pending, stats.Processing, stats.Dead)
		}

		return nil
	},
}

func init() {
	checkCmd.Flags().String("preset", "", "feed preset to check")
	checkCmd.Flags().Bool("queue", false, "also check the Redis job queue")
	rootCmd.AddCommand(checkCmd)
}
