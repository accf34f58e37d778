package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/helixir/interaction-miner/internal/jobs"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep-stuck",
	Short: "Fail jobs that have been running too long",
	Long: `sweep-stuck marks every job that has been running for longer than --hours
as failed with "Job timed out or crashed". Workers run the same sweep
periodically; this command runs it on demand.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		hours, _ := cmd.Flags().GetFloat64("hours")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if hours <= 0 {
			return fmt.Errorf("--hours must be positive")
		}
		olderThan := time.Duration(hours * float64(time.Hour))

		return withApp(cmd, func(ctx context.Context, a *app) error {
			sweeper := jobs.NewSweeper(a.jobs, a.db, olderThan, 0, a.logger)

			if dryRun {
				stuck, err := sweeper.Preview(ctx, olderThan)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(stuck)
				}
				for _, j := range stuck {
					started := "-"
					if j.StartedAt != nil {
						started = j.StartedAt.Format(time.RFC3339)
					}
					fmt.Printf("%s  started %s  %s\n", j.ID, started, j.Topic)
				}
				fmt.Printf("%d stuck jobs (dry run, nothing changed)\n", len(stuck))
				return nil
			}

			ids, err := sweeper.Sweep(ctx, olderThan)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(ids)
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			fmt.Printf("failed %d stuck jobs\n", len(ids))
			return nil
		})
	},
}

func init() {
	sweepCmd.Flags().Float64("hours", 2, "fail jobs running longer than this many hours")
	sweepCmd.Flags().Bool("dry-run", false, "list stuck jobs without changing them")
	rootCmd.AddCommand(sweepCmd)
}
