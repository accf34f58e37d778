package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/helixir/interaction-miner/internal/domain"
	"github.com/helixir/interaction-miner/internal/jobs"
	"github.com/helixir/interaction-miner/internal/repository"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Create, inspect and stop extraction jobs",
}

var jobCreateCmd = &cobra.Command{
	Use:   "create <topic>",
	Short: "Create a job and dispatch it",
	Long: `Create registers a pending job for the topic and hands it to a worker.
With --no-run the job stays pending until "job run" is called.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		minInteractions, _ := cmd.Flags().GetInt("min")
		workspace, _ := cmd.Flags().GetString("workspace")
		noRun, _ := cmd.Flags().GetBool("no-run")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			in := jobs.CreateJobInput{Topic: args[0], MinInteractions: minInteractions}
			if workspace != "" {
				id, err := uuid.Parse(workspace)
				if err != nil {
					return fmt.Errorf("invalid workspace id %q: %w", workspace, err)
				}
				in.WorkspaceID = &id
			}

			create := a.controller.StartJob
			if noRun {
				create = a.controller.CreateJob
			}
			job, err := create(ctx, in)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(job)
			}
			fmt.Printf("created job %s (%s, target %d)\n", job.ID, job.Status, job.MinInteractions)
			return nil
		})
	},
}

var jobRunCmd = &cobra.Command{
	Use:   "run <job-id>",
	Short: "Dispatch a pending job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.controller.RunJobAsync(ctx, id); err != nil {
				return err
			}
			fmt.Printf("dispatched job %s\n", id)
			return nil
		})
	},
}

var jobStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job's progress and log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			report, err := a.controller.GetJobStatus(ctx, id)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(report)
			}
			printReport(report)
			return nil
		})
	},
}

var jobStopCmd = &cobra.Command{
	Use:   "stop <job-id>",
	Short: "Ask a running job to stop at its next step",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.controller.RequestStop(ctx, id); err != nil {
				return err
			}
			fmt.Printf("stop requested for job %s\n", id)
			return nil
		})
	},
}

var jobDeleteCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Delete a job and its interactions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.controller.DeleteJob(ctx, id, force); err != nil {
				return err
			}
			fmt.Printf("deleted job %s\n", id)
			return nil
		})
	},
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		statuses, _ := cmd.Flags().GetStringSlice("status")
		workspace, _ := cmd.Flags().GetString("workspace")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		filter := repository.JobFilter{Limit: limit, Offset: offset}
		for _, s := range statuses {
			filter.Status = append(filter.Status, domain.JobStatus(s))
		}
		if workspace != "" {
			id, err := parseID(workspace)
			if err != nil {
				return err
			}
			filter.WorkspaceID = &id
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			list, total, err := a.controller.ListJobs(ctx, filter)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(map[string]interface{}{"jobs": list, "total": total})
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tFOUND\tTARGET\tCHECKED\tCREATED\tTOPIC")
			for _, j := range list {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
					j.ID, j.Status, j.InteractionsFound, j.MinInteractions, j.PapersChecked,
					j.CreatedAt.Format("2006-01-02 15:04"), j.Topic)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Printf("%d of %d jobs\n", len(list), total)
			return nil
		})
	},
}

func init() {
	jobCreateCmd.Flags().Int("min", 0, "interactions to find before stopping (default from config)")
	jobCreateCmd.Flags().String("workspace", "", "workspace ID (default workspace when empty)")
	jobCreateCmd.Flags().Bool("no-run", false, "create the job without dispatching it")

	jobDeleteCmd.Flags().Bool("force", false, "delete even if the job is running")

	jobListCmd.Flags().StringSlice("status", nil, "filter by status (pending, running, completed, failed)")
	jobListCmd.Flags().String("workspace", "", "filter by workspace ID")
	jobListCmd.Flags().Int("limit", 50, "maximum number of jobs")
	jobListCmd.Flags().Int("offset", 0, "number of jobs to skip")

	jobCmd.AddCommand(jobCreateCmd, jobRunCmd, jobStatusCmd, jobStopCmd, jobDeleteCmd, jobListCmd)
	rootCmd.AddCommand(jobCmd)
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return id, nil
}

func printReport(r domain.JobStatusReport) {
	fmt.Printf("Job:          %s\n", r.ID)
	fmt.Printf("Topic:        %s\n", r.Topic)
	fmt.Printf("Status:       %s\n", r.Status)
	fmt.Printf("Interactions: %d / %d\n", r.InteractionsFound, r.MinInteractions)
	fmt.Printf("Papers:       %d checked\n", r.PapersChecked)
	if r.CurrentStep != "" {
		fmt.Printf("Current step: %s\n", r.CurrentStep)
	}
	if r.StopRequested {
		fmt.Println("Stop:         requested")
	}
	if r.ErrorMessage != "" {
		fmt.Printf("Error:        %s\n", r.ErrorMessage)
	}
	if len(r.Logs) > 0 {
		fmt.Println()
		for _, entry := range r.Logs {
			fmt.Println(entry.String())
		}
	}
}
