package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/helixir/interaction-miner/internal/domain"
)

var interactionsCmd = &cobra.Command{
	Use:   "interactions",
	Short: "Inspect stored interactions",
}

var interactionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List interactions for a job or a workspace, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		jobFlag, _ := cmd.Flags().GetString("job")
		workspaceFlag, _ := cmd.Flags().GetString("workspace")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		filter := domain.InteractionFilter{Limit: limit, Offset: offset}
		if jobFlag != "" {
			id, err := parseID(jobFlag)
			if err != nil {
				return err
			}
			filter.JobID = &id
		}
		if workspaceFlag != "" {
			id, err := parseID(workspaceFlag)
			if err != nil {
				return err
			}
			filter.WorkspaceID = &id
		}
		if filter.JobID == nil && filter.WorkspaceID == nil {
			return fmt.Errorf("one of --job or --workspace is required")
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			list, total, err := a.controller.ListInteractions(ctx, filter)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(map[string]interface{}{"interactions": list, "total": total})
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INTERACTION\tREFERENCE\tPUBLISHED")
			for _, i := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\n", i.String(), i.Reference, i.DatePublished)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Printf("%d of %d interactions\n", len(list), total)
			return nil
		})
	},
}

func init() {
	interactionsListCmd.Flags().String("job", "", "job ID")
	interactionsListCmd.Flags().String("workspace", "", "workspace ID")
	interactionsListCmd.Flags().Int("limit", 100, "maximum number of interactions")
	interactionsListCmd.Flags().Int("offset", 0, "number of interactions to skip")

	interactionsCmd.AddCommand(interactionsListCmd)
	rootCmd.AddCommand(interactionsCmd)
}
