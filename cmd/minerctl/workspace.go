package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Manage workspaces",
}

var workspaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workspaces with job and interaction counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			list, err := a.controller.ListWorkspaces(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(list)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tJOBS\tINTERACTIONS")
			for _, ws := range list {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", ws.ID, ws.Name, ws.JobCount, ws.InteractionCount)
			}
			return w.Flush()
		})
	},
}

var workspaceCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		return withApp(cmd, func(ctx context.Context, a *app) error {
			ws, err := a.controller.CreateWorkspace(ctx, args[0], description)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(ws)
			}
			fmt.Printf("created workspace %s (%s)\n", ws.Name, ws.ID)
			return nil
		})
	},
}

func init() {
	workspaceCreateCmd.Flags().String("description", "", "free-text description")

	workspaceCmd.AddCommand(workspaceListCmd, workspaceCreateCmd)
	rootCmd.AddCommand(workspaceCmd)
}
