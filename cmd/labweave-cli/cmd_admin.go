package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative operations",
	}
	cmd.AddCommand(adminResyncCmd())
	cmd.AddCommand(adminGCCmd())
	return cmd
}

func adminResyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resync [document-id]",
		Short: "Replay ledger state into the graph",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			n, err := apiClient.Admin.Resync(context.Background(), id)
			if err != nil {
				fatal("resync", err)
			}
			output(map[string]int{"resynced": n}, strconv.Itoa(n))
		},
	}
}

func adminGCCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete content no version references",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			res, err := apiClient.Admin.CollectGarbage(context.Background(), dryRun)
			if err != nil {
				fatal("gc", err)
			}
			output(res, strconv.Itoa(res.Deleted))
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report orphans without deleting")
	return cmd
}
