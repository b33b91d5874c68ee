package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"shelfarr/internal/ipc"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check job database integrity and queue counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				db, err := client.DatabaseHealth()
				if err != nil {
					return err
				}
				queue, err := client.QueueHealth()
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"database": db, "queue": queue})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Database path: %s\n", db.DBPath)
				fmt.Fprintf(out, "Database exists: %s\n", yesNo(db.DatabaseExists))
				fmt.Fprintf(out, "Readable: %s\n", yesNo(db.DatabaseReadable))
				fmt.Fprintf(out, "Integrity check: %s\n", yesNo(db.IntegrityCheck))
				fmt.Fprintf(out, "Total jobs: %d\n", db.TotalJobs)
				if db.Error != "" {
					fmt.Fprintf(out, "Error: %s\n", db.Error)
				}
				fmt.Fprintln(out)
				fmt.Fprintf(out, "Pending: %d\nActive: %d\nFailed: %d\nCompleted: %d\nCancelled: %d\nPublish pending: %d\n",
					queue.Pending,
					queue.Active,
					queue.Failed,
					queue.Completed,
					queue.Cancelled,
					queue.PublishPending,
				)
				return nil
			})
		},
	}
}
