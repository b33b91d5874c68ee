package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}
	root := &cobra.Command{
		Use:           "shelfarr",
		Short:         "Audiobook and ebook acquisition daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipsConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	ctx.bindFlags(root)

	root.AddCommand(newDaemonCommands(ctx)...)
	root.AddCommand(
		newDaemonRunCommand(ctx),
		newJobCommand(ctx),
		newHealthCommand(ctx),
		newTestNotifyCommand(ctx),
		newLogsCommand(ctx),
		newConfigCommand(ctx),
		newVersionCommand(),
	)
	return root
}
