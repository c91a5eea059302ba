package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	root := &cobra.Command{
		Use:   "slidewright",
		Short: "Turn research papers into slide decks",
		Long: "slidewright extracts a PDF paper, summarizes it with an LLM and renders the\n" +
			"result as a PowerPoint or PDF deck. Run `slidewright serve` for the daemon or\n" +
			"`slidewright run paper.pdf` for a one-shot conversion.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configureColors()
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&ctx.flags.config, "config", "c", "", "Configuration file path")
	flags.StringVar(&ctx.flags.api, "api", "", "Daemon API address (defaults to paths.api_bind)")
	flags.StringVar(&ctx.flags.token, "token", "", "Bearer token for the daemon API (defaults to paths.api_token)")

	root.AddGroup(
		&cobra.Group{ID: "local", Title: "Local commands:"},
		&cobra.Group{ID: "documents", Title: "Document commands:"},
		&cobra.Group{ID: "pipeline", Title: "Pipeline commands:"},
	)
	inGroup := func(id string, cmds ...*cobra.Command) {
		for _, c := range cmds {
			c.GroupID = id
			root.AddCommand(c)
		}
	}
	inGroup("local", newServeCommand(ctx), newRunCommand(ctx), newConfigCommand(ctx))
	inGroup("documents", newAddCommand(ctx), newListCommand(ctx), newShowCommand(ctx), newDeleteCommand(ctx))
	inGroup("pipeline", newStageCommands(ctx)...)
	inGroup("pipeline",
		newTaskCommand(ctx),
		newResultCommand(ctx),
		newDownloadCommand(ctx),
		newTemplatesCommand(ctx),
		newStatusCommand(ctx),
	)
	return root
}
