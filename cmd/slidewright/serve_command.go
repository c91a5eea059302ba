package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"slidewright/internal/daemon"
	"slidewright/internal/logging"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the slidewright daemon in the foreground",
		Long: `Run the HTTP daemon that accepts uploads, schedules extract, analyze and
render stages and serves their results. Stops on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if bind != "" {
				cfg.Paths.APIBind = bind
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			rt, err := openRuntime(runCtx, cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			d, err := daemon.New(cfg, rt.store, rt.ledger, rt.scheduler, logger)
			if err != nil {
				return fmt.Errorf("create daemon: %w", err)
			}
			defer d.Close()

			if err := d.Start(runCtx); err != nil {
				return fmt.Errorf("start daemon: %w", err)
			}
			<-runCtx.Done()
			logger.Info("slidewright daemon shutting down")
			d.Stop()
			return nil
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Override paths.api_bind for this run")
	return cmd
}
