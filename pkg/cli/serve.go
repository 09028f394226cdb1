package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/Promptonauts/flowline/pkg/api"
	"github.com/Promptonauts/flowline/pkg/executor"
	"github.com/Promptonauts/flowline/pkg/observability"
	"github.com/Promptonauts/flowline/pkg/resolver"
	"github.com/Promptonauts/flowline/pkg/scheduler"
	"github.com/Promptonauts/flowline/pkg/trigger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestration service",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(true)
			if err != nil {
				return err
			}
			defer e.close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			metrics := observability.NewMetricsRegistry()
			res := resolver.New(e.registry)
			exec := executor.New(executor.Options{
				Store:               e.store,
				Logger:              e.logger,
				Metrics:             metrics,
				Workdir:             e.cfg.Workdir,
				DefaultStageTimeout: e.cfg.StageTimeout,
			})

			sched := scheduler.New(e.registry, res, exec, e.logger)
			go func() {
				if err := sched.Start(ctx); err != nil {
					e.logger.Error("scheduler stopped", zap.Error(err))
				}
			}()

			srv := api.NewServer(ctx, api.Deps{
				Registry: e.registry,
				Resolver: res,
				Executor: exec,
				Store:    e.store,
				Metrics:  metrics,
				Logger:   e.logger,
				Rules:    trigger.Rules{DefaultBranch: e.cfg.DefaultBranch},
			})

			e.logger.Info("flowline listening", zap.String("port", e.cfg.Port))
			if err := srv.Serve(":" + e.cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}
