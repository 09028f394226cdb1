// Package cli wires the flowline commands.
package cli

import (
	"fmt"

	"github.com/Promptonauts/flowline/pkg/config"
	"github.com/Promptonauts/flowline/pkg/logging"
	"github.com/Promptonauts/flowline/pkg/registry"
	"github.com/Promptonauts/flowline/pkg/store"
	"github.com/Promptonauts/flowline/pkg/workflows"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "flowline",
		Short:         "Centrally-defined, parameterized CI pipelines",
		Long:          "Flowline stores versioned pipeline definitions, resolves parameterized invocations into execution plans, and runs them stage by stage.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCommand(),
		newPublishCommand(),
		newPlanCommand(),
		newRunCommand(),
		newListCommand(),
		newRunsCommand(),
	)
	return root
}

// env bundles what every command needs after setup.
type env struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *store.SQLiteStore
	registry *registry.Registry
}

func setup(seedBuiltins bool) (*env, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	reg := registry.New(st)
	if seedBuiltins {
		if err := workflows.Register(reg); err != nil {
			st.Close()
			return nil, err
		}
	}
	return &env{cfg: cfg, logger: logger, store: st, registry: reg}, nil
}

func (e *env) close() {
	_ = e.logger.Sync()
	_ = e.store.Close()
}
