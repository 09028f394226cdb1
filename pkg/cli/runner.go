package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Promptonauts/flowline/pkg/executor"
	"github.com/Promptonauts/flowline/pkg/models"
	"github.com/Promptonauts/flowline/pkg/resolver"
	"github.com/spf13/cobra"
)

func newPlanCommand() *cobra.Command {
	var (
		ref  string
		sets []string
	)
	cmd := &cobra.Command{
		Use:   "plan NAME",
		Short: "Resolve an invocation into an execution plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(true)
			if err != nil {
				return err
			}
			defer e.close()

			def, err := e.registry.Resolve(args[0], ref)
			if err != nil {
				return err
			}
			bindings, err := parseBindings(def.Parameters, sets)
			if err != nil {
				return err
			}

			plan, err := resolver.New(e.registry).Plan(args[0], ref, bindings)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(plan)
		},
	}
	cmd.Flags().StringVar(&ref, "ref", "main", "version ref to resolve")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "parameter binding key=value (repeatable)")
	return cmd
}

func newRunCommand() *cobra.Command {
	var (
		ref  string
		sets []string
	)
	cmd := &cobra.Command{
		Use:   "run NAME",
		Short: "Plan and execute a pipeline locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(true)
			if err != nil {
				return err
			}
			defer e.close()

			def, err := e.registry.Resolve(args[0], ref)
			if err != nil {
				return err
			}
			bindings, err := parseBindings(def.Parameters, sets)
			if err != nil {
				return err
			}

			plan, err := resolver.New(e.registry).Plan(args[0], ref, bindings)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			exec := executor.New(executor.Options{
				Store:               e.store,
				Logger:              e.logger,
				Workdir:             e.cfg.Workdir,
				DefaultStageTimeout: e.cfg.StageTimeout,
			})
			run, err := exec.Run(ctx, plan)
			if err != nil {
				return err
			}

			for _, stage := range run.Stages {
				fmt.Printf("%-20s %s\n", stage.Name, stage.Status)
			}
			for name, value := range run.Outputs {
				fmt.Printf("output %s=%s\n", name, value)
			}
			fmt.Printf("run %s: %s\n", run.ID, run.Outcome)
			if run.Outcome != models.OutcomeSucceeded {
				return fmt.Errorf("pipeline %s", run.Outcome)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ref, "ref", "main", "version ref to resolve")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "parameter binding key=value (repeatable)")
	return cmd
}

func newRunsCommand() *cobra.Command {
	var (
		pipeline string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(false)
			if err != nil {
				return err
			}
			defer e.close()

			runs, err := e.store.ListRuns(pipeline, limit)
			if err != nil {
				return err
			}
			for _, run := range runs {
				fmt.Printf("%s  %-28s %-10s %s\n", run.ID, run.Pipeline, run.Outcome, run.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pipeline, "pipeline", "", "filter by pipeline name")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows")
	return cmd
}
