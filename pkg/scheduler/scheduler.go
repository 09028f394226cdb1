// Package scheduler dispatches cron-scheduled pipeline invocations. It
// watches the registry so a publish that adds, changes or removes a schedule
// takes effect without a restart.
package scheduler

import (
	"context"
	"sync"

	"github.com/Promptonauts/flowline/pkg/executor"
	"github.com/Promptonauts/flowline/pkg/models"
	"github.com/Promptonauts/flowline/pkg/registry"
	"github.com/Promptonauts/flowline/pkg/resolver"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Scheduler struct {
	registry *registry.Registry
	resolver *resolver.Resolver
	executor *executor.Executor
	logger   *zap.Logger

	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func New(reg *registry.Registry, res *resolver.Resolver, exec *executor.Executor, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		registry: reg,
		resolver: res,
		executor: exec,
		logger:   logger,
		cron:     cron.New(),
		entries:  make(map[string]cron.EntryID),
	}
}

// Start registers schedules for every published moving ref, begins watching
// for registry changes and runs until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	infos, err := s.registry.List()
	if err != nil {
		return err
	}
	for _, info := range infos {
		if info.Immutable {
			// Version tags are frozen release snapshots; only moving labels
			// run on a schedule.
			continue
		}
		def, err := s.registry.Resolve(info.Name, info.Ref)
		if err != nil {
			continue
		}
		s.reschedule(ctx, info.Name, info.Ref, def)
	}

	events := s.registry.Watch()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				s.reschedule(ctx, ev.Name, ev.Ref, ev.Definition)
			}
		}
	}()

	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

func (s *Scheduler) reschedule(ctx context.Context, name, ref string, def *models.PipelineDefinition) {
	key := name + "@" + ref
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[key]; ok {
		s.cron.Remove(id)
		delete(s.entries, key)
	}
	if def == nil || def.Schedule == "" {
		return
	}

	id, err := s.cron.AddFunc(def.Schedule, func() {
		s.dispatch(ctx, name, ref)
	})
	if err != nil {
		s.logger.Warn("invalid schedule",
			zap.String("pipeline", key),
			zap.String("schedule", def.Schedule),
			zap.Error(err))
		return
	}
	s.entries[key] = id
	s.logger.Info("pipeline scheduled",
		zap.String("pipeline", key),
		zap.String("schedule", def.Schedule))
}

func (s *Scheduler) dispatch(ctx context.Context, name, ref string) {
	plan, err := s.resolver.Plan(name, ref, nil)
	if err != nil {
		s.logger.Error("scheduled plan failed",
			zap.String("pipeline", name),
			zap.String("ref", ref),
			zap.Error(err))
		return
	}
	run, err := s.executor.Run(ctx, plan)
	if err != nil {
		s.logger.Error("scheduled run failed",
			zap.String("pipeline", name),
			zap.Error(err))
		return
	}
	s.logger.Info("scheduled run finished",
		zap.String("pipeline", name),
		zap.String("run", run.ID),
		zap.String("outcome", string(run.Outcome)))
}
