// Package api exposes the orchestrator over HTTP: publishing and resolving
// pipeline definitions, creating plans, starting and cancelling runs, and
// accepting trigger events from caller repositories.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Promptonauts/flowline/pkg/executor"
	"github.com/Promptonauts/flowline/pkg/models"
	"github.com/Promptonauts/flowline/pkg/observability"
	"github.com/Promptonauts/flowline/pkg/registry"
	"github.com/Promptonauts/flowline/pkg/resolver"
	"github.com/Promptonauts/flowline/pkg/store"
	"github.com/Promptonauts/flowline/pkg/trigger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Deps struct {
	Registry *registry.Registry
	Resolver *resolver.Resolver
	Executor *executor.Executor
	Store    store.Store
	Metrics  *observability.MetricsRegistry
	Logger   *zap.Logger
	Rules    trigger.Rules
}

type Server struct {
	registry *registry.Registry
	resolver *resolver.Resolver
	executor *executor.Executor
	store    store.Store
	metrics  *observability.MetricsRegistry
	logger   *zap.Logger
	rules    trigger.Rules

	baseCtx context.Context
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewServer(ctx context.Context, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observability.NewMetricsRegistry()
	}
	return &Server{
		registry: deps.Registry,
		resolver: deps.Resolver,
		executor: deps.Executor,
		store:    deps.Store,
		metrics:  metrics,
		logger:   logger,
		rules:    deps.Rules,
		baseCtx:  ctx,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Router builds the gin engine with all routes mounted.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", s.handleMetrics)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/pipelines", s.handlePublish)
		v1.GET("/pipelines", s.handleListPipelines)
		v1.GET("/pipelines/:name/refs", s.handleRefs)
		v1.GET("/pipelines/:name/resolve", s.handleResolve)

		v1.POST("/plans", s.handlePlan)

		v1.POST("/runs", s.handleStartRun)
		v1.GET("/runs", s.handleListRuns)
		v1.GET("/runs/:id", s.handleGetRun)
		v1.GET("/runs/:id/logs", s.handleRunLogs)
		v1.POST("/runs/:id/cancel", s.handleCancelRun)

		v1.POST("/events", s.handleEvent)
	}
	return r
}

// Serve runs the HTTP server until baseCtx is cancelled, then waits for
// in-flight runs to wind down.
func (s *Server) Serve(addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-s.baseCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.wg.Wait()
	return err
}

// startRun dispatches a plan asynchronously and returns the run ID
// immediately. Cancellation is wired per run.
func (s *Server) startRun(plan *models.ExecutionPlan) string {
	runID := uuid.New().String()
	runCtx, cancel := context.WithCancel(s.baseCtx)

	s.mu.Lock()
	s.cancels[runID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.cancels, runID)
			s.mu.Unlock()
			cancel()
		}()
		if _, err := s.executor.RunWithID(runCtx, runID, plan); err != nil {
			s.logger.Error("run failed", zap.String("run", runID), zap.Error(err))
		}
	}()
	return runID
}

func (s *Server) cancelRun(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, ok := s.cancels[id]
	if ok {
		cancel()
	}
	return ok
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.metrics.Counter("http_requests").Inc()
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
