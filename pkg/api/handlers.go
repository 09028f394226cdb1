package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Promptonauts/flowline/pkg/models"
	"github.com/Promptonauts/flowline/pkg/trigger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type publishRequest struct {
	Ref        string                     `json:"ref" binding:"required"`
	Definition *models.PipelineDefinition `json:"definition" binding:"required"`
}

type invokeRequest struct {
	Name     string            `json:"name" binding:"required"`
	Ref      string            `json:"ref" binding:"required"`
	Bindings models.BindingSet `json:"bindings"`
}

type eventRequest struct {
	Name     string            `json:"name" binding:"required"`
	Ref      string            `json:"ref" binding:"required"`
	Event    trigger.Event     `json:"event" binding:"required"`
	Bindings models.BindingSet `json:"bindings"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handlePublish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.registry.Publish(req.Definition, req.Ref); err != nil {
		s.fail(c, err)
		return
	}
	s.metrics.Counter("pipelines_published").Inc()
	c.JSON(http.StatusCreated, gin.H{
		"name": req.Definition.Name,
		"ref":  req.Ref,
	})
}

func (s *Server) handleListPipelines(c *gin.Context) {
	infos, err := s.registry.List()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pipelines": infos})
}

func (s *Server) handleRefs(c *gin.Context) {
	refs, err := s.registry.Refs(c.Param("name"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": c.Param("name"), "refs": refs})
}

func (s *Server) handleResolve(c *gin.Context) {
	ref := c.DefaultQuery("ref", "main")
	def, err := s.registry.Resolve(c.Param("name"), ref)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, def)
}

func (s *Server) handlePlan(c *gin.Context) {
	var req invokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	plan, err := s.resolver.Plan(req.Name, req.Ref, req.Bindings)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"plan": plan, "fingerprint": plan.Fingerprint()})
}

func (s *Server) handleStartRun(c *gin.Context) {
	var req invokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	plan, err := s.resolver.Plan(req.Name, req.Ref, req.Bindings)
	if err != nil {
		s.fail(c, err)
		return
	}
	runID := s.startRun(plan)
	c.JSON(http.StatusAccepted, gin.H{"runId": runID, "planId": plan.ID})
}

func (s *Server) handleListRuns(c *gin.Context) {
	limit := 50
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	runs, err := s.store.ListRuns(c.Query("pipeline"), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleGetRun(c *gin.Context) {
	run, err := s.store.GetRun(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleRunLogs(c *gin.Context) {
	logs, err := s.store.GetRunLogs(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func (s *Server) handleCancelRun(c *gin.Context) {
	id := c.Param("id")
	if !s.cancelRun(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no in-flight run with id " + id})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"runId": id, "status": "cancelling"})
}

// handleEvent is the trigger intake: evaluates the event against the trigger
// rules and starts a run when they fire.
func (s *Server) handleEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	decision, err := s.rules.Evaluate(req.Event)
	if err != nil {
		// Malformed tags and missing dispatch inputs are caller mistakes.
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !decision.Fire {
		c.JSON(http.StatusOK, gin.H{"fired": false, "reason": decision.Reason})
		return
	}

	plan, err := s.resolver.Plan(req.Name, req.Ref, req.Bindings)
	if err != nil {
		s.fail(c, err)
		return
	}
	runID := s.startRun(plan)
	s.metrics.Counter("events_fired").Inc()

	resp := gin.H{"fired": true, "runId": runID}
	if decision.Version != "" {
		resp["version"] = decision.Version
	}
	c.JSON(http.StatusAccepted, resp)
}

// fail maps domain errors onto HTTP status codes.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	var (
		notFound   *models.NotFoundError
		validation *models.ValidationError
		missing    *models.MissingParameterError
		unknown    *models.UnknownParameterError
		mismatch   *models.TypeMismatchError
	)
	switch {
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrVersionExists):
		status = http.StatusConflict
	case errors.As(err, &validation),
		errors.As(err, &missing),
		errors.As(err, &unknown),
		errors.As(err, &mismatch),
		errors.Is(err, models.ErrMalformedVersion):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
