package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mobistudy/indicators-backend-go/internal/analysis"
	"github.com/mobistudy/indicators-backend-go/internal/models"
	"github.com/mobistudy/indicators-backend-go/internal/repository"
	"github.com/mobistudy/indicators-backend-go/internal/service"
	"github.com/mobistudy/indicators-backend-go/pkg/response"
)

// RunHandler handles HTTP requests for producer runs
type RunHandler struct {
	service *service.RunService
}

// NewRunHandler creates a new run handler
func NewRunHandler(service *service.RunService) *RunHandler {
	return &RunHandler{service: service}
}

// TriggerRunRequest represents the request body for triggering a run
type TriggerRunRequest struct {
	StudyKey string `json:"studyKey"`
	UserKey  string `json:"userKey"`
	TaskIDs  []int  `json:"taskIds"`
}

// TriggerRun runs a producer over one participant's scope
// POST /api/v1/producers/:producer/runs
func (h *RunHandler) TriggerRun(c *gin.Context) {
	var req TriggerRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	report, err := h.service.TriggerRun(c.Request.Context(), c.Param("producer"), analysis.Scope{
		StudyKey: req.StudyKey,
		UserKey:  req.UserKey,
		TaskIDs:  req.TaskIDs,
	})
	switch {
	case analysis.IsInputError(err):
		response.BadRequest(c, err.Error())
		return
	case err != nil:
		_ = c.Error(err)
		response.InternalError(c, "Run failed")
		return
	}

	if report.Status == models.RunStatusRejected {
		response.Conflict(c, "A run for this scope is already in progress", report)
		return
	}

	response.Success(c, report)
}

// GetRun retrieves a run by ID
// GET /api/v1/runs/:id
func (h *RunHandler) GetRun(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "Invalid run ID")
		return
	}

	run, err := h.service.GetRun(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.NotFound(c, "Run not found")
			return
		}
		_ = c.Error(err)
		response.InternalError(c, "Failed to get run")
		return
	}

	response.Success(c, run)
}

// ListRuns retrieves runs, newest first
// GET /api/v1/runs
func (h *RunHandler) ListRuns(c *gin.Context) {
	var filter models.RunFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "Invalid query parameters")
		return
	}

	runs, applied, err := h.service.ListRuns(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(err)
		response.InternalError(c, "Failed to list runs")
		return
	}
	if runs == nil {
		runs = []*models.RunRecord{}
	}

	response.Success(c, gin.H{
		"runs":   runs,
		"limit":  applied.Limit,
		"offset": applied.Offset,
	})
}

// ListProducers lists registered producers
// GET /api/v1/producers
func (h *RunHandler) ListProducers(c *gin.Context) {
	response.Success(c, h.service.Producers())
}
