package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mobistudy/indicators-backend-go/internal/models"
	"github.com/mobistudy/indicators-backend-go/internal/service"
	"github.com/mobistudy/indicators-backend-go/pkg/response"
)

// IndicatorHandler handles HTTP requests for indicators
type IndicatorHandler struct {
	service *service.IndicatorService
}

// NewIndicatorHandler creates a new indicator handler
func NewIndicatorHandler(service *service.IndicatorService) *IndicatorHandler {
	return &IndicatorHandler{service: service}
}

// ListIndicators retrieves indicators matching the query filters
// GET /api/v1/indicators?studyKey=&userKey=&producer=&day=&from=&to=&taskIds=1,2
func (h *IndicatorHandler) ListIndicators(c *gin.Context) {
	taskIDs, err := parseTaskIDs(c.Query("taskIds"))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	q := models.IndicatorQuery{
		StudyKey: c.Query("studyKey"),
		UserKey:  c.Query("userKey"),
		Producer: c.Query("producer"),
		TaskIDs:  taskIDs,
		Day:      c.Query("day"),
		FromDay:  c.Query("from"),
		ToDay:    c.Query("to"),
	}

	indicators, err := h.service.Query(c.Request.Context(), q)
	if err != nil {
		if errors.Is(err, service.ErrInvalidQuery) {
			response.BadRequest(c, err.Error())
			return
		}
		_ = c.Error(err)
		response.InternalError(c, "Failed to query indicators")
		return
	}

	response.Success(c, gin.H{
		"indicators": indicators,
		"count":      len(indicators),
	})
}

// parseTaskIDs parses a comma separated list of task IDs. Empty means no filter.
func parseTaskIDs(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var ids []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, errors.New("taskIds must be a comma separated list of integers")
		}
		ids = append(ids, id)
	}
	return ids, nil
}
