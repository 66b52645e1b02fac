package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"trip-planner/internal/clustering"
	"trip-planner/internal/distance"
	"trip-planner/internal/geocoding"
	"trip-planner/internal/pipeline"
)

// Handler provides common handler utilities and dependencies
type Handler struct {
	Pipeline *pipeline.Pipeline
	// Defaults fill in whatever a request's config leaves unset
	Defaults pipeline.Config
	// Health checks the cache backend, nil means always healthy
	Health  func(ctx context.Context) error
	Backend string
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// writeError writes a JSON error response
func (h *Handler) writeError(c *gin.Context, status int, code, message string, details interface{}) {
	c.JSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// handleValidationError handles 400 errors
func (h *Handler) handleValidationError(c *gin.Context, message string) {
	h.writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", message, nil)
}

// handleError maps a stage error to a response
func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case isValidationError(err):
		h.handleValidationError(c, err.Error())
	case isCancelled(err):
		h.writeError(c, http.StatusServiceUnavailable, "CANCELLED", "The request was cancelled before it finished.", nil)
	default:
		log.Printf("[ERROR] Internal error: path=%s err=%v", c.Request.URL.Path, err)
		h.writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "An error occurred. Please try again.", nil)
	}
}

// handlePartialError is handleError for stages that keep partial results. A
// cancelled request still gets what finished, under the error's details.
func (h *Handler) handlePartialError(c *gin.Context, err error, partial interface{}) {
	if isCancelled(err) && partial != nil {
		log.Printf("[HTTP] %s %s: cancelled, returning partial results", c.Request.Method, c.Request.URL.Path)
		h.writeError(c, http.StatusServiceUnavailable, "CANCELLED", "The request was cancelled before it finished.", partial)
		return
	}
	h.handleError(c, err)
}

func isCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func isValidationError(err error) bool {
	for _, target := range []error{
		clustering.ErrInvalidClusterCount,
		clustering.ErrInvalidSizeRange,
		clustering.ErrUnknownStrategy,
		pipeline.ErrMissingAPIKey,
		pipeline.ErrFixIndex,
		geocoding.ErrUnknownProvider,
		geocoding.ErrEmptyFix,
		geocoding.ErrInvalidCoordinates,
		distance.ErrUnknownMetric,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// config overlays the request's settings on the defaults. A request that
// names a strategy brings its own k and size range, zero values included,
// so bad values still fail validation.
func (h *Handler) config(req *pipeline.Config) pipeline.Config {
	cfg := h.Defaults
	if req == nil {
		return cfg
	}

	if req.Strategy != "" {
		cfg.Strategy = req.Strategy
		cfg.K, cfg.MinSize, cfg.MaxSize = req.K, req.MinSize, req.MaxSize
	}
	if req.Metric != "" {
		cfg.Metric = req.Metric
	}
	if req.Provider != "" {
		cfg.Provider = req.Provider
		cfg.APIKey = req.APIKey
	} else if req.APIKey != "" {
		cfg.APIKey = req.APIKey
	}
	if req.RoutingAPIKey != "" {
		cfg.RoutingAPIKey = req.RoutingAPIKey
	}
	if req.StartingAddress != "" {
		cfg.StartingAddress = req.StartingAddress
	}
	return cfg
}

// HandleHealthCheck handles GET /health
func (h *Handler) HandleHealthCheck(c *gin.Context) {
	status := "ok"
	cacheStatus := "connected"

	if h.Health != nil {
		if err := h.Health(c.Request.Context()); err != nil {
			log.Printf("[ERROR] Cache health check failed: backend=%s err=%v", h.Backend, err)
			status = "degraded"
			cacheStatus = "error"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  status,
		"version": "1.0.0",
		"cache":   cacheStatus,
		"backend": h.Backend,
	})
}
