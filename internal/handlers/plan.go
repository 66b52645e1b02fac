package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"trip-planner/internal/geocoding"
	"trip-planner/internal/models"
	"trip-planner/internal/pipeline"
)

// GeocodeRequest is the body of POST /api/v1/geocode
type GeocodeRequest struct {
	Records []models.Record  `json:"records"`
	Config  *pipeline.Config `json:"config,omitempty"`
}

// FixRequest is the body of POST /api/v1/geocode/fix
type FixRequest struct {
	Batch  geocoding.Batch  `json:"batch"`
	Index  int              `json:"index"`
	Fix    geocoding.Fix    `json:"fix"`
	Config *pipeline.Config `json:"config,omitempty"`
}

// FixResponse carries the updated batch
type FixResponse struct {
	Batch    *geocoding.Batch `json:"batch"`
	Resolved bool             `json:"resolved"`
}

// ClusterRequest is the body of POST /api/v1/cluster
type ClusterRequest struct {
	Points []models.GeoPoint `json:"points"`
	Config *pipeline.Config  `json:"config,omitempty"`
}

// ClusterResponse carries the labelled points
type ClusterResponse struct {
	Clustered []models.ClusteredPoint `json:"clustered"`
	Summary   pipeline.Summary        `json:"summary"`
}

// RoutesRequest is the body of POST /api/v1/routes
type RoutesRequest struct {
	Points []models.ClusteredPoint `json:"points"`
	Config *pipeline.Config        `json:"config,omitempty"`
}

// RoutesResponse carries one route per cluster
type RoutesResponse struct {
	Routes        []models.Route `json:"routes"`
	TotalDistance float64        `json:"totalDistance"`
}

// PlanResponse carries every stage's output
type PlanResponse struct {
	State   *pipeline.State  `json:"state"`
	Summary pipeline.Summary `json:"summary"`
}

// HandleGeocode handles POST /api/v1/geocode
func (h *Handler) HandleGeocode(c *gin.Context) {
	var req GeocodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("[HTTP] POST /api/v1/geocode: invalid_json err=%v", err)
		h.handleValidationError(c, "Invalid request body")
		return
	}

	cfg := h.config(req.Config)
	log.Printf("[HTTP] POST /api/v1/geocode: records=%d provider=%s", len(req.Records), cfg.Provider)

	batch, err := h.Pipeline.Geocode(c.Request.Context(), cfg, req.Records)
	if err != nil {
		if batch != nil {
			h.handlePartialError(c, err, batch)
			return
		}
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, batch)
}

// HandleFix handles POST /api/v1/geocode/fix
func (h *Handler) HandleFix(c *gin.Context) {
	var req FixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("[HTTP] POST /api/v1/geocode/fix: invalid_json err=%v", err)
		h.handleValidationError(c, "Invalid request body")
		return
	}

	log.Printf("[HTTP] POST /api/v1/geocode/fix: index=%d failed=%d", req.Index, len(req.Batch.Failed))

	batch, resolved, err := h.Pipeline.ApplyFix(c.Request.Context(), h.config(req.Config), req.Batch, req.Index, req.Fix)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, FixResponse{Batch: batch, Resolved: resolved})
}

// HandleCluster handles POST /api/v1/cluster
func (h *Handler) HandleCluster(c *gin.Context) {
	var req ClusterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("[HTTP] POST /api/v1/cluster: invalid_json err=%v", err)
		h.handleValidationError(c, "Invalid request body")
		return
	}

	cfg := h.config(req.Config)
	log.Printf("[HTTP] POST /api/v1/cluster: points=%d strategy=%s", len(req.Points), cfg.Strategy)

	clustered, err := h.Pipeline.Cluster(c.Request.Context(), cfg, req.Points)
	if err != nil {
		h.handleError(c, err)
		return
	}

	state := pipeline.State{Geocoded: req.Points, Clustered: clustered}
	c.JSON(http.StatusOK, ClusterResponse{Clustered: clustered, Summary: state.Summary()})
}

// HandleRoutes handles POST /api/v1/routes
func (h *Handler) HandleRoutes(c *gin.Context) {
	var req RoutesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("[HTTP] POST /api/v1/routes: invalid_json err=%v", err)
		h.handleValidationError(c, "Invalid request body")
		return
	}

	cfg := h.config(req.Config)
	log.Printf("[HTTP] POST /api/v1/routes: points=%d metric=%s", len(req.Points), cfg.Metric)

	routes, err := h.Pipeline.Optimize(c.Request.Context(), cfg, req.Points)
	if err != nil {
		h.handleError(c, err)
		return
	}

	resp := RoutesResponse{Routes: routes}
	for _, r := range routes {
		resp.TotalDistance += r.Distance
	}
	c.JSON(http.StatusOK, resp)
}

// HandlePlan handles POST /api/v1/plan
func (h *Handler) HandlePlan(c *gin.Context) {
	var req GeocodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("[HTTP] POST /api/v1/plan: invalid_json err=%v", err)
		h.handleValidationError(c, "Invalid request body")
		return
	}

	cfg := h.config(req.Config)
	log.Printf("[HTTP] POST /api/v1/plan: records=%d strategy=%s metric=%s", len(req.Records), cfg.Strategy, cfg.Metric)

	state, err := h.Pipeline.Run(c.Request.Context(), cfg, req.Records)
	if err != nil {
		if state != nil {
			h.handlePartialError(c, err, PlanResponse{State: state, Summary: state.Summary()})
			return
		}
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, PlanResponse{State: state, Summary: state.Summary()})
}
