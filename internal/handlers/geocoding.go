package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"trip-planner/internal/models"
)

// AddressLookupResponse is the result of a single address lookup
type AddressLookupResponse struct {
	Address  string              `json:"address"`
	Resolved bool                `json:"resolved"`
	Location *models.Coordinates `json:"location,omitempty"`
	Variant  string              `json:"used_variant,omitempty"`
}

// HandleAddressSearch handles GET /api/v1/geocode/search
func (h *Handler) HandleAddressSearch(c *gin.Context) {
	query := strings.TrimSpace(c.Query("address"))
	log.Printf("[HTTP] GET /api/v1/geocode/search: query=%s", query)

	if query == "" {
		h.handleValidationError(c, "address query parameter is required")
		return
	}

	resp := AddressLookupResponse{Address: query}
	if len(query) < 4 {
		log.Printf("[HTTP] GET /api/v1/geocode/search: query too short, returning unresolved")
		c.JSON(http.StatusOK, resp)
		return
	}

	entry, err := h.Pipeline.Lookup(c.Request.Context(), h.config(nil), query)
	if err != nil {
		log.Printf("[ERROR] Failed to look up address: query=%s err=%v", query, err)
		h.handleError(c, err)
		return
	}

	if entry != nil {
		resp.Resolved = true
		resp.Location = &models.Coordinates{Lat: entry.Lat, Lon: entry.Lon}
		resp.Variant = entry.UsedVariant
	}

	log.Printf("[HTTP] GET /api/v1/geocode/search: query=%s resolved=%v", query, resp.Resolved)
	c.JSON(http.StatusOK, resp)
}
