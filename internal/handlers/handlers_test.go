package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-planner/internal/clustering"
	"trip-planner/internal/distance"
	"trip-planner/internal/geocoding"
	"trip-planner/internal/models"
	"trip-planner/internal/pipeline"
	"trip-planner/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var scripted = map[string]models.Coordinates{
	"10 Pine St, Duluth, MN 55802":    {Lat: 46.78, Lon: -92.10},
	"11 Pine St, Duluth, MN 55802":    {Lat: 46.79, Lon: -92.11},
	"10 Oak St, Des Moines, IA 50309": {Lat: 41.59, Lon: -93.62},
	"11 Oak St, Des Moines, IA 50309": {Lat: 41.60, Lon: -93.63},
	"1 Depot Rd, Duluth, MN 55802":    {Lat: 47.50, Lon: -92.10},
	"200 Fixed Ave, Ames, IA 50010":   {Lat: 42.03, Lon: -93.62},
}

func setupTestHandler(t *testing.T) (*Handler, *gin.Engine) {
	t.Helper()
	geocoder := testutil.NewScriptedGeocoder(scripted)

	p := pipeline.New(pipeline.Deps{
		Partitioner: clustering.NewKMeans(7),
		NewProvider: func(name, apiKey string) (geocoding.Provider, error) {
			return geocoder, nil
		},
		NewCostModel: func(metric, accessToken string) (distance.CostModel, error) {
			return testutil.NewMockCostModel(), nil
		},
	})

	h := &Handler{
		Pipeline: p,
		Defaults: pipeline.Config{Strategy: clustering.ByCount, K: 2, Provider: geocoding.ProviderNominatim},
		Backend:  "memory",
	}

	r := gin.New()
	r.GET("/health", h.HandleHealthCheck)
	r.POST("/api/v1/geocode", h.HandleGeocode)
	r.POST("/api/v1/geocode/fix", h.HandleFix)
	r.GET("/api/v1/geocode/search", h.HandleAddressSearch)
	r.POST("/api/v1/cluster", h.HandleCluster)
	r.POST("/api/v1/routes", h.HandleRoutes)
	r.POST("/api/v1/plan", h.HandlePlan)
	return h, r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func records() []models.Record {
	return []models.Record{
		{Name: "A", Address: "10 Pine St, Duluth, MN 55802"},
		{Name: "B", Address: "10 Oak St, Des Moines, IA 50309"},
		{Name: "C", Address: "11 Pine St, Duluth, MN 55802"},
		{Name: "D", Address: "11 Oak St, Des Moines, IA 50309"},
	}
}

func TestHandleGeocode(t *testing.T) {
	_, r := setupTestHandler(t)
	recs := append(records(), models.Record{Name: "E", Address: "Main Street"})

	w := postJSON(t, r, "/api/v1/geocode", GeocodeRequest{Records: recs})
	require.Equal(t, http.StatusOK, w.Code)

	var batch geocoding.Batch
	require.NoError(t, json.NewDecoder(w.Body).Decode(&batch))
	assert.Len(t, batch.Geocoded, 4)
	require.Len(t, batch.Failed, 1)
	assert.Equal(t, models.ReasonNoLeadingNumber, batch.Failed[0].Reason)
}

func TestHandleGeocodeInvalidJSON(t *testing.T) {
	_, r := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/geocode", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestHandleGeocodeUnknownProvider(t *testing.T) {
	_, r := setupTestHandler(t)

	w := postJSON(t, r, "/api/v1/geocode", GeocodeRequest{Records: records(), Config: &pipeline.Config{Provider: "bing"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleFix(t *testing.T) {
	_, r := setupTestHandler(t)
	body := FixRequest{
		Batch: geocoding.Batch{
			Geocoded: []models.GeoPoint{},
			Failed:   []models.FailedGeocode{{Name: "E", Address: "Fixed Ave", Reason: models.ReasonNoLeadingNumber}},
		},
		Index: 0,
		Fix:   geocoding.Fix{Address: "200 Fixed Ave, Ames, IA 50010"},
	}

	w := postJSON(t, r, "/api/v1/geocode/fix", body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp FixResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Resolved)
	assert.Empty(t, resp.Batch.Failed)
	require.Len(t, resp.Batch.Geocoded, 1)
	assert.Equal(t, 42.03, resp.Batch.Geocoded[0].Lat)
}

func TestHandleFixBadIndex(t *testing.T) {
	_, r := setupTestHandler(t)

	w := postJSON(t, r, "/api/v1/geocode/fix", FixRequest{Index: 3, Fix: geocoding.Fix{Address: "1 Elm St"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleAddressSearch(t *testing.T) {
	_, r := setupTestHandler(t)

	get := func(query string) (*httptest.ResponseRecorder, AddressLookupResponse) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/geocode/search?"+query, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		var resp AddressLookupResponse
		if w.Code == http.StatusOK {
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		}
		return w, resp
	}

	w, resp := get("address=10+Pine+St%2C+Duluth%2C+MN+55802")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Resolved)
	require.NotNil(t, resp.Location)
	assert.Equal(t, 46.78, resp.Location.Lat)

	w, resp = get("address=99+Nowhere+Ln%2C+Fargo%2C+ND+58102")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, resp.Resolved)
	assert.Nil(t, resp.Location)

	w, resp = get("address=ab")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, resp.Resolved)

	w, _ = get("")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleClusterInvalidRange(t *testing.T) {
	_, r := setupTestHandler(t)
	cfg := &pipeline.Config{Strategy: clustering.BySize, MinSize: 5, MaxSize: 2}

	w := postJSON(t, r, "/api/v1/cluster", ClusterRequest{Points: []models.GeoPoint{{Lat: 1, Lon: 1}}, Config: cfg})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Contains(t, resp.Error.Message, "min=5")
}

func TestHandleClusterAndRoutes(t *testing.T) {
	_, r := setupTestHandler(t)
	points := []models.GeoPoint{
		{Record: models.Record{Name: "n1"}, Lat: 46.78, Lon: -92.10},
		{Record: models.Record{Name: "s1"}, Lat: 41.59, Lon: -93.62},
		{Record: models.Record{Name: "n2"}, Lat: 46.79, Lon: -92.11},
		{Record: models.Record{Name: "s2"}, Lat: 41.60, Lon: -93.63},
	}

	w := postJSON(t, r, "/api/v1/cluster", ClusterRequest{Points: points})
	require.Equal(t, http.StatusOK, w.Code)

	var clustered ClusterResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&clustered))
	require.Len(t, clustered.Clustered, 4)
	assert.Equal(t, 2, clustered.Summary.Clusters)
	for _, p := range clustered.Clustered {
		if p.Lat > 45 {
			assert.Equal(t, 0, p.Cluster)
		} else {
			assert.Equal(t, 1, p.Cluster)
		}
	}

	w = postJSON(t, r, "/api/v1/routes", RoutesRequest{Points: clustered.Clustered})
	require.Equal(t, http.StatusOK, w.Code)

	var routes RoutesResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&routes))
	require.Len(t, routes.Routes, 2)
	assert.InDelta(t, routes.Routes[0].Distance+routes.Routes[1].Distance, routes.TotalDistance, 1e-9)
}

func TestHandleRoutesMissingToken(t *testing.T) {
	_, r := setupTestHandler(t)

	w := postJSON(t, r, "/api/v1/routes", RoutesRequest{
		Points: []models.ClusteredPoint{{Cluster: 0}},
		Config: &pipeline.Config{Metric: "mapbox"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Contains(t, resp.Error.Message, "missing API key")
}

func TestHandlePlan(t *testing.T) {
	_, r := setupTestHandler(t)

	w := postJSON(t, r, "/api/v1/plan", GeocodeRequest{
		Records: records(),
		Config:  &pipeline.Config{StartingAddress: "1 Depot Rd, Duluth, MN 55802"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp PlanResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 4, resp.Summary.Geocoded)
	assert.Equal(t, []int{2, 2}, resp.Summary.ClusterSizes)
	require.Len(t, resp.State.Routes, 2)
	for _, p := range resp.State.Routes[0].Points {
		assert.NotEqual(t, 47.50, p.Lat)
	}
}

func TestCancelledRequestsReturnPartialResults(t *testing.T) {
	_, r := setupTestHandler(t)

	post := func(path string, body interface{}) *httptest.ResponseRecorder {
		data, err := json.Marshal(body)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data)).WithContext(ctx)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := post("/api/v1/geocode", GeocodeRequest{Records: records()})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var geocodeResp struct {
		Error struct {
			Code    string          `json:"code"`
			Details geocoding.Batch `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &geocodeResp))
	assert.Equal(t, "CANCELLED", geocodeResp.Error.Code)
	assert.NotNil(t, geocodeResp.Error.Details.Geocoded)
	assert.NotNil(t, geocodeResp.Error.Details.Failed)

	w = post("/api/v1/plan", GeocodeRequest{Records: records()})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var planResp struct {
		Error struct {
			Code    string       `json:"code"`
			Details PlanResponse `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &planResp))
	assert.Equal(t, "CANCELLED", planResp.Error.Code)
	require.NotNil(t, planResp.Error.Details.State)
	assert.Len(t, planResp.Error.Details.State.Records, len(records()))
}

func TestConfigOverlay(t *testing.T) {
	h := &Handler{Defaults: pipeline.Config{
		Strategy: clustering.ByCount, K: 4, Metric: "osrm", Provider: "mapbox", APIKey: "env-key",
	}}

	assert.Equal(t, h.Defaults, h.config(nil))

	cfg := h.config(&pipeline.Config{Strategy: clustering.BySize, MinSize: 2, MaxSize: 3})
	assert.Equal(t, clustering.BySize, cfg.Strategy)
	assert.Zero(t, cfg.K)
	assert.Equal(t, "osrm", cfg.Metric)
	assert.Equal(t, "env-key", cfg.APIKey)

	cfg = h.config(&pipeline.Config{Provider: "nominatim"})
	assert.Equal(t, "nominatim", cfg.Provider)
	assert.Empty(t, cfg.APIKey)
	assert.Equal(t, 4, cfg.K)
}

func TestHandleHealthCheck(t *testing.T) {
	h, r := setupTestHandler(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "memory", body["backend"])

	h.Health = func(ctx context.Context) error { return errors.New("down") }
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "error", body["cache"])
}
