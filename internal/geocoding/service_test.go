package geocoding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-planner/internal/database"
	"trip-planner/internal/models"
	"trip-planner/internal/testutil"
)

const springfield = "123 Main St, Springfield, IL 62701"

func newNominatimServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if r.URL.Query().Get("q") != springfield {
			w.Write([]byte(`[]`))
			return
		}
		w.Write([]byte(`[{"lat":"39.78","lon":"-89.65"}]`))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestGeocodeNominatimPopulatesCache(t *testing.T) {
	var calls int32
	server := newNominatimServer(t, &calls)
	cache := database.NewMemoryGeocodeCache()

	svc := NewService(NewNominatim(server.URL), cache)
	svc.SetDelay(0)

	entry, err := svc.Geocode(context.Background(), springfield)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, models.GeocodeCacheEntry{Lat: 39.78, Lon: -89.65, UsedVariant: springfield}, *entry)

	cached, err := cache.Get(context.Background(), springfield)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, *entry, *cached)
}

func TestGeocodeCacheRoundTripSingleNetworkCall(t *testing.T) {
	var calls int32
	server := newNominatimServer(t, &calls)

	cache, err := database.NewFileGeocodeCache(filepath.Join(t.TempDir(), "geocodes.json"))
	require.NoError(t, err)

	svc := NewService(NewNominatim(server.URL), cache)
	svc.SetDelay(0)

	first, err := svc.Geocode(context.Background(), springfield)
	require.NoError(t, err)
	second, err := svc.Geocode(context.Background(), springfield)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, first, second)
}

func TestGeocodeTriesVariantsInOrder(t *testing.T) {
	provider := testutil.NewScriptedGeocoder(map[string]models.Coordinates{
		"9 Elm St, Chatham, IL 62629": {Lat: 39.67, Lon: -89.70},
	})
	svc := NewService(provider, nil)

	entry, err := svc.Geocode(context.Background(), "9 Elm St Apt 3, Chatham, IL 62629-1111")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "9 Elm St, Chatham, IL 62629", entry.UsedVariant)
	assert.Equal(t, []string{
		"9 Elm St Apt 3, Chatham, IL 62629-1111",
		"9 Elm St, Chatham, IL 62629-1111",
		"9 Elm St, Chatham, IL 62629",
	}, provider.Queries)
}

func TestGeocodeUnresolvedReturnsNil(t *testing.T) {
	provider := testutil.NewScriptedGeocoder(nil)
	svc := NewService(provider, nil)

	entry, err := svc.Geocode(context.Background(), "1 Nowhere Rd")
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Equal(t, len(Variants("1 Nowhere Rd")), provider.QueryCount())
}

func TestGeocodeEmptySkipsProvider(t *testing.T) {
	provider := testutil.NewScriptedGeocoder(nil)
	svc := NewService(provider, nil)

	entry, err := svc.Geocode(context.Background(), "  ")
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Equal(t, 0, provider.QueryCount())
}

func TestGeocodeSpacesRequests(t *testing.T) {
	provider := testutil.NewScriptedGeocoder(map[string]models.Coordinates{
		"1 A St": {Lat: 1, Lon: 1},
		"2 B St": {Lat: 2, Lon: 2},
	})
	provider.Wait = 50 * time.Millisecond
	svc := NewService(provider, nil)

	_, err := svc.Geocode(context.Background(), "1 A St")
	require.NoError(t, err)
	_, err = svc.Geocode(context.Background(), "2 B St")
	require.NoError(t, err)

	require.Len(t, provider.Times, 2)
	assert.GreaterOrEqual(t, provider.Times[1].Sub(provider.Times[0]), 50*time.Millisecond)
}

func TestGeocodeRetriesThrottledRequestsWithSpacing(t *testing.T) {
	var mu sync.Mutex
	var times []time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		times = append(times, time.Now())
		n := len(times)
		mu.Unlock()

		if n <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`[{"lat":"39.78","lon":"-89.65"}]`))
	}))
	defer server.Close()

	provider := NewNominatim(server.URL).(*nominatim)
	provider.delay = 100 * time.Millisecond
	svc := NewService(provider, nil)

	entry, err := svc.Geocode(context.Background(), springfield)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 39.78, entry.Lat)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, times, 3)
	for i := 1; i < len(times); i++ {
		assert.GreaterOrEqual(t, times[i].Sub(times[i-1]), provider.Delay(), "gap %d", i)
	}
}

func TestGeocodeDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	svc := NewService(NewNominatim(server.URL), nil)
	svc.SetDelay(0)

	entry, err := svc.Geocode(context.Background(), springfield)
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Equal(t, int32(len(Variants(springfield))), atomic.LoadInt32(&calls))
}

func TestGeocodeAllSplitsAndClassifies(t *testing.T) {
	provider := testutil.NewScriptedGeocoder(map[string]models.Coordinates{
		"1 Oak St, Springfield, IL 62701":   {Lat: 39.80, Lon: -89.64},
		"2 Elm St, Springfield, IL 62702":   {Lat: 39.79, Lon: -89.66},
		"4 Birch St, Springfield, IL 62704": {Lat: 39.75, Lon: -89.61},
	})
	svc := NewService(provider, nil)

	records := []models.Record{
		{Name: "Ada", Address: "1 Oak St, Springfield, IL 62701", Extra: map[string]string{"phone": "555"}},
		{Name: "Bo", Address: "Main Street"},
		{Name: "Cy", Address: "2 Elm St, Springfield, IL 62702"},
		{Name: "Di", Address: ""},
		{Name: "Ed", Address: "3 Pine St, Springfield, IL"},
		{Name: "Fay", Address: "4 Birch St, Springfield, IL 62704"},
	}

	batch, err := svc.GeocodeAll(context.Background(), records)
	require.NoError(t, err)

	require.Len(t, batch.Geocoded, 3)
	assert.Equal(t, "Ada", batch.Geocoded[0].Name)
	assert.Equal(t, "555", batch.Geocoded[0].Extra["phone"])
	assert.Equal(t, "Cy", batch.Geocoded[1].Name)
	assert.Equal(t, "Fay", batch.Geocoded[2].Name)

	require.Len(t, batch.Failed, 3)
	assert.Equal(t, models.FailedGeocode{Name: "Bo", Address: "Main Street", Reason: models.ReasonNoLeadingNumber}, batch.Failed[0])
	assert.Equal(t, models.ReasonEmpty, batch.Failed[1].Reason)
	assert.Equal(t, models.ReasonMissingZip, batch.Failed[2].Reason)
}

func TestGeocodeAllCancelledKeepsPartialResults(t *testing.T) {
	provider := testutil.NewScriptedGeocoder(map[string]models.Coordinates{
		"1 A St": {Lat: 1, Lon: 1},
		"2 B St": {Lat: 2, Lon: 2},
	})
	cache := database.NewMemoryGeocodeCache()
	svc := NewService(provider, cache)
	svc.SetDelay(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, cache.Set(ctx, "0 Pre St", &models.GeocodeCacheEntry{Lat: 0, Lon: 0, UsedVariant: "0 Pre St"}))

	// First record is a cache hit, second is the first provider call, third would wait an hour
	records := []models.Record{{Name: "pre", Address: "0 Pre St"}, {Name: "a", Address: "1 A St"}, {Name: "b", Address: "2 B St"}}
	go func() {
		for provider.QueryCount() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	batch, err := svc.GeocodeAll(ctx, records)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, batch.Geocoded, 2)
	assert.Equal(t, "pre", batch.Geocoded[0].Name)
	assert.Equal(t, "a", batch.Geocoded[1].Name)
	assert.Empty(t, batch.Failed)
	assert.Equal(t, 1, provider.QueryCount())
}

func TestApplyFixWithCoordinates(t *testing.T) {
	cache := database.NewMemoryGeocodeCache()
	svc := NewService(testutil.NewScriptedGeocoder(nil), cache)
	item := models.FailedGeocode{Name: "Bo", Address: "Main Street", Reason: models.ReasonNoLeadingNumber}

	lat, lon := 39.7, -89.6
	point, stillFailed, err := svc.ApplyFix(context.Background(), item, Fix{Lat: &lat, Lon: &lon}, nil)
	require.NoError(t, err)
	assert.Nil(t, stillFailed)
	require.NotNil(t, point)
	assert.Equal(t, "Main Street", point.Address)
	assert.Equal(t, 39.7, point.Lat)

	cached, err := cache.Get(context.Background(), "Main Street")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, ManualVariant, cached.UsedVariant)
}

func TestApplyFixRejectsBadInput(t *testing.T) {
	svc := NewService(testutil.NewScriptedGeocoder(nil), nil)
	item := models.FailedGeocode{Name: "Bo", Address: "Main Street"}

	lat, lon := 91.0, 0.0
	_, _, err := svc.ApplyFix(context.Background(), item, Fix{Lat: &lat, Lon: &lon}, nil)
	assert.ErrorIs(t, err, ErrInvalidCoordinates)

	_, _, err = svc.ApplyFix(context.Background(), item, Fix{}, nil)
	assert.ErrorIs(t, err, ErrEmptyFix)
}

func TestApplyFixWithCorrectedAddress(t *testing.T) {
	provider := testutil.NewScriptedGeocoder(map[string]models.Coordinates{
		"12 Main St, Springfield, IL 62701": {Lat: 39.8, Lon: -89.6},
	})
	cache := database.NewMemoryGeocodeCache()
	svc := NewService(provider, cache)
	item := models.FailedGeocode{Name: "Bo", Address: "Main Street", Reason: models.ReasonNoLeadingNumber}

	point, stillFailed, err := svc.ApplyFix(context.Background(), item, Fix{Address: "12 Main St, Springfield, IL 62701"}, nil)
	require.NoError(t, err)
	assert.Nil(t, stillFailed)
	require.NotNil(t, point)
	assert.Equal(t, "12 Main St, Springfield, IL 62701", point.Address)
	assert.Equal(t, "Bo", point.Name)

	// The original key now resolves without another lookup
	cached, err := cache.Get(context.Background(), "Main Street")
	require.NoError(t, err)
	assert.NotNil(t, cached)
}

func TestApplyFixCorrectedAddressStillFails(t *testing.T) {
	svc := NewService(testutil.NewScriptedGeocoder(nil), nil)
	item := models.FailedGeocode{Name: "Bo", Address: "Main Street", Reason: models.ReasonNoLeadingNumber}

	point, stillFailed, err := svc.ApplyFix(context.Background(), item, Fix{Address: "12 Main St"}, nil)
	require.NoError(t, err)
	assert.Nil(t, point)
	require.NotNil(t, stillFailed)
	assert.Equal(t, "12 Main St", stillFailed.Address)
	assert.Equal(t, models.ReasonNotFound, stillFailed.Reason)
}
