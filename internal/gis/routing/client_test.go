package routing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supmap-tracking/internal/navigation"
)

var (
	origin      = navigation.Point{Lat: 16.20, Lon: 77.70}
	destination = navigation.Point{Lat: 16.2253, Lon: 77.8097}
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, ClientOptions{Timeout: 2 * time.Second})
}

func TestFetchRoute_Success(t *testing.T) {
	var got RouteRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/route", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`{
			"data": [{
				"legs": [
					{"shape": [{"latitude":16.20,"longitude":77.70},{"latitude":16.21,"longitude":77.75}]},
					{"shape": [{"latitude":16.21,"longitude":77.75},{"latitude":16.2253,"longitude":77.8097}]}
				],
				"summary": {"length": 4200, "time": 480}
			}],
			"message": "ok"
		}`))
	})

	route, err := client.FetchRoute(context.Background(), origin, destination)
	require.NoError(t, err)

	require.Len(t, got.Locations, 2)
	assert.Equal(t, LocationRequest{Lat: 16.20, Lon: 77.70}, got.Locations[0])
	assert.Equal(t, LocationRequest{Lat: 16.2253, Lon: 77.8097}, got.Locations[1])
	assert.Equal(t, CostingAuto, got.Costing)

	assert.Len(t, route.Polyline, 3, "shared leg junction is kept once")
	assert.Equal(t, destination, route.Polyline[2])
	assert.Equal(t, "4.2 km", navigation.FormatDistance(route.Distance))
	assert.Equal(t, "8 min", navigation.FormatDuration(route.Duration))
}

func TestFetchRoute_Failures(t *testing.T) {
	tests := []struct {
		name string
		h    http.HandlerFunc
	}{
		{
			name: "non success status",
			h: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "no route",
			h: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"data": [], "message": "no route"}`))
			},
		},
		{
			name: "malformed body",
			h: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"data": [`))
			},
		},
		{
			name: "empty geometry",
			h: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"data": [{"legs": [], "summary": {"length": 10, "time": 5}}]}`))
			},
		},
		{
			name: "out of range geometry",
			h: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"data": [{"legs": [{"shape": [{"latitude":123,"longitude":0}]}], "summary": {"length": 10, "time": 5}}]}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.h)
			_, err := client.FetchRoute(context.Background(), origin, destination)
			require.Error(t, err)
			assert.True(t, errors.Is(err, navigation.ErrRouteLookup))
		})
	}
}

func TestFetchRoute_ContextCanceled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchRoute(ctx, origin, destination)
	assert.True(t, errors.Is(err, navigation.ErrRouteLookup))
}

func TestRouteRequestValidate(t *testing.T) {
	assert.Error(t, RouteRequest{Costing: CostingAuto}.Validate())
	assert.Error(t, RouteRequest{
		Locations: []LocationRequest{{}, {}},
		Costing:   "hovercraft",
	}.Validate())
	assert.NoError(t, RouteRequest{
		Locations: []LocationRequest{{}, {}},
		Costing:   CostingPedestrian,
	}.Validate())
}
