package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"supmap-tracking/internal/navigation"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	costing    Costing
}

type ClientOptions struct {
	Timeout time.Duration
	// RequestsPerSecond bounds the sustained rate of route lookups.
	RequestsPerSecond float64
	Burst             int
	Costing           Costing
}

func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Timeout:           7 * time.Second,
		RequestsPerSecond: 1,
		Burst:             2,
		Costing:           CostingAuto,
	}
}

func NewClient(baseURL string, options ...ClientOptions) *Client {
	opts := DefaultClientOptions()
	if len(options) > 0 {
		opts = options[0]
	}
	if opts.Costing == "" {
		opts.Costing = CostingAuto
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(limit, burst),
		costing:    opts.Costing,
	}
}

// FetchRoute asks the provider for a route from origin to destination.
// Every failure wraps navigation.ErrRouteLookup.
func (c *Client) FetchRoute(ctx context.Context, origin, destination navigation.Point) (navigation.Route, error) {
	routeRequest := RouteRequest{
		Locations: []LocationRequest{
			{Lat: origin.Lat, Lon: origin.Lon},
			{Lat: destination.Lat, Lon: destination.Lon},
		},
		Costing: c.costing,
	}
	if err := routeRequest.Validate(); err != nil {
		return navigation.Route{}, fmt.Errorf("%w: %v", navigation.ErrRouteLookup, err)
	}

	trip, err := c.CalculateRoute(ctx, routeRequest)
	if err != nil {
		return navigation.Route{}, fmt.Errorf("%w: %v", navigation.ErrRouteLookup, err)
	}
	return trip.toRoute()
}

func (c *Client) CalculateRoute(ctx context.Context, routeRequest RouteRequest) (*Trip, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	reqURL, err := url.Parse(c.baseURL + "/route")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	body, err := json.Marshal(routeRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var routeResponse RouteResponse
	if err := json.NewDecoder(resp.Body).Decode(&routeResponse); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(routeResponse.Data) == 0 {
		return nil, fmt.Errorf("no route found")
	}

	return &routeResponse.Data[0], nil
}
