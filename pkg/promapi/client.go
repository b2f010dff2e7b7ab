// Package promapi implements a client for the Prometheus-compatible v1
// query API. Requests carry the caller's context as the cancellation
// signal and bypass intermediate caches.
package promapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/vjranagit/promdash/pkg/types"
)

const (
	queryPath      = "/api/v1/query"
	queryRangePath = "/api/v1/query_range"
)

// Client executes instant and range queries against a metrics backend.
type Client interface {
	// Query evaluates expr at the instant ts (epoch seconds).
	Query(ctx context.Context, expr string, ts int64) (*types.APIResponse, error)
	// QueryRange evaluates expr over [start, end] at the given step, all
	// in epoch seconds.
	QueryRange(ctx context.Context, expr string, start, end, step int64) (*types.APIResponse, error)
}

// HTTPClient is the HTTP implementation of Client.
type HTTPClient struct {
	base *url.URL
	hc   *http.Client
}

// NewHTTPClient creates a client for the backend at baseURL. A zero
// timeout disables the client-side deadline; cancellation then rests
// entirely on the request context.
func NewHTTPClient(baseURL string, timeout time.Duration) (*HTTPClient, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	return &HTTPClient{
		base: base,
		hc:   &http.Client{Timeout: timeout},
	}, nil
}

// Query implements Client.Query.
func (c *HTTPClient) Query(ctx context.Context, expr string, ts int64) (*types.APIResponse, error) {
	params := url.Values{}
	params.Set("query", expr)
	params.Set("time", strconv.FormatInt(ts, 10))
	return c.get(ctx, queryPath, params)
}

// QueryRange implements Client.QueryRange.
func (c *HTTPClient) QueryRange(ctx context.Context, expr string, start, end, step int64) (*types.APIResponse, error) {
	params := url.Values{}
	params.Set("query", expr)
	params.Set("start", strconv.FormatInt(start, 10))
	params.Set("end", strconv.FormatInt(end, 10))
	params.Set("step", strconv.FormatInt(step, 10))
	return c.get(ctx, queryRangePath, params)
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values) (*types.APIResponse, error) {
	// JoinPath keeps any path prefix on the base URL.
	u := c.base.JoinPath(path)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("Pragma", "no-cache")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var apiResp types.APIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		// A backend failure detail travels in the envelope when there is
		// one; without it, surface the HTTP status.
		if resp.StatusCode/100 != 2 {
			return nil, fmt.Errorf("backend returned %s", resp.Status)
		}
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &apiResp, nil
}
