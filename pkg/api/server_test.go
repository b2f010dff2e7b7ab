package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vjranagit/promdash/pkg/types"
)

// fakeStore records the queries it receives and replays canned results.
type fakeStore struct {
	lastWrite   *types.WriteRequest
	lastInstant *types.InstantQuery
	lastRange   *types.RangeQuery
	series      []types.Series
	err         error
}

func (f *fakeStore) Write(ctx context.Context, req *types.WriteRequest) error {
	f.lastWrite = req
	return f.err
}

func (f *fakeStore) QueryRange(ctx context.Context, q *types.RangeQuery) (*types.QueryResult, error) {
	f.lastRange = q
	if f.err != nil {
		return nil, f.err
	}
	return &types.QueryResult{Series: f.series}, nil
}

func (f *fakeStore) QueryInstant(ctx context.Context, q *types.InstantQuery) (*types.QueryResult, error) {
	f.lastInstant = q
	if f.err != nil {
		return nil, f.err
	}
	return &types.QueryResult{Series: f.series}, nil
}

func (f *fakeStore) Close() error { return nil }

func newTestServer(store *fakeStore) http.Handler {
	return NewServer(":0", store, nil).Handler()
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) *types.APIResponse {
	t.Helper()
	var resp types.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return &resp
}

func TestWriteEndpoint(t *testing.T) {
	store := &fakeStore{}
	handler := newTestServer(store)

	body := `{"series":[{"metric":{"name":"cpu_usage","labels":{"host":"a"}},"samples":[]}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/write", strings.NewReader(body))
	req.Header.Set("X-Tenant-ID", "team-a")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp := decodeResponse(t, rec); resp.Status != types.StatusSuccess {
		t.Errorf("Expected success status, got %s", resp.Status)
	}
	if store.lastWrite == nil || store.lastWrite.TenantID != "team-a" {
		t.Errorf("Expected write for tenant team-a, got %+v", store.lastWrite)
	}
}

func TestWriteEndpointRejectsGet(t *testing.T) {
	handler := newTestServer(&fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/write", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", rec.Code)
	}
}

func TestWriteEndpointBadJSON(t *testing.T) {
	handler := newTestServer(&fakeStore{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/write", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rec.Code)
	}
	if resp := decodeResponse(t, rec); resp.ErrorType != "bad_data" {
		t.Errorf("Expected bad_data error type, got %s", resp.ErrorType)
	}
}

func TestQueryEndpoint(t *testing.T) {
	store := &fakeStore{series: []types.Series{
		{
			Metric:  types.Metric{Name: "up", Labels: map[string]string{"job": "node"}},
			Samples: []types.Sample{{Timestamp: time.Unix(1700000000, 0), Value: 1}},
		},
	}}
	handler := newTestServer(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/query?query=up&time=1700000000", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if resp.Status != types.StatusSuccess {
		t.Fatalf("Expected success, got %s: %s", resp.Status, resp.Error)
	}
	if resp.Data == nil || resp.Data.ResultType != types.ValVector {
		t.Fatalf("Expected vector data, got %+v", resp.Data)
	}
	if resp.Data.SeriesCount() != 1 {
		t.Errorf("Expected 1 series, got %d", resp.Data.SeriesCount())
	}

	if store.lastInstant == nil {
		t.Fatal("Expected an instant query to reach the store")
	}
	if store.lastInstant.TenantID != "default" {
		t.Errorf("Expected default tenant, got %s", store.lastInstant.TenantID)
	}
	if store.lastInstant.Time.Unix() != 1700000000 {
		t.Errorf("Expected evaluation at 1700000000, got %d", store.lastInstant.Time.Unix())
	}
}

func TestQueryEndpointMissingExpression(t *testing.T) {
	handler := newTestServer(&fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/query", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestQueryEndpointExecutionError(t *testing.T) {
	store := &fakeStore{err: errors.New("unsupported query expression")}
	handler := newTestServer(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/query?query=rate(x[5m])", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status 422, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.ErrorType != "execution" {
		t.Errorf("Expected execution error type, got %s", resp.ErrorType)
	}
	if resp.Error == "" {
		t.Error("Expected an error detail")
	}
}

func TestQueryRangeEndpoint(t *testing.T) {
	store := &fakeStore{series: []types.Series{
		{
			Metric: types.Metric{Name: "cpu_usage"},
			Samples: []types.Sample{
				{Timestamp: time.Unix(1699999970, 0), Value: 1},
				{Timestamp: time.Unix(1699999985, 0), Value: 2},
				{Timestamp: time.Unix(1700000000, 0), Value: 3},
			},
		},
	}}
	handler := newTestServer(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/query_range?query=cpu_usage&start=1699999970&end=1700000000&step=15", nil)
	req.Header.Set("X-Tenant-ID", "team-b")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if resp.Data == nil || resp.Data.ResultType != types.ValMatrix {
		t.Fatalf("Expected matrix data, got %+v", resp.Data)
	}
	if len(resp.Data.Matrix) != 1 || len(resp.Data.Matrix[0].Values) != 3 {
		t.Errorf("Unexpected matrix shape: %+v", resp.Data.Matrix)
	}

	if store.lastRange == nil {
		t.Fatal("Expected a range query to reach the store")
	}
	if store.lastRange.TenantID != "team-b" {
		t.Errorf("Expected tenant team-b, got %s", store.lastRange.TenantID)
	}
	if store.lastRange.Step != 15*time.Second {
		t.Errorf("Expected step 15s, got %s", store.lastRange.Step)
	}
	if store.lastRange.Start.Unix() != 1699999970 || store.lastRange.End.Unix() != 1700000000 {
		t.Errorf("Unexpected range [%d, %d]", store.lastRange.Start.Unix(), store.lastRange.End.Unix())
	}
}

func TestQueryRangeEndpointValidation(t *testing.T) {
	handler := newTestServer(&fakeStore{})

	tests := []struct {
		name string
		url  string
	}{
		{"missing step", "/api/v1/query_range?query=up&start=1&end=2"},
		{"zero step", "/api/v1/query_range?query=up&start=1&end=2&step=0"},
		{"negative step", "/api/v1/query_range?query=up&start=1&end=2&step=-5"},
		{"end before start", "/api/v1/query_range?query=up&start=2000&end=1000&step=15"},
		{"bad start", "/api/v1/query_range?query=up&start=yesterday&end=2&step=15"},
		{"missing query", "/api/v1/query_range?start=1&end=2&step=15"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", rec.Code)
			}
		})
	}
}

func TestQueryRangeAcceptsRFC3339(t *testing.T) {
	store := &fakeStore{}
	handler := newTestServer(store)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/query_range?query=up&start=2023-11-14T21:00:00Z&end=2023-11-14T22:00:00Z&step=60", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.lastRange == nil {
		t.Fatal("Expected a range query to reach the store")
	}
	if got := store.lastRange.End.Sub(store.lastRange.Start); got != time.Hour {
		t.Errorf("Expected a one hour range, got %s", got)
	}
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestServer(&fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %s", ct)
	}
}

func TestExtraHandlerMounted(t *testing.T) {
	srv := NewServer(":0", &fakeStore{}, nil)
	srv.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "# metrics" {
		t.Errorf("Expected mounted handler to answer, got %d %q", rec.Code, rec.Body.String())
	}
}
