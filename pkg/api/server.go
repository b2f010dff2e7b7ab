package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/vjranagit/promdash/pkg/storage"
	"github.com/vjranagit/promdash/pkg/types"
)

// Server implements the backend HTTP API: the Prometheus-compatible v1
// query endpoints, ingestion, and health.
type Server struct {
	store  storage.Store
	addr   string
	log    *slog.Logger
	server *http.Server
	extra  map[string]http.Handler
}

// NewServer creates a new API server.
func NewServer(addr string, store storage.Store, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		store: store,
		addr:  addr,
		log:   log,
		extra: make(map[string]http.Handler),
	}
}

// Handle mounts an additional handler (metrics, panel transport) on the
// server's mux. Must be called before Start.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.extra[pattern] = h
}

// Handler builds the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/write", s.handleWrite)
	mux.HandleFunc("/api/v1/query", s.handleQuery)
	mux.HandleFunc("/api/v1/query_range", s.handleQueryRange)
	mux.HandleFunc("/health", s.handleHealth)
	for pattern, h := range s.extra {
		mux.Handle(pattern, h)
	}
	return mux
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// No write timeout: panel WebSocket sessions are long-lived.
	}
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleWrite handles remote write requests.
func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req types.WriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_data", fmt.Sprintf("invalid request: %v", err))
		return
	}
	req.TenantID = tenantID(r)

	if err := s.store.Write(r.Context(), &req); err != nil {
		s.log.Error("write failed", "tenant", req.TenantID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, &types.APIResponse{Status: types.StatusSuccess})
}

// handleQuery evaluates an expression at a single instant.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	expr := r.URL.Query().Get("query")
	if expr == "" {
		writeError(w, http.StatusBadRequest, "bad_data", "missing query parameter")
		return
	}

	ts, err := parseTimeParam(r.URL.Query().Get("time"), time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_data", err.Error())
		return
	}

	result, err := s.store.QueryInstant(r.Context(), &types.InstantQuery{
		TenantID: tenantID(r),
		Query:    expr,
		Time:     ts,
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "execution", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, &types.APIResponse{
		Status: types.StatusSuccess,
		Data:   types.VectorData(result.Series),
	})
}

// handleQueryRange evaluates an expression over a range at a step.
func (s *Server) handleQueryRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	expr := q.Get("query")
	if expr == "" {
		writeError(w, http.StatusBadRequest, "bad_data", "missing query parameter")
		return
	}

	now := time.Now()
	start, err := parseTimeParam(q.Get("start"), now.Add(-time.Hour))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_data", err.Error())
		return
	}
	end, err := parseTimeParam(q.Get("end"), now)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_data", err.Error())
		return
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "bad_data", "end is before start")
		return
	}

	stepSec, err := strconv.ParseInt(q.Get("step"), 10, 64)
	if err != nil || stepSec <= 0 {
		writeError(w, http.StatusBadRequest, "bad_data", "step must be a positive integer of seconds")
		return
	}

	result, err := s.store.QueryRange(r.Context(), &types.RangeQuery{
		TenantID: tenantID(r),
		Query:    expr,
		Start:    start,
		End:      end,
		Step:     time.Duration(stepSec) * time.Second,
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "execution", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, &types.APIResponse{
		Status: types.StatusSuccess,
		Data:   types.MatrixData(result.Series),
	})
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// tenantID extracts the tenant from the request header, defaulting to
// "default" for single-tenant deployments.
func tenantID(r *http.Request) string {
	if id := r.Header.Get("X-Tenant-ID"); id != "" {
		return id
	}
	return "default"
}

// parseTimeParam parses a time parameter as unix seconds (integer or
// float) or RFC3339, falling back to def when absent.
func parseTimeParam(value string, def time.Time) (time.Time, error) {
	if value == "" {
		return def, nil
	}
	if sec, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Unix(int64(sec), 0).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid time value %q", value)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, errorType, msg string) {
	writeJSON(w, code, &types.APIResponse{
		Status:    types.StatusError,
		ErrorType: errorType,
		Error:     msg,
	})
}
