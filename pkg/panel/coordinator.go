package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vjranagit/promdash/pkg/promapi"
	"github.com/vjranagit/promdash/pkg/types"
)

// errPrefix is prepended to every user-visible query failure message.
const errPrefix = "Error executing query: "

// defaultPointTarget is the number of data points the automatic
// resolution aims for on a graph.
const defaultPointTarget = 250

// Callbacks notify the owning party of coordinator activity. All
// callbacks are invoked outside the coordinator's lock and must not call
// back into the coordinator synchronously.
type Callbacks struct {
	// OnOptionsChanged fires when the coordinator itself rewrites an
	// option, e.g. persisting a transiently executed expression.
	OnOptionsChanged func(Options)
	// OnExecuteQuery fires once per execution attempt, before the
	// request is issued, even for an empty expression.
	OnExecuteQuery func(expr string)
	// OnStateChanged fires with a snapshot after every state mutation.
	OnStateChanged func(State)
}

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	Client    promapi.Client
	Callbacks Callbacks
	Logger    *slog.Logger
	Metrics   *Metrics
	// Now is the clock used for "now" instants and load timing. Defaults
	// to time.Now.
	Now func() time.Time
}

// Coordinator drives a panel's query lifecycle: it derives parameters
// from the current options, keeps at most one request in flight, cancels
// a superseded request before issuing its successor, and reconciles
// completions into State. Responses of superseded requests never mutate
// state, regardless of arrival order.
type Coordinator struct {
	client  promapi.Client
	cb      Callbacks
	log     *slog.Logger
	metrics *Metrics
	now     func() time.Time

	mu     sync.Mutex
	opts   Options
	state  State
	cancel context.CancelFunc
	gen    uint64
	closed bool
}

// NewCoordinator creates an idle coordinator. The first SetOptions call
// triggers the first execution.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		client:  cfg.Client,
		cb:      cfg.Callbacks,
		log:     log,
		metrics: cfg.Metrics,
		now:     now,
	}
}

// SetOptions applies an options update. A change to expression, mode,
// range, end time or resolution re-executes the query; other fields are
// recorded without side effects.
func (c *Coordinator) SetOptions(next Options) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	prev := c.opts
	c.opts = next
	if !relevantChange(prev, next) {
		c.mu.Unlock()
		return
	}
	fires := c.executeLocked(prev.Mode != next.Mode)
	c.mu.Unlock()
	for _, f := range fires {
		f()
	}
}

// Execute runs the given expression, persisting it into the options via
// OnOptionsChanged when it differs from the configured one.
func (c *Coordinator) Execute(expr string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	var fires []func()
	if expr != c.opts.Expr {
		c.opts.Expr = expr
		if f := c.cb.OnOptionsChanged; f != nil {
			opts := c.opts
			fires = append(fires, func() { f(opts) })
		}
	}
	fires = append(fires, c.executeLocked(false)...)
	c.mu.Unlock()
	for _, f := range fires {
		f()
	}
}

// Refresh re-executes the query with the current options.
func (c *Coordinator) Refresh() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	fires := c.executeLocked(false)
	c.mu.Unlock()
	for _, f := range fires {
		f()
	}
}

// State returns a snapshot of the current render state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Options returns the options the coordinator currently holds.
func (c *Coordinator) Options() Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

// Close aborts any in-flight request and makes the coordinator inert.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.releaseLocked()
}

// executeLocked starts an execution attempt for the current options and
// returns the callbacks to fire once the lock is released. clearData
// marks a mode switch: the previous payload shape cannot be assumed safe
// for the new view, so it is dropped before the request is issued.
func (c *Coordinator) executeLocked(clearData bool) []func() {
	expr := c.opts.Expr

	var fires []func()
	if f := c.cb.OnExecuteQuery; f != nil {
		fires = append(fires, func() { f(expr) })
	}

	if clearData && c.state.Data != nil {
		c.state.Data = nil
		c.state.LastParams = nil
	}

	if expr == "" {
		c.releaseLocked()
		c.state.Loading = false
		fires = append(fires, c.stateFireLocked())
		return fires
	}

	params := c.deriveParamsLocked()

	// At most one request in flight: the previous one is aborted before
	// its successor exists.
	c.releaseLocked()
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.gen++

	c.state.Loading = true
	if c.metrics != nil {
		c.metrics.InFlight.Inc()
	}
	fires = append(fires, c.stateFireLocked())

	go c.run(ctx, c.gen, expr, c.opts.Mode, params, c.now())
	return fires
}

// deriveParamsLocked computes query parameters from the current options.
// An unrecognized mode is a caller bug and panics.
func (c *Coordinator) deriveParamsLocked() QueryParams {
	switch c.opts.Mode {
	case ModeTable, ModeGraph:
	default:
		panic(fmt.Sprintf("panel: unknown mode %v", c.opts.Mode))
	}

	var endMs int64
	if c.opts.EndTime != nil {
		endMs = *c.opts.EndTime
	} else {
		endMs = c.now().UnixMilli()
	}
	end := endMs / 1000

	var step int64
	if c.opts.ResolutionSeconds != nil {
		step = *c.opts.ResolutionSeconds
	} else {
		step = c.opts.RangeSeconds / defaultPointTarget
		if step < 1 {
			step = 1
		}
	}

	return QueryParams{
		Start: end - c.opts.RangeSeconds,
		End:   end,
		Step:  step,
	}
}

// run performs the request and reconciles its completion. It runs off
// the caller's goroutine; all state access happens under the lock, and a
// superseded generation is discarded without touching state.
func (c *Coordinator) run(ctx context.Context, gen uint64, expr string, mode Mode, params QueryParams, started time.Time) {
	if c.metrics != nil {
		defer c.metrics.InFlight.Dec()
	}

	var resp *types.APIResponse
	var err error
	switch mode {
	case ModeTable:
		resp, err = c.client.Query(ctx, expr, params.End)
	case ModeGraph:
		resp, err = c.client.QueryRange(ctx, expr, params.Start, params.End, params.Step)
	}

	c.mu.Lock()
	if c.closed || gen != c.gen || ctx.Err() != nil || errors.Is(err, context.Canceled) {
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.QueriesTotal.WithLabelValues(mode.String(), "canceled").Inc()
		}
		c.log.Debug("discarding superseded query response", "expr", expr)
		return
	}
	c.releaseLocked()
	c.state.Loading = false

	outcome := "success"
	var detail string
	switch {
	case err != nil:
		detail = err.Error()
		c.failLocked(detail)
		outcome = "error"
	case resp.Status != types.StatusSuccess:
		detail = resp.Error
		if detail == "" {
			detail = fmt.Sprintf("unexpected response status %q", resp.Status)
		}
		c.failLocked(detail)
		outcome = "error"
	default:
		c.state.Data = resp.Data
		c.state.LastParams = &params
		c.state.Err = ""
		c.state.Stats = &Stats{
			LoadTimeMs:        c.now().Sub(started).Milliseconds(),
			ResolutionSeconds: params.Step,
			ResultSeriesCount: resp.Data.SeriesCount(),
		}
	}
	fire := c.stateFireLocked()
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.QueriesTotal.WithLabelValues(mode.String(), outcome).Inc()
		c.metrics.QueryDuration.WithLabelValues(mode.String()).Observe(c.now().Sub(started).Seconds())
	}
	if outcome == "success" {
		c.log.Debug("query succeeded", "expr", expr, "mode", mode.String())
	} else {
		c.log.Warn("query failed", "expr", expr, "mode", mode.String(), "detail", detail)
	}
	fire()
}

// failLocked records a failure. Data and LastParams from a prior success
// are deliberately retained.
func (c *Coordinator) failLocked(detail string) {
	c.state.Err = errPrefix + detail
	c.state.Stats = nil
}

// releaseLocked aborts the in-flight request slot, if occupied.
func (c *Coordinator) releaseLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// stateFireLocked snapshots the state and returns a deferred
// OnStateChanged invocation.
func (c *Coordinator) stateFireLocked() func() {
	f := c.cb.OnStateChanged
	if f == nil {
		return func() {}
	}
	snap := c.state
	return func() { f(snap) }
}
