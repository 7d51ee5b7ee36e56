// Package health serves /livez and /readyz probes backed by periodic checks.
//
// Every check runs on its own ticker. A check turns unhealthy only after
// several consecutive failures (three by default) and healthy again after
// consecutive successes (one by default). Non-critical checks are reported
// but only degrade the probe instead of failing it.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// Probe status values.
const (
	StatusOK        = "ok"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckOption configures a single check.
type CheckOption func(*check)

// NonCritical makes a failing check degrade the probe without failing it.
func NonCritical() CheckOption {
	return func(c *check) { c.critical = false }
}

// Thresholds overrides the consecutive failure and success counts needed to
// flip the check state.
func Thresholds(failure, success int) CheckOption {
	return func(c *check) {
		if failure > 0 {
			c.failureThreshold = failure
		}
		if success > 0 {
			c.successThreshold = success
		}
	}
}

// check is one registered probe. run is only called from the check's own
// goroutine; healthy and lastErr are read concurrently by the endpoints.
type check struct {
	name             string
	timeout          time.Duration
	fn               CheckFunc
	critical         bool
	failureThreshold int
	successThreshold int

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	fails     int
	successes int
}

func newCheck(name string, timeout time.Duration, fn CheckFunc, opts []CheckOption) *check {
	c := &check{
		name:             name,
		timeout:          timeout,
		fn:               fn,
		critical:         true,
		failureThreshold: 3,
		successThreshold: 1,
	}
	for _, o := range opts {
		o(c)
	}
	c.healthy.Store(true)
	return c
}

func (c *check) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.fn(ctx)
	c.lastErr.Store(&err)
	if err != nil {
		c.successes = 0
		c.fails++
		if c.fails >= c.failureThreshold {
			c.healthy.Store(false)
		}
		return
	}
	c.fails = 0
	c.successes++
	if c.successes >= c.successThreshold {
		c.healthy.Store(true)
	}
}

func (c *check) state() string {
	if c.healthy.Load() {
		return StatusOK
	}
	if p := c.lastErr.Load(); p != nil && *p != nil {
		return (*p).Error()
	}
	return StatusUnhealthy
}

// Health holds the liveness and readiness checks of a process.
type Health struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []*check
	readiness []*check
	cancel    context.CancelFunc
}

// New creates a Health that reports not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a check that decides whether the process should
// be restarted.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc, opts ...CheckOption) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, newCheck(name, timeout, fn, opts))
}

// AddReadinessCheck registers a check that decides whether the process
// should receive traffic.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc, opts ...CheckOption) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, newCheck(name, timeout, fn, opts))
}

// Start runs every registered check immediately and then every interval
// until Stop or ctx cancellation.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := slices.Concat(h.liveness, h.readiness)
	h.mu.Unlock()

	for _, c := range checks {
		go loop(ctx, c, interval)
	}
}

func loop(ctx context.Context, c *check, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.run(ctx)
		}
	}
}

// SetReady flips the manual readiness gate, used during startup and drain.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the gate is open and every critical readiness
// check passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	status, _ := evaluate(h.snapshot(true))
	return status != StatusUnhealthy
}

// Stop cancels the check goroutines. Repeated calls are no-ops.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	status, checks := evaluate(h.snapshot(false))
	writeStatus(w, status, checks, "")
}

// ReadyEndpoint serves /readyz. A closed readiness gate answers 503
// regardless of the checks.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	status, checks := evaluate(h.snapshot(true))
	note := ""
	if !h.ready.Load() {
		status = StatusUnhealthy
		note = "service is not ready"
	}
	writeStatus(w, status, checks, note)
}

func (h *Health) snapshot(readiness bool) []*check {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if readiness {
		return slices.Clone(h.readiness)
	}
	return slices.Clone(h.liveness)
}

type result struct {
	name  string
	state string
}

// evaluate folds check states into a probe status: any failing critical
// check is unhealthy, any failing non-critical check is degraded.
func evaluate(checks []*check) (string, []result) {
	status := StatusOK
	out := make([]result, 0, len(checks))
	for _, c := range checks {
		r := result{name: c.name, state: c.state()}
		out = append(out, r)
		if r.state == StatusOK {
			continue
		}
		if c.critical {
			status = StatusUnhealthy
		} else if status == StatusOK {
			status = StatusDegraded
		}
	}
	return status, out
}

func writeStatus(w http.ResponseWriter, status string, checks []result, note string) {
	code := http.StatusOK
	if status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	e.Str(status)
	if note != "" {
		e.FieldStart("reason")
		e.Str(note)
	}
	if len(checks) > 0 {
		e.FieldStart("checks")
		e.ObjStart()
		for _, c := range checks {
			e.FieldStart(c.name)
			e.Str(c.state)
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}
