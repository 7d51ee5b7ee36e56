// Package ratelimit implements per-identity sliding window rate limiting.
//
// A Limiter enforces one Policy (for example "5 requests per 15 minutes")
// against a Store. The Store keeps a log of admitted request timestamps per
// key and performs the prune, count and record steps atomically, so two
// concurrent checks for the same identity can never both take the last slot.
//
// When the Store fails or times out the Limiter fails open: the request is
// admitted and the failure is logged.
package ratelimit

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

// Policy is a named request budget.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Predefined policies for the storefront endpoint classes.
var (
	AuthPolicy    = Policy{Name: "auth", Limit: 5, Window: 15 * time.Minute}
	APIPolicy     = Policy{Name: "api", Limit: 30, Window: time.Minute}
	UploadPolicy  = Policy{Name: "upload", Limit: 3, Window: time.Minute}
	ContactPolicy = Policy{Name: "contact", Limit: 2, Window: time.Hour}
)

func (p Policy) validate() error {
	switch {
	case p.Name == "":
		return errors.New("policy name is required")
	case p.Limit <= 0:
		return errors.Errorf("policy %s: limit must be positive", p.Name)
	case p.Window <= 0:
		return errors.Errorf("policy %s: window must be positive", p.Name)
	}
	return nil
}

// Result is the outcome of a single check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is when the oldest counted request leaves the window and a
	// slot frees up.
	ResetAt time.Time
	// Degraded is set when the store failed and the request was admitted
	// without being counted.
	Degraded bool
}

// Window is the state of one key after a Store hit.
type Window struct {
	// Admitted reports whether the hit was recorded.
	Admitted bool
	// Count is the number of hits inside the window, including this one
	// when admitted.
	Count int
	// Oldest is the timestamp of the oldest hit still inside the window.
	Oldest time.Time
}

// Store is a sliding window log keyed by string. Hit must, as one atomic
// step, drop entries at or before now-window, record now if fewer than
// limit entries remain, and report the resulting window.
type Store interface {
	Hit(ctx context.Context, key string, now time.Time, limit int, window time.Duration) (Window, error)
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets the logger used to report store failures.
func WithLogger(lg *zap.Logger) Option {
	return func(l *Limiter) {
		l.lg = lg
	}
}

// WithTimeout bounds each store operation. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(l *Limiter) {
		l.timeout = d
	}
}

// WithMeterProvider enables decision counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(l *Limiter) {
		l.meter = mp.Meter("github.com/xenking/storefront/pkg/ratelimit")
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// Limiter enforces a Policy against a Store.
type Limiter struct {
	policy  Policy
	store   Store
	lg      *zap.Logger
	timeout time.Duration
	now     func() time.Time

	meter     metric.Meter
	decisions metric.Int64Counter
}

// New creates a Limiter for policy backed by store.
func New(policy Policy, store Store, opts ...Option) (*Limiter, error) {
	if err := policy.validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("store is required")
	}

	l := &Limiter{
		policy:  policy,
		store:   store,
		lg:      zap.NewNop(),
		timeout: 500 * time.Millisecond,
		now:     time.Now,
		meter:   noop.NewMeterProvider().Meter(""),
	}
	for _, o := range opts {
		o(l)
	}

	decisions, err := l.meter.Int64Counter("storefront.ratelimit.decisions",
		metric.WithDescription("Rate limit decisions by policy and outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create decisions counter")
	}
	l.decisions = decisions

	return l, nil
}

// Policy returns the enforced policy.
func (l *Limiter) Policy() Policy {
	return l.policy
}

// Check counts one request from identity and reports whether it may
// proceed. Check never returns a denial because of a store failure.
func (l *Limiter) Check(ctx context.Context, identity string) Result {
	now := l.now()

	storeCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		storeCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	w, err := l.store.Hit(storeCtx, l.key(identity), now, l.policy.Limit, l.policy.Window)
	if err != nil {
		l.lg.Warn("Rate limit store unavailable, failing open",
			zap.String("policy", l.policy.Name),
			zap.String("identity", identity),
			zap.Error(err),
		)
		l.record(ctx, "fail_open")
		return Result{
			Allowed:   true,
			Limit:     l.policy.Limit,
			Remaining: 0,
			ResetAt:   now,
			Degraded:  true,
		}
	}

	res := Result{
		Allowed: w.Admitted,
		Limit:   l.policy.Limit,
		ResetAt: w.Oldest.Add(l.policy.Window),
	}
	if w.Admitted {
		res.Remaining = max(l.policy.Limit-w.Count, 0)
		l.record(ctx, "allowed")
	} else {
		l.record(ctx, "denied")
	}
	return res
}

func (l *Limiter) key(identity string) string {
	return "ratelimit:" + l.policy.Name + ":" + identity
}

func (l *Limiter) record(ctx context.Context, outcome string) {
	l.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("policy", l.policy.Name),
		attribute.String("outcome", outcome),
	))
}
