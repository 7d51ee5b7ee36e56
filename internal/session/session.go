// Package session keeps the in-process state owned by a browser session:
// its cart and its notification bus. Nothing here is persisted; an idle
// session is dropped by Sweep.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/notify"
)

// Session is the state of one client.
type Session struct {
	ID            string
	Cart          *cart.Store
	Notifications *notify.Bus

	lastSeen time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source of the registry and of the
// notification buses it creates.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithMaxNotifications caps the active notifications per session.
func WithMaxNotifications(n int) Option {
	return func(r *Registry) { r.maxNotifications = n }
}

// Registry maps session ids to sessions.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	idleTTL          time.Duration
	maxNotifications int
	now              func() time.Time
}

// NewRegistry creates a Registry evicting sessions idle for longer than
// idleTTL.
func NewRegistry(idleTTL time.Duration, opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		idleTTL:  idleTTL,
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Get returns the live session with the given id and refreshes its idle
// timer.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	now := r.now()
	if r.expiredLocked(s, now) {
		delete(r.sessions, id)
		return nil, false
	}
	s.lastSeen = now
	return s, true
}

// Create starts a new session with a random id.
func (r *Registry) Create() *Session {
	bus := notify.NewBus(notify.WithClock(r.now), notify.WithLimit(r.maxNotifications))
	s := &Session{
		ID:            uuid.NewString(),
		Cart:          cart.NewStore(bus),
		Notifications: bus,
	}

	r.mu.Lock()
	s.lastSeen = r.now()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

// Resolve returns the session for id, creating a new one when id is unknown
// or expired. created reports whether a new session was started.
func (r *Registry) Resolve(id string) (s *Session, created bool) {
	if id != "" {
		if s, ok := r.Get(id); ok {
			return s, false
		}
	}
	return r.Create(), true
}

// Delete drops the session with the given id.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Len returns the number of tracked sessions, expired ones included until
// the next Sweep.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep removes expired sessions and returns how many were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, s := range r.sessions {
		if r.expiredLocked(s, now) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps at the given interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	lg := zctx.From(ctx).Named("session")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				lg.Debug("Evicted idle sessions", zap.Int("count", n), zap.Int("remaining", r.Len()))
			}
		}
	}
}

func (r *Registry) expiredLocked(s *Session, now time.Time) bool {
	return r.idleTTL > 0 && now.Sub(s.lastSeen) >= r.idleTTL
}
