// Package notify holds the per-session list of user-facing notifications
// (toasts). Notifications with a non-zero duration expire on their own;
// expiry is evaluated lazily whenever the list is read or mutated.
package notify

import (
	"crypto/rand"
	"encoding/hex"
	"slices"
	"strconv"
	"sync"
	"time"
)

// Type is the severity of a notification.
type Type string

const (
	TypeSuccess Type = "success"
	TypeError   Type = "error"
	TypeWarning Type = "warning"
	TypeInfo    Type = "info"
)

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	switch t {
	case TypeSuccess, TypeError, TypeWarning, TypeInfo:
		return true
	}
	return false
}

// Action is an optional call to action attached to a notification.
type Action struct {
	Label string
	// Link is the client route the action navigates to, if any.
	Link string
	// Effect runs when the action is invoked through Bus.Invoke.
	Effect func()
}

// Notification is a single toast. Duration zero means it persists until
// dismissed.
type Notification struct {
	ID        string
	Type      Type
	Title     string
	Message   string
	Duration  time.Duration
	Action    *Action
	CreatedAt time.Time
}

// ExpiresAt returns the expiry instant, or the zero time for persistent
// notifications.
func (n Notification) ExpiresAt() time.Time {
	if n.Duration <= 0 {
		return time.Time{}
	}
	return n.CreatedAt.Add(n.Duration)
}

// Expired reports whether n is past its duration at now.
func (n Notification) Expired(now time.Time) bool {
	return n.Duration > 0 && !now.Before(n.CreatedAt.Add(n.Duration))
}

// Option configures a Bus.
type Option func(*Bus)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// WithLimit caps the number of active notifications; the oldest are dropped
// first. Zero disables the cap.
func WithLimit(n int) Option {
	return func(b *Bus) { b.limit = n }
}

// Bus is the active notification list of one session. It is safe for
// concurrent use.
type Bus struct {
	mu    sync.Mutex
	items []Notification
	now   func() time.Time
	limit int
}

// NewBus creates an empty Bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{now: time.Now}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Add appends n with a freshly generated id and returns that id. Any ID or
// CreatedAt set by the caller is overwritten.
func (b *Bus) Add(n Notification) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.pruneLocked(now)

	n.ID = newID(now)
	n.CreatedAt = now
	if !n.Type.Valid() {
		n.Type = TypeInfo
	}
	b.items = append(b.items, n)
	if b.limit > 0 && len(b.items) > b.limit {
		b.items = slices.Delete(b.items, 0, len(b.items)-b.limit)
	}
	return n.ID
}

// Remove dismisses the notification with the given id. Removing an unknown
// or already expired id is a no-op.
func (b *Bus) Remove(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pruneLocked(b.now())
	return b.removeLocked(id)
}

// Clear dismisses every notification.
func (b *Bus) Clear() {
	b.mu.Lock()
	b.items = nil
	b.mu.Unlock()
}

// Active returns the notifications that have not expired, oldest first.
func (b *Bus) Active() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pruneLocked(b.now())
	return slices.Clone(b.items)
}

// Len returns the number of active notifications.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pruneLocked(b.now())
	return len(b.items)
}

// Invoke runs the action effect of notification id and dismisses it. It
// reports false when the notification is gone or carries no action.
func (b *Bus) Invoke(id string) bool {
	b.mu.Lock()
	b.pruneLocked(b.now())
	var effect func()
	found := false
	for _, n := range b.items {
		if n.ID == id && n.Action != nil {
			effect = n.Action.Effect
			found = true
			break
		}
	}
	if found {
		b.removeLocked(id)
	}
	b.mu.Unlock()

	// Effects may call back into the bus.
	if effect != nil {
		effect()
	}
	return found
}

func (b *Bus) removeLocked(id string) bool {
	i := slices.IndexFunc(b.items, func(n Notification) bool { return n.ID == id })
	if i < 0 {
		return false
	}
	b.items = slices.Delete(b.items, i, i+1)
	return true
}

func (b *Bus) pruneLocked(now time.Time) {
	b.items = slices.DeleteFunc(b.items, func(n Notification) bool {
		return n.Expired(now)
	})
}

// newID returns a base36 millisecond timestamp followed by a random suffix.
func newID(now time.Time) string {
	var buf [5]byte
	_, _ = rand.Read(buf[:])
	return strconv.FormatInt(now.UnixMilli(), 36) + "-" + hex.EncodeToString(buf[:])
}
