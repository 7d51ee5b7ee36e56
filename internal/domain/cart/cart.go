// Package cart implements the session shopping cart.
//
// A Store owns the ordered line items of one session. Every mutation that
// changes the cart publishes exactly one notification; no-op calls publish
// nothing.
package cart

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/notify"
)

// Notification durations.
const (
	addedDuration   = 3 * time.Second
	removedDuration = 3 * time.Second
	updatedDuration = 2 * time.Second
	clearedDuration = 4 * time.Second
)

// Item is a single cart line. ID is the product identifier and is unique
// within a cart.
type Item struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Quantity int
	Image    string
}

// Subtotal returns Price × Quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Notifier receives cart events. *notify.Bus implements it.
type Notifier interface {
	Add(n notify.Notification) string
}

type discardNotifier struct{}

func (discardNotifier) Add(notify.Notification) string { return "" }

// Store is the cart of one session. It is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	items    []Item
	notifier Notifier
}

// NewStore creates an empty cart publishing to n. A nil n discards
// notifications.
func NewStore(n Notifier) *Store {
	if n == nil {
		n = discardNotifier{}
	}
	return &Store{notifier: n}
}

// AddItem appends item, or adds item.Quantity to the existing line with the
// same ID. Quantities and prices are the caller's responsibility. It returns
// the resulting line.
func (s *Store) AddItem(item Item) Item {
	s.mu.Lock()
	added := item.Quantity
	i := s.indexLocked(item.ID)
	merged := i >= 0
	if merged {
		s.items[i].Quantity += added
		item = s.items[i]
	} else {
		s.items = append(s.items, item)
	}
	s.mu.Unlock()

	if merged {
		s.notifier.Add(notify.Notification{
			Type:     notify.TypeSuccess,
			Title:    "Item Updated",
			Message:  fmt.Sprintf("Added %d more %s to cart", added, item.Name),
			Duration: addedDuration,
		})
		return item
	}
	s.notifier.Add(notify.Notification{
		Type:     notify.TypeSuccess,
		Title:    "Added to Cart",
		Message:  fmt.Sprintf("%s has been added to your cart", item.Name),
		Duration: addedDuration,
		Action:   &notify.Action{Label: "View Cart", Link: "/cart"},
	})
	return item
}

// RemoveItem deletes the line with the given id. It reports whether a line
// was removed.
func (s *Store) RemoveItem(id string) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	removed := s.items[i]
	s.items = slices.Delete(s.items, i, i+1)
	s.mu.Unlock()

	s.notifier.Add(notify.Notification{
		Type:     notify.TypeInfo,
		Title:    "Item Removed",
		Message:  fmt.Sprintf("%s has been removed from your cart", removed.Name),
		Duration: removedDuration,
	})
	return true
}

// UpdateQuantity sets the quantity of line id. A quantity of zero or less
// removes the line. It reports whether the line existed.
func (s *Store) UpdateQuantity(id string, quantity int) bool {
	if quantity <= 0 {
		return s.RemoveItem(id)
	}

	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.items[i].Quantity = quantity
	name := s.items[i].Name
	s.mu.Unlock()

	s.notifier.Add(notify.Notification{
		Type:     notify.TypeInfo,
		Title:    "Quantity Updated",
		Message:  fmt.Sprintf("%s quantity changed to %d", name, quantity),
		Duration: updatedDuration,
	})
	return true
}

// Clear empties the cart and returns the number of lines removed.
func (s *Store) Clear() int {
	s.mu.Lock()
	n := len(s.items)
	s.items = nil
	s.mu.Unlock()

	if n == 0 {
		return 0
	}
	s.notifier.Add(notify.Notification{
		Type:     notify.TypeWarning,
		Title:    "Cart Cleared",
		Message:  fmt.Sprintf("All %d items have been removed from your cart", n),
		Duration: clearedDuration,
	})
	return n
}

// RemoveOrdered takes the quantities of ordered out of the cart. Lines that
// reach zero are removed; lines added or topped up after ordered was taken
// keep the difference. It returns the number of lines touched and publishes
// a single notification when that number is positive.
func (s *Store) RemoveOrdered(ordered []Item) int {
	s.mu.Lock()
	touched := 0
	for _, o := range ordered {
		i := s.indexLocked(o.ID)
		if i < 0 || o.Quantity <= 0 {
			continue
		}
		touched++
		if s.items[i].Quantity <= o.Quantity {
			s.items = slices.Delete(s.items, i, i+1)
			continue
		}
		s.items[i].Quantity -= o.Quantity
	}
	remaining := len(s.items)
	s.mu.Unlock()

	if touched == 0 {
		return 0
	}
	if remaining == 0 {
		s.notifier.Add(notify.Notification{
			Type:     notify.TypeWarning,
			Title:    "Cart Cleared",
			Message:  fmt.Sprintf("All %d items have been removed from your cart", touched),
			Duration: clearedDuration,
		})
		return touched
	}
	s.notifier.Add(notify.Notification{
		Type:     notify.TypeInfo,
		Title:    "Cart Updated",
		Message:  fmt.Sprintf("%d ordered items were removed, %d remain in your cart", touched, remaining),
		Duration: clearedDuration,
	})
	return touched
}

// TotalAmount returns Σ(price × quantity).
func (s *Store) TotalAmount() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for _, it := range s.items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// Count returns Σ(quantity).
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, it := range s.items {
		n += it.Quantity
	}
	return n
}

// Items returns a copy of the lines in insertion order.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.items)
}

// Get returns the line with the given id.
func (s *Store) Get(id string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexLocked(id); i >= 0 {
		return s.items[i], true
	}
	return Item{}, false
}

// Snapshot is a consistent view of the cart.
type Snapshot struct {
	Items []Item
	Count int
	Total decimal.Decimal
}

// Snapshot returns items, count and total taken under one lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Items: slices.Clone(s.items), Total: decimal.Zero}
	for _, it := range s.items {
		snap.Count += it.Quantity
		snap.Total = snap.Total.Add(it.Subtotal())
	}
	return snap
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.items, func(it Item) bool { return it.ID == id })
}
