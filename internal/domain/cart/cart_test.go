package cart

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/notify"
)

type recorder struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recorder) Add(n notify.Notification) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return "id"
}

func (r *recorder) reset() { r.sent = nil }

func newTestStore() (*Store, *recorder) {
	rec := &recorder{}
	return NewStore(rec), rec
}

func widget(qty int) Item {
	return Item{ID: "p1", Name: "Widget", Price: decimal.RequireFromString("9.99"), Quantity: qty, Image: "w.jpg"}
}

func gadget(qty int) Item {
	return Item{ID: "p2", Name: "Gadget", Price: decimal.RequireFromString("20.50"), Quantity: qty}
}

func TestAddItem_AppendsNew(t *testing.T) {
	s, rec := newTestStore()

	got := s.AddItem(widget(2))

	assert.Equal(t, 2, got.Quantity)
	require.Len(t, rec.sent, 1)
	n := rec.sent[0]
	assert.Equal(t, notify.TypeSuccess, n.Type)
	assert.Equal(t, "Added to Cart", n.Title)
	assert.Equal(t, "Widget has been added to your cart", n.Message)
	require.NotNil(t, n.Action)
	assert.Equal(t, "View Cart", n.Action.Label)
	assert.Equal(t, "/cart", n.Action.Link)
}

func TestAddItem_MergesSameID(t *testing.T) {
	s, rec := newTestStore()

	quantities := []int{1, 3, 2, 5}
	for _, q := range quantities {
		s.AddItem(widget(q))
	}

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 11, items[0].Quantity)

	require.Len(t, rec.sent, len(quantities))
	assert.Equal(t, "Added to Cart", rec.sent[0].Title)
	for _, n := range rec.sent[1:] {
		assert.Equal(t, "Item Updated", n.Title)
		assert.Equal(t, notify.TypeSuccess, n.Type)
		assert.Nil(t, n.Action)
	}
	assert.Equal(t, "Added 3 more Widget to cart", rec.sent[1].Message)
}

func TestAddItem_KeepsInsertionOrder(t *testing.T) {
	s, _ := newTestStore()

	s.AddItem(gadget(1))
	s.AddItem(widget(1))
	s.AddItem(gadget(4))
	s.UpdateQuantity("p2", 7)

	items := s.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "p2", items[0].ID)
	assert.Equal(t, "p1", items[1].ID)
	assert.Equal(t, 7, items[0].Quantity)
}

func TestRemoveItem(t *testing.T) {
	s, rec := newTestStore()
	s.AddItem(widget(1))
	rec.reset()

	assert.False(t, s.RemoveItem("missing"))
	assert.Empty(t, rec.sent)

	assert.True(t, s.RemoveItem("p1"))
	assert.Empty(t, s.Items())
	require.Len(t, rec.sent, 1)
	assert.Equal(t, notify.TypeInfo, rec.sent[0].Type)
	assert.Equal(t, "Item Removed", rec.sent[0].Title)
	assert.Equal(t, "Widget has been removed from your cart", rec.sent[0].Message)
}

func TestUpdateQuantity(t *testing.T) {
	t.Run("sets not adds", func(t *testing.T) {
		s, rec := newTestStore()
		s.AddItem(widget(4))
		rec.reset()

		assert.True(t, s.UpdateQuantity("p1", 2))
		it, ok := s.Get("p1")
		require.True(t, ok)
		assert.Equal(t, 2, it.Quantity)
		require.Len(t, rec.sent, 1)
		assert.Equal(t, "Quantity Updated", rec.sent[0].Title)
		assert.Equal(t, "Widget quantity changed to 2", rec.sent[0].Message)
	})

	for _, q := range []int{0, -5} {
		t.Run("non-positive removes", func(t *testing.T) {
			s, rec := newTestStore()
			s.AddItem(widget(3))
			rec.reset()

			assert.True(t, s.UpdateQuantity("p1", q))
			_, ok := s.Get("p1")
			assert.False(t, ok)
			require.Len(t, rec.sent, 1)
			assert.Equal(t, "Item Removed", rec.sent[0].Title)
		})
	}

	t.Run("unknown id is a no-op", func(t *testing.T) {
		s, rec := newTestStore()
		s.AddItem(widget(1))
		rec.reset()

		assert.False(t, s.UpdateQuantity("missing", 3))
		assert.False(t, s.UpdateQuantity("missing", 0))
		assert.Empty(t, rec.sent)
	})
}

func TestClear(t *testing.T) {
	s, rec := newTestStore()

	assert.Zero(t, s.Clear())
	assert.Empty(t, rec.sent)

	s.AddItem(widget(5))
	s.AddItem(gadget(1))
	rec.reset()

	assert.Equal(t, 2, s.Clear())
	assert.Empty(t, s.Items())
	require.Len(t, rec.sent, 1)
	assert.Equal(t, notify.TypeWarning, rec.sent[0].Type)
	assert.Equal(t, "Cart Cleared", rec.sent[0].Title)
	assert.Equal(t, "All 2 items have been removed from your cart", rec.sent[0].Message)

	rec.reset()
	assert.Zero(t, s.Clear())
	assert.Empty(t, rec.sent)
}

func TestRemoveOrdered(t *testing.T) {
	t.Run("whole cart ordered", func(t *testing.T) {
		s, rec := newTestStore()
		s.AddItem(widget(2))
		s.AddItem(gadget(1))
		ordered := s.Items()
		rec.reset()

		assert.Equal(t, 2, s.RemoveOrdered(ordered))
		assert.Empty(t, s.Items())
		require.Len(t, rec.sent, 1)
		assert.Equal(t, notify.TypeWarning, rec.sent[0].Type)
		assert.Equal(t, "Cart Cleared", rec.sent[0].Title)
		assert.Equal(t, "All 2 items have been removed from your cart", rec.sent[0].Message)
	})

	t.Run("changes after the snapshot survive", func(t *testing.T) {
		s, rec := newTestStore()
		s.AddItem(widget(2))
		ordered := s.Items()

		s.AddItem(widget(3))
		s.AddItem(gadget(1))
		rec.reset()

		assert.Equal(t, 1, s.RemoveOrdered(ordered))
		items := s.Items()
		require.Len(t, items, 2)
		assert.Equal(t, "p1", items[0].ID)
		assert.Equal(t, 3, items[0].Quantity)
		assert.Equal(t, "p2", items[1].ID)
		assert.Equal(t, 1, items[1].Quantity)

		require.Len(t, rec.sent, 1)
		assert.Equal(t, notify.TypeInfo, rec.sent[0].Type)
		assert.Equal(t, "Cart Updated", rec.sent[0].Title)
		assert.Equal(t, "1 ordered items were removed, 2 remain in your cart", rec.sent[0].Message)
	})

	t.Run("lines removed meanwhile are skipped", func(t *testing.T) {
		s, rec := newTestStore()
		s.AddItem(widget(2))
		ordered := s.Items()
		s.RemoveItem("p1")
		rec.reset()

		assert.Zero(t, s.RemoveOrdered(ordered))
		assert.Empty(t, rec.sent)
	})
}

func TestTotals(t *testing.T) {
	s, _ := newTestStore()

	assert.True(t, decimal.Zero.Equal(s.TotalAmount()))
	assert.Zero(t, s.Count())

	s.AddItem(widget(3))
	s.AddItem(gadget(2))
	s.AddItem(Item{ID: "p3", Name: "Freebie", Price: decimal.Zero, Quantity: 4})

	// 3*9.99 + 2*20.50 + 0
	assert.True(t, decimal.RequireFromString("70.97").Equal(s.TotalAmount()), s.TotalAmount().String())
	assert.Equal(t, 9, s.Count())

	snap := s.Snapshot()
	assert.Len(t, snap.Items, 3)
	assert.Equal(t, 9, snap.Count)
	assert.True(t, s.TotalAmount().Equal(snap.Total))
}

func TestItems_ReturnsCopy(t *testing.T) {
	s, _ := newTestStore()
	s.AddItem(widget(1))

	items := s.Items()
	items[0].Quantity = 99

	it, _ := s.Get("p1")
	assert.Equal(t, 1, it.Quantity)
}

func TestNilNotifier(t *testing.T) {
	s := NewStore(nil)
	s.AddItem(widget(1))
	s.UpdateQuantity("p1", 2)
	assert.Equal(t, 2, s.Count())
	assert.Equal(t, 1, s.Clear())
}

func TestConcurrentAdds(t *testing.T) {
	bus := notify.NewBus()
	s := NewStore(bus)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddItem(widget(2))
		}()
	}
	wg.Wait()

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 100, items[0].Quantity)
	assert.Equal(t, 50, bus.Len())
}
