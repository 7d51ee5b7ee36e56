package handler

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/product"
)

// MaxLineQuantity bounds the quantity a single request may set or add.
const MaxLineQuantity = 99

// GetCart returns the session cart with derived count and total.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	writeCart(w, sessionFrom(r).Cart)
}

// AddCartItem adds {productId, quantity} to the cart. The line is priced
// from the catalog; quantity defaults to 1.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var (
		productID string
		quantity  = 1
	)
	ok := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			productID, err = d.Str()
		case "quantity":
			quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	if !ok {
		return
	}
	if productID == "" {
		writeError(w, http.StatusBadRequest, "productId is required")
		return
	}
	if !validQuantity(w, quantity) {
		return
	}

	p, err := h.Products.GetByID(r.Context(), productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		internalError(w, r, "get product", err)
		return
	}
	if !p.Available {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("product %s is not available", p.ID))
		return
	}

	c := sessionFrom(r).Cart
	c.AddItem(cart.Item{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price,
		Quantity: quantity,
		Image:    h.imageURL(p.Image),
	})
	writeCart(w, c)
}

// UpdateCartItem sets the quantity of a line; zero or less removes it.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	quantity, seen := 0, false
	ok := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		seen = true
		var err error
		quantity, err = d.Int()
		return err
	})
	if !ok {
		return
	}
	if !seen {
		writeError(w, http.StatusBadRequest, "quantity is required")
		return
	}
	if quantity > MaxLineQuantity {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("quantity must be at most %d", MaxLineQuantity))
		return
	}

	c := sessionFrom(r).Cart
	if !c.UpdateQuantity(r.PathValue("id"), quantity) {
		writeError(w, http.StatusNotFound, "item not in cart")
		return
	}
	writeCart(w, c)
}

// RemoveCartItem deletes a line from the cart.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	c := sessionFrom(r).Cart
	if !c.RemoveItem(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "item not in cart")
		return
	}
	writeCart(w, c)
}

// ClearCart empties the cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	c := sessionFrom(r).Cart
	c.Clear()
	writeCart(w, c)
}

func validQuantity(w http.ResponseWriter, q int) bool {
	switch {
	case q <= 0:
		writeError(w, http.StatusBadRequest, "quantity must be greater than 0")
		return false
	case q > MaxLineQuantity:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("quantity must be at most %d", MaxLineQuantity))
		return false
	}
	return true
}

func writeCart(w http.ResponseWriter, c *cart.Store) {
	snap := c.Snapshot()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeCart(e, snap)
	})
}
