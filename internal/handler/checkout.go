package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/order"
)

// Checkout places an order for the session cart. The body carries the
// customer; the lines come from a cart snapshot, and exactly those
// quantities leave the cart on success.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var customer order.Customer
	ok := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "customer" {
			return d.Skip()
		}
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "name":
				customer.Name, err = d.Str()
			case "email":
				customer.Email, err = d.Str()
			case "address":
				customer.Address, err = d.Str()
			case "phone":
				customer.Phone, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		})
	})
	if !ok {
		return
	}

	s := sessionFrom(r)
	lines := s.Cart.Items()
	req := order.CheckoutRequest{
		Customer: customer,
		Items:    make([]order.Item, 0, len(lines)),
	}
	for _, l := range lines {
		req.Items = append(req.Items, order.Item{ProductID: l.ID, Quantity: l.Quantity})
	}

	o, err := h.Orders.Checkout(r.Context(), req)
	if err != nil {
		var (
			customerErr    *order.CustomerError
			notFoundErr    *order.ProductNotFoundError
			unavailableErr *order.ProductUnavailableError
			quantityErr    *order.InvalidQuantityError
		)
		switch {
		case errors.Is(err, order.ErrEmptyCart):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &customerErr):
			writeFieldError(w, "customer."+customerErr.Field, err.Error())
		case errors.As(err, &notFoundErr),
			errors.As(err, &unavailableErr),
			errors.As(err, &quantityErr):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			internalError(w, r, "checkout", err)
		}
		return
	}

	s.Cart.RemoveOrdered(lines)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}
