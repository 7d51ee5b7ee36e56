package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/product"
)

// ListProducts returns the catalog, narrowed to one category by the
// category query parameter.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	f := product.Filter{Category: strings.TrimSpace(r.URL.Query().Get("category"))}
	products, err := h.Products.List(r.Context(), f)
	if err != nil {
		internalError(w, r, "list products", err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, p := range products {
			h.encodeProduct(e, p)
		}
		e.ArrEnd()
	})
}

// GetProduct returns a single product by ID.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Products.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		internalError(w, r, "get product", err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		h.encodeProduct(e, *p)
	})
}

// CreateProduct adds a product to the catalog. Products are available unless
// the body says otherwise.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	p := product.Product{Available: true}
	ok := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "price":
			p.Price, err = decodeDecimal(d)
		case "category":
			p.Category, err = d.Str()
		case "image":
			p.Image, err = d.Str()
		case "available":
			p.Available, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	if !ok {
		return
	}

	created, err := h.Catalog.Create(r.Context(), p)
	if err != nil {
		h.catalogError(w, r, "create product", err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		h.encodeProduct(e, *created)
	})
}

// UpdateProduct changes the fields present in the body.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var patch product.Patch
	ok := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "name":
			return decodeStrPtr(d, &patch.Name)
		case "description":
			return decodeStrPtr(d, &patch.Description)
		case "price":
			v, err := decodeDecimal(d)
			patch.Price = &v
			return err
		case "category":
			return decodeStrPtr(d, &patch.Category)
		case "image":
			return decodeStrPtr(d, &patch.Image)
		case "available":
			v, err := d.Bool()
			patch.Available = &v
			return err
		default:
			return d.Skip()
		}
	})
	if !ok {
		return
	}

	updated, err := h.Catalog.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		h.catalogError(w, r, "update product", err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		h.encodeProduct(e, *updated)
	})
}

// DeleteProduct removes a product from the catalog.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.catalogError(w, r, "delete product", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) catalogError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var fe *product.FieldError
	switch {
	case errors.As(err, &fe):
		writeFieldError(w, fe.Field, err.Error())
	case errors.Is(err, product.ErrNoChanges):
		writeError(w, http.StatusBadRequest, product.ErrNoChanges.Error())
	case errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, product.ErrExists):
		writeError(w, http.StatusConflict, "product already exists")
	default:
		internalError(w, r, op, err)
	}
}
