package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/category"
)

// ListCategories returns every category.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.Categories.List(r.Context())
	if err != nil {
		internalError(w, r, "list categories", err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, c := range cats {
			encodeCategory(e, c)
		}
		e.ArrEnd()
	})
}

// GetCategory returns a single category.
func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
	c, err := h.Categories.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		categoryError(w, r, "get category", err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeCategory(e, *c)
	})
}

// CreateCategory adds a category. The ID defaults to a slug of the name.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var c category.Category
	ok := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			c.ID, err = d.Str()
		case "name":
			c.Name, err = d.Str()
		case "description":
			c.Description, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if !ok {
		return
	}

	created, err := h.Categories.Create(r.Context(), c)
	if err != nil {
		categoryError(w, r, "create category", err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeCategory(e, *created)
	})
}

// UpdateCategory renames or redescribes a category.
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var patch category.Patch
	ok := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "name":
			return decodeStrPtr(d, &patch.Name)
		case "description":
			return decodeStrPtr(d, &patch.Description)
		default:
			return d.Skip()
		}
	})
	if !ok {
		return
	}

	updated, err := h.Categories.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		categoryError(w, r, "update category", err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeCategory(e, *updated)
	})
}

// DeleteCategory removes a category. Products keep their category value.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.Categories.Delete(r.Context(), r.PathValue("id")); err != nil {
		categoryError(w, r, "delete category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func categoryError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var fe *category.FieldError
	switch {
	case errors.As(err, &fe):
		writeFieldError(w, fe.Field, err.Error())
	case errors.Is(err, category.ErrNoChanges):
		writeError(w, http.StatusBadRequest, category.ErrNoChanges.Error())
	case errors.Is(err, category.ErrNotFound):
		writeError(w, http.StatusNotFound, "category not found")
	case errors.Is(err, category.ErrExists):
		writeError(w, http.StatusConflict, "category already exists")
	default:
		internalError(w, r, op, err)
	}
}

func encodeCategory(e *jx.Encoder, c category.Category) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(c.ID)
	e.FieldStart("name")
	e.Str(c.Name)
	e.FieldStart("description")
	e.Str(c.Description)
	e.FieldStart("createdAt")
	encodeTime(e, c.CreatedAt)
	e.ObjEnd()
}
