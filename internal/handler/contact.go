package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/contact"
)

// SubmitContact stores a contact form message.
func (h *Handler) SubmitContact(w http.ResponseWriter, r *http.Request) {
	var name, email, message string
	ok := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			name, err = d.Str()
		case "email":
			email, err = d.Str()
		case "message":
			message, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if !ok {
		return
	}

	m, err := h.Contact.Submit(r.Context(), name, email, message)
	if err != nil {
		var fe *contact.FieldError
		if errors.As(err, &fe) {
			writeFieldError(w, fe.Field, err.Error())
			return
		}
		internalError(w, r, "submit contact", err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(m.ID)
		e.ObjEnd()
	})
}
