package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/media"
	"github.com/xenking/storefront/internal/domain/notify"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, code int, message string) {
	httpmiddleware.WriteError(w, code, message, nil)
}

// writeFieldError answers 400 naming the offending field.
func writeFieldError(w http.ResponseWriter, field, message string) {
	httpmiddleware.WriteError(w, http.StatusBadRequest, message, func(e *jx.Encoder) {
		e.FieldStart("field")
		e.Str(field)
	})
}

// internalError logs err and answers 500 without leaking details.
func internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	zctx.From(r.Context()).Error("Request failed",
		zap.String("op", op),
		zap.String("request_id", httpmiddleware.RequestIDFromContext(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// decodeObject reads a JSON object from the request body, calling field for
// every key. Unknown keys must be skipped by field.
func decodeObject(w http.ResponseWriter, r *http.Request, field func(d *jx.Decoder, key string) error) bool {
	d := jx.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes), 4096)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return field(d, string(key))
	})
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	writeError(w, http.StatusBadRequest, "invalid request body")
	return false
}

// decodeDecimal reads a JSON number or numeric string without going through
// float64.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(n.String())
}

func decodeStrPtr(d *jx.Decoder, dst **string) error {
	s, err := d.Str()
	if err != nil {
		return err
	}
	*dst = &s
	return nil
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func (h *Handler) encodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("price")
	e.Float64(p.Price.InexactFloat64())
	e.FieldStart("category")
	e.Str(p.Category)
	e.FieldStart("image")
	e.Str(h.imageURL(p.Image))
	e.FieldStart("available")
	e.Bool(p.Available)
	e.ObjEnd()
}

func encodeCart(e *jx.Encoder, snap cart.Snapshot) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range snap.Items {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(it.ID)
		e.FieldStart("name")
		e.Str(it.Name)
		e.FieldStart("price")
		e.Float64(it.Price.InexactFloat64())
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		if it.Image != "" {
			e.FieldStart("image")
			e.Str(it.Image)
		}
		e.FieldStart("subtotal")
		e.Float64(it.Subtotal().InexactFloat64())
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("count")
	e.Int(snap.Count)
	e.FieldStart("total")
	e.Float64(snap.Total.InexactFloat64())
	e.ObjEnd()
}

func encodeNotification(e *jx.Encoder, n notify.Notification) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(n.ID)
	e.FieldStart("type")
	e.Str(string(n.Type))
	e.FieldStart("title")
	e.Str(n.Title)
	if n.Message != "" {
		e.FieldStart("message")
		e.Str(n.Message)
	}
	e.FieldStart("durationMs")
	e.Int64(n.Duration.Milliseconds())
	e.FieldStart("createdAt")
	encodeTime(e, n.CreatedAt)
	if exp := n.ExpiresAt(); !exp.IsZero() {
		e.FieldStart("expiresAt")
		encodeTime(e, exp)
	}
	if a := n.Action; a != nil {
		e.FieldStart("action")
		e.ObjStart()
		e.FieldStart("label")
		e.Str(a.Label)
		if a.Link != "" {
			e.FieldStart("link")
			e.Str(a.Link)
		}
		e.ObjEnd()
	}
	e.ObjEnd()
}

func encodeImage(e *jx.Encoder, img media.Image) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(img.ID)
	e.FieldStart("filename")
	e.Str(img.Filename)
	e.FieldStart("url")
	e.Str(img.URL)
	e.FieldStart("title")
	e.Str(img.Title)
	e.FieldStart("description")
	e.Str(img.Description)
	e.FieldStart("contentType")
	e.Str(img.ContentType)
	e.FieldStart("size")
	e.Int64(img.Size)
	e.FieldStart("order")
	e.Int(img.Order)
	e.FieldStart("uploadedAt")
	encodeTime(e, img.UploadedAt)
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("total")
	e.Float64(o.Total.InexactFloat64())
	e.FieldStart("items")
	e.ArrStart()
	for _, l := range o.Items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(l.ProductID)
		e.FieldStart("name")
		e.Str(l.Name)
		e.FieldStart("price")
		e.Float64(l.Price.InexactFloat64())
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("customer")
	e.ObjStart()
	e.FieldStart("name")
	e.Str(o.Customer.Name)
	e.FieldStart("email")
	e.Str(o.Customer.Email)
	e.FieldStart("address")
	e.Str(o.Customer.Address)
	if o.Customer.Phone != "" {
		e.FieldStart("phone")
		e.Str(o.Customer.Phone)
	}
	e.ObjEnd()
	e.FieldStart("createdAt")
	encodeTime(e, o.CreatedAt)
	e.ObjEnd()
}
