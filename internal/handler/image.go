package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/media"
	"github.com/xenking/storefront/pkg/upload"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const multipartMemory = 1 << 20

// ListImages returns the gallery in display order.
func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) {
	images, err := h.Media.List(r.Context())
	if err != nil {
		internalError(w, r, "list images", err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, img := range images {
			encodeImage(e, img)
		}
		e.ArrEnd()
	})
}

// UploadImage stores the multipart "file" field in the gallery. Uploading
// content that is already stored returns the existing image with 200.
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer func() { _ = file.Close() }()

	req := media.UploadRequest{
		File: upload.File{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        file,
		},
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
	}
	if v := r.FormValue("order"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "order must be an integer")
			return
		}
		req.Order = n
	}

	img, created, err := h.Media.Upload(r.Context(), req)
	if err != nil {
		var ve *upload.ValidationError
		if errors.As(err, &ve) {
			writeRejection(w, ve)
			return
		}
		internalError(w, r, "upload image", err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("image")
		encodeImage(e, *img)
		e.FieldStart("duplicate")
		e.Bool(!created)
		e.ObjEnd()
	})
}

// DeleteImage removes an image and its blob.
func (h *Handler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	if err := h.Media.Delete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, media.ErrNotFound) {
			writeError(w, http.StatusNotFound, "image not found")
			return
		}
		internalError(w, r, "delete image", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeRejection(w http.ResponseWriter, ve *upload.ValidationError) {
	reason := rejectionReason(ve.Kind)
	status := http.StatusBadRequest
	if errors.Is(ve.Kind, upload.ErrFileTooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(ve.Message)
		e.FieldStart("reason")
		e.Str(reason)
		e.ObjEnd()
	})
}

func rejectionReason(kind error) string {
	switch kind {
	case upload.ErrTypeNotAllowed:
		return "type_not_allowed"
	case upload.ErrExtensionMismatch:
		return "extension_mismatch"
	case upload.ErrFileTooLarge:
		return "too_large"
	case upload.ErrFileTooSmall:
		return "too_small"
	case upload.ErrSignatureMismatch:
		return "signature_mismatch"
	case upload.ErrDimensionsExceeded:
		return "dimensions_exceeded"
	case upload.ErrUnreadableImage:
		return "unreadable_image"
	default:
		return "invalid"
	}
}
