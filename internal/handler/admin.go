package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/auth"
)

// APIKeyHeader carries the admin API key.
const APIKeyHeader = "api_key"

// requireKey rejects requests without a valid API key holding scope.
func (h *Handler) requireKey(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, ok := h.authenticate(w, r)
		if !ok {
			return
		}
		if !info.Allows(scope) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r.WithContext(auth.WithKey(r.Context(), info)))
	}
}

// AdminLogin verifies the API key and returns its identity.
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	info, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(info.ID)
		e.FieldStart("name")
		e.Str(info.Name)
		e.FieldStart("scopes")
		e.ArrStart()
		for _, s := range info.Scopes {
			e.Str(s)
		}
		e.ArrEnd()
		e.ObjEnd()
	})
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (*auth.APIKeyInfo, bool) {
	key := r.Header.Get(APIKeyHeader)
	if key == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}

	info, err := h.Auth.Authenticate(r.Context(), key)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return nil, false
		}
		internalError(w, r, "authenticate", err)
		return nil, false
	}
	return info, true
}
