package httpmiddleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/pkg/ratelimit"
)

// LoopbackIdentity is the identity used when a request carries no usable
// client address at all.
const LoopbackIdentity = "127.0.0.1"

// KeyFunc extracts the rate limit identity from a request.
type KeyFunc func(*http.Request) string

// ClientIP resolves the client address from proxy headers, preferring the
// one that is hardest for the client to forge:
//
//  1. CF-Connecting-IP (set by the CDN edge)
//  2. the first X-Forwarded-For entry
//  3. X-Real-IP
//
// and falls back to LoopbackIdentity.
func ClientIP(r *http.Request) string {
	if ip := headerIP(r); ip != "" {
		return ip
	}
	return LoopbackIdentity
}

// ClientIPOrPeer is ClientIP for servers reachable without a proxy: when no
// header is present it uses the connection peer address before falling back
// to LoopbackIdentity.
func ClientIPOrPeer(r *http.Request) string {
	if ip := headerIP(r); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return LoopbackIdentity
}

func headerIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return strings.TrimSpace(r.Header.Get("X-Real-IP"))
}

// RateLimit admits requests through l, keyed by key (ClientIP when nil).
// Counted responses carry X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset (unix seconds); degraded ones carry none. Denied
// requests get 429 with Retry-After and a JSON body.
func RateLimit(l *ratelimit.Limiter, key KeyFunc) Middleware {
	if key == nil {
		key = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := l.Check(r.Context(), key(r))
			if res.Degraded {
				// Nothing was counted, so there is no budget to report.
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if res.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := max(time.Until(res.ResetAt), 0)
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			WriteError(w, http.StatusTooManyRequests, "rate limit exceeded", func(e *jx.Encoder) {
				e.FieldStart("limit")
				e.Int(res.Limit)
				e.FieldStart("remaining")
				e.Int(res.Remaining)
				e.FieldStart("reset")
				e.Str(res.ResetAt.UTC().Format(time.RFC3339))
			})
		})
	}
}
