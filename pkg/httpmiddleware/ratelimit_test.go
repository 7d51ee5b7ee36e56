package httpmiddleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/pkg/ratelimit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func newLimiter(t *testing.T, limit int) *ratelimit.Limiter {
	t.Helper()
	l, err := ratelimit.New(ratelimit.Policy{Name: "test", Limit: limit, Window: time.Minute}, ratelimit.NewMemoryStore())
	require.NoError(t, err)
	return l
}

func TestRateLimit_UnderLimit(t *testing.T) {
	handler := RateLimit(newLimiter(t, 5), nil)(okHandler())

	for i := range 5 {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, []string{"4", "3", "2", "1", "0"}[i], w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	handler := RateLimit(newLimiter(t, 2), nil)(okHandler())

	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "10.0.0.1:9999"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.1:9999"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, float64(429), body["code"])
	assert.Equal(t, "rate limit exceeded", body["message"])
	assert.Equal(t, float64(2), body["limit"])
	assert.Equal(t, float64(0), body["remaining"])
	_, err := time.Parse(time.RFC3339, body["reset"].(string))
	assert.NoError(t, err)
}

func TestRateLimit_DifferentIPs(t *testing.T) {
	handler := RateLimit(newLimiter(t, 1), ClientIPOrPeer)(okHandler())

	serve := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, serve("10.0.0.1:1234"))
	assert.Equal(t, http.StatusOK, serve("10.0.0.2:1234"))
	assert.Equal(t, http.StatusTooManyRequests, serve("10.0.0.1:5678"))
}

func TestRateLimit_CustomKeyFunc(t *testing.T) {
	handler := RateLimit(newLimiter(t, 1), func(r *http.Request) string {
		return r.Header.Get("X-API-Key")
	})(okHandler())

	serve := func(key string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-API-Key", key)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, serve("key-a"))
	assert.Equal(t, http.StatusTooManyRequests, serve("key-a"))
	assert.Equal(t, http.StatusOK, serve("key-b"))
}

func TestRateLimit_XForwardedFor(t *testing.T) {
	handler := RateLimit(newLimiter(t, 1), nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:4444"
	req.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.RemoteAddr = "192.168.1.2:5555"
	req2.Header.Set("X-Forwarded-For", "203.0.113.50")
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, req2)
	assert.Equal(t, http.StatusTooManyRequests, w2.Code)
}

type downStore struct{}

func (downStore) Hit(context.Context, string, time.Time, int, time.Duration) (ratelimit.Window, error) {
	return ratelimit.Window{}, errors.New("redis: connection refused")
}

func TestRateLimit_StoreDownFailsOpen(t *testing.T) {
	l, err := ratelimit.New(ratelimit.Policy{Name: "test", Limit: 1, Window: time.Minute}, downStore{})
	require.NoError(t, err)
	handler := RateLimit(l, nil)(okHandler())

	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
		assert.Empty(t, w.Header().Get("X-RateLimit-Remaining"))
		assert.Empty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{
			name: "cdn header wins over everything",
			headers: map[string]string{
				"CF-Connecting-IP": "198.51.100.1",
				"X-Forwarded-For":  "203.0.113.1",
				"X-Real-IP":        "192.0.2.1",
			},
			remote: "10.0.0.1:1",
			want:   "198.51.100.1",
		},
		{
			name: "forwarded before real ip",
			headers: map[string]string{
				"X-Forwarded-For": " 203.0.113.1 , 10.0.0.2",
				"X-Real-IP":       "192.0.2.1",
			},
			want: "203.0.113.1",
		},
		{
			name:    "real ip",
			headers: map[string]string{"X-Real-IP": "192.0.2.1"},
			want:    "192.0.2.1",
		},
		{
			name:    "empty forwarded entry falls through",
			headers: map[string]string{"X-Forwarded-For": " , 10.0.0.2", "X-Real-IP": "192.0.2.9"},
			want:    "192.0.2.9",
		},
		{
			name:   "peer address is ignored",
			remote: "[2001:db8::1]:443",
			want:   LoopbackIdentity,
		},
		{
			name:   "loopback placeholder",
			remote: "",
			want:   LoopbackIdentity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}

func TestClientIPOrPeer(t *testing.T) {
	tests := []struct {
		name   string
		header string
		remote string
		want   string
	}{
		{name: "header wins", header: "192.0.2.1", remote: "10.0.0.1:1", want: "192.0.2.1"},
		{name: "ipv4 peer", remote: "10.0.0.1:1234", want: "10.0.0.1"},
		{name: "ipv6 peer", remote: "[2001:db8::1]:443", want: "2001:db8::1"},
		{name: "unparsable peer", remote: "pipe", want: LoopbackIdentity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.header != "" {
				req.Header.Set("X-Real-IP", tt.header)
			}
			assert.Equal(t, tt.want, ClientIPOrPeer(req))
		})
	}
}
