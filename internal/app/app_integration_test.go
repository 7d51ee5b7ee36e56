//go:build integration

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storage/postgres"
)

const (
	testPepper = "integration-pepper"
	testKey    = "integration-key"
)

type noopTelemetry struct{}

func (noopTelemetry) TracerProvider() trace.TracerProvider { return tracenoop.NewTracerProvider() }
func (noopTelemetry) MeterProvider() metric.MeterProvider  { return metricnoop.NewMeterProvider() }

func startContainer(t *testing.T, req testcontainers.ContainerRequest) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	return endpoint
}

type stack struct {
	server *httptest.Server
	client *http.Client
	pool   *pgxpool.Pool
}

func startStack(t *testing.T) *stack {
	t.Helper()
	ctx := context.Background()

	pgEndpoint := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "storefront",
			"POSTGRES_PASSWORD": "storefront",
			"POSTGRES_DB":       "storefront",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute),
	})
	redisEndpoint := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	})

	cfg := &Config{
		DatabaseURL:  fmt.Sprintf("postgres://storefront:storefront@%s/storefront?sslmode=disable", pgEndpoint),
		RedisURL:     fmt.Sprintf("redis://%s/0", redisEndpoint),
		APIKeyPepper: testPepper,
		RateLimit: RateLimitConfig{
			Auth:    PolicyConfig{Limit: 3, Window: time.Minute},
			Timeout: time.Second,
		},
		Upload: UploadConfig{
			MinBytes:  1 << 10,
			MaxBytes:  1 << 20,
			MaxWidth:  4096,
			MaxHeight: 4096,
			LocalDir:  t.TempDir(),
			LocalURL:  "/uploads",
		},
		Session: SessionConfig{IdleTTL: time.Hour, SweepInterval: time.Minute, MaxNotifications: 20},
		CORS:    CORSConfig{Origins: []string{"https://shop.example.com"}},
	}
	cfg.RateLimit.applyPolicyDefaults()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.RunMigrations(ctx, pool))

	products := postgres.NewProductRepository(pool)
	require.NoError(t, products.Upsert(ctx, product.Product{
		ID: "mug", Name: "Mug", Price: decimal.RequireFromString("18.50"), Category: "Accessories", Image: "mug.webp", Available: true,
	}))
	require.NoError(t, products.Upsert(ctx, product.Product{
		ID: "poster", Name: "Poster", Price: decimal.NewFromInt(12), Category: "Prints", Available: false,
	}))
	require.NoError(t, postgres.NewAPIKeyRepository(pool).Upsert(ctx, auth.APIKeyInfo{
		ID: "default", KeyHash: auth.HashKey([]byte(testPepper), testKey), Name: "Integration", Scopes: []string{auth.ScopeAdmin},
	}))

	a, err := newAPI(ctx, zap.NewNop(), noopTelemetry{}, cfg, pool)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	a.health.Start(ctx, time.Second)
	t.Cleanup(a.health.Stop)
	a.health.SetReady(true)

	srv := httptest.NewServer(a.handler)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &stack{server: srv, client: &http.Client{Jar: jar, Timeout: 10 * time.Second}, pool: pool}
}

func (s *stack) do(t *testing.T, method, path string, body io.Reader, header http.Header) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, s.server.URL+path, body)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := s.client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestStorefront(t *testing.T) {
	s := startStack(t)
	jsonHeader := http.Header{"Content-Type": []string{"application/json"}}

	t.Run("readiness", func(t *testing.T) {
		resp, data := s.do(t, http.MethodGet, "/readyz", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

		var body struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		}
		require.NoError(t, json.Unmarshal(data, &body))
		assert.Equal(t, "ok", body.Status)
		assert.Equal(t, "ok", body.Checks["postgres"])
		assert.Equal(t, "ok", body.Checks["redis"])
	})

	t.Run("request id and cors", func(t *testing.T) {
		resp, _ := s.do(t, http.MethodOptions, "/api/cart/items", nil, http.Header{
			"Origin":                        []string{"https://shop.example.com"},
			"Access-Control-Request-Method": []string{http.MethodPost},
		})
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "https://shop.example.com", resp.Header.Get("Access-Control-Allow-Origin"))

		resp, _ = s.do(t, http.MethodGet, "/api/products", nil, http.Header{"X-Request-Id": []string{"trace-123"}})
		assert.Equal(t, "trace-123", resp.Header.Get("X-Request-ID"))
		assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Limit"))
	})

	t.Run("catalog", func(t *testing.T) {
		resp, data := s.do(t, http.MethodGet, "/api/products", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var products []struct {
			ID    string  `json:"id"`
			Price float64 `json:"price"`
		}
		require.NoError(t, json.Unmarshal(data, &products))
		assert.Len(t, products, 2)

		resp, _ = s.do(t, http.MethodGet, "/api/products/missing", nil, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("cart and checkout", func(t *testing.T) {
		resp, _ := s.do(t, http.MethodPost, "/api/cart/items", strings.NewReader(`{"productId":"poster"}`), jsonHeader)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

		resp, data := s.do(t, http.MethodPost, "/api/cart/items", strings.NewReader(`{"productId":"mug","quantity":2}`), jsonHeader)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
		assert.Contains(t, string(data), `"count":2`)

		resp, data = s.do(t, http.MethodPost, "/api/checkout",
			strings.NewReader(`{"customer":{"name":"Ada","email":"ada@example.com","address":"1 Loop"}}`), jsonHeader)
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

		var o struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		require.NoError(t, json.Unmarshal(data, &o))
		assert.Equal(t, "pending", o.Status)

		var total decimal.Decimal
		require.NoError(t, s.pool.QueryRow(context.Background(), `SELECT total FROM orders WHERE id = $1`, o.ID).Scan(&total))
		assert.True(t, decimal.NewFromInt(37).Equal(total), total.String())

		_, data = s.do(t, http.MethodGet, "/api/notifications", nil, nil)
		assert.Contains(t, string(data), "Cart Cleared")
	})

	t.Run("gallery upload", func(t *testing.T) {
		img := make([]byte, 2<<10)
		copy(img, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="file"; filename="banner.png"`)
		hdr.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write(img)
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		resp, data := s.do(t, http.MethodPost, "/api/admin/images", &buf, http.Header{
			"Content-Type": []string{mw.FormDataContentType()},
			"Api_key":      []string{testKey},
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

		var body struct {
			Image struct {
				URL string `json:"url"`
			} `json:"image"`
		}
		require.NoError(t, json.Unmarshal(data, &body))
		require.True(t, strings.HasPrefix(body.Image.URL, "/uploads/"), body.Image.URL)

		resp, served := s.do(t, http.MethodGet, body.Image.URL, nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, img, served)
	})

	t.Run("catalog administration", func(t *testing.T) {
		admin := http.Header{"Content-Type": []string{"application/json"}, "Api_key": []string{testKey}}

		resp, data := s.do(t, http.MethodPost, "/api/admin/categories", strings.NewReader(`{"name":"Zines"}`), admin)
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
		assert.Contains(t, string(data), `"id":"zines"`)

		resp, data = s.do(t, http.MethodPost, "/api/admin/products",
			strings.NewReader(`{"id":"zine","name":"Zine","price":"4.50","category":"zines"}`), admin)
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

		resp, data = s.do(t, http.MethodGet, "/api/products?category=zines", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var zines []struct {
			ID    string  `json:"id"`
			Price float64 `json:"price"`
		}
		require.NoError(t, json.Unmarshal(data, &zines))
		require.Len(t, zines, 1)
		assert.Equal(t, "zine", zines[0].ID)
		assert.InDelta(t, 4.5, zines[0].Price, 1e-9)

		resp, _ = s.do(t, http.MethodDelete, "/api/admin/products/zine", nil, admin)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp, data = s.do(t, http.MethodPost, "/api/admin/blogs",
			strings.NewReader(`{"title":"Hello Storefront","content":"Open for business."}`), admin)
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

		resp, data = s.do(t, http.MethodGet, "/api/blogs/hello-storefront", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(data), `"content":"Open for business."`)
	})

	t.Run("admin login is rate limited", func(t *testing.T) {
		wrong := http.Header{"Api_key": []string{"wrong"}}
		for range 3 {
			resp, _ := s.do(t, http.MethodPost, "/api/admin/login", nil, wrong)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		}
		resp, _ := s.do(t, http.MethodPost, "/api/admin/login", nil, wrong)
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	})
}
