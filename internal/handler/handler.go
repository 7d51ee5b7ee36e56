// Package handler exposes the storefront over HTTP/JSON.
package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/blog"
	"github.com/xenking/storefront/internal/domain/category"
	"github.com/xenking/storefront/internal/domain/contact"
	"github.com/xenking/storefront/internal/domain/media"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/session"
	"github.com/xenking/storefront/pkg/httpmiddleware"
	"github.com/xenking/storefront/pkg/ratelimit"
)

// DefaultSessionCookie names the session cookie.
const DefaultSessionCookie = "sf_session"

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored in the database.
	ImageBaseURL string
	// MaxUploadBytes bounds the multipart request body of image uploads.
	MaxUploadBytes int64
	Session        SessionConfig
	// ClientKey derives the rate limit identity; nil means
	// httpmiddleware.ClientIP.
	ClientKey httpmiddleware.KeyFunc
}

// SessionConfig controls the session cookie.
type SessionConfig struct {
	CookieName string
	Secure     bool
	// MaxAge of the cookie; zero makes it a browser session cookie.
	MaxAge time.Duration
}

// Limiters gates endpoint classes. A nil limiter disables limiting for its
// class.
type Limiters struct {
	API     *ratelimit.Limiter
	Auth    *ratelimit.Limiter
	Upload  *ratelimit.Limiter
	Contact *ratelimit.Limiter
}

// Deps are the domain dependencies of the Handler.
type Deps struct {
	Products   product.Repository
	Catalog    *product.Service
	Categories *category.Service
	Blog       *blog.Service
	Orders     *order.Service
	Media      *media.Service
	Contact    *contact.Service
	Auth       *auth.Authenticator
	Sessions   *session.Registry
	Limiters   Limiters
}

// Handler serves the storefront API.
type Handler struct {
	Deps

	imageBaseURL   string
	maxUploadBytes int64
	session        SessionConfig
	clientKey      httpmiddleware.KeyFunc
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(cfg HandlerConfig, deps Deps) *Handler {
	if cfg.Session.CookieName == "" {
		cfg.Session.CookieName = DefaultSessionCookie
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 11 << 20
	}
	return &Handler{
		Deps:           deps,
		imageBaseURL:   cfg.ImageBaseURL,
		maxUploadBytes: cfg.MaxUploadBytes,
		session:        cfg.Session,
		clientKey:      cfg.ClientKey,
	}
}

// Register mounts every API route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	api, lim := h.Limiters.API, h.Limiters
	limit := h.limit

	mux.Handle("GET /api/products", limit(api, h.ListProducts))
	mux.Handle("GET /api/products/{id}", limit(api, h.GetProduct))
	mux.Handle("GET /api/categories", limit(api, h.ListCategories))
	mux.Handle("GET /api/categories/{id}", limit(api, h.GetCategory))
	mux.Handle("GET /api/blogs", limit(api, h.ListPosts))
	mux.Handle("GET /api/blogs/{slug}", limit(api, h.GetPost))
	mux.Handle("GET /api/images", limit(api, h.ListImages))

	mux.Handle("GET /api/cart", limit(api, h.withSession(h.GetCart)))
	mux.Handle("POST /api/cart/items", limit(api, h.withSession(h.AddCartItem)))
	mux.Handle("PUT /api/cart/items/{id}", limit(api, h.withSession(h.UpdateCartItem)))
	mux.Handle("DELETE /api/cart/items/{id}", limit(api, h.withSession(h.RemoveCartItem)))
	mux.Handle("DELETE /api/cart", limit(api, h.withSession(h.ClearCart)))
	mux.Handle("POST /api/checkout", limit(api, h.withSession(h.Checkout)))

	mux.Handle("GET /api/notifications", limit(api, h.withSession(h.ListNotifications)))
	mux.Handle("DELETE /api/notifications", limit(api, h.withSession(h.ClearNotifications)))
	mux.Handle("DELETE /api/notifications/{id}", limit(api, h.withSession(h.DismissNotification)))
	mux.Handle("POST /api/notifications/{id}/action", limit(api, h.withSession(h.InvokeNotificationAction)))

	mux.Handle("POST /api/contact", limit(lim.Contact, h.SubmitContact))

	mux.Handle("POST /api/admin/login", limit(lim.Auth, h.AdminLogin))
	mux.Handle("POST /api/admin/images", limit(lim.Upload, h.requireKey(auth.ScopeImages, h.UploadImage)))
	mux.Handle("DELETE /api/admin/images/{id}", limit(api, h.requireKey(auth.ScopeImages, h.DeleteImage)))

	mux.Handle("POST /api/admin/products", limit(api, h.requireKey(auth.ScopeCatalog, h.CreateProduct)))
	mux.Handle("PUT /api/admin/products/{id}", limit(api, h.requireKey(auth.ScopeCatalog, h.UpdateProduct)))
	mux.Handle("DELETE /api/admin/products/{id}", limit(api, h.requireKey(auth.ScopeCatalog, h.DeleteProduct)))
	mux.Handle("POST /api/admin/categories", limit(api, h.requireKey(auth.ScopeCatalog, h.CreateCategory)))
	mux.Handle("PUT /api/admin/categories/{id}", limit(api, h.requireKey(auth.ScopeCatalog, h.UpdateCategory)))
	mux.Handle("DELETE /api/admin/categories/{id}", limit(api, h.requireKey(auth.ScopeCatalog, h.DeleteCategory)))
	mux.Handle("POST /api/admin/blogs", limit(api, h.requireKey(auth.ScopeBlog, h.CreatePost)))
	mux.Handle("PUT /api/admin/blogs/{slug}", limit(api, h.requireKey(auth.ScopeBlog, h.UpdatePost)))
	mux.Handle("DELETE /api/admin/blogs/{slug}", limit(api, h.requireKey(auth.ScopeBlog, h.DeletePost)))
}

func (h *Handler) limit(l *ratelimit.Limiter, next http.HandlerFunc) http.Handler {
	if l == nil {
		return next
	}
	return httpmiddleware.RateLimit(l, h.clientKey)(next)
}

// imageURL resolves a stored image path against the image base URL.
func (h *Handler) imageURL(path string) string {
	if path == "" || h.imageBaseURL == "" || strings.Contains(path, "://") {
		return path
	}
	return strings.TrimRight(h.imageBaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}
