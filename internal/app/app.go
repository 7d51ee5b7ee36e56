package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/blog"
	"github.com/xenking/storefront/internal/domain/category"
	"github.com/xenking/storefront/internal/domain/contact"
	"github.com/xenking/storefront/internal/domain/media"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/session"
	"github.com/xenking/storefront/internal/storage/gcs"
	"github.com/xenking/storefront/internal/storage/localfs"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
	"github.com/xenking/storefront/pkg/ratelimit"
	"github.com/xenking/storefront/pkg/upload"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	a, err := newAPI(ctx, lg, m, cfg, pool)
	if err != nil {
		return err
	}
	defer a.Close()

	a.health.Start(ctx, 10*time.Second)
	a.health.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           a.handler,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		return a.sessions.Run(gctx, cfg.Session.SweepInterval)
	})
	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		a.health.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		a.health.Stop()
		return nil
	})
	return g.Wait()
}

// api is the wired HTTP surface and the resources it owns.
type api struct {
	handler  http.Handler
	health   *health.Health
	sessions *session.Registry
	closers  []func()
}

// Close releases owned clients in reverse order of creation.
func (a *api) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newAPI builds every dependency on top of a migrated pool. Health checks
// are registered but not started.
func newAPI(ctx context.Context, lg *zap.Logger, tel httpmiddleware.Telemetry, cfg *Config, pool *pgxpool.Pool) (_ *api, rerr error) {
	a := &api{health: health.New()}
	defer func() {
		if rerr != nil {
			a.Close()
		}
	}()

	a.health.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	a.health.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	a.health.AddLivenessCheck("gc", time.Second, health.GCMaxPauseCheck(time.Second), health.NonCritical())

	// Rate limit counters: Redis when configured, process memory otherwise.
	store, closeStore, err := newLimitStore(ctx, lg, cfg, a.health)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeStore)

	limiters, err := newLimiters(lg, tel, cfg.RateLimit, store)
	if err != nil {
		return nil, err
	}

	// Gallery blob storage.
	mux := http.NewServeMux()
	blobs, closeBlobs, err := newBlobStore(ctx, lg, cfg.Upload, a.health, mux)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeBlobs)

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	categoryRepo := postgres.NewCategoryRepository(pool)
	blogRepo := postgres.NewBlogRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	imageRepo := postgres.NewImageRepository(pool)
	contactRepo := postgres.NewContactRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Domain services.
	var validatorOpts []upload.Option
	if cfg.Upload.DimensionCheck {
		validatorOpts = append(validatorOpts, upload.WithDimensionReader(upload.ImageConfigReader{}))
	}
	validator := upload.NewValidator(upload.Config{
		MinSize:   cfg.Upload.MinBytes,
		MaxSize:   cfg.Upload.MaxBytes,
		MaxWidth:  cfg.Upload.MaxWidth,
		MaxHeight: cfg.Upload.MaxHeight,
	}, validatorOpts...)

	mediaService := media.NewService(validator, blobs, imageRepo,
		media.WithTracerProvider(tel.TracerProvider()),
	)
	if err := mediaService.Warm(ctx); err != nil {
		return nil, errors.Wrap(err, "warm media digests")
	}

	a.sessions = session.NewRegistry(cfg.Session.IdleTTL,
		session.WithMaxNotifications(cfg.Session.MaxNotifications),
	)

	// HTTP handlers.
	clientKey := httpmiddleware.ClientIP
	if cfg.RateLimit.PeerFallback {
		clientKey = httpmiddleware.ClientIPOrPeer
	}
	h := handler.NewHandler(handler.HandlerConfig{
		ImageBaseURL: cfg.ImageBaseURL,
		ClientKey:    clientKey,
		// Multipart envelope on top of the largest accepted file.
		MaxUploadBytes: cfg.Upload.MaxBytes + 1<<20,
		Session: handler.SessionConfig{
			CookieName: handler.DefaultSessionCookie,
			Secure:     cfg.Session.CookieSecure,
			MaxAge:     cfg.Session.IdleTTL,
		},
	}, handler.Deps{
		Products:   productRepo,
		Catalog:    product.NewService(productRepo),
		Categories: category.NewService(categoryRepo),
		Blog:       blog.NewService(blogRepo),
		Orders:     order.NewService(productRepo, orderRepo),
		Media:      mediaService,
		Contact:    contact.NewService(contactRepo),
		Auth:       auth.NewAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper)),
		Sessions:   a.sessions,
		Limiters:   limiters,
	})

	mux.HandleFunc("/livez", a.health.LiveEndpoint)
	mux.HandleFunc("/readyz", a.health.ReadyEndpoint)
	h.Register(mux)

	a.handler = httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", handler.APIKeyHeader, httpmiddleware.HeaderRequestID},
			ExposeHeaders:    []string{httpmiddleware.HeaderRequestID, "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Instrument("storefront-api", tel),
		httpmiddleware.LogRequests(),
	)
	return a, nil
}

func newLimitStore(ctx context.Context, lg *zap.Logger, cfg *Config, hs *health.Health) (ratelimit.Store, func(), error) {
	if cfg.RedisURL == "" {
		lg.Warn("Rate limit counters kept in memory; limits are per instance")
		mem := ratelimit.NewMemoryStore()
		mem.StartCleanup(ctx, cfg.RateLimit.CleanupInterval)
		return mem, func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "parse redis url")
	}
	rdb := redis.NewClient(opts)
	// Limiters fail open, so a lost Redis degrades readiness instead of
	// failing it.
	hs.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}, health.NonCritical())
	return ratelimit.NewRedisStore(rdb), func() { _ = rdb.Close() }, nil
}

func newLimiters(lg *zap.Logger, tel httpmiddleware.Telemetry, cfg RateLimitConfig, store ratelimit.Store) (handler.Limiters, error) {
	build := func(pc PolicyConfig, base ratelimit.Policy) (*ratelimit.Limiter, error) {
		l, err := ratelimit.New(pc.policy(base), store,
			ratelimit.WithLogger(lg.Named("ratelimit")),
			ratelimit.WithTimeout(cfg.Timeout),
			ratelimit.WithMeterProvider(tel.MeterProvider()),
		)
		if err != nil {
			return nil, errors.Wrapf(err, "create %s limiter", base.Name)
		}
		p := l.Policy()
		lg.Info("Rate limit policy",
			zap.String("policy", p.Name),
			zap.Int("limit", p.Limit),
			zap.Duration("window", p.Window),
		)
		return l, nil
	}

	var (
		out handler.Limiters
		err error
	)
	if out.API, err = build(cfg.API, ratelimit.APIPolicy); err != nil {
		return out, err
	}
	if out.Auth, err = build(cfg.Auth, ratelimit.AuthPolicy); err != nil {
		return out, err
	}
	if out.Upload, err = build(cfg.Upload, ratelimit.UploadPolicy); err != nil {
		return out, err
	}
	if out.Contact, err = build(cfg.Contact, ratelimit.ContactPolicy); err != nil {
		return out, err
	}
	return out, nil
}

// newBlobStore selects GCS when a bucket is configured. The local fallback is
// served from mux under UploadConfig.LocalURL.
func newBlobStore(ctx context.Context, lg *zap.Logger, cfg UploadConfig, hs *health.Health, mux *http.ServeMux) (media.BlobStore, func(), error) {
	if cfg.Bucket != "" {
		client, err := gcs.NewClient(ctx, gcs.ClientConfig{
			CredentialsFile: cfg.CredentialsFile,
			Endpoint:        cfg.Endpoint,
		})
		if err != nil {
			return nil, nil, err
		}
		store := gcs.NewBlobStore(client, cfg.Bucket, cfg.Prefix, cfg.PublicBaseURL)
		hs.AddReadinessCheck("gcs", 5*time.Second, health.PingCheck(store), health.NonCritical())
		lg.Info("Gallery images stored in GCS", zap.String("bucket", cfg.Bucket))
		return store, func() { _ = client.Close() }, nil
	}

	store, err := localfs.NewBlobStore(cfg.LocalDir, cfg.LocalURL)
	if err != nil {
		return nil, nil, err
	}
	prefix := "/" + strings.Trim(cfg.LocalURL, "/")
	mux.Handle("GET "+prefix+"/", http.StripPrefix(prefix, http.FileServer(http.Dir(store.Dir()))))
	lg.Info("Gallery images stored on local disk", zap.String("dir", store.Dir()), zap.String("url", prefix))
	return store, func() {}, nil
}
