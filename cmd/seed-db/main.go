package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/db"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storage/postgres"
)

type productJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Image       string          `json:"image"`
	Available   *bool           `json:"available"`
}

type options struct {
	databaseURL  string
	productsFile string
	apiKey       string
	apiKeyName   string
	apiKeyScopes string
	pepper       string
	workers      int
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "", "path to a products JSON or .json.gz file (default: embedded catalog)")
	flag.StringVar(&opts.apiKey, "api-key", "", "admin API key to seed (or STOREFRONT_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyName, "api-key-name", "Default admin key", "display name of the seeded key")
	flag.StringVar(&opts.apiKeyScopes, "api-key-scopes", auth.ScopeAdmin, "comma separated scopes of the seeded key")
	flag.StringVar(&opts.pepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or STOREFRONT_API_KEY_PEPPER env)")
	flag.IntVar(&opts.workers, "workers", 4, "concurrent product upserts")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	opts.databaseURL = firstNonEmpty(opts.databaseURL, os.Getenv("STOREFRONT_DATABASE_URL"), os.Getenv("DATABASE_URL"))
	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url, STOREFRONT_DATABASE_URL or DATABASE_URL")
	}
	opts.apiKey = firstNonEmpty(opts.apiKey, os.Getenv("STOREFRONT_SEED_API_KEY"))
	if opts.apiKey == "" {
		lg.Fatal("API key is required: set --api-key or STOREFRONT_SEED_API_KEY")
	}
	opts.pepper = firstNonEmpty(opts.pepper, os.Getenv("STOREFRONT_API_KEY_PEPPER"))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	products, err := loadProducts(lg, opts.productsFile)
	if err != nil {
		return errors.Wrap(err, "load products")
	}
	if err := seedProducts(ctx, lg, postgres.NewProductRepository(pool), products, opts.workers); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedAPIKey(ctx, lg, postgres.NewAPIKeyRepository(pool), opts); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	return nil
}

// loadProducts reads the catalog from path, or the embedded catalog when
// path is empty. Paths ending in .gz are gunzipped.
func loadProducts(lg *zap.Logger, path string) ([]product.Product, error) {
	var r io.Reader = bytes.NewReader(db.SeedProducts)
	if path != "" {
		lg.Info("Reading products file", zap.String("path", path))
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrap(err, "open products file")
		}
		defer func() { _ = f.Close() }()
		r = f

		if strings.HasSuffix(path, ".gz") {
			zr, err := pgzip.NewReader(f)
			if err != nil {
				return nil, errors.Wrap(err, "open gzip stream")
			}
			defer func() { _ = zr.Close() }()
			r = zr
		}
	}
	return decodeProducts(r)
}

func decodeProducts(r io.Reader) ([]product.Product, error) {
	var raw []productJSON
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "parse products JSON")
	}

	out := make([]product.Product, 0, len(raw))
	for _, p := range raw {
		if p.ID == "" || p.Name == "" {
			return nil, errors.Errorf("product %q: id and name are required", p.ID)
		}
		if p.Price.IsNegative() {
			return nil, errors.Errorf("product %s: negative price", p.ID)
		}
		available := true
		if p.Available != nil {
			available = *p.Available
		}
		out = append(out, product.Product{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			Category:    p.Category,
			Image:       p.Image,
			Available:   available,
		})
	}
	return out, nil
}

type productUpserter interface {
	Upsert(ctx context.Context, p product.Product) error
}

func seedProducts(ctx context.Context, lg *zap.Logger, repo productUpserter, products []product.Product, workers int) error {
	lg.Info("Upserting products", zap.Int("count", len(products)))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, p := range products {
		g.Go(func() error {
			if err := repo.Upsert(ctx, p); err != nil {
				return errors.Wrapf(err, "upsert product %s", p.ID)
			}
			lg.Debug("Upserted product", zap.String("id", p.ID), zap.String("name", p.Name))
			return nil
		})
	}
	return g.Wait()
}

type apiKeyUpserter interface {
	Upsert(ctx context.Context, info auth.APIKeyInfo) error
}

func seedAPIKey(ctx context.Context, lg *zap.Logger, repo apiKeyUpserter, opts options) error {
	var scopes []string
	for _, s := range strings.Split(opts.apiKeyScopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	if len(scopes) == 0 {
		return errors.New("at least one scope is required")
	}

	info := auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKey([]byte(opts.pepper), opts.apiKey),
		Name:    opts.apiKeyName,
		Scopes:  scopes,
	}
	if err := repo.Upsert(ctx, info); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	lg.Info("Upserted API key", zap.String("id", info.ID), zap.Strings("scopes", scopes))
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
