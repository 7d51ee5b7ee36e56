package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/storefront/pkg/ratelimit"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (STOREFRONT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL     string `default:"" usage:"Redis URL for shared rate limit counters; empty keeps counters in memory" flag:"redis-url"`
	ImageBaseURL string `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com/images)" flag:"image-base-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (STOREFRONT_API_KEY_PEPPER)" flag:"api-key-pepper"`
	RateLimit    RateLimitConfig
	Upload       UploadConfig
	Session      SessionConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// PolicyConfig is one rate limit budget.
type PolicyConfig struct {
	Limit  int
	Window time.Duration
}

// RateLimitConfig controls the per-client sliding window limiters.
type RateLimitConfig struct {
	API     PolicyConfig
	Auth    PolicyConfig
	Upload  PolicyConfig
	Contact PolicyConfig
	// Timeout bounds a single store round trip before failing open.
	Timeout         time.Duration `default:"250ms" usage:"Rate limit store timeout"`
	CleanupInterval time.Duration `default:"1m" usage:"In-memory rate limit cleanup interval"`
	// PeerFallback keys clients without proxy headers by their connection
	// address instead of the shared loopback identity.
	PeerFallback bool `default:"false" usage:"Use the peer address when no client IP header is present"`
}

// UploadConfig controls gallery uploads and their storage.
type UploadConfig struct {
	MinBytes       int64 `default:"1024" usage:"Smallest accepted upload"`
	MaxBytes       int64 `default:"10485760" usage:"Largest accepted upload"`
	MaxWidth       int   `default:"4096" usage:"Largest accepted image width"`
	MaxHeight      int   `default:"4096" usage:"Largest accepted image height"`
	DimensionCheck bool  `default:"true" usage:"Decode image headers to enforce width and height" flag:"upload-dimension-check"`

	// Bucket selects Google Cloud Storage. When empty, blobs are written to
	// LocalDir and served under LocalURL.
	Bucket          string `default:"" usage:"GCS bucket for gallery images" flag:"upload-bucket"`
	Prefix          string `default:"gallery/" usage:"Object name prefix inside the bucket"`
	PublicBaseURL   string `default:"https://storage.googleapis.com" usage:"Public base URL of the bucket"`
	CredentialsFile string `default:"" usage:"Service account JSON for GCS"`
	Endpoint        string `default:"" usage:"GCS endpoint override (emulators)"`
	LocalDir        string `default:"./data/uploads" usage:"Directory for gallery images without GCS"`
	LocalURL        string `default:"/uploads" usage:"Public path of LocalDir"`
}

// SessionConfig controls client sessions.
type SessionConfig struct {
	IdleTTL          time.Duration `default:"24h" usage:"Evict sessions idle for longer than this"`
	SweepInterval    time.Duration `default:"5m" usage:"Idle session sweep interval"`
	CookieSecure     bool          `default:"false" usage:"Mark the session cookie Secure" flag:"session-cookie-secure"`
	MaxNotifications int           `default:"50" usage:"Notifications kept per session"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STOREFRONT",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	cfg.RateLimit.applyPolicyDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set STOREFRONT_DATABASE_URL or DATABASE_URL")
	}
	if cfg.Upload.MinBytes > cfg.Upload.MaxBytes {
		return nil, errors.Errorf("upload min bytes %d exceed max bytes %d", cfg.Upload.MinBytes, cfg.Upload.MaxBytes)
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STOREFRONT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.RedisURL == "" {
		c.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

// applyPolicyDefaults fills unset budgets from the predefined policies.
func (c *RateLimitConfig) applyPolicyDefaults() {
	fill := func(pc *PolicyConfig, p ratelimit.Policy) {
		if pc.Limit <= 0 {
			pc.Limit = p.Limit
		}
		if pc.Window <= 0 {
			pc.Window = p.Window
		}
	}
	fill(&c.API, ratelimit.APIPolicy)
	fill(&c.Auth, ratelimit.AuthPolicy)
	fill(&c.Upload, ratelimit.UploadPolicy)
	fill(&c.Contact, ratelimit.ContactPolicy)
}

// policy returns the configured budget under the given base policy name.
func (pc PolicyConfig) policy(base ratelimit.Policy) ratelimit.Policy {
	return ratelimit.Policy{Name: base.Name, Limit: pc.Limit, Window: pc.Window}
}
