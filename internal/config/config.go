// Package config handles loading and validation of service configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// Adapter types.
const (
	AdapterShopify     = "shopify"
	AdapterWooCommerce = "woocommerce"
	AdapterMemory      = "memory"
)

// Pointer store backends.
const (
	PointerStoreMemory    = "memory"
	PointerStoreFirestore = "firestore"
	PointerStoreRedis     = "redis"
)

// Session providers.
const (
	SessionProviderHeader   = "header"
	SessionProviderFirebase = "firebase"
	SessionProviderJWT      = "jwt"
)

// Config holds all service configuration.
// Environment determines whether store credentials load from env vars (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string `json:"port"`
	Environment string `json:"environment"` // "development" or "production"
	LogLevel    string `json:"log_level"`   // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string `json:"gcp_project"`
	StoreID    string `json:"store_id"`

	// Cart backend: "shopify", "woocommerce" or "memory"
	AdapterType string `json:"adapter_type"`

	// Store credentials (loaded from secrets in production)
	Store StoreConfig `json:"store"`

	Pointers PointerConfig `json:"pointers"`
	Session  SessionConfig `json:"session"`
	Sync     SyncConfig    `json:"sync"`

	// CacheDir holds the per-session local snapshots. Empty keeps them in memory.
	CacheDir string `json:"cache_dir"`

	// TLSFingerprint sends storefront traffic through the Chrome TLS transport.
	TLSFingerprint bool `json:"tls_fingerprint"`

	// AllowedOrigins may call the cart API from the browser. Defaults to the
	// store's own origin.
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

// StoreConfig contains the commerce backend settings.
// In production, this is loaded from Secret Manager as JSON.
type StoreConfig struct {
	StoreURL      string `json:"store_url"`
	Token         string `json:"storefront_token,omitempty"` // Shopify Storefront API token
	APIVersion    string `json:"api_version,omitempty"`      // Shopify Storefront API version
	BatchStrategy string `json:"batch_strategy,omitempty"`   // WooCommerce: "multi" or "sequential"
}

// PointerConfig selects the cross-device pointer store.
type PointerConfig struct {
	Backend             string   `json:"backend"`
	FirestoreProject    string   `json:"firestore_project,omitempty"`
	FirestoreCollection string   `json:"firestore_collection,omitempty"`
	CredentialsFile     string   `json:"credentials_file,omitempty"`
	RedisAddr           string   `json:"redis_addr,omitempty"`
	RedisPassword       string   `json:"redis_password,omitempty"`
	RedisDB             int      `json:"redis_db,omitempty"`
	TTL                 Duration `json:"ttl,omitempty"`
}

// SessionConfig selects how shopper identity is established.
type SessionConfig struct {
	Provider        string `json:"provider"`
	FirebaseProject string `json:"firebase_project,omitempty"`
	JWTSecret       string `json:"jwt_secret,omitempty"` // HS256 secret shared with the storefront backend
	JWTIssuer       string `json:"jwt_issuer,omitempty"`
}

// SyncConfig tunes the sync engine. Zero values use the engine defaults.
type SyncConfig struct {
	PointerDebounce Duration `json:"pointer_debounce,omitempty"`
	CreateBurst     int      `json:"create_burst,omitempty"`
	CreateInterval  Duration `json:"create_interval,omitempty"`
	SessionIdleTTL  Duration `json:"session_idle_ttl,omitempty"`
}

// Duration is a time.Duration that reads "500ms"-style strings from JSON.
type Duration time.Duration

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("duration must be a string like \"500ms\": %w", err)
	}
	*d = Duration(n)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:           envOrDefault("PORT", "8080"),
		Environment:    envOrDefault("ENVIRONMENT", "development"),
		LogLevel:       envOrDefault("LOG_LEVEL", "info"),
		GCPProject:     os.Getenv("GCP_PROJECT"),
		StoreID:        os.Getenv("STORE_ID"),
		AdapterType:    envOrDefault("ADAPTER_TYPE", AdapterShopify),
		CacheDir:       os.Getenv("CACHE_DIR"),
		AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS")),
		Pointers: PointerConfig{
			Backend:             envOrDefault("POINTER_STORE", PointerStoreMemory),
			FirestoreProject:    os.Getenv("FIRESTORE_PROJECT"),
			FirestoreCollection: envOrDefault("FIRESTORE_COLLECTION", "cart_pointers"),
			CredentialsFile:     os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
			RedisAddr:           os.Getenv("REDIS_ADDR"),
			RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		},
		Session: SessionConfig{
			Provider:        envOrDefault("SESSION_PROVIDER", SessionProviderHeader),
			FirebaseProject: os.Getenv("FIREBASE_PROJECT"),
			JWTSecret:       os.Getenv("SESSION_JWT_SECRET"),
			JWTIssuer:       os.Getenv("SESSION_JWT_ISSUER"),
		},
	}

	if err := cfg.loadTunables(); err != nil {
		return nil, err
	}

	var err error
	if cfg.Environment == "production" && cfg.AdapterType != AdapterMemory {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		if cfg.StoreID == "" {
			return nil, fmt.Errorf("STORE_ID required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		err = cfg.loadFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading store config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadTunables parses the numeric and duration env vars.
func (c *Config) loadTunables() error {
	var err error
	if c.Pointers.RedisDB, err = envInt("REDIS_DB"); err != nil {
		return err
	}
	if c.Pointers.TTL, err = envDuration("POINTER_TTL"); err != nil {
		return err
	}
	if c.Sync.PointerDebounce, err = envDuration("POINTER_DEBOUNCE"); err != nil {
		return err
	}
	if c.Sync.CreateBurst, err = envInt("CART_CREATE_BURST"); err != nil {
		return err
	}
	if c.Sync.CreateInterval, err = envDuration("CART_CREATE_INTERVAL"); err != nil {
		return err
	}
	if c.Sync.SessionIdleTTL, err = envDuration("SESSION_IDLE_TTL"); err != nil {
		return err
	}
	if v := os.Getenv("TLS_FINGERPRINT"); v != "" {
		if c.TLSFingerprint, err = strconv.ParseBool(v); err != nil {
			return fmt.Errorf("invalid TLS_FINGERPRINT: %w", err)
		}
	}
	return nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.AdapterType == "" {
		return nil, fmt.Errorf("adapter_type is required (shopify, woocommerce or memory)")
	}

	cfg.Port = withDefault(cfg.Port, "8080")
	cfg.Environment = withDefault(cfg.Environment, "development")
	cfg.LogLevel = withDefault(cfg.LogLevel, "info")
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager fetches store credentials from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{store_id}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.StoreID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	if err := json.Unmarshal(result.Payload.Data, &c.Store); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}

	return nil
}

// loadFromEnv reads store credentials from individual environment variables.
func (c *Config) loadFromEnv() error {
	c.Store = StoreConfig{
		StoreURL:      os.Getenv("STORE_URL"),
		Token:         os.Getenv("STOREFRONT_TOKEN"),
		APIVersion:    os.Getenv("STOREFRONT_API_VERSION"),
		BatchStrategy: os.Getenv("WOOCOMMERCE_BATCH_STRATEGY"),
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Pointers.Backend == "" {
		c.Pointers.Backend = PointerStoreMemory
	}
	if c.Pointers.FirestoreProject == "" {
		c.Pointers.FirestoreProject = c.GCPProject
	}
	if c.Pointers.FirestoreCollection == "" {
		c.Pointers.FirestoreCollection = "cart_pointers"
	}
	if c.Session.Provider == "" {
		c.Session.Provider = SessionProviderHeader
	}
	if c.Session.FirebaseProject == "" {
		c.Session.FirebaseProject = c.GCPProject
	}
	if c.Sync.SessionIdleTTL == 0 {
		c.Sync.SessionIdleTTL = Duration(30 * time.Minute)
	}
	if len(c.AllowedOrigins) == 0 && c.Store.StoreURL != "" {
		if u, err := url.Parse(c.Store.StoreURL); err == nil && u.Host != "" {
			c.AllowedOrigins = []string{u.Scheme + "://" + u.Host}
		}
	}
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	switch c.AdapterType {
	case AdapterShopify:
		if c.Store.StoreURL == "" {
			return fmt.Errorf("store_url is required")
		}
		if c.Store.Token == "" {
			return fmt.Errorf("storefront_token is required for Shopify adapter")
		}
	case AdapterWooCommerce:
		if c.Store.StoreURL == "" {
			return fmt.Errorf("store_url is required")
		}
		switch c.Store.BatchStrategy {
		case "", "multi", "sequential":
		default:
			return fmt.Errorf("unknown batch_strategy %q (multi or sequential)", c.Store.BatchStrategy)
		}
	case AdapterMemory:
	default:
		return fmt.Errorf("unknown adapter_type %q (shopify, woocommerce or memory)", c.AdapterType)
	}

	if c.Store.StoreURL != "" {
		u, err := url.Parse(c.Store.StoreURL)
		if err != nil {
			return fmt.Errorf("invalid store_url: %w", err)
		}
		if u.Host == "" {
			return fmt.Errorf("invalid store_url: missing host")
		}
	}

	switch c.Pointers.Backend {
	case PointerStoreMemory:
	case PointerStoreFirestore:
		if c.Pointers.FirestoreProject == "" {
			return fmt.Errorf("FIRESTORE_PROJECT (or GCP_PROJECT) is required for firestore pointer store")
		}
	case PointerStoreRedis:
		if c.Pointers.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for redis pointer store")
		}
	default:
		return fmt.Errorf("unknown pointer store %q (memory, firestore or redis)", c.Pointers.Backend)
	}

	switch c.Session.Provider {
	case SessionProviderHeader:
	case SessionProviderFirebase:
		if c.Session.FirebaseProject == "" {
			return fmt.Errorf("FIREBASE_PROJECT (or GCP_PROJECT) is required for firebase sessions")
		}
	case SessionProviderJWT:
		if len(c.Session.JWTSecret) < 32 {
			return fmt.Errorf("SESSION_JWT_SECRET must be at least 32 bytes for jwt sessions")
		}
	default:
		return fmt.Errorf("unknown session provider %q (header, firebase or jwt)", c.Session.Provider)
	}

	if c.Sync.CreateBurst < 0 {
		return fmt.Errorf("CART_CREATE_BURST must not be negative")
	}
	return nil
}

// StoreDomain returns the host of the store URL.
func (c *Config) StoreDomain() string {
	return extractDomain(c.Store.StoreURL)
}

// extractDomain parses the domain from a URL string.
func extractDomain(storeURL string) string {
	u, err := url.Parse(storeURL)
	if err != nil {
		// Fallback: strip protocol prefix manually
		domain := strings.TrimPrefix(storeURL, "https://")
		domain = strings.TrimPrefix(domain, "http://")
		return strings.Split(domain, "/")[0]
	}
	return u.Host
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// splitList parses a comma-separated env value.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.TrimSuffix(part, "/"))
		}
	}
	return out
}

func envInt(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string) (Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return Duration(d), nil
}
