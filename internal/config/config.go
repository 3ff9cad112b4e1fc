// Package config handles loading and validation of service configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"

	"bundle-proxy/internal/model"
)

// Config holds all service configuration.
// Environment determines whether secrets load from env vars (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string
	MerchantID string

	// Merchant-specific configuration (loaded from secrets)
	Merchant MerchantConfig
}

// MerchantConfig contains merchant-specific settings.
// In production, this is loaded from Secret Manager as JSON.
// In development, loaded from individual env vars or CONFIG_FILE.
type MerchantConfig struct {
	StoreURL    string `json:"store_url"`
	StoreDomain string `json:"store_domain"` // Derived from StoreURL if not set

	// Bundles is the resolved add-on configuration for this merchant. The
	// admin-side data layer owns it; the proxy only reads it.
	Bundles []model.Bundle `json:"bundles"`

	// WidgetMinVersion is the oldest widget script version the proxy will
	// treat as widget traffic. Empty accepts every version.
	WidgetMinVersion string `json:"widget_min_version,omitempty"`

	// SessionTTLMinutes reclaims selection sessions idle longer than this.
	SessionTTLMinutes int `json:"session_ttl_minutes,omitempty"`

	// SweepIntervalSeconds is the fallback sweep cadence on cart pages.
	SweepIntervalSeconds int `json:"sweep_interval_seconds,omitempty"`

	// SweepSettleMillis is the wait after an observed cart mutation before a
	// sweep pass runs.
	SweepSettleMillis int `json:"sweep_settle_millis,omitempty"`

	// Admin API credentials for publishing bundle config to the shop
	// metafield the widget script reads. Presence enables the sync.
	AdminShop  string `json:"admin_shop,omitempty"`
	AdminToken string `json:"admin_token,omitempty"`
}

// SessionTTL returns the configured session TTL as a duration.
// Zero means use the session store's default.
func (m *MerchantConfig) SessionTTL() time.Duration {
	return time.Duration(m.SessionTTLMinutes) * time.Minute
}

// SweepInterval returns the configured sweep cadence.
// Zero means use the sweeper's default.
func (m *MerchantConfig) SweepInterval() time.Duration {
	return time.Duration(m.SweepIntervalSeconds) * time.Second
}

// SweepSettle returns the configured post-mutation settle delay.
// Zero means use the sweeper's default.
func (m *MerchantConfig) SweepSettle() time.Duration {
	return time.Duration(m.SweepSettleMillis) * time.Millisecond
}

// MetafieldSyncEnabled reports whether Admin API credentials are present.
func (m *MerchantConfig) MetafieldSyncEnabled() bool {
	return m.AdminShop != "" && m.AdminToken != ""
}

// BundleByID returns the configured bundle with the given id, or nil.
func (m *MerchantConfig) BundleByID(id string) *model.Bundle {
	for i := range m.Bundles {
		if m.Bundles[i].ID == id {
			return &m.Bundles[i]
		}
	}
	return nil
}

// BundleByMainProduct returns the bundle attached to the given main product,
// or nil.
func (m *MerchantConfig) BundleByMainProduct(productID int64) *model.Bundle {
	for i := range m.Bundles {
		if m.Bundles[i].MainProductID == productID {
			return &m.Bundles[i]
		}
	}
	return nil
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	// If CONFIG_FILE is set, load everything from the JSON file
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:        envOrDefault("PORT", "8080"),
		Environment: envOrDefault("ENVIRONMENT", "development"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		GCPProject:  os.Getenv("GCP_PROJECT"),
		MerchantID:  os.Getenv("MERCHANT_ID"),
	}

	// MerchantID required in all environments
	if cfg.MerchantID == "" {
		return nil, fmt.Errorf("MERCHANT_ID environment variable required")
	}

	var err error
	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		err = cfg.loadFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading merchant config: %w", err)
	}

	// Derive store domain from URL if not explicitly set
	if cfg.Merchant.StoreDomain == "" && cfg.Merchant.StoreURL != "" {
		cfg.Merchant.StoreDomain = extractDomain(cfg.Merchant.StoreURL)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig struct {
		Port        string         `json:"port"`
		Environment string         `json:"environment"`
		LogLevel    string         `json:"log_level"`
		MerchantID  string         `json:"merchant_id"`
		Merchant    MerchantConfig `json:"merchant"`
	}

	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:        withDefault(fileConfig.Port, "8080"),
		Environment: withDefault(fileConfig.Environment, "development"),
		LogLevel:    withDefault(fileConfig.LogLevel, "info"),
		MerchantID:  fileConfig.MerchantID,
		Merchant:    fileConfig.Merchant,
	}

	if cfg.MerchantID == "" {
		return nil, fmt.Errorf("merchant_id is required")
	}

	// Derive store domain from URL if not explicitly set
	if cfg.Merchant.StoreDomain == "" && cfg.Merchant.StoreURL != "" {
		cfg.Merchant.StoreDomain = extractDomain(cfg.Merchant.StoreURL)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager fetches merchant config from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{merchant_id}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.MerchantID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	if err := json.Unmarshal(result.Payload.Data, &c.Merchant); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}

	return nil
}

// loadFromEnv reads merchant config from individual environment variables.
// Used in development mode for local testing.
func (c *Config) loadFromEnv() error {
	c.Merchant = MerchantConfig{
		StoreURL:         os.Getenv("MERCHANT_STORE_URL"),
		StoreDomain:      os.Getenv("MERCHANT_STORE_DOMAIN"),
		WidgetMinVersion: os.Getenv("WIDGET_MIN_VERSION"),
		AdminShop:        os.Getenv("ADMIN_SHOP"),
		AdminToken:       os.Getenv("ADMIN_TOKEN"),
	}

	// Bundle config is JSON even in env mode; per-field vars would not
	// survive the nested add-on structure.
	if bundlesJSON := os.Getenv("BUNDLES"); bundlesJSON != "" {
		if err := json.Unmarshal([]byte(bundlesJSON), &c.Merchant.Bundles); err != nil {
			return fmt.Errorf("parsing BUNDLES JSON: %w", err)
		}
	}

	return nil
}

// validate checks that all required configuration fields are present and
// that every configured bundle is internally consistent.
func (c *Config) validate() error {
	if c.Merchant.StoreURL == "" {
		return fmt.Errorf("store_url is required")
	}
	if _, err := url.Parse(c.Merchant.StoreURL); err != nil {
		return fmt.Errorf("invalid store_url: %w", err)
	}

	if len(c.Merchant.Bundles) == 0 {
		return fmt.Errorf("at least one bundle is required")
	}

	seenBundle := make(map[string]bool)
	for i := range c.Merchant.Bundles {
		b := &c.Merchant.Bundles[i]
		if b.ID == "" {
			return fmt.Errorf("bundle %d: id is required", i)
		}
		if seenBundle[b.ID] {
			return fmt.Errorf("bundle %q: duplicate id", b.ID)
		}
		seenBundle[b.ID] = true

		if b.MainProductID <= 0 {
			return fmt.Errorf("bundle %q: main_product_id is required", b.ID)
		}
		if len(b.AddOns) == 0 {
			return fmt.Errorf("bundle %q: at least one add-on is required", b.ID)
		}

		seenAddOn := make(map[string]bool)
		for j := range b.AddOns {
			a := &b.AddOns[j]
			if a.ID == "" {
				return fmt.Errorf("bundle %q: add-on %d: id is required", b.ID, j)
			}
			if seenAddOn[a.ID] {
				return fmt.Errorf("bundle %q: add-on %q: duplicate id", b.ID, a.ID)
			}
			seenAddOn[a.ID] = true

			if a.ProductHandle == "" {
				return fmt.Errorf("bundle %q: add-on %q: product_handle is required", b.ID, a.ID)
			}
			if !a.DiscountType.Valid() {
				return fmt.Errorf("bundle %q: add-on %q: unknown discount_type %q", b.ID, a.ID, a.DiscountType)
			}
			if a.DiscountValue < 0 {
				return fmt.Errorf("bundle %q: add-on %q: discount_value must not be negative", b.ID, a.ID)
			}
			if a.DiscountType == model.DiscountPercentage && a.DiscountValue > 100 {
				return fmt.Errorf("bundle %q: add-on %q: percentage discount above 100", b.ID, a.ID)
			}
		}
	}

	return nil
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
