package config

import (
	"context"
	"os"
	"strings"
	"testing"

	"bundle-proxy/internal/model"
)

const validBundlesJSON = `[{
	"id": "bundle-1",
	"main_product_id": 111,
	"cascade_delete": true,
	"add_ons": [
		{"id": "warranty", "product_handle": "extended-warranty", "discount_type": "percentage", "discount_value": 20},
		{"id": "sticker", "product_handle": "sticker-pack", "discount_type": "free_gift"}
	]
}]`

func TestLoadFromEnv(t *testing.T) {
	// Save and restore environment
	envVars := []string{
		"MERCHANT_ID", "MERCHANT_STORE_URL", "MERCHANT_STORE_DOMAIN",
		"BUNDLES", "WIDGET_MIN_VERSION", "ADMIN_SHOP", "ADMIN_TOKEN",
		"ENVIRONMENT", "PORT", "LOG_LEVEL", "CONFIG_FILE",
	}
	saved := make(map[string]string)
	for _, k := range envVars {
		saved[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range saved {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()
	os.Unsetenv("CONFIG_FILE")

	os.Setenv("ENVIRONMENT", "development")
	os.Setenv("MERCHANT_ID", "test-merchant")
	os.Setenv("MERCHANT_STORE_URL", "https://shop.example.com")
	os.Setenv("BUNDLES", validBundlesJSON)
	os.Setenv("WIDGET_MIN_VERSION", "1.2.0")
	os.Setenv("PORT", "9090")
	os.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %s, want 9090", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.MerchantID != "test-merchant" {
		t.Errorf("MerchantID = %s, want test-merchant", cfg.MerchantID)
	}

	if cfg.Merchant.StoreURL != "https://shop.example.com" {
		t.Errorf("StoreURL = %s, want https://shop.example.com", cfg.Merchant.StoreURL)
	}
	if cfg.Merchant.StoreDomain != "shop.example.com" {
		t.Errorf("StoreDomain = %s, want shop.example.com (derived)", cfg.Merchant.StoreDomain)
	}
	if cfg.Merchant.WidgetMinVersion != "1.2.0" {
		t.Errorf("WidgetMinVersion = %s, want 1.2.0", cfg.Merchant.WidgetMinVersion)
	}

	if len(cfg.Merchant.Bundles) != 1 {
		t.Fatalf("Bundles len = %d, want 1", len(cfg.Merchant.Bundles))
	}
	b := cfg.Merchant.Bundles[0]
	if b.ID != "bundle-1" || b.MainProductID != 111 || !b.CascadeDelete {
		t.Errorf("unexpected bundle: %+v", b)
	}
	if len(b.AddOns) != 2 || b.AddOns[0].DiscountType != model.DiscountPercentage {
		t.Errorf("unexpected add-ons: %+v", b.AddOns)
	}

	if cfg.Merchant.MetafieldSyncEnabled() {
		t.Error("metafield sync must be off without admin credentials")
	}
}

func TestLoadMissingMerchantID(t *testing.T) {
	os.Unsetenv("CONFIG_FILE")
	os.Unsetenv("MERCHANT_ID")

	_, err := Load(context.Background())
	if err == nil {
		t.Error("Expected error for missing MERCHANT_ID")
	}
}

func TestValidate(t *testing.T) {
	validBundle := model.Bundle{
		ID:            "bundle-1",
		MainProductID: 111,
		AddOns: []model.AddOn{
			{ID: "warranty", ProductHandle: "extended-warranty", DiscountType: model.DiscountNone},
		},
	}

	tests := []struct {
		name    string
		mutate  func(m *MerchantConfig)
		wantErr string
	}{
		{
			name:    "valid",
			mutate:  func(m *MerchantConfig) {},
			wantErr: "",
		},
		{
			name:    "missing store_url",
			mutate:  func(m *MerchantConfig) { m.StoreURL = "" },
			wantErr: "store_url is required",
		},
		{
			name:    "no bundles",
			mutate:  func(m *MerchantConfig) { m.Bundles = nil },
			wantErr: "at least one bundle is required",
		},
		{
			name: "duplicate bundle id",
			mutate: func(m *MerchantConfig) {
				m.Bundles = append(m.Bundles, m.Bundles[0])
			},
			wantErr: "duplicate id",
		},
		{
			name: "missing main product",
			mutate: func(m *MerchantConfig) {
				m.Bundles[0].MainProductID = 0
			},
			wantErr: "main_product_id is required",
		},
		{
			name: "no add-ons",
			mutate: func(m *MerchantConfig) {
				m.Bundles[0].AddOns = nil
			},
			wantErr: "at least one add-on is required",
		},
		{
			name: "missing product handle",
			mutate: func(m *MerchantConfig) {
				m.Bundles[0].AddOns[0].ProductHandle = ""
			},
			wantErr: "product_handle is required",
		},
		{
			name: "unknown discount type",
			mutate: func(m *MerchantConfig) {
				m.Bundles[0].AddOns[0].DiscountType = "bogus"
			},
			wantErr: "unknown discount_type",
		},
		{
			name: "percentage above 100",
			mutate: func(m *MerchantConfig) {
				m.Bundles[0].AddOns[0].DiscountType = model.DiscountPercentage
				m.Bundles[0].AddOns[0].DiscountValue = 120
			},
			wantErr: "percentage discount above 100",
		},
		{
			name: "negative discount value",
			mutate: func(m *MerchantConfig) {
				m.Bundles[0].AddOns[0].DiscountValue = -1
			},
			wantErr: "must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				MerchantID: "test",
				Merchant: MerchantConfig{
					StoreURL: "https://shop.example.com",
					Bundles:  []model.Bundle{validBundle},
				},
			}
			// The shared fixture must not leak mutations between cases.
			cfg.Merchant.Bundles = append([]model.Bundle(nil), cfg.Merchant.Bundles...)
			cfg.Merchant.Bundles[0].AddOns = append([]model.AddOn(nil), validBundle.AddOns...)
			tt.mutate(&cfg.Merchant)

			err := cfg.validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestBundleLookups(t *testing.T) {
	m := MerchantConfig{
		Bundles: []model.Bundle{
			{ID: "bundle-1", MainProductID: 111},
			{ID: "bundle-2", MainProductID: 222},
		},
	}

	if b := m.BundleByID("bundle-2"); b == nil || b.MainProductID != 222 {
		t.Errorf("BundleByID(bundle-2) = %+v", b)
	}
	if b := m.BundleByID("missing"); b != nil {
		t.Errorf("BundleByID(missing) = %+v, want nil", b)
	}
	if b := m.BundleByMainProduct(111); b == nil || b.ID != "bundle-1" {
		t.Errorf("BundleByMainProduct(111) = %+v", b)
	}
	if b := m.BundleByMainProduct(999); b != nil {
		t.Errorf("BundleByMainProduct(999) = %+v, want nil", b)
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `{
		"port": "9090",
		"environment": "test",
		"log_level": "debug",
		"merchant_id": "file-merchant",
		"merchant": {
			"store_url": "https://file-shop.com",
			"widget_min_version": "1.0.0",
			"session_ttl_minutes": 15,
			"sweep_interval_seconds": 20,
			"admin_shop": "file-shop.myshopify.com",
			"admin_token": "shpat_test",
			"bundles": ` + validBundlesJSON + `
		}
	}`

	tmpFile, err := os.CreateTemp("", "config-*.json")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	tmpFile.Close()

	// Save and restore CONFIG_FILE
	saved := os.Getenv("CONFIG_FILE")
	defer func() {
		if saved == "" {
			os.Unsetenv("CONFIG_FILE")
		} else {
			os.Setenv("CONFIG_FILE", saved)
		}
	}()

	os.Setenv("CONFIG_FILE", tmpFile.Name())

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %s, want 9090", cfg.Port)
	}
	if cfg.MerchantID != "file-merchant" {
		t.Errorf("MerchantID = %s, want file-merchant", cfg.MerchantID)
	}
	if cfg.Merchant.StoreDomain != "file-shop.com" {
		t.Errorf("StoreDomain = %s, want file-shop.com (derived)", cfg.Merchant.StoreDomain)
	}
	if len(cfg.Merchant.Bundles) != 1 {
		t.Errorf("Bundles len = %d, want 1", len(cfg.Merchant.Bundles))
	}
	if got := cfg.Merchant.SessionTTL().Minutes(); got != 15 {
		t.Errorf("SessionTTL = %v minutes, want 15", got)
	}
	if got := cfg.Merchant.SweepInterval().Seconds(); got != 20 {
		t.Errorf("SweepInterval = %v seconds, want 20", got)
	}
	if !cfg.Merchant.MetafieldSyncEnabled() {
		t.Error("expected metafield sync enabled with admin credentials")
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	saved := os.Getenv("CONFIG_FILE")
	defer func() {
		if saved == "" {
			os.Unsetenv("CONFIG_FILE")
		} else {
			os.Setenv("CONFIG_FILE", saved)
		}
	}()

	t.Run("file not found", func(t *testing.T) {
		os.Setenv("CONFIG_FILE", "/nonexistent/config.json")
		_, err := Load(context.Background())
		if err == nil {
			t.Error("expected error for nonexistent file")
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		tmpFile, _ := os.CreateTemp("", "config-*.json")
		defer os.Remove(tmpFile.Name())
		tmpFile.WriteString("{invalid json")
		tmpFile.Close()

		os.Setenv("CONFIG_FILE", tmpFile.Name())
		_, err := Load(context.Background())
		if err == nil {
			t.Error("expected error for invalid JSON")
		}
	})

	t.Run("missing merchant_id", func(t *testing.T) {
		tmpFile, _ := os.CreateTemp("", "config-*.json")
		defer os.Remove(tmpFile.Name())
		tmpFile.WriteString(`{"merchant": {"store_url": "https://shop.com"}}`)
		tmpFile.Close()

		os.Setenv("CONFIG_FILE", tmpFile.Name())
		_, err := Load(context.Background())
		if err == nil || !strings.Contains(err.Error(), "merchant_id is required") {
			t.Errorf("expected merchant_id error, got: %v", err)
		}
	})
}

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://shop.example.com", "shop.example.com"},
		{"https://shop.example.com/", "shop.example.com"},
		{"https://shop.example.com/path/to/page", "shop.example.com"},
		{"http://shop.example.com:8080", "shop.example.com:8080"},
		{"https://sub.shop.example.com", "sub.shop.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got := extractDomain(tt.url)
			if got != tt.want {
				t.Errorf("extractDomain(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestEnvOrDefault(t *testing.T) {
	os.Setenv("TEST_ENV_VAR", "custom")
	if got := envOrDefault("TEST_ENV_VAR", "default"); got != "custom" {
		t.Errorf("envOrDefault with set var = %q, want custom", got)
	}

	os.Unsetenv("TEST_ENV_VAR_UNSET")
	if got := envOrDefault("TEST_ENV_VAR_UNSET", "default"); got != "default" {
		t.Errorf("envOrDefault with unset var = %q, want default", got)
	}

	os.Unsetenv("TEST_ENV_VAR")
}
