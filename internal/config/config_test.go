package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeTempFile creates a temporary file with the given content and returns its path.
func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file %s: %v", path, err)
	}
	return path
}

const validYAML = `
server:
  port: 9090
  auth_token: test-secret-token
logging:
  level: debug
  format: console
safety:
  collections:
    allowlist: ["heaters", "health-*"]
    denylist: ["internal-*"]
audit:
  enabled: false
  log_path: /custom/audit.log
storefront:
  domain: shop.example.com
  api_version: "2025-01"
  access_token: sf-token
  timeout: 10
  concurrency: 4
conversions:
  pixel_id: "911"
  access_token: capi-token
  test_event_code: TEST1
  full_gid: false
concierge:
  base_url: https://concierge.example.com
  provider: openai
  use_rag: false
`

func Test_LoadConfig_Cases(t *testing.T) {
	tests := []struct {
		name        string
		setupPath   func(t *testing.T) string
		wantErr     bool
		errContains string
		validate    func(t *testing.T, cfg *Config)
	}{
		{
			name: "valid config loads all fields",
			setupPath: func(t *testing.T) string {
				t.Helper()
				return writeTempFile(t, "valid.yaml", validYAML)
			},
			validate: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Server.Port != 9090 {
					t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
				}
				if cfg.Server.AuthToken != "test-secret-token" {
					t.Errorf("Server.AuthToken = %q", cfg.Server.AuthToken)
				}
				if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
					t.Errorf("Logging = %+v", cfg.Logging)
				}
				if got := cfg.Safety.Collections.Allowlist; len(got) != 2 || got[1] != "health-*" {
					t.Errorf("Safety.Collections.Allowlist = %v", got)
				}
				if got := cfg.Safety.Collections.Denylist; len(got) != 1 || got[0] != "internal-*" {
					t.Errorf("Safety.Collections.Denylist = %v", got)
				}
				if cfg.Audit.Enabled {
					t.Error("Audit.Enabled = true, want false")
				}
				if cfg.Storefront.Endpoint() != "https://shop.example.com/api/2025-01/graphql.json" {
					t.Errorf("Storefront.Endpoint() = %q", cfg.Storefront.Endpoint())
				}
				if cfg.Storefront.Concurrency != 4 {
					t.Errorf("Storefront.Concurrency = %d, want 4", cfg.Storefront.Concurrency)
				}
				if cfg.Conversions.PixelID != "911" || cfg.Conversions.FullGID {
					t.Errorf("Conversions = %+v", cfg.Conversions)
				}
				if cfg.Concierge.Provider != "openai" || cfg.Concierge.UseRAG {
					t.Errorf("Concierge = %+v", cfg.Concierge)
				}
			},
		},
		{
			name: "partial config keeps defaults for absent fields",
			setupPath: func(t *testing.T) string {
				t.Helper()
				return writeTempFile(t, "partial.yaml", "storefront:\n  domain: partial.example.com\n")
			},
			validate: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Server.Port != 8080 {
					t.Errorf("Server.Port = %d, want default 8080", cfg.Server.Port)
				}
				if cfg.Storefront.APIVersion != "2024-04" {
					t.Errorf("Storefront.APIVersion = %q, want default", cfg.Storefront.APIVersion)
				}
				if cfg.Conversions.BaseURL != "https://graph.facebook.com" {
					t.Errorf("Conversions.BaseURL = %q, want default", cfg.Conversions.BaseURL)
				}
			},
		},
		{
			name: "missing file returns error",
			setupPath: func(t *testing.T) string {
				t.Helper()
				return "/nonexistent/path/config.yaml"
			},
			wantErr:     true,
			errContains: "failed to read config file",
		},
		{
			name: "malformed yaml returns error",
			setupPath: func(t *testing.T) string {
				t.Helper()
				return writeTempFile(t, "bad.yaml", "server: [unclosed")
			},
			wantErr:     true,
			errContains: "failed to unmarshal config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(tt.setupPath(t))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error = %q, want it to contain %q", err.Error(), tt.errContains)
				}
				if cfg != nil {
					t.Error("expected nil config on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.validate(t, cfg)
		})
	}
}

func Test_DefaultConfig_HasNoCredentials(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Storefront.AccessToken != "" || cfg.Conversions.AccessToken != "" || cfg.Server.AuthToken != "" {
		t.Errorf("DefaultConfig carries credentials: %+v", cfg)
	}
	if cfg.ConversionsEnabled() {
		t.Error("ConversionsEnabled() = true on defaults")
	}
	if DefaultConfig() == cfg {
		t.Error("DefaultConfig returned a shared instance")
	}
}

func Test_StorefrontConfig_Endpoint(t *testing.T) {
	tests := []struct {
		name string
		cfg  StorefrontConfig
		want string
	}{
		{name: "derived from domain", cfg: StorefrontConfig{Domain: "a.myshopify.com", APIVersion: "2024-04"}, want: "https://a.myshopify.com/api/2024-04/graphql.json"},
		{name: "url wins", cfg: StorefrontConfig{Domain: "a.myshopify.com", URL: "http://127.0.0.1:9/graphql.json"}, want: "http://127.0.0.1:9/graphql.json"},
		{name: "nothing configured", cfg: StorefrontConfig{}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Endpoint(); got != tt.want {
				t.Errorf("Endpoint() = %q, want %q", got, tt.want)
			}
		})
	}
}

func Test_Validate_Cases(t *testing.T) {
	t.Run("defaults are missing storefront settings", func(t *testing.T) {
		err := DefaultConfig().Validate()
		if err == nil {
			t.Fatal("expected error")
		}
		for _, want := range []string{"domain or url is required", "access_token is required"} {
			if !strings.Contains(err.Error(), want) {
				t.Errorf("error %q missing %q", err.Error(), want)
			}
		}
	})

	t.Run("complete storefront settings validate", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Storefront.Domain = "shop.example.com"
		cfg.Storefront.AccessToken = "tok"
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() = %v, want nil", err)
		}
	})

	t.Run("bad port is reported", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Storefront.URL = "http://x"
		cfg.Storefront.AccessToken = "tok"
		cfg.Server.Port = 70000
		if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "invalid port") {
			t.Errorf("Validate() = %v, want invalid port", err)
		}
	})
}
