// Package config provides configuration loading and defaults for the
// storefront-mcp server and the storefrontctl verification tool.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ResourceFilter holds allowlist and denylist entries for a resource category.
type ResourceFilter struct {
	Allowlist []string `yaml:"allowlist"`
	Denylist  []string `yaml:"denylist"`
}

// SafetyConfig groups resource filters. Collections restricts which catalog
// handles the tools may look up.
type SafetyConfig struct {
	Collections ResourceFilter `yaml:"collections"`
}

// AuditConfig controls audit logging behaviour.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	LogPath string `yaml:"log_path"`
}

// ServerConfig holds network and authentication settings.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// LoggingConfig selects the zap logger flavour.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is "json" (production) or "console" (development).
	Format string `yaml:"format"`
}

// StorefrontConfig holds connection details for the storefront GraphQL API.
type StorefrontConfig struct {
	// Domain is the shop's permanent domain, e.g. example.myshopify.com.
	Domain     string `yaml:"domain"`
	APIVersion string `yaml:"api_version"`
	// URL overrides the endpoint derived from Domain and APIVersion.
	URL         string `yaml:"url"`
	AccessToken string `yaml:"access_token"`
	// Timeout is the HTTP request timeout in seconds.
	Timeout int `yaml:"timeout"`
	// Concurrency bounds batch lookups. Values below 2 keep them sequential.
	Concurrency int `yaml:"concurrency"`
}

// Endpoint returns the GraphQL endpoint for the storefront.
func (s StorefrontConfig) Endpoint() string {
	if s.URL != "" {
		return s.URL
	}
	if s.Domain == "" {
		return ""
	}
	return fmt.Sprintf("https://%s/api/%s/graphql.json", s.Domain, s.APIVersion)
}

// ConversionsConfig holds credentials for the server-side conversions API.
type ConversionsConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIVersion  string `yaml:"api_version"`
	PixelID     string `yaml:"pixel_id"`
	AccessToken string `yaml:"access_token"`
	// TestEventCode routes events to the platform's test console when set.
	TestEventCode string `yaml:"test_event_code"`
	// FullGID sends product ids as full GIDs instead of numeric ids.
	FullGID bool `yaml:"full_gid"`
	Timeout int  `yaml:"timeout"`
	// AllowedOrigins lists the browser origins the /conversions relay
	// accepts. "*" allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ConciergeConfig holds settings for the AI concierge chat backend.
type ConciergeConfig struct {
	BaseURL  string `yaml:"base_url"`
	Provider string `yaml:"provider"`
	UseRAG   bool   `yaml:"use_rag"`
	Timeout  int    `yaml:"timeout"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Safety      SafetyConfig      `yaml:"safety"`
	Audit       AuditConfig       `yaml:"audit"`
	Storefront  StorefrontConfig  `yaml:"storefront"`
	Conversions ConversionsConfig `yaml:"conversions"`
	Concierge   ConciergeConfig   `yaml:"concierge"`
}

// LoadConfig reads and parses a YAML configuration file from the given path.
// Fields absent from the file keep their DefaultConfig values. On error, nil
// is returned for the config pointer.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a new Config populated with sensible default values.
// Each call returns a distinct instance. No credentials are set.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Audit: AuditConfig{
			Enabled: true,
			LogPath: "/config/audit.log",
		},
		Storefront: StorefrontConfig{
			APIVersion:  "2024-04",
			Timeout:     30,
			Concurrency: 1,
		},
		Conversions: ConversionsConfig{
			BaseURL:    "https://graph.facebook.com",
			APIVersion: "v18.0",
			FullGID:        true,
			Timeout:        30,
			AllowedOrigins: []string{"*"},
		},
		Concierge: ConciergeConfig{
			BaseURL:  "http://localhost:8000",
			Provider: "gemini",
			UseRAG:   true,
			Timeout:  60,
		},
	}
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are skipped. It returns the files that were loaded.
func LoadDotEnv(files ...string) ([]string, error) {
	if len(files) == 0 {
		files = []string{".env", ".env.local"}
	}
	var loaded []string
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return loaded, fmt.Errorf("load %s: %w", file, err)
		}
		loaded = append(loaded, file)
	}
	return loaded, nil
}

// ApplyEnvOverrides updates cfg in place with values from environment variables.
// Recognized variables:
//   - STOREFRONT_MCP_AUTH_TOKEN overrides cfg.Server.AuthToken
//   - STOREFRONT_MCP_PORT overrides cfg.Server.Port
//   - STOREFRONT_LOG_LEVEL overrides cfg.Logging.Level
//   - STOREFRONT_DOMAIN overrides cfg.Storefront.Domain
//   - STOREFRONT_URL overrides cfg.Storefront.URL
//   - STOREFRONT_ACCESS_TOKEN overrides cfg.Storefront.AccessToken
//   - META_PIXEL_ID overrides cfg.Conversions.PixelID
//   - META_ACCESS_TOKEN overrides cfg.Conversions.AccessToken
//   - META_TEST_EVENT_CODE overrides cfg.Conversions.TestEventCode
//   - STOREFRONT_RELAY_ORIGINS (comma-separated) overrides cfg.Conversions.AllowedOrigins
//   - STOREFRONT_CONCIERGE_URL overrides cfg.Concierge.BaseURL
func ApplyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("STOREFRONT_MCP_AUTH_TOKEN", &cfg.Server.AuthToken)
	if port := os.Getenv("STOREFRONT_MCP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			cfg.Server.Port = p
		}
	}
	setString("STOREFRONT_LOG_LEVEL", &cfg.Logging.Level)
	setString("STOREFRONT_DOMAIN", &cfg.Storefront.Domain)
	setString("STOREFRONT_URL", &cfg.Storefront.URL)
	setString("STOREFRONT_ACCESS_TOKEN", &cfg.Storefront.AccessToken)
	setString("META_PIXEL_ID", &cfg.Conversions.PixelID)
	setString("META_ACCESS_TOKEN", &cfg.Conversions.AccessToken)
	setString("META_TEST_EVENT_CODE", &cfg.Conversions.TestEventCode)
	if origins := os.Getenv("STOREFRONT_RELAY_ORIGINS"); origins != "" {
		cfg.Conversions.AllowedOrigins = nil
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.Conversions.AllowedOrigins = append(cfg.Conversions.AllowedOrigins, o)
			}
		}
	}
	setString("STOREFRONT_CONCIERGE_URL", &cfg.Concierge.BaseURL)
}

// Validate reports every configuration problem that would prevent the
// storefront client from working. Conversions and concierge settings are
// optional and are not checked here.
func (c *Config) Validate() error {
	var errs []error
	if c.Storefront.Endpoint() == "" {
		errs = append(errs, errors.New("storefront: domain or url is required"))
	}
	if c.Storefront.AccessToken == "" {
		errs = append(errs, errors.New("storefront: access_token is required"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server: invalid port %d", c.Server.Port))
	}
	return errors.Join(errs...)
}

// ConversionsEnabled reports whether both conversions credentials are set.
func (c *Config) ConversionsEnabled() bool {
	return c.Conversions.PixelID != "" && c.Conversions.AccessToken != ""
}

// EnsureAuthToken generates a random auth token and sets it on cfg if
// cfg.Server.AuthToken is empty. It returns the token (existing or generated)
// and any error encountered during generation.
func EnsureAuthToken(cfg *Config) (string, error) {
	if cfg.Server.AuthToken != "" {
		return cfg.Server.AuthToken, nil
	}
	token, err := GenerateRandomToken()
	if err != nil {
		return "", fmt.Errorf("generate auth token: %w", err)
	}
	cfg.Server.AuthToken = token
	return token, nil
}

// GenerateRandomToken returns a 32-character hex-encoded cryptographically
// random token string.
func GenerateRandomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand.Read: %w", err)
	}
	return hex.EncodeToString(b), nil
}
