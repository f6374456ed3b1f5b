// Command storefrontctl checks a storefront deployment from the command
// line: collection counts, handle and product id verification, a test
// conversions event and a concierge round trip.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/jamesprial/storefront-mcp/internal/apiclient"
	"github.com/jamesprial/storefront-mcp/internal/concierge"
	"github.com/jamesprial/storefront-mcp/internal/config"
	"github.com/jamesprial/storefront-mcp/internal/conversions"
	"github.com/jamesprial/storefront-mcp/internal/graphql"
	"github.com/jamesprial/storefront-mcp/internal/logging"
	"github.com/jamesprial/storefront-mcp/internal/storefront"
)

func main() {
	if err := newRootCmd(loadApp).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadApp builds the clients from .env files, the optional config file and
// the environment. Services whose credentials are missing are left nil and
// their commands fail with a clear error.
func loadApp(opts rootOptions) (*app, error) {
	if _, err := config.LoadDotEnv(); err != nil {
		return nil, err
	}

	cfg := config.DefaultConfig()
	if opts.configPath != "" {
		loaded, err := config.LoadConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	config.ApplyEnvOverrides(cfg)

	logCfg := config.LoggingConfig{Level: cfg.Logging.Level, Format: "console"}
	if opts.verbose {
		logCfg.Level = "debug"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		logger:   logger,
		fullGID:  cfg.Conversions.FullGID,
		testCode: cfg.Conversions.TestEventCode,
		provider: concierge.ProviderGemini,
		useRAG:   cfg.Concierge.UseRAG,
	}
	apiOpts := []apiclient.Option{apiclient.WithLogger(logger)}

	if gql, err := graphql.NewHTTPClient(cfg.Storefront, apiOpts...); err != nil {
		logger.Debug("storefront client unavailable", zap.Error(err))
	} else {
		a.catalog = storefront.NewGraphQLCatalogManager(gql,
			storefront.WithLogger(logger),
			storefront.WithConcurrency(cfg.Storefront.Concurrency),
		)
	}

	if cfg.ConversionsEnabled() {
		if c, err := conversions.NewClient(cfg.Conversions, apiOpts...); err != nil {
			logger.Debug("conversions client unavailable", zap.Error(err))
		} else {
			a.events = c
		}
	}

	if p, err := concierge.ParseProvider(cfg.Concierge.Provider); err == nil {
		a.provider = p
	}
	if c, err := concierge.NewClient(cfg.Concierge, apiOpts...); err != nil {
		logger.Debug("concierge client unavailable", zap.Error(err))
	} else {
		a.chat = c
	}

	return a, nil
}
