// Package main is the entry point for the storefront-mcp server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/jamesprial/storefront-mcp/internal/apiclient"
	"github.com/jamesprial/storefront-mcp/internal/auth"
	"github.com/jamesprial/storefront-mcp/internal/concierge"
	"github.com/jamesprial/storefront-mcp/internal/config"
	"github.com/jamesprial/storefront-mcp/internal/conversions"
	"github.com/jamesprial/storefront-mcp/internal/graphql"
	"github.com/jamesprial/storefront-mcp/internal/logging"
	"github.com/jamesprial/storefront-mcp/internal/metrics"
	"github.com/jamesprial/storefront-mcp/internal/safety"
	"github.com/jamesprial/storefront-mcp/internal/storefront"
	"github.com/jamesprial/storefront-mcp/internal/tools"
)

const defaultConfigPath = "/config/config.yaml"

func main() {
	// .env values never override variables already present.
	loaded, envErr := config.LoadDotEnv()

	cfg, cfgErr := loadConfig()
	config.ApplyEnvOverrides(cfg)

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if envErr != nil {
		logger.Warn("could not load .env file", zap.Error(envErr))
	}
	if len(loaded) > 0 {
		logger.Info("loaded environment files", zap.Strings("files", loaded))
	}
	if cfgErr != nil {
		logger.Warn("could not load config, using defaults", zap.Error(cfgErr))
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	tokenBefore := cfg.Server.AuthToken
	token, err := config.EnsureAuthToken(cfg)
	if err != nil {
		logger.Warn("could not generate auth token, running without authentication", zap.Error(err))
	} else if tokenBefore == "" {
		logger.Info("generated auth token (set STOREFRONT_MCP_AUTH_TOKEN to persist)", zap.String("token", token))
	}

	// Open audit log writer if enabled.
	var auditLogger *safety.AuditLogger
	if cfg.Audit.Enabled {
		f, err := os.OpenFile(cfg.Audit.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			logger.Warn("could not open audit log, audit logging disabled",
				zap.String("path", cfg.Audit.LogPath), zap.Error(err))
		} else {
			auditLogger = safety.NewAuditLogger(f)
			defer f.Close()
		}
	}

	collector, err := metrics.NewCollector()
	if err != nil {
		logger.Fatal("failed to register metrics", zap.Error(err))
	}
	apiOpts := []apiclient.Option{
		apiclient.WithLogger(logger),
		apiclient.WithObserver(collector),
	}

	// Build safety components.
	collectionFilter := safety.NewFilter(
		cfg.Safety.Collections.Allowlist,
		cfg.Safety.Collections.Denylist,
	)
	conversionsConfirm := safety.NewConfirmationTracker(conversions.GatedTools)

	// Build upstream clients.
	gqlClient, err := graphql.NewHTTPClient(cfg.Storefront, apiOpts...)
	if err != nil {
		logger.Fatal("failed to create storefront client", zap.Error(err))
	}
	catalog := storefront.NewGraphQLCatalogManager(gqlClient,
		storefront.WithFilter(collectionFilter),
		storefront.WithLogger(logger),
		storefront.WithConcurrency(cfg.Storefront.Concurrency),
	)

	var convClient *conversions.Client
	if cfg.ConversionsEnabled() {
		convClient, err = conversions.NewClient(cfg.Conversions, apiOpts...)
		if err != nil {
			logger.Warn("conversions client unavailable, conversions tools will not be registered", zap.Error(err))
		}
	} else {
		logger.Info("conversions credentials not set, conversions tools will not be registered")
	}

	var chatClient *concierge.Client
	provider, err := concierge.ParseProvider(cfg.Concierge.Provider)
	if err == nil {
		chatClient, err = concierge.NewClient(cfg.Concierge, apiOpts...)
	}
	if err != nil {
		logger.Warn("concierge client unavailable, concierge tools will not be registered", zap.Error(err))
	}

	// Build MCP server.
	mcpServer := server.NewMCPServer(
		"storefront-mcp",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	// Register all tools.
	var registrations []tools.Registration
	registrations = append(registrations, graphql.GraphQLTools(gqlClient, auditLogger)...)
	registrations = append(registrations, storefront.CatalogTools(catalog, cfg.Storefront.Concurrency, auditLogger)...)

	if convClient != nil {
		registrations = append(registrations, conversions.ConversionTools(convClient, conversions.ToolOptions{
			TestEventCode: cfg.Conversions.TestEventCode,
			FullGID:       cfg.Conversions.FullGID,
		}, conversionsConfirm, auditLogger)...)
	}
	if chatClient != nil {
		registrations = append(registrations, concierge.ChatTools(chatClient, provider, cfg.Concierge.UseRAG, auditLogger)...)
	}

	names := tools.RegisterAll(mcpServer, registrations)
	logger.Info("registered tools", zap.Strings("tools", names))

	// Build Streamable HTTP server and wrap with auth middleware.
	httpHandler := server.NewStreamableHTTPServer(mcpServer)
	authMiddleware := auth.NewAuthMiddleware(cfg.Server.AuthToken, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	if convClient != nil {
		mux.Handle("/conversions", conversions.RelayHandler(convClient, conversions.RelayOptions{
			TestEventCode:  cfg.Conversions.TestEventCode,
			AllowedOrigins: cfg.Conversions.AllowedOrigins,
		}, logger))
	}
	mux.Handle("/", authMiddleware(httpHandler))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("storefront-mcp listening",
			zap.String("addr", addr),
			zap.String("storefront", gqlClient.Endpoint()))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
}

// loadConfig attempts to read the config file from the path specified by
// STOREFRONT_MCP_CONFIG_PATH or the default /config/config.yaml. If the file
// cannot be read, DefaultConfig is returned together with the load error.
func loadConfig() (*config.Config, error) {
	path := os.Getenv("STOREFRONT_MCP_CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return config.DefaultConfig(), fmt.Errorf("load %q: %w", path, err)
	}
	return cfg, nil
}
