// ABOUTME: Gateway orchestrator that wires the store, providers, and MCP endpoint into one HTTP server
// ABOUTME: Manages rate limiting, metrics, health endpoints, and the serve/shutdown lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/polydev-ai/polydev-mcp/internal/auth"
	"github.com/polydev-ai/polydev-mcp/internal/config"
	"github.com/polydev-ai/polydev-mcp/internal/mcp"
	"github.com/polydev-ai/polydev-mcp/internal/metrics"
	"github.com/polydev-ai/polydev-mcp/internal/perspectives"
	"github.com/polydev-ai/polydev-mcp/internal/providers"
	"github.com/polydev-ai/polydev-mcp/internal/ratelimit"
	"github.com/polydev-ai/polydev-mcp/internal/store"
)

// DBPathEnvVar overrides database.path when set.
const DBPathEnvVar = "POLYDEV_DB_PATH"

const readyTimeout = 2 * time.Second

// Version is reported in initialize responses. The binary overrides it at startup.
var Version = "dev"

// Gateway owns every long-lived component of the MCP server.
type Gateway struct {
	config     *config.Config
	store      store.Store
	aggregator *perspectives.Aggregator
	mcpServer  *mcp.Server
	metrics    *metrics.Metrics
	limiter    *ratelimit.Limiter
	httpServer *http.Server
	logger     *slog.Logger
}

// deps lets tests substitute the store and the provider invoker.
type deps struct {
	store   store.Store
	invoker providers.Invoker
}

// initStore opens the SQLite store, honouring the POLYDEV_DB_PATH override.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv(DBPathEnvVar); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// providerList converts configured providers into router entries.
func providerList(cfg *config.Config) []providers.Provider {
	out := make([]providers.Provider, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		out = append(out, providers.Provider{
			Name:        p.Name,
			DisplayName: p.DisplayName,
			BaseURL:     p.BaseURL,
			APIKey:      p.APIKey,
			Models:      p.Models,
		})
	}
	return out
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	gw, err := newGateway(cfg, logger, deps{store: s})
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return gw, nil
}

func newGateway(cfg *config.Config, logger *slog.Logger, d deps) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if d.store == nil {
		return nil, errors.New("store is required")
	}

	gw := &Gateway{
		config: cfg,
		store:  d.store,
		logger: logger.With("component", "gateway"),
	}

	router, err := providers.NewRouter(providerList(cfg))
	if err != nil {
		return nil, fmt.Errorf("building provider router: %w", err)
	}

	invoker := d.invoker
	if invoker == nil {
		if len(cfg.Providers) == 0 {
			gw.logger.Warn("no providers configured; every get_perspectives model will fail")
		}
		httpInvoker, err := providers.NewHTTPInvoker(providers.HTTPConfig{
			Router: router,
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating provider invoker: %w", err)
		}
		invoker = httpInvoker
	}

	if cfg.Metrics.Enabled {
		gw.metrics = metrics.New(true, router.Names()...)
	}

	authenticator, err := auth.NewAuthenticator(auth.Config{
		Tokens: d.store,
		Logger: logger.With("component", "auth"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating authenticator: %w", err)
	}

	aggCfg := perspectives.Config{
		Invoker:            invoker,
		Router:             router,
		Preferences:        d.store,
		Usage:              d.store,
		Logger:             logger,
		ProviderTimeout:    cfg.Perspectives.ProviderTimeout,
		MaxConcurrency:     cfg.Perspectives.MaxConcurrency,
		PreferenceCacheTTL: cfg.Perspectives.PreferenceCacheTTL,
		DefaultModels:      cfg.Perspectives.DefaultModels,
	}
	if gw.metrics != nil {
		aggCfg.Recorder = gw.metrics
	}
	gw.aggregator, err = perspectives.New(aggCfg)
	if err != nil {
		return nil, fmt.Errorf("creating perspective aggregator: %w", err)
	}

	tools, err := mcp.DefaultTools(gw.aggregator.Handle)
	if err != nil {
		gw.aggregator.Close()
		return nil, fmt.Errorf("building tool registry: %w", err)
	}

	mcpLogger := logger.With("component", "mcp")
	var observer mcp.Observer = mcp.NewLogObserver(mcpLogger)
	if gw.metrics != nil {
		observer = mcp.Observers(observer, gw.metrics)
	}
	gw.mcpServer, err = mcp.NewServer(mcp.Config{
		Authenticator: authenticator,
		Tools:         tools,
		Observer:      observer,
		Logger:        mcpLogger,
		Version:       Version,
		PublicURL:     cfg.Server.PublicURL,
	})
	if err != nil {
		gw.aggregator.Close()
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}

	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/health/ready", gw.handleReady)

	mcpMux := http.NewServeMux()
	gw.mcpServer.RegisterRoutes(mcpMux)
	var mcpHandler http.Handler = mcpMux
	if cfg.RateLimit.RequestsPerSecond > 0 {
		rlCfg := ratelimit.Config{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			Logger:            logger.With("component", "ratelimit"),
		}
		if gw.metrics != nil {
			rlCfg.OnReject = gw.metrics.RateLimited
		}
		gw.limiter = ratelimit.New(rlCfg)
		mcpHandler = gw.limiter.Middleware(mcpMux)
	}
	mux.Handle("/mcp", mcpHandler)
	mux.Handle("/api/mcp", mcpHandler)

	if gw.metrics != nil {
		mux.Handle(cfg.Metrics.Path, gw.metrics.Handler())
		gw.logger.Info("metrics endpoint enabled", "path", cfg.Metrics.Path)
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Handler returns the root HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Aggregator exposes the perspective aggregator, e.g. for preference cache invalidation.
func (g *Gateway) Aggregator() *perspectives.Aggregator {
	return g.aggregator
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return g.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln until ctx is canceled.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops the HTTP server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.limiter != nil {
		g.limiter.Close()
	}
	g.aggregator.Close()
	errs = appendCloseError(errs, "store close", g.store.Close())

	return errors.Join(errs...)
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the database answers a ping.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := g.store.Ping(ctx); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("database unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d providers)", len(g.config.Providers))
}
