// ABOUTME: Gateway orchestrator that runs the MCP HTTP server lifecycle
// ABOUTME: Wires config, tool registry, and fallback credentials into one listener

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/monarch-gateway/internal/auth"
	"github.com/2389/monarch-gateway/internal/config"
	"github.com/2389/monarch-gateway/internal/tools"
)

// Gateway runs the monarch-gateway HTTP server.
// It owns the listener, the MCP endpoint, and the health routes.
type Gateway struct {
	config     *config.Config
	registry   *tools.Registry
	mcp        *mcpServer
	httpServer *http.Server
	logger     *slog.Logger

	// serverID identifies this gateway instance
	serverID string
}

// New creates a gateway from the given configuration. The returned gateway
// is inert until Run is called.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var fallback *auth.Credentials
	if cfg.Credentials.Email != "" && cfg.Credentials.Password != "" {
		fallback = &auth.Credentials{
			Email:     cfg.Credentials.Email,
			Password:  cfg.Credentials.Password,
			MFASecret: cfg.Credentials.MFASecret,
		}
	}

	if cfg.Auth.GatewayKey == "" {
		logger.Warn("auth.gateway_key not set - accepting unauthenticated callers")
	}
	if fallback == nil {
		logger.Info("no fallback credentials configured - callers must supply their own")
	}

	g := &Gateway{
		config:   cfg,
		registry: tools.NewRegistry(),
		logger:   logger,
		serverID: generateServerID(),
	}

	g.mcp = &mcpServer{
		cfg:      cfg,
		registry: g.registry,
		fallback: fallback,
		logger:   logger.With("component", "mcp"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", g.handleRoot)
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/mcp", g.mcp.handleMCP)

	g.httpServer = &http.Server{
		Handler:           corsMiddleware(cfg.Auth.AllowedOrigin, mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// setupListener binds the HTTP listener.
func (g *Gateway) setupListener() (net.Listener, error) {
	g.logger.Info("starting gateway",
		"http_addr", g.config.Server.HTTPAddr,
		"upstream", g.config.Upstream.BaseURL,
		"server_id", g.serverID,
	)

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// startServer starts the HTTP server in a goroutine, returning an error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or a server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts the gateway server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the
// server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener()
	if err != nil {
		return err
	}

	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is
// already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server, waiting for in-flight requests up to the
// context deadline.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	if err := g.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}
	return nil
}

// handleRoot answers liveness probes on the bare root path.
func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintln(w, "monarch-gateway: MCP endpoint at /mcp")
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// generateServerID creates a unique identifier for this gateway instance.
func generateServerID() string {
	return fmt.Sprintf("monarch-gateway-%d", time.Now().UnixNano()%1000000)
}
