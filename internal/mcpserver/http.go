package mcpserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// HTTPConfig controls the streamable HTTP transport.
type HTTPConfig struct {
	Addr      string
	AuthToken string
	// Metrics, when set, is mounted at MetricsPath beside the MCP endpoint.
	Metrics     http.Handler
	MetricsPath string
	Logger      *slog.Logger
}

// Handler builds the router: public health and metrics endpoints, and the
// MCP endpoint behind bearer auth on every other path.
func Handler(server *mcp.Server, cfg HTTPConfig) http.Handler {
	mcpHandler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(requireToken(cfg.AuthToken))
		r.Handle("/*", mcpHandler)
	})
	return r
}

// requireToken rejects requests without "Authorization: Bearer <token>".
func requireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="deskpilot"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ServeHTTP runs the HTTP transport until ctx is done.
func ServeHTTP(ctx context.Context, server *mcp.Server, cfg HTTPConfig) error {
	if cfg.AuthToken == "" {
		return errors.New("http transport requires server.authToken")
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           Handler(server, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	cfg.Logger.Info("listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// ServeStdio runs the server over stdin/stdout until the client disconnects
// or ctx is done.
func ServeStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}
