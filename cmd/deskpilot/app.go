package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"deskpilot/internal/browser"
	"deskpilot/internal/config"
	"deskpilot/internal/desktop"
	"deskpilot/internal/metrics"
	"deskpilot/internal/script"
	"deskpilot/internal/security"
	"deskpilot/internal/store"
	"deskpilot/internal/tool"
)

// app is the wired process: every tool call flows registry -> security ->
// desktop -> executor, with audit rows and metrics on the way.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Collector
	store    *store.SQLiteStore // nil when audit is disabled
	registry *tool.Registry
	closers  []func()
}

func newApp(ctx context.Context, cfg *config.Config, confirm security.ConfirmFunc) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.NewCollector()}

	var audit security.AuditLogger
	if cfg.Audit.Enabled {
		st, err := store.NewSQLiteStore(cfg.Audit.DBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("audit store: %w", err)
		}
		a.store = st
		a.closers = append(a.closers, func() { st.Close() })
		audit = st

		if cfg.Audit.RetentionDays > 0 {
			retention := time.Duration(cfg.Audit.RetentionDays) * 24 * time.Hour
			if _, err := st.Prune(ctx, retention); err != nil {
				logger.Warn("audit prune failed", "err", err)
			}
		}
	}

	secEngine, err := security.NewEngine(cfg.Security, confirm, audit, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("security engine: %w", err)
	}

	executor := script.NewExecutor(script.Config{
		Interpreter: cfg.Executor.Interpreter,
		Args:        cfg.Executor.Args,
		Timeout:     cfg.Executor.Timeout(),
		Observer:    a.metrics.ObserveScript,
		Logger:      logger,
	})
	desk := desktop.New(executor, logger)

	var driver browser.Driver = desk
	if cfg.Tools.Browser.Backend == "chromedp" {
		bridge := browser.NewBridge(browser.BridgeConfig{
			ProfileDir: cfg.Tools.Browser.ProfileDir,
			Headless:   cfg.Tools.Browser.Headless,
			Logger:     logger,
		})
		a.closers = append(a.closers, bridge.Close)
		driver = bridge
	}

	a.registry = tool.NewRegistry(tool.RegistryConfig{
		Security: secEngine,
		Limiter:  security.NewRateLimiter(cfg.Security.RateLimit.Burst, cfg.Security.RateLimit.PerMinute),
		Metrics:  a.metrics,
		Disabled: cfg.Tools.Disabled,
		Logger:   logger,
	})
	tool.RegisterBuiltins(a.registry, desk, driver, tool.BuiltinOptions{
		MaxResultChars: cfg.Tools.MaxResultChars,
		MessageCount:   cfg.Tools.MessageCount,
	})
	logger.Debug("tools registered", "count", len(a.registry.Names()), "browser", cfg.Tools.Browser.Backend)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// loadConfig reads the config file, falling back to defaults when it does
// not exist yet.
func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err == nil {
		return cfg, nil
	}
	if _, statErr := os.Stat(config.ExpandPath(cfgPath)); os.IsNotExist(statErr) {
		logger.Debug("config not found, using defaults", "path", cfgPath)
		cfg = config.Defaults()
		cfg.Audit.DBPath = config.ExpandPath(cfg.Audit.DBPath)
		return cfg, nil
	}
	return nil, fmt.Errorf("load config: %w", err)
}

// newLogger builds the process logger from config. Logs always go to stderr
// because stdout may carry the MCP stdio transport.
func newLogger(cfg config.LogConfig) (*slog.Logger, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	closeFn := func() {}
	if cfg.File != "" {
		path := config.ExpandPath(cfg.File)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closeFn = func() { f.Close() }
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closeFn, nil
}

// parseToolArgs turns "key=value" pairs into tool arguments. A non-empty
// jsonArgs object is merged on top, so its keys win.
func parseToolArgs(pairs []string, jsonArgs string) (map[string]any, error) {
	args := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("argument %q: expected key=value", p)
		}
		args[strings.TrimSpace(k)] = v
	}
	if strings.TrimSpace(jsonArgs) == "" {
		return args, nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(jsonArgs), &obj); err != nil {
		return nil, fmt.Errorf("--json: expected a JSON object: %w", err)
	}
	for k, v := range obj {
		args[k] = v
	}
	return args, nil
}
