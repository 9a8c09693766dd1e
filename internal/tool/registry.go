package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"deskpilot/internal/domain"
	"deskpilot/internal/metrics"
	"deskpilot/internal/script"

	"github.com/google/uuid"
)

var (
	ErrUnknownTool = errors.New("unknown tool")
	ErrBlocked     = errors.New("blocked by security policy")
	ErrDenied      = errors.New("denied by user")
)

// payloader is implemented by tools that can describe exactly what they are
// about to submit (e.g. the script body) for policy checks and auditing.
type payloader interface {
	Payload(args map[string]any) string
}

// Limiter throttles tool calls.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Registry holds all available tools and executes them.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]domain.Tool
	disabled []string
	security domain.SecurityEngine
	limiter  Limiter
	metrics  *metrics.Collector
	logger   *slog.Logger
}

type RegistryConfig struct {
	Security domain.SecurityEngine // optional
	Limiter  Limiter               // optional
	Metrics  *metrics.Collector    // optional
	Disabled []string              // tool names that Register ignores
	Logger   *slog.Logger
}

func NewRegistry(cfg RegistryConfig) *Registry {
	return &Registry{
		tools:    make(map[string]domain.Tool),
		disabled: cfg.Disabled,
		security: cfg.Security,
		limiter:  cfg.Limiter,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
}

func (r *Registry) Register(t domain.Tool) {
	if slices.Contains(r.disabled, t.Name()) {
		r.logger.Debug("tool disabled by config", "name", t.Name())
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
	r.logger.Debug("registered tool", "name", t.Name())
}

func (r *Registry) Get(name string) domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Execute runs the named tool after the security check. Every outcome is
// audited when a security engine is configured.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	t := r.Get(name)
	if t == nil {
		return "", fmt.Errorf("%w: %s (available: %v)", ErrUnknownTool, name, r.Names())
	}

	var done func(string)
	if r.metrics != nil {
		done = r.metrics.ToolStarted(name)
	} else {
		done = func(string) {}
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			done("throttled")
			return "", fmt.Errorf("rate limit: %w", err)
		}
	}

	payload := describe(t, args)
	if err := r.authorize(ctx, name, payload); err != nil {
		if errors.Is(err, ErrBlocked) {
			done("blocked")
		} else {
			done("denied")
		}
		return "", err
	}

	runID := uuid.New().String()
	start := time.Now()
	out, err := t.Execute(script.WithRunID(ctx, runID), args)
	elapsed := time.Since(start)

	entry := domain.AuditEntry{
		RunID:    runID,
		ToolName: name,
		Payload:  payload,
		Duration: elapsed,
	}
	if err != nil {
		done("failed")
		entry.Action, entry.Result, entry.Details = "tool_error", "failed", err.Error()
		r.logger.Warn("tool failed", "tool", name, "run_id", runID, "duration", elapsed, "err", err)
	} else {
		done("ok")
		entry.Action, entry.Result = "tool_exec", "ok"
		entry.Details = fmt.Sprintf("%d chars", len([]rune(out)))
		r.logger.Info("tool executed", "tool", name, "run_id", runID, "duration", elapsed)
	}
	r.audit(ctx, entry)

	return out, err
}

func (r *Registry) authorize(ctx context.Context, name, payload string) error {
	if r.security == nil {
		return nil
	}
	action, err := r.security.Check(ctx, name, payload)
	if err != nil {
		return fmt.Errorf("security check: %w", err)
	}
	switch action {
	case domain.ActionBlock:
		return fmt.Errorf("%s: %w", name, ErrBlocked)
	case domain.ActionConfirm:
		ok, err := r.security.RequestConfirmation(ctx, name, payload)
		if err != nil {
			return fmt.Errorf("confirmation: %w", err)
		}
		if !ok {
			return fmt.Errorf("%s: %w", name, ErrDenied)
		}
	}
	return nil
}

func (r *Registry) audit(ctx context.Context, entry domain.AuditEntry) {
	if r.security == nil {
		return
	}
	// The tool already ran; a cancelled ctx must not lose its audit row.
	if err := r.security.LogAction(context.WithoutCancel(ctx), entry); err != nil {
		r.logger.Warn("audit write failed", "tool", entry.ToolName, "err", err)
	}
}

// GetDefinitions returns tool definitions sorted by name.
func (r *Registry) GetDefinitions() []domain.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]domain.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, domain.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// describe renders the payload checked by the security engine.
func describe(t domain.Tool, args map[string]any) string {
	if p, ok := t.(payloader); ok {
		return p.Payload(args)
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+ArgsString(args, k))
	}
	return strings.Join(lines, "\n")
}

// Param describes a single tool parameter.
type Param struct {
	Type        string
	Description string
}

// ToolParameters builds a JSON Schema "parameters" object for a tool.
func ToolParameters(properties map[string]Param, required []string) map[string]any {
	props := make(map[string]any)
	for name, p := range properties {
		props[name] = map[string]any{"type": p.Type, "description": p.Description}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func ArgsString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// ArgsInt reads an integer argument, accepting JSON numbers and numeric
// strings. def is returned when the key is absent.
func ArgsInt(args map[string]any, key string, def int) (int, error) {
	if args == nil {
		return def, nil
	}
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case string:
		if strings.TrimSpace(n) == "" {
			return def, nil
		}
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("argument %s: not a number: %q", key, n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("argument %s: unexpected type %T", key, v)
	}
}

// requireString returns the trimmed argument or a "missing argument" error.
func requireString(args map[string]any, key string) (string, error) {
	s := strings.TrimSpace(ArgsString(args, key))
	if s == "" {
		return "", errMissing(key)
	}
	return s, nil
}
