// Package security decides whether a tool call may drive the desktop.
package security

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"deskpilot/internal/config"
	"deskpilot/internal/domain"
)

// ConfirmFunc is a callback to request user confirmation.
// It sends the question and returns true if the user confirmed.
type ConfirmFunc func(ctx context.Context, question string) (bool, error)

// AuditLogger is the interface for writing audit entries.
type AuditLogger interface {
	LogAudit(ctx context.Context, entry domain.AuditEntry) error
}

// Engine matches tool payloads against blacklist/whitelist/confirm patterns.
type Engine struct {
	cfg         config.SecurityConfig
	confirmFn   ConfirmFunc
	auditLogger AuditLogger
	logger      *slog.Logger

	blacklistRe []*regexp.Regexp
	whitelistRe []*regexp.Regexp
	confirmRe   []*regexp.Regexp
}

func NewEngine(cfg config.SecurityConfig, confirmFn ConfirmFunc, auditLogger AuditLogger, logger *slog.Logger) (*Engine, error) {
	e := &Engine{
		cfg:         cfg,
		confirmFn:   confirmFn,
		auditLogger: auditLogger,
		logger:      logger,
	}

	var err error
	e.blacklistRe, err = compilePatterns(cfg.Blacklist)
	if err != nil {
		return nil, fmt.Errorf("invalid blacklist pattern: %w", err)
	}

	e.whitelistRe, err = compilePatterns(cfg.Whitelist)
	if err != nil {
		return nil, fmt.Errorf("invalid whitelist pattern: %w", err)
	}

	e.confirmRe, err = compilePatterns(cfg.ConfirmPatterns)
	if err != nil {
		return nil, fmt.Errorf("invalid confirm pattern: %w", err)
	}

	return e, nil
}

// Check classifies a call. Order: blacklist, whitelist, confirm tools,
// confirm patterns, default policy.
func (e *Engine) Check(ctx context.Context, toolName string, payload string) (domain.SecurityAction, error) {
	p := strings.TrimSpace(payload)

	for _, re := range e.blacklistRe {
		if re.MatchString(p) {
			e.logger.Warn("tool call BLOCKED by blacklist",
				"tool", toolName,
				"pattern", re.String(),
			)
			e.logAction(ctx, "command_blocked", toolName, p, "blocked", "blacklist match: "+re.String())
			return domain.ActionBlock, nil
		}
	}

	for _, re := range e.whitelistRe {
		if re.MatchString(p) {
			return domain.ActionAllow, nil
		}
	}

	if slices.Contains(e.cfg.ConfirmTools, toolName) {
		e.logger.Info("tool requires confirmation", "tool", toolName)
		return domain.ActionConfirm, nil
	}

	for _, re := range e.confirmRe {
		if re.MatchString(p) {
			e.logger.Info("tool call requires confirmation", "tool", toolName, "pattern", re.String())
			return domain.ActionConfirm, nil
		}
	}

	switch e.cfg.DefaultPolicy {
	case "allow":
		return domain.ActionAllow, nil
	case "deny":
		e.logAction(ctx, "command_blocked", toolName, p, "blocked", "default policy: deny")
		return domain.ActionBlock, nil
	default: // "ask"
		return domain.ActionConfirm, nil
	}
}

func (e *Engine) RequestConfirmation(ctx context.Context, toolName string, payload string) (bool, error) {
	if e.confirmFn == nil {
		e.logAction(ctx, "confirm_no", toolName, payload, "denied", "no confirmation handler")
		return false, nil
	}

	question := fmt.Sprintf("Security confirmation\n\nTool: %s\nPayload:\n%s\n\nAllow this action? (yes/no)", toolName, payload)
	confirmed, err := e.confirmFn(ctx, question)
	if err != nil {
		e.logAction(ctx, "confirm_no", toolName, payload, "denied", "confirmation error: "+err.Error())
		return false, err
	}

	if confirmed {
		e.logAction(ctx, "confirm_yes", toolName, payload, "confirmed", "user confirmed")
	} else {
		e.logAction(ctx, "confirm_no", toolName, payload, "denied", "user denied")
	}
	return confirmed, nil
}

func (e *Engine) LogAction(ctx context.Context, entry domain.AuditEntry) error {
	if !e.cfg.AuditLog || e.auditLogger == nil {
		return nil
	}
	return e.auditLogger.LogAudit(ctx, entry)
}

func (e *Engine) logAction(ctx context.Context, action, toolName, payload, result, details string) {
	err := e.LogAction(ctx, domain.AuditEntry{
		Action:   action,
		ToolName: toolName,
		Payload:  payload,
		Result:   result,
		Details:  details,
	})
	if err != nil {
		e.logger.Warn("audit write failed", "action", action, "err", err)
	}
}

// Simple strings are converted to case-insensitive substring patterns.
func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		var re *regexp.Regexp
		var err error
		if isRegex(p) {
			re, err = regexp.Compile(p)
		} else {
			re, err = regexp.Compile(`(?i)` + regexp.QuoteMeta(p))
		}
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func isRegex(s string) bool {
	for _, c := range s {
		switch c {
		case '(', ')', '[', ']', '{', '}', '|', '^', '$', '.', '*', '+', '?', '\\':
			return true
		}
	}
	return false
}
