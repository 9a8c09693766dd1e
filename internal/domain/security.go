package domain

import (
	"context"
	"time"
)

type SecurityAction string

const (
	ActionAllow   SecurityAction = "allow"
	ActionBlock   SecurityAction = "block"
	ActionConfirm SecurityAction = "confirm"
)

// SecurityEngine evaluates a tool call against blacklist/whitelist/confirm policies.
type SecurityEngine interface {
	Check(ctx context.Context, toolName string, payload string) (SecurityAction, error)
	RequestConfirmation(ctx context.Context, toolName string, payload string) (bool, error)
	LogAction(ctx context.Context, entry AuditEntry) error
}

type AuditEntry struct {
	ID        int64
	RunID     string
	Action    string // tool_exec | tool_error | command_blocked | confirm_yes | confirm_no
	ToolName  string
	Payload   string
	Result    string // allowed | blocked | confirmed | denied | ok | failed
	Details   string
	Duration  time.Duration
	CreatedAt time.Time
}
