package store

import (
	"context"
	"testing"
	"time"

	"deskpilot/internal/domain"
)

func TestParseSchedule(t *testing.T) {
	for _, spec := range []string{"0 3 * * *", "@daily", "*/15 * * * *"} {
		if _, err := ParseSchedule(spec); err != nil {
			t.Errorf("%q: %v", spec, err)
		}
	}
	for _, spec := range []string{"", "every day", "0 0 3 * * *"} {
		if _, err := ParseSchedule(spec); err == nil {
			t.Errorf("%q: expected error", spec)
		}
	}
}

func TestStartPruner_InvalidSchedule(t *testing.T) {
	s := newTestStore(t)
	if _, err := StartPruner(s, "nonsense", time.Hour, testLogger()); err == nil {
		t.Fatal("expected error")
	}
}

func TestPruner_Run(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	old := time.Now().UTC().Add(-72 * time.Hour)
	if err := s.LogAudit(ctx, domain.AuditEntry{Action: "tool_exec", ToolName: "old", CreatedAt: old}); err != nil {
		t.Fatal(err)
	}

	p, err := StartPruner(s, "@yearly", 24*time.Hour, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Stop()

	p.run(ctx)
	left, _ := s.Recent(ctx, "", 10)
	if len(left) != 0 {
		t.Errorf("expected expired row pruned, got %d", len(left))
	}
}
