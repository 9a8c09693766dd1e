package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestObserveScript(t *testing.T) {
	c := NewCollector()
	c.ObserveScript(200*time.Millisecond, nil)
	c.ObserveScript(3*time.Second, errors.New("exit 1"))

	out := c.Render()
	for _, want := range []string{
		"deskpilot_script_duration_seconds_count 2",
		`deskpilot_script_duration_seconds_bucket{le="0.25"} 1`,
		`deskpilot_script_duration_seconds_bucket{le="5"} 2`,
		`deskpilot_script_duration_seconds_bucket{le="+Inf"} 2`,
		"deskpilot_script_failures_total 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestToolStarted(t *testing.T) {
	c := NewCollector()
	done := c.ToolStarted("say_text")
	if c.inFlight.Value() != 1 {
		t.Errorf("in flight: got %d", c.inFlight.Value())
	}
	done("ok")
	c.ToolStarted("say_text")("failed")
	c.ToolStarted("say_text")("ok")

	if c.inFlight.Value() != 0 {
		t.Errorf("in flight after done: got %d", c.inFlight.Value())
	}
	out := c.Render()
	if !strings.Contains(out, `deskpilot_tool_calls_total{tool="say_text",status="ok"} 2`) {
		t.Errorf("ok counter missing:\n%s", out)
	}
	if !strings.Contains(out, `deskpilot_tool_calls_total{tool="say_text",status="failed"} 1`) {
		t.Errorf("failed counter missing:\n%s", out)
	}
	if strings.Count(out, "# TYPE deskpilot_tool_calls_total counter") != 1 {
		t.Errorf("TYPE line should be written once:\n%s", out)
	}
}

func TestCounter_SameKeyReturnsSameCounter(t *testing.T) {
	c := NewCollector()
	a := c.Counter("x_total", "x", `a="1"`)
	b := c.Counter("x_total", "x", `a="1"`)
	if a != b {
		t.Error("expected the same counter for the same name and labels")
	}
}

func TestHandler(t *testing.T) {
	c := NewCollector()
	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type: %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "deskpilot_uptime_seconds") {
		t.Errorf("body:\n%s", rec.Body.String())
	}
}
