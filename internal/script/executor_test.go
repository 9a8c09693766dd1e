package script

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// shExecutor uses sh as a stand-in interpreter: it reads its program from
// stdin just like `osascript -`.
func shExecutor(t *testing.T, timeout time.Duration) *Executor {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	return NewExecutor(Config{Interpreter: "sh", Args: []string{"-s"}, Timeout: timeout, Logger: testLogger()})
}

func TestNewExecutor_Defaults(t *testing.T) {
	e := NewExecutor(Config{})
	if e.interpreter != "osascript" {
		t.Errorf("interpreter: got %q", e.interpreter)
	}
	if len(e.args) != 1 || e.args[0] != "-" {
		t.Errorf("args: got %v", e.args)
	}
	if e.timeout != 0 {
		t.Errorf("timeout: got %v", e.timeout)
	}
}

func TestExecute_ReturnsStdoutVerbatim(t *testing.T) {
	e := shExecutor(t, 5*time.Second)
	out, err := e.Execute(context.Background(), "printf 'hello'")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "hello" {
		t.Errorf("got %q, want %q", out, "hello")
	}
}

func TestExecute_NoTrimming(t *testing.T) {
	e := shExecutor(t, 5*time.Second)
	out, err := e.Execute(context.Background(), "printf '  a\\nb\\n\\n'")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "  a\nb\n\n" {
		t.Errorf("got %q", out)
	}
}

func TestExecute_UTF8RoundTrip(t *testing.T) {
	e := shExecutor(t, 5*time.Second)
	const text = "héllo wörld — 日本語 ✓"
	out, err := e.Execute(context.Background(), "cat <<'EOF'\n"+text+"\nEOF\n")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != text+"\n" {
		t.Errorf("got %q, want %q", out, text+"\n")
	}
}

func TestExecute_NonZeroExit_ReturnsStderr(t *testing.T) {
	e := shExecutor(t, 5*time.Second)
	_, err := e.Execute(context.Background(), "printf 'partial'; printf 'Error: something failed' >&2; exit 1")
	if err == nil {
		t.Fatal("expected error for exit 1")
	}
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected *ExecutionError, got %T: %v", err, err)
	}
	if execErr.Stderr != "Error: something failed" {
		t.Errorf("stderr: got %q", execErr.Stderr)
	}
	if execErr.ExitCode != 1 {
		t.Errorf("exit code: got %d", execErr.ExitCode)
	}
	if err.Error() != "Error: something failed" {
		t.Errorf("Error(): got %q", err.Error())
	}
}

func TestExecute_InterpreterMissing(t *testing.T) {
	e := NewExecutor(Config{Interpreter: "deskpilot-no-such-interpreter", Logger: testLogger()})
	_, err := e.Execute(context.Background(), "return 1")
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected *ExecutionError, got %T: %v", err, err)
	}
	if execErr.ExitCode != -1 {
		t.Errorf("exit code: got %d", execErr.ExitCode)
	}
	if execErr.Stderr == "" {
		t.Error("expected a payload describing the start failure")
	}
}

func TestExecute_Timeout(t *testing.T) {
	e := shExecutor(t, 100*time.Millisecond)
	start := time.Now()
	_, err := e.Execute(context.Background(), "sleep 5")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Errorf("timeout not enforced, took %v", time.Since(start))
	}
}

func TestExecute_Cancelled(t *testing.T) {
	e := shExecutor(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	_, err := e.Execute(ctx, "sleep 5")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExecute_NotCached(t *testing.T) {
	e := shExecutor(t, 5*time.Second)
	path := t.TempDir() + "/state"
	script := "if [ -f " + path + " ]; then printf second; else : > " + path + "; printf first; fi"

	first, err := e.Execute(context.Background(), script)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := e.Execute(context.Background(), script)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first != "first" || second != "second" {
		t.Errorf("got %q then %q", first, second)
	}
}

func TestExecute_Observer(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	var calls, failures atomic.Int32
	e := NewExecutor(Config{
		Interpreter: "sh",
		Args:        []string{"-s"},
		Logger:      testLogger(),
		Observer: func(d time.Duration, err error) {
			calls.Add(1)
			if err != nil {
				failures.Add(1)
			}
		},
	})
	_, _ = e.Execute(context.Background(), "true")
	_, _ = e.Execute(context.Background(), "exit 3")
	if calls.Load() != 2 || failures.Load() != 1 {
		t.Errorf("calls=%d failures=%d", calls.Load(), failures.Load())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 0, "hello"},
		{"hello", -1, "hello"},
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel"},
		{"日本語テキスト", 3, "日本語"},
		{"", 4, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestRunID(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-1")
	if got := RunID(ctx); got != "run-1" {
		t.Errorf("got %q", got)
	}
	a, b := RunID(context.Background()), RunID(context.Background())
	if a == "" || a == b {
		t.Errorf("expected distinct fresh IDs, got %q and %q", a, b)
	}
}
