// Package script runs scripts through an external interpreter that reads its
// program from standard input (osascript by default).
package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultInterpreter = "osascript"
	defaultArg         = "-"

	// waitDelay bounds how long pipes stay open after the interpreter is
	// killed, in case a grandchild inherited them.
	waitDelay = time.Second
)

// ErrTimeout is returned (wrapped) when the executor deadline expires before
// the interpreter exits.
var ErrTimeout = errors.New("script timed out")

type runIDKey struct{}

// WithRunID attaches the ID of the tool call a script belongs to, so executor
// logs line up with the audit row.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunID returns the ID set by WithRunID, or a fresh one when none is set.
func RunID(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.New().String()
}

// Runner executes a script and returns its decoded standard output.
type Runner interface {
	Execute(ctx context.Context, script string) (string, error)
}

// ExecutionError is the single failure kind of the executor. Stderr holds the
// decoded standard error text of the interpreter.
type ExecutionError struct {
	Stderr   string
	ExitCode int
}

func (e *ExecutionError) Error() string {
	return e.Stderr
}

// Observer is notified after every script run. Used for metrics.
type Observer func(d time.Duration, err error)

// Executor launches one interpreter process per call.
type Executor struct {
	interpreter string
	args        []string
	timeout     time.Duration
	observer    Observer
	logger      *slog.Logger
}

type Config struct {
	Interpreter string        // binary name, resolved via PATH
	Args        []string      // must make the interpreter read the program from stdin
	Timeout     time.Duration // 0 means no executor deadline; ctx still applies
	Observer    Observer
	Logger      *slog.Logger
}

func NewExecutor(cfg Config) *Executor {
	if cfg.Interpreter == "" {
		cfg.Interpreter = DefaultInterpreter
		if cfg.Args == nil {
			cfg.Args = []string{defaultArg}
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{
		interpreter: cfg.Interpreter,
		args:        cfg.Args,
		timeout:     cfg.Timeout,
		observer:    cfg.Observer,
		logger:      cfg.Logger,
	}
}

// Execute writes script to the interpreter's stdin, waits for it to exit and
// returns stdout verbatim. A nonzero exit yields *ExecutionError.
func (e *Executor) Execute(ctx context.Context, script string) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	runID := RunID(ctx)
	start := time.Now()

	cmd := exec.CommandContext(ctx, e.interpreter, e.args...)
	cmd.Stdin = strings.NewReader(script)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	elapsed := time.Since(start)

	err := e.classify(ctx, runErr, stderr.String())
	if e.observer != nil {
		e.observer(elapsed, err)
	}
	if err != nil {
		e.logger.Debug("script failed", "run_id", runID, "duration", elapsed, "err", err)
		return "", err
	}

	e.logger.Debug("script finished", "run_id", runID, "duration", elapsed, "bytes", stdout.Len())
	return stdout.String(), nil
}

func (e *Executor) classify(ctx context.Context, runErr error, stderr string) error {
	if runErr == nil {
		return nil
	}
	switch ctxErr := ctx.Err(); {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", e.interpreter, ErrTimeout)
	case ctxErr != nil:
		return fmt.Errorf("%s: %w", e.interpreter, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return &ExecutionError{Stderr: stderr, ExitCode: exitErr.ExitCode()}
	}
	// Interpreter missing or not executable.
	return &ExecutionError{Stderr: runErr.Error(), ExitCode: -1}
}

// Truncate cuts text to at most max runes. max <= 0 disables truncation.
func Truncate(text string, max int) string {
	if max <= 0 {
		return text
	}
	n := 0
	for i := range text {
		if n == max {
			return text[:i]
		}
		n++
	}
	return text
}
