package desktop

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"deskpilot/internal/script"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// recordingRunner captures submitted scripts and replies with a canned result.
type recordingRunner struct {
	mu      sync.Mutex
	scripts []string
	out     string
	err     error
}

func (r *recordingRunner) Execute(ctx context.Context, text string) (string, error) {
	r.mu.Lock()
	r.scripts = append(r.scripts, text)
	r.mu.Unlock()
	return r.out, r.err
}

func (r *recordingRunner) last(t *testing.T) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.scripts) == 0 {
		t.Fatal("no script submitted")
	}
	return r.scripts[len(r.scripts)-1]
}

func TestOpenURL(t *testing.T) {
	r := &recordingRunner{}
	d := New(r, testLogger())
	if _, err := d.OpenURL(context.Background(), "https://gmail.com"); err != nil {
		t.Fatalf("OpenURL: %v", err)
	}
	got := r.last(t)
	want := "tell application \"Google Chrome\"\n\topen location \"https://gmail.com\"\nend tell\n"
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestChromeJavaScript_EscapesQuotes(t *testing.T) {
	r := &recordingRunner{out: "ok"}
	d := New(r, testLogger())
	out, err := d.ChromeJavaScript(context.Background(), `window.location.href = "https://x.y"`)
	if err != nil {
		t.Fatalf("ChromeJavaScript: %v", err)
	}
	if out != "ok" {
		t.Errorf("out: got %q", out)
	}
	got := r.last(t)
	if !strings.Contains(got, `execute javascript "window.location.href = \"https://x.y\""`) {
		t.Errorf("quotes not escaped:\n%s", got)
	}
	if !strings.Contains(got, "tell active tab of front window") {
		t.Errorf("missing tab target:\n%s", got)
	}
}

func TestChromeJavaScript_RejectsOpen(t *testing.T) {
	r := &recordingRunner{}
	d := New(r, testLogger())
	_, err := d.ChromeJavaScript(context.Background(), "open https://example.com")
	if !errors.Is(err, ErrNotJavaScript) {
		t.Fatalf("expected ErrNotJavaScript, got %v", err)
	}
	if len(r.scripts) != 0 {
		t.Error("no script should be submitted")
	}
}

func TestReadMessages(t *testing.T) {
	r := &recordingRunner{}
	d := New(r, testLogger())
	if _, err := d.ReadMessages(context.Background(), "Alice", 5); err != nil {
		t.Fatalf("ReadMessages: %v", err)
	}
	got := r.last(t)
	for _, want := range []string{
		`buddy "Alice" of service id targetService`,
		"last 5 of theMessages",
		"return theTexts",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}

	if _, err := d.ReadMessages(context.Background(), "Alice", 0); err == nil {
		t.Error("expected error for zero count")
	}
}

func TestSendMessage_QuotesUserInput(t *testing.T) {
	r := &recordingRunner{}
	d := New(r, testLogger())
	if _, err := d.SendMessage(context.Background(), `Bob "B"`, "see you at 5, ok?\nbye"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	got := r.last(t)
	if !strings.Contains(got, `participant "Bob \"B\"" of account id targetService`) {
		t.Errorf("contact not quoted:\n%s", got)
	}
	if !strings.Contains(got, "send \"see you at 5, ok?\nbye\" to theBuddy") {
		t.Errorf("message altered:\n%s", got)
	}
}

func TestLookupContact(t *testing.T) {
	r := &recordingRunner{out: "555-1234, bob@example.com\n"}
	d := New(r, testLogger())
	out, err := d.LookupContact(context.Background(), "Bob")
	if err != nil {
		t.Fatalf("LookupContact: %v", err)
	}
	if out != "555-1234, bob@example.com\n" {
		t.Errorf("out: got %q", out)
	}
	if !strings.Contains(r.last(t), `person "Bob"`) {
		t.Errorf("script:\n%s", r.last(t))
	}
}

func TestRun_PropagatesExecutionError(t *testing.T) {
	r := &recordingRunner{err: &script.ExecutionError{Stderr: "Error: something failed", ExitCode: 1}}
	d := New(r, testLogger())
	_, err := d.Say(context.Background(), "hi")
	var execErr *script.ExecutionError
	if !errors.As(err, &execErr) || execErr.Stderr != "Error: something failed" {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
}

// slowRunner tracks how many scripts run at the same time.
type slowRunner struct {
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (s *slowRunner) Execute(ctx context.Context, text string) (string, error) {
	n := s.active.Add(1)
	for {
		m := s.maxSeen.Load()
		if n <= m || s.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(50 * time.Millisecond)
	s.active.Add(-1)
	return "", nil
}

func TestSameApplication_Serialized(t *testing.T) {
	r := &slowRunner{}
	d := New(r, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = d.RunAppleScript(context.Background(), "Notes", "activate")
		}()
	}
	wg.Wait()

	if got := r.maxSeen.Load(); got != 1 {
		t.Errorf("expected scripts for one app to be serialized, saw %d concurrent", got)
	}
}

func TestDifferentApplications_Concurrent(t *testing.T) {
	r := &slowRunner{}
	d := New(r, testLogger())

	var wg sync.WaitGroup
	for _, app := range []string{"Notes", "Mail", "Safari", "Finder"} {
		wg.Add(1)
		go func(app string) {
			defer wg.Done()
			_, _ = d.RunAppleScript(context.Background(), app, "activate")
		}(app)
	}
	wg.Wait()

	if got := r.maxSeen.Load(); got < 2 {
		t.Errorf("expected concurrent scripts across apps, max concurrency %d", got)
	}
}

// blockingRunner holds its caller until release is closed.
type blockingRunner struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingRunner) Execute(ctx context.Context, text string) (string, error) {
	b.started <- struct{}{}
	<-b.release
	return "", nil
}

func TestSameApplication_WaitHonoursContext(t *testing.T) {
	r := &blockingRunner{started: make(chan struct{}, 1), release: make(chan struct{})}
	d := New(r, testLogger())
	defer close(r.release)

	go func() { _, _ = d.OpenURL(context.Background(), "https://a.example") }()
	<-r.started

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := d.OpenURL(ctx, "https://b.example")
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OpenURL kept waiting for the Chrome lock after its deadline")
	}
}

func TestLockReleasedAfterRun(t *testing.T) {
	r := &recordingRunner{}
	d := New(r, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 3; i++ {
		if _, err := d.RunAppleScript(ctx, "Notes", "activate"); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
}
