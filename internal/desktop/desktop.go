// Package desktop is the handle tools use to act on the local desktop. Every
// operation goes through it so that scripts targeting the same application
// are serialized and tests can substitute the script runner.
package desktop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"deskpilot/internal/script"
)

const (
	appChrome   = "Google Chrome"
	appMessages = "Messages"
	appContacts = "Contacts"
)

// ErrNotJavaScript is returned when Chrome JS input looks like an AppleScript
// command instead.
var ErrNotJavaScript = errors.New("invalid command, not javascript")

// Desktop serializes scripts per target application.
type Desktop struct {
	runner script.Runner
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]chan struct{}
}

func New(runner script.Runner, logger *slog.Logger) *Desktop {
	return &Desktop{
		runner: runner,
		logger: logger,
		locks:  make(map[string]chan struct{}),
	}
}

// appLock returns the one-slot semaphore for app.
func (d *Desktop) appLock(app string) chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.locks[app]
	if !ok {
		l = make(chan struct{}, 1)
		d.locks[app] = l
	}
	return l
}

// run executes text while holding the lock for app. An empty app takes no lock.
// Waiting for the lock ends when ctx does.
func (d *Desktop) run(ctx context.Context, app, text string) (string, error) {
	if app != "" {
		l := d.appLock(app)
		select {
		case l <- struct{}{}:
		case <-ctx.Done():
			return "", fmt.Errorf("waiting for %s: %w", app, ctx.Err())
		}
		defer func() { <-l }()
	}
	d.logger.Debug("running script", "app", app, "bytes", len(text))
	return d.runner.Execute(ctx, text)
}

// RunAppleScript submits body verbatim. app names the application it drives,
// if known, for serialization.
func (d *Desktop) RunAppleScript(ctx context.Context, app, body string) (string, error) {
	return d.run(ctx, app, body)
}

func (d *Desktop) OpenURL(ctx context.Context, url string) (string, error) {
	text := script.Render(script.Tell{App: appChrome, Body: []script.Statement{
		script.OpenLocation{URL: url},
	}})
	return d.run(ctx, appChrome, text)
}

// ChromeJavaScript evaluates js in the active tab of Chrome's front window.
func (d *Desktop) ChromeJavaScript(ctx context.Context, js string) (string, error) {
	if strings.HasPrefix(js, "open ") {
		return "", ErrNotJavaScript
	}
	text := script.Render(script.Tell{App: appChrome, Body: []script.Statement{
		script.Tell{Target: "active tab of front window", Body: []script.Statement{
			script.ExecuteJavaScript{JS: js},
		}},
	}})
	return d.run(ctx, appChrome, text)
}

// Open and Eval let the desktop Chrome act as a browser driver.
func (d *Desktop) Open(ctx context.Context, url string) error {
	_, err := d.OpenURL(ctx, url)
	return err
}

func (d *Desktop) Eval(ctx context.Context, js string) (string, error) {
	return d.ChromeJavaScript(ctx, js)
}

// ReadMessages returns the last count iMessages exchanged with contact, one
// "sender: content" line each.
func (d *Desktop) ReadMessages(ctx context.Context, contact string, count int) (string, error) {
	if count <= 0 {
		return "", fmt.Errorf("message count must be positive, got %d", count)
	}
	text := script.Render(script.Tell{App: appMessages, Body: []script.Statement{
		script.Activate{},
		script.Set{Var: "targetService", Expr: "id of 1st account whose service type = iMessage"},
		// targetService holds an account id, so it must be addressed by id.
		script.Set{Var: "theBuddy", Expr: "buddy " + script.Quote(contact) + " of service id targetService"},
		script.Set{Var: "theMessages", Expr: "messages of theBuddy"},
		script.Set{Var: "theMessages", Expr: "last " + strconv.Itoa(count) + " of theMessages"},
		script.Set{Var: "theTexts", Expr: `""`},
		script.Raw{Text: "repeat with aMessage in theMessages\n" +
			"\tset theTexts to theTexts & sender of aMessage & \": \" & content of aMessage & linefeed\n" +
			"end repeat"},
		script.Return{Expr: "theTexts"},
	}})
	return d.run(ctx, appMessages, text)
}

func (d *Desktop) SendMessage(ctx context.Context, contact, message string) (string, error) {
	text := script.Render(script.Tell{App: appMessages, Body: []script.Statement{
		script.Activate{},
		script.Set{Var: "targetService", Expr: "id of 1st account whose service type = iMessage"},
		script.Set{Var: "theBuddy", Expr: "participant " + script.Quote(contact) + " of account id targetService"},
		script.Send{Message: message, To: "theBuddy"},
	}})
	return d.run(ctx, appMessages, text)
}

// LookupContact returns the phone numbers and emails of a person in Contacts.
func (d *Desktop) LookupContact(ctx context.Context, name string) (string, error) {
	text := script.Render(script.Tell{App: appContacts, Body: []script.Statement{
		script.Activate{},
		script.Set{Var: "thePerson", Expr: "person " + script.Quote(name)},
		script.Set{Var: "thePhones", Expr: "value of phones of thePerson"},
		script.Set{Var: "theEmails", Expr: "value of emails of thePerson"},
		script.Return{Expr: "thePhones & theEmails"},
	}})
	return d.run(ctx, appContacts, text)
}

func (d *Desktop) Say(ctx context.Context, text string) (string, error) {
	return d.run(ctx, "", script.Render(script.Say{Text: text}))
}
