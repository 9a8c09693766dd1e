package script

import (
	"fmt"
	"strings"
)

// Statement is one AppleScript statement (possibly a block).
type Statement interface {
	render(b *strings.Builder, depth int)
}

// Quote renders s as an AppleScript string literal.
func Quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// Render produces the script text for stmts.
func Render(stmts ...Statement) string {
	var b strings.Builder
	for _, s := range stmts {
		s.render(&b, 0)
	}
	return b.String()
}

func line(b *strings.Builder, depth int, text string) {
	b.WriteString(strings.Repeat("\t", depth))
	b.WriteString(text)
	b.WriteByte('\n')
}

// Tell wraps Body in a `tell application` block. Target, when set, replaces
// the application target (e.g. "active tab of front window").
type Tell struct {
	App    string
	Target string
	Body   []Statement
}

func (t Tell) render(b *strings.Builder, depth int) {
	if t.Target != "" {
		line(b, depth, "tell "+t.Target)
	} else {
		line(b, depth, "tell application "+Quote(t.App))
	}
	for _, s := range t.Body {
		s.render(b, depth+1)
	}
	line(b, depth, "end tell")
}

type Activate struct{}

func (Activate) render(b *strings.Builder, depth int) { line(b, depth, "activate") }

type Delay struct{ Seconds float64 }

func (d Delay) render(b *strings.Builder, depth int) {
	line(b, depth, fmt.Sprintf("delay %g", d.Seconds))
}

type OpenLocation struct{ URL string }

func (o OpenLocation) render(b *strings.Builder, depth int) {
	line(b, depth, "open location "+Quote(o.URL))
}

// ExecuteJavaScript runs JS in the enclosing Chrome tab.
type ExecuteJavaScript struct{ JS string }

func (e ExecuteJavaScript) render(b *strings.Builder, depth int) {
	line(b, depth, "execute javascript "+Quote(e.JS))
}

// Keystroke sends text through System Events, optionally with modifiers
// such as "command down".
type Keystroke struct {
	Text      string
	Modifiers []string
}

func (k Keystroke) render(b *strings.Builder, depth int) {
	s := `tell application "System Events" to keystroke ` + Quote(k.Text)
	if len(k.Modifiers) > 0 {
		s += " using {" + strings.Join(k.Modifiers, ", ") + "}"
	}
	line(b, depth, s)
}

type Say struct{ Text string }

func (s Say) render(b *strings.Builder, depth int) { line(b, depth, "say "+Quote(s.Text)) }

// Set assigns an expression. Expr is emitted verbatim; build it with Quote
// for any caller-supplied value.
type Set struct {
	Var  string
	Expr string
}

func (s Set) render(b *strings.Builder, depth int) {
	line(b, depth, "set "+s.Var+" to "+s.Expr)
}

// Return emits `return Expr` verbatim.
type Return struct{ Expr string }

func (r Return) render(b *strings.Builder, depth int) { line(b, depth, "return "+r.Expr) }

// Raw is emitted as-is, line by line at the current depth.
type Raw struct{ Text string }

func (r Raw) render(b *strings.Builder, depth int) {
	for _, l := range strings.Split(strings.TrimRight(r.Text, "\n"), "\n") {
		line(b, depth, l)
	}
}

// Send delivers Message to the participant held in variable To (Messages).
type Send struct {
	Message string
	To      string
}

func (s Send) render(b *strings.Builder, depth int) {
	line(b, depth, "send "+Quote(s.Message)+" to "+s.To)
}
