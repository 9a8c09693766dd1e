package tool

import (
	"context"
	"strings"
)

// ScriptRunner submits raw AppleScript on behalf of a tool.
type ScriptRunner interface {
	RunAppleScript(ctx context.Context, app, body string) (string, error)
}

// AppleScriptTool hands an agent-authored script to the interpreter verbatim.
type AppleScriptTool struct {
	runner ScriptRunner
}

func NewAppleScriptTool(runner ScriptRunner) *AppleScriptTool {
	return &AppleScriptTool{runner: runner}
}

func (t *AppleScriptTool) Name() string { return "computer_applescript_action" }
func (t *AppleScriptTool) Description() string {
	return `Execute an action on the computer written as AppleScript.
Start by telling the target app to activate, and put "delay 0.5" between keystrokes.
Prefer clicking buttons over typing. Use the Calculator app for calculations.
Example:
tell application "Google Chrome"
	activate
	delay 0.5
	open location "https://www.google.com/search?q=Table+nearby"
end tell`
}

func (t *AppleScriptTool) Parameters() map[string]any {
	return ToolParameters(map[string]Param{
		"script": {Type: "string", Description: "Complete, valid AppleScript source"},
	}, []string{"script"})
}

// Payload is the script itself, so policy patterns match what actually runs.
func (t *AppleScriptTool) Payload(args map[string]any) string {
	return scriptArg(args)
}

func (t *AppleScriptTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	body := scriptArg(args)
	if strings.TrimSpace(body) == "" {
		return "", errMissing("script")
	}
	return t.runner.RunAppleScript(ctx, targetApp(body), body)
}

// scriptArg accepts "script" and the single-string "input" form.
func scriptArg(args map[string]any) string {
	if s := ArgsString(args, "script"); s != "" {
		return s
	}
	return ArgsString(args, "input")
}

// targetApp returns the application named by the first tell block, if any.
func targetApp(body string) string {
	const marker = `tell application "`
	i := strings.Index(body, marker)
	if i < 0 {
		return ""
	}
	rest := body[i+len(marker):]
	j := strings.IndexByte(rest, '"')
	if j <= 0 {
		return ""
	}
	return rest[:j]
}
