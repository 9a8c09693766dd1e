package tool

import "deskpilot/internal/browser"

// Desktop is everything the built-in tools need from the local machine.
type Desktop interface {
	ScriptRunner
	Messenger
	ContactBook
	Speaker
}

type BuiltinOptions struct {
	MaxResultChars int
	MessageCount   int
}

// RegisterBuiltins adds every desktop tool to reg. driver backs the Chrome
// tools; it is usually the desktop itself.
func RegisterBuiltins(reg *Registry, d Desktop, driver browser.Driver, opts BuiltinOptions) {
	reg.Register(NewAppleScriptTool(d))
	reg.Register(NewChromeOpenURLTool(driver))
	reg.Register(NewChromeLinksTool(driver, opts.MaxResultChars))
	reg.Register(NewChromeClickLinkTool(driver, opts.MaxResultChars))
	reg.Register(NewChromeReadPageTool(driver, opts.MaxResultChars))
	reg.Register(NewBrowseTool(driver, opts.MaxResultChars))
	reg.Register(NewReadMessagesTool(d, opts.MessageCount))
	reg.Register(NewSendMessageTool(d))
	reg.Register(NewDeviceContactTool(d))
	reg.Register(NewOnlineContactTool(driver))
	reg.Register(NewSayTool(d))
}
