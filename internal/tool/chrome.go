package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"deskpilot/internal/browser"
	"deskpilot/internal/script"
)

const (
	jsPageLinks = `Array.from(document.querySelectorAll("a")).map(x => x.innerText + ": " + x.href).join(" - ")`
	jsPageText  = `document.body.innerText`
)

// chromeTool is shared by the browser tools; each owns a driver and a result
// budget in characters.
type chromeTool struct {
	driver   browser.Driver
	maxChars int
}

func (c chromeTool) eval(ctx context.Context, js string) (string, error) {
	out, err := c.driver.Eval(ctx, js)
	if err != nil {
		return "", err
	}
	return script.Truncate(out, c.maxChars), nil
}

// --- chrome_open_url ---

type ChromeOpenURLTool struct{ chromeTool }

func NewChromeOpenURLTool(d browser.Driver) *ChromeOpenURLTool {
	return &ChromeOpenURLTool{chromeTool{driver: d}}
}

func (t *ChromeOpenURLTool) Name() string        { return "chrome_open_url" }
func (t *ChromeOpenURLTool) Description() string { return "Open a URL in Google Chrome." }
func (t *ChromeOpenURLTool) Parameters() map[string]any {
	return ToolParameters(map[string]Param{
		"url": {Type: "string", Description: "Absolute URL to open"},
	}, []string{"url"})
}

func (t *ChromeOpenURLTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	url, err := requireString(args, "url")
	if err != nil {
		return "", err
	}
	if err := t.driver.Open(ctx, url); err != nil {
		return "", err
	}
	return "opened " + url, nil
}

// --- chrome_get_the_links_on_the_page ---

type ChromeLinksTool struct{ chromeTool }

func NewChromeLinksTool(d browser.Driver, maxChars int) *ChromeLinksTool {
	return &ChromeLinksTool{chromeTool{driver: d, maxChars: maxChars}}
}

func (t *ChromeLinksTool) Name() string { return "chrome_get_the_links_on_the_page" }
func (t *ChromeLinksTool) Description() string {
	return "List the links on the current Chrome page as \"text: url\" pairs. Use this before clicking on anything."
}
func (t *ChromeLinksTool) Parameters() map[string]any {
	return ToolParameters(map[string]Param{}, nil)
}

func (t *ChromeLinksTool) Execute(ctx context.Context, _ map[string]any) (string, error) {
	return t.eval(ctx, jsPageLinks)
}

// --- chrome_click_on_link ---

type ChromeClickLinkTool struct{ chromeTool }

func NewChromeClickLinkTool(d browser.Driver, maxChars int) *ChromeClickLinkTool {
	return &ChromeClickLinkTool{chromeTool{driver: d, maxChars: maxChars}}
}

func (t *ChromeClickLinkTool) Name() string { return "chrome_click_on_link" }
func (t *ChromeClickLinkTool) Description() string {
	return "Navigate the current Chrome tab to a link. The link should be a URL from a previous observation."
}
func (t *ChromeClickLinkTool) Parameters() map[string]any {
	return ToolParameters(map[string]Param{
		"link": {Type: "string", Description: "URL to navigate to"},
	}, []string{"link"})
}

func (t *ChromeClickLinkTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	link, err := requireString(args, "link")
	if err != nil {
		return "", err
	}
	return t.eval(ctx, navigateJS(link))
}

// navigateJS embeds link as a JS string literal.
func navigateJS(link string) string {
	lit, _ := json.Marshal(link)
	return "window.location.href = " + string(lit)
}

// --- chrome_read_the_page ---

type ChromeReadPageTool struct{ chromeTool }

func NewChromeReadPageTool(d browser.Driver, maxChars int) *ChromeReadPageTool {
	return &ChromeReadPageTool{chromeTool{driver: d, maxChars: maxChars}}
}

func (t *ChromeReadPageTool) Name() string        { return "chrome_read_the_page" }
func (t *ChromeReadPageTool) Description() string { return "Read the visible text of the current Chrome page." }
func (t *ChromeReadPageTool) Parameters() map[string]any {
	return ToolParameters(map[string]Param{}, nil)
}

func (t *ChromeReadPageTool) Execute(ctx context.Context, _ map[string]any) (string, error) {
	return t.eval(ctx, jsPageText)
}

// --- browse_internet ---

type BrowseTool struct{ chromeTool }

func NewBrowseTool(d browser.Driver, maxChars int) *BrowseTool {
	return &BrowseTool{chromeTool{driver: d, maxChars: maxChars}}
}

func (t *BrowseTool) Name() string { return "browse_internet" }
func (t *BrowseTool) Description() string {
	return "Access the internet by running a JavaScript command in the active Chrome tab, e.g. to go to a website or search. " +
		"Use this first when information is needed from the internet."
}
func (t *BrowseTool) Parameters() map[string]any {
	return ToolParameters(map[string]Param{
		"javascript": {Type: "string", Description: "JavaScript to evaluate in the page"},
	}, []string{"javascript"})
}

func (t *BrowseTool) Payload(args map[string]any) string {
	return jsArg(args)
}

func (t *BrowseTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	js := jsArg(args)
	if js == "" {
		return "", errMissing("javascript")
	}
	return t.eval(ctx, js)
}

func jsArg(args map[string]any) string {
	if s := ArgsString(args, "javascript"); s != "" {
		return s
	}
	return ArgsString(args, "input")
}

func errMissing(key string) error {
	return fmt.Errorf("missing argument: %s", key)
}
