// Package browser drives Chrome over the DevTools protocol as an alternative
// to scripting the desktop Chrome application.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/chromedp/chromedp"
)

// Driver opens pages and evaluates JavaScript in the current page.
type Driver interface {
	Open(ctx context.Context, url string) error
	Eval(ctx context.Context, js string) (string, error)
}

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Bridge keeps a single Chrome tab alive across calls so that "the current
// page" means the same thing it does for desktop Chrome.
type Bridge struct {
	profileDir string
	headless   bool
	logger     *slog.Logger

	mu     sync.Mutex
	tabCtx context.Context
	cancel context.CancelFunc
}

type BridgeConfig struct {
	ProfileDir string // Chrome user data directory (persists cookies/sessions)
	Headless   bool
	Logger     *slog.Logger
}

func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.ProfileDir == "" {
		home, _ := os.UserHomeDir()
		cfg.ProfileDir = filepath.Join(home, ".deskpilot", "chrome-profile")
	}
	return &Bridge{
		profileDir: cfg.ProfileDir,
		headless:   cfg.Headless,
		logger:     cfg.Logger,
	}
}

func (b *Bridge) allocatorOptions(headless bool) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(b.profileDir),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
		chromedp.UserAgent(userAgent),
	)
	if headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	return opts
}

// tab returns the shared tab context, starting Chrome on first use.
func (b *Bridge) tab() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tabCtx != nil && b.tabCtx.Err() == nil {
		return b.tabCtx, nil
	}
	if err := os.MkdirAll(b.profileDir, 0o755); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), b.allocatorOptions(b.headless)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	b.tabCtx = tabCtx
	b.cancel = func() {
		tabCancel()
		allocCancel()
	}
	b.logger.Info("chrome started", "profile", b.profileDir, "headless", b.headless)
	return tabCtx, nil
}

// run executes actions on the shared tab, bounded by ctx.
func (b *Bridge) run(ctx context.Context, actions ...chromedp.Action) error {
	tabCtx, err := b.tab()
	if err != nil {
		return err
	}
	// The tab outlives ctx; cancel only this call's actions when ctx ends.
	runCtx, cancel := context.WithCancel(tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (b *Bridge) Open(ctx context.Context, url string) error {
	if err := b.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Eval evaluates js in the current page. String results are returned as is;
// anything else is JSON encoded.
func (b *Bridge) Eval(ctx context.Context, js string) (string, error) {
	var res any
	if err := b.run(ctx, chromedp.Evaluate(js, &res)); err != nil {
		return "", fmt.Errorf("evaluate: %w", err)
	}
	switch v := res.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode result: %w", err)
		}
		return string(data), nil
	}
}

// Login opens a visible browser on url so the user can sign in. Cookies land
// in the profile directory and are reused by later headless runs.
func (b *Bridge) Login(ctx context.Context, url string) error {
	b.logger.Info("opening browser for login", "url", url)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, b.allocatorOptions(false)...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	if err := chromedp.Run(taskCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to login page: %w", err)
	}

	b.logger.Info("browser opened. Please log in manually. Press Ctrl+C when done.")
	<-ctx.Done()

	b.logger.Info("login session saved", "profile", b.profileDir)
	return nil
}

// Close shuts down Chrome if it was started.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
		b.tabCtx = nil
	}
}
