// Package browser owns the headless Chrome automation sessions the site
// adapters drive. One exec allocator is configured at startup; every crawl
// gets its own isolated browser context on top of it.
package browser

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/transitops/notice-crawler/internal/crawler"
)

// Config controls session behavior.
type Config struct {
	Headless  bool
	UserAgent string
	ExecPath  string // explicit Chrome binary, auto-detected when empty
	OpTimeout time.Duration
	WindowW   int
	WindowH   int
}

func (c Config) withDefaults() Config {
	if c.OpTimeout <= 0 {
		c.OpTimeout = 15 * time.Second
	}
	if c.WindowW <= 0 || c.WindowH <= 0 {
		c.WindowW, c.WindowH = 1280, 720
	}
	return c
}

// Manager builds isolated sessions from one shared allocator.
type Manager struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	cfg         Config
	logger      *zap.Logger
}

// NewManager configures the exec allocator. The browser process itself is
// started lazily on the first Acquire, so a missing binary surfaces as a
// session-acquisition failure rather than a startup crash.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.WindowSize(cfg.WindowW, cfg.WindowH),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if path := resolveExecPath(cfg.ExecPath); path != "" {
		opts = append(opts, chromedp.ExecPath(path))
		logger.Info("using chrome binary", zap.String("path", path))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Manager{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		cfg:         cfg,
		logger:      logger,
	}
}

// Close tears down the allocator and any remaining browser processes.
func (m *Manager) Close() {
	m.allocCancel()
}

// Acquire starts a fresh browser context for one crawl. The warmup run
// launches the browser; its failure means the environment cannot host a
// session at all.
func (m *Manager) Acquire(ctx context.Context) (crawler.BrowserSession, error) {
	tabCtx, tabCancel := chromedp.NewContext(m.allocCtx)
	if err := chromedp.Run(tabCtx, m.networkSetupAction()); err != nil {
		tabCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	if err := ctx.Err(); err != nil {
		tabCancel()
		return nil, err
	}
	return &Session{
		tabCtx:    tabCtx,
		tabCancel: tabCancel,
		opTimeout: m.cfg.OpTimeout,
	}, nil
}

// networkSetupAction enables the network domain and applies the user-agent
// override at the protocol level, where it covers XHR traffic the boards
// issue after the initial navigation.
func (m *Manager) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if m.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(m.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// resolveExecPath mirrors the deployment environments the service runs in:
// an env override first, then the usual install locations.
func resolveExecPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv("GOOGLE_CHROME_BIN"); p != "" {
		return p
	}
	for _, p := range []string{
		"/usr/bin/google-chrome",
		"/usr/bin/google-chrome-stable",
		"/opt/google/chrome/chrome",
		"/usr/bin/chromium-browser",
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
