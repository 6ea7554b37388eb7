// Package chrome plays tours on a real Chrome tab driven over the DevTools
// protocol.
//
// The widget layers are rendered by a small script installed on every document
// of the tab; user input travels back through a runtime binding.
package chrome

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/narrate/internal/logging"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Config configures how the browser is obtained.
type Config struct {
	// URL is the page the tour is played on.
	URL string
	// Bin is the Chrome executable. Empty = auto-detect or download.
	Bin string
	// ControlURL is the DevTools websocket of an already running Chrome.
	// Empty = launch a local one.
	ControlURL string
	Headless   bool
	// Stealth hides the usual automation fingerprints from the host page.
	Stealth bool
	// NavigationTimeout bounds the initial page load. Default: 30s.
	NavigationTimeout time.Duration
}

// Browser owns a Chrome process (or connection) and the tab tours play on.
type Browser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	Page     *rod.Page
	logger   *slog.Logger
}

// Launch starts or connects to Chrome and opens cfg.URL.
func Launch(ctx context.Context, cfg Config, logger *slog.Logger) (*Browser, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	b := &Browser{logger: logger}

	wsURL := cfg.ControlURL
	if wsURL == "" {
		l := launcher.New().Headless(cfg.Headless).Leakless(false)
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		// Anti-detection flags.
		l = l.Set("disable-blink-features", "AutomationControlled")
		// Narration must play without a user gesture.
		l = l.Set("autoplay-policy", "no-user-gesture-required")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("chrome: launch: %w", err)
		}
		wsURL = u
		b.launcher = l
		logger.Info("chrome: launched local browser", "headless", cfg.Headless)
	} else {
		logger.Info("chrome: connecting to remote", "url", wsURL)
	}

	b.browser = rod.New().ControlURL(wsURL)
	if err := b.browser.Connect(); err != nil {
		b.Close()
		return nil, fmt.Errorf("chrome: connect: %w", err)
	}

	var err error
	if cfg.Stealth {
		b.Page, err = stealth.Page(b.browser)
	} else {
		b.Page, err = b.browser.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("chrome: create tab: %w", err)
	}

	if cfg.URL != "" {
		if err := b.Navigate(ctx, cfg.URL, cfg.NavigationTimeout); err != nil {
			b.Close()
			return nil, err
		}
	}
	return b, nil
}

// Navigate opens url in the tab and waits for it to load.
func (b *Browser) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := b.Page.Context(navCtx).Navigate(url); err != nil {
		return fmt.Errorf("chrome: navigate %s: %w", url, err)
	}
	if err := b.Page.Context(navCtx).WaitLoad(); err != nil {
		b.logger.Warn("chrome: wait load timeout", "url", url, "err", err)
	}
	return nil
}

// Close shuts the browser down.
func (b *Browser) Close() error {
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			b.logger.Debug("chrome: close", "err", err)
		}
		b.browser = nil
	}
	if b.launcher != nil {
		b.launcher.Cleanup()
		b.launcher = nil
	}
	return nil
}
