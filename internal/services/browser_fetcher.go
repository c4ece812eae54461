package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// BrowserFetcher renders pages in headless Chromium so sites that build their
// content with JavaScript still yield text and links. The browser is started
// lazily on first use and shared between fetches.
type BrowserFetcher struct {
	controlURL string
	timeout    time.Duration
	logger     *zap.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// NewBrowserFetcher connects to the DevTools endpoint at controlURL, or
// launches a local headless browser when controlURL is empty.
func NewBrowserFetcher(controlURL string, timeout time.Duration, logger *zap.Logger) *BrowserFetcher {
	return &BrowserFetcher{
		controlURL: controlURL,
		timeout:    timeout,
		logger:     logger,
	}
}

func (f *BrowserFetcher) connect() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser != nil {
		return f.browser, nil
	}

	controlURL := f.controlURL
	if controlURL == "" {
		l := launcher.New().Headless(true)
		if bin, ok := launcher.LookPath(); ok {
			l = l.Bin(bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		f.launcher = l
		controlURL = u
	}

	f.logger.Info("Connecting to browser", zap.String("url", controlURL))
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	f.browser = browser
	return browser, nil
}

func (f *BrowserFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	browser, err := f.connect()
	if err != nil {
		return "", err
	}

	page, err := browser.Context(ctx).Timeout(f.timeout).Page(proto.TargetCreateTarget{URL: pageURL})
	if err != nil {
		return "", fmt.Errorf("open page %s: %w", pageURL, err)
	}
	defer page.Close()

	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait load %s: %w", pageURL, err)
	}

	body, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("read DOM %s: %w", pageURL, err)
	}

	f.logger.Debug("Rendered page", zap.String("url", pageURL), zap.Int("bytes", len(body)))
	return body, nil
}

// Close shuts the browser down and removes a locally launched instance.
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var err error
	if f.browser != nil {
		err = f.browser.Close()
		f.browser = nil
	}
	if f.launcher != nil {
		f.launcher.Cleanup()
		f.launcher = nil
	}
	return err
}
