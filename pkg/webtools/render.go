package webtools

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Renderer loads pages in headless Chrome over CDP so content that
// only exists after scripts run can be scraped. The browser launches
// lazily on first use and is shared across fetches.
type Renderer struct {
	mu         sync.Mutex
	controlURL string
	launcher   *launcher.Launcher
	browser    *rod.Browser
}

// NewRenderer creates an unstarted renderer that launches its own
// headless Chrome on first use.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// NewRemoteRenderer creates a renderer that attaches to an already
// running browser at the given CDP control URL instead of launching
// one. Closing the renderer drops the connection but leaves the
// remote browser alive.
func NewRemoteRenderer(controlURL string) *Renderer {
	return &Renderer{controlURL: controlURL}
}

// HTML navigates to the URL in a fresh tab, waits for the load event,
// and returns the rendered DOM serialized back to HTML.
func (r *Renderer) HTML(ctx context.Context, pageURL string) (string, error) {
	browser, err := r.connect()
	if err != nil {
		return "", err
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("failed to open page: %w", err)
	}
	defer func() { _ = page.Close() }()

	page = page.Context(ctx)
	if err := page.Navigate(pageURL); err != nil {
		return "", fmt.Errorf("failed to navigate to %s: %w", pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("page load: %w", err)
	}
	return page.HTML()
}

// connect launches Chrome (or dials the configured control URL) once;
// later calls reuse the connection.
func (r *Renderer) connect() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return r.browser, nil
	}

	if r.controlURL != "" {
		browser := rod.New().ControlURL(r.controlURL)
		if err := browser.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to browser at %s: %w", r.controlURL, err)
		}
		r.browser = browser
		return browser, nil
	}

	l := launcher.New().Headless(true)
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch Chrome: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to CDP: %w", err)
	}

	r.launcher = l
	r.browser = browser
	return browser, nil
}

// Close shuts down the browser and its Chrome process. Safe to call
// on a renderer that never started.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser == nil {
		return nil
	}

	err := r.browser.Close()
	if r.launcher != nil {
		r.launcher.Kill()
		r.launcher = nil
	}
	r.browser = nil
	return err
}
