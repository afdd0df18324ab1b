package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightRenderer drives one headless Chromium shared by all rendered
// fetches. Each render gets its own page.
type PlaywrightRenderer struct {
	mu        sync.Mutex
	pw        *playwright.Playwright
	browser   playwright.Browser
	userAgent string
}

func NewPlaywrightRenderer(userAgent string) (*PlaywrightRenderer, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	return &PlaywrightRenderer{pw: pw, browser: browser, userAgent: userAgent}, nil
}

func (r *PlaywrightRenderer) Render(ctx context.Context, url string, timeout time.Duration) ([]byte, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	r.mu.Lock()
	browser := r.browser
	r.mu.Unlock()
	if browser == nil {
		return nil, 0, errors.New("renderer closed")
	}

	opts := playwright.BrowserNewPageOptions{}
	if r.userAgent != "" {
		opts.UserAgent = playwright.String(r.userAgent)
	}
	page, err := browser.NewPage(opts)
	if err != nil {
		return nil, 0, err
	}
	defer page.Close()

	resp, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return nil, 0, fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return nil, 0, err
	}
	status := 200
	if resp != nil {
		status = resp.Status()
	}
	html, err := page.Content()
	if err != nil {
		return nil, status, err
	}
	return []byte(html), status, nil
}

func (r *PlaywrightRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	if r.browser != nil {
		errs = append(errs, r.browser.Close())
		r.browser = nil
	}
	if r.pw != nil {
		errs = append(errs, r.pw.Stop())
		r.pw = nil
	}
	return errors.Join(errs...)
}
