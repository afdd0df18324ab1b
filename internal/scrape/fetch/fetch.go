// Package fetch retrieves pages for the scrape orchestrator. It spaces and
// serializes requests per host, caps global concurrency, retries transient
// failures with exponential backoff and classifies what it cannot recover.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"azubi-engine/internal/backoff"
	"azubi-engine/internal/config"
	"azubi-engine/internal/scrape/util"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const maxBody = 8 << 20

type Options struct {
	UserAgent   string
	MinDelay    time.Duration // spacing between request starts on one host
	MaxRetries  int           // retries after the first attempt
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Timeout     time.Duration // per attempt
	Concurrency int64         // global ceiling across hosts
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		UserAgent:   cfg.Fetch.UserAgent,
		MinDelay:    cfg.MinDelay(),
		MaxRetries:  cfg.Fetch.MaxRetries,
		BaseDelay:   cfg.BaseDelay(),
		MaxDelay:    cfg.MaxDelay(),
		Timeout:     cfg.RequestTimeout(),
		Concurrency: int64(cfg.Fetch.GlobalConcurrency),
	}
}

type Page struct {
	URL    string
	Status int
	Body   []byte
}

// Renderer loads a page in a headless browser for sites that build their
// listings client-side.
type Renderer interface {
	Render(ctx context.Context, url string, timeout time.Duration) (body []byte, status int, err error)
	Close() error
}

type Fetcher struct {
	opts     Options
	client   *http.Client
	hosts    *util.HostLimiter
	sem      *semaphore.Weighted
	renderer Renderer
	log      *zap.Logger

	// Sleep waits out backoff delays. Tests replace it to record delays.
	Sleep backoff.SleepFunc
}

func New(opts Options, log *zap.Logger) *Fetcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{
		opts:   opts,
		client: &http.Client{},
		hosts:  util.NewHostLimiter(opts.MinDelay),
		sem:    semaphore.NewWeighted(opts.Concurrency),
		log:    log.Named("fetch"),
		Sleep:  backoff.Sleep,
	}
}

// WithRenderer enables rendered fetches. A nil renderer makes every fetch a
// plain HTTP GET.
func (f *Fetcher) WithRenderer(r Renderer) *Fetcher {
	f.renderer = r
	return f
}

func (f *Fetcher) Close() error {
	if f.renderer != nil {
		return f.renderer.Close()
	}
	return nil
}

// Fetch returns the page at rawURL or a *FetchError. render asks for the
// headless browser and falls back to HTTP when none is configured.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, render bool) (*Page, error) {
	host := util.HostOf(rawURL)
	render = render && f.renderer != nil

	var last *FetchError
	for attempt := 0; attempt <= f.opts.MaxRetries; attempt++ {
		page, ferr, err := f.attempt(ctx, host, rawURL, render)
		if err != nil {
			// caller cancelled or the run budget ran out
			return nil, err
		}
		if ferr == nil {
			return page, nil
		}
		ferr.Attempts = attempt + 1
		last = ferr
		if !ferr.retryable() || attempt == f.opts.MaxRetries {
			break
		}

		delay := backoff.Exponential(attempt, f.opts.BaseDelay, f.opts.MaxDelay)
		if ra, ok := retryAfter(ferr); ok && ra > delay {
			delay = ra
			if f.opts.MaxDelay > 0 && delay > f.opts.MaxDelay {
				delay = f.opts.MaxDelay
			}
		}
		f.log.Debug("retrying",
			zap.String("url", rawURL),
			zap.String("kind", string(ferr.Kind)),
			zap.Int("status", ferr.Status),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
		)
		if err := f.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	f.log.Warn("fetch failed", zap.String("url", rawURL), zap.Error(last))
	return nil, last
}

// attempt performs one request. The second result is a classified failure;
// the third is a context error that must not be retried.
func (f *Fetcher) attempt(ctx context.Context, host, rawURL string, render bool) (*Page, *FetchError, error) {
	release, err := f.hosts.Acquire(ctx, host)
	if err != nil {
		return nil, nil, err
	}
	defer release()
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, nil, err
	}
	defer f.sem.Release(1)

	var (
		body   []byte
		status int
		header http.Header
	)
	if render {
		body, status, err = f.renderer.Render(ctx, rawURL, f.opts.Timeout)
	} else {
		body, status, header, err = f.get(ctx, rawURL)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, classifyTransport(rawURL, err), nil
	}

	if blocked(status, body) {
		return nil, &FetchError{Kind: KindBlocked, URL: rawURL, Status: status}, nil
	}
	if status < 200 || status > 299 {
		fe := &FetchError{Kind: KindHTTPStatus, URL: rawURL, Status: status}
		if header != nil {
			fe.Err = retryAfterHint(header.Get("Retry-After"))
		}
		return nil, fe, nil
	}
	return &Page{URL: rawURL, Status: status, Body: body}, nil, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, int, http.Header, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, nil, err
	}
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, 0, nil, err
	}
	return body, resp.StatusCode, resp.Header, nil
}

func classifyTransport(rawURL string, err error) *FetchError {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &FetchError{Kind: KindTimeout, URL: rawURL, Err: err}
	}
	return &FetchError{Kind: KindNetwork, URL: rawURL, Err: err}
}

var challengeMarkers = [][]byte{
	[]byte("cf-browser-verification"),
	[]byte("challenge-platform"),
	[]byte("g-recaptcha"),
	[]byte("h-captcha"),
	[]byte("<title>Just a moment...</title>"),
}

// blocked reports anti-bot responses. Retrying them only deepens the block.
func blocked(status int, body []byte) bool {
	if status == http.StatusForbidden {
		return true
	}
	if status != http.StatusOK && status != http.StatusServiceUnavailable {
		return false
	}
	head := body
	if len(head) > 64<<10 {
		head = head[:64<<10]
	}
	for _, m := range challengeMarkers {
		if bytes.Contains(head, m) {
			return true
		}
	}
	return false
}

type retryAfterError struct{ d time.Duration }

func (e retryAfterError) Error() string { return fmt.Sprintf("retry after %s", e.d) }

func retryAfterHint(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return retryAfterError{time.Duration(secs) * time.Second}
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return retryAfterError{d}
		}
	}
	return nil
}

func retryAfter(fe *FetchError) (time.Duration, bool) {
	var ra retryAfterError
	if fe.Status == http.StatusTooManyRequests && errors.As(fe.Err, &ra) {
		return ra.d, true
	}
	return 0, false
}
