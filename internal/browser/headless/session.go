// Package headless implements browser.Session on chromedp. One Factory
// owns the Chrome exec allocator; every session derives its own browser
// context from it, so runs never share cookies, cache, or challenge
// state.
package headless

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/agencyatlas/npidb-crawler/internal/browser"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Config tunes the Chrome allocator and its sessions.
type Config struct {
	UserAgent string
	// SettleWait pauses after document ready so late scripts can fill
	// in listings (default 500ms).
	SettleWait time.Duration
	// NoSandbox disables the Chrome sandbox for containerized runs.
	NoSandbox bool
}

// Factory owns one Chrome exec allocator shared by all sessions.
type Factory struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	cfg         Config
	logger      *zap.Logger
}

func NewFactory(cfg Config, logger *zap.Logger) *Factory {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.SettleWait <= 0 {
		cfg.SettleWait = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(cfg.UserAgent),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Factory{allocCtx: allocCtx, allocCancel: cancel, cfg: cfg, logger: logger}
}

// NewSession launches an isolated browser context and verifies Chrome
// actually starts.
func (f *Factory) NewSession(ctx context.Context) (browser.Session, error) {
	browserCtx, cancel := chromedp.NewContext(f.allocCtx)
	stop := forwardCancel(ctx, cancel)
	err := chromedp.Run(browserCtx)
	stop()
	if err != nil {
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	return &Session{
		browserCtx: browserCtx,
		cancel:     cancel,
		cfg:        f.cfg,
		logger:     f.logger,
	}, nil
}

// Close tears down the allocator; open sessions die with it.
func (f *Factory) Close() error {
	f.allocCancel()
	return nil
}

// Session is one isolated browser context.
type Session struct {
	browserCtx context.Context
	cancel     context.CancelFunc
	cfg        Config
	logger     *zap.Logger
}

// Navigate loads rawURL, waits for the document body, and lets the page
// settle. The document status code is captured for diagnostics; even
// error pages return nil so the caller can inspect the content.
func (s *Session) Navigate(ctx context.Context, rawURL string) error {
	runCtx, cancel := context.WithCancel(s.browserCtx)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	meta := newResponseMeta()
	chromedp.ListenTarget(runCtx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Type != network.ResourceTypeDocument {
			return
		}
		meta.once.Do(func() {
			meta.statusCode = int(resp.Response.Status)
			meta.url = resp.Response.URL
		})
	})

	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(s.cfg.UserAgent),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.cfg.SettleWait),
	}
	if err := chromedp.Run(runCtx, tasks); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	if meta.statusCode >= 400 {
		s.logger.Debug("document returned an error status",
			zap.String("url", rawURL), zap.Int("status", meta.statusCode))
	}
	return nil
}

// Title returns the current document title.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("read title: %w", err)
	}
	return title, nil
}

// HTML serializes the current document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}

// Evaluate runs js in the page and discards the result.
func (s *Session) Evaluate(ctx context.Context, js string) error {
	if err := s.run(ctx, chromedp.Evaluate(js, nil)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

// Close shuts the browser context down.
func (s *Session) Close() error {
	s.cancel()
	return nil
}

func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.browserCtx)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

type responseMeta struct {
	once       sync.Once
	statusCode int
	url        string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

// forwardCancel propagates parent cancellation into a chromedp context
// without tying the browser's lifetime to the request.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
