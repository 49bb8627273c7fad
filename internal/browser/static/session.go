// Package static implements browser.Session over plain HTTP with a
// browser-shaped transport. It cannot execute scripts, so paginators
// that need clicks stop after the link-based cascades.
package static

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/agencyatlas/npidb-crawler/internal/browser"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Config tunes the HTTP client behind static sessions.
type Config struct {
	UserAgent string
	// Timeout bounds a single request; step deadlines still apply on top.
	Timeout time.Duration
	// HostQPS is the politeness budget per host, shared by all sessions.
	HostQPS float64
}

// Factory builds cookie-isolated HTTP sessions sharing one per-host
// politeness budget.
type Factory struct {
	cfg      Config
	logger   *zap.Logger
	limiters sync.Map
}

func NewFactory(cfg Config, logger *zap.Logger) *Factory {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HostQPS <= 0 {
		cfg.HostQPS = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{cfg: cfg, logger: logger}
}

// NewSession returns a session with its own cookie jar and a transport
// that mimics a real browser's TLS fingerprint and headers.
func (f *Factory) NewSession(ctx context.Context) (browser.Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	client := resty.New()
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", f.cfg.UserAgent)
	client.SetTimeout(f.cfg.Timeout)
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	return &Session{http: client, factory: f, logger: f.logger}, nil
}

func (f *Factory) Close() error {
	return nil
}

// waitHostBudget blocks until the per-host limiter grants a slot.
func (f *Factory) waitHostBudget(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil
	}
	limAny, _ := f.limiters.LoadOrStore(u.Host, rate.NewLimiter(rate.Limit(f.cfg.HostQPS), 1))
	lim := limAny.(*rate.Limiter)
	return lim.Wait(ctx)
}

// Session is one cookie-isolated HTTP client with the last fetched page.
type Session struct {
	http    *resty.Client
	factory *Factory
	logger  *zap.Logger

	mu    sync.Mutex
	url   string
	title string
	html  string
}

// Navigate fetches rawURL and stores the body. Error statuses still
// return nil; challenge pages arrive with 403 or 503 and the caller
// decides from the content.
func (s *Session) Navigate(ctx context.Context, rawURL string) error {
	if err := s.factory.waitHostBudget(ctx, rawURL); err != nil {
		return err
	}
	resp, err := s.http.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("get %s: %w", rawURL, err)
	}
	body := resp.String()
	title := ""
	if doc, derr := goquery.NewDocumentFromReader(strings.NewReader(body)); derr == nil {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	s.mu.Lock()
	s.url, s.html, s.title = rawURL, body, title
	s.mu.Unlock()
	if resp.StatusCode() >= 400 {
		s.logger.Debug("page returned an error status",
			zap.String("url", rawURL), zap.Int("status", resp.StatusCode()))
	}
	return nil
}

// Title returns the <title> of the last fetched page.
func (s *Session) Title(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title, nil
}

// HTML returns the body of the last fetched page.
func (s *Session) HTML(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.html, nil
}

// Evaluate always fails: static sessions have no script engine.
func (s *Session) Evaluate(ctx context.Context, js string) error {
	return browser.ErrScriptUnsupported
}

func (s *Session) Close() error {
	return nil
}
