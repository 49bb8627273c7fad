// Package collysession implements browser.Session using gocolly. Like
// the static sessions it has no script engine; it adds colly's request
// pipeline, per-domain rate rules, and optional robots.txt handling.
package collysession

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/agencyatlas/npidb-crawler/internal/browser"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// Delay spaces requests to the same domain (default 1s).
	Delay time.Duration
}

// Factory builds colly-backed sessions. Each session gets its own
// collector and cookie jar; the pooled transport is shared.
type Factory struct {
	cfg       Config
	transport http.RoundTripper
	logger    *zap.Logger
}

func NewFactory(cfg Config, logger *zap.Logger) *Factory {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Delay <= 0 {
		cfg.Delay = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{cfg: cfg, transport: newHTTPTransport(), logger: logger}
}

// NewSession builds a collector with a fresh cookie jar. Error pages are
// parsed rather than rejected so challenge bodies stay visible, and URL
// revisits are allowed for retries.
func (f *Factory) NewSession(ctx context.Context) (browser.Session, error) {
	c := colly.NewCollector(
		colly.Async(false),
		colly.UserAgent(f.cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	c.IgnoreRobotsTxt = !f.cfg.RespectRobots
	c.SetRequestTimeout(f.cfg.Timeout)
	c.WithTransport(f.transport)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       f.cfg.Delay,
	}); err != nil {
		return nil, fmt.Errorf("limit rule: %w", err)
	}
	return &Session{base: c, logger: f.logger}, nil
}

func (f *Factory) Close() error {
	return nil
}

// Session is one collector with its cookie jar and the last fetched page.
type Session struct {
	base   *colly.Collector
	logger *zap.Logger

	mu    sync.Mutex
	url   string
	title string
	html  string
}

// Navigate fetches rawURL through a clone of the session collector so
// callbacks never accumulate across calls.
func (s *Session) Navigate(ctx context.Context, rawURL string) error {
	clone := s.base.Clone()

	var (
		body     []byte
		finalURL string
		status   int
		fetchErr error
	)
	clone.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
		finalURL = r.Request.URL.String()
		status = r.StatusCode
	})
	clone.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- clone.Visit(rawURL)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit %s: %w", rawURL, err)
		}
	}
	if fetchErr != nil {
		return fmt.Errorf("fetch %s: %w", rawURL, fetchErr)
	}

	page := string(body)
	title := ""
	if doc, derr := goquery.NewDocumentFromReader(strings.NewReader(page)); derr == nil {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if finalURL == "" {
		finalURL = rawURL
	}
	s.mu.Lock()
	s.url, s.html, s.title = finalURL, page, title
	s.mu.Unlock()
	if status >= 400 {
		s.logger.Debug("page returned an error status",
			zap.String("url", rawURL), zap.Int("status", status))
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

// Evaluate always fails: colly sessions have no script engine.
func (s *Session) Evaluate(ctx context.Context, js string) error {
	return browser.ErrScriptUnsupported
}

func (s *Session) Close() error {
	return nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
