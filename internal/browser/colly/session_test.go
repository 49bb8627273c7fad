package collysession

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agencyatlas/npidb-crawler/internal/browser"
)

func newTestFactory() *Factory {
	// near-zero delay so multi-page tests stay fast
	return NewFactory(Config{Delay: time.Millisecond, Timeout: 5 * time.Second}, zap.NewNop())
}

func newTestSession(t *testing.T) browser.Session {
	t.Helper()
	sess, err := newTestFactory().NewSession(context.Background())
	require.NoError(t, err)
	return sess
}

func TestNavigateCapturesTitleAndBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Wake County Agencies</title></head><body><table><tr><td>row</td></tr></table></body></html>`))
	}))
	defer srv.Close()

	sess := newTestSession(t)
	defer func() { require.NoError(t, sess.Close()) }()

	require.NoError(t, sess.Navigate(context.Background(), srv.URL))

	title, err := sess.Title(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Wake County Agencies", title)

	html, err := sess.HTML(context.Background())
	require.NoError(t, err)
	require.Contains(t, html, "<td>row</td>")
}

func TestNavigateKeepsErrorPageBodies(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`<html><head><title>Just a moment...</title></head><body>checking your browser</body></html>`))
	}))
	defer srv.Close()

	sess := newTestSession(t)

	// error statuses still parse; blocked-page detection happens upstream
	require.NoError(t, sess.Navigate(context.Background(), srv.URL))

	title, err := sess.Title(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Just a moment...", title)

	html, err := sess.HTML(context.Background())
	require.NoError(t, err)
	require.Contains(t, html, "checking your browser")
}

func TestNavigateReplacesPriorPageAndAllowsRevisits(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Page A</title></head><body>alpha</body></html>`))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Page B</title></head><body>bravo</body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sess := newTestSession(t)

	require.NoError(t, sess.Navigate(context.Background(), srv.URL+"/a"))
	require.NoError(t, sess.Navigate(context.Background(), srv.URL+"/b"))

	title, err := sess.Title(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Page B", title)

	html, err := sess.HTML(context.Background())
	require.NoError(t, err)
	require.Contains(t, html, "bravo")
	require.NotContains(t, html, "alpha")

	// retries revisit the same URL
	require.NoError(t, sess.Navigate(context.Background(), srv.URL+"/a"))
	title, err = sess.Title(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Page A", title)
}

func TestNavigateReportsFetchErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	sess := newTestSession(t)
	err := sess.Navigate(context.Background(), url)
	require.Error(t, err)
	require.Contains(t, err.Error(), url)

	html, herr := sess.HTML(context.Background())
	require.NoError(t, herr)
	require.Empty(t, html)
}

func TestNavigateHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	sess := newTestSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sess.Navigate(ctx, srv.URL), context.Canceled)

	html, err := sess.HTML(context.Background())
	require.NoError(t, err)
	require.Empty(t, html)
}

func TestEvaluateIsUnsupported(t *testing.T) {
	t.Parallel()

	sess := newTestSession(t)
	require.ErrorIs(t, sess.Evaluate(context.Background(), "window.scrollTo(0, 0)"), browser.ErrScriptUnsupported)
}

func TestRobotsPolicyTogglesCollector(t *testing.T) {
	t.Parallel()

	ignore, err := NewFactory(Config{}, nil).NewSession(context.Background())
	require.NoError(t, err)
	require.True(t, ignore.(*Session).base.IgnoreRobotsTxt)

	respect, err := NewFactory(Config{RespectRobots: true}, nil).NewSession(context.Background())
	require.NoError(t, err)
	require.False(t, respect.(*Session).base.IgnoreRobotsTxt)
}

func TestFactoryDefaults(t *testing.T) {
	t.Parallel()

	f := NewFactory(Config{}, nil)
	require.Equal(t, defaultUserAgent, f.cfg.UserAgent)
	require.Equal(t, 30*time.Second, f.cfg.Timeout)
	require.Equal(t, time.Second, f.cfg.Delay)
	require.NotNil(t, f.transport)
	require.NoError(t, f.Close())
}
