package scrape

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agencyatlas/npidb-crawler/internal/browser"
)

// fakePage is the scripted content served for one URL.
type fakePage struct {
	title string
	html  string
}

// fakeSession serves scripted pages keyed by URL. Navigation errors are
// queued per URL and consumed one per attempt, so tests can model both
// transient and permanent failures under the step retry.
type fakeSession struct {
	mu        sync.Mutex
	pages     map[string]fakePage
	navErrs   map[string][]error
	navigated []string
	current   string
	evalErr   error
	evalFn    func(js string) error
	evalJS    []string
	closed    bool
	closeErr  error
}

func newFakeSession(pages map[string]fakePage) *fakeSession {
	if pages == nil {
		pages = make(map[string]fakePage)
	}
	return &fakeSession{
		pages:   pages,
		navErrs: make(map[string][]error),
		evalErr: browser.ErrScriptUnsupported,
	}
}

// failNavigate queues errors for url; each Navigate attempt consumes one.
func (s *fakeSession) failNavigate(url string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navErrs[url] = append(s.navErrs[url], errs...)
}

func (s *fakeSession) setPage(url string, page fakePage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[url] = page
}

func (s *fakeSession) visits() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.navigated...)
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q := s.navErrs[url]; len(q) > 0 {
		s.navErrs[url] = q[1:]
		return q[0]
	}
	if _, ok := s.pages[url]; !ok {
		return fmt.Errorf("no page scripted for %s", url)
	}
	s.current = url
	s.navigated = append(s.navigated, url)
	return nil
}

func (s *fakeSession) Title(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages[s.current].title, nil
}

func (s *fakeSession) HTML(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages[s.current].html, nil
}

func (s *fakeSession) Evaluate(_ context.Context, js string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evalJS = append(s.evalJS, js)
	if s.evalFn != nil {
		return s.evalFn(js)
	}
	return s.evalErr
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.closeErr
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeFactory hands out one scripted session per NewSession call.
type fakeFactory struct {
	mu     sync.Mutex
	newErr error
	build  func() browser.Session
	handed []browser.Session
	closed bool
}

func (f *fakeFactory) NewSession(context.Context) (browser.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.newErr != nil {
		return nil, f.newErr
	}
	sess := f.build()
	f.handed = append(f.handed, sess)
	return sess, nil
}

func (f *fakeFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// steppingClock advances one second per Now call so run durations are
// deterministic and snapshot paths stay on one date.
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func newSteppingClock() *steppingClock {
	return &steppingClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(time.Second)
	return t
}

// seqIDs yields run-1, run-2, ...
type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("run-%d", g.n), nil
}

// timeoutErr satisfies net.Error with Timeout reporting true.
type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }
