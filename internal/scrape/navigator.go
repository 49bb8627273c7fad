package scrape

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/agencyatlas/npidb-crawler/internal/browser"
)

// DefaultMaxListingPages caps pagination so a listing that always
// advertises a next page still terminates.
const DefaultMaxListingPages = 100

// clickNextScript advances paginators built from buttons instead of
// anchors. It refuses disabled controls and reports nothing back; the
// navigator detects progress by watching the document change.
const clickNextScript = `(() => {
  const labels = ["next", ">", "next page"];
  const els = Array.from(document.querySelectorAll("a, button, [role='button']"));
  for (const el of els) {
    const text = (el.textContent || "").trim().toLowerCase();
    const aria = (el.getAttribute("aria-label") || "").toLowerCase();
    if (!labels.includes(text) && !aria.includes("next")) continue;
    if (el.hasAttribute("disabled") || el.classList.contains("disabled")) return;
    el.click();
    return;
  }
})()`

// NavigatorConfig tunes listing traversal.
type NavigatorConfig struct {
	MaxListingPages int
	Challenge       ChallengePredicate
}

// Navigator walks a paginated listing and collects detail-page stubs.
// Collection is eager: all stubs are gathered before any detail visit,
// so truncation on a mid-pagination failure is well defined.
type Navigator struct {
	steps  *StepRunner
	cfg    NavigatorConfig
	logger *zap.Logger

	// Archive, when set, stores the raw HTML of every listing page.
	Archive *PageArchiver
	// OnPage, when set, is called after each listing page is parsed.
	OnPage func(page, newStubs int)
}

func NewNavigator(steps *StepRunner, cfg NavigatorConfig, logger *zap.Logger) *Navigator {
	if cfg.MaxListingPages <= 0 {
		cfg.MaxListingPages = DefaultMaxListingPages
	}
	if cfg.Challenge == nil {
		cfg.Challenge = DefaultChallenge
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Navigator{steps: steps, cfg: cfg, logger: logger}
}

// CollectStubs pages through the listing for resolved and returns every
// stub found plus the number of pages visited. Failures on the first
// page abort; a later page failing after its retry truncates the walk
// and keeps what was gathered. A challenge anywhere returns
// ErrBlockedByDefense alongside the stubs collected before it.
func (n *Navigator) CollectStubs(ctx context.Context, sess browser.Session, resolved ResolvedQuery) ([]ResultStub, int, error) {
	var stubs []ResultStub
	seen := make(map[string]struct{})
	current := resolved.ListingURL
	visited := 0
	skipNav := false

	for page := 1; page <= n.cfg.MaxListingPages; page++ {
		if !skipNav {
			err := n.steps.Run(ctx, "listing_navigate", func(c context.Context) error {
				return sess.Navigate(c, current)
			})
			if err != nil {
				if page == 1 {
					return nil, 0, fmt.Errorf("listing page 1: %w", err)
				}
				n.logger.Warn("listing page failed after retry, keeping earlier results",
					zap.Int("page", page), zap.Error(err))
				return stubs, visited, nil
			}
		}
		skipNav = false

		var title, html string
		err := n.steps.Run(ctx, "listing_read", func(c context.Context) error {
			if t, terr := sess.Title(c); terr == nil {
				title = t
			}
			h, herr := sess.HTML(c)
			if herr != nil {
				return herr
			}
			html = h
			return nil
		})
		if err != nil {
			if page == 1 {
				return nil, 0, fmt.Errorf("listing page 1: %w", err)
			}
			n.logger.Warn("listing read failed, keeping earlier results",
				zap.Int("page", page), zap.Error(err))
			return stubs, visited, nil
		}

		if n.cfg.Challenge(title, html) {
			ChallengesTotal.Inc()
			return stubs, visited, fmt.Errorf("listing page %d: %w", page, ErrBlockedByDefense)
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			if page == 1 {
				return nil, 0, fmt.Errorf("listing page 1: parse: %w", err)
			}
			n.logger.Warn("listing parse failed, keeping earlier results",
				zap.Int("page", page), zap.Error(err))
			return stubs, visited, nil
		}
		visited = page
		ListingPagesTotal.Inc()
		n.Archive.save(ctx, "listing", html)

		pageStubs := stubsFromListing(doc, seen)
		stubs = append(stubs, pageStubs...)
		n.logger.Debug("listing page parsed",
			zap.Int("page", page), zap.Int("stubs", len(pageStubs)))
		if n.OnPage != nil {
			n.OnPage(page, len(pageStubs))
		}

		if page == n.cfg.MaxListingPages {
			n.logger.Warn("listing page cap reached", zap.Int("cap", n.cfg.MaxListingPages))
			break
		}
		href, clickJS := nextPageTarget(doc, page)
		switch {
		case href != "":
			current = href
		case clickJS != "":
			if err := sess.Evaluate(ctx, clickJS); err != nil {
				n.logger.Debug("pagination needs scripting, stopping here", zap.Error(err))
				return stubs, visited, nil
			}
			if !n.waitForNewContent(ctx, sess, html) {
				return stubs, visited, nil
			}
			skipNav = true
		default:
			return stubs, visited, nil
		}
	}
	return stubs, visited, nil
}

// waitForNewContent polls the document after a scripted click until it
// differs from prev. False means the click went nowhere.
func (n *Navigator) waitForNewContent(ctx context.Context, sess browser.Session, prev string) bool {
	err := n.steps.Run(ctx, "listing_paginate", func(c context.Context) error {
		for i := 0; i < 6; i++ {
			select {
			case <-c.Done():
				return c.Err()
			case <-time.After(500 * time.Millisecond):
			}
			html, herr := sess.HTML(c)
			if herr != nil {
				return herr
			}
			if html != prev {
				return nil
			}
		}
		return fmt.Errorf("document unchanged after click")
	})
	if err != nil {
		n.logger.Debug("scripted pagination made no progress", zap.Error(err))
		return false
	}
	return true
}

// stubsFromListing applies the row cascade and falls back to raw detail
// links when no row shape matches. Duplicate detail URLs across pages
// are dropped via seen.
func stubsFromListing(doc *goquery.Document, seen map[string]struct{}) []ResultStub {
	var stubs []ResultStub
	for _, row := range listingRows(doc) {
		stub, ok := stubFromRow(row)
		if !ok {
			continue
		}
		if _, dup := seen[stub.DetailURL]; dup {
			continue
		}
		seen[stub.DetailURL] = struct{}{}
		stubs = append(stubs, stub)
	}
	if len(stubs) > 0 {
		return stubs
	}
	// last resort: treat every detail link on the page as its own row
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !isDetailHref(href) {
			return
		}
		u := resolveHref(href)
		if u == "" {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		text := collapseSpace(a.Text())
		stubs = append(stubs, ResultStub{
			DetailURL:    u,
			ProviderName: cleanProviderName(text),
			RawText:      text,
		})
	})
	return stubs
}

// listingRows tries each row selector in order and returns the rows of
// the first one that matches, minus a leading header row.
func listingRows(doc *goquery.Document) []*goquery.Selection {
	for _, selector := range rowSelectors {
		found := doc.Find(selector)
		if found.Length() == 0 {
			continue
		}
		var rows []*goquery.Selection
		found.Each(func(_ int, s *goquery.Selection) {
			rows = append(rows, s)
		})
		if isHeaderRow(rows[0]) {
			rows = rows[1:]
		}
		if len(rows) > 0 {
			return rows
		}
	}
	return nil
}

// isHeaderRow recognizes column-header rows: header vocabulary with no
// detail link of their own.
func isHeaderRow(row *goquery.Selection) bool {
	text := strings.ToLower(row.Text())
	hit := false
	for _, word := range headerWords {
		if strings.Contains(text, word) {
			hit = true
			break
		}
	}
	if !hit {
		return false
	}
	hasDetail := false
	row.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if isDetailHref(href) {
			hasDetail = true
			return false
		}
		return true
	})
	return !hasDetail
}

// stubFromRow pulls the detail link, best-effort name, and any NPI out
// of one listing row. Rows without a detail link yield nothing.
func stubFromRow(row *goquery.Selection) (ResultStub, bool) {
	var href, anchorText string
	row.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		h, _ := a.Attr("href")
		if !isDetailHref(h) {
			return true
		}
		href = h
		anchorText = collapseSpace(a.Text())
		return false
	})
	if href == "" {
		return ResultStub{}, false
	}
	text := collapseSpace(row.Text())
	stub := ResultStub{
		DetailURL:    resolveHref(href),
		ProviderName: cleanProviderName(anchorText),
		RawText:      text,
	}
	if stub.DetailURL == "" {
		return ResultStub{}, false
	}
	if m := npiBareRE.FindStringSubmatch(text); m != nil {
		stub.NPI = m[1]
	}
	return stub, true
}

// anchorPreds is the pagination cascade over anchor text and aria
// labels, tried strictly in order.
var anchorPreds = []func(text, aria string, page int) bool{
	func(text, _ string, _ int) bool { return text == "next" },
	func(text, _ string, _ int) bool { return text == ">" },
	func(text, _ string, _ int) bool { return text == "next page" },
	func(_, aria string, _ int) bool { return strings.Contains(aria, "next") },
	func(text, _ string, page int) bool { return text == strconv.Itoa(page+1) },
}

// nextPageTarget finds how to reach the page after page. It returns an
// absolute href when an anchor serves, or a click script when only a
// button does. A disabled next control ends pagination.
func nextPageTarget(doc *goquery.Document, page int) (href, clickJS string) {
	for _, pred := range anchorPreds {
		var target string
		disabled := false
		doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			text := strings.ToLower(collapseSpace(a.Text()))
			aria := strings.ToLower(a.AttrOr("aria-label", ""))
			if !pred(text, aria, page) {
				return true
			}
			if isDisabled(a) {
				disabled = true
				return false
			}
			h := a.AttrOr("href", "")
			if h == "" || strings.HasPrefix(h, "#") ||
				strings.HasPrefix(strings.ToLower(h), "javascript:") {
				return true
			}
			target = resolveHref(h)
			return false
		})
		if disabled {
			return "", ""
		}
		if target != "" {
			return target, ""
		}
	}

	clickable := false
	doc.Find("button, [role='button']").EachWithBreak(func(_ int, b *goquery.Selection) bool {
		text := strings.ToLower(collapseSpace(b.Text()))
		aria := strings.ToLower(b.AttrOr("aria-label", ""))
		if text != "next" && text != ">" && text != "next page" &&
			!strings.Contains(aria, "next") {
			return true
		}
		clickable = !isDisabled(b)
		return false
	})
	if clickable {
		return "", clickNextScript
	}
	return "", ""
}

func isDisabled(s *goquery.Selection) bool {
	if _, has := s.Attr("disabled"); has {
		return true
	}
	if strings.Contains(s.AttrOr("class", ""), "disabled") {
		return true
	}
	return s.AttrOr("aria-disabled", "") == "true"
}
