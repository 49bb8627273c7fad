package scrape

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/agencyatlas/npidb-crawler/internal/browser"
)

// minDetailHTMLBytes separates a structurally broken page from one that
// merely lacked every field. Below this size with zero matches the page
// is treated as unrecognized.
const minDetailHTMLBytes = 512

// Extractor visits one detail page and runs the per-field matcher
// cascades. Fields are independent: a miss on one never blocks the
// others, and the returned strings are raw; the assembler normalizes.
type Extractor struct {
	steps     *StepRunner
	challenge ChallengePredicate
	logger    *zap.Logger

	// Archive, when set, stores the raw HTML of every detail page.
	Archive *PageArchiver
}

func NewExtractor(steps *StepRunner, challenge ChallengePredicate, logger *zap.Logger) *Extractor {
	if challenge == nil {
		challenge = DefaultChallenge
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{steps: steps, challenge: challenge, logger: logger}
}

// ExtractDetail navigates to the stub's detail page and matches fields.
// Missing fields are not errors; ErrSelectorNotFound is returned only
// when nothing matched on a page too small to be real content.
func (e *Extractor) ExtractDetail(ctx context.Context, sess browser.Session, stub ResultStub) (DetailFields, error) {
	err := e.steps.Run(ctx, "detail_navigate", func(c context.Context) error {
		return sess.Navigate(c, stub.DetailURL)
	})
	if err != nil {
		return DetailFields{}, fmt.Errorf("detail %s: %w", stub.DetailURL, err)
	}

	var title, html string
	err = e.steps.Run(ctx, "detail_read", func(c context.Context) error {
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
		return DetailFields{}, fmt.Errorf("detail %s: %w", stub.DetailURL, err)
	}

	if e.challenge(title, html) {
		ChallengesTotal.Inc()
		return DetailFields{}, fmt.Errorf("detail %s: %w", stub.DetailURL, ErrBlockedByDefense)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return DetailFields{}, fmt.Errorf("detail %s: parse: %w", stub.DetailURL, err)
	}
	e.Archive.save(ctx, "detail", html)

	text := flattenText(doc)
	fields := DetailFields{
		NPI:             firstMatch(doc, text, npiMatchers),
		ProviderName:    firstMatch(doc, text, providerNameMatchers),
		AgencyName:      firstMatch(doc, text, agencyNameMatchers),
		Phone:           firstMatch(doc, text, phoneMatchers),
		EnumerationDate: firstMatch(doc, text, enumerationMatchers),
		Address:         matchAddress(doc, text),
		Official:        matchOfficial(doc, text),
	}
	if fields.empty() && len(html) < minDetailHTMLBytes {
		return DetailFields{}, fmt.Errorf("detail %s: %w", stub.DetailURL, ErrSelectorNotFound)
	}
	return fields, nil
}

func (f DetailFields) empty() bool {
	return f.NPI == "" && f.ProviderName == "" && f.AgencyName == "" &&
		f.Phone == "" && f.EnumerationDate == "" &&
		f.Address == nil && f.Official == nil
}
