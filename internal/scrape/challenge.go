package scrape

import "strings"

// DefaultChallenge recognizes the interstitial pages the directory's
// CDN serves to suspected bots. Title markers cover the common
// Cloudflare variants; the body markers catch challenges served with a
// bland title.
func DefaultChallenge(title, html string) bool {
	t := strings.ToLower(title)
	if strings.Contains(t, "just a moment") || strings.Contains(t, "attention required") {
		return true
	}
	b := strings.ToLower(html)
	return strings.Contains(b, "cf-challenge") || strings.Contains(b, "challenge-platform")
}
