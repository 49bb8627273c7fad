package scrape

import (
	"fmt"
	"net/url"
	"strings"
)

// BaseListingURL is the home-health taxonomy root on the directory site.
// The trailing slug is the NPPES taxonomy code 251E00000X.
const BaseListingURL = "https://npidb.org/organizations/agencies/home-health_251e00000x"

const (
	siteOrigin   = "https://npidb.org"
	taxonomySlug = "home-health_251e00000x"
)

// uspsStates covers the 50 states, DC, and the inhabited territories.
var uspsStates = map[string]struct{}{
	"AL": {}, "AK": {}, "AZ": {}, "AR": {}, "CA": {}, "CO": {}, "CT": {},
	"DE": {}, "FL": {}, "GA": {}, "HI": {}, "ID": {}, "IL": {}, "IN": {},
	"IA": {}, "KS": {}, "KY": {}, "LA": {}, "ME": {}, "MD": {}, "MA": {},
	"MI": {}, "MN": {}, "MS": {}, "MO": {}, "MT": {}, "NE": {}, "NV": {},
	"NH": {}, "NJ": {}, "NM": {}, "NY": {}, "NC": {}, "ND": {}, "OH": {},
	"OK": {}, "OR": {}, "PA": {}, "RI": {}, "SC": {}, "SD": {}, "TN": {},
	"TX": {}, "UT": {}, "VT": {}, "VA": {}, "WA": {}, "WV": {}, "WI": {},
	"WY": {}, "DC": {}, "PR": {}, "VI": {}, "GU": {}, "AS": {}, "MP": {},
}

// ResolveQuery validates a query and binds it to its listing URL. The
// returned query is normalized: state upper-cased, location trimmed,
// method defaulted to headless. Purely computational; the round trip
// listing URL -> {state, location} is lossless.
func ResolveQuery(q JurisdictionQuery) (ResolvedQuery, error) {
	state := strings.ToUpper(strings.TrimSpace(q.State))
	if _, ok := uspsStates[state]; !ok {
		return ResolvedQuery{}, fmt.Errorf("%w: unknown state %q", ErrInvalidQuery, q.State)
	}
	location := strings.TrimSpace(q.Location)
	if location == "" {
		return ResolvedQuery{}, fmt.Errorf("%w: location is empty", ErrInvalidQuery)
	}
	method := strings.ToLower(strings.TrimSpace(q.Method))
	switch method {
	case "", MethodHeadless, MethodStatic, MethodColly:
	default:
		return ResolvedQuery{}, fmt.Errorf("%w: unknown method %q", ErrInvalidQuery, q.Method)
	}
	if method == "" {
		method = MethodHeadless
	}

	listing := fmt.Sprintf("%s/%s/?location=%s",
		BaseListingURL, strings.ToLower(state), url.QueryEscape(location))
	return ResolvedQuery{
		Query:      JurisdictionQuery{State: state, Location: location, Method: method},
		ListingURL: listing,
	}, nil
}

// resolveHref makes href absolute against the site origin. Already
// absolute links pass through untouched.
func resolveHref(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return siteOrigin + href
}

// isDetailHref reports whether href points at a provider detail page.
func isDetailHref(href string) bool {
	if href == "" {
		return false
	}
	lower := strings.ToLower(href)
	return strings.Contains(lower, ".aspx") || strings.Contains(lower, taxonomySlug)
}
