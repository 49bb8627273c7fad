package scrape

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Listing row selectors, tried in order; the first that yields rows wins.
// The directory has shipped several markups over time.
var rowSelectors = []string{
	"table tbody tr",
	"table tr",
	"tbody tr",
	"[class*='agency']",
	"[class*='result']",
	".agency-row",
	".result-row",
	"tr",
}

// headerWords mark a leading row as a column header to skip.
var headerWords = []string{"name", "npi", "address", "provider"}

var (
	wsRE           = regexp.MustCompile(`\s+`)
	npiLabeledRE   = regexp.MustCompile(`(?i)NPI\s*#?\s*:?\s*(\d{10})`)
	npiNumberRE    = regexp.MustCompile(`(?i)NPI\s+Number\s*:?\s*(\d{10})`)
	npiBareRE      = regexp.MustCompile(`\b(\d{10})\b`)
	enumDateRE     = regexp.MustCompile(`(?i)Enumeration\s+Date\s*:?\s*([0-9/\-]+)`)
	enumeratedRE   = regexp.MustCompile(`(?i)Enumerated\s*:?\s*([0-9/\-]+)`)
	orgNameRE      = regexp.MustCompile(`(?i)Organization\s+Name\s*:?\s*([^\n]+)`)
	dbaNameRE      = regexp.MustCompile(`(?i)Doing\s+Business\s+As\s*:?\s*([^\n]+)`)
	addressLineRE  = regexp.MustCompile(`(?i)Address\s*:?\s*([^\n]+)`)
	locationLineRE = regexp.MustCompile(`(?i)Location\s*:?\s*([^\n]+)`)
	stateZipRE     = regexp.MustCompile(`\b([A-Z]{2})\s+(\d{5}(?:-\d{4})?)\b`)
	phoneLabeledRE = regexp.MustCompile(`(?i)(?:Tele)?phone\s*:?\s*([\(\)\d][\(\)\d\s\-\.]{6,})`)
	phoneBareRE    = regexp.MustCompile(`\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
	officialRE     = regexp.MustCompile(`(?i)Authorized\s+Official\s*:?\s*([^\n]+)`)
	contactRE      = regexp.MustCompile(`(?i)Contact\s+Person\s*:?\s*([^\n]+)`)
	npiTitleNoise  = regexp.MustCompile(`(?i)NPI\s*#?\s*\d+`)
)

// fieldMatcher extracts one raw field from a parsed page; empty string
// means no match. Cascades run in order and stop at the first hit.
type fieldMatcher func(doc *goquery.Document, text string) string

var npiMatchers = []fieldMatcher{
	regexCapture(npiLabeledRE),
	regexCapture(npiNumberRE),
	func(doc *goquery.Document, _ string) string {
		var out string
		doc.Find("[class*='npi'], [id*='npi']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if m := npiBareRE.FindStringSubmatch(s.Text()); m != nil {
				out = m[1]
				return false
			}
			return true
		})
		return out
	},
}

var providerNameMatchers = []fieldMatcher{
	selectionName("h1"),
	selectionName(".provider-name"),
	selectionName("[class*='name']"),
	func(doc *goquery.Document, _ string) string {
		return cleanProviderName(doc.Find("title").First().Text())
	},
}

var agencyNameMatchers = []fieldMatcher{
	regexCapture(orgNameRE),
	regexCapture(dbaNameRE),
}

var enumerationMatchers = []fieldMatcher{
	regexCapture(enumDateRE),
	regexCapture(enumeratedRE),
}

var phoneMatchers = []fieldMatcher{
	regexCapture(phoneLabeledRE),
	func(_ *goquery.Document, text string) string {
		return strings.TrimSpace(phoneBareRE.FindString(text))
	},
}

func firstMatch(doc *goquery.Document, text string, cascade []fieldMatcher) string {
	for _, m := range cascade {
		if v := m(doc, text); v != "" {
			return v
		}
	}
	return ""
}

func regexCapture(re *regexp.Regexp) fieldMatcher {
	return func(_ *goquery.Document, text string) string {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
		return ""
	}
}

func selectionName(selector string) fieldMatcher {
	return func(doc *goquery.Document, _ string) string {
		var out string
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if name := cleanProviderName(s.Text()); name != "" {
				out = name
				return false
			}
			return true
		})
		return out
	}
}

// cleanProviderName strips NPI noise and site suffixes from a candidate
// provider name. Titles on the directory look like
// "SMITH HOME CARE LLC; NPI #1234567890 - npidb.org".
func cleanProviderName(raw string) string {
	name := collapseSpace(raw)
	name = npiTitleNoise.ReplaceAllString(name, "")
	if i := strings.Index(name, ";"); i >= 0 {
		name = name[:i]
	}
	name = strings.Trim(name, " -|:")
	return collapseSpace(name)
}

// matchAddress applies the address cascade: a labeled Address/Location
// line split on commas, with the trailing segment scanned for a
// two-letter state and zip.
func matchAddress(_ *goquery.Document, text string) *Address {
	for _, re := range []*regexp.Regexp{addressLineRE, locationLineRE} {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if addr := parseAddressLine(m[1]); addr != nil {
			return addr
		}
	}
	return nil
}

func parseAddressLine(line string) *Address {
	line = collapseSpace(line)
	if line == "" {
		return nil
	}
	addr := &Address{}
	if m := stateZipRE.FindStringSubmatch(line); m != nil {
		addr.State, addr.Zip = m[1], m[2]
	}
	parts := strings.Split(line, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	switch {
	case len(parts) >= 3 && stateZipRE.MatchString(parts[len(parts)-1]):
		addr.Street = strings.Join(parts[:len(parts)-2], ", ")
		addr.City = parts[len(parts)-2]
	case len(parts) == 2:
		addr.Street = parts[0]
		city := stateZipRE.ReplaceAllString(parts[1], "")
		addr.City = strings.Trim(collapseSpace(city), " ,")
	default:
		addr.Street = stateZipRE.ReplaceAllString(line, "")
		addr.Street = strings.Trim(collapseSpace(addr.Street), " ,")
	}
	if addr.Street == "" && addr.City == "" && addr.State == "" {
		return nil
	}
	return addr
}

// matchOfficial applies the authorized-official cascade. A trailing
// ", Title" or " - Title" segment becomes the title.
func matchOfficial(_ *goquery.Document, text string) *Official {
	for _, re := range []*regexp.Regexp{officialRE, contactRE} {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if off := parseOfficialLine(m[1]); off != nil {
			return off
		}
	}
	return nil
}

func parseOfficialLine(line string) *Official {
	line = collapseSpace(line)
	if line == "" {
		return nil
	}
	name, title := line, ""
	if i := strings.Index(line, " - "); i >= 0 {
		name, title = line[:i], line[i+3:]
	} else if parts := strings.SplitN(line, ",", 2); len(parts) == 2 && strings.Count(line, ",") == 1 {
		name, title = parts[0], parts[1]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	return &Official{Name: name, Title: strings.TrimSpace(title)}
}

// blockSelector lists the elements flattenText treats as line breaks.
// Inline elements merge into their parent's line so labeled values like
// "Phone: 555-1234" survive markup splits.
const blockSelector = "h1, h2, h3, h4, h5, h6, p, li, dt, dd, tr, address, div"

// flattenText renders the document as one line per block element, the
// shape the labeled-line regexes expect.
func flattenText(doc *goquery.Document) string {
	var b strings.Builder
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		if s.ChildrenFiltered(blockSelector).Length() > 0 {
			return
		}
		if line := collapseSpace(s.Text()); line != "" {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	})
	if b.Len() == 0 {
		return collapseSpace(doc.Text())
	}
	return b.String()
}

func collapseSpace(s string) string {
	return strings.TrimSpace(wsRE.ReplaceAllString(s, " "))
}
