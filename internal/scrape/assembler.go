package scrape

import (
	"strings"
	"time"
)

// AssembleAgency builds the final record from a listing stub and its
// detail fields. Pure and deterministic: equal inputs give equal
// output. Detail-page values win over stub values; the stub's detail
// URL is always carried through.
func AssembleAgency(stub ResultStub, det DetailFields, q JurisdictionQuery) Agency {
	agency := Agency{
		NPI:             coalesce(det.NPI, stub.NPI),
		ProviderName:    coalesce(det.ProviderName, stub.ProviderName),
		AgencyName:      det.AgencyName,
		Phone:           normalizePhone(det.Phone),
		EnumerationDate: normalizeDate(det.EnumerationDate),
		DetailURL:       stub.DetailURL,
		SourceState:     q.State,
		SourceLocation:  q.Location,
	}
	if det.Address != nil {
		addr := *det.Address
		agency.Address = &addr
	}
	if det.Official != nil {
		off := *det.Official
		agency.Official = &off
	}
	return agency
}

// AssemblePartialAgency builds a record from the stub alone, used when
// the detail visit failed. Partial records keep the run useful without
// pretending the detail fields exist.
func AssemblePartialAgency(stub ResultStub, q JurisdictionQuery) Agency {
	return Agency{
		NPI:            stub.NPI,
		ProviderName:   stub.ProviderName,
		DetailURL:      stub.DetailURL,
		SourceState:    q.State,
		SourceLocation: q.Location,
		Partial:        true,
	}
}

func coalesce(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// normalizePhone formats ten-digit numbers as XXX-XXX-XXXX, drops a
// leading country 1 from eleven digits, and passes anything else
// through untouched.
func normalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	var digits []byte
	for i := 0; i < len(raw); i++ {
		if raw[i] >= '0' && raw[i] <= '9' {
			digits = append(digits, raw[i])
		}
	}
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return raw
	}
	return string(digits[0:3]) + "-" + string(digits[3:6]) + "-" + string(digits[6:10])
}

var dateLayouts = []string{"01/02/2006", "1/2/2006", "2006-01-02"}

// normalizeDate emits ISO dates for the formats the directory uses and
// passes unrecognized values through raw.
func normalizeDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return raw
}
