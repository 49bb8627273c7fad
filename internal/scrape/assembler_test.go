package scrape

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssembleAgencyPrefersDetailFields(t *testing.T) {
	t.Parallel()

	stub := ResultStub{
		DetailURL:    "https://npidb.org/organizations/smith_123.aspx",
		ProviderName: "SMITH (LISTING)",
		NPI:          "1111111111",
	}
	det := DetailFields{
		NPI:             "1234567893",
		ProviderName:    "SMITH HOME CARE LLC",
		AgencyName:      "SMITH HOME CARE",
		Phone:           "(919) 555-0123",
		EnumerationDate: "05/21/2007",
		Address:         &Address{Street: "12 Oak St", City: "Raleigh", State: "NC", Zip: "27601"},
		Official:        &Official{Name: "JANE SMITH", Title: "OWNER"},
	}
	q := JurisdictionQuery{State: "NC", Location: "Raleigh", Method: MethodHeadless}

	agency := AssembleAgency(stub, det, q)
	require.Equal(t, "1234567893", agency.NPI)
	require.Equal(t, "SMITH HOME CARE LLC", agency.ProviderName)
	require.Equal(t, "SMITH HOME CARE", agency.AgencyName)
	require.Equal(t, "919-555-0123", agency.Phone)
	require.Equal(t, "2007-05-21", agency.EnumerationDate)
	require.Equal(t, stub.DetailURL, agency.DetailURL)
	require.Equal(t, "NC", agency.SourceState)
	require.Equal(t, "Raleigh", agency.SourceLocation)
	require.False(t, agency.Partial)
}

func TestAssembleAgencyFallsBackToStub(t *testing.T) {
	t.Parallel()

	stub := ResultStub{
		DetailURL:    "https://npidb.org/organizations/smith_123.aspx",
		ProviderName: "SMITH HOME CARE",
		NPI:          "1111111111",
	}
	agency := AssembleAgency(stub, DetailFields{}, JurisdictionQuery{State: "NC", Location: "Raleigh"})
	require.Equal(t, "1111111111", agency.NPI)
	require.Equal(t, "SMITH HOME CARE", agency.ProviderName)
	require.Nil(t, agency.Address)
	require.Nil(t, agency.Official)
}

func TestAssembleAgencyIsDeterministic(t *testing.T) {
	t.Parallel()

	stub := ResultStub{DetailURL: "https://npidb.org/organizations/a.aspx", NPI: "1234567893"}
	det := DetailFields{
		ProviderName: "CAROLINA CARE",
		Address:      &Address{City: "Durham", State: "NC"},
	}
	q := JurisdictionQuery{State: "NC", Location: "Durham"}

	first := AssembleAgency(stub, det, q)
	second := AssembleAgency(stub, det, q)
	require.Equal(t, first, second)

	// The assembled record owns copies of the detail pointers.
	det.Address.City = "Elsewhere"
	require.Equal(t, "Durham", first.Address.City)
}

func TestAssemblePartialAgency(t *testing.T) {
	t.Parallel()

	stub := ResultStub{
		DetailURL:    "https://npidb.org/organizations/b.aspx",
		ProviderName: "DESERT HEALTH",
		NPI:          "1114567890",
	}
	agency := AssemblePartialAgency(stub, JurisdictionQuery{State: "AZ", Location: "Phoenix"})
	require.True(t, agency.Partial)
	require.Equal(t, "1114567890", agency.NPI)
	require.Equal(t, "DESERT HEALTH", agency.ProviderName)
	require.Equal(t, stub.DetailURL, agency.DetailURL)
	require.Equal(t, "AZ", agency.SourceState)
	require.Empty(t, agency.Phone)
	require.Nil(t, agency.Address)
}

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "(919) 555-0123", want: "919-555-0123"},
		{in: "919.555.0123", want: "919-555-0123"},
		{in: "9195550123", want: "919-555-0123"},
		{in: "1-919-555-0123", want: "919-555-0123"},
		{in: "555-0123", want: "555-0123"},
		{in: "call the office", want: "call the office"},
		{in: "", want: ""},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, normalizePhone(tc.in), "input %q", tc.in)
	}
}

func TestNormalizeDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "05/21/2007", want: "2007-05-21"},
		{in: "5/2/2007", want: "2007-05-02"},
		{in: "2007-05-21", want: "2007-05-21"},
		{in: "May 2007", want: "May 2007"},
		{in: "", want: ""},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, normalizeDate(tc.in), "input %q", tc.in)
	}
}
