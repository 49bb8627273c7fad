package scrape

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveQueryNormalizes(t *testing.T) {
	t.Parallel()

	resolved, err := ResolveQuery(JurisdictionQuery{State: " nc ", Location: "  Raleigh "})
	require.NoError(t, err)
	require.Equal(t, "NC", resolved.Query.State)
	require.Equal(t, "Raleigh", resolved.Query.Location)
	require.Equal(t, MethodHeadless, resolved.Query.Method)
	require.Equal(t,
		"https://npidb.org/organizations/agencies/home-health_251e00000x/nc/?location=Raleigh",
		resolved.ListingURL)
}

func TestResolveQueryEscapesLocation(t *testing.T) {
	t.Parallel()

	resolved, err := ResolveQuery(JurisdictionQuery{State: "AZ", Location: "Maricopa County", Method: "static"})
	require.NoError(t, err)
	require.Equal(t, "static", resolved.Query.Method)
	require.Contains(t, resolved.ListingURL, "/az/?location=Maricopa+County")
}

func TestResolveQueryRejectsBadInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query JurisdictionQuery
	}{
		{name: "unknown state", query: JurisdictionQuery{State: "XX", Location: "Nowhere"}},
		{name: "empty state", query: JurisdictionQuery{Location: "Raleigh"}},
		{name: "empty location", query: JurisdictionQuery{State: "NC"}},
		{name: "whitespace location", query: JurisdictionQuery{State: "NC", Location: "   "}},
		{name: "unknown method", query: JurisdictionQuery{State: "NC", Location: "Raleigh", Method: "carrier-pigeon"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ResolveQuery(tc.query)
			require.ErrorIs(t, err, ErrInvalidQuery)
		})
	}
}

func TestResolveQueryAcceptsTerritories(t *testing.T) {
	t.Parallel()

	for _, state := range []string{"DC", "PR", "VI", "GU"} {
		_, err := ResolveQuery(JurisdictionQuery{State: state, Location: "Anywhere"})
		require.NoError(t, err, "state %s", state)
	}
}

func TestResolveHref(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "https://npidb.org/organizations/x.aspx", want: "https://npidb.org/organizations/x.aspx"},
		{in: "/organizations/x.aspx", want: "https://npidb.org/organizations/x.aspx"},
		{in: "organizations/x.aspx", want: "https://npidb.org/organizations/x.aspx"},
		{in: "//npidb.org/organizations/x.aspx", want: "https://npidb.org/organizations/x.aspx"},
		{in: "  ", want: ""},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, resolveHref(tc.in), "input %q", tc.in)
	}
}

func TestIsDetailHref(t *testing.T) {
	t.Parallel()

	require.True(t, isDetailHref("/organizations/smith-home-care_123.aspx"))
	require.True(t, isDetailHref("/organizations/agencies/home-health_251e00000x/smith"))
	require.False(t, isDetailHref("/about"))
	require.False(t, isDetailHref(""))
}
