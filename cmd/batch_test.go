package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadJurisdictionsCSV(t *testing.T) {
	input := strings.Join([]string{
		"state,location",
		"NC,Raleigh",
		"",
		"AZ, Maricopa County",
		"nc,Durham",
	}, "\n")

	queries, err := readJurisdictionsCSV(strings.NewReader(input), "static")
	require.NoError(t, err)
	require.Len(t, queries, 3)
	require.Equal(t, "NC", queries[0].State)
	require.Equal(t, "Raleigh", queries[0].Location)
	require.Equal(t, "Maricopa County", queries[1].Location)
	require.Equal(t, "nc", queries[2].State)
	for _, q := range queries {
		require.Equal(t, "static", q.Method)
	}
}

func TestReadJurisdictionsCSVErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "missing location column", input: "NC"},
		{name: "empty location", input: "NC,"},
		{name: "header only", input: "state,location"},
		{name: "empty file", input: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := readJurisdictionsCSV(strings.NewReader(tc.input), "")
			require.Error(t, err)
		})
	}
}
