package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agencyatlas/npidb-crawler/internal/scrape"
)

// newScrapeCmd creates the 'scrape' subcommand, which runs one
// jurisdiction to completion and prints the result as JSON.
func newScrapeCmd() *cobra.Command {
	var (
		state    string
		location string
		method   string
	)
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrapes one jurisdiction",
		Long: `Resolves a {state, location} query to its listing page, walks the
pagination, visits every agency detail page, and prints the assembled
records as JSON. Records are persisted to the configured store as they
are assembled.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			query := scrape.JurisdictionQuery{State: state, Location: location, Method: method}
			if _, err := scrape.ResolveQuery(query); err != nil {
				return err
			}

			res := a.Runner.RunJurisdiction(cmd.Context(), query)

			out, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			if res.Err != nil && len(res.Agencies) == 0 {
				return fmt.Errorf("scrape %s/%s: %w", query.State, query.Location, res.Err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "two-letter USPS state code (required)")
	cmd.Flags().StringVar(&location, "location", "", "city or county name (required)")
	cmd.Flags().StringVar(&method, "method", "", "session method: headless, static, or colly (default from config)")
	_ = cmd.MarkFlagRequired("state")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}
