package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agencyatlas/npidb-crawler/internal/export"
	"github.com/agencyatlas/npidb-crawler/internal/store"
)

// newExportCmd creates the 'export' subcommand, which writes stored
// agencies to a CSV, JSON, or XLSX file.
func newExportCmd() *cobra.Command {
	var (
		format   string
		out      string
		state    string
		location string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Exports stored agencies to a file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			agencies, err := a.Store.GetAgencies(cmd.Context(), store.AgencyFilter{
				State:    state,
				Location: location,
			})
			if err != nil {
				return fmt.Errorf("load agencies: %w", err)
			}

			data, err := a.Exporter.Render(format, agencies)
			if err != nil {
				return fmt.Errorf("render export: %w", err)
			}

			path := out
			if path == "" {
				path = export.Filename(format, a.Clock.Now())
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}

			a.Logger.Info("export written",
				zap.String("path", path), zap.Int("agencies", len(agencies)))
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", export.FormatCSV, "output format: csv, json, or xlsx")
	cmd.Flags().StringVar(&out, "out", "", "output path (default agencies-<date>.<format>)")
	cmd.Flags().StringVar(&state, "state", "", "filter by USPS state code")
	cmd.Flags().StringVar(&location, "location", "", "filter by scraped location")
	return cmd
}
