package cmd

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agencyatlas/npidb-crawler/internal/scrape"
)

// newBatchCmd creates the 'batch' subcommand, which scrapes an ordered
// list of jurisdictions read from a CSV file.
func newBatchCmd() *cobra.Command {
	var (
		file    string
		method  string
		workers int
		pace    int
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Scrapes a CSV of jurisdictions",
		Long: `Reads state,location rows from a CSV file and scrapes each
jurisdiction. Results come back in file order; a failure in one row
never disturbs its neighbors. The full result set is printed as JSON
when the batch finishes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open batch file: %w", err)
			}
			defer f.Close()

			queries, err := readJurisdictionsCSV(f, method)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}

			orch := a.Orchestrator
			if workers > 0 || pace > 0 {
				cfg := scrape.BatchConfig{
					Workers:       a.Config.Batch.Workers,
					PacePerMinute: a.Config.Batch.PacePerMinute,
				}
				if workers > 0 {
					cfg.Workers = workers
				}
				if pace > 0 {
					cfg.PacePerMinute = pace
				}
				orch = scrape.NewOrchestrator(a.Runner, cfg, a.Logger)
			}

			a.Logger.Info("batch started",
				zap.Int("jurisdictions", len(queries)), zap.String("file", file))
			results, runErr := orch.Run(cmd.Context(), queries)

			var succeeded, failed int
			for _, res := range results {
				if res.Err != nil && len(res.Agencies) == 0 {
					failed++
				} else {
					succeeded++
				}
			}
			a.Logger.Info("batch finished",
				zap.Int("succeeded", succeeded), zap.Int("failed", failed))

			out, err := json.MarshalIndent(results, "", "  ")
			if err != nil {
				return fmt.Errorf("encode results: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			if runErr != nil {
				return fmt.Errorf("batch aborted: %w", runErr)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "CSV file of state,location rows (required)")
	cmd.Flags().StringVar(&method, "method", "", "session method applied to every row (default from config)")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent jurisdiction workers (default from config)")
	cmd.Flags().IntVar(&pace, "pace", 0, "jurisdiction starts per minute (default from config)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// readJurisdictionsCSV parses state,location rows. A leading header row
// is skipped; blank rows are ignored.
func readJurisdictionsCSV(r io.Reader, method string) ([]scrape.JurisdictionQuery, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	var queries []scrape.JurisdictionQuery
	for i, row := range rows {
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		if len(row) < 2 {
			return nil, fmt.Errorf("row %d: want state,location", i+1)
		}
		state := strings.TrimSpace(row[0])
		location := strings.TrimSpace(row[1])
		if i == 0 && strings.EqualFold(state, "state") {
			continue
		}
		if state == "" || location == "" {
			return nil, fmt.Errorf("row %d: empty state or location", i+1)
		}
		queries = append(queries, scrape.JurisdictionQuery{
			State:    state,
			Location: location,
			Method:   method,
		})
	}
	if len(queries) == 0 {
		return nil, errors.New("no jurisdictions in file")
	}
	return queries, nil
}
