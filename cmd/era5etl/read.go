package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/sfomuseum/go-csvdict"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/era5-city-etl/internal/domain"
)

func newReadCmd(a *app) *cobra.Command {
	var (
		year, month int
		city        string
		format      string
	)
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Print the stored series for a city",
		Example: `  era5etl read --year 2017 --month 6 --city Paris
  era5etl read --year 2017 --city "New York" --format json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			cat, err := a.loadCatalog()
			if err != nil {
				return err
			}
			svc := a.newRetrieval(store, cat)

			var series domain.Series
			if month == 0 {
				series, _, err = svc.YearSeries(ctx, year, 1, 12, city)
			} else {
				series, _, err = svc.Series(ctx, domain.Period{Year: year, Month: month}, city)
			}
			if err != nil {
				return err
			}

			switch format {
			case "csv":
				return writeSeriesCSV(cmd.OutOrStdout(), series)
			case "json":
				return writeSeriesJSON(cmd.OutOrStdout(), series)
			}
			return fmt.Errorf("unknown --format %q", format)
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "year")
	cmd.Flags().IntVar(&month, "month", 0, "month (omit for the whole year)")
	cmd.Flags().StringVar(&city, "city", "", "city name")
	cmd.Flags().StringVar(&format, "format", "csv", "csv or json")
	_ = cmd.MarkFlagRequired("year")
	_ = cmd.MarkFlagRequired("city")
	return cmd
}

// writeSeriesCSV writes one row per timestamp; missing values are empty.
func writeSeriesCSV(w io.Writer, s domain.Series) error {
	fieldnames := []string{"time"}
	for _, c := range s.Columns {
		fieldnames = append(fieldnames, c.Name)
	}
	wr, err := csvdict.NewWriter(w, fieldnames)
	if err != nil {
		return err
	}
	wr.WriteHeader()
	for i, t := range s.Times {
		row := map[string]string{"time": t.UTC().Format(time.RFC3339)}
		for _, c := range s.Columns {
			row[c.Name] = ""
			if i < len(c.Values) && !math.IsNaN(c.Values[i]) {
				row[c.Name] = strconv.FormatFloat(c.Values[i], 'g', -1, 32)
			}
		}
		if err := wr.WriteRow(row); err != nil {
			return err
		}
	}
	wr.Flush()
	return nil
}

func writeSeriesJSON(w io.Writer, s domain.Series) error {
	rows := make([]map[string]any, len(s.Times))
	for i, t := range s.Times {
		row := map[string]any{"time": t.UTC()}
		for _, c := range s.Columns {
			var v any
			if i < len(c.Values) && !math.IsNaN(c.Values[i]) {
				v = c.Values[i]
			}
			row[c.Name] = v
		}
		rows[i] = row
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"location":   s.Location,
		"time_units": s.TimeUnits,
		"columns":    s.Columns,
		"rows":       rows,
	})
}
