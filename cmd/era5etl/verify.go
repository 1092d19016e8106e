package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/era5-city-etl/internal/adapter/netcdf"
	"github.com/couchcryptid/era5-city-etl/internal/catalog"
	"github.com/couchcryptid/era5-city-etl/internal/domain"
	"github.com/couchcryptid/era5-city-etl/internal/naming"
	"github.com/couchcryptid/era5-city-etl/internal/storage"
)

// phase tracks pass/fail for a verification phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func newVerifyCmd(a *app) *cobra.Command {
	var year, month int
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the artifacts of a period for integrity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := domain.NewPeriod(year, month)
			if err != nil {
				return err
			}
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

			var recorded []string
			manifest, err := a.openManifest()
			if err != nil {
				return err
			}
			if manifest != nil {
				defer manifest.Close()
				if recorded, err = manifest.Artifacts(ctx, p); err != nil {
					return err
				}
			}

			phases := verifyPeriod(ctx, store, cat, p, recorded, manifest != nil)
			return report(cmd.OutOrStdout(), p, phases)
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "year")
	cmd.Flags().IntVar(&month, "month", 0, "month")
	_ = cmd.MarkFlagRequired("year")
	_ = cmd.MarkFlagRequired("month")
	return cmd
}

// verifyPeriod checks naming, artifact contents, catalog membership and,
// when checkManifest is set, agreement with the recorded artifact keys.
func verifyPeriod(ctx context.Context, store storage.Store, cat *catalog.Catalog, p domain.Period, recorded []string, checkManifest bool) []*phase {
	names := &phase{name: "naming"}
	contents := &phase{name: "artifacts"}
	membership := &phase{name: "catalog"}
	phases := []*phase{names, contents, membership}

	container := naming.OutputContainer(p.Year)
	var keys []string
	ok, err := store.ContainerExists(ctx, container)
	if err != nil {
		names.errorf("check %s: %v", container, err)
		return phases
	}
	if ok {
		if keys, err = store.List(ctx, container); err != nil {
			names.errorf("list %s: %v", container, err)
			return phases
		}
	}

	prefix := fmt.Sprintf("%s/%s-", container, p)
	codec := netcdf.NewCodec(store)
	var found []string
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		id, err := naming.ParseOutputID(strings.TrimPrefix(key, container+"/"))
		if err != nil {
			names.errorf("%s: %v", key, err)
			continue
		}
		found = append(found, key)

		s, err := codec.ReadArtifact(ctx, key)
		if err != nil {
			contents.errorf("%s: %v", key, err)
			continue
		}
		checkSeries(contents, key, s, p, id)

		if _, err := cat.Find(s.Location.Name, s.Location.CountryCode); err != nil {
			membership.errorf("%s: %s not in catalog", key, s.Location)
		}
	}
	if len(found) == 0 {
		contents.errorf("no artifacts for %s", p)
	}

	if checkManifest {
		m := &phase{name: "manifest"}
		diffKeys(m, recorded, found)
		phases = append(phases, m)
	}
	return phases
}

func checkSeries(ph *phase, key string, s domain.Series, p domain.Period, id naming.OutputKey) {
	if naming.Normalize(s.Location.Name) != id.Name || naming.Normalize(s.Location.CountryCode) != id.CountryCode {
		ph.errorf("%s: location %s does not match file name", key, s.Location)
	}
	if len(s.Times) == 0 {
		ph.errorf("%s: no time steps", key)
		return
	}
	start, end := p.Start(), p.Start().AddDate(0, 1, 0)
	for _, t := range s.Times {
		if t.Before(start) || !t.Before(end) {
			ph.errorf("%s: time %s outside %s", key, t.Format("2006-01-02T15"), p)
			break
		}
	}
	if len(s.Columns) == 0 {
		ph.errorf("%s: no variables", key)
	}
	for _, c := range s.Columns {
		if len(c.Values) != len(s.Times) {
			ph.errorf("%s: %s has %d values for %d times", key, c.Name, len(c.Values), len(s.Times))
		}
	}
}

func diffKeys(ph *phase, recorded, found []string) {
	in := func(list []string) map[string]bool {
		m := make(map[string]bool, len(list))
		for _, k := range list {
			m[k] = true
		}
		return m
	}
	rec, got := in(recorded), in(found)
	var missing, extra []string
	for k := range rec {
		if !got[k] {
			missing = append(missing, k)
		}
	}
	for k := range got {
		if !rec[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)
	for _, k := range missing {
		ph.errorf("recorded but not stored: %s", k)
	}
	for _, k := range extra {
		ph.errorf("stored but not recorded: %s", k)
	}
}

var errVerifyFailed = errors.New("verification failed")

func report(w io.Writer, p domain.Period, phases []*phase) error {
	failed := false
	for _, ph := range phases {
		if ph.passed() {
			fmt.Fprintf(w, "PASS %s %s\n", p, ph.name)
			continue
		}
		failed = true
		fmt.Fprintf(w, "FAIL %s %s (%d)\n", p, ph.name, len(ph.errors))
		for _, e := range ph.errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}
	if failed {
		return errVerifyFailed
	}
	return nil
}
