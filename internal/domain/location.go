package domain

import (
	"fmt"
	"time"
)

// Location is a named point from the city catalog.
// Longitude is stored in the catalog's (-180,180] convention.
type Location struct {
	Name        string  `json:"name"`
	CountryCode string  `json:"country_code"`
	Province    string  `json:"province,omitempty"`
	Population  float64 `json:"population,omitempty"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
}

// String renders "Name (CC)".
func (l Location) String() string {
	return fmt.Sprintf("%s (%s)", l.Name, l.CountryCode)
}

// Period is one (year, month) processing unit.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// NewPeriod validates and returns a Period.
func NewPeriod(year, month int) (Period, error) {
	p := Period{Year: year, Month: month}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// Validate reports whether the period names a real calendar month.
func (p Period) Validate() error {
	if p.Year < 1900 || p.Year > 9999 {
		return fmt.Errorf("invalid year %d", p.Year)
	}
	if p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("invalid month %d", p.Month)
	}
	return nil
}

// String renders the period as YYYY-MM.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Start returns midnight UTC on the first day of the period.
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// PeriodsInRange returns the periods for months first..last (inclusive) of year.
func PeriodsInRange(year, first, last int) ([]Period, error) {
	if first > last {
		return nil, fmt.Errorf("month range %d-%d is reversed", first, last)
	}
	periods := make([]Period, 0, last-first+1)
	for m := first; m <= last; m++ {
		p, err := NewPeriod(year, m)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, nil
}

// PeriodResult summarizes one processed period.
type PeriodResult struct {
	Period          Period    `json:"period"`
	Artifacts       []string  `json:"artifacts"`
	Skipped         int       `json:"skipped"`
	EmptySelections int       `json:"empty_selections"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
}

// Written returns the number of artifacts persisted for the period.
func (r PeriodResult) Written() int {
	return len(r.Artifacts)
}
