package http

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/era5-city-etl/internal/domain"
	"github.com/couchcryptid/era5-city-etl/internal/retrieval"
)

// SeriesService loads stored per-city series.
type SeriesService interface {
	Series(ctx context.Context, p domain.Period, name string) (domain.Series, retrieval.Resolution, error)
	YearSeries(ctx context.Context, year, first, last int, name string) (domain.Series, retrieval.Resolution, error)
}

type seriesResponse struct {
	Location   domain.Location `json:"location"`
	Year       int             `json:"year"`
	Month      int             `json:"month,omitempty"`
	ResolvedBy string          `json:"resolved_by"`
	DistanceM  float64         `json:"distance_m,omitempty"`
	TimeUnits  string          `json:"time_units"`
	Times      []time.Time     `json:"times"`
	Columns    []columnBody    `json:"columns"`
}

type columnBody struct {
	Name     string     `json:"name"`
	Units    string     `json:"units,omitempty"`
	LongName string     `json:"long_name,omitempty"`
	Values   []*float64 `json:"values"`
}

// handleSeries serves GET /v1/series?year=&month=&city=. Without month the
// whole year is returned.
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	city := q.Get("city")
	year, month, err := parsePeriodParams(q.Get("year"), q.Get("month"))
	if err == nil && city == "" {
		err = badRequest{msg: "city is required"}
	}
	if err != nil {
		s.respondError(w, err)
		return
	}

	var (
		series domain.Series
		res    retrieval.Resolution
	)
	if month == 0 {
		series, res, err = s.series.YearSeries(r.Context(), year, 1, 12, city)
	} else {
		series, res, err = s.series.Series(r.Context(), domain.Period{Year: year, Month: month}, city)
	}
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.metrics.SeriesRequests.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusOK, toResponse(series, res, year, month))
}

func parsePeriodParams(yearStr, monthStr string) (year, month int, err error) {
	if yearStr == "" {
		return 0, 0, badRequest{msg: "year is required"}
	}
	year, err = strconv.Atoi(yearStr)
	if err != nil {
		return 0, 0, badRequest{msg: fmt.Sprintf("invalid year %q", yearStr)}
	}
	if monthStr != "" {
		month, err = strconv.Atoi(monthStr)
		if err != nil {
			return 0, 0, badRequest{msg: fmt.Sprintf("invalid month %q", monthStr)}
		}
	}
	// month 0 stands for the whole year, so validate with a real month
	check := month
	if check == 0 {
		check = 1
	}
	if verr := (domain.Period{Year: year, Month: check}).Validate(); verr != nil {
		return 0, 0, badRequest{msg: verr.Error()}
	}
	return year, month, nil
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	switch {
	case isBadRequest(err):
		s.metrics.SeriesRequests.WithLabelValues("bad_request").Inc()
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		s.metrics.SeriesRequests.WithLabelValues("not_found").Inc()
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	default:
		s.metrics.SeriesRequests.WithLabelValues("error").Inc()
		s.logger.Error("series request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func toResponse(series domain.Series, res retrieval.Resolution, year, month int) seriesResponse {
	out := seriesResponse{
		Location:   series.Location,
		Year:       year,
		Month:      month,
		ResolvedBy: res.Method,
		DistanceM:  res.Distance,
		TimeUnits:  series.TimeUnits,
		Times:      series.Times,
		Columns:    make([]columnBody, 0, len(series.Columns)),
	}
	for _, c := range series.Columns {
		values := make([]*float64, len(c.Values))
		for i, v := range c.Values {
			// JSON has no NaN; missing values are null
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			values[i] = &v
		}
		out.Columns = append(out.Columns, columnBody{
			Name:     c.Name,
			Units:    c.Units,
			LongName: c.LongName,
			Values:   values,
		})
	}
	return out
}
