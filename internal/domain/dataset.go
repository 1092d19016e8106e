package domain

import "time"

// Dataset is an open gridded source dataset: one variable on a
// (time, latitude, longitude) grid for one period.
type Dataset interface {
	// Variable is the data variable name inside the file, e.g. "t2m".
	Variable() string
	Units() string
	LongName() string

	Latitudes() []float64
	// Longitudes are in the [0,360) convention.
	Longitudes() []float64
	Times() []time.Time
	TimeUnits() string

	// ReadPoint returns the full time series at one grid point, unpacked,
	// with missing values as NaN.
	ReadPoint(latIdx, lonIdx int) ([]float64, error)

	Close() error
}
