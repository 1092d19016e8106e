package domain

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is matching. The typed errors below carry context and
// report true for their sentinel.
var (
	ErrMissingSource  = errors.New("missing source dataset")
	ErrInvalidRoot    = errors.New("invalid storage root")
	ErrNotFound       = errors.New("not found")
	ErrEmptySelection = errors.New("empty grid selection")
)

// MissingSourceError means a required source dataset for a period does not
// exist. It fails the period, not the run.
type MissingSourceError struct {
	Period Period
	ID     string
	Err    error
}

func (e *MissingSourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("period %s: source %s does not exist: %v", e.Period, e.ID, e.Err)
	}
	return fmt.Sprintf("period %s: source %s does not exist", e.Period, e.ID)
}

func (e *MissingSourceError) Is(target error) bool { return target == ErrMissingSource }

func (e *MissingSourceError) Unwrap() error { return e.Err }

// InvalidRootError means a storage root string could not be parsed.
type InvalidRootError struct {
	Root   string
	Reason string
}

func (e *InvalidRootError) Error() string {
	return fmt.Sprintf("invalid storage root %q: %s", e.Root, e.Reason)
}

func (e *InvalidRootError) Is(target error) bool { return target == ErrInvalidRoot }

// NotFoundError means a named location or artifact could not be resolved.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// EmptySelectionError means the grid lookup for a location produced no points.
type EmptySelectionError struct {
	Lat float64
	Lon float64
	Dim string
}

func (e *EmptySelectionError) Error() string {
	return fmt.Sprintf("empty %s selection at lat=%.4f lon=%.4f", e.Dim, e.Lat, e.Lon)
}

func (e *EmptySelectionError) Is(target error) bool { return target == ErrEmptySelection }
