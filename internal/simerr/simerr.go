// Package simerr defines the error kinds shared by the simulation packages.
//
// Callers wrap these with context using fmt.Errorf("...: %w", err) and test
// them with errors.Is.
package simerr

import "errors"

var (
	// ErrInvalidDuration is returned for a non-positive tick or step length.
	ErrInvalidDuration = errors.New("invalid duration")
	// ErrInvalidSchedule is returned for a timetable entry or clock setting
	// outside the time-of-day range.
	ErrInvalidSchedule = errors.New("invalid schedule")
	// ErrNotFound is returned for lookups of unknown vehicles, streets, lines
	// or route variants.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateID is returned when a vehicle id is already registered.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrInvalidInput is returned for malformed network, route or line data.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidTraffic is returned for a traffic-flow factor outside (0, 1].
	ErrInvalidTraffic = errors.New("invalid traffic flow")
	// ErrHalted is returned by an engine that stopped on a broken invariant.
	ErrHalted = errors.New("simulation halted")
)
