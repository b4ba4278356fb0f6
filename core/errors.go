package core

import "errors"

var (
	// ErrEmptyTrack is returned when a track or chain has no samples.
	ErrEmptyTrack = errors.New("track has no samples")
	// ErrNonIncreasing is returned when sample times are not strictly increasing.
	ErrNonIncreasing = errors.New("sample times are not strictly increasing")
	// ErrInvalidDegree is returned for smoothing degrees outside 1..MaxSmoothDegree.
	ErrInvalidDegree = errors.New("interpolation degree out of range")
	// ErrUnknownPhase is returned when a phase name is not in the table.
	ErrUnknownPhase = errors.New("unknown phase")
	// ErrInvalidDuration is returned for non-positive phase or segment durations.
	ErrInvalidDuration = errors.New("duration must be positive")
)
