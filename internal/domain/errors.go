package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData is returned when no trajectory survives normalization.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvalidClusterCount is returned when k is outside [1, M].
	ErrInvalidClusterCount = errors.New("invalid cluster count")
)

// Stage names a step of a clustering computation.
type Stage string

const (
	StageNormalize Stage = "normalize"
	StageDistance  Stage = "distance"
	StagePartition Stage = "partition"
)

// StageError reports which stage of which stratum failed.
type StageError struct {
	Stage   Stage
	Stratum string
	Err     error
}

func (e *StageError) Error() string {
	if e.Stratum == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("stratum %q: %s: %v", e.Stratum, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
