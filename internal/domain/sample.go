package domain

import (
	"context"
	"time"
)

// Sample is one position of a back-trajectory.
type Sample struct {
	Date    time.Time `json:"date"`
	HourInc int       `json:"hour_inc"`
	Lat     float64   `json:"lat"`
	Lon     float64   `json:"lon"`
}

// LabeledSample is a Sample annotated with the stratum it was reported under
// and the cluster its trajectory was assigned to.
type LabeledSample struct {
	Sample
	Stratum string `json:"stratum"`
	Cluster int    `json:"cluster"`
}

// SampleBatch is a set of raw samples read from a source. Commit, when set,
// acknowledges the batch upstream once its results have been loaded.
type SampleBatch struct {
	Samples []Sample
	Skipped int
	Commit  func(ctx context.Context) error
}
