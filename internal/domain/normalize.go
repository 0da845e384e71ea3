package domain

import (
	"fmt"
	"slices"
	"time"

	"gonum.org/v1/gonum/mat"
)

// DefaultLength is the sample count of a 96 hour back-trajectory including
// the release hour.
const DefaultLength = 97

// TrajectorySet holds M complete trajectories of L samples each as two L x M
// matrices. Column j of Lon and Lat is trajectory j, row 0 its oldest sample
// and row L-1 its receptor sample.
type TrajectorySet struct {
	Dates  []time.Time
	Lon    *mat.Dense
	Lat    *mat.Dense
	Length int

	// Samples keeps the sorted source samples of each trajectory, in column order.
	Samples [][]Sample

	// Excluded counts release groups dropped for having the wrong number of
	// samples or duplicate hour increments.
	Excluded int
}

// Len returns the number of trajectories M.
func (s *TrajectorySet) Len() int { return len(s.Dates) }

// Column returns the longitude and latitude series of trajectory j.
// The slices are freshly allocated.
func (s *TrajectorySet) Column(j int) (lon, lat []float64) {
	lon = mat.Col(nil, j, s.Lon)
	lat = mat.Col(nil, j, s.Lat)
	return lon, lat
}

// Normalize groups samples by release time and keeps the groups that form a
// complete trajectory of exactly length samples with distinct hour increments.
// Trajectories are ordered by first appearance of their release time, and the
// samples of each are sorted by hour increment ascending.
//
// If nothing survives, the returned error wraps ErrInsufficientData.
func Normalize(samples []Sample, length int) (*TrajectorySet, error) {
	if length < 2 {
		return nil, fmt.Errorf("trajectory length must be at least 2, got %d", length)
	}

	groups := make(map[int64][]Sample)
	var order []int64
	for _, s := range samples {
		key := s.Date.UnixNano()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], s)
	}

	set := &TrajectorySet{Length: length}
	kept := make([][]Sample, 0, len(order))
	for _, key := range order {
		g := groups[key]
		if len(g) != length {
			set.Excluded++
			continue
		}
		sorted := slices.Clone(g)
		slices.SortStableFunc(sorted, func(a, b Sample) int { return a.HourInc - b.HourInc })
		if hasDuplicateHours(sorted) {
			set.Excluded++
			continue
		}
		kept = append(kept, sorted)
	}

	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: 0 of %d trajectories have %d samples", ErrInsufficientData, len(order), length)
	}

	m := len(kept)
	set.Dates = make([]time.Time, m)
	set.Samples = kept
	set.Lon = mat.NewDense(length, m, nil)
	set.Lat = mat.NewDense(length, m, nil)
	for j, traj := range kept {
		set.Dates[j] = traj[0].Date
		for i, s := range traj {
			set.Lon.Set(i, j, s.Lon)
			set.Lat.Set(i, j, s.Lat)
		}
	}
	return set, nil
}

// hasDuplicateHours reports whether a sorted trajectory repeats an hour increment.
func hasDuplicateHours(sorted []Sample) bool {
	for i := 1; i < len(sorted); i++ {
		if sorted[i].HourInc == sorted[i-1].HourInc {
			return true
		}
	}
	return false
}
