// Package distance builds pairwise trajectory dissimilarity matrices.
//
// Two metrics are supported. Euclid sums the planar distance between the
// positions of two trajectories at every time step. Angle follows Sirois and
// Bottenheim (1995): it sums, over every step, the angle between the two
// trajectories' movement vectors, so it compares transport direction rather
// than position. Both operate on degrees of latitude and longitude; no
// great-circle geometry is involved.
package distance

import (
	"fmt"
	"math"
	"strings"
)

// Metric selects the pairwise dissimilarity function.
type Metric int

const (
	Euclid Metric = iota + 1
	Angle
)

// ParseMetric accepts "Euclid" or "Angle" case-insensitively.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "euclid":
		return Euclid, nil
	case "angle":
		return Angle, nil
	default:
		return 0, fmt.Errorf("unknown distance metric %q (want Euclid or Angle)", s)
	}
}

func (m Metric) String() string {
	switch m {
	case Euclid:
		return "Euclid"
	case Angle:
		return "Angle"
	default:
		return fmt.Sprintf("Metric(%d)", int(m))
	}
}

// MarshalText encodes m by name.
func (m Metric) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a metric name as accepted by ParseMetric.
func (m *Metric) UnmarshalText(b []byte) error {
	v, err := ParseMetric(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// pairFunc returns the dissimilarity of trajectories a and b, each given as
// equal-length longitude and latitude series ordered oldest first.
type pairFunc func(lonA, latA, lonB, latB []float64) float64

func (m Metric) pair() (pairFunc, error) {
	switch m {
	case Euclid:
		return euclid, nil
	case Angle:
		return angle, nil
	default:
		return nil, fmt.Errorf("unsupported metric %v", m)
	}
}

// euclid sums the planar distance between the two trajectories at each step.
func euclid(lonA, latA, lonB, latB []float64) float64 {
	var sum float64
	for t := range lonA {
		dx := wrapLon(lonA[t] - lonB[t])
		dy := latA[t] - latB[t]
		sum += math.Sqrt(dx*dx + dy*dy)
	}
	return sum
}

// angle sums the angle in radians between the movement vectors of the two
// trajectories over each step t-1 -> t. A step where either trajectory does
// not move has no direction and contributes nothing.
func angle(lonA, latA, lonB, latB []float64) float64 {
	var sum float64
	for t := 1; t < len(lonA); t++ {
		ax := wrapLon(lonA[t] - lonA[t-1])
		ay := latA[t] - latA[t-1]
		bx := wrapLon(lonB[t] - lonB[t-1])
		by := latB[t] - latB[t-1]
		if (ax == 0 && ay == 0) || (bx == 0 && by == 0) {
			continue
		}
		// atan2(|a x b|, a . b) stays accurate near 0 and pi where acos does not.
		sum += math.Atan2(math.Abs(ax*by-ay*bx), ax*bx+ay*by)
	}
	return sum
}

// wrapLon maps a longitude difference into [-180, 180).
func wrapLon(d float64) float64 {
	switch {
	case d >= 180:
		return d - 360
	case d < -180:
		return d + 360
	default:
		return d
	}
}
