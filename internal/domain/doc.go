// Package domain models HYSPLIT-style air-mass back-trajectories and the
// clustering vocabulary built on top of them.
//
// # Data Conventions
//
// A back-trajectory is released at a receptor at a given time and traced
// backwards for a fixed number of hours. Each sample carries:
//
//	date      release (origin) time of the trajectory, UTC
//	hour.inc  offset from the release time in hours: 0 at the receptor,
//	          negative further back in time (-1, -2, ... -96)
//	lat, lon  position in decimal degrees
//
// The canonical run uses a 96 hour look-back, so a complete trajectory has
// 97 samples (hour.inc 0 through -96). Trajectories with any other sample
// count are excluded from clustering; they are not padded or trimmed.
//
// # Sample Order
//
// After normalization the samples of every trajectory are sorted by hour.inc
// ascending: index 0 is the oldest position and index L-1 is the receptor.
// Movement between consecutive indices therefore runs forward in time, toward
// the receptor. See [Normalize].
//
// # Strata
//
// A stratum is a label computed from the release time only, e.g. "winter (DJF)"
// or "2024". Seasons follow the meteorological convention and flip with the
// hemisphere. See [NewStratifier].
//
// # Cluster Labels
//
// Cluster labels are integers in [1, k]. They carry no meaning beyond grouping
// and are only comparable within one clustering computation.
package domain
