package cluster

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/trajectory-cluster/internal/distance"
	"github.com/couchcryptid/trajectory-cluster/internal/domain"
	"github.com/couchcryptid/trajectory-cluster/internal/pam"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var (
	winter = time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)
	summer = time.Date(2024, time.July, 10, 0, 0, 0, 0, time.UTC)
	spring = time.Date(2024, time.April, 10, 0, 0, 0, 0, time.UTC)
)

// track is a straight trajectory ending at (lon0, lat0) after moving
// (dLon, dLat) degrees every hour.
type track struct {
	lon0, lat0 float64
	dLon, dLat float64
}

// offsets returns eastward tracks ending at lon 0 on the given latitudes.
func offsets(lats ...float64) []track {
	out := make([]track, len(lats))
	for i, lat := range lats {
		out[i] = track{lon0: 0, lat0: lat, dLon: 0.5}
	}
	return out
}

// samplesOf releases one trajectory per track, six hours apart from start.
func samplesOf(start time.Time, length int, tracks ...track) []domain.Sample {
	var out []domain.Sample
	for i, tr := range tracks {
		date := start.Add(time.Duration(i) * 6 * time.Hour)
		for h := 0; h < length; h++ {
			out = append(out, domain.Sample{
				Date:    date,
				HourInc: -h,
				Lon:     tr.lon0 - float64(h)*tr.dLon,
				Lat:     tr.lat0 - float64(h)*tr.dLat,
			})
		}
	}
	return out
}

func setOf(t *testing.T, length int, tracks ...track) *domain.TrajectorySet {
	t.Helper()
	set, err := domain.Normalize(samplesOf(winter, length, tracks...), length)
	require.NoError(t, err)
	return set
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingEngine records how often the distance engine is invoked.
type countingEngine struct {
	inner *distance.Engine
	calls atomic.Int64
}

func (e *countingEngine) Compute(ctx context.Context, set *domain.TrajectorySet, metric distance.Metric) (*mat.SymDense, distance.Stats, error) {
	e.calls.Add(1)
	return e.inner.Compute(ctx, set, metric)
}

func newTestClusterer() (*Clusterer, *countingEngine) {
	engine := &countingEngine{inner: distance.NewEngine(2)}
	return New(engine, NewPartitioner(pam.Options{}), discardLogger()), engine
}

// labelsByDate maps each release time to its cluster label within one stratum.
func labelsByDate(samples []domain.LabeledSample, stratum string) map[time.Time]int {
	out := make(map[time.Time]int)
	for _, s := range samples {
		if s.Stratum == stratum {
			out[s.Date] = s.Cluster
		}
	}
	return out
}

// samePartition reports whether two labelings group the same items together,
// regardless of the label values used.
func samePartition(a, b map[time.Time]int) bool {
	if len(a) != len(b) {
		return false
	}
	fwd := make(map[int]int)
	rev := make(map[int]int)
	for k, la := range a {
		lb, ok := b[k]
		if !ok {
			return false
		}
		if x, seen := fwd[la]; seen && x != lb {
			return false
		}
		if x, seen := rev[lb]; seen && x != la {
			return false
		}
		fwd[la], rev[lb] = lb, la
	}
	return true
}
