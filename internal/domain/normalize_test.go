package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRelease = time.Date(2024, time.April, 26, 12, 0, 0, 0, time.UTC)

// straightTrajectory returns n samples moving lonStep/latStep degrees per hour
// toward a receptor at (50, 0), in origin-first order.
func straightTrajectory(date time.Time, n int, lonStep, latStep float64) []Sample {
	out := make([]Sample, n)
	for i := range n {
		out[i] = Sample{
			Date:    date,
			HourInc: -i,
			Lat:     50 - float64(i)*latStep,
			Lon:     0 - float64(i)*lonStep,
		}
	}
	return out
}

func TestNormalize(t *testing.T) {
	t.Run("sorts oldest first", func(t *testing.T) {
		samples := straightTrajectory(testRelease, 5, 1, 0.5)

		set, err := Normalize(samples, 5)
		require.NoError(t, err)
		require.Equal(t, 1, set.Len())

		r, c := set.Lon.Dims()
		assert.Equal(t, 5, r)
		assert.Equal(t, 1, c)
		assert.Equal(t, -4.0, set.Lon.At(0, 0), "row 0 is the oldest sample")
		assert.Equal(t, 0.0, set.Lon.At(4, 0), "last row is the receptor")
		assert.Equal(t, 48.0, set.Lat.At(0, 0))
		assert.Equal(t, 50.0, set.Lat.At(4, 0))
		assert.Equal(t, -4, set.Samples[0][0].HourInc)
		assert.Equal(t, 0, set.Samples[0][4].HourInc)
	})

	t.Run("excludes short and long trajectories", func(t *testing.T) {
		var samples []Sample
		samples = append(samples, straightTrajectory(testRelease, 5, 1, 1)...)
		samples = append(samples, straightTrajectory(testRelease.Add(time.Hour), 4, 1, 1)...)
		samples = append(samples, straightTrajectory(testRelease.Add(2*time.Hour), 6, 1, 1)...)
		samples = append(samples, straightTrajectory(testRelease.Add(3*time.Hour), 5, 2, 1)...)

		set, err := Normalize(samples, 5)
		require.NoError(t, err)
		assert.Equal(t, 2, set.Len())
		assert.Equal(t, 2, set.Excluded)
		assert.Equal(t, []time.Time{testRelease, testRelease.Add(3 * time.Hour)}, set.Dates)

		_, c := set.Lat.Dims()
		assert.Equal(t, 2, c)
	})

	t.Run("excludes duplicate hour increments", func(t *testing.T) {
		samples := straightTrajectory(testRelease, 5, 1, 1)
		samples[3].HourInc = samples[2].HourInc
		samples = append(samples, straightTrajectory(testRelease.Add(time.Hour), 5, 1, 1)...)

		set, err := Normalize(samples, 5)
		require.NoError(t, err)
		assert.Equal(t, 1, set.Len())
		assert.Equal(t, 1, set.Excluded)
	})

	t.Run("keeps encounter order of interleaved input", func(t *testing.T) {
		a := straightTrajectory(testRelease.Add(5*time.Hour), 3, 1, 1)
		b := straightTrajectory(testRelease, 3, 1, 1)
		samples := []Sample{a[2], b[0], a[0], b[2], a[1], b[1]}

		set, err := Normalize(samples, 3)
		require.NoError(t, err)
		assert.Equal(t, []time.Time{testRelease.Add(5 * time.Hour), testRelease}, set.Dates)
	})

	t.Run("nothing survives", func(t *testing.T) {
		samples := straightTrajectory(testRelease, 4, 1, 1)
		_, err := Normalize(samples, DefaultLength)
		require.ErrorIs(t, err, ErrInsufficientData)
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := Normalize(nil, DefaultLength)
		require.ErrorIs(t, err, ErrInsufficientData)
	})

	t.Run("invalid length", func(t *testing.T) {
		_, err := Normalize(straightTrajectory(testRelease, 1, 0, 0), 1)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrInsufficientData)
	})
}

func TestTrajectorySet_Column(t *testing.T) {
	samples := append(
		straightTrajectory(testRelease, 3, 1, 0),
		straightTrajectory(testRelease.Add(time.Hour), 3, 0, 1)...,
	)
	set, err := Normalize(samples, 3)
	require.NoError(t, err)

	lon, lat := set.Column(1)
	assert.Equal(t, []float64{0, 0, 0}, lon)
	assert.Equal(t, []float64{48, 49, 50}, lat)
}

func TestStageError(t *testing.T) {
	err := &StageError{Stage: StagePartition, Stratum: "winter (DJF)", Err: ErrInvalidClusterCount}
	assert.Equal(t, `stratum "winter (DJF)": partition: invalid cluster count`, err.Error())
	assert.ErrorIs(t, err, ErrInvalidClusterCount)

	global := &StageError{Stage: StageDistance, Err: ErrInsufficientData}
	assert.Equal(t, "distance: insufficient data", global.Error())
}
