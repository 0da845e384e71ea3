package cluster

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/trajectory-cluster/internal/distance"
	"github.com/couchcryptid/trajectory-cluster/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions(k, length int) Options {
	opts := DefaultOptions()
	opts.K = k
	opts.Length = length
	return opts
}

func TestCluster_NearIdenticalTrajectoriesShareCluster(t *testing.T) {
	c, _ := newTestClusterer()
	samples := samplesOf(winter, domain.DefaultLength, offsets(10, 10.005, 16)...)

	res, err := c.Cluster(context.Background(), samples, testOptions(2, domain.DefaultLength))
	require.NoError(t, err)
	require.NoError(t, res.Err())

	labels := labelsByDate(res.Samples, domain.DefaultStratum)
	require.Len(t, labels, 3)
	a, b, divergent := winter, winter.Add(6*time.Hour), winter.Add(12*time.Hour)
	assert.Equal(t, labels[a], labels[b])
	assert.NotEqual(t, labels[a], labels[divergent])
	assert.Len(t, res.Samples, 3*domain.DefaultLength)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "Euclid", res.Metric)
}

func TestCluster_AngleGroupsByDirection(t *testing.T) {
	c, _ := newTestClusterer()
	samples := samplesOf(winter, 5,
		track{lon0: 0, lat0: 50, dLon: 0.5},
		track{lon0: 20, lat0: 30, dLon: 1.5},
		track{lon0: 0, lat0: 50, dLat: 0.5},
	)
	opts := testOptions(2, 5)
	opts.Metric = distance.Angle

	res, err := c.Cluster(context.Background(), samples, opts)
	require.NoError(t, err)

	labels := labelsByDate(res.Samples, domain.DefaultStratum)
	assert.Equal(t, labels[winter], labels[winter.Add(6*time.Hour)])
	assert.NotEqual(t, labels[winter], labels[winter.Add(12*time.Hour)])
}

func TestCluster_InvalidClusterCountSkipsDistance(t *testing.T) {
	samples := samplesOf(winter, 5, offsets(1, 2, 3)...)

	t.Run("k=0", func(t *testing.T) {
		c, engine := newTestClusterer()
		_, err := c.Cluster(context.Background(), samples, testOptions(0, 5))
		require.ErrorIs(t, err, domain.ErrInvalidClusterCount)
		assert.Zero(t, engine.calls.Load())
	})

	t.Run("k=M+1 per stratum", func(t *testing.T) {
		c, engine := newTestClusterer()
		res, err := c.Cluster(context.Background(), samples, testOptions(4, 5))
		require.NoError(t, err)
		require.ErrorIs(t, res.Err(), domain.ErrInvalidClusterCount)
		assert.Empty(t, res.Samples)
		assert.Zero(t, engine.calls.Load())

		var stageErr *domain.StageError
		require.ErrorAs(t, res.Err(), &stageErr)
		assert.Equal(t, domain.StagePartition, stageErr.Stage)
	})

	t.Run("k=M+1 split after", func(t *testing.T) {
		c, engine := newTestClusterer()
		opts := testOptions(4, 5)
		opts.SplitAfter = true
		_, err := c.Cluster(context.Background(), samples, opts)
		require.ErrorIs(t, err, domain.ErrInvalidClusterCount)
		assert.Zero(t, engine.calls.Load())
	})
}

func TestCluster_KEqualsM(t *testing.T) {
	c, _ := newTestClusterer()
	samples := samplesOf(winter, 5, offsets(1, 2, 3, 4)...)

	res, err := c.Cluster(context.Background(), samples, testOptions(4, 5))
	require.NoError(t, err)

	labels := labelsByDate(res.Samples, domain.DefaultStratum)
	seen := map[int]bool{}
	for _, l := range labels {
		seen[l] = true
	}
	assert.Len(t, seen, 4, "every trajectory is its own cluster")
}

func TestCluster_KEqualsOne(t *testing.T) {
	c, _ := newTestClusterer()
	samples := samplesOf(winter, 5, offsets(1, 20, 40)...)

	res, err := c.Cluster(context.Background(), samples, testOptions(1, 5))
	require.NoError(t, err)
	for _, s := range res.Samples {
		assert.Equal(t, 1, s.Cluster)
	}
}

func TestCluster_ExcludesIncompleteTrajectories(t *testing.T) {
	c, _ := newTestClusterer()
	samples := samplesOf(winter, domain.DefaultLength, offsets(1, 2, 30)...)
	short := samplesOf(summer, domain.DefaultLength-1, offsets(1)...)
	long := samplesOf(spring, domain.DefaultLength+1, offsets(1)...)
	samples = append(append(samples, short...), long...)

	res, err := c.Cluster(context.Background(), samples, testOptions(2, domain.DefaultLength))
	require.NoError(t, err)

	require.Len(t, res.Strata, 1)
	assert.Equal(t, 3, res.Strata[0].Trajectories)
	assert.Equal(t, 2, res.Strata[0].Excluded)
	for _, s := range res.Samples {
		assert.NotEqual(t, summer, s.Date)
		assert.NotEqual(t, spring, s.Date)
	}
}

func TestCluster_OutputKeepsTrajectoriesContiguous(t *testing.T) {
	c, _ := newTestClusterer()
	samples := samplesOf(winter, 6, offsets(1, 2, 30, 31)...)
	// Shuffle the input order; the output must still group each trajectory.
	for i, j := 0, len(samples)-1; i < j; i, j = i+2, j-3 {
		samples[i], samples[j] = samples[j], samples[i]
	}

	res, err := c.Cluster(context.Background(), samples, testOptions(2, 6))
	require.NoError(t, err)
	require.Len(t, res.Samples, 4*6)

	for start := 0; start < len(res.Samples); start += 6 {
		block := res.Samples[start : start+6]
		for i, s := range block {
			assert.Equal(t, block[0].Date, s.Date)
			assert.Equal(t, block[0].Cluster, s.Cluster)
			assert.Equal(t, i-5, s.HourInc, "oldest first")
		}
	}
}

func TestCluster_SplitAfterVersusIndependent(t *testing.T) {
	// Two strata far apart in longitude, each holding two tight pairs.
	pairs := []track{
		{lon0: 0, lat0: 10, dLon: 0.5},
		{lon0: 0, lat0: 10, dLon: 0.5},
		{lon0: 0, lat0: 12, dLon: 0.5},
		{lon0: 0, lat0: 12, dLon: 0.5},
	}
	east := make([]track, len(pairs))
	for i, p := range pairs {
		p.lon0 = 100
		east[i] = p
	}
	samples := append(samplesOf(winter, 5, pairs...), samplesOf(summer, 5, east...)...)

	opts := testOptions(2, 5)
	opts.Stratification = domain.StratifySeason

	c, _ := newTestClusterer()
	independent, err := c.Cluster(context.Background(), samples, opts)
	require.NoError(t, err)
	require.NoError(t, independent.Err())
	require.Len(t, independent.Strata, 2)

	opts.SplitAfter = true
	global, err := c.Cluster(context.Background(), samples, opts)
	require.NoError(t, err)
	require.Len(t, global.Strata, 1)

	const w, s = "winter (DJF)", "summer (JJA)"

	// Independent: each stratum is split into its own two pairs.
	indW := labelsByDate(independent.Samples, w)
	assert.Equal(t, indW[winter], indW[winter.Add(6*time.Hour)])
	assert.NotEqual(t, indW[winter], indW[winter.Add(12*time.Hour)])

	// Split after: one global partition, winter and summer apart.
	gW := labelsByDate(global.Samples, w)
	gS := labelsByDate(global.Samples, s)
	require.Len(t, gW, 4)
	require.Len(t, gS, 4)
	for _, l := range gW {
		assert.Equal(t, gW[winter], l)
	}
	for _, l := range gS {
		assert.Equal(t, gS[summer], l)
	}
	assert.NotEqual(t, gW[winter], gS[summer])

	assert.False(t, samePartition(indW, gW), "the two modes must group winter differently")
}

func TestCluster_FailingStratumDoesNotAbortSiblings(t *testing.T) {
	c, _ := newTestClusterer()
	samples := samplesOf(winter, 5, offsets(1, 2, 30)...)
	samples = append(samples, samplesOf(summer, 5, offsets(1)...)...)  // one trajectory, k=2
	samples = append(samples, samplesOf(spring, 4, offsets(1, 2)...)...) // all incomplete

	opts := testOptions(2, 5)
	opts.Stratification = domain.StratifySeason

	res, err := c.Cluster(context.Background(), samples, opts)
	require.NoError(t, err)
	require.Len(t, res.Strata, 3)

	assert.NoError(t, res.Strata[0].Err)
	assert.Equal(t, "winter (DJF)", res.Strata[0].Stratum)
	assert.ErrorIs(t, res.Strata[1].Err, domain.ErrInvalidClusterCount)
	assert.Contains(t, res.Strata[1].Error, "summer (JJA)")
	assert.ErrorIs(t, res.Strata[2].Err, domain.ErrInsufficientData)

	var stageErr *domain.StageError
	require.ErrorAs(t, res.Strata[2].Err, &stageErr)
	assert.Equal(t, domain.StageNormalize, stageErr.Stage)
	assert.Equal(t, "spring (MAM)", stageErr.Stratum)

	assert.Len(t, res.Samples, 3*5, "only the winter stratum is labeled")
	assert.Equal(t, 3, res.Trajectories())
	assert.True(t, errors.Is(res.Err(), domain.ErrInvalidClusterCount))
	assert.True(t, errors.Is(res.Err(), domain.ErrInsufficientData))
}

func TestCluster_SplitAfterFailureIsFatal(t *testing.T) {
	c, _ := newTestClusterer()
	opts := testOptions(2, 5)
	opts.SplitAfter = true

	_, err := c.Cluster(context.Background(), samplesOf(winter, 4, offsets(1, 2)...), opts)
	require.ErrorIs(t, err, domain.ErrInsufficientData)

	var stageErr *domain.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, domain.StageNormalize, stageErr.Stage)
}

func TestCluster_Idempotent(t *testing.T) {
	c, _ := newTestClusterer()
	samples := samplesOf(winter, 8, offsets(0, 0.5, 1, 10, 10.5, 20, 21, 21.5)...)
	opts := testOptions(3, 8)

	first, err := c.Cluster(context.Background(), samples, opts)
	require.NoError(t, err)
	second, err := c.Cluster(context.Background(), samples, opts)
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.True(t, samePartition(
		labelsByDate(first.Samples, domain.DefaultStratum),
		labelsByDate(second.Samples, domain.DefaultStratum),
	))
}

func TestCluster_EmptyInput(t *testing.T) {
	c, _ := newTestClusterer()
	_, err := c.Cluster(context.Background(), nil, testOptions(2, 5))
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestCluster_CancelledContext(t *testing.T) {
	c, _ := newTestClusterer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := c.Cluster(ctx, samplesOf(winter, 5, offsets(1, 2, 3)...), testOptions(2, 5))
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, res.Err(), context.Canceled)
}

func TestOptions_Validate(t *testing.T) {
	require.NoError(t, DefaultOptions().Validate())

	bad := DefaultOptions()
	bad.Metric = 0
	assert.Error(t, bad.Validate())

	bad = DefaultOptions()
	bad.Length = 1
	assert.Error(t, bad.Validate())

	bad = DefaultOptions()
	bad.Stratification = "fortnight"
	assert.Error(t, bad.Validate())
}

func TestResult_Summary(t *testing.T) {
	c, _ := newTestClusterer()
	res, err := c.Cluster(context.Background(), samplesOf(winter, 3, offsets(1, 1.1, 30)...), testOptions(2, 3))
	require.NoError(t, err)

	sum := res.Summary()
	assert.Len(t, sum.Means, 2*3)
	require.Len(t, sum.Shares, 2)
	assert.InDelta(t, 100.0, sum.Shares[0].Percent+sum.Shares[1].Percent, 0.11)
}

func TestCluster_ReportsProgress(t *testing.T) {
	c, _ := newTestClusterer()
	samples := append(samplesOf(winter, 5, offsets(1, 2)...), samplesOf(summer, 5, offsets(1, 2)...)...)
	opts := testOptions(1, 5)
	opts.Stratification = domain.StratifySeason

	var calls atomic.Int64
	var lastTotal atomic.Int64
	opts.Progress = func(done, total int) {
		calls.Add(1)
		lastTotal.Store(int64(total))
		assert.LessOrEqual(t, done, total)
	}

	_, err := c.Cluster(context.Background(), samples, opts)
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
	assert.Equal(t, int64(2), lastTotal.Load())
}
