package distance

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/couchcryptid/trajectory-cluster/internal/domain"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Stats describes one matrix computation.
type Stats struct {
	Trajectories int
	Pairs        int
	Sanitized    int
	Duration     time.Duration
}

// Engine computes dissimilarity matrices, spreading rows over a bounded
// number of goroutines.
type Engine struct {
	workers int
}

// NewEngine returns an Engine using at most workers goroutines. Zero or a
// negative value means runtime.NumCPU().
func NewEngine(workers int) *Engine {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Engine{workers: workers}
}

// Compute returns the M x M dissimilarity matrix of set under metric. The
// diagonal is zero and each off-diagonal cell is written exactly once. NaN
// cells are replaced with zero; Stats.Sanitized counts them.
func (e *Engine) Compute(ctx context.Context, set *domain.TrajectorySet, metric Metric) (*mat.SymDense, Stats, error) {
	f, err := metric.pair()
	if err != nil {
		return nil, Stats{}, err
	}
	m := set.Len()
	if m == 0 {
		return nil, Stats{}, fmt.Errorf("compute %v matrix: %w", metric, domain.ErrInsufficientData)
	}
	start := time.Now()

	// Transposed copies give each trajectory a contiguous row.
	var lon, lat mat.Dense
	lon.CloneFrom(set.Lon.T())
	lat.CloneFrom(set.Lat.T())

	d := mat.NewSymDense(m, nil)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := 0; i < m; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			lonI, latI := lon.RawRowView(i), lat.RawRowView(i)
			d.SetSym(i, i, 0)
			for j := i + 1; j < m; j++ {
				d.SetSym(i, j, f(lonI, latI, lon.RawRowView(j), lat.RawRowView(j)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, fmt.Errorf("compute %v matrix: %w", metric, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, Stats{}, fmt.Errorf("compute %v matrix: %w", metric, err)
	}

	return d, Stats{
		Trajectories: m,
		Pairs:        m * (m - 1) / 2,
		Sanitized:    Sanitize(d),
		Duration:     time.Since(start),
	}, nil
}

// Sanitize replaces NaN cells of d with zero and returns how many were
// replaced. A NaN means the pair carries no usable signal, which is treated
// as no dissimilarity.
func Sanitize(d *mat.SymDense) int {
	n := d.SymmetricDim()
	var replaced int
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if math.IsNaN(d.At(i, j)) {
				d.SetSym(i, j, 0)
				replaced++
			}
		}
	}
	return replaced
}
