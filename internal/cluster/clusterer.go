// Package cluster partitions back-trajectories into k groups, either once
// per stratum or once globally with the strata used only for reporting.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/trajectory-cluster/internal/distance"
	"github.com/couchcryptid/trajectory-cluster/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// DefaultClusterCount is the number of clusters when none is configured.
const DefaultClusterCount = 5

// DistanceComputer builds the dissimilarity matrix of a trajectory set.
type DistanceComputer interface {
	Compute(ctx context.Context, set *domain.TrajectorySet, metric distance.Metric) (*mat.SymDense, distance.Stats, error)
}

// Options controls one clustering computation.
type Options struct {
	Metric         distance.Metric
	K              int
	Length         int
	Stratification domain.Stratification
	Hemisphere     domain.Hemisphere

	// SplitAfter clusters the whole dataset once and only then labels each
	// trajectory with its stratum. When false every stratum is clustered
	// independently and labels are only comparable within a stratum.
	SplitAfter bool

	// Parallelism caps how many strata are clustered at the same time.
	Parallelism int

	// Progress, when set, is called after each stratum finishes with the
	// number of finished strata and the total. It may be called from
	// several goroutines at once.
	Progress func(done, total int)
}

// DefaultOptions returns Euclid clustering into five groups of 97-sample
// trajectories with no stratification.
func DefaultOptions() Options {
	return Options{
		Metric:         distance.Euclid,
		K:              DefaultClusterCount,
		Length:         domain.DefaultLength,
		Stratification: domain.StratifyDefault,
		Hemisphere:     domain.Northern,
	}
}

// Validate checks the options without looking at any data.
func (o Options) Validate() error {
	switch o.Metric {
	case distance.Euclid, distance.Angle:
	default:
		return fmt.Errorf("unsupported metric %v", o.Metric)
	}
	if o.K < 1 {
		return fmt.Errorf("%w: k = %d", domain.ErrInvalidClusterCount, o.K)
	}
	if o.Length < 2 {
		return fmt.Errorf("trajectory length must be at least 2, got %d", o.Length)
	}
	if _, err := domain.NewStratifier(o.Stratification, o.Hemisphere); err != nil {
		return err
	}
	return nil
}

// StratumReport describes the clustering of one stratum, or of the whole
// dataset in split-after mode.
type StratumReport struct {
	Stratum      string        `json:"stratum"`
	Trajectories int           `json:"trajectories"`
	Excluded     int           `json:"excluded"`
	Medoids      []time.Time   `json:"medoids,omitempty"`
	Cost         float64       `json:"cost"`
	Sanitized    int           `json:"sanitized"`
	DistanceTime time.Duration `json:"distance_time"`
	Err          error         `json:"-"`
	Error        string        `json:"error,omitempty"`
}

// Result is the labeled output of one clustering computation.
type Result struct {
	RunID      string                 `json:"run_id"`
	Metric     string                 `json:"metric"`
	K          int                    `json:"k"`
	SplitAfter bool                   `json:"split_after"`
	Samples    []domain.LabeledSample `json:"samples"`
	Strata     []StratumReport        `json:"strata"`
}

// Err joins the failures of all strata, or returns nil.
func (r Result) Err() error {
	var errs []error
	for _, s := range r.Strata {
		if s.Err != nil {
			errs = append(errs, s.Err)
		}
	}
	return errors.Join(errs...)
}

// Trajectories returns the number of trajectories that received a label.
func (r Result) Trajectories() int {
	var n int
	for _, s := range r.Strata {
		if s.Err == nil {
			n += s.Trajectories
		}
	}
	return n
}

// Summary returns the per-cluster mean trajectories of the result.
func (r Result) Summary() domain.Summary {
	return domain.Summarize(r.Samples)
}

// Clusterer runs normalization, distance computation and partitioning.
type Clusterer struct {
	engine      DistanceComputer
	partitioner *Partitioner
	logger      *slog.Logger
}

// New creates a Clusterer.
func New(engine DistanceComputer, partitioner *Partitioner, logger *slog.Logger) *Clusterer {
	return &Clusterer{
		engine:      engine,
		partitioner: partitioner,
		logger:      logger,
	}
}

// Cluster labels samples according to opts.
//
// In independent mode a failing stratum is reported in Result.Strata and does
// not stop the others; the returned error is nil unless opts are invalid or
// ctx ends. In split-after mode there is a single computation and any failure
// is returned as a *domain.StageError.
func (c *Clusterer) Cluster(ctx context.Context, samples []domain.Sample, opts Options) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid clustering options: %w", err)
	}
	stratify, _ := domain.NewStratifier(opts.Stratification, opts.Hemisphere)

	res := Result{
		RunID:      uuid.NewString(),
		Metric:     opts.Metric.String(),
		K:          opts.K,
		SplitAfter: opts.SplitAfter,
	}
	logger := c.logger.With("run_id", res.RunID, "metric", res.Metric, "k", opts.K)

	if opts.SplitAfter {
		report, labeled := c.clusterStratum(ctx, "", samples, opts)
		if report.Err != nil {
			return Result{}, report.Err
		}
		report.Stratum = domain.DefaultStratum
		for i := range labeled {
			labeled[i].Stratum = stratify(labeled[i].Date)
		}
		res.Samples = labeled
		res.Strata = []StratumReport{report}
		if opts.Progress != nil {
			opts.Progress(1, 1)
		}
		logger.Info("clustering complete", "mode", "split-after", "trajectories", report.Trajectories)
		return res, nil
	}

	names, groups := groupByStratum(samples, stratify)
	if len(names) == 0 {
		return Result{}, &domain.StageError{Stage: domain.StageNormalize, Err: fmt.Errorf("%w: no samples", domain.ErrInsufficientData)}
	}
	reports := make([]StratumReport, len(names))
	labeled := make([][]domain.LabeledSample, len(names))

	limit := opts.Parallelism
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	var (
		g    errgroup.Group
		done atomic.Int64
	)
	g.SetLimit(limit)
	for i, name := range names {
		g.Go(func() error {
			reports[i], labeled[i] = c.clusterStratum(ctx, name, groups[name], opts)
			if opts.Progress != nil {
				opts.Progress(int(done.Add(1)), len(names))
			}
			return nil
		})
	}
	_ = g.Wait()

	for i := range names {
		if err := reports[i].Err; err != nil {
			logger.Warn("stratum clustering failed", "stratum", names[i], "error", err)
			continue
		}
		res.Samples = append(res.Samples, labeled[i]...)
	}
	res.Strata = reports

	if err := ctx.Err(); err != nil {
		return res, err
	}
	logger.Info("clustering complete", "mode", "per-stratum", "strata", len(names), "trajectories", res.Trajectories())
	return res, nil
}

// clusterStratum runs the full computation over one group of samples. The
// returned labeled samples carry the stratum name.
func (c *Clusterer) clusterStratum(ctx context.Context, name string, samples []domain.Sample, opts Options) (StratumReport, []domain.LabeledSample) {
	report := StratumReport{Stratum: name}
	fail := func(stage domain.Stage, err error) (StratumReport, []domain.LabeledSample) {
		report.Err = &domain.StageError{Stage: stage, Stratum: name, Err: err}
		report.Error = report.Err.Error()
		return report, nil
	}

	set, err := domain.Normalize(samples, opts.Length)
	if err != nil {
		return fail(domain.StageNormalize, err)
	}
	report.Trajectories = set.Len()
	report.Excluded = set.Excluded

	// Check k before paying for the O(L*M^2) matrix.
	if err := CheckClusterCount(opts.K, set.Len()); err != nil {
		return fail(domain.StagePartition, err)
	}

	d, stats, err := c.engine.Compute(ctx, set, opts.Metric)
	if err != nil {
		return fail(domain.StageDistance, err)
	}
	report.Sanitized = stats.Sanitized
	report.DistanceTime = stats.Duration
	if stats.Sanitized > 0 {
		c.logger.Warn("replaced NaN dissimilarities with zero", "stratum", name, "cells", stats.Sanitized)
	}

	assignment, err := c.partitioner.Partition(d, set, opts.K)
	if err != nil {
		return fail(domain.StagePartition, err)
	}
	report.Medoids = assignment.Medoids
	report.Cost = assignment.Cost

	out := make([]domain.LabeledSample, 0, set.Len()*set.Length)
	for j, traj := range set.Samples {
		for _, s := range traj {
			out = append(out, domain.LabeledSample{Sample: s, Stratum: name, Cluster: assignment.Labels[j]})
		}
	}

	c.logger.Debug("stratum clustered",
		"stratum", name,
		"trajectories", set.Len(),
		"excluded", set.Excluded,
		"distance_time", stats.Duration,
	)
	return report, out
}

// groupByStratum splits samples by the stratum of their release time,
// keeping strata in order of first appearance.
func groupByStratum(samples []domain.Sample, stratify domain.Stratifier) ([]string, map[string][]domain.Sample) {
	groups := make(map[string][]domain.Sample)
	var names []string
	for _, s := range samples {
		name := stratify(s.Date)
		if _, ok := groups[name]; !ok {
			names = append(names, name)
		}
		groups[name] = append(groups[name], s)
	}
	return names, groups
}
