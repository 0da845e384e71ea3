package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/trajectory-cluster/internal/cluster"
	"github.com/couchcryptid/trajectory-cluster/internal/domain"
	"github.com/couchcryptid/trajectory-cluster/internal/observability"
	"github.com/jonboulle/clockwork"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Extractor reads the samples accumulated since the previous run.
type Extractor interface {
	Extract(ctx context.Context) (domain.SampleBatch, error)
}

// Clusterer labels a set of samples.
type Clusterer interface {
	Cluster(ctx context.Context, samples []domain.Sample, opts cluster.Options) (cluster.Result, error)
}

// Loader writes the labeled samples of a run to the destination.
type Loader interface {
	Load(ctx context.Context, res cluster.Result) error
}

// Reporter publishes derived views of a run, such as summary plots.
type Reporter interface {
	Report(ctx context.Context, res cluster.Result) error
}

// Reporters combines several reporters into one that runs each in turn and
// joins their errors.
func Reporters(rs ...Reporter) Reporter {
	return reporters(rs)
}

type reporters []Reporter

func (rs reporters) Report(ctx context.Context, res cluster.Result) error {
	var errs []error
	for _, r := range rs {
		if err := r.Report(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithReporter adds a reporter that runs after every successful load.
// Reporter failures are logged and do not fail the run.
func WithReporter(r Reporter) Option {
	return func(p *Pipeline) { p.reporter = r }
}

// WithClock replaces the real clock used for scheduling and timing.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithInterval sets the pause between runs. The default is one hour.
func WithInterval(d time.Duration) Option {
	return func(p *Pipeline) { p.interval = d }
}

// Pipeline orchestrates the extract-cluster-load loop.
type Pipeline struct {
	extractor Extractor
	clusterer Clusterer
	loader    Loader
	reporter  Reporter
	opts      cluster.Options
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
	interval  time.Duration
	ready     atomic.Bool
}

// New creates a Pipeline with the given stages and observability.
func New(e Extractor, c Clusterer, l Loader, opts cluster.Options, logger *slog.Logger, metrics *observability.Metrics, options ...Option) *Pipeline {
	p := &Pipeline{
		extractor: e,
		clusterer: c,
		loader:    l,
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
		clock:     clockwork.NewRealClock(),
		interval:  time.Hour,
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// CheckReadiness returns nil once the pipeline has completed a run,
// or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a clustering run yet")
	}
	return nil
}

// Run executes RunOnce every interval until the context is cancelled.
// Failed runs are retried with exponential backoff instead of waiting for
// the next interval.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "interval", p.interval, "metric", p.opts.Metric.String(), "k", p.opts.K)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}

		wait := p.interval
		if _, err := p.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Error("clustering run failed", "error", err, "retry_in", backoff)
			wait = backoff
			backoff = nextBackoff(backoff, maxBackoff)
		} else {
			backoff = initialBackoff
		}

		if !sleepWithContext(ctx, p.clock, wait) {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// RunOnce runs a single extract-cluster-load-report cycle and commits the
// source afterwards. An empty extract is not an error and yields an empty
// result.
func (p *Pipeline) RunOnce(ctx context.Context) (cluster.Result, error) {
	start := p.clock.Now()

	batch, err := p.extractor.Extract(ctx)
	if err != nil {
		p.metrics.Runs.WithLabelValues("error").Inc()
		return cluster.Result{}, fmt.Errorf("extract samples: %w", err)
	}
	p.metrics.SamplesConsumed.Add(float64(len(batch.Samples)))
	p.metrics.SamplesSkipped.Add(float64(batch.Skipped))

	if len(batch.Samples) == 0 {
		p.logger.Debug("no samples to cluster")
		return cluster.Result{}, nil
	}

	res, err := p.clusterer.Cluster(ctx, batch.Samples, p.opts)
	p.observeStrata(res)
	if err != nil {
		p.metrics.Runs.WithLabelValues("error").Inc()
		p.countFailure(err)
		return cluster.Result{}, fmt.Errorf("cluster samples: %w", err)
	}

	if err := p.loader.Load(ctx, res); err != nil {
		p.metrics.Runs.WithLabelValues("error").Inc()
		return cluster.Result{}, fmt.Errorf("load labeled samples: %w", err)
	}
	p.metrics.SamplesProduced.Add(float64(len(res.Samples)))

	if p.reporter != nil {
		if err := p.reporter.Report(ctx, res); err != nil {
			p.logger.Warn("report failed", "error", err, "run_id", res.RunID)
		}
	}

	p.commit(ctx, batch)

	outcome := "success"
	if res.Err() != nil {
		outcome = "partial"
	}
	elapsed := p.clock.Since(start)
	p.metrics.Runs.WithLabelValues(outcome).Inc()
	p.metrics.RunDuration.Observe(elapsed.Seconds())
	p.ready.Store(true)

	p.logger.Info("clustering run complete",
		"run_id", res.RunID,
		"outcome", outcome,
		"samples", len(batch.Samples),
		"skipped", batch.Skipped,
		"trajectories", res.Trajectories(),
		"strata", len(res.Strata),
		"duration", elapsed,
	)
	return res, nil
}

// observeStrata records the per-stratum outcome of a run.
func (p *Pipeline) observeStrata(res cluster.Result) {
	for _, s := range res.Strata {
		p.metrics.TrajectoriesExcluded.Add(float64(s.Excluded))
		if s.Err != nil {
			p.countFailure(s.Err)
			continue
		}
		p.metrics.NaNSanitized.Add(float64(s.Sanitized))
		p.metrics.DistanceMatrixDuration.WithLabelValues(res.Metric).Observe(s.DistanceTime.Seconds())
	}
}

func (p *Pipeline) countFailure(err error) {
	var stageErr *domain.StageError
	if errors.As(err, &stageErr) {
		p.metrics.StratumFailures.WithLabelValues(string(stageErr.Stage)).Inc()
	}
}

// commit acknowledges the batch if a commit function is available.
func (p *Pipeline) commit(ctx context.Context, batch domain.SampleBatch) {
	if batch.Commit == nil {
		return
	}
	if err := batch.Commit(ctx); err != nil {
		p.logger.Warn("commit failed", "error", err, "samples", len(batch.Samples))
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
