package main

import (
	"fmt"
	"log/slog"

	"github.com/couchcryptid/trajectory-cluster/internal/cluster"
	"github.com/couchcryptid/trajectory-cluster/internal/config"
	"github.com/couchcryptid/trajectory-cluster/internal/distance"
	"github.com/couchcryptid/trajectory-cluster/internal/domain"
	"github.com/couchcryptid/trajectory-cluster/internal/observability"
	"github.com/couchcryptid/trajectory-cluster/internal/pam"
	"github.com/spf13/cobra"
)

// clusterFlags are the command-line overrides of the clustering settings.
// Only flags that were set on the command line replace the environment.
type clusterFlags struct {
	metric     string
	k          int
	length     int
	stratify   string
	hemisphere string
	splitAfter bool
	workers    int
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	var flags clusterFlags

	root := &cobra.Command{
		Use:   "trajcluster",
		Short: "Cluster atmospheric back-trajectories",
		Long: `
trajcluster groups back-trajectories that share a receptor into k clusters of
similar transport, either once per stratum (season, month, ...) or once for
the whole dataset. Settings come from the environment and can be overridden
with flags.
`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.metric, "metric", "", "distance metric: Euclid or Angle")
	pf.IntVarP(&flags.k, "clusters", "k", 0, "number of clusters per stratum")
	pf.IntVar(&flags.length, "length", 0, "samples per trajectory (hour 0 plus look-back hours)")
	pf.StringVar(&flags.stratify, "stratify", "", "stratification: default, year, month, monthyear, season, weekday, weekend, hour")
	pf.StringVar(&flags.hemisphere, "hemisphere", "", "hemisphere used for season labels: northern or southern")
	pf.BoolVar(&flags.splitAfter, "split-after", false, "cluster all data once and split by stratum afterwards")
	pf.IntVar(&flags.workers, "workers", 0, "maximum strata clustered in parallel")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "log format: json or text")

	root.AddCommand(newRunCmd(&flags), newServeCmd(&flags))
	return root
}

// loadConfig reads the environment and applies the flags that were set.
func loadConfig(cmd *cobra.Command, flags *clusterFlags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	var o config.Overrides
	if changed("metric") {
		m, err := distance.ParseMetric(flags.metric)
		if err != nil {
			return nil, err
		}
		o.Metric = &m
	}
	if changed("clusters") {
		o.K = &flags.k
	}
	if changed("length") {
		o.Length = &flags.length
	}
	if changed("stratify") {
		s, err := domain.ParseStratification(flags.stratify)
		if err != nil {
			return nil, err
		}
		o.Stratification = &s
	}
	if changed("hemisphere") {
		h, err := domain.ParseHemisphere(flags.hemisphere)
		if err != nil {
			return nil, err
		}
		o.Hemisphere = &h
	}
	if changed("split-after") {
		o.SplitAfter = &flags.splitAfter
	}
	if changed("workers") {
		o.Workers = &flags.workers
	}
	cfg.Clustering = cfg.Clustering.ApplyOverrides(o)

	if changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = flags.logFormat
	}

	if err := cfg.Clustering.Options().Validate(); err != nil {
		return nil, fmt.Errorf("invalid clustering settings: %w", err)
	}
	return cfg, nil
}

func newClusterer(cfg *config.Config, logger *slog.Logger) *cluster.Clusterer {
	engine := distance.NewEngine(cfg.Clustering.Workers)
	return cluster.New(engine, cluster.NewPartitioner(pam.Options{}), logger)
}

func newLogger(cfg *config.Config) *slog.Logger {
	logger := observability.NewLogger(cfg)
	slog.SetDefault(logger)
	return logger
}
