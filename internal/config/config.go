package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/couchcryptid/trajectory-cluster/internal/cluster"
	"github.com/couchcryptid/trajectory-cluster/internal/distance"
	"github.com/couchcryptid/trajectory-cluster/internal/domain"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// RunInterval is the pause between two clustering runs in service mode.
	RunInterval time.Duration
	// DrainIdle ends a drain of the source topic once no message has
	// arrived for this long.
	DrainIdle time.Duration
	// PlotDir receives one summary PNG per stratum. Empty disables plotting.
	PlotDir string

	Clustering Clustering
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	runInterval, err := parsePositiveDuration("RUN_INTERVAL", "1h")
	if err != nil {
		return nil, err
	}

	drainIdle, err := parsePositiveDuration("DRAIN_IDLE", "5s")
	if err != nil {
		return nil, err
	}

	clustering, err := loadClustering()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "trajectory-samples"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "clustered-trajectories"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "trajectory-cluster"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
		RunInterval:        runInterval,
		DrainIdle:          drainIdle,
		PlotDir:            os.Getenv("PLOT_DIR"),
		Clustering:         clustering,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}

	return cfg, nil
}

func loadClustering() (Clustering, error) {
	var o Overrides

	if s := os.Getenv("METRIC"); s != "" {
		m, err := distance.ParseMetric(s)
		if err != nil {
			return Clustering{}, fmt.Errorf("invalid METRIC: %w", err)
		}
		o.Metric = &m
	}
	if s := os.Getenv("CLUSTER_COUNT"); s != "" {
		k, err := strconv.Atoi(s)
		if err != nil || k < 1 {
			return Clustering{}, fmt.Errorf("invalid CLUSTER_COUNT %q: %w", s, domain.ErrInvalidClusterCount)
		}
		o.K = &k
	}
	if s, ok := os.LookupEnv("STRATIFY"); ok {
		v, err := domain.ParseStratification(s)
		if err != nil {
			return Clustering{}, fmt.Errorf("invalid STRATIFY: %w", err)
		}
		o.Stratification = &v
	}
	if s, ok := os.LookupEnv("HEMISPHERE"); ok {
		v, err := domain.ParseHemisphere(s)
		if err != nil {
			return Clustering{}, fmt.Errorf("invalid HEMISPHERE: %w", err)
		}
		o.Hemisphere = &v
	}
	if s := os.Getenv("SPLIT_AFTER"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return Clustering{}, fmt.Errorf("invalid SPLIT_AFTER %q", s)
		}
		o.SplitAfter = &v
	}
	if s := os.Getenv("TRAJECTORY_LENGTH"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 2 {
			return Clustering{}, fmt.Errorf("invalid TRAJECTORY_LENGTH %q: must be an integer of at least 2", s)
		}
		o.Length = &n
	}
	if s := os.Getenv("WORKERS"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return Clustering{}, fmt.Errorf("invalid WORKERS %q: must be a positive integer", s)
		}
		o.Workers = &n
	}

	return Defaults().ApplyOverrides(o), nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	s := sharedcfg.EnvOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive duration", key, s)
	}
	return d, nil
}

// Clustering holds the parameters of one clustering computation.
type Clustering struct {
	Metric         distance.Metric
	K              int
	Length         int
	Stratification domain.Stratification
	Hemisphere     domain.Hemisphere
	SplitAfter     bool
	Workers        int
}

// Defaults returns Euclid clustering of 97-sample trajectories into five
// groups, unstratified, using every CPU.
func Defaults() Clustering {
	return Clustering{
		Metric:         distance.Euclid,
		K:              cluster.DefaultClusterCount,
		Length:         domain.DefaultLength,
		Stratification: domain.StratifyDefault,
		Hemisphere:     domain.Northern,
		Workers:        runtime.NumCPU(),
	}
}

// Overrides replaces individual Clustering fields. A nil field keeps the
// value it is applied to.
type Overrides struct {
	Metric         *distance.Metric       `json:"metric,omitempty"`
	K              *int                   `json:"k,omitempty"`
	Length         *int                   `json:"length,omitempty"`
	Stratification *domain.Stratification `json:"stratify,omitempty"`
	Hemisphere     *domain.Hemisphere     `json:"hemisphere,omitempty"`
	SplitAfter     *bool                  `json:"split_after,omitempty"`
	Workers        *int                   `json:"workers,omitempty"`
}

// ApplyOverrides returns c with every non-nil field of o applied.
func (c Clustering) ApplyOverrides(o Overrides) Clustering {
	if o.Metric != nil {
		c.Metric = *o.Metric
	}
	if o.K != nil {
		c.K = *o.K
	}
	if o.Length != nil {
		c.Length = *o.Length
	}
	if o.Stratification != nil {
		c.Stratification = *o.Stratification
	}
	if o.Hemisphere != nil {
		c.Hemisphere = *o.Hemisphere
	}
	if o.SplitAfter != nil {
		c.SplitAfter = *o.SplitAfter
	}
	if o.Workers != nil {
		c.Workers = *o.Workers
	}
	return c
}

// Options converts c into the options of a clustering run.
func (c Clustering) Options() cluster.Options {
	return cluster.Options{
		Metric:         c.Metric,
		K:              c.K,
		Length:         c.Length,
		Stratification: c.Stratification,
		Hemisphere:     c.Hemisphere,
		SplitAfter:     c.SplitAfter,
		Parallelism:    c.Workers,
	}
}
