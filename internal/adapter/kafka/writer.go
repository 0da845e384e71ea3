package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/trajectory-cluster/internal/cluster"
	"github.com/couchcryptid/trajectory-cluster/internal/config"
	"github.com/couchcryptid/trajectory-cluster/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces labeled samples to a Kafka topic.
// It implements pipeline.Loader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchFlushInterval,
	}
	return &Writer{writer: w, logger: logger}
}

// Load publishes every labeled sample of a run in a single WriteMessages call.
func (w *Writer) Load(ctx context.Context, res cluster.Result) error {
	if len(res.Samples) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(res.Samples))
	for i := range res.Samples {
		msg, err := serializeToMessage(res.RunID, res.Samples[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write labeled samples: %w", err)
	}
	w.logger.Debug("published labeled samples", "run_id", res.RunID, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a labeled sample into a Kafka message keyed by
// the trajectory release time, so all samples of a trajectory share a partition.
func serializeToMessage(runID string, s domain.LabeledSample) (kafkago.Message, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize labeled sample: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(s.Date.UTC().Format(time.RFC3339)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "stratum", Value: []byte(s.Stratum)},
			{Key: "cluster", Value: []byte(strconv.Itoa(s.Cluster))},
			{Key: "run_id", Value: []byte(runID)},
		},
	}, nil
}
