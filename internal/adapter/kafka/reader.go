package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/trajectory-cluster/internal/config"
	"github.com/couchcryptid/trajectory-cluster/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Reader consumes trajectory samples from a Kafka topic.
// It implements pipeline.Extractor.
type Reader struct {
	reader *kafkago.Reader
	idle   time.Duration
	logger *slog.Logger
}

// NewReader creates a consumer-group reader for the configured source topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.KafkaBrokers,
		GroupID:     cfg.KafkaGroupID,
		Topic:       cfg.KafkaSourceTopic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	return &Reader{reader: r, idle: cfg.DrainIdle, logger: logger}
}

// Extract drains the topic until no message has arrived for the idle
// period. Messages that do not decode are skipped and counted. The returned
// Commit acknowledges every fetched message, including skipped ones.
func (r *Reader) Extract(ctx context.Context) (domain.SampleBatch, error) {
	var batch domain.SampleBatch
	latest := make(map[int]kafkago.Message)

	for {
		fetchCtx, cancel := context.WithTimeout(ctx, r.idle)
		msg, err := r.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return domain.SampleBatch{}, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return domain.SampleBatch{}, fmt.Errorf("fetch message: %w", err)
		}
		latest[msg.Partition] = msg

		samples, err := decodeMessage(msg)
		if err != nil {
			r.logger.Warn("skipping undecodable message",
				"error", err,
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
			batch.Skipped++
			continue
		}
		batch.Samples = append(batch.Samples, samples...)
	}

	if len(latest) > 0 {
		msgs := make([]kafkago.Message, 0, len(latest))
		for _, m := range latest {
			msgs = append(msgs, m)
		}
		batch.Commit = func(ctx context.Context) error {
			return r.reader.CommitMessages(ctx, msgs...)
		}
	}

	r.logger.Debug("drained source topic", "samples", len(batch.Samples), "skipped", batch.Skipped)
	return batch, nil
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

// decodeMessage accepts either a single sample object or an array of
// samples, such as a whole trajectory.
func decodeMessage(msg kafkago.Message) ([]domain.Sample, error) {
	value := bytes.TrimSpace(msg.Value)
	var samples []domain.Sample
	if len(value) > 0 && value[0] == '[' {
		if err := json.Unmarshal(value, &samples); err != nil {
			return nil, fmt.Errorf("decode sample array: %w", err)
		}
	} else {
		var s domain.Sample
		if err := json.Unmarshal(value, &s); err != nil {
			return nil, fmt.Errorf("decode sample: %w", err)
		}
		samples = []domain.Sample{s}
	}
	for i, s := range samples {
		if s.Date.IsZero() {
			return nil, fmt.Errorf("sample %d has no release date", i)
		}
	}
	return samples, nil
}
