package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/era5-city-etl/internal/config"
	"github.com/couchcryptid/era5-city-etl/internal/domain"
)

// PeriodCompleted is the JSON payload announcing a finished period.
type PeriodCompleted struct {
	Year        int       `json:"year"`
	Month       int       `json:"month"`
	Artifacts   []string  `json:"artifacts"`
	Skipped     int       `json:"skipped"`
	CompletedAt time.Time `json:"completed_at"`
}

// Notifier publishes period completion events to a Kafka topic.
// It implements pipeline.Notifier.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the configured completion topic.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Notifier{writer: w, logger: logger}
}

// NotifyPeriod publishes one message keyed by the period.
func (n *Notifier) NotifyPeriod(ctx context.Context, r domain.PeriodResult) error {
	msg, err := serializeToMessage(r)
	if err != nil {
		return err
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish period %s: %w", r.Period, err)
	}
	n.logger.Debug("period completion published", "period", r.Period.String(), "topic", n.writer.Topic)
	return nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// serializeToMessage marshals a PeriodResult into a Kafka message.
func serializeToMessage(r domain.PeriodResult) (kafkago.Message, error) {
	artifacts := r.Artifacts
	if artifacts == nil {
		artifacts = []string{}
	}
	data, err := json.Marshal(PeriodCompleted{
		Year:        r.Period.Year,
		Month:       r.Period.Month,
		Artifacts:   artifacts,
		Skipped:     r.Skipped,
		CompletedAt: r.CompletedAt.UTC(),
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize period result: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(r.Period.String()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte("period_completed")},
			{Key: "completed_at", Value: []byte(r.CompletedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
