// Package kafkareport publishes flush summaries to a Kafka topic so
// downstream dashboards can follow ingestion without querying the database.
package kafkareport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/whimsydata/breadcrumb-etl/internal/pipeline"
)

// Writer produces one message per flush.
// It implements pipeline.Reporter.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the report topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Report serializes and publishes one flush report, keyed by operating day
// so a day's reports land on one partition in order.
func (w *Writer) Report(ctx context.Context, rep pipeline.FlushReport) error {
	msg, err := serializeToMessage(rep)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish flush report: %w", err)
	}
	w.logger.Debug("flush report published",
		"operating_day", rep.OperatingDay, "reason", rep.Reason)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a FlushReport into a Kafka message.
func serializeToMessage(rep pipeline.FlushReport) (kafkago.Message, error) {
	data, err := json.Marshal(rep)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize flush report: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(rep.OperatingDay),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "reason", Value: []byte(rep.Reason)},
			{Key: "flushed_at", Value: []byte(rep.FlushedAt.Format(time.RFC3339))},
		},
	}, nil
}
