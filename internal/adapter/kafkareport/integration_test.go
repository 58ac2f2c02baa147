//go:build integration

package kafkareport_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/whimsydata/breadcrumb-etl/internal/adapter/kafkareport"
	"github.com/whimsydata/breadcrumb-etl/internal/pipeline"
)

const testReportTopic = "test-flush-reports"

// startKafka runs a single-broker Kafka container and returns its bootstrap
// address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.6.1",
		tckafka.WithClusterID("breadcrumb-etl-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err, "resolve kafka brokers")
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	controllerConn, err := kafkago.Dial("tcp",
		net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer controllerConn.Close()

	require.NoError(t, controllerConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// TestWriterPublishesReport verifies a flush report round-trips through a
// real broker with its key and headers intact.
func TestWriterPublishesReport(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testReportTopic)

	writer := kafkareport.NewWriter([]string{broker}, testReportTopic, slog.New(slog.DiscardHandler))
	t.Cleanup(func() { _ = writer.Close() })

	rep := pipeline.FlushReport{
		OperatingDay: "2024-01-01",
		Reason:       "idle",
		FlushedAt:    time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC),
		Received:     10,
		RowsWritten:  10,
		Trips:        2,
	}
	require.NoError(t, writer.Report(ctx, rep))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: []string{broker},
		Topic:   testReportTopic,
		GroupID: fmt.Sprintf("test-report-consumer-%d", time.Now().UnixNano()),
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()
	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from report topic")

	assert.Equal(t, []byte("2024-01-01"), msg.Key)

	var got pipeline.FlushReport
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, rep.Reason, got.Reason)
	assert.Equal(t, rep.RowsWritten, got.RowsWritten)
	assert.Equal(t, rep.Trips, got.Trips)

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "idle", headers["reason"])
	assert.Equal(t, rep.FlushedAt.Format(time.RFC3339), headers["flushed_at"])
}
