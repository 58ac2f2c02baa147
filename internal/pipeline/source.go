package pipeline

import (
	"context"
	"time"

	"github.com/whimsydata/breadcrumb-etl/internal/audit"
	"github.com/whimsydata/breadcrumb-etl/internal/domain"
)

// Message is one delivery from the bus. Ack confirms processing (no
// redelivery); Nack requests redelivery. Both are synchronous and must not
// be called more than once.
type Message struct {
	ID   string
	Data []byte
	Ack  func() error
	Nack func() error
}

// Source hands out messages one at a time. Next blocks until a message
// arrives, the passed context expires, or the source is drained, in which
// case it returns io.EOF. Implementations: the live JetStream subscription
// and the file replay source.
type Source interface {
	Next(ctx context.Context) (Message, error)
	Close() error
}

// BatchStore persists one flushed batch atomically: all trip upserts and
// breadcrumb rows commit together or not at all.
type BatchStore interface {
	SaveBatch(ctx context.Context, trips []domain.Trip, rows []domain.NormalizedBreadcrumb) error
}

// Reporter receives the per-flush operator report. Reporting failures never
// fail the flush.
type Reporter interface {
	Report(ctx context.Context, rep FlushReport) error
}

// FlushReport summarizes one completed flush cycle for operators.
type FlushReport struct {
	OperatingDay string          `json:"operating_day"`
	Reason       string          `json:"reason"` // day_rollover, idle, shutdown, drained
	FlushedAt    time.Time       `json:"flushed_at"`
	Received     int64           `json:"messages_received"`
	Rejected     int64           `json:"messages_rejected"`
	Discarded    int64           `json:"messages_discarded"`
	RowsWritten  int             `json:"rows_written"`
	Trips        int             `json:"trips"`
	Findings     []audit.Finding `json:"findings,omitempty"`
}
