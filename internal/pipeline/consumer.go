package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/whimsydata/breadcrumb-etl/internal/audit"
	"github.com/whimsydata/breadcrumb-etl/internal/domain"
	"github.com/whimsydata/breadcrumb-etl/internal/observability"
)

const dayLayout = "2006-01-02"

// Options tunes consumer behavior beyond its required collaborators.
type Options struct {
	// Reporter receives flush reports; nil means log-only.
	Reporter Reporter
	// MaxDeliveries bounds total delivery attempts per message id (default 2).
	MaxDeliveries int
	// IdleTimeout is the read-loop wait before an idle flush (default 10m).
	IdleTimeout time.Duration
	// Clock is swapped in tests; nil means the real clock.
	Clock clockwork.Clock
}

// Consumer drives the ingestion loop: pull a message, validate it, buffer or
// reject it, and flush the buffer through normalize-audit-load on day
// rollover, idle timeout, or shutdown.
//
// The buffer and the per-flush tallies are the only state shared between the
// read loop and flushes; both live behind mu, which is never held across
// storage or bus calls. flushMu serializes flushes so at most one
// normalize-audit-load pass runs at a time.
type Consumer struct {
	source   Source
	store    BatchStore
	reporter Reporter
	ledger   *RetryLedger
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    clockwork.Clock

	idleTimeout time.Duration

	mu        sync.Mutex
	buffer    []domain.Breadcrumb
	day       string // operating-day marker, reset after a rollover flush
	received  int64
	rejected  int64
	discarded int64

	flushMu sync.Mutex
	ready   atomic.Bool
}

// NewConsumer creates a Consumer. The source and store are required; see
// Options for the rest.
func NewConsumer(source Source, store BatchStore, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Consumer {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	maxDeliveries := opts.MaxDeliveries
	if maxDeliveries < 1 {
		maxDeliveries = 2
	}
	return &Consumer{
		source:      source,
		store:       store,
		reporter:    opts.Reporter,
		ledger:      NewRetryLedger(maxDeliveries),
		logger:      logger,
		metrics:     metrics,
		clock:       clock,
		idleTimeout: idle,
	}
}

// CheckReadiness returns nil once the consumer loop is running against an
// established subscription, or an error describing why the service is not
// yet ready.
func (c *Consumer) CheckReadiness(_ context.Context) error {
	if !c.ready.Load() {
		return errors.New("consumer is not running yet")
	}
	return nil
}

// Run executes the ingestion loop until the context is cancelled or the
// source is drained. The subscription stops being read before the final
// flush runs, so no append can race the drain.
func (c *Consumer) Run(ctx context.Context) error {
	c.setDay(c.clock.Now().Format(dayLayout))
	c.metrics.ConsumerRunning.Set(1)
	defer c.metrics.ConsumerRunning.Set(0)
	c.ready.Store(true)
	c.logger.Info("consumer started", "operating_day", c.getDay(), "idle_timeout", c.idleTimeout)

	for {
		if ctx.Err() != nil {
			return c.finalFlush(ctx, "shutdown")
		}

		if day := c.clock.Now().Format(dayLayout); day != c.getDay() {
			if err := c.Flush(ctx, "day_rollover"); err != nil {
				c.logger.Error("day rollover flush failed", "error", err)
			}
			c.setDay(day)
		}

		readCtx, cancel := context.WithTimeout(ctx, c.idleTimeout)
		msg, err := c.source.Next(readCtx)
		cancel()

		switch {
		case err == nil:
			c.handle(msg)
		case errors.Is(err, io.EOF):
			// Replay sources drain; flush what is buffered and stop.
			return c.finalFlush(ctx, "drained")
		case ctx.Err() != nil:
			return c.finalFlush(ctx, "shutdown")
		case errors.Is(err, context.DeadlineExceeded):
			if err := c.Flush(ctx, "idle"); err != nil {
				c.logger.Error("idle flush failed", "error", err)
			}
		default:
			c.logger.Error("read from source failed", "error", err)
			if !sleepWithContext(ctx, time.Second) {
				return c.finalFlush(ctx, "shutdown")
			}
		}
	}
}

// handle validates one delivery and resolves its acknowledgement. A valid
// breadcrumb is buffered and acknowledged immediately; durability comes from
// the flush, bounded by the idle timeout. An invalid message is negatively
// acknowledged for one redelivery, then acknowledged and discarded when it
// keeps failing.
func (c *Consumer) handle(msg Message) {
	c.metrics.MessagesReceived.Inc()
	c.addReceived()

	if len(msg.Data) == 0 {
		c.logger.Warn("empty message payload, discarding", "message_id", msg.ID)
		c.metrics.MessagesDiscarded.Inc()
		c.addDiscarded()
		c.ack(msg)
		return
	}

	bc, err := decodeAndValidate(msg.Data)
	if err != nil {
		rule := ruleOf(err)
		c.metrics.MessagesRejected.WithLabelValues(rule).Inc()
		c.addRejected()

		if c.ledger.Fail(msg.ID) {
			c.logger.Warn("discarding message after repeated failures",
				"message_id", msg.ID, "rule", rule, "error", err)
			c.metrics.MessagesDiscarded.Inc()
			c.addDiscarded()
			c.ack(msg)
			return
		}
		c.logger.Warn("message failed validation, requesting redelivery",
			"message_id", msg.ID, "rule", rule, "error", err)
		c.nack(msg)
		return
	}
	c.ledger.Resolve(msg.ID)

	c.mu.Lock()
	c.buffer = append(c.buffer, bc)
	size := len(c.buffer)
	c.mu.Unlock()

	c.metrics.MessagesBuffered.Inc()
	c.metrics.BufferSize.Set(float64(size))
	c.ack(msg)
}

// Flush drains the buffer and the cycle tallies and runs the batch through
// normalize, audit, deduplicate, trip upsert, bulk write. A no-op only when
// the cycle saw no messages at all. On a storage error the whole transaction
// has been rolled back; the drained batch is reported and dropped, not
// retried.
func (c *Consumer) Flush(ctx context.Context, reason string) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	batch := c.buffer
	c.buffer = nil
	day := c.day
	received, rejected, discarded := c.received, c.rejected, c.discarded
	c.received, c.rejected, c.discarded = 0, 0, 0
	c.mu.Unlock()

	// A cycle that saw no messages at all is a true no-op. A cycle of only
	// rejections still reports its tallies so they never roll into the next
	// flush.
	if len(batch) == 0 && received == 0 && rejected == 0 && discarded == 0 {
		return nil
	}
	c.metrics.BufferSize.Set(0)

	start := c.clock.Now()

	rows := domain.Normalize(batch)
	findings := audit.Run(rows)
	for _, f := range findings {
		c.metrics.AuditFindings.WithLabelValues(f.Rule).Inc()
		c.logger.Warn("audit finding", "rule", f.Rule, "detail", f.Detail, "rows", len(f.Rows))
	}
	rows = domain.DeduplicateRows(rows)
	trips := domain.BuildTrips(rows)

	if len(rows) > 0 {
		if err := c.store.SaveBatch(ctx, trips, rows); err != nil {
			c.metrics.StorageErrors.Inc()
			c.logger.Error("batch commit failed, batch dropped",
				"error", err, "reason", reason, "rows", len(rows), "trips", len(trips))
			return err
		}
	}

	elapsed := c.clock.Since(start)
	c.metrics.RowsWritten.Add(float64(len(rows)))
	c.metrics.TripsUpserted.Add(float64(len(trips)))
	c.metrics.FlushBatch.Observe(float64(len(batch)))
	c.metrics.FlushDuration.Observe(elapsed.Seconds())

	rep := FlushReport{
		OperatingDay: day,
		Reason:       reason,
		FlushedAt:    c.clock.Now(),
		Received:     received,
		Rejected:     rejected,
		Discarded:    discarded,
		RowsWritten:  len(rows),
		Trips:        len(trips),
		Findings:     findings,
	}
	c.logger.Info("flush complete",
		"reason", reason, "operating_day", day,
		"rows_written", len(rows), "trips", len(trips),
		"received", received, "rejected", rejected, "discarded", discarded,
		"findings", len(findings), "duration", elapsed)

	if c.reporter != nil {
		if err := c.reporter.Report(ctx, rep); err != nil {
			c.logger.Warn("flush report publish failed", "error", err)
		}
	}
	return nil
}

// finalFlush runs the shutdown flush on a context that survives cancellation,
// so a drained buffer still reaches the store.
func (c *Consumer) finalFlush(ctx context.Context, reason string) error {
	c.logger.Info("consumer stopping", "reason", reason)
	return c.Flush(context.WithoutCancel(ctx), reason)
}

func (c *Consumer) ack(msg Message) {
	if msg.Ack == nil {
		return
	}
	if err := msg.Ack(); err != nil {
		c.logger.Warn("ack failed", "message_id", msg.ID, "error", err)
	}
}

func (c *Consumer) nack(msg Message) {
	if msg.Nack == nil {
		return
	}
	if err := msg.Nack(); err != nil {
		c.logger.Warn("nack failed", "message_id", msg.ID, "error", err)
	}
}

func (c *Consumer) setDay(day string) {
	c.mu.Lock()
	c.day = day
	c.mu.Unlock()
}

func (c *Consumer) getDay() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.day
}

func (c *Consumer) addReceived() {
	c.mu.Lock()
	c.received++
	c.mu.Unlock()
}

func (c *Consumer) addRejected() {
	c.mu.Lock()
	c.rejected++
	c.mu.Unlock()
}

func (c *Consumer) addDiscarded() {
	c.mu.Lock()
	c.discarded++
	c.mu.Unlock()
}

func decodeAndValidate(data []byte) (domain.Breadcrumb, error) {
	raw, err := domain.DecodeRawEvent(data)
	if err != nil {
		return domain.Breadcrumb{}, err
	}
	return domain.ValidateRawEvent(raw)
}

// ruleOf extracts the violated rule name for metrics labels.
func ruleOf(err error) string {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return verr.Rule
	}
	return "other"
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
