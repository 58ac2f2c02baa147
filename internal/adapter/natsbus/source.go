// Package natsbus consumes raw breadcrumb events from a NATS JetStream
// subject with a durable pull consumer. Every delivery carries explicit
// acknowledgement callbacks so the pipeline controls redelivery per message.
package natsbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/whimsydata/breadcrumb-etl/internal/pipeline"
)

const msgIDHeader = "Nats-Msg-Id"

// Config holds the connection and subscription parameters.
type Config struct {
	URL     string
	Subject string
	// Stream binds the consumer to an existing stream when set; otherwise
	// JetStream looks the stream up from the subject.
	Stream  string
	Durable string
}

// Source is a pull-based JetStream subscription implementing
// pipeline.Source.
type Source struct {
	conn   *nats.Conn
	sub    *nats.Subscription
	logger *slog.Logger
}

// New connects to NATS and opens the durable pull subscription.
func New(cfg Config, logger *slog.Logger) (*Source, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("breadcrumb-etl"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("nats connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", cfg.URL, err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening jetstream context: %w", err)
	}

	opts := []nats.SubOpt{nats.AckExplicit()}
	if cfg.Stream != "" {
		opts = append(opts, nats.BindStream(cfg.Stream))
	}
	sub, err := js.PullSubscribe(cfg.Subject, cfg.Durable, opts...)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", cfg.Subject, err)
	}

	logger.Info("nats subscription opened",
		"url", cfg.URL, "subject", cfg.Subject, "durable", cfg.Durable)
	return &Source{conn: conn, sub: sub, logger: logger}, nil
}

// Next fetches a single message, blocking until one arrives or the context
// expires. A fetch timeout surfaces as context.DeadlineExceeded so the
// caller's idle handling sees one error shape.
func (s *Source) Next(ctx context.Context) (pipeline.Message, error) {
	msgs, err := s.sub.Fetch(1, nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) {
			return pipeline.Message{}, context.DeadlineExceeded
		}
		return pipeline.Message{}, err
	}
	if len(msgs) == 0 {
		return pipeline.Message{}, context.DeadlineExceeded
	}

	m := msgs[0]
	return pipeline.Message{
		ID:   messageID(m),
		Data: m.Data,
		Ack:  func() error { return m.Ack() },
		Nack: func() error { return m.Nak() },
	}, nil
}

// Close drains the subscription so in-flight deliveries settle before the
// connection goes away.
func (s *Source) Close() error {
	if err := s.sub.Drain(); err != nil {
		s.logger.Warn("draining subscription failed", "error", err)
	}
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
		return err
	}
	s.conn.Close()
	return nil
}

// messageID prefers the publisher-assigned id header and falls back to the
// stream sequence, which is stable across redeliveries.
func messageID(m *nats.Msg) string {
	if id := m.Header.Get(msgIDHeader); id != "" {
		return id
	}
	meta, err := m.Metadata()
	if err != nil {
		return m.Subject
	}
	return fmt.Sprintf("%s:%d", meta.Stream, meta.Sequence.Stream)
}
