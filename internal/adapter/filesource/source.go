// Package filesource replays newline-delimited JSON breadcrumb files
// through the same pipeline contract the bus uses. It exists for backfills
// and local runs against captured feeds.
package filesource

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/whimsydata/breadcrumb-etl/internal/pipeline"
)

// Lines can exceed bufio's default token size on feeds with many optional
// fields.
const maxLineBytes = 1 << 20

// Source reads breadcrumb events line by line from a fixed list of files.
// Nacked messages go back on an in-memory queue, so the pipeline's
// redelivery accounting behaves the same as against the bus.
type Source struct {
	paths  []string
	logger *slog.Logger

	mu       sync.Mutex
	requeued []pipeline.Message

	file    *os.File
	scanner *bufio.Scanner
	path    string
	line    int
}

// New creates a Source over the given files. Files open lazily, one at a
// time, in the order given.
func New(paths []string, logger *slog.Logger) *Source {
	return &Source{paths: paths, logger: logger}
}

// Next returns the next non-empty line, preferring redelivered messages
// over new file input. io.EOF signals that every file and every redelivery
// has been consumed.
func (s *Source) Next(ctx context.Context) (pipeline.Message, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.Message{}, err
	}

	if msg, ok := s.popRequeued(); ok {
		return msg, nil
	}

	for {
		if s.scanner == nil {
			if len(s.paths) == 0 {
				if msg, ok := s.popRequeued(); ok {
					return msg, nil
				}
				return pipeline.Message{}, io.EOF
			}
			if err := s.openNext(); err != nil {
				return pipeline.Message{}, err
			}
		}

		if !s.scanner.Scan() {
			err := s.scanner.Err()
			s.closeCurrent()
			if err != nil {
				return pipeline.Message{}, fmt.Errorf("reading %s: %w", s.path, err)
			}
			continue
		}
		s.line++

		data := s.scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		return s.message(data), nil
	}
}

// Close releases the currently open file, if any.
func (s *Source) Close() error {
	s.closeCurrent()
	return nil
}

func (s *Source) message(data []byte) pipeline.Message {
	// Scanner reuses its buffer, so the payload must be copied out.
	payload := make([]byte, len(data))
	copy(payload, data)

	var msg pipeline.Message
	msg = pipeline.Message{
		ID:   fmt.Sprintf("%s:%d", s.path, s.line),
		Data: payload,
		Ack:  func() error { return nil },
		Nack: func() error {
			s.mu.Lock()
			s.requeued = append(s.requeued, msg)
			s.mu.Unlock()
			return nil
		},
	}
	return msg
}

func (s *Source) popRequeued() (pipeline.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requeued) == 0 {
		return pipeline.Message{}, false
	}
	msg := s.requeued[0]
	s.requeued = s.requeued[1:]
	return msg, true
}

func (s *Source) openNext() error {
	path := s.paths[0]
	s.paths = s.paths[1:]

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	s.file = f
	s.scanner = scanner
	s.path = path
	s.line = 0
	s.logger.Info("replaying file", "path", path)
	return nil
}

func (s *Source) closeCurrent() {
	if s.file != nil {
		s.file.Close()
	}
	s.file = nil
	s.scanner = nil
}
