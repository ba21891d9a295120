package stream

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/aretw0/arbiter/pkg/domain"
)

// ChannelSink delivers events on a buffered channel that closes after the
// terminal event. Emit never blocks: when the buffer is full the oldest
// undelivered event is discarded, so a stalled consumer cannot hold up the
// turn. The terminal event is always delivered. Consumers detect drops by
// gaps in StageEvent.Seq.
type ChannelSink struct {
	mu      sync.Mutex
	ch      chan domain.StageEvent
	closed  bool
	dropped int
}

// NewChannelSink creates a sink with the given buffer size (at least 1).
func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSink{ch: make(chan domain.StageEvent, buffer)}
}

// Events returns the receive side of the sink.
func (s *ChannelSink) Events() <-chan domain.StageEvent {
	return s.ch
}

// Emit queues ev without waiting for the consumer. ctx is not consulted, so
// a cancelled turn still delivers its terminal event.
func (s *ChannelSink) Emit(_ context.Context, ev domain.StageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	for {
		select {
		case s.ch <- ev:
			if ev.Terminal() {
				s.closeLocked()
			}
			return nil
		default:
		}
		// Full: evict the oldest event. The consumer may have drained it first.
		select {
		case <-s.ch:
			s.dropped++
		default:
		}
	}
}

// Dropped returns the number of events discarded because the buffer was full.
func (s *ChannelSink) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close closes the channel. Safe to call more than once.
func (s *ChannelSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *ChannelSink) closeLocked() {
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// JSONLSink writes one JSON document per event.
type JSONLSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLSink writes to w.
func NewJSONLSink(w io.Writer) *JSONLSink {
	return &JSONLSink{enc: json.NewEncoder(w)}
}

func (s *JSONLSink) Emit(ctx context.Context, ev domain.StageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(ev)
}
