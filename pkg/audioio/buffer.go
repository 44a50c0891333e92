package audioio

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// BufferSink is a playback sink backed by an in-memory queue. A transport
// (the WebRTC peer, a local player process) drains it chunk by chunk via
// NextChunk. Flush blocks until the queue is empty so callers get
// "speak, then listen" ordering.
type BufferSink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	running bool
	closed  bool
	queue   []AudioChunk

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
}

// NewBufferSink creates a buffered playback sink.
func NewBufferSink(cfg Config, logger *slog.Logger) *BufferSink {
	if logger == nil {
		logger = slog.Default()
	}
	s := &BufferSink{cfg: cfg, logger: logger}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start begins accepting audio.
func (s *BufferSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	s.running = true
	return nil
}

// Stop halts playback and wakes any Flush waiters.
func (s *BufferSink) Stop() error {
	s.mu.Lock()
	s.running = false
	s.queue = nil
	s.mu.Unlock()
	s.cond.Broadcast()
	return nil
}

// Write queues an audio chunk for the transport to drain.
func (s *BufferSink) Write(ctx context.Context, chunk AudioChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.running {
		return io.ErrClosedPipe
	}
	s.queue = append(s.queue, chunk)
	s.chunksWritten.Add(1)
	s.samplesWritten.Add(int64(len(chunk.Samples)))
	s.cond.Broadcast()
	return nil
}

// NextChunk blocks until a chunk is available or the sink stops.
// Returns io.EOF once the sink is stopped or closed.
func (s *BufferSink) NextChunk(ctx context.Context) (AudioChunk, error) {
	// Wake the cond wait when the context ends.
	stop := context.AfterFunc(ctx, func() { s.cond.Broadcast() })
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if ctx.Err() != nil {
			return AudioChunk{}, ctx.Err()
		}
		if s.closed || !s.running {
			return AudioChunk{}, io.EOF
		}
		if len(s.queue) > 0 {
			chunk := s.queue[0]
			s.queue = s.queue[1:]
			if len(s.queue) == 0 {
				s.cond.Broadcast()
			}
			return chunk, nil
		}
		s.cond.Wait()
	}
}

// Flush blocks until the queue is drained, the context ends, or a
// playback-duration bound elapses.
func (s *BufferSink) Flush(ctx context.Context) error {
	deadline := time.Now().Add(s.pendingDuration() + time.Second)

	stop := context.AfterFunc(ctx, func() { s.cond.Broadcast() })
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) > 0 && s.running && !s.closed {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Now().After(deadline) {
			s.queue = nil
			return nil
		}
		s.cond.Wait()
	}
	return nil
}

func (s *BufferSink) pendingDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, c := range s.queue {
		total += len(c.Samples)
	}
	if s.cfg.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(total) / float64(s.cfg.SampleRate*s.cfg.Channels) * float64(time.Second))
}

// Clear discards buffered audio immediately.
func (s *BufferSink) Clear() error {
	s.mu.Lock()
	s.queue = nil
	s.mu.Unlock()
	s.cond.Broadcast()
	return nil
}

// Config returns the audio configuration.
func (s *BufferSink) Config() Config {
	return s.cfg
}

// Name returns "buffer".
func (s *BufferSink) Name() string {
	return "buffer"
}

// Close releases resources.
func (s *BufferSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.running = false
	s.queue = nil
	s.mu.Unlock()
	s.cond.Broadcast()
	return nil
}

// Stats returns sink statistics.
func (s *BufferSink) Stats() SinkStats {
	s.mu.Lock()
	running := s.running
	buffered := int64(0)
	for _, c := range s.queue {
		buffered += int64(len(c.Samples))
	}
	s.mu.Unlock()

	return SinkStats{
		ChunksWritten:   s.chunksWritten.Load(),
		SamplesWritten:  s.samplesWritten.Load(),
		Running:         running,
		Backend:         "buffer",
		BufferedSamples: buffered,
	}
}

var _ SinkWithStats = (*BufferSink)(nil)
