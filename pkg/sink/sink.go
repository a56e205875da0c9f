// ABOUTME: Sink is the pull side of an audio producer
// ABOUTME: Buffers decoded audio for one consumer and forwards purge/flush events
package sink

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Sendspin/sendspin-transcode/pkg/audio"
	"github.com/Sendspin/sendspin-transcode/pkg/queue"
	"github.com/google/uuid"
)

const (
	// DefaultBufferFrames is used when the consumer has no frame size preference
	DefaultBufferFrames = 1024
	// DefaultMaxBuffers is the queue depth at which the producer backs off
	DefaultMaxBuffers = 8
)

// ErrAttached is returned by Attach when the sink already has a producer
var ErrAttached = errors.New("sink already attached")

// Producer feeds decoded audio into sinks
type Producer interface {
	AddSink(s *Sink) error
	RemoveSink(s *Sink) error
}

// entry is one queued element: a buffer or an end-of-stream marker
type entry struct {
	buf *audio.Buffer
	end bool
}

// Sink receives decoded audio in Format, in buffers of BufferFrames frames.
// Configure the exported fields before Attach.
type Sink struct {
	Format       audio.Format
	BufferFrames int
	MaxBuffers   int

	// OnPurge runs after buffers of a removed item were dropped
	OnPurge func(item uuid.UUID)
	// OnFlush runs after all pending buffers were dropped (seek)
	OnFlush func()

	queue *queue.Queue[entry]

	mu       sync.Mutex
	producer Producer
}

// New creates a detached sink
func New() *Sink {
	return &Sink{
		BufferFrames: DefaultBufferFrames,
		MaxBuffers:   DefaultMaxBuffers,
		queue: queue.New(func(e entry) {
			if e.buf != nil {
				e.buf.Unref()
			}
		}),
	}
}

// Attach registers the sink with a producer
func (s *Sink) Attach(p Producer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.producer != nil {
		return ErrAttached
	}
	if s.BufferFrames <= 0 {
		s.BufferFrames = DefaultBufferFrames
	}
	if s.MaxBuffers <= 0 {
		s.MaxBuffers = DefaultMaxBuffers
	}

	s.queue.Reset()
	if err := p.AddSink(s); err != nil {
		return fmt.Errorf("failed to add sink: %w", err)
	}
	s.producer = p
	return nil
}

// Detach unregisters the sink, wakes a blocked GetBuffer and drops pending buffers.
// Detaching a detached sink does nothing.
func (s *Sink) Detach() error {
	s.mu.Lock()
	p := s.producer
	s.producer = nil
	s.mu.Unlock()

	if p == nil {
		return nil
	}

	s.queue.Abort()
	err := p.RemoveSink(s)
	s.queue.Flush()
	return err
}

// Attached reports whether the sink has a producer
func (s *Sink) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.producer != nil
}

// GetBuffer returns the next buffer, which the caller must Unref.
// BufferEnd marks the end of a segment; BufferNone means empty (non-blocking) or detached.
func (s *Sink) GetBuffer(block bool) (*audio.Buffer, audio.BufferResult) {
	e, ok := s.queue.Get(block)
	if !ok {
		return nil, audio.BufferNone
	}
	if e.end {
		return nil, audio.BufferEnd
	}
	return e.buf, audio.BufferReady
}

// Push queues a buffer, taking ownership of the caller's reference
func (s *Sink) Push(buf *audio.Buffer) {
	s.queue.Put(entry{buf: buf})
}

// PushEnd queues an end-of-segment marker
func (s *Sink) PushEnd() {
	s.queue.Put(entry{end: true})
}

// Purge drops queued buffers of item, then notifies the consumer
func (s *Sink) Purge(item uuid.UUID) {
	s.queue.Purge(func(e entry) bool {
		return e.buf != nil && e.buf.Item == item
	})
	if s.OnPurge != nil {
		s.OnPurge(item)
	}
}

// Flush drops every queued buffer, then notifies the consumer
func (s *Sink) Flush() {
	s.queue.Flush()
	if s.OnFlush != nil {
		s.OnFlush()
	}
}

// Full reports whether the producer should stop pushing for now
func (s *Sink) Full() bool {
	return s.queue.Len() >= s.MaxBuffers
}

// Len returns the number of queued entries
func (s *Sink) Len() int {
	return s.queue.Len()
}
