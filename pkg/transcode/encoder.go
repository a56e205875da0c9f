// ABOUTME: Encoder session: attaches to a producer, encodes its audio and queues container bytes
// ABOUTME: Consumers pull encoded chunks and end-of-segment markers with GetBuffer
package transcode

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/Sendspin/sendspin-transcode/internal/metrics"
	"github.com/Sendspin/sendspin-transcode/pkg/audio"
	"github.com/Sendspin/sendspin-transcode/pkg/audio/encode"
	"github.com/Sendspin/sendspin-transcode/pkg/container"
	"github.com/Sendspin/sendspin-transcode/pkg/queue"
	"github.com/Sendspin/sendspin-transcode/pkg/sink"
	"github.com/google/uuid"
)

// DefaultFormat is requested when Config.TargetFormat leaves fields unset
var DefaultFormat = audio.Format{
	SampleFormat: audio.SampleFormatS16,
	SampleRate:   44100,
	Layout:       audio.LayoutStereo,
}

// Config holds the encoder settings. Fields are read at Attach.
type Config struct {
	// TargetFormat is the requested format; the codec may round it to the nearest supported one
	TargetFormat audio.Format
	// BitRate in bits per second; 0 lets the codec choose
	BitRate int

	// Container and codec hints
	FormatName string
	CodecName  string
	Filename   string
	MimeType   string

	Muxers   *container.Registry // nil for container.DefaultRegistry
	Backends *encode.Registry    // nil for encode.DefaultRegistry
	Metrics  *metrics.Metrics    // optional

	// Debug logs every chunk
	Debug bool
}

// Stats is a snapshot of session counters
type Stats struct {
	Chunks       uint64
	Bytes        uint64
	EncodeErrors uint64
	Segments     uint64
	Purges       uint64
	Flushes      uint64
	QueueDepth   int
}

// entry is one output queue element: an encoded chunk or an end-of-segment marker
type entry struct {
	chunk *audio.Buffer
	end   bool
}

// head is the buffer most recently submitted to the codec
type head struct {
	item   uuid.UUID
	pos    float64
	format audio.Format
	valid  bool
}

// Encoder is an encoder session. It is created detached; Attach starts the
// worker and Detach stops it. One Encoder can be attached again after Detach.
type Encoder struct {
	config Config

	// attachMu serializes Attach and Detach and guards the fields below it
	attachMu sync.Mutex
	attached bool
	sink     *sink.Sink
	format   *container.Format
	codec    string
	actual   audio.Format

	// mu is the session lock shared by the worker and the purge/flush callbacks
	mu         sync.Mutex
	head       head
	enc        encode.Encoder
	muxer      container.Muxer
	headerSent bool

	output *queue.Queue[entry]
	wg     sync.WaitGroup

	chunks       atomic.Uint64
	bytes        atomic.Uint64
	encodeErrors atomic.Uint64
	segments     atomic.Uint64
	purges       atomic.Uint64
	flushes      atomic.Uint64
}

// New creates a detached encoder
func New(config Config) *Encoder {
	if config.TargetFormat.SampleFormat == audio.SampleFormatNone {
		config.TargetFormat.SampleFormat = DefaultFormat.SampleFormat
	}
	if config.TargetFormat.SampleRate <= 0 {
		config.TargetFormat.SampleRate = DefaultFormat.SampleRate
	}
	if config.TargetFormat.Layout == 0 {
		config.TargetFormat.Layout = DefaultFormat.Layout
	}
	if config.Muxers == nil {
		config.Muxers = container.DefaultRegistry
	}
	if config.Backends == nil {
		config.Backends = encode.DefaultRegistry
	}

	return &Encoder{
		config: config,
		output: queue.New(func(e entry) {
			if e.chunk != nil {
				e.chunk.Unref()
			}
		}),
	}
}

// Attach resolves the container and codec, opens the codec with the negotiated
// format, attaches a sink to p and starts the worker. On failure everything is
// rolled back and the encoder stays detached.
func (e *Encoder) Attach(p sink.Producer) error {
	e.attachMu.Lock()
	defer e.attachMu.Unlock()

	if e.attached {
		return ErrAlreadyAttached
	}

	if stage, err := e.attach(p); err != nil {
		e.config.Metrics.RecordAttachFailure(stage)
		e.detach()
		return err
	}
	return nil
}

func (e *Encoder) attach(p sink.Producer) (string, error) {
	e.output.Reset()

	format, backend, err := e.config.Muxers.Resolve(e.config.FormatName, e.config.CodecName,
		e.config.Filename, e.config.MimeType, e.config.Backends)
	if err != nil {
		return "resolve", fmt.Errorf("%w: %w", ErrResolve, err)
	}

	actual := encode.Negotiate(backend.Capabilities(), e.config.TargetFormat)
	enc, err := backend.Open(actual, e.config.BitRate)
	if err != nil {
		return "open", fmt.Errorf("%w: %s (%s): %w", ErrOpenEncoder, backend.Name(), actual, err)
	}

	e.format = format
	e.codec = backend.Name()
	e.actual = actual

	muxer, err := format.New(outputWriter{e}, backend.Name(), actual)

	e.mu.Lock()
	e.enc = enc
	e.muxer = muxer
	e.headerSent = false
	e.head = head{}
	e.mu.Unlock()

	if err != nil {
		return "muxer", fmt.Errorf("%w: %s: %w", ErrCreateMuxer, format.Name, err)
	}

	s := sink.New()
	s.Format = actual
	if frames := enc.FrameSize(); frames > 0 {
		s.BufferFrames = frames
	}
	s.OnPurge = e.purge
	s.OnFlush = e.flush
	if err := s.Attach(p); err != nil {
		return "sink", fmt.Errorf("%w: %w", ErrAttachSink, err)
	}
	e.sink = s
	e.attached = true

	e.wg.Add(1)
	go e.run(s)

	log.Printf("encoder: attached (%s in %s, %s, requested %s)", e.codec, format.Name, actual, e.config.TargetFormat)
	return "", nil
}

// Detach stops the worker and releases the codec and container writer.
// Detaching a detached encoder does nothing.
func (e *Encoder) Detach() error {
	e.attachMu.Lock()
	defer e.attachMu.Unlock()

	if !e.attached {
		return nil
	}
	e.detach()
	log.Printf("encoder: detached")
	return nil
}

// detach tears down whatever attach managed to set up. Called with attachMu held.
func (e *Encoder) detach() {
	if e.sink != nil {
		if err := e.sink.Detach(); err != nil {
			log.Printf("encoder: sink detach: %v", err)
		}
	}

	e.output.Abort()
	e.wg.Wait()
	// the worker may have queued chunks until it stopped
	e.output.Flush()

	e.mu.Lock()
	if e.enc != nil {
		if err := e.enc.Close(); err != nil {
			log.Printf("encoder: close codec: %v", err)
		}
	}
	e.enc = nil
	e.muxer = nil
	e.head = head{}
	e.headerSent = false
	e.mu.Unlock()

	e.sink = nil
	e.format = nil
	e.codec = ""
	e.actual = audio.Format{}
	e.attached = false
	e.config.Metrics.SetOutputQueue(0)
}

// Close detaches the encoder
func (e *Encoder) Close() {
	e.Detach()
}

// GetBuffer returns the next encoded chunk, which the caller must Unref.
// BufferEnd marks the end of a segment. BufferNone means the queue is empty
// (non-blocking) or the encoder was detached.
func (e *Encoder) GetBuffer(block bool) (*audio.Buffer, audio.BufferResult) {
	en, ok := e.output.Get(block)
	if !ok {
		return nil, audio.BufferNone
	}
	e.config.Metrics.SetOutputQueue(e.output.Len())
	if en.end {
		return nil, audio.BufferEnd
	}
	return en.chunk, audio.BufferReady
}

// ActualFormat returns the negotiated format of the attached session
func (e *Encoder) ActualFormat() audio.Format {
	e.attachMu.Lock()
	defer e.attachMu.Unlock()
	return e.actual
}

// Codec returns the codec name of the attached session
func (e *Encoder) Codec() string {
	e.attachMu.Lock()
	defer e.attachMu.Unlock()
	return e.codec
}

// ContainerName returns the container name of the attached session
func (e *Encoder) ContainerName() string {
	e.attachMu.Lock()
	defer e.attachMu.Unlock()
	if e.format == nil {
		return ""
	}
	return e.format.Name
}

// MimeType returns the container MIME type of the attached session
func (e *Encoder) MimeType() string {
	e.attachMu.Lock()
	defer e.attachMu.Unlock()
	if e.format == nil {
		return ""
	}
	return e.format.MimeType()
}

// Attached reports whether the encoder is attached
func (e *Encoder) Attached() bool {
	e.attachMu.Lock()
	defer e.attachMu.Unlock()
	return e.attached
}

// Head returns the item and position of the buffer most recently submitted to the codec
func (e *Encoder) Head() (uuid.UUID, float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.head.item, e.head.pos, e.head.valid
}

// Stats returns a snapshot of the session counters
func (e *Encoder) Stats() Stats {
	return Stats{
		Chunks:       e.chunks.Load(),
		Bytes:        e.bytes.Load(),
		EncodeErrors: e.encodeErrors.Load(),
		Segments:     e.segments.Load(),
		Purges:       e.purges.Load(),
		Flushes:      e.flushes.Load(),
		QueueDepth:   e.output.Len(),
	}
}

// purge drops queued chunks of item; the sink calls it when the item is removed
func (e *Encoder) purge(item uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.output.Purge(func(en entry) bool {
		return en.chunk != nil && en.chunk.Item == item
	})
	if e.head.valid && e.head.item == item {
		e.head = head{}
	}

	e.purges.Add(1)
	e.config.Metrics.RecordPurge()
	e.config.Metrics.SetOutputQueue(e.output.Len())
}

// flush drops all queued output and the codec's buffered input; the sink calls it on seek
func (e *Encoder) flush() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.output.Flush()
	if e.enc != nil {
		e.enc.Flush()
	}

	e.flushes.Add(1)
	e.config.Metrics.RecordFlush()
	e.config.Metrics.SetOutputQueue(0)
}

// outputWriter receives container bytes. Muxers only write while the session lock is held.
type outputWriter struct {
	e *Encoder
}

// Write queues a copy of p as one chunk stamped with the current encode head
func (w outputWriter) Write(p []byte) (int, error) {
	e := w.e
	if len(p) == 0 {
		return 0, nil
	}

	data := make([]byte, len(p))
	copy(data, p)

	item, pos := uuid.Nil, -1.0
	if e.head.valid {
		item, pos = e.head.item, e.head.pos
	}
	e.output.Put(entry{chunk: audio.NewPacket(data, e.actual, item, pos)})

	e.chunks.Add(1)
	e.bytes.Add(uint64(len(p)))
	e.config.Metrics.RecordChunk(len(p))
	e.config.Metrics.SetOutputQueue(e.output.Len())
	if e.config.Debug {
		log.Printf("[DEBUG] encoder: chunk of %d bytes (item %s, pos %.3f)", len(p), item, pos)
	}
	return len(p), nil
}
