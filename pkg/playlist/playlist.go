// ABOUTME: Playlist is the upstream producer feeding decoded audio into sinks
// ABOUTME: Decodes items in order, converts per sink and handles remove/seek/pause
package playlist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Sendspin/sendspin-transcode/pkg/audio"
	"github.com/Sendspin/sendspin-transcode/pkg/audio/resample"
	"github.com/Sendspin/sendspin-transcode/pkg/sink"
	"github.com/google/uuid"
)

const (
	// DefaultChunkFrames is the number of source frames decoded per step
	DefaultChunkFrames = 1024
	// DefaultLead is how far ahead of real time a paced playlist decodes
	DefaultLead = 500 * time.Millisecond

	pollInterval = 10 * time.Millisecond
	idleWait     = time.Second
)

var (
	// ErrNotFound is returned for an unknown item ID
	ErrNotFound = errors.New("playlist item not found")
	// ErrSinkExists is returned when a sink is added twice
	ErrSinkExists = errors.New("sink already added")
	// ErrInvalidSinkFormat is returned when a sink's format cannot be produced
	ErrInvalidSinkFormat = errors.New("invalid sink format")
)

// OpenFunc opens the audio of an item. It runs on the decode goroutine without
// the playlist lock; ctx is cancelled when the item is removed, sought away
// from or the playlist is closed, and stays valid for the life of the source.
type OpenFunc func(ctx context.Context) (AudioSource, error)

// Item is one playlist entry
type Item struct {
	ID    uuid.UUID
	Title string

	open OpenFunc
}

// Config controls decoding
type Config struct {
	// Realtime paces decoding to playback speed instead of running as fast as sinks drain
	Realtime bool
	// Lead is how far ahead of real time a paced playlist may decode
	Lead time.Duration
	// ChunkFrames is the number of source frames read per step
	ChunkFrames int
}

// sinkState is the per-sink conversion state
type sinkState struct {
	resampler *resample.Resampler
	pending   []int32 // interleaved, sink rate and channel count
	item      uuid.UUID
	pos       float64 // seconds, first pending frame
}

// job is source work the decode goroutine does without p.mu held
type job struct {
	gen      uint64
	item     *Item
	ctx      context.Context
	seekTo   float64
	source   AudioSource // nil for an open
	channels int
}

// Playlist decodes its items one after another into every attached sink.
// After the last item each sink receives one end marker; items added later
// start a new segment.
//
// Sources are opened and read outside the lock, so a slow stream never blocks
// the control methods. Seek, Remove and Close abandon the current source by
// bumping gen and cancelling its context.
type Playlist struct {
	config Config

	mu          sync.Mutex
	items       []*Item
	current     int
	gen         uint64
	cancel      context.CancelFunc // cancels the current source's context
	reading     bool               // the decode goroutine owns source until its read returns
	source      AudioSource
	srcRate     int
	srcChannels int
	itemFrame   int64   // source frames into the current item
	seekTo      float64 // seconds, applied when the current item opens
	segment     bool    // audio was delivered since the last end marker
	paused      bool
	sinks       map[*sink.Sink]*sinkState

	// Realtime pacing
	started time.Time
	decoded time.Duration

	ctx      context.Context
	stop     context.CancelFunc
	wake     chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a playlist and starts its decode goroutine
func New(config Config) *Playlist {
	if config.Lead <= 0 {
		config.Lead = DefaultLead
	}
	if config.ChunkFrames <= 0 {
		config.ChunkFrames = DefaultChunkFrames
	}

	ctx, stop := context.WithCancel(context.Background())
	p := &Playlist{
		ctx:      ctx,
		stop:     stop,
		config:   config,
		sinks:    make(map[*sink.Sink]*sinkState),
		started:  time.Now(),
		wake:     make(chan struct{}, 1),
		stopChan: make(chan struct{}),
	}

	p.wg.Add(1)
	go p.run()
	return p
}

// Insert appends an item opened lazily by open
func (p *Playlist) Insert(title string, open OpenFunc) uuid.UUID {
	item := &Item{ID: uuid.New(), Title: title, open: open}

	p.mu.Lock()
	p.items = append(p.items, item)
	p.mu.Unlock()

	log.Printf("playlist: added %q (%s)", title, item.ID)
	p.notify()
	return item.ID
}

// Add appends a file, URL or "tone:" entry
func (p *Playlist) Add(pathOrURL string) (uuid.UUID, error) {
	title := pathOrURL
	switch {
	case strings.HasPrefix(pathOrURL, "tone:"):
		title = "Test Tone"
	case strings.Contains(pathOrURL, "://"):
		// Streams are only opened when played
	default:
		// Fail early for missing or unsupported files
		src, err := NewAudioSource(pathOrURL)
		if err != nil {
			return uuid.Nil, err
		}
		title, _, _ = src.Metadata()
		src.Close()
	}

	return p.Insert(title, func(ctx context.Context) (AudioSource, error) {
		return OpenAudioSource(ctx, pathOrURL)
	}), nil
}

// Items returns a snapshot of the playlist
func (p *Playlist) Items() []Item {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Item, len(p.items))
	for i, item := range p.items {
		out[i] = *item
	}
	return out
}

// Current returns the item being decoded and the decode position in seconds
func (p *Playlist) Current() (Item, float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current >= len(p.items) {
		return Item{}, 0, false
	}
	pos := 0.0
	if p.source != nil {
		pos = float64(p.itemFrame) / float64(p.srcRate)
	}
	return *p.items[p.current], pos, true
}

// Remove deletes an item and purges its queued audio from every sink
func (p *Playlist) Remove(id uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if idx == p.current {
		p.closeSource()
		p.seekTo = 0
	}
	p.items = slices.Delete(p.items, idx, idx+1)
	if idx < p.current {
		p.current--
	}

	for s, st := range p.sinks {
		if st.item == id {
			st.pending = nil
		}
		s.Purge(id)
	}

	log.Printf("playlist: removed %s", id)
	p.notify()
	return nil
}

// Seek restarts decoding at seconds into the item, dropping everything queued in the sinks
func (p *Playlist) Seek(id uuid.UUID, seconds float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	p.closeSource()
	p.current = idx
	p.seekTo = max(seconds, 0)

	for s, st := range p.sinks {
		st.pending = nil
		st.resampler = nil
		s.Flush()
	}
	p.rebase()

	log.Printf("playlist: seek to %.2fs in %s", p.seekTo, id)
	p.notify()
	return nil
}

// Play resumes decoding
func (p *Playlist) Play() {
	p.mu.Lock()
	p.paused = false
	p.rebase()
	p.mu.Unlock()
	p.notify()
}

// Pause stops decoding until Play
func (p *Playlist) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

// Paused reports whether decoding is paused
func (p *Playlist) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// AddSink starts feeding s. The sink's Format and BufferFrames must be set.
func (p *Playlist) AddSink(s *sink.Sink) error {
	f := s.Format
	if f.SampleRate <= 0 || f.Channels() == 0 || f.SampleFormat.BytesPerSample() == 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSinkFormat, f)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.sinks[s]; ok {
		return ErrSinkExists
	}
	st := &sinkState{}
	if p.source != nil {
		p.startSink(s, st, p.items[p.current].ID, float64(p.itemFrame)/float64(p.srcRate))
	}
	p.sinks[s] = st

	log.Printf("playlist: sink added (%s, %d frames per buffer)", f, s.BufferFrames)
	p.notify()
	return nil
}

// RemoveSink stops feeding s; audio not yet pushed is dropped
func (p *Playlist) RemoveSink(s *sink.Sink) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.sinks, s)
	log.Printf("playlist: sink removed")
	return nil
}

// Close stops the decode goroutine
func (p *Playlist) Close() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		p.stop()
	})
	p.wg.Wait()

	p.mu.Lock()
	p.closeSource()
	p.mu.Unlock()
}

func (p *Playlist) notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Playlist) run() {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		wait, j := p.step()
		p.mu.Unlock()

		if j != nil {
			if j.source == nil {
				p.open(j)
			} else {
				p.read(j)
			}
		}

		if wait == 0 {
			select {
			case <-p.stopChan:
				return
			default:
				continue
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-p.stopChan:
			timer.Stop()
			return
		case <-p.wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// step decides the next piece of work and returns how long to wait before the
// next step, or a job to run without the lock. Called with p.mu held.
func (p *Playlist) step() (time.Duration, *job) {
	if p.paused || len(p.sinks) == 0 {
		return idleWait, nil
	}
	for s := range p.sinks {
		if s.Full() {
			return pollInterval, nil
		}
	}
	if p.config.Realtime {
		ahead := p.decoded - time.Since(p.started)
		if ahead > p.config.Lead {
			return ahead - p.config.Lead, nil
		}
		if ahead < -p.config.Lead {
			p.rebase()
		}
	}

	if p.source == nil {
		if p.current >= len(p.items) {
			p.finish()
			return idleWait, nil
		}
		ctx, cancel := context.WithCancel(p.ctx)
		p.cancel = cancel
		return 0, &job{gen: p.gen, item: p.items[p.current], ctx: ctx, seekTo: p.seekTo}
	}

	p.reading = true
	return 0, &job{gen: p.gen, source: p.source, channels: p.srcChannels}
}

// open opens the job's item and installs it unless the item was abandoned meanwhile
func (p *Playlist) open(j *job) {
	src, frame, err := openSource(j.ctx, j.item, j.seekTo, p.config.ChunkFrames)

	p.mu.Lock()
	defer p.mu.Unlock()

	if j.gen != p.gen {
		if src != nil {
			src.Close()
		}
		return
	}
	if err != nil {
		log.Printf("playlist: skipping %q: %v", j.item.Title, err)
		p.cancel()
		p.cancel = nil
		p.current++
		p.seekTo = 0
		return
	}

	p.source = src
	p.srcRate = src.SampleRate()
	p.srcChannels = src.Channels()
	p.itemFrame = frame
	p.seekTo = 0
	p.segment = true

	item := j.item
	if item.Title == "" {
		item.Title, _, _ = src.Metadata()
	}

	pos := float64(p.itemFrame) / float64(p.srcRate)
	for s, st := range p.sinks {
		p.startSink(s, st, item.ID, pos)
	}

	log.Printf("playlist: playing %q (%d Hz, %d channels) from %.2fs", item.Title, p.srcRate, p.srcChannels, pos)
}

// read decodes one chunk from the job's source and delivers it to the sinks
func (p *Playlist) read(j *job) {
	buf := make([]int32, p.config.ChunkFrames*j.channels)
	n, err := j.source.Read(buf)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.reading = false
	if p.source != j.source {
		// Abandoned while reading
		if cerr := j.source.Close(); cerr != nil {
			log.Printf("playlist: close source: %v", cerr)
		}
		return
	}

	frames := n / p.srcChannels
	if frames > 0 {
		p.deliver(buf[:frames*p.srcChannels])
		p.itemFrame += int64(frames)
		p.decoded += time.Duration(frames) * time.Second / time.Duration(p.srcRate)
	}

	if err != nil || n == 0 {
		if err != nil && err != io.EOF {
			log.Printf("playlist: read error in %q: %v", p.items[p.current].Title, err)
		}
		p.endItem()
	}
}

// openSource opens item and positions it at seekTo seconds. It returns the frame reached.
func openSource(ctx context.Context, item *Item, seekTo float64, chunkFrames int) (AudioSource, int64, error) {
	src, err := item.open(ctx)
	if err != nil {
		return nil, 0, err
	}
	if src.SampleRate() <= 0 || src.Channels() <= 0 {
		src.Close()
		return nil, 0, fmt.Errorf("invalid source format: %d Hz, %d channels", src.SampleRate(), src.Channels())
	}
	return src, seekFrames(src, int64(seekTo*float64(src.SampleRate())), chunkFrames), nil
}

// seekFrames positions a new source at frame and returns the frame reached
func seekFrames(src AudioSource, frame int64, chunkFrames int) int64 {
	if frame <= 0 {
		return 0
	}
	if fs, ok := src.(FrameSeeker); ok {
		err := fs.SeekFrame(frame)
		if err == nil {
			return frame
		}
		log.Printf("playlist: seek failed, decoding to position: %v", err)
	}

	channels := src.Channels()
	discard := make([]int32, chunkFrames*channels)
	var skipped int64
	for skipped < frame {
		want := min(int64(chunkFrames), frame-skipped)
		n, err := src.Read(discard[:want*int64(channels)])
		skipped += int64(n / channels)
		if err != nil || n == 0 {
			break
		}
	}
	return skipped
}

func (p *Playlist) startSink(s *sink.Sink, st *sinkState, item uuid.UUID, pos float64) {
	st.pending = nil
	st.item = item
	st.pos = pos
	st.resampler = nil
	if p.srcRate != s.Format.SampleRate {
		st.resampler = resample.New(p.srcRate, s.Format.SampleRate, s.Format.Channels())
	}
}

func (p *Playlist) deliver(samples []int32) {
	for s, st := range p.sinks {
		if st.item != p.items[p.current].ID {
			// Sink was flushed or added without a running item
			p.startSink(s, st, p.items[p.current].ID, float64(p.itemFrame)/float64(p.srcRate))
		}
		converted := remix(samples, p.srcChannels, s.Format.Channels())
		if st.resampler != nil {
			converted = st.resampler.Process(converted)
		}
		st.pending = append(st.pending, converted...)
		st.emit(s, false)
	}
}

// emit pushes full buffers; with final set a trailing short buffer is pushed too
func (st *sinkState) emit(s *sink.Sink, final bool) {
	channels := s.Format.Channels()
	frameSize := s.BufferFrames * channels

	for len(st.pending) >= frameSize || (final && len(st.pending) >= channels) {
		n := min(len(st.pending), frameSize)
		n -= n % channels
		frames := n / channels

		planes := audio.Pack(st.pending[:n], channels, s.Format.SampleFormat)
		s.Push(audio.NewBuffer(planes, frames, s.Format, st.item, st.pos))

		st.pos += float64(frames) / float64(s.Format.SampleRate)
		st.pending = append(st.pending[:0], st.pending[n:]...)
	}
	if final {
		st.pending = nil
	}
}

func (p *Playlist) endItem() {
	for s, st := range p.sinks {
		st.emit(s, true)
	}
	p.closeSource()
	p.current++
}

// finish pushes one end marker per sink after the last item
func (p *Playlist) finish() {
	if !p.segment {
		return
	}
	for s := range p.sinks {
		s.PushEnd()
	}
	p.segment = false
	log.Printf("playlist: end of playlist")
}

// closeSource abandons the current item's source. A source that is being read
// is closed by the decode goroutine once its read returns.
func (p *Playlist) closeSource() {
	p.gen++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if p.source == nil {
		return
	}
	if !p.reading {
		if err := p.source.Close(); err != nil {
			log.Printf("playlist: close source: %v", err)
		}
	}
	p.source = nil
}

// rebase restarts the realtime clock at the current decode position
func (p *Playlist) rebase() {
	p.started = time.Now().Add(-p.decoded)
}

func (p *Playlist) indexOf(id uuid.UUID) int {
	return slices.IndexFunc(p.items, func(item *Item) bool { return item.ID == id })
}
