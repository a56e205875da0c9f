// ABOUTME: Tests for the playlist producer
// ABOUTME: Drives sinks with finite tone items and checks buffers, end markers, remove and seek
package playlist

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Sendspin/sendspin-transcode/pkg/audio"
	"github.com/Sendspin/sendspin-transcode/pkg/sink"
	"github.com/google/uuid"
)

var stereo48k = audio.Format{SampleFormat: audio.SampleFormatS16, SampleRate: 48000, Layout: audio.LayoutStereo}

func tone(rate, channels int, frames int64) OpenFunc {
	return func(context.Context) (AudioSource, error) {
		return NewToneSource(440, rate, channels, frames), nil
	}
}

func newSink(t *testing.T, p *Playlist, format audio.Format, bufferFrames int) *sink.Sink {
	t.Helper()
	s := sink.New()
	s.Format = format
	s.BufferFrames = bufferFrames
	if err := s.Attach(p); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	t.Cleanup(func() { s.Detach() })
	return s
}

func next(t *testing.T, s *sink.Sink) (*audio.Buffer, audio.BufferResult) {
	t.Helper()
	type result struct {
		buf *audio.Buffer
		res audio.BufferResult
	}
	ch := make(chan result, 1)
	go func() {
		buf, res := s.GetBuffer(true)
		ch <- result{buf, res}
	}()
	select {
	case r := <-ch:
		return r.buf, r.res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a buffer")
	}
	return nil, audio.BufferNone
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPlaylistBuffersAndEnd(t *testing.T) {
	p := New(Config{})
	defer p.Close()

	a := p.Insert("a", tone(48000, 2, 2048))
	b := p.Insert("b", tone(48000, 2, 1500))
	s := newSink(t, p, stereo48k, 1024)

	want := []struct {
		item   uuid.UUID
		frames int
		pos    float64
	}{
		{a, 1024, 0},
		{a, 1024, 1024.0 / 48000},
		{b, 1024, 0},
		{b, 476, 1024.0 / 48000},
	}
	for i, w := range want {
		buf, res := next(t, s)
		if res != audio.BufferReady {
			t.Fatalf("buffer %d: result %s", i, res)
		}
		if buf.Item != w.item || buf.Frames != w.frames || math.Abs(buf.Pos-w.pos) > 1e-9 {
			t.Errorf("buffer %d: item %s frames %d pos %f, want %s %d %f", i, buf.Item, buf.Frames, buf.Pos, w.item, w.frames, w.pos)
		}
		if buf.Format != stereo48k || buf.Size != buf.Frames*4 {
			t.Errorf("buffer %d: format %s size %d", i, buf.Format, buf.Size)
		}
		buf.Unref()
	}

	if _, res := next(t, s); res != audio.BufferEnd {
		t.Fatalf("got %s, want end", res)
	}

	// Items added later start a new segment
	c := p.Insert("c", tone(48000, 2, 100))
	buf, res := next(t, s)
	if res != audio.BufferReady || buf.Item != c {
		t.Fatalf("new segment: got %s", res)
	}
	buf.Unref()
	if _, res := next(t, s); res != audio.BufferEnd {
		t.Fatalf("got %s, want end of second segment", res)
	}
}

func TestPlaylistConvertsPerSink(t *testing.T) {
	p := New(Config{})
	defer p.Close()

	p.Insert("a", tone(44100, 2, 4410))
	format := audio.Format{SampleFormat: audio.SampleFormatF32P, SampleRate: 48000, Layout: audio.LayoutMono}
	s := newSink(t, p, format, 480)

	total := 0
	for {
		buf, res := next(t, s)
		if res == audio.BufferEnd {
			break
		}
		if res != audio.BufferReady {
			t.Fatalf("got %s", res)
		}
		if buf.Format != format || len(buf.Data) != 1 {
			t.Errorf("buffer format %s with %d planes", buf.Format, len(buf.Data))
		}
		if buf.Frames > 480 {
			t.Errorf("buffer of %d frames exceeds 480", buf.Frames)
		}
		total += buf.Frames
		buf.Unref()
	}

	if total < 4795 || total > 4800 {
		t.Errorf("got %d frames, want ~4800", total)
	}
}

func TestPlaylistRemovePurgesSinks(t *testing.T) {
	p := New(Config{})
	defer p.Close()

	a := p.Insert("a", tone(48000, 2, 48000*10))
	b := p.Insert("b", tone(48000, 2, 2048))

	s := sink.New()
	s.Format = stereo48k
	s.MaxBuffers = 2
	purged := make(chan uuid.UUID, 1)
	s.OnPurge = func(id uuid.UUID) { purged <- id }
	if err := s.Attach(p); err != nil {
		t.Fatal(err)
	}
	defer s.Detach()

	waitFor(t, func() bool { return s.Len() >= 2 })
	if err := p.Remove(a); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if got := <-purged; got != a {
		t.Errorf("purged %s, want %s", got, a)
	}

	count := 0
	for {
		buf, res := next(t, s)
		if res == audio.BufferEnd {
			break
		}
		if buf.Item != b {
			t.Fatalf("got buffer of %s after removing it", buf.Item)
		}
		count++
		buf.Unref()
	}
	if count != 2 {
		t.Errorf("got %d buffers of b, want 2", count)
	}
	if items := p.Items(); len(items) != 1 || items[0].ID != b {
		t.Errorf("Items() = %v", items)
	}
}

func TestPlaylistSeekFlushesSinks(t *testing.T) {
	p := New(Config{})
	defer p.Close()

	a := p.Insert("a", tone(48000, 2, 48000*10))

	s := sink.New()
	s.Format = stereo48k
	s.MaxBuffers = 2
	flushed := make(chan struct{}, 1)
	s.OnFlush = func() { flushed <- struct{}{} }
	if err := s.Attach(p); err != nil {
		t.Fatal(err)
	}
	defer s.Detach()

	waitFor(t, func() bool { return s.Len() >= 2 })
	if err := p.Seek(a, 5); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	select {
	case <-flushed:
	default:
		t.Fatal("OnFlush not called")
	}

	buf, res := next(t, s)
	if res != audio.BufferReady {
		t.Fatalf("got %s", res)
	}
	defer buf.Unref()
	if buf.Item != a || math.Abs(buf.Pos-5) > 1e-9 {
		t.Errorf("after seek: item %s pos %f, want %s 5.0", buf.Item, buf.Pos, a)
	}
}

func TestPlaylistUnknownItem(t *testing.T) {
	p := New(Config{})
	defer p.Close()

	if err := p.Remove(uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove() error = %v, want ErrNotFound", err)
	}
	if err := p.Seek(uuid.New(), 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Seek() error = %v, want ErrNotFound", err)
	}
}

func TestPlaylistRejectsInvalidSink(t *testing.T) {
	p := New(Config{})
	defer p.Close()

	s := sink.New()
	if err := s.Attach(p); !errors.Is(err, ErrInvalidSinkFormat) {
		t.Errorf("Attach() error = %v, want ErrInvalidSinkFormat", err)
	}
}

func TestPlaylistSkipsBrokenItem(t *testing.T) {
	p := New(Config{})
	defer p.Close()

	p.Insert("broken", func(context.Context) (AudioSource, error) { return nil, errors.New("no such file") })
	good := p.Insert("good", tone(48000, 2, 100))
	s := newSink(t, p, stereo48k, 1024)

	buf, res := next(t, s)
	if res != audio.BufferReady || buf.Item != good {
		t.Fatalf("got %s, want buffer of the good item", res)
	}
	buf.Unref()
}

func TestStalledStreamDoesNotBlockControl(t *testing.T) {
	entered := make(chan struct{}, 1)
	cancelled := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		<-r.Context().Done()
		cancelled <- struct{}{}
	}))
	defer srv.Close()

	p := New(Config{})
	defer p.Close()

	id, err := p.Add(srv.URL + "/live.mp3")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	newSink(t, p, stereo48k, 1024)

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("stream never requested")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Items()
		s := sink.New()
		s.Format = stereo48k
		s.BufferFrames = 512
		if err := s.Attach(p); err != nil {
			t.Errorf("Attach() error = %v", err)
			return
		}
		s.Detach()
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Items() or AddSink blocked while a stream was opening")
	}

	if err := p.Remove(id); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("removing the item did not cancel its request")
	}
	if got := len(p.Items()); got != 0 {
		t.Errorf("Items() len = %d, want 0", got)
	}
}

func TestRemix(t *testing.T) {
	tests := []struct {
		name     string
		in       []int32
		from, to int
		want     []int32
	}{
		{"same", []int32{1, 2}, 2, 2, []int32{1, 2}},
		{"stereo to mono", []int32{10, 20, -4, 4}, 2, 1, []int32{15, 0}},
		{"mono to stereo", []int32{7, 8}, 1, 2, []int32{7, 7, 8, 8}},
		{"stereo to 5.1", []int32{1, 2}, 2, 6, []int32{1, 2, 1, 2, 1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := remix(tt.in, tt.from, tt.to)
			if len(got) != len(tt.want) {
				t.Fatalf("remix() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("remix() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}
