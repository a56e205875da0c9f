// ABOUTME: Tests for container resolution and muxers
// ABOUTME: Checks scoring, codec selection and the bytes each muxer writes
package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/Sendspin/sendspin-transcode/pkg/audio"
	"github.com/Sendspin/sendspin-transcode/pkg/audio/encode"
)

// recorder keeps every Write call separately
type recorder struct {
	writes [][]byte
}

func (r *recorder) Write(p []byte) (int, error) {
	r.writes = append(r.writes, bytes.Clone(p))
	return len(p), nil
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		format     string
		codec      string
		filename   string
		mime       string
		wantFormat string
		wantCodec  string
		wantErr    error
	}{
		{name: "by name", format: "wav", wantFormat: "wav", wantCodec: "pcm_s16le"},
		{name: "by extension", filename: "out.opus", wantFormat: "ogg", wantCodec: "opus"},
		{name: "by mime with params", mime: "audio/ogg; codecs=opus", wantFormat: "ogg", wantCodec: "opus"},
		{name: "name beats extension", format: "raw", filename: "out.wav", wantFormat: "raw", wantCodec: "pcm_s16le"},
		{name: "mime beats extension", filename: "out.ogg", mime: "audio/wav", wantFormat: "wav", wantCodec: "pcm_s16le"},
		{name: "explicit codec", format: "wav", codec: "pcm_f32le", wantFormat: "wav", wantCodec: "pcm_f32le"},
		{name: "raw carries opus", format: "raw", codec: "opus", wantFormat: "raw", wantCodec: "opus"},
		{name: "no hints", wantErr: ErrUnknownFormat},
		{name: "unknown name", format: "mkv", wantErr: ErrUnknownFormat},
		{name: "unknown codec", format: "wav", codec: "mp3", wantErr: ErrUnknownCodec},
		{name: "codec not allowed", format: "ogg", codec: "pcm_s16le", wantErr: ErrUnsupportedCodec},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, backend, err := Resolve(tt.format, tt.codec, tt.filename, tt.mime)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() unexpected error = %v", err)
			}
			if f.Name != tt.wantFormat {
				t.Errorf("format = %s, want %s", f.Name, tt.wantFormat)
			}
			if backend.Name() != tt.wantCodec {
				t.Errorf("codec = %s, want %s", backend.Name(), tt.wantCodec)
			}
		})
	}
}

func TestGuessTieKeepsRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	first := &Format{Name: "a", Extensions: []string{"x"}}
	second := &Format{Name: "b", Extensions: []string{"x"}}
	r.Register(first)
	r.Register(second)

	if got := r.Guess("", "file.x", ""); got != first {
		t.Errorf("Guess() = %v, want first registered format", got)
	}
}

func TestRawMuxer(t *testing.T) {
	var rec recorder
	m, err := RawFormat.New(&rec, "pcm_s16le", audio.Format{SampleFormat: audio.SampleFormatS16, SampleRate: 44100, Layout: audio.LayoutStereo})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := m.WriteHeader(); err != nil {
		t.Fatal(err)
	}
	for _, p := range [][]byte{{1, 2}, {3, 4, 5}} {
		if err := m.WritePacket(&encode.Packet{Data: p}); err != nil {
			t.Fatal(err)
		}
	}
	if more, err := m.Flush(); more || err != nil {
		t.Errorf("Flush() = %v, %v", more, err)
	}
	if err := m.WriteTrailer(); err != nil {
		t.Fatal(err)
	}

	if len(rec.writes) != 2 {
		t.Fatalf("got %d writes, want one per packet", len(rec.writes))
	}
	if !bytes.Equal(rec.writes[1], []byte{3, 4, 5}) {
		t.Errorf("second write = %v", rec.writes[1])
	}
}

func TestWAVHeader(t *testing.T) {
	tests := []struct {
		name     string
		codec    string
		format   audio.Format
		wantTag  uint16
		wantBits uint16
	}{
		{"s16 stereo", "pcm_s16le", audio.Format{SampleFormat: audio.SampleFormatS16, SampleRate: 44100, Layout: audio.LayoutStereo}, 1, 16},
		{"f32 mono", "pcm_f32le", audio.Format{SampleFormat: audio.SampleFormatF32, SampleRate: 48000, Layout: audio.LayoutMono}, 3, 32},
		{"s24 5.1", "pcm_s24le", audio.Format{SampleFormat: audio.SampleFormatS24, SampleRate: 96000, Layout: audio.Layout5Point1}, 1, 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec recorder
			m, err := WAVFormat.New(&rec, tt.codec, tt.format)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if err := m.WriteHeader(); err != nil {
				t.Fatal(err)
			}
			if len(rec.writes) != 1 || len(rec.writes[0]) != wavHeaderSize {
				t.Fatalf("header writes = %d", len(rec.writes))
			}
			h := rec.writes[0]

			if string(h[0:4]) != "RIFF" || string(h[8:12]) != "WAVE" || string(h[36:40]) != "data" {
				t.Errorf("bad chunk ids: %q", h)
			}
			if binary.LittleEndian.Uint32(h[4:]) != wavStreamSize || binary.LittleEndian.Uint32(h[40:]) != wavStreamSize {
				t.Error("streaming sizes not set")
			}
			if got := binary.LittleEndian.Uint16(h[20:]); got != tt.wantTag {
				t.Errorf("format tag = %d, want %d", got, tt.wantTag)
			}
			if got := binary.LittleEndian.Uint16(h[22:]); int(got) != tt.format.Channels() {
				t.Errorf("channels = %d, want %d", got, tt.format.Channels())
			}
			if got := binary.LittleEndian.Uint32(h[24:]); int(got) != tt.format.SampleRate {
				t.Errorf("sample rate = %d", got)
			}
			if got := binary.LittleEndian.Uint32(h[28:]); int(got) != tt.format.SampleRate*tt.format.BytesPerFrame() {
				t.Errorf("byte rate = %d", got)
			}
			if got := binary.LittleEndian.Uint16(h[34:]); got != tt.wantBits {
				t.Errorf("bits = %d, want %d", got, tt.wantBits)
			}
		})
	}
}

func TestWAVRejectsOpus(t *testing.T) {
	_, err := WAVFormat.New(&recorder{}, "opus", audio.Format{SampleFormat: audio.SampleFormatS16, SampleRate: 48000, Layout: audio.LayoutStereo})
	if !errors.Is(err, ErrUnsupportedCodec) {
		t.Errorf("New() error = %v, want ErrUnsupportedCodec", err)
	}
}

func TestOggMuxerPages(t *testing.T) {
	var rec recorder
	format := audio.Format{SampleFormat: audio.SampleFormatS16, SampleRate: 48000, Layout: audio.LayoutStereo}
	m, err := OggFormat.New(&rec, "opus", format)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := m.WritePacket(&encode.Packet{Data: []byte{1}, Duration: 960}); err == nil {
		t.Error("WritePacket() before header should fail")
	}

	if err := m.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader() error = %v", err)
	}
	headerWrites := len(rec.writes)
	if headerWrites == 0 {
		t.Fatal("header wrote nothing")
	}

	// A minimal Opus TOC byte plus payload
	for i := 0; i < 3; i++ {
		if err := m.WritePacket(&encode.Packet{Data: []byte{0xfc, 0xff, 0xfe}, Duration: 960}); err != nil {
			t.Fatalf("WritePacket() error = %v", err)
		}
	}
	if err := m.WriteTrailer(); err != nil {
		t.Fatalf("WriteTrailer() error = %v", err)
	}

	if got := len(rec.writes) - headerWrites; got != 3 {
		t.Errorf("got %d packet writes, want 3", got)
	}
	for i, w := range rec.writes {
		if !bytes.HasPrefix(w, []byte("OggS")) {
			t.Errorf("write %d is not an Ogg page", i)
		}
	}
	if !bytes.Contains(rec.writes[0], []byte("OpusHead")) {
		t.Error("first page does not carry OpusHead")
	}
	checkOggPages(t, rec.writes)

	audioPages := rec.writes[headerWrites:]
	for i, page := range audioPages {
		if got, want := binary.LittleEndian.Uint64(page[6:]), uint64(960*(i+1)); got != want {
			t.Errorf("page %d granule = %d, want %d", i, got, want)
		}
		eos := page[5]&0x04 != 0
		if last := i == len(audioPages)-1; eos != last {
			t.Errorf("page %d end-of-stream = %v, want %v", i, eos, last)
		}
	}
}

func TestOggSegmentsAreClosedStreams(t *testing.T) {
	var rec recorder
	format := audio.Format{SampleFormat: audio.SampleFormatF32, SampleRate: 24000, Layout: audio.LayoutMono}
	m, err := OggFormat.New(&rec, "opus", format)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// One 20ms packet at 24kHz, then a segment without audio
	if err := m.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader() error = %v", err)
	}
	if err := m.WritePacket(&encode.Packet{Data: []byte{0xfc, 0xff, 0xfe}, Duration: 480}); err != nil {
		t.Fatalf("WritePacket() error = %v", err)
	}
	if err := m.WriteTrailer(); err != nil {
		t.Fatalf("WriteTrailer() error = %v", err)
	}
	first := len(rec.writes)

	if err := m.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader() error = %v", err)
	}
	if err := m.WriteTrailer(); err != nil {
		t.Fatalf("WriteTrailer() error = %v", err)
	}
	checkOggPages(t, rec.writes)

	end := rec.writes[first-1]
	if end[5]&0x04 == 0 {
		t.Error("first stream has no end-of-stream page")
	}
	if got := binary.LittleEndian.Uint64(end[6:]); got != 960 {
		t.Errorf("first stream granule = %d, want 960", got)
	}

	second := rec.writes[first:]
	if second[0][5]&0x02 == 0 {
		t.Error("second stream does not begin with a BOS page")
	}
	empty := second[len(second)-1]
	if empty[5]&0x04 == 0 || empty[26] != 0 {
		t.Errorf("empty stream end page: type %#x, %d segments", empty[5], empty[26])
	}
	header := second[len(second)-2]
	if !bytes.Equal(empty[14:18], header[14:18]) {
		t.Error("end page serial does not match its stream")
	}
	if got, want := binary.LittleEndian.Uint32(empty[18:]), binary.LittleEndian.Uint32(header[18:])+1; got != want {
		t.Errorf("end page sequence = %d, want %d", got, want)
	}
}

// checkOggPages verifies the capture pattern and checksum of every page
func checkOggPages(t *testing.T, pages [][]byte) {
	t.Helper()
	for i, page := range pages {
		if !bytes.HasPrefix(page, []byte("OggS")) {
			t.Errorf("write %d is not an Ogg page", i)
			continue
		}
		if got, want := binary.LittleEndian.Uint32(page[22:]), oggChecksum(page); got != want {
			t.Errorf("page %d checksum = %#x, want %#x", i, got, want)
		}
	}
}
