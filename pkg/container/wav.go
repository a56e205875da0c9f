// ABOUTME: Streaming WAV container writer
// ABOUTME: Emits a RIFF/WAVE header with unknown sizes followed by PCM packets
package container

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/Sendspin/sendspin-transcode/pkg/audio"
	"github.com/Sendspin/sendspin-transcode/pkg/audio/encode"
)

const (
	wavHeaderSize = 44
	// Sizes are unknown while streaming
	wavStreamSize = 0xFFFFFFFF

	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// WAVFormat carries little-endian PCM
var WAVFormat = &Format{
	Name:         "wav",
	Extensions:   []string{"wav", "wave"},
	MimeTypes:    []string{"audio/wav", "audio/x-wav", "audio/wave"},
	Codecs:       []string{"pcm_u8", "pcm_s16le", "pcm_s24le", "pcm_s32le", "pcm_f32le", "pcm_f64le"},
	DefaultCodec: "pcm_s16le",
	New:          newWAVMuxer,
}

type wavMuxer struct {
	w      io.Writer
	header []byte
}

func newWAVMuxer(w io.Writer, codec string, f audio.Format) (Muxer, error) {
	if !strings.HasPrefix(codec, "pcm_") {
		return nil, fmt.Errorf("%w: %s in wav", ErrUnsupportedCodec, codec)
	}
	if f.Channels() == 0 || f.SampleRate <= 0 || f.SampleFormat.BytesPerSample() == 0 {
		return nil, fmt.Errorf("invalid wav format: %s", f)
	}
	return &wavMuxer{w: w, header: wavHeader(f)}, nil
}

func wavHeader(f audio.Format) []byte {
	tag := uint16(wavFormatPCM)
	if f.SampleFormat.Float() {
		tag = wavFormatFloat
	}
	blockAlign := f.BytesPerFrame()
	bits := f.SampleFormat.BytesPerSample() * 8

	h := make([]byte, wavHeaderSize)
	copy(h[0:], "RIFF")
	binary.LittleEndian.PutUint32(h[4:], wavStreamSize)
	copy(h[8:], "WAVE")
	copy(h[12:], "fmt ")
	binary.LittleEndian.PutUint32(h[16:], 16)
	binary.LittleEndian.PutUint16(h[20:], tag)
	binary.LittleEndian.PutUint16(h[22:], uint16(f.Channels()))
	binary.LittleEndian.PutUint32(h[24:], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(h[28:], uint32(f.SampleRate*blockAlign))
	binary.LittleEndian.PutUint16(h[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:], uint16(bits))
	copy(h[36:], "data")
	binary.LittleEndian.PutUint32(h[40:], wavStreamSize)
	return h
}

func (m *wavMuxer) WriteHeader() error {
	_, err := m.w.Write(m.header)
	return err
}

func (m *wavMuxer) WritePacket(p *encode.Packet) error {
	if len(p.Data) == 0 {
		return nil
	}
	_, err := m.w.Write(p.Data)
	return err
}

func (m *wavMuxer) Flush() (bool, error) { return false, nil }

func (m *wavMuxer) WriteTrailer() error { return nil }
