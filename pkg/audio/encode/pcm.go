// ABOUTME: PCM audio encoders
// ABOUTME: Emit little-endian interleaved samples, one packet per buffer
package encode

import (
	"fmt"

	"github.com/Sendspin/sendspin-transcode/pkg/audio"
)

// PCMBackend encodes raw PCM in a single packed sample format
type PCMBackend struct {
	name   string
	format audio.SampleFormat
}

func pcmBackends() []PCMBackend {
	return []PCMBackend{
		{"pcm_u8", audio.SampleFormatU8},
		{"pcm_s16le", audio.SampleFormatS16},
		{"pcm_s24le", audio.SampleFormatS24},
		{"pcm_s32le", audio.SampleFormatS32},
		{"pcm_f32le", audio.SampleFormatF32},
		{"pcm_f64le", audio.SampleFormatF64},
	}
}

// NewPCMBackend returns the PCM backend for a packed sample format
func NewPCMBackend(format audio.SampleFormat) (PCMBackend, error) {
	for _, b := range pcmBackends() {
		if b.format == format {
			return b, nil
		}
	}
	return PCMBackend{}, fmt.Errorf("%w: no PCM codec for %s", ErrUnsupportedFormat, format)
}

func (b PCMBackend) Name() string { return b.name }

// Capabilities accepts exactly one sample format, any rate and any layout
func (b PCMBackend) Capabilities() Capabilities {
	return Capabilities{
		SampleFormats: []audio.SampleFormat{b.format},
	}
}

// Open creates a PCM encoder; the bit rate is implied by the format
func (b PCMBackend) Open(format audio.Format, bitRate int) (Encoder, error) {
	if format.SampleFormat.Packed() != b.format {
		return nil, fmt.Errorf("%w: %s cannot encode %s", ErrUnsupportedFormat, b.name, format.SampleFormat)
	}
	if format.SampleRate <= 0 || format.Channels() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	return &PCMEncoder{format: format}, nil
}

// PCMEncoder encodes PCM audio
type PCMEncoder struct {
	format audio.Format
}

// Encode copies the buffer's samples into a packet, interleaving planar input
func (e *PCMEncoder) Encode(buf *audio.Buffer) (*Packet, error) {
	if buf == nil {
		// Nothing is ever held back
		return nil, nil
	}
	if buf.Format.SampleFormat.Packed() != e.format.SampleFormat.Packed() {
		return nil, fmt.Errorf("%w: got %s, encoder opened for %s",
			ErrUnsupportedFormat, buf.Format.SampleFormat, e.format.SampleFormat)
	}

	data := audio.Interleave(buf.Data, buf.Frames, buf.Format.SampleFormat)
	out := make([]byte, len(data))
	copy(out, data)

	return &Packet{Data: out, Duration: buf.Frames}, nil
}

func (e *PCMEncoder) Flush() {}

func (e *PCMEncoder) FrameSize() int { return 0 }

// Close releases resources
func (e *PCMEncoder) Close() error {
	return nil
}
