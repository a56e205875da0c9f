// ABOUTME: Opus audio encoder
// ABOUTME: Buffers input into 20ms frames and encodes them with libopus
package encode

import (
	"fmt"
	"log"

	"github.com/Sendspin/sendspin-transcode/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// maxOpusPacket is the largest packet libopus can produce
const maxOpusPacket = 4000

// OpusBackend encodes Opus
type OpusBackend struct{}

func (OpusBackend) Name() string { return "opus" }

// Capabilities lists the rates and layouts libopus accepts
func (OpusBackend) Capabilities() Capabilities {
	return Capabilities{
		SampleFormats:  []audio.SampleFormat{audio.SampleFormatS16, audio.SampleFormatF32},
		SampleRates:    []int{48000, 24000, 16000, 12000, 8000},
		ChannelLayouts: []audio.ChannelLayout{audio.LayoutMono, audio.LayoutStereo},
	}
}

// Open creates an Opus encoder. bitRate <= 0 selects 64 kbps per channel.
func (OpusBackend) Open(format audio.Format, bitRate int) (Encoder, error) {
	if format.SampleFormat != audio.SampleFormatS16 && format.SampleFormat != audio.SampleFormatF32 {
		return nil, fmt.Errorf("%w: opus needs s16 or flt input, got %s", ErrUnsupportedFormat, format.SampleFormat)
	}

	channels := format.Channels()
	if bitRate <= 0 {
		bitRate = 64000 * channels
	}

	e := &OpusEncoder{
		format:    format,
		channels:  channels,
		bitRate:   bitRate,
		frameSize: format.SampleRate / 50, // 20ms frame
	}
	if err := e.reset(); err != nil {
		return nil, err
	}
	return e, nil
}

// OpusEncoder encodes Opus audio
type OpusEncoder struct {
	encoder   *opus.Encoder
	format    audio.Format
	channels  int
	bitRate   int
	frameSize int // samples per channel per frame

	// Interleaved samples waiting for a complete frame
	pending []int32
}

func (e *OpusEncoder) reset() error {
	encoder, err := opus.NewEncoder(e.format.SampleRate, e.channels, opus.AppAudio)
	if err != nil {
		return fmt.Errorf("failed to create opus encoder: %w", err)
	}
	if err := encoder.SetBitrate(e.bitRate); err != nil {
		log.Printf("Warning: Failed to set Opus bitrate: %v", err)
	}
	e.encoder = encoder
	e.pending = e.pending[:0]
	return nil
}

// Encode appends the buffer to the pending samples and encodes one frame once enough
// samples are available. A nil buffer pads the remaining samples with silence.
func (e *OpusEncoder) Encode(buf *audio.Buffer) (*Packet, error) {
	frameLen := e.frameSize * e.channels

	if buf != nil {
		if buf.Format.SampleFormat.Packed() != e.format.SampleFormat || buf.Format.Channels() != e.channels {
			return nil, fmt.Errorf("%w: got %s, encoder opened for %s", ErrUnsupportedFormat, buf.Format, e.format)
		}
		samples := audio.Unpack(buf.Data, buf.Frames, e.channels, buf.Format.SampleFormat)
		e.pending = append(e.pending, samples...)
		if len(e.pending) < frameLen {
			return nil, nil
		}
	} else {
		if len(e.pending) == 0 {
			return nil, nil
		}
		for len(e.pending) < frameLen {
			e.pending = append(e.pending, 0)
		}
	}

	frame := e.pending[:frameLen]
	data := make([]byte, maxOpusPacket)

	var n int
	var err error
	if e.format.SampleFormat == audio.SampleFormatF32 {
		pcm := make([]float32, len(frame))
		for i, s := range frame {
			pcm[i] = float32(audio.SampleToFloat(s))
		}
		n, err = e.encoder.EncodeFloat32(pcm, data)
	} else {
		pcm := make([]int16, len(frame))
		for i, s := range frame {
			pcm[i] = audio.SampleToInt16(s)
		}
		n, err = e.encoder.Encode(pcm, data)
	}

	e.pending = append(e.pending[:0], e.pending[frameLen:]...)
	if err != nil {
		return nil, fmt.Errorf("opus encode error: %w", err)
	}

	return &Packet{Data: data[:n], Duration: e.frameSize}, nil
}

// Flush drops pending samples and restarts the codec state
func (e *OpusEncoder) Flush() {
	if err := e.reset(); err != nil {
		log.Printf("opus: %v", err)
	}
}

func (e *OpusEncoder) FrameSize() int { return e.frameSize }

// Close releases resources
func (e *OpusEncoder) Close() error {
	// opus.Encoder doesn't have a Close method, nothing to do
	e.pending = nil
	return nil
}
