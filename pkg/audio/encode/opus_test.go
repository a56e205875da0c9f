// ABOUTME: Unit tests for Opus encoder
// ABOUTME: Tests frame accumulation, draining and flush behaviour
package encode

import (
	"errors"
	"testing"

	"github.com/Sendspin/sendspin-transcode/pkg/audio"
	"github.com/google/uuid"
)

func opusFormat(sf audio.SampleFormat, rate int, layout audio.ChannelLayout) audio.Format {
	return audio.Format{SampleFormat: sf, SampleRate: rate, Layout: layout}
}

func pcmBuffer(format audio.Format, frames int) *audio.Buffer {
	samples := make([]int32, frames*format.Channels())
	for i := range samples {
		samples[i] = int32((i % 1000) * 8388)
	}
	return audio.NewBuffer(audio.Pack(samples, format.Channels(), format.SampleFormat), frames, format, uuid.Nil, 0)
}

func TestOpusBackendOpen(t *testing.T) {
	tests := []struct {
		name    string
		format  audio.Format
		wantErr bool
	}{
		{
			name:   "valid Opus 48kHz stereo",
			format: opusFormat(audio.SampleFormatS16, 48000, audio.LayoutStereo),
		},
		{
			name:   "valid Opus 24kHz mono float",
			format: opusFormat(audio.SampleFormatF32, 24000, audio.LayoutMono),
		},
		{
			name:    "unsupported sample format",
			format:  opusFormat(audio.SampleFormatS24, 48000, audio.LayoutStereo),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoder, err := OpusBackend{}.Open(tt.format, 0)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedFormat) {
					t.Errorf("Open() error = %v, want ErrUnsupportedFormat", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open() unexpected error = %v", err)
			}
			defer encoder.Close()

			if got, want := encoder.FrameSize(), tt.format.SampleRate/50; got != want {
				t.Errorf("FrameSize() = %d, want %d", got, want)
			}
		})
	}
}

func TestOpusEncoderAccumulatesFrames(t *testing.T) {
	format := opusFormat(audio.SampleFormatS16, 48000, audio.LayoutStereo)
	encoder, err := OpusBackend{}.Open(format, 128000)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer encoder.Close()

	// Half a 20ms frame is held back
	pkt, err := encoder.Encode(pcmBuffer(format, 480))
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	if pkt != nil {
		t.Fatalf("Encode() returned a packet for half a frame")
	}

	pkt, err = encoder.Encode(pcmBuffer(format, 480))
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	if pkt == nil {
		t.Fatal("Encode() returned no packet for a full frame")
	}
	if len(pkt.Data) == 0 || len(pkt.Data) > maxOpusPacket {
		t.Errorf("packet size %d out of range", len(pkt.Data))
	}
	if pkt.Duration != 960 {
		t.Errorf("Duration = %d, want 960", pkt.Duration)
	}
}

func TestOpusEncoderDrain(t *testing.T) {
	format := opusFormat(audio.SampleFormatF32, 48000, audio.LayoutMono)
	encoder, err := OpusBackend{}.Open(format, 0)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer encoder.Close()

	if _, err := encoder.Encode(pcmBuffer(format, 100)); err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}

	// Draining pads the partial frame with silence
	pkt, err := encoder.Encode(nil)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if pkt == nil || len(pkt.Data) == 0 {
		t.Fatal("drain returned no packet")
	}

	pkt, err = encoder.Encode(nil)
	if err != nil || pkt != nil {
		t.Errorf("second drain = %v, %v, want nil, nil", pkt, err)
	}
}

func TestOpusEncoderFlushDropsPending(t *testing.T) {
	format := opusFormat(audio.SampleFormatS16, 48000, audio.LayoutStereo)
	encoder, err := OpusBackend{}.Open(format, 0)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer encoder.Close()

	if _, err := encoder.Encode(pcmBuffer(format, 480)); err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	encoder.Flush()

	pkt, err := encoder.Encode(nil)
	if err != nil || pkt != nil {
		t.Errorf("drain after Flush = %v, %v, want nil, nil", pkt, err)
	}
}

func TestOpusEncoderRejectsMismatchedBuffer(t *testing.T) {
	format := opusFormat(audio.SampleFormatS16, 48000, audio.LayoutStereo)
	encoder, err := OpusBackend{}.Open(format, 0)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer encoder.Close()

	mono := opusFormat(audio.SampleFormatS16, 48000, audio.LayoutMono)
	if _, err := encoder.Encode(pcmBuffer(mono, 960)); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Encode() error = %v, want ErrUnsupportedFormat", err)
	}
}
