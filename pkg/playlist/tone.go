// ABOUTME: Test tone generator for audio source
// ABOUTME: Generates a sine wave, endless or for a fixed number of frames
package playlist

import (
	"fmt"
	"io"
	"math"
	"strconv"
)

// ToneSource generates a sine test tone
type ToneSource struct {
	frequency  float64
	sampleRate int
	channels   int
	frames     int64 // total frames, 0 for endless
	index      int64
}

// NewToneSource creates a tone generator. frames <= 0 generates forever.
func NewToneSource(frequency float64, sampleRate, channels int, frames int64) *ToneSource {
	return &ToneSource{
		frequency:  frequency,
		sampleRate: sampleRate,
		channels:   channels,
		frames:     frames,
	}
}

// parseTone parses the "tone:<seconds>" shorthand
func parseTone(arg string) (*ToneSource, error) {
	var frames int64
	if arg != "" {
		seconds, err := strconv.ParseFloat(arg, 64)
		if err != nil || seconds < 0 {
			return nil, fmt.Errorf("invalid tone duration %q", arg)
		}
		frames = int64(seconds * 48000)
	}
	return NewToneSource(440.0, 48000, 2, frames), nil
}

func (s *ToneSource) Read(samples []int32) (int, error) {
	numFrames := int64(len(samples) / s.channels)
	if s.frames > 0 {
		numFrames = min(numFrames, s.frames-s.index)
		if numFrames <= 0 {
			return 0, io.EOF
		}
	}

	for i := int64(0); i < numFrames; i++ {
		t := float64(s.index+i) / float64(s.sampleRate)
		sample := math.Sin(2 * math.Pi * s.frequency * t)

		// 50% volume in the 24-bit range
		value := int32(sample * 8388607.0 * 0.5)
		for ch := 0; ch < s.channels; ch++ {
			samples[int(i)*s.channels+ch] = value
		}
	}
	s.index += numFrames

	return int(numFrames) * s.channels, nil
}

// SeekFrame moves the generator to frame
func (s *ToneSource) SeekFrame(frame int64) error {
	s.index = frame
	return nil
}

func (s *ToneSource) SampleRate() int { return s.sampleRate }
func (s *ToneSource) Channels() int   { return s.channels }
func (s *ToneSource) Metadata() (string, string, string) {
	return "Test Tone", "Sendspin Transcode", ""
}
func (s *ToneSource) Close() error { return nil }
