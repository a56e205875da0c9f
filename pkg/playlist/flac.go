// ABOUTME: FLAC file source
// ABOUTME: Decodes with mewkiz/flac and scales any bit depth to the 24-bit range
package playlist

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/mewkiz/flac"
)

// FLACSource reads from a FLAC file
type FLACSource struct {
	file       *os.File
	stream     *flac.Stream
	sampleRate int
	channels   int
	bitDepth   int
	title      string

	// Interleaved samples decoded but not yet returned
	pending []int32
}

// NewFLACSource creates a new FLAC audio source
func NewFLACSource(filePath string) (*FLACSource, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file: %w", err)
	}

	stream, err := flac.NewSeek(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	info := stream.Info
	s := &FLACSource{
		file:       f,
		stream:     stream,
		sampleRate: int(info.SampleRate),
		channels:   int(info.NChannels),
		bitDepth:   int(info.BitsPerSample),
		title:      titleFromPath(filePath),
	}

	log.Printf("Loaded FLAC: %s (sample rate: %d Hz, channels: %d, bit depth: %d)",
		s.title, s.sampleRate, s.channels, s.bitDepth)

	return s, nil
}

func (s *FLACSource) Read(samples []int32) (int, error) {
	for len(s.pending) < len(samples) {
		frame, err := s.stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}

		for i := 0; i < int(frame.BlockSize); i++ {
			for ch := 0; ch < s.channels; ch++ {
				s.pending = append(s.pending, scaleTo24(frame.Subframes[ch].Samples[i], s.bitDepth))
			}
		}
	}

	n := copy(samples, s.pending)
	s.pending = s.pending[n:]
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// SeekFrame jumps to the frame containing the sample and drops the lead-in
func (s *FLACSource) SeekFrame(frame int64) error {
	start, err := s.stream.Seek(uint64(frame))
	if err != nil {
		return err
	}
	s.pending = nil

	skip := (frame - int64(start)) * int64(s.channels)
	discard := make([]int32, 4096*s.channels)
	for skip > 0 {
		n, err := s.Read(discard[:min(int64(len(discard)), skip)])
		if err != nil {
			return err
		}
		skip -= int64(n)
	}
	return nil
}

func (s *FLACSource) SampleRate() int { return s.sampleRate }
func (s *FLACSource) Channels() int   { return s.channels }
func (s *FLACSource) Metadata() (string, string, string) {
	return s.title, "Unknown Artist", "Unknown Album"
}
func (s *FLACSource) Close() error {
	return s.file.Close()
}
