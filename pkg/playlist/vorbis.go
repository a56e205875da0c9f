// ABOUTME: Ogg Vorbis file source
// ABOUTME: Decodes with jfreymuth/oggvorbis and converts float samples to the 24-bit range
package playlist

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/Sendspin/sendspin-transcode/pkg/audio"
	"github.com/jfreymuth/oggvorbis"
)

// VorbisSource reads from an Ogg Vorbis file
type VorbisSource struct {
	file   *os.File
	reader *oggvorbis.Reader
	title  string
	buf    []float32
}

// NewVorbisSource creates a new Ogg Vorbis audio source
func NewVorbisSource(filePath string) (*VorbisSource, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Ogg file: %w", err)
	}

	reader, err := oggvorbis.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode Ogg Vorbis: %w", err)
	}

	s := &VorbisSource{
		file:   f,
		reader: reader,
		title:  titleFromPath(filePath),
	}
	log.Printf("Loaded Ogg Vorbis: %s (sample rate: %d Hz, channels: %d)",
		s.title, reader.SampleRate(), reader.Channels())

	return s, nil
}

func (s *VorbisSource) Read(samples []int32) (int, error) {
	if cap(s.buf) < len(samples) {
		s.buf = make([]float32, len(samples))
	}
	buf := s.buf[:len(samples)]

	n, err := s.reader.Read(buf)
	for i := 0; i < n; i++ {
		samples[i] = audio.SampleFromFloat(float64(buf[i]))
	}
	if n == 0 && err == nil {
		err = io.EOF
	}
	return n, err
}

// SeekFrame uses the Ogg page index to jump to a frame
func (s *VorbisSource) SeekFrame(frame int64) error {
	return s.reader.SetPosition(frame)
}

func (s *VorbisSource) SampleRate() int { return s.reader.SampleRate() }
func (s *VorbisSource) Channels() int   { return s.reader.Channels() }
func (s *VorbisSource) Metadata() (string, string, string) {
	return s.title, "Unknown Artist", "Unknown Album"
}
func (s *VorbisSource) Close() error {
	return s.file.Close()
}
