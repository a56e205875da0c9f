// ABOUTME: WAV and AIFF file sources
// ABOUTME: Decode integer PCM through go-audio's wav and aiff decoders
package playlist

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var errInvalidPCMFile = errors.New("not a valid PCM audio file")

// pcmDecoder is the part of the go-audio decoders the source needs
type pcmDecoder interface {
	Format() *goaudio.Format
	PCMBuffer(buf *goaudio.IntBuffer) (int, error)
}

// PCMFileSource reads integer PCM from a WAV or AIFF file
type PCMFileSource struct {
	file       *os.File
	dec        pcmDecoder
	sampleRate int
	channels   int
	bitDepth   int
	unsigned   bool // 8-bit WAV samples are unsigned
	title      string
	intBuf     *goaudio.IntBuffer
}

// NewWAVSource opens a WAV file
func NewWAVSource(filePath string) (*PCMFileSource, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file: %w", err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("%w: %s", errInvalidPCMFile, filePath)
	}
	dec.ReadInfo()
	if err := dec.FwdToPCM(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to find WAV data: %w", err)
	}

	bitDepth := int(dec.BitDepth)
	return newPCMFileSource(f, dec, bitDepth, bitDepth == 8, "WAV")
}

// NewAIFFSource opens an AIFF file
func NewAIFFSource(filePath string) (*PCMFileSource, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open AIFF file: %w", err)
	}

	dec := aiff.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("%w: %s", errInvalidPCMFile, filePath)
	}
	dec.ReadInfo()

	return newPCMFileSource(f, dec, int(dec.BitDepth), false, "AIFF")
}

func newPCMFileSource(f *os.File, dec pcmDecoder, bitDepth int, unsigned bool, kind string) (*PCMFileSource, error) {
	format := dec.Format()
	if format == nil || format.NumChannels == 0 || format.SampleRate == 0 {
		f.Close()
		return nil, fmt.Errorf("%w: missing %s format", errInvalidPCMFile, kind)
	}

	s := &PCMFileSource{
		file:       f,
		dec:        dec,
		sampleRate: format.SampleRate,
		channels:   format.NumChannels,
		bitDepth:   bitDepth,
		unsigned:   unsigned,
		title:      titleFromPath(f.Name()),
	}

	log.Printf("Loaded %s: %s (sample rate: %d Hz, channels: %d, bit depth: %d)",
		kind, s.title, s.sampleRate, s.channels, s.bitDepth)

	return s, nil
}

func (s *PCMFileSource) Read(samples []int32) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}

	if s.intBuf == nil || cap(s.intBuf.Data) < len(samples) {
		s.intBuf = &goaudio.IntBuffer{
			Data:           make([]int, len(samples)),
			Format:         s.dec.Format(),
			SourceBitDepth: s.bitDepth,
		}
	} else {
		s.intBuf.Data = s.intBuf.Data[:len(samples)]
	}

	n, err := s.dec.PCMBuffer(s.intBuf)
	if n == 0 {
		if err != nil {
			return 0, err
		}
		return 0, io.EOF
	}

	for i := 0; i < n; i++ {
		v := s.intBuf.Data[i]
		if s.unsigned {
			v -= 128
		}
		samples[i] = scaleTo24(int32(v), s.bitDepth)
	}
	return n, err
}

func (s *PCMFileSource) SampleRate() int { return s.sampleRate }
func (s *PCMFileSource) Channels() int   { return s.channels }
func (s *PCMFileSource) Metadata() (string, string, string) {
	return s.title, "Unknown Artist", "Unknown Album"
}
func (s *PCMFileSource) Close() error {
	return s.file.Close()
}
