// ABOUTME: MP3 sources for local files and HTTP streams
// ABOUTME: Decodes with go-mp3, which always yields 16-bit stereo
package playlist

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// go-mp3 output is 16-bit stereo
const mp3BytesPerFrame = 4

// streamClient bounds connecting and waiting for response headers. The body
// of a live stream has no deadline; it ends when the request context is cancelled.
var streamClient = &http.Client{
	Transport: &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	},
}

// decodeS16 converts little-endian int16 bytes to 24-bit range samples
func decodeS16(buf []byte, samples []int32) int {
	numSamples := len(buf) / 2
	for i := 0; i < numSamples; i++ {
		sample16 := int16(binary.LittleEndian.Uint16(buf[i*2 : i*2+2]))
		// Left-shift by 8 to convert 16-bit range to 24-bit range
		samples[i] = int32(sample16) << 8
	}
	return numSamples
}

// MP3Source reads from an MP3 file
type MP3Source struct {
	file       *os.File
	decoder    *mp3.Decoder
	sampleRate int
	title      string
	buf        []byte
}

// NewMP3Source creates a new MP3 audio source
func NewMP3Source(filePath string) (*MP3Source, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	title := titleFromPath(filePath)
	log.Printf("Loaded MP3: %s (sample rate: %d Hz)", title, decoder.SampleRate())

	return &MP3Source{
		file:       f,
		decoder:    decoder,
		sampleRate: decoder.SampleRate(),
		title:      title,
	}, nil
}

func (s *MP3Source) Read(samples []int32) (int, error) {
	numBytes := len(samples) * 2
	if cap(s.buf) < numBytes {
		s.buf = make([]byte, numBytes)
	}
	buf := s.buf[:numBytes]

	n, err := io.ReadFull(s.decoder, buf)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	if err != nil && err != io.EOF {
		return 0, err
	}

	return decodeS16(buf[:n-n%2], samples), err
}

// SeekFrame jumps to a frame using the decoder's byte offsets
func (s *MP3Source) SeekFrame(frame int64) error {
	_, err := s.decoder.Seek(frame*mp3BytesPerFrame, io.SeekStart)
	return err
}

func (s *MP3Source) SampleRate() int { return s.sampleRate }
func (s *MP3Source) Channels() int   { return 2 }
func (s *MP3Source) Metadata() (string, string, string) {
	return s.title, "Unknown Artist", "Unknown Album"
}
func (s *MP3Source) Close() error {
	return s.file.Close()
}

// HTTPMP3Source streams MP3 from an HTTP URL
type HTTPMP3Source struct {
	url        string
	response   *http.Response
	decoder    *mp3.Decoder
	sampleRate int
	buf        []byte
}

// NewHTTPMP3Source creates a new HTTP MP3 streaming source.
// Cancelling ctx aborts both the request and later reads.
func NewHTTPMP3Source(ctx context.Context, url string) (*HTTPMP3Source, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid stream URL: %w", err)
	}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch HTTP stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	decoder, err := mp3.NewDecoder(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to decode MP3 stream: %w", err)
	}

	log.Printf("Streaming MP3 from HTTP: %s (sample rate: %d Hz)", url, decoder.SampleRate())

	return &HTTPMP3Source{
		url:        url,
		response:   resp,
		decoder:    decoder,
		sampleRate: decoder.SampleRate(),
	}, nil
}

func (s *HTTPMP3Source) Read(samples []int32) (int, error) {
	numBytes := len(samples) * 2
	if cap(s.buf) < numBytes {
		s.buf = make([]byte, numBytes)
	}
	buf := s.buf[:numBytes]

	n, err := s.decoder.Read(buf)
	if err != nil && err != io.EOF {
		return 0, err
	}
	return decodeS16(buf[:n-n%2], samples), err
}

func (s *HTTPMP3Source) SampleRate() int { return s.sampleRate }
func (s *HTTPMP3Source) Channels() int   { return 2 }
func (s *HTTPMP3Source) Metadata() (string, string, string) {
	return s.url, "HTTP Stream", ""
}
func (s *HTTPMP3Source) Close() error {
	if s.response != nil {
		return s.response.Body.Close()
	}
	return nil
}
