// ABOUTME: ffmpeg-backed source for streaming protocols such as HLS
// ABOUTME: Runs ffmpeg as a child process producing 16-bit stereo PCM on stdout
package playlist

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os/exec"
)

// FFmpegSource streams audio from any URL/format using ffmpeg
type FFmpegSource struct {
	url        string
	cmd        *exec.Cmd
	stdout     io.ReadCloser
	reader     *bufio.Reader
	sampleRate int
	buf        []byte
}

// NewFFmpegSource starts ffmpeg to decode url into raw PCM. Cancelling ctx kills the process.
func NewFFmpegSource(ctx context.Context, url string) (*FFmpegSource, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	sampleRate := 48000
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-loglevel", "error",
		"-i", url,
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", "2",
		"-")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	log.Printf("Streaming via ffmpeg: %s (sample rate: %d Hz)", url, sampleRate)

	return &FFmpegSource{
		url:        url,
		cmd:        cmd,
		stdout:     stdout,
		reader:     bufio.NewReader(stdout),
		sampleRate: sampleRate,
	}, nil
}

func (s *FFmpegSource) Read(samples []int32) (int, error) {
	numBytes := len(samples) * 2
	if cap(s.buf) < numBytes {
		s.buf = make([]byte, numBytes)
	}
	buf := s.buf[:numBytes]

	n, err := io.ReadFull(s.reader, buf)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	if err != nil && err != io.EOF {
		return 0, err
	}
	return decodeS16(buf[:n-n%2], samples), err
}

func (s *FFmpegSource) SampleRate() int { return s.sampleRate }
func (s *FFmpegSource) Channels() int   { return 2 }
func (s *FFmpegSource) Metadata() (string, string, string) {
	return s.url, "Live Stream", ""
}
func (s *FFmpegSource) Close() error {
	if s.stdout != nil {
		s.stdout.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
		s.cmd.Wait()
	}
	return nil
}
