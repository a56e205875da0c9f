// ABOUTME: Audio source abstraction for decoding files, URLs or generated tones
// ABOUTME: Sources deliver interleaved 24-bit range samples and report io.EOF at the end
package playlist

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// AudioSource provides PCM audio samples
type AudioSource interface {
	// Read reads interleaved samples (24-bit range in int32). Returns the number of samples
	// read; io.EOF marks the end of the source.
	Read(samples []int32) (int, error)
	// SampleRate returns the sample rate of the audio
	SampleRate() int
	// Channels returns the number of channels
	Channels() int
	// Metadata returns title, artist, album
	Metadata() (title, artist, album string)
	// Close closes the audio source
	Close() error
}

// FrameSeeker is implemented by sources that can jump to a frame without decoding up to it
type FrameSeeker interface {
	SeekFrame(frame int64) error
}

// NewAudioSource creates an audio source from a file path or HTTP URL.
// "tone:" followed by an optional duration in seconds generates a 440Hz test tone.
func NewAudioSource(pathOrURL string) (AudioSource, error) {
	return OpenAudioSource(context.Background(), pathOrURL)
}

// OpenAudioSource is NewAudioSource for streams that must stop when ctx is cancelled
func OpenAudioSource(ctx context.Context, pathOrURL string) (AudioSource, error) {
	if strings.HasPrefix(pathOrURL, "tone:") {
		return parseTone(strings.TrimPrefix(pathOrURL, "tone:"))
	}

	// Check if it's an HTTP(S) URL
	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		// Check if it's an HLS stream (.m3u8)
		if strings.Contains(pathOrURL, ".m3u8") {
			log.Printf("Streaming from HLS URL: %s", pathOrURL)
			return NewFFmpegSource(ctx, pathOrURL)
		}
		log.Printf("Streaming from HTTP URL: %s", pathOrURL)
		return NewHTTPMP3Source(ctx, pathOrURL)
	}

	if _, err := os.Stat(pathOrURL); os.IsNotExist(err) {
		return nil, fmt.Errorf("audio file not found: %s", pathOrURL)
	}

	switch ext := strings.ToLower(filepath.Ext(pathOrURL)); ext {
	case ".mp3":
		return NewMP3Source(pathOrURL)
	case ".flac":
		return NewFLACSource(pathOrURL)
	case ".wav", ".wave":
		return NewWAVSource(pathOrURL)
	case ".aif", ".aiff":
		return NewAIFFSource(pathOrURL)
	case ".ogg", ".oga":
		return NewVorbisSource(pathOrURL)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s (supported: .mp3, .flac, .wav, .aiff, .ogg)", ext)
	}
}

// titleFromPath uses the file name without extension as title
func titleFromPath(path string) string {
	filename := filepath.Base(path)
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

// scaleTo24 shifts a sample of the given bit depth into the 24-bit range
func scaleTo24(sample int32, bitDepth int) int32 {
	switch {
	case bitDepth == 24 || bitDepth == 0:
		return sample
	case bitDepth < 24:
		return sample << (24 - bitDepth)
	default:
		return sample >> (bitDepth - 24)
	}
}
