// ABOUTME: Container writer interfaces and registry
// ABOUTME: Resolves a container format and codec from name, filename and MIME type hints
// Package container wraps encoded packets into a byte stream (raw, WAV, Ogg).
package container

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/Sendspin/sendspin-transcode/pkg/audio"
	"github.com/Sendspin/sendspin-transcode/pkg/audio/encode"
)

var (
	// ErrUnknownFormat is returned when no container matches the hints
	ErrUnknownFormat = errors.New("unknown container format")
	// ErrUnknownCodec is returned when the codec is not a registered backend
	ErrUnknownCodec = errors.New("unknown codec")
	// ErrUnsupportedCodec is returned when the container cannot carry the codec
	ErrUnsupportedCodec = errors.New("codec not supported by container")
)

// Muxer writes one container stream to its writer.
// Each call results in zero or more Write calls on the underlying writer.
type Muxer interface {
	// WriteHeader starts a new stream segment
	WriteHeader() error
	// WritePacket writes one encoded packet
	WritePacket(p *encode.Packet) error
	// Flush writes out anything the muxer holds back; more reports that Flush should be called again
	Flush() (more bool, err error)
	// WriteTrailer ends the current segment
	WriteTrailer() error
}

// Format describes a container and how to create its muxer
type Format struct {
	Name         string
	Extensions   []string
	MimeTypes    []string
	Codecs       []string // empty means any codec
	DefaultCodec string

	New func(w io.Writer, codec string, f audio.Format) (Muxer, error)
}

// MimeType returns the preferred MIME type of the container
func (f *Format) MimeType() string {
	if len(f.MimeTypes) == 0 {
		return "application/octet-stream"
	}
	return f.MimeTypes[0]
}

// Supports reports whether the container can carry codec
func (f *Format) Supports(codec string) bool {
	return len(f.Codecs) == 0 || slices.Contains(f.Codecs, codec)
}

// Registry holds container formats in registration order
type Registry struct {
	formats []*Format
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a format. Earlier registrations win score ties.
func (r *Registry) Register(f *Format) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.formats = append(r.formats, f)
}

// Formats returns the registered formats
func (r *Registry) Formats() []*Format {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.formats)
}

// Guess returns the best matching format for the hints, or nil.
// A name match scores 100, a MIME type match 10, a file extension match 5.
func (r *Registry) Guess(name, filename, mimeType string) *Format {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	mimeType = strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))

	var best *Format
	bestScore := 0
	for _, f := range r.formats {
		score := 0
		if name != "" && strings.EqualFold(name, f.Name) {
			score += 100
		}
		if mimeType != "" && slices.Contains(f.MimeTypes, mimeType) {
			score += 10
		}
		if ext != "" && slices.Contains(f.Extensions, ext) {
			score += 5
		}
		if score > bestScore {
			best, bestScore = f, score
		}
	}
	return best
}

// Resolve picks the container format and codec backend for the hints.
// An empty codecName selects the container's default codec.
func (r *Registry) Resolve(formatName, codecName, filename, mimeType string, backends *encode.Registry) (*Format, encode.Backend, error) {
	f := r.Guess(formatName, filename, mimeType)
	if f == nil {
		return nil, nil, fmt.Errorf("%w: format=%q filename=%q mime=%q", ErrUnknownFormat, formatName, filename, mimeType)
	}

	codec := codecName
	if codec == "" {
		codec = f.DefaultCodec
	}
	backend, ok := backends.Lookup(codec)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownCodec, codec)
	}
	if !f.Supports(codec) {
		return nil, nil, fmt.Errorf("%w: %s in %s", ErrUnsupportedCodec, codec, f.Name)
	}
	return f, backend, nil
}

// DefaultRegistry holds the built-in raw, WAV and Ogg formats
var DefaultRegistry = NewRegistry()

func init() {
	DefaultRegistry.Register(RawFormat)
	DefaultRegistry.Register(WAVFormat)
	DefaultRegistry.Register(OggFormat)
}

// Resolve resolves against the default container and codec registries
func Resolve(formatName, codecName, filename, mimeType string) (*Format, encode.Backend, error) {
	return DefaultRegistry.Resolve(formatName, codecName, filename, mimeType, encode.DefaultRegistry)
}
