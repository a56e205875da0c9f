// ABOUTME: Encoder backend interfaces and registry
// ABOUTME: Backends describe their capabilities and open stateful encoder sessions
package encode

import (
	"errors"
	"sort"
	"sync"

	"github.com/Sendspin/sendspin-transcode/pkg/audio"
)

// ErrUnsupportedFormat is returned by Open when a backend cannot encode the requested format
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Capabilities lists the formats a backend accepts. A nil slice means any value is accepted.
type Capabilities struct {
	SampleFormats  []audio.SampleFormat
	SampleRates    []int
	ChannelLayouts []audio.ChannelLayout
}

// Packet is one unit of encoder output
type Packet struct {
	Data []byte
	// Duration is the number of frames (samples per channel) the packet covers
	Duration int
}

// Backend is a codec implementation
type Backend interface {
	// Name is the codec short name used for lookup (e.g. "opus", "pcm_s16le")
	Name() string

	// Capabilities describes the formats the backend can encode
	Capabilities() Capabilities

	// Open starts an encoder session for a negotiated format
	Open(format audio.Format, bitRate int) (Encoder, error)
}

// Encoder is an open, stateful codec session
type Encoder interface {
	// Encode submits one buffer and returns at most one packet.
	// A nil buffer drains delayed output; a nil packet means nothing is ready.
	Encode(buf *audio.Buffer) (*Packet, error)

	// Flush discards any input buffered inside the encoder
	Flush()

	// FrameSize is the preferred number of frames per input buffer (0 means any)
	FrameSize() int

	// Close releases encoder resources
	Close() error
}

// Registry maps codec names to backends
type Registry struct {
	backends map[string]Backend
	mu       sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]Backend),
	}
}

// Register adds or replaces a backend
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.backends[b.Name()] = b
}

// Lookup returns the backend registered under name
func (r *Registry) Lookup(name string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[name]
	return b, ok
}

// Names returns the registered codec names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry holds the built-in PCM and Opus backends
var DefaultRegistry = NewRegistry()

func init() {
	for _, b := range pcmBackends() {
		DefaultRegistry.Register(b)
	}
	DefaultRegistry.Register(OpusBackend{})
}

// Register adds a backend to the default registry
func Register(b Backend) {
	DefaultRegistry.Register(b)
}

// Lookup finds a backend in the default registry
func Lookup(name string) (Backend, bool) {
	return DefaultRegistry.Lookup(name)
}
