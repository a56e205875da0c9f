// ABOUTME: Audio type definitions
// ABOUTME: Defines audio formats, refcounted buffers and sample conversions
package audio

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// Format describes decoded audio: sample representation, rate and channel layout
type Format struct {
	SampleFormat SampleFormat
	SampleRate   int
	Layout       ChannelLayout
}

// Channels returns the channel count of the layout
func (f Format) Channels() int {
	return f.Layout.Channels()
}

// BytesPerFrame returns the size of one frame across all channels
func (f Format) BytesPerFrame() int {
	return f.SampleFormat.BytesPerSample() * f.Channels()
}

func (f Format) String() string {
	return fmt.Sprintf("%s, %d Hz, %s", f.SampleFormat, f.SampleRate, f.Layout)
}

// BufferResult reports the outcome of pulling a buffer
type BufferResult int

const (
	// BufferNone means no buffer: empty on a non-blocking get, or the source was aborted
	BufferNone BufferResult = iota
	// BufferReady means a buffer was returned
	BufferReady
	// BufferEnd marks the end of a stream segment
	BufferEnd
)

func (r BufferResult) String() string {
	switch r {
	case BufferReady:
		return "ready"
	case BufferEnd:
		return "end"
	default:
		return "none"
	}
}

// Buffer holds either decoded audio frames or one encoded packet.
// Buffers are reference counted; the creator owns the first reference.
type Buffer struct {
	// Data holds one plane per channel for planar formats, otherwise a single plane.
	// Encoded packets always use Data[0].
	Data   [][]byte
	Size   int
	Frames int // 0 for encoded packets
	Format Format

	// Item identifies the playlist item the audio came from (uuid.Nil when unknown)
	Item uuid.UUID
	// Pos is the position within Item in seconds, -1 when unknown
	Pos float64

	refs    atomic.Int32
	release func(*Buffer)
}

// NewBuffer wraps decoded planes
func NewBuffer(data [][]byte, frames int, format Format, item uuid.UUID, pos float64) *Buffer {
	size := 0
	for _, plane := range data {
		size += len(plane)
	}
	b := &Buffer{
		Data:   data,
		Size:   size,
		Frames: frames,
		Format: format,
		Item:   item,
		Pos:    pos,
	}
	b.refs.Store(1)
	return b
}

// NewPacket wraps an encoded payload
func NewPacket(data []byte, format Format, item uuid.UUID, pos float64) *Buffer {
	return NewBuffer([][]byte{data}, 0, format, item, pos)
}

// OnRelease registers a hook run once the last reference is dropped
func (b *Buffer) OnRelease(fn func(*Buffer)) {
	b.release = fn
}

// Bytes returns the first plane (the payload of an encoded packet)
func (b *Buffer) Bytes() []byte {
	if len(b.Data) == 0 {
		return nil
	}
	return b.Data[0]
}

// Refs returns the current reference count
func (b *Buffer) Refs() int {
	return int(b.refs.Load())
}

// Ref adds a reference and returns the buffer
func (b *Buffer) Ref() *Buffer {
	b.refs.Add(1)
	return b
}

// Unref drops a reference; the buffer is released when the count reaches zero
func (b *Buffer) Unref() {
	n := b.refs.Add(-1)
	if n < 0 {
		panic("audio: buffer released more than once")
	}
	if n > 0 {
		return
	}
	if b.release != nil {
		b.release(b)
	}
	b.Data = nil
}

// SampleToInt16 converts int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	// Right-shift to convert 24-bit (or 16-bit) to 16-bit range
	return int16(sample >> 8)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// SampleTo24Bit converts int32 to 24-bit packed bytes (little-endian)
func SampleTo24Bit(sample int32) [3]byte {
	return [3]byte{
		byte(sample),
		byte(sample >> 8),
		byte(sample >> 16),
	}
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}

// SampleToFloat converts a 24-bit range sample to [-1, 1)
func SampleToFloat(sample int32) float64 {
	return float64(sample) / 8388608.0
}

// SampleFromFloat converts [-1, 1] to the 24-bit range, clipping out-of-range values
func SampleFromFloat(v float64) int32 {
	s := v * 8388608.0
	if s > Max24Bit {
		return Max24Bit
	}
	if s < Min24Bit {
		return Min24Bit
	}
	return int32(s)
}
