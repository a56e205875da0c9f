// ABOUTME: Conversion between interleaved int32 samples and sample-format bytes
// ABOUTME: Handles packed and planar layouts for every SampleFormat
package audio

import (
	"encoding/binary"
	"math"
)

// Pack converts interleaved 24-bit range samples into planes of the given format.
// Packed formats produce one plane; planar formats produce one plane per channel.
func Pack(samples []int32, channels int, f SampleFormat) [][]byte {
	if channels <= 0 {
		return nil
	}
	width := f.BytesPerSample()
	frames := len(samples) / channels

	if !f.Planar() {
		out := make([]byte, frames*channels*width)
		for i := 0; i < frames*channels; i++ {
			putSample(out[i*width:], samples[i], f)
		}
		return [][]byte{out}
	}

	planes := make([][]byte, channels)
	for ch := range planes {
		plane := make([]byte, frames*width)
		for i := 0; i < frames; i++ {
			putSample(plane[i*width:], samples[i*channels+ch], f)
		}
		planes[ch] = plane
	}
	return planes
}

// Unpack converts planes of the given format back to interleaved 24-bit range samples
func Unpack(planes [][]byte, frames, channels int, f SampleFormat) []int32 {
	width := f.BytesPerSample()
	if width == 0 || channels <= 0 || len(planes) == 0 {
		return nil
	}
	out := make([]int32, frames*channels)

	if !f.Planar() {
		data := planes[0]
		n := min(frames*channels, len(data)/width)
		for i := 0; i < n; i++ {
			out[i] = sample(data[i*width:], f)
		}
		return out
	}

	for ch := 0; ch < channels && ch < len(planes); ch++ {
		plane := planes[ch]
		n := min(frames, len(plane)/width)
		for i := 0; i < n; i++ {
			out[i*channels+ch] = sample(plane[i*width:], f)
		}
	}
	return out
}

// Interleave merges planar data into a single packed plane
func Interleave(planes [][]byte, frames int, f SampleFormat) []byte {
	if !f.Planar() {
		if len(planes) == 0 {
			return nil
		}
		return planes[0]
	}
	width := f.BytesPerSample()
	channels := len(planes)
	out := make([]byte, frames*channels*width)
	for i := 0; i < frames; i++ {
		for ch, plane := range planes {
			copy(out[(i*channels+ch)*width:], plane[i*width:(i+1)*width])
		}
	}
	return out
}

func putSample(dst []byte, s int32, f SampleFormat) {
	switch f.Packed() {
	case SampleFormatU8:
		dst[0] = byte(int16(s>>16) + 128)
	case SampleFormatS16:
		binary.LittleEndian.PutUint16(dst, uint16(SampleToInt16(s)))
	case SampleFormatS24:
		b := SampleTo24Bit(s)
		copy(dst, b[:])
	case SampleFormatS32:
		binary.LittleEndian.PutUint32(dst, uint32(s)<<8)
	case SampleFormatF32:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(SampleToFloat(s))))
	case SampleFormatF64:
		binary.LittleEndian.PutUint64(dst, math.Float64bits(SampleToFloat(s)))
	}
}

func sample(src []byte, f SampleFormat) int32 {
	switch f.Packed() {
	case SampleFormatU8:
		return (int32(src[0]) - 128) << 16
	case SampleFormatS16:
		return SampleFromInt16(int16(binary.LittleEndian.Uint16(src)))
	case SampleFormatS24:
		return SampleFrom24Bit([3]byte{src[0], src[1], src[2]})
	case SampleFormatS32:
		return int32(binary.LittleEndian.Uint32(src)) >> 8
	case SampleFormatF32:
		return SampleFromFloat(float64(math.Float32frombits(binary.LittleEndian.Uint32(src))))
	case SampleFormatF64:
		return SampleFromFloat(math.Float64frombits(binary.LittleEndian.Uint64(src)))
	}
	return 0
}
