// ABOUTME: Sample representation definitions
// ABOUTME: Enumerates sample kinds, widths and packed/planar variants
package audio

import (
	"fmt"
	"strings"
)

// SampleFormat describes how one sample is stored
type SampleFormat int

const (
	SampleFormatNone SampleFormat = iota
	SampleFormatU8
	SampleFormatS16
	SampleFormatS24
	SampleFormatS32
	SampleFormatF32
	SampleFormatF64
	SampleFormatU8P
	SampleFormatS16P
	SampleFormatS32P
	SampleFormatF32P
	SampleFormatF64P
)

type sampleFormatInfo struct {
	name   string
	bytes  int
	planar bool
	float  bool
	packed SampleFormat
}

var sampleFormats = map[SampleFormat]sampleFormatInfo{
	SampleFormatU8:   {"u8", 1, false, false, SampleFormatU8},
	SampleFormatS16:  {"s16", 2, false, false, SampleFormatS16},
	SampleFormatS24:  {"s24", 3, false, false, SampleFormatS24},
	SampleFormatS32:  {"s32", 4, false, false, SampleFormatS32},
	SampleFormatF32:  {"flt", 4, false, true, SampleFormatF32},
	SampleFormatF64:  {"dbl", 8, false, true, SampleFormatF64},
	SampleFormatU8P:  {"u8p", 1, true, false, SampleFormatU8},
	SampleFormatS16P: {"s16p", 2, true, false, SampleFormatS16},
	SampleFormatS32P: {"s32p", 4, true, false, SampleFormatS32},
	SampleFormatF32P: {"fltp", 4, true, true, SampleFormatF32},
	SampleFormatF64P: {"dblp", 8, true, true, SampleFormatF64},
}

// BytesPerSample returns the storage width of one sample (0 for unknown formats)
func (f SampleFormat) BytesPerSample() int {
	return sampleFormats[f].bytes
}

// Planar reports whether each channel is stored in its own plane
func (f SampleFormat) Planar() bool {
	return sampleFormats[f].planar
}

// Float reports whether samples are IEEE floating point
func (f SampleFormat) Float() bool {
	return sampleFormats[f].float
}

// Packed returns the interleaved variant of the same width
func (f SampleFormat) Packed() SampleFormat {
	info, ok := sampleFormats[f]
	if !ok {
		return SampleFormatNone
	}
	return info.packed
}

func (f SampleFormat) String() string {
	info, ok := sampleFormats[f]
	if !ok {
		return "none"
	}
	return info.name
}

// ParseSampleFormat parses names such as "s16", "fltp" or "f32"
func ParseSampleFormat(name string) (SampleFormat, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "f32":
		return SampleFormatF32, nil
	case "f64":
		return SampleFormatF64, nil
	case "f32p":
		return SampleFormatF32P, nil
	case "f64p":
		return SampleFormatF64P, nil
	}
	for f, info := range sampleFormats {
		if info.name == name {
			return f, nil
		}
	}
	return SampleFormatNone, fmt.Errorf("unknown sample format: %q", name)
}
