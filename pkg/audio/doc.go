// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, SampleFormat, ChannelLayout, Buffer and sample conversion
// Package audio provides the audio types shared by the transcoding pipeline.
//
// This package defines:
//   - Format: sample representation, sample rate and channel layout
//   - SampleFormat: sample kind and width, packed or planar
//   - ChannelLayout: speaker-position bitmask with named layouts
//   - Buffer: reference-counted decoded frames or an encoded packet
//
// Samples travel between sources and sinks as interleaved int32 values in
// the 24-bit range; Pack and Unpack convert them to and from the bytes of
// any SampleFormat.
//
// Example:
//
//	format := audio.Format{
//	    SampleFormat: audio.SampleFormatS16,
//	    SampleRate:   44100,
//	    Layout:       audio.LayoutStereo,
//	}
//	planes := audio.Pack(samples, format.Channels(), format.SampleFormat)
package audio
