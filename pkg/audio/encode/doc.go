// ABOUTME: Audio encoder package for encoding PCM to various formats
// ABOUTME: Provides Backend/Encoder interfaces, PCM and Opus backends, format negotiation
// Package encode provides codec backends for the transcoding pipeline.
//
// Supports: PCM (u8, s16, s24, s32, f32, f64 little-endian), Opus
//
// A Backend advertises Capabilities; Negotiate maps a requested format onto
// the closest format the backend supports, preferring to round up rather than
// lose fidelity. The negotiated format is then passed to Open.
//
// Example:
//
//	backend, _ := encode.Lookup("opus")
//	format := encode.Negotiate(backend.Capabilities(), requested)
//	enc, err := backend.Open(format, 128000)
//	pkt, err := enc.Encode(buf)
package encode
