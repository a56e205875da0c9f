// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts audio between different sample rates
// Package resample provides audio sample rate conversion.
//
// Uses linear interpolation for converting between sample rates.
// The resampler is streaming: feed consecutive chunks of one stream to the
// same Resampler and call Reset when the stream changes.
//
// Example:
//
//	r := resample.New(44100, 48000, 2)
//	out := r.Process(chunk)
package resample
