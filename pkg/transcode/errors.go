// ABOUTME: Sentinel errors returned by Encoder.Attach
// ABOUTME: Each attach stage has its own error so callers can tell them apart with errors.Is
package transcode

import "errors"

var (
	// ErrAlreadyAttached is returned when Attach is called on an attached encoder
	ErrAlreadyAttached = errors.New("encoder already attached")
	// ErrResolve is returned when no container or codec matches the configured hints
	ErrResolve = errors.New("could not resolve container and codec")
	// ErrOpenEncoder is returned when the codec backend rejects the negotiated format
	ErrOpenEncoder = errors.New("could not open encoder")
	// ErrCreateMuxer is returned when the container writer cannot be created
	ErrCreateMuxer = errors.New("could not create container writer")
	// ErrAttachSink is returned when the producer refuses the sink
	ErrAttachSink = errors.New("could not attach sink")
)
