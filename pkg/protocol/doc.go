// ABOUTME: Stream protocol package
// ABOUTME: Defines control messages and binary chunk framing
// Package protocol defines the messages exchanged with websocket listeners
// of a transcoding server.
//
// Text messages are JSON objects {"type": ..., "payload": ...}. Encoded
// container bytes travel as binary messages built by EncodeChunk.
//
// Example:
//
//	msg := protocol.Message{Type: protocol.TypeStreamEnd, Payload: protocol.StreamEnd{Segment: 1}}
//	frame := protocol.EncodeChunk(12.5, chunk)
package protocol
