// ABOUTME: Stream protocol message type definitions
// ABOUTME: JSON control messages and the binary chunk framing sent to websocket listeners
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

const (
	// ProtocolVersion is announced in server/hello
	ProtocolVersion = 1

	// ChunkMessageType is the binary message type ID for encoded chunks
	ChunkMessageType byte = 4

	// ChunkHeaderSize is the binary chunk header: 1 byte type + 8 byte position
	ChunkHeaderSize = 1 + 8
)

// Message types
const (
	TypeClientHello       = "client/hello"
	TypeServerHello       = "server/hello"
	TypeServerState       = "server/state"
	TypeServerError       = "server/error"
	TypeStreamStart       = "stream/start"
	TypeStreamEnd         = "stream/end"
	TypeStreamClear       = "stream/clear"
	TypeControllerCommand = "controller/command"
)

// Controller commands
const (
	CommandPlay   = "play"
	CommandPause  = "pause"
	CommandSeek   = "seek"
	CommandRemove = "remove"
	CommandAdd    = "add"
)

// ErrShortChunk is returned when a binary message is smaller than the chunk header
var ErrShortChunk = errors.New("binary message too short")

// Message is the top-level wrapper for all protocol messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ClientHello is optionally sent by listeners after connecting
type ClientHello struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// ServerHello is the first message on every websocket connection
type ServerHello struct {
	ServerID        string `json:"server_id"`
	Name            string `json:"name"`
	Version         int    `json:"version"`
	SoftwareVersion string `json:"software_version"`
}

// StreamStart announces the encoded stream a listener is about to receive
type StreamStart struct {
	Codec        string `json:"codec"`
	Container    string `json:"container"`
	MimeType     string `json:"mime_type"`
	SampleFormat string `json:"sample_format"`
	SampleRate   int    `json:"sample_rate"`
	Channels     int    `json:"channels"`
	Layout       string `json:"layout"`
	BitRate      int    `json:"bit_rate,omitempty"`
}

// StreamEnd marks the end of a segment; the next chunks start a new container stream
type StreamEnd struct {
	Segment uint64 `json:"segment"`
}

// StreamClear tells listeners to drop buffered audio (after a seek)
type StreamClear struct{}

// ControllerCommand controls the playlist
type ControllerCommand struct {
	Command  string  `json:"command"`            // play, pause, seek, remove, add
	Item     string  `json:"item,omitempty"`     // item ID for seek and remove
	Position float64 `json:"position,omitempty"` // seconds, for seek
	Path     string  `json:"path,omitempty"`     // source path, for add
}

// ServerState reports the playlist
type ServerState struct {
	Playing  bool        `json:"playing"`
	Current  string      `json:"current,omitempty"`
	Position float64     `json:"position"` // seconds into the current item
	Items    []ItemState `json:"items"`
}

// ItemState describes one playlist item
type ItemState struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ServerError reports a rejected request
type ServerError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// DecodePayload converts a decoded Message payload into v
func DecodePayload(payload interface{}, v interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return nil
}

// EncodeChunk frames an encoded chunk as [type:1][position float64 BE:8][payload:N].
// The position is in seconds, -1 for container headers.
func EncodeChunk(pos float64, payload []byte) []byte {
	msg := make([]byte, ChunkHeaderSize+len(payload))
	msg[0] = ChunkMessageType
	binary.BigEndian.PutUint64(msg[1:ChunkHeaderSize], math.Float64bits(pos))
	copy(msg[ChunkHeaderSize:], payload)
	return msg
}

// DecodeChunk parses a binary chunk message. The payload aliases data.
func DecodeChunk(data []byte) (float64, []byte, error) {
	if len(data) < ChunkHeaderSize {
		return 0, nil, ErrShortChunk
	}
	if data[0] != ChunkMessageType {
		return 0, nil, fmt.Errorf("unknown binary message type: %d", data[0])
	}
	pos := math.Float64frombits(binary.BigEndian.Uint64(data[1:ChunkHeaderSize]))
	return pos, data[ChunkHeaderSize:], nil
}
