// ABOUTME: Tests for stream protocol messages
// ABOUTME: Verifies chunk framing and payload decoding
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestChunkFraming(t *testing.T) {
	tests := []struct {
		name    string
		pos     float64
		payload []byte
	}{
		{"header", -1, []byte("OggS")},
		{"data", 12.5, []byte{1, 2, 3, 4}},
		{"empty", 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := EncodeChunk(tt.pos, tt.payload)
			if msg[0] != ChunkMessageType {
				t.Errorf("type = %d, want %d", msg[0], ChunkMessageType)
			}
			if len(msg) != ChunkHeaderSize+len(tt.payload) {
				t.Errorf("len = %d, want %d", len(msg), ChunkHeaderSize+len(tt.payload))
			}

			pos, payload, err := DecodeChunk(msg)
			if err != nil {
				t.Fatalf("DecodeChunk() error = %v", err)
			}
			if pos != tt.pos {
				t.Errorf("pos = %f, want %f", pos, tt.pos)
			}
			if !bytes.Equal(payload, tt.payload) {
				t.Errorf("payload = %v, want %v", payload, tt.payload)
			}
		})
	}
}

func TestDecodeChunkRejects(t *testing.T) {
	if _, _, err := DecodeChunk([]byte{ChunkMessageType, 0, 0}); !errors.Is(err, ErrShortChunk) {
		t.Errorf("short chunk error = %v, want ErrShortChunk", err)
	}
	msg := EncodeChunk(1, []byte{9})
	msg[0] = 1
	if _, _, err := DecodeChunk(msg); err == nil {
		t.Error("expected error for unknown message type")
	}
}

func TestControllerCommandPayload(t *testing.T) {
	data := []byte(`{"type":"controller/command","payload":{"command":"seek","item":"abc","position":42.5}}`)

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if msg.Type != TypeControllerCommand {
		t.Fatalf("type = %s, want %s", msg.Type, TypeControllerCommand)
	}

	var cmd ControllerCommand
	if err := DecodePayload(msg.Payload, &cmd); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if cmd.Command != CommandSeek || cmd.Item != "abc" || cmd.Position != 42.5 {
		t.Errorf("decoded %+v", cmd)
	}
}

func TestStreamStartMarshaling(t *testing.T) {
	start := StreamStart{Codec: "opus", Container: "ogg", MimeType: "audio/ogg", SampleRate: 48000, Channels: 2}
	data, err := json.Marshal(Message{Type: TypeStreamStart, Payload: start})
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	var got StreamStart
	if err := DecodePayload(decoded.Payload, &got); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if got != start {
		t.Errorf("got %+v, want %+v", got, start)
	}
}
