// ABOUTME: Raw container writer
// ABOUTME: Writes encoded packets back to back with no framing
package container

import (
	"io"

	"github.com/Sendspin/sendspin-transcode/pkg/audio"
	"github.com/Sendspin/sendspin-transcode/pkg/audio/encode"
)

// RawFormat carries any codec without framing
var RawFormat = &Format{
	Name:         "raw",
	Extensions:   []string{"raw", "pcm"},
	MimeTypes:    []string{"application/octet-stream"},
	DefaultCodec: "pcm_s16le",
	New: func(w io.Writer, codec string, f audio.Format) (Muxer, error) {
		return &rawMuxer{w: w}, nil
	},
}

type rawMuxer struct {
	w io.Writer
}

func (m *rawMuxer) WriteHeader() error { return nil }

func (m *rawMuxer) WritePacket(p *encode.Packet) error {
	if len(p.Data) == 0 {
		return nil
	}
	_, err := m.w.Write(p.Data)
	return err
}

func (m *rawMuxer) Flush() (bool, error) { return false, nil }

func (m *rawMuxer) WriteTrailer() error { return nil }
