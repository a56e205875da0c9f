// ABOUTME: Ogg/Opus container writer
// ABOUTME: Each segment is a new logical stream closed by an end-of-stream page; each packet is one page
package container

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Sendspin/sendspin-transcode/pkg/audio"
	"github.com/Sendspin/sendspin-transcode/pkg/audio/encode"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

// Opus granule positions always count 48kHz samples
const opusGranuleRate = 48000

// Ogg page header layout
const (
	oggHeaderTypeOffset = 5
	oggGranuleOffset    = 6
	oggSerialOffset     = 14
	oggSequenceOffset   = 18
	oggChecksumOffset   = 22
	oggPageHeaderSize   = 27

	oggEndOfStream = 0x04
)

// OggFormat carries Opus
var OggFormat = &Format{
	Name:         "ogg",
	Extensions:   []string{"ogg", "opus", "oga"},
	MimeTypes:    []string{"audio/ogg", "audio/opus"},
	Codecs:       []string{"opus"},
	DefaultCodec: "opus",
	New:          newOggMuxer,
}

type oggMuxer struct {
	format audio.Format
	pages  *pageWriter

	writer    *oggwriter.OggWriter
	seq       uint16
	timestamp uint32
}

func newOggMuxer(w io.Writer, codec string, f audio.Format) (Muxer, error) {
	if codec != "opus" {
		return nil, fmt.Errorf("%w: %s in ogg", ErrUnsupportedCodec, codec)
	}
	if f.SampleRate <= 0 || f.Channels() == 0 {
		return nil, fmt.Errorf("invalid ogg format: %s", f)
	}
	return &oggMuxer{format: f, pages: &pageWriter{w: w}}, nil
}

// WriteHeader opens a new logical stream, writing the OpusHead and OpusTags pages
func (m *oggMuxer) WriteHeader() error {
	m.pages.reset()
	writer, err := oggwriter.NewWith(m.pages, uint32(m.format.SampleRate), uint16(m.format.Channels()))
	if err != nil {
		return fmt.Errorf("failed to start ogg stream: %w", err)
	}
	m.pages.audio = true
	m.writer = writer
	m.seq = 0
	m.timestamp = 0
	return nil
}

func (m *oggMuxer) WritePacket(p *encode.Packet) error {
	if m.writer == nil {
		return fmt.Errorf("ogg: packet before header")
	}
	if len(p.Data) == 0 {
		return nil
	}

	samples := uint32(p.Duration * opusGranuleRate / m.format.SampleRate)
	m.pages.granule += uint64(samples)

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			SequenceNumber: m.seq,
			Timestamp:      m.timestamp,
		},
		Payload: p.Data,
	}
	if err := m.writer.WriteRTP(pkt); err != nil {
		return err
	}

	m.seq++
	m.timestamp += samples
	return nil
}

// Flush keeps the last page; the trailer needs it to end the stream
func (m *oggMuxer) Flush() (bool, error) { return false, nil }

// WriteTrailer ends the logical stream with an end-of-stream page
func (m *oggMuxer) WriteTrailer() error {
	if m.writer == nil {
		return nil
	}
	m.writer = nil
	return m.pages.end()
}

// pageWriter receives whole pages from oggwriter. It stamps audio pages with
// the granule position of their last sample and holds the newest audio page
// back so end can flag it as the last page of the stream.
type pageWriter struct {
	w       io.Writer
	audio   bool   // header pages are done
	granule uint64 // 48kHz samples through the packet being written
	held    []byte
	last    []byte // last page passed on, for serial and sequence
}

func (pw *pageWriter) reset() {
	pw.audio = false
	pw.granule = 0
	pw.held = nil
	pw.last = nil
}

func (pw *pageWriter) Write(p []byte) (int, error) {
	if len(p) < oggPageHeaderSize {
		return 0, fmt.Errorf("ogg: short page (%d bytes)", len(p))
	}
	page := make([]byte, len(p))
	copy(page, p)

	if !pw.audio {
		if err := pw.emit(page); err != nil {
			return 0, err
		}
		return len(p), nil
	}

	binary.LittleEndian.PutUint64(page[oggGranuleOffset:], pw.granule)
	setOggChecksum(page)

	if pw.held != nil {
		if err := pw.emit(pw.held); err != nil {
			return 0, err
		}
	}
	pw.held = page
	return len(p), nil
}

// end writes the held page flagged end-of-stream, or an empty end page when
// the stream carried no audio
func (pw *pageWriter) end() error {
	page := pw.held
	pw.held = nil

	if page == nil {
		if pw.last == nil {
			return nil
		}
		page = make([]byte, oggPageHeaderSize)
		copy(page, "OggS")
		binary.LittleEndian.PutUint64(page[oggGranuleOffset:], pw.granule)
		copy(page[oggSerialOffset:oggSerialOffset+4], pw.last[oggSerialOffset:])
		seq := binary.LittleEndian.Uint32(pw.last[oggSequenceOffset:])
		binary.LittleEndian.PutUint32(page[oggSequenceOffset:], seq+1)
	}

	page[oggHeaderTypeOffset] |= oggEndOfStream
	setOggChecksum(page)
	return pw.emit(page)
}

func (pw *pageWriter) emit(page []byte) error {
	pw.last = page
	_, err := pw.w.Write(page)
	return err
}

var oggCRCTable = func() (table [256]uint32) {
	for i := range table {
		r := uint32(i) << 24
		for range 8 {
			if r&0x80000000 != 0 {
				r = r<<1 ^ 0x04c11db7
			} else {
				r <<= 1
			}
		}
		table[i] = r
	}
	return table
}()

// oggChecksum computes the page CRC with the checksum field taken as zero
func oggChecksum(page []byte) uint32 {
	var crc uint32
	for i, b := range page {
		if i >= oggChecksumOffset && i < oggChecksumOffset+4 {
			b = 0
		}
		crc = crc<<8 ^ oggCRCTable[byte(crc>>24)^b]
	}
	return crc
}

func setOggChecksum(page []byte) {
	binary.LittleEndian.PutUint32(page[oggChecksumOffset:], oggChecksum(page))
}
