// ABOUTME: Encode worker: pulls decoded buffers from the sink and feeds codec and container
// ABOUTME: Brackets every segment with header and trailer and terminates it with an end marker
package transcode

import (
	"log"

	"github.com/Sendspin/sendspin-transcode/pkg/audio"
	"github.com/Sendspin/sendspin-transcode/pkg/audio/encode"
	"github.com/Sendspin/sendspin-transcode/pkg/sink"
)

// run is the worker loop; it exits when the sink is detached
func (e *Encoder) run(s *sink.Sink) {
	defer e.wg.Done()

	for {
		e.writeHeader()

		buf, res := s.GetBuffer(true)
		switch res {
		case audio.BufferReady:
			e.encode(buf)
		case audio.BufferEnd:
			e.endSegment()
		default:
			return
		}
	}
}

// writeHeader starts a segment unless one is open. A failed header is logged and the segment continues.
func (e *Encoder) writeHeader() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.headerSent {
		return
	}
	if err := e.muxer.WriteHeader(); err != nil {
		log.Printf("encoder: could not write header: %v", err)
	}
	e.headerSent = true
}

// encode submits one buffer; a failing buffer is dropped
func (e *Encoder) encode(buf *audio.Buffer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer buf.Unref()

	e.head = head{item: buf.Item, pos: buf.Pos, format: buf.Format, valid: true}

	pkt, err := e.enc.Encode(buf)
	if err != nil {
		log.Printf("encoder: dropping buffer: %v", err)
		e.encodeErrors.Add(1)
		e.config.Metrics.RecordEncodeError()
		return
	}
	if pkt != nil {
		e.writePacket(pkt)
	}
}

// endSegment drains codec and container, writes the trailer and queues the end marker.
// The marker follows every chunk of the segment, trailer included.
func (e *Encoder) endSegment() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for {
		pkt, err := e.enc.Encode(nil)
		if err != nil {
			log.Printf("encoder: drain failed: %v", err)
			e.encodeErrors.Add(1)
			e.config.Metrics.RecordEncodeError()
			break
		}
		if pkt == nil {
			break
		}
		e.writePacket(pkt)
	}

	for {
		more, err := e.muxer.Flush()
		if err != nil {
			log.Printf("encoder: container flush failed: %v", err)
			break
		}
		if !more {
			break
		}
	}

	e.head = head{}
	if err := e.muxer.WriteTrailer(); err != nil {
		log.Printf("encoder: could not write trailer: %v", err)
	}
	e.output.Put(entry{end: true})
	e.headerSent = false

	e.segments.Add(1)
	e.config.Metrics.RecordSegment()
	log.Printf("encoder: end of segment")
}

// writePacket hands a packet to the container. Called with e.mu held.
func (e *Encoder) writePacket(pkt *encode.Packet) {
	if err := e.muxer.WritePacket(pkt); err != nil {
		log.Printf("encoder: could not write packet: %v", err)
		e.encodeErrors.Add(1)
		e.config.Metrics.RecordEncodeError()
	}
}
