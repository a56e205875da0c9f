// ABOUTME: Package transcode turns a producer's raw audio into a container byte stream
// ABOUTME: Documents the encoder session lifecycle and the chunk ordering guarantees
// Package transcode implements an encoder session.
//
// An Encoder attaches a sink to a producer (such as a playlist), encodes each
// raw buffer with a codec backend, muxes the packets into a container and
// queues the resulting bytes. Consumers call GetBuffer to receive them.
//
// Each segment is delivered as container header chunks, data chunks, trailer
// chunks and finally an End marker. Header and trailer chunks carry the nil
// item ID and position -1. Purging an item drops its queued chunks; flushing
// drops everything and resets the codec.
//
// Example:
//
//	enc := transcode.New(transcode.Config{Filename: "out.ogg"})
//	if err := enc.Attach(pl); err != nil {
//		return err
//	}
//	defer enc.Close()
//	for {
//		chunk, res := enc.GetBuffer(true)
//		if res != audio.BufferReady {
//			break
//		}
//		w.Write(chunk.Bytes())
//		chunk.Unref()
//	}
package transcode
