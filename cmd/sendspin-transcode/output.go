// ABOUTME: File output mode
// ABOUTME: Copies one segment of encoded chunks to a file
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/Sendspin/sendspin-transcode/pkg/audio"
)

// chunkSource is the consumer side of an encoder session
type chunkSource interface {
	GetBuffer(block bool) (*audio.Buffer, audio.BufferResult)
}

// writeFile writes the encoded stream to path until the end of the first segment
func writeFile(path string, src chunkSource) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	n, copyErr := copySegment(f, src)
	if err := f.Close(); err != nil && copyErr == nil {
		copyErr = fmt.Errorf("failed to close output file: %w", err)
	}
	if copyErr != nil {
		return copyErr
	}

	log.Printf("Wrote %d bytes to %s", n, path)
	return nil
}

// copySegment copies chunks to w until an end marker or until the source is detached
func copySegment(w io.Writer, src chunkSource) (int64, error) {
	var total int64
	for {
		chunk, res := src.GetBuffer(true)
		switch res {
		case audio.BufferReady:
			n, err := w.Write(chunk.Bytes())
			chunk.Unref()
			total += int64(n)
			if err != nil {
				return total, fmt.Errorf("failed to write output: %w", err)
			}
		case audio.BufferEnd:
			return total, nil
		default:
			log.Printf("Encoder detached before end of stream")
			return total, nil
		}
	}
}
