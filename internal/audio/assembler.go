// Package audio reassembles per-chunk synthesis results into one stream.
package audio

import "bytes"

// Metadata describes how complete the assembled stream is. A non-zero
// FailedCount means the audio has micro-gaps where chunks failed.
type Metadata struct {
	ChunksProcessed int
	FailedCount     int
}

// Assemble concatenates segments strictly in index order. Nil or empty
// segments mark permanently failed chunks and contribute no bytes;
// ordering and adjacency of the surviving segments is exact.
func Assemble(segments [][]byte) ([]byte, Metadata) {
	size := 0
	for _, seg := range segments {
		size += len(seg)
	}

	var buf bytes.Buffer
	buf.Grow(size)

	meta := Metadata{}
	for _, seg := range segments {
		if len(seg) == 0 {
			meta.FailedCount++
			continue
		}
		buf.Write(seg)
		meta.ChunksProcessed++
	}

	return buf.Bytes(), meta
}
