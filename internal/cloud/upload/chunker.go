package upload

import (
	"fmt"
	"io"
)

// FileChunk is one in-flight unit of a multipart upload. Chunks are
// ephemeral; they exist only between the reader and the part-upload
// worker that consumes them.
type FileChunk struct {
	// PartNumber is the 1-based multipart part number.
	PartNumber int32

	// Data holds the chunk's bytes, sized min(chunkSize, remaining).
	Data []byte
}

// ChunkReader produces a lazy, finite, forward-only sequence of numbered
// chunks from a reader of known total length. Part numbers run
// 1..ceil(total/chunkSize); every chunk except the last holds exactly
// chunkSize bytes.
//
// Not safe for concurrent use: a single producer drains it in order.
type ChunkReader struct {
	r         io.Reader
	chunkSize int64
	remaining int64
	next      int32
	failed    bool
}

// NewChunkReader wraps r, which must deliver exactly total bytes.
func NewChunkReader(r io.Reader, total, chunkSize int64) *ChunkReader {
	return &ChunkReader{
		r:         r,
		chunkSize: chunkSize,
		remaining: total,
		next:      1,
	}
}

// Next returns the next chunk, or io.EOF once the sequence is exhausted.
//
// Reads are read-exact: a short read is an error, not end-of-stream,
// because the total length is known up front. After a read error the
// sequence is terminated and every later call returns io.EOF; chunks
// already yielded stay valid.
func (cr *ChunkReader) Next() (*FileChunk, error) {
	if cr.failed || cr.remaining <= 0 {
		return nil, io.EOF
	}

	size := cr.chunkSize
	if cr.remaining < size {
		size = cr.remaining
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(cr.r, buf); err != nil {
		cr.failed = true
		return nil, fmt.Errorf("read chunk %d: %w", cr.next, err)
	}

	chunk := &FileChunk{
		PartNumber: cr.next,
		Data:       buf,
	}
	cr.next++
	cr.remaining -= size
	return chunk, nil
}
