package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// ErrTooLarge is returned when a stream exceeds the configured maximum size
var ErrTooLarge = errors.New("stream exceeds maximum size")

// Chunker copies streams in fixed-size chunks while hashing them
type Chunker struct {
	chunkSize int64
	maxSize   int64
}

// NewChunker creates a new chunker with the specified chunk size.
// maxSize limits the total bytes copied; 0 disables the limit.
func NewChunker(chunkSize, maxSize int64) *Chunker {
	return &Chunker{
		chunkSize: chunkSize,
		maxSize:   maxSize,
	}
}

// Digest describes a copied stream
type Digest struct {
	Size   int64
	Hash   string
	Chunks int
}

// CopyStream reads from reader in chunks of the configured size and writes
// each chunk to w, feeding a running SHA-256 on the way.
func (c *Chunker) CopyStream(w io.Writer, reader io.Reader) (*Digest, error) {
	buffer := make([]byte, c.chunkSize)
	hasher := sha256.New()
	var totalSize int64
	orderIndex := 0

	for {
		n, err := io.ReadFull(reader, buffer)

		if n > 0 {
			if c.maxSize > 0 && totalSize+int64(n) > c.maxSize {
				return nil, ErrTooLarge
			}

			chunkData := buffer[:n]
			hasher.Write(chunkData)
			if _, werr := w.Write(chunkData); werr != nil {
				return nil, fmt.Errorf("error writing chunk %d: %w", orderIndex, werr)
			}

			totalSize += int64(n)
			orderIndex++
		}

		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("error reading chunk %d: %w", orderIndex, err)
		}
	}

	return &Digest{
		Size:   totalSize,
		Hash:   hex.EncodeToString(hasher.Sum(nil)),
		Chunks: orderIndex,
	}, nil
}
