package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/maneesh/videodrop/internal/chunker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("videodrop-storage")

var (
	// ErrNameTaken is returned when the stored name already exists on disk
	ErrNameTaken = errors.New("stored name already taken")
	// ErrNotFound is returned when an upload record does not exist
	ErrNotFound = errors.New("upload not found")
)

// DiskStore writes uploads into a flat directory
type DiskStore struct {
	dir     string
	chunker *chunker.Chunker
}

// NewDiskStore creates a store over dir. The directory is not created or checked.
func NewDiskStore(dir string, c *chunker.Chunker) *DiskStore {
	return &DiskStore{
		dir:     dir,
		chunker: c,
	}
}

// Save streams reader into a new file called name. The file is created
// exclusively, so an existing file is never overwritten. On any failure the
// partial file is removed.
func (ds *DiskStore) Save(ctx context.Context, name string, reader io.Reader) (*chunker.Digest, string, error) {
	ctx, span := tracer.Start(ctx, "disk.save",
		trace.WithAttributes(
			attribute.String("stored_name", name),
		),
	)
	defer span.End()

	if name == "" || filepath.Base(name) != name || name == "." || name == ".." {
		err := fmt.Errorf("invalid stored name %q", name)
		span.RecordError(err)
		return nil, "", err
	}

	path := filepath.Join(ds.dir, name)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		span.RecordError(err)
		return nil, "", fmt.Errorf("%w: %s", ErrNameTaken, name)
	} else if err != nil {
		span.RecordError(err)
		return nil, "", fmt.Errorf("failed to create file: %w", err)
	}

	digest, err := ds.chunker.CopyStream(file, reader)
	if err != nil {
		file.Close()
		os.Remove(path)
		span.RecordError(err)
		return nil, "", fmt.Errorf("failed to write file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(path)
		span.RecordError(err)
		return nil, "", fmt.Errorf("failed to close file: %w", err)
	}

	if err := ctx.Err(); err != nil {
		os.Remove(path)
		span.RecordError(err)
		return nil, "", fmt.Errorf("upload aborted: %w", err)
	}

	span.SetAttributes(
		attribute.Int64("size_bytes", digest.Size),
		attribute.Int("chunk_count", digest.Chunks),
	)
	return digest, path, nil
}
