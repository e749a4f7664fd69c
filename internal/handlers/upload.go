package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/maneesh/videodrop/internal/chunker"
	"github.com/maneesh/videodrop/internal/models"
	"github.com/maneesh/videodrop/internal/naming"
	"github.com/maneesh/videodrop/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("videodrop-handlers")

// SuccessMessage is the body of a successful upload reply
const SuccessMessage = "File uploaded successfully."

// multipartOverhead is the slack allowed on top of the file limit for
// boundaries, part headers and small form fields.
const multipartOverhead = 1 << 20

// FileStore persists upload streams
type FileStore interface {
	Save(ctx context.Context, name string, r io.Reader) (*chunker.Digest, string, error)
}

// Mirror copies stored files to object storage
type Mirror interface {
	MirrorFile(ctx context.Context, objectKey, path string) error
}

// Catalog records upload metadata
type Catalog interface {
	CreateUpload(ctx context.Context, upload *models.Upload) error
	GetUpload(ctx context.Context, id string) (*models.Upload, error)
	ListUploads(ctx context.Context, limit int) ([]*models.Upload, error)
}

// Cache holds recently seen upload records. GetUpload reports a miss with
// storage.ErrCacheMiss.
type Cache interface {
	GetUpload(ctx context.Context, id string) (*models.Upload, error)
	SetUpload(ctx context.Context, upload *models.Upload) error
}

// Publisher announces stored uploads
type Publisher interface {
	PublishUpload(ctx context.Context, event models.UploadEvent) error
}

// Sinks are the optional destinations an upload is forwarded to after it
// is on disk. Nil fields are skipped.
type Sinks struct {
	Mirror    Mirror
	Catalog   Catalog
	Cache     Cache
	Publisher Publisher
}

// UploadHandler handles multipart video uploads
type UploadHandler struct {
	field    string
	maxBytes int64
	namer    naming.Namer
	store    FileStore
	sinks    Sinks
	now      func() time.Time
}

// NewUploadHandler creates a new upload handler. maxBytes of 0 disables the
// request body limit.
func NewUploadHandler(field string, maxBytes int64, namer naming.Namer, store FileStore, sinks Sinks) *UploadHandler {
	return &UploadHandler{
		field:    field,
		maxBytes: maxBytes,
		namer:    namer,
		store:    store,
		sinks:    sinks,
		now:      time.Now,
	}
}

// UploadResponse is the JSON body of a successful upload
type UploadResponse struct {
	ID           string `json:"id"`
	StoredName   string `json:"stored_name"`
	OriginalName string `json:"original_name"`
	Size         int64  `json:"size"`
	SHA256       string `json:"sha256"`
	Message      string `json:"message"`
}

// ServeHTTP handles POST /upload
func (uh *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "upload_video",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	if uh.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, uh.maxBytes+multipartOverhead)
	}

	upload, uerr := uh.receive(ctx, r)
	if uerr != nil {
		span.RecordError(uerr)
		span.SetAttributes(attribute.String("upload_error", uerr.Kind))
		log.Printf("Upload rejected: %v", uerr)
		writeUploadError(w, r, uerr)
		return
	}

	span.SetAttributes(
		attribute.String("upload_id", upload.ID),
		attribute.String("stored_name", upload.StoredName),
		attribute.Int64("file_size", upload.Size),
	)
	log.Printf("Upload stored: %s -> %s (%d bytes)", upload.OriginalName, upload.StoredName, upload.Size)

	uh.forward(ctx, upload)

	w.Header().Set("X-Upload-Id", upload.ID)
	w.Header().Set("X-Stored-Name", upload.StoredName)

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, UploadResponse{
			ID:           upload.ID,
			StoredName:   upload.StoredName,
			OriginalName: upload.OriginalName,
			Size:         upload.Size,
			SHA256:       upload.SHA256,
			Message:      SuccessMessage,
		})
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, SuccessMessage)
}

// receive finds the upload part and streams it to disk. Parts before it are
// skipped, parts after it are left unread.
func (uh *UploadHandler) receive(ctx context.Context, r *http.Request) (*models.Upload, *UploadError) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, errNoFile(uh.field, err)
	}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return nil, errNoFile(uh.field, nil)
		} else if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, errTooLarge(err)
			}
			return nil, errNoFile(uh.field, err)
		}

		if part.FormName() != uh.field || part.FileName() == "" {
			part.Close()
			continue
		}

		upload, uerr := uh.storePart(ctx, part)
		part.Close()
		return upload, uerr
	}
}

func (uh *UploadHandler) storePart(ctx context.Context, part *multipart.Part) (*models.Upload, *UploadError) {
	ctx, span := tracer.Start(ctx, "store_part")
	defer span.End()

	receivedAt := uh.now()
	originalName := part.FileName()
	id := uh.namer.NewID(receivedAt)
	storedName := naming.StoredName(id, originalName)

	span.SetAttributes(
		attribute.String("original_name", originalName),
		attribute.String("stored_name", storedName),
	)

	digest, path, err := uh.store.Save(ctx, storedName, part)
	if err != nil {
		span.RecordError(err)
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, storage.ErrNameTaken):
			return nil, errNameCollision(err)
		case errors.Is(err, chunker.ErrTooLarge), errors.As(err, &maxErr):
			return nil, errTooLarge(err)
		default:
			return nil, errWriteFailed(err)
		}
	}

	return &models.Upload{
		ID:           id,
		OriginalName: originalName,
		Extension:    naming.Extension(originalName),
		StoredName:   storedName,
		StoredPath:   path,
		Size:         digest.Size,
		SHA256:       digest.Hash,
		CreatedAt:    receivedAt,
	}, nil
}

// forward hands a stored upload to the configured sinks. The file is already
// durable, so sink failures are logged and do not fail the request.
func (uh *UploadHandler) forward(ctx context.Context, upload *models.Upload) {
	if uh.sinks.Mirror != nil {
		if err := uh.mirror(ctx, upload); err != nil {
			log.Printf("Warning: failed to mirror %s: %v", upload.StoredName, err)
		}
	}

	if uh.sinks.Catalog != nil {
		if err := uh.saveMetadata(ctx, upload); err != nil {
			log.Printf("Warning: failed to save metadata for %s: %v", upload.ID, err)
		}
	}

	if uh.sinks.Cache != nil {
		if err := uh.primeCache(ctx, upload); err != nil {
			log.Printf("Warning: failed to update cache: %v", err)
		}
	}

	if uh.sinks.Publisher != nil {
		if err := uh.publish(ctx, upload); err != nil {
			log.Printf("Warning: failed to publish upload event for %s: %v", upload.ID, err)
		}
	}
}

func (uh *UploadHandler) mirror(ctx context.Context, upload *models.Upload) error {
	ctx, span := tracer.Start(ctx, "mirror_upload")
	defer span.End()

	key := storage.MirrorKey(upload.StoredName)
	if err := uh.sinks.Mirror.MirrorFile(ctx, key, upload.StoredPath); err != nil {
		span.RecordError(err)
		return err
	}
	upload.MirrorKey = key
	return nil
}

func (uh *UploadHandler) saveMetadata(ctx context.Context, upload *models.Upload) error {
	ctx, span := tracer.Start(ctx, "save_metadata")
	defer span.End()

	if err := uh.sinks.Catalog.CreateUpload(ctx, upload); err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.Bool("metadata_saved", true))
	return nil
}

func (uh *UploadHandler) primeCache(ctx context.Context, upload *models.Upload) error {
	ctx, span := tracer.Start(ctx, "prime_cache")
	defer span.End()

	return uh.sinks.Cache.SetUpload(ctx, upload)
}

func (uh *UploadHandler) publish(ctx context.Context, upload *models.Upload) error {
	ctx, span := tracer.Start(ctx, "publish_event")
	defer span.End()

	if err := uh.sinks.Publisher.PublishUpload(ctx, upload.Event()); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}
