package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/maneesh/videodrop/internal/models"
	"github.com/maneesh/videodrop/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// MetadataHandler serves upload records from the catalog
type MetadataHandler struct {
	catalog Catalog
	cache   Cache
}

// NewMetadataHandler creates a new metadata handler. cache may be nil.
func NewMetadataHandler(catalog Catalog, cache Cache) *MetadataHandler {
	return &MetadataHandler{
		catalog: catalog,
		cache:   cache,
	}
}

// ServeHTTP handles GET /uploads/{id}
func (mh *MetadataHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "get_upload",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, "missing upload id in path", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("upload_id", id))

	upload, err := mh.getUpload(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "upload not found", http.StatusNotFound)
		return
	} else if err != nil {
		span.RecordError(err)
		log.Printf("Failed to look up upload %s: %v", id, err)
		http.Error(w, "failed to get upload metadata", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, upload)
}

// List handles GET /uploads?limit=n
func (mh *MetadataHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "list_uploads",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxListLimit)
	}

	uploads, err := mh.catalog.ListUploads(ctx, limit)
	if err != nil {
		span.RecordError(err)
		log.Printf("Failed to list uploads: %v", err)
		http.Error(w, "failed to list uploads", http.StatusInternalServerError)
		return
	}
	if uploads == nil {
		uploads = []*models.Upload{}
	}

	span.SetAttributes(attribute.Int("upload_count", len(uploads)))
	writeJSON(w, http.StatusOK, uploads)
}

func (mh *MetadataHandler) getUpload(ctx context.Context, id string) (*models.Upload, error) {
	if mh.cache != nil {
		ctx, cacheSpan := tracer.Start(ctx, "cache_lookup")
		upload, err := mh.cache.GetUpload(ctx, id)
		cacheSpan.End()

		switch {
		case err == nil:
			return upload, nil
		case !errors.Is(err, storage.ErrCacheMiss):
			log.Printf("Warning: cache lookup failed for %s: %v", id, err)
		}
	}

	ctx, dbSpan := tracer.Start(ctx, "db_lookup")
	defer dbSpan.End()

	upload, err := mh.catalog.GetUpload(ctx, id)
	if err != nil {
		return nil, err
	}

	if mh.cache != nil {
		if err := mh.cache.SetUpload(ctx, upload); err != nil {
			log.Printf("Warning: failed to update cache: %v", err)
		}
	}

	return upload, nil
}
