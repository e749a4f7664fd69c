package handlers

import (
	"errors"
	"io/fs"
	"net/http"
	"path"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Routes lists the handlers mounted by NewRouter. Metadata may be nil.
type Routes struct {
	PublicDir string
	Upload    http.Handler
	Metadata  *MetadataHandler
}

// NewRouter builds the HTTP router. Anything not matched by an API route is
// looked up in the public directory.
func NewRouter(routes Routes) *mux.Router {
	router := mux.NewRouter()

	// Health check endpoint (no tracing needed)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	router.Handle("/upload", otelhttp.NewHandler(routes.Upload, "POST /upload")).Methods(http.MethodPost)

	if routes.Metadata != nil {
		router.Handle("/uploads", otelhttp.NewHandler(http.HandlerFunc(routes.Metadata.List), "GET /uploads")).Methods(http.MethodGet)
		router.Handle("/uploads/{id}", otelhttp.NewHandler(routes.Metadata, "GET /uploads/{id}")).Methods(http.MethodGet)
	}

	static := http.FileServer(noListingFS{http.Dir(routes.PublicDir)})
	router.PathPrefix("/").Handler(static).Methods(http.MethodGet, http.MethodHead)

	return router
}

// noListingFS hides directories that have no index.html, so they answer 404
// instead of a generated listing.
type noListingFS struct {
	fs http.FileSystem
}

func (nfs noListingFS) Open(name string) (http.File, error) {
	f, err := nfs.fs.Open(name)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !info.IsDir() {
		return f, nil
	}

	index, err := nfs.fs.Open(path.Join(name, "index.html"))
	if err != nil {
		f.Close()
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fs.ErrNotExist
		}
		return nil, err
	}
	index.Close()
	return f, nil
}
