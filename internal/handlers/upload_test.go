package handlers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/maneesh/videodrop/internal/chunker"
	"github.com/maneesh/videodrop/internal/naming"
	"github.com/maneesh/videodrop/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type formPart struct {
	field    string
	filename string // empty for a plain form field
	content  []byte
}

func multipartBody(t *testing.T, parts ...formPart) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for _, p := range parts {
		if p.filename == "" {
			require.NoError(t, mw.WriteField(p.field, string(p.content)))
			continue
		}
		w, err := mw.CreateFormFile(p.field, p.filename)
		require.NoError(t, err)
		_, err = w.Write(p.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

type testServer struct {
	router    http.Handler
	uploadDir string
	publicDir string
}

type serverOption func(*serverSetup)

type serverSetup struct {
	uploadDir string
	maxBytes  int64
	namer     naming.Namer
	sinks     Sinks
	metadata  *MetadataHandler
	clock     *fixedClock
}

func withNamer(n naming.Namer) serverOption { return func(s *serverSetup) { s.namer = n } }
func withMaxBytes(n int64) serverOption     { return func(s *serverSetup) { s.maxBytes = n } }
func withSinks(sinks Sinks) serverOption    { return func(s *serverSetup) { s.sinks = sinks } }
func withUploadDir(dir string) serverOption { return func(s *serverSetup) { s.uploadDir = dir } }
func withClock(c *fixedClock) serverOption  { return func(s *serverSetup) { s.clock = c } }
func withMetadata(m *MetadataHandler) serverOption {
	return func(s *serverSetup) { s.metadata = m }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	setup := serverSetup{uploadDir: t.TempDir(), namer: naming.UUIDNamer{}}
	for _, opt := range opts {
		opt(&setup)
	}

	publicDir := t.TempDir()
	store := storage.NewDiskStore(setup.uploadDir, chunker.NewChunker(16, setup.maxBytes))
	upload := NewUploadHandler("video", setup.maxBytes, setup.namer, store, setup.sinks)
	if setup.clock != nil {
		upload.now = setup.clock.Now
	}

	return &testServer{
		router: NewRouter(Routes{
			PublicDir: publicDir,
			Upload:    upload,
			Metadata:  setup.metadata,
		}),
		uploadDir: setup.uploadDir,
		publicDir: publicDir,
	}
}

func (ts *testServer) post(t *testing.T, accept string, parts ...formPart) *httptest.ResponseRecorder {
	t.Helper()

	body, contentType := multipartBody(t, parts...)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

type fixedClock struct{ at time.Time }

func (c *fixedClock) Now() time.Time { return c.at }

func TestUpload_StoresFile(t *testing.T) {
	ts := newTestServer(t)
	payload := bytes.Repeat([]byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p'}, 20)

	rr := ts.post(t, "", formPart{field: "video", filename: "clip.mp4", content: payload})

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, SuccessMessage, rr.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", rr.Header().Get("Content-Type"))

	files := listDir(t, ts.uploadDir)
	require.Len(t, files, 1)
	assert.Equal(t, ".mp4", filepath.Ext(files[0]))
	assert.Equal(t, files[0], rr.Header().Get("X-Stored-Name"))
	assert.Equal(t, rr.Header().Get("X-Upload-Id")+".mp4", files[0])

	stored, err := os.ReadFile(filepath.Join(ts.uploadDir, files[0]))
	require.NoError(t, err)
	assert.Equal(t, payload, stored)
}

func TestUpload_JSONResponse(t *testing.T) {
	ts := newTestServer(t)
	payload := []byte("frames")

	rr := ts.post(t, "application/json", formPart{field: "video", filename: "clip.webm", content: payload})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, SuccessMessage, resp.Message)
	assert.Equal(t, "clip.webm", resp.OriginalName)
	assert.Equal(t, resp.ID+".webm", resp.StoredName)
	assert.Equal(t, int64(len(payload)), resp.Size)
	sum := sha256.Sum256(payload)
	assert.Equal(t, hex.EncodeToString(sum[:]), resp.SHA256)
}

func TestUpload_NoExtension(t *testing.T) {
	clock := &fixedClock{at: time.UnixMilli(1700000000000)}
	ts := newTestServer(t, withNamer(naming.TimestampNamer{}), withClock(clock))

	rr := ts.post(t, "", formPart{field: "video", filename: "clipnoext", content: []byte("x")})
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, []string{"1700000000000"}, listDir(t, ts.uploadDir))
}

func TestUpload_MissingField(t *testing.T) {
	ts := newTestServer(t)

	cases := map[string][]formPart{
		"other file field": {{field: "attachment", filename: "clip.mp4", content: []byte("x")}},
		"video as text":    {{field: "video", content: []byte("not a file")}},
		"empty form":       nil,
	}
	for name, parts := range cases {
		t.Run(name, func(t *testing.T) {
			rr := ts.post(t, "application/json", parts...)
			assert.Equal(t, http.StatusBadRequest, rr.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, KindNoFile, resp.Error)
		})
	}

	assert.Empty(t, listDir(t, ts.uploadDir))
}

func TestUpload_NotMultipart(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(`{"video":"clip.mp4"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, listDir(t, ts.uploadDir))
}

func TestUpload_OnlyFirstVideoPartIsStored(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.post(t, "",
		formPart{field: "title", content: []byte("holiday")},
		formPart{field: "video", filename: "first.mp4", content: []byte("first")},
		formPart{field: "video", filename: "second.mov", content: []byte("second")},
	)
	require.Equal(t, http.StatusOK, rr.Code)

	files := listDir(t, ts.uploadDir)
	require.Len(t, files, 1)
	stored, err := os.ReadFile(filepath.Join(ts.uploadDir, files[0]))
	require.NoError(t, err)
	assert.Equal(t, "first", string(stored))
}

func TestUpload_BackToBackUploadsDoNotOverwrite(t *testing.T) {
	clock := &fixedClock{at: time.UnixMilli(1700000000000)}
	ts := newTestServer(t, withNamer(naming.TimestampNamer{}), withClock(clock))

	rr := ts.post(t, "", formPart{field: "video", filename: "a.mp4", content: []byte("first")})
	require.Equal(t, http.StatusOK, rr.Code)

	clock.at = clock.at.Add(time.Millisecond)
	rr = ts.post(t, "", formPart{field: "video", filename: "b.mp4", content: []byte("second")})
	require.Equal(t, http.StatusOK, rr.Code)

	assert.ElementsMatch(t, []string{"1700000000000.mp4", "1700000000001.mp4"}, listDir(t, ts.uploadDir))
}

func TestUpload_SameMillisecondCollisionIsDetected(t *testing.T) {
	clock := &fixedClock{at: time.UnixMilli(1700000000000)}
	ts := newTestServer(t, withNamer(naming.TimestampNamer{}), withClock(clock))

	rr := ts.post(t, "", formPart{field: "video", filename: "a.mp4", content: []byte("first")})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ts.post(t, "application/json", formPart{field: "video", filename: "b.mp4", content: []byte("second")})
	assert.Equal(t, http.StatusConflict, rr.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, KindNameCollision, resp.Error)

	stored, err := os.ReadFile(filepath.Join(ts.uploadDir, "1700000000000.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(stored))
}

func TestUpload_UUIDNamesAreDistinct(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 5; i++ {
		rr := ts.post(t, "", formPart{field: "video", filename: "clip.mp4", content: []byte{byte(i)}})
		require.Equal(t, http.StatusOK, rr.Code)
	}
	assert.Len(t, listDir(t, ts.uploadDir), 5)
}

func TestUpload_TooLarge(t *testing.T) {
	ts := newTestServer(t, withMaxBytes(64))

	rr := ts.post(t, "", formPart{field: "video", filename: "clip.mp4", content: bytes.Repeat([]byte("x"), 65)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Empty(t, listDir(t, ts.uploadDir))

	rr = ts.post(t, "", formPart{field: "video", filename: "clip.mp4", content: bytes.Repeat([]byte("x"), 64)})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestUpload_MissingUploadDirectory(t *testing.T) {
	ts := newTestServer(t, withUploadDir(filepath.Join(t.TempDir(), "uploads")))

	rr := ts.post(t, "application/json", formPart{field: "video", filename: "clip.mp4", content: []byte("x")})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, KindWriteFailed, resp.Error)
}

func TestUpload_ForwardsToSinks(t *testing.T) {
	mirror := &fakeMirror{}
	catalog := &fakeCatalog{}
	cache := &fakeCache{}
	publisher := &fakePublisher{}
	ts := newTestServer(t, withSinks(Sinks{Mirror: mirror, Catalog: catalog, Cache: cache, Publisher: publisher}))

	rr := ts.post(t, "", formPart{field: "video", filename: "clip.mp4", content: []byte("frames")})
	require.Equal(t, http.StatusOK, rr.Code)

	id := rr.Header().Get("X-Upload-Id")
	storedName := rr.Header().Get("X-Stored-Name")

	assert.Equal(t, filepath.Join(ts.uploadDir, storedName), mirror.objects["uploads/"+storedName])

	require.Contains(t, catalog.uploads, id)
	assert.Equal(t, "clip.mp4", catalog.uploads[id].OriginalName)
	assert.Equal(t, ".mp4", catalog.uploads[id].Extension)
	assert.Equal(t, "uploads/"+storedName, catalog.uploads[id].MirrorKey)
	assert.Equal(t, int64(6), catalog.uploads[id].Size)

	require.Contains(t, cache.uploads, id)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, id, publisher.events[0].ID)
	assert.Equal(t, storedName, publisher.events[0].StoredName)
}

func TestUpload_SinkFailuresDoNotFailUpload(t *testing.T) {
	sinks := Sinks{
		Mirror:    &fakeMirror{fail: true},
		Catalog:   &fakeCatalog{fail: true},
		Cache:     &fakeCache{fail: true},
		Publisher: &fakePublisher{fail: true},
	}
	ts := newTestServer(t, withSinks(sinks))

	rr := ts.post(t, "", formPart{field: "video", filename: "clip.mp4", content: []byte("frames")})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, SuccessMessage, rr.Body.String())
	assert.Len(t, listDir(t, ts.uploadDir), 1)
}

func TestUpload_SurvivesRestart(t *testing.T) {
	uploadDir := t.TempDir()

	first := newTestServer(t, withUploadDir(uploadDir))
	rr := first.post(t, "", formPart{field: "video", filename: "kept.mp4", content: []byte("kept")})
	require.Equal(t, http.StatusOK, rr.Code)
	kept := rr.Header().Get("X-Stored-Name")

	second := newTestServer(t, withUploadDir(uploadDir))
	rr = second.post(t, "", formPart{field: "video", filename: "new.mp4", content: []byte("new")})
	require.Equal(t, http.StatusOK, rr.Code)

	files := listDir(t, uploadDir)
	assert.Len(t, files, 2)
	assert.Contains(t, files, kept)

	stored, err := os.ReadFile(filepath.Join(uploadDir, kept))
	require.NoError(t, err)
	assert.Equal(t, "kept", string(stored))
}

func TestUpload_TimestampIDMatchesCreatedAt(t *testing.T) {
	clock := &fixedClock{at: time.UnixMilli(1700000000042)}
	catalog := &fakeCatalog{}
	ts := newTestServer(t, withNamer(naming.TimestampNamer{}), withClock(clock), withSinks(Sinks{Catalog: catalog}))

	rr := ts.post(t, "", formPart{field: "video", filename: "clip.mp4", content: []byte("frames")})
	require.Equal(t, http.StatusOK, rr.Code)

	id := rr.Header().Get("X-Upload-Id")
	require.Equal(t, "1700000000042", id)

	record, err := catalog.GetUpload(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, strconv.FormatInt(record.CreatedAt.UnixMilli(), 10))
}

func TestUpload_ConcurrentUploadsReachSQLiteCatalog(t *testing.T) {
	catalog, err := storage.NewSQLCatalog(context.Background(), "sqlite", filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })

	ts := newTestServer(t,
		withSinks(Sinks{Catalog: catalog}),
		withMetadata(NewMetadataHandler(catalog, nil)),
	)

	const uploads = 32
	requests := make([]*http.Request, uploads)
	for i := range requests {
		body, contentType := multipartBody(t, formPart{field: "video", filename: "clip.mp4", content: []byte{byte(i)}})
		req := httptest.NewRequest(http.MethodPost, "/upload", body)
		req.Header.Set("Content-Type", contentType)
		requests[i] = req
	}

	ids := make([]string, uploads)
	var wg sync.WaitGroup
	for i, req := range requests {
		wg.Add(1)
		go func(i int, req *http.Request) {
			defer wg.Done()
			rr := httptest.NewRecorder()
			ts.router.ServeHTTP(rr, req)
			if assert.Equal(t, http.StatusOK, rr.Code) {
				ids[i] = rr.Header().Get("X-Upload-Id")
			}
		}(i, req)
	}
	wg.Wait()

	for _, id := range ids {
		require.NotEmpty(t, id)
		rr := ts.get("/uploads/" + id)
		assert.Equal(t, http.StatusOK, rr.Code, "record for %s", id)
	}

	list, err := catalog.ListUploads(context.Background(), 500)
	require.NoError(t, err)
	assert.Len(t, list, uploads)
}
