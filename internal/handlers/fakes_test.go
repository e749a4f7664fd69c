package handlers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/maneesh/videodrop/internal/models"
	"github.com/maneesh/videodrop/internal/storage"
)

var errSinkDown = errors.New("sink unavailable")

type fakeMirror struct {
	mu      sync.Mutex
	objects map[string]string
	fail    bool
}

func (m *fakeMirror) MirrorFile(ctx context.Context, objectKey, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errSinkDown
	}
	if m.objects == nil {
		m.objects = make(map[string]string)
	}
	m.objects[objectKey] = path
	return nil
}

type fakeCatalog struct {
	mu      sync.Mutex
	uploads map[string]*models.Upload
	gets    int
	fail    bool
}

func (c *fakeCatalog) CreateUpload(ctx context.Context, upload *models.Upload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errSinkDown
	}
	if c.uploads == nil {
		c.uploads = make(map[string]*models.Upload)
	}
	copied := *upload
	c.uploads[upload.ID] = &copied
	return nil
}

func (c *fakeCatalog) GetUpload(ctx context.Context, id string) (*models.Upload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.fail {
		return nil, errSinkDown
	}
	upload, ok := c.uploads[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return upload, nil
}

func (c *fakeCatalog) ListUploads(ctx context.Context, limit int) ([]*models.Upload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return nil, errSinkDown
	}
	var uploads []*models.Upload
	for _, u := range c.uploads {
		uploads = append(uploads, u)
	}
	sort.Slice(uploads, func(i, j int) bool { return uploads[i].ID < uploads[j].ID })
	if len(uploads) > limit {
		uploads = uploads[:limit]
	}
	return uploads, nil
}

type fakeCache struct {
	mu      sync.Mutex
	uploads map[string]*models.Upload
	fail    bool
}

func (c *fakeCache) GetUpload(ctx context.Context, id string) (*models.Upload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return nil, errSinkDown
	}
	upload, ok := c.uploads[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrCacheMiss, id)
	}
	return upload, nil
}

func (c *fakeCache) SetUpload(ctx context.Context, upload *models.Upload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errSinkDown
	}
	if c.uploads == nil {
		c.uploads = make(map[string]*models.Upload)
	}
	copied := *upload
	c.uploads[upload.ID] = &copied
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.UploadEvent
	fail   bool
}

func (p *fakePublisher) PublishUpload(ctx context.Context, event models.UploadEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errSinkDown
	}
	p.events = append(p.events, event)
	return nil
}
