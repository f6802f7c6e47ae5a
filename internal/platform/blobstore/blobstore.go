// Package blobstore archives generated export files (workbooks, FHIR bundles,
// audit CSVs) so investigators can download them again later. It defines the
// BlobStore interface with an in-memory implementation for tests and
// development and a MinIO implementation for S3-compatible storage, plus the
// Echo handlers that list and download archived files.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

var (
	ErrBlobNotFound    = errors.New("blob not found")
	ErrFileTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrMissingFileName = errors.New("file name is required")
	ErrInvalidCategory = errors.New("invalid export category")
)

// MaxFileSize is the maximum archived file size in bytes (100 MB).
const MaxFileSize = 100 * 1024 * 1024

// Export categories.
const (
	CategoryWorkbook = "export-xlsx"
	CategorySDTM     = "export-sdtm"
	CategoryFHIR     = "export-fhir"
	CategoryAuditCSV = "audit-csv"
)

var allowedCategories = map[string]bool{
	CategoryWorkbook: true,
	CategorySDTM:     true,
	CategoryFHIR:     true,
	CategoryAuditCSV: true,
}

// BlobMetadata describes an archived file.
type BlobMetadata struct {
	Key         string    `json:"key"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Owner       string    `json:"owner"`
	Category    string    `json:"category"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by,omitempty"`
}

// ObjectKey returns the storage key "{owner}/{category}/{fileName}".
func ObjectKey(owner, category, fileName string) string {
	return path.Join(owner, category, fileName)
}

// BlobStore is the contract for archive backends.
type BlobStore interface {
	Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error)
	Download(ctx context.Context, key string) (io.ReadCloser, *BlobMetadata, error)
	GetMetadata(ctx context.Context, key string) (*BlobMetadata, error)
	List(ctx context.Context, owner string) ([]*BlobMetadata, error)
	Delete(ctx context.Context, key string) error
}

// prepare validates meta, reads content and fills in key, size and hash.
func prepare(meta BlobMetadata, content io.Reader, now time.Time) (BlobMetadata, []byte, error) {
	if meta.FileName == "" {
		return meta, nil, ErrMissingFileName
	}
	if !allowedCategories[meta.Category] {
		return meta, nil, fmt.Errorf("%w: %q", ErrInvalidCategory, meta.Category)
	}
	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return meta, nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return meta, nil, ErrFileTooLarge
	}
	sum := sha256.Sum256(data)
	meta.Hash = hex.EncodeToString(sum[:])
	meta.Size = int64(len(data))
	meta.Key = ObjectKey(meta.Owner, meta.Category, meta.FileName)
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now.UTC()
	}
	return meta, data, nil
}

type storedBlob struct {
	metadata BlobMetadata
	content  []byte
}

// InMemoryBlobStore is a thread-safe, in-memory BlobStore for tests and
// development.
type InMemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
	now   func() time.Time
}

// NewInMemoryBlobStore returns a ready-to-use InMemoryBlobStore.
func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{
		blobs: make(map[string]*storedBlob),
		now:   time.Now,
	}
}

// Upload stores content under its derived key, replacing any earlier file
// with the same key.
func (s *InMemoryBlobStore) Upload(_ context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := prepare(meta, content, s.now())
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[meta.Key] = &storedBlob{metadata: meta, content: data}
	out := meta
	return &out, nil
}

func (s *InMemoryBlobStore) Download(_ context.Context, key string) (io.ReadCloser, *BlobMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	meta := b.metadata
	return io.NopCloser(bytes.NewReader(b.content)), &meta, nil
}

func (s *InMemoryBlobStore) GetMetadata(_ context.Context, key string) (*BlobMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	if !ok {
		return nil, ErrBlobNotFound
	}
	meta := b.metadata
	return &meta, nil
}

// List returns the owner's files, newest first.
func (s *InMemoryBlobStore) List(_ context.Context, owner string) ([]*BlobMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefix := owner + "/"
	var out []*BlobMetadata
	for key, b := range s.blobs {
		if strings.HasPrefix(key, prefix) {
			meta := b.metadata
			out = append(out, &meta)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *InMemoryBlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, key)
	return nil
}

func sortNewestFirst(items []*BlobMetadata) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].Key < items[j].Key
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

// ---------------------------------------------------------------------------
// HTTP handlers
// ---------------------------------------------------------------------------

// BlobHandler serves archived exports of one owner (a study).
type BlobHandler struct {
	store BlobStore
}

func NewBlobHandler(store BlobStore) *BlobHandler {
	return &BlobHandler{store: store}
}

// RegisterRoutes mounts the archive endpoints on g, which must already carry
// the authorization middleware.
func (h *BlobHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/studies/:id/exports", h.handleList)
	g.GET("/studies/:id/exports/:category/:file", h.handleDownload)
}

func (h *BlobHandler) handleList(c echo.Context) error {
	items, err := h.store.List(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*BlobMetadata{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *BlobHandler) handleDownload(c echo.Context) error {
	key := ObjectKey(c.Param("id"), c.Param("category"), c.Param("file"))
	rc, meta, err := h.store.Download(c.Request().Context(), key)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "export not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer rc.Close()

	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, meta.FileName))
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}
