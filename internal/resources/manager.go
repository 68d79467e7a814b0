package resources

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"banana3d/internal/fileutil"
	"banana3d/internal/logging"
)

// Blob is the binary payload behind a handle.
type Blob struct {
	Name      string
	MediaType string
	Data      []byte
}

// Handle is a lightweight reference to an allocated blob. The zero Handle
// refers to nothing and is always safe to release.
type Handle struct {
	id   uuid.UUID
	path string
}

// ID returns the handle identifier, or "" for the zero handle.
func (h Handle) ID() string {
	if h.IsZero() {
		return ""
	}
	return h.id.String()
}

// IsZero reports whether h refers to nothing.
func (h Handle) IsZero() bool {
	return h.id == uuid.Nil
}

// Path returns the spool file backing the handle, or "" when the manager
// keeps blobs in memory.
func (h Handle) Path() string {
	return h.path
}

func (h Handle) String() string {
	if h.IsZero() {
		return "<none>"
	}
	if h.path != "" {
		return h.path
	}
	return "mem:" + h.id.String()
}

// Stats counts lifecycle events since the manager was created.
type Stats struct {
	Allocated int
	Released  int
	Live      int
}

// Manager allocates previewable handles and makes their release idempotent.
type Manager struct {
	mu       sync.Mutex
	live     map[uuid.UUID]Blob
	spoolDir string
	logger   *slog.Logger
	stats    Stats
}

// Option customizes a Manager.
type Option func(*Manager)

// WithSpoolDir materializes every allocated blob as a file under dir. The
// file is removed when the handle is released.
func WithSpoolDir(dir string) Option {
	return func(m *Manager) {
		m.spoolDir = strings.TrimSpace(dir)
	}
}

// WithLogger sets the logger used for release diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager constructs an empty manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		live:   make(map[uuid.UUID]Blob),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, "resources")
	return m
}

// Allocate registers blob and returns a fresh handle for it.
func (m *Manager) Allocate(blob Blob) (Handle, error) {
	h := Handle{id: uuid.New()}
	if m.spoolDir != "" {
		path, err := m.spool(h.id, blob)
		if err != nil {
			return Handle{}, err
		}
		h.path = path
	}

	m.mu.Lock()
	m.live[h.id] = blob
	m.stats.Allocated++
	m.mu.Unlock()
	return h, nil
}

func (m *Manager) spool(id uuid.UUID, blob Blob) (string, error) {
	if err := os.MkdirAll(m.spoolDir, 0o755); err != nil {
		return "", fmt.Errorf("create spool directory %q: %w", m.spoolDir, err)
	}
	path := filepath.Join(m.spoolDir, id.String()+extensionFor(blob))
	if err := fileutil.WriteFileAtomic(path, blob.Data, 0o644); err != nil {
		return "", fmt.Errorf("write spool file: %w", err)
	}
	return path, nil
}

// Release frees the handle. Releasing the zero handle, an unknown handle, or
// a handle that was already released does nothing.
func (m *Manager) Release(h Handle) {
	if h.IsZero() {
		return
	}
	m.mu.Lock()
	if _, ok := m.live[h.id]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.live, h.id)
	m.stats.Released++
	m.mu.Unlock()

	if h.path != "" {
		if err := os.Remove(h.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn("spool file removal failed",
				logging.String("path", h.path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "spool_remove_failed"),
			)
		}
	}
}

// Open returns the blob behind a live handle.
func (m *Manager) Open(h Handle) (Blob, bool) {
	if h.IsZero() {
		return Blob{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	blob, ok := m.live[h.id]
	return blob, ok
}

// Live reports how many handles are currently allocated.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Stats returns lifecycle counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := m.stats
	stats.Live = len(m.live)
	return stats
}

var mediaExtensions = map[string]string{
	"image/png":                ".png",
	"image/jpeg":               ".jpg",
	"image/webp":               ".webp",
	"model/gltf-binary":        ".glb",
	"application/octet-stream": ".bin",
}

func extensionFor(blob Blob) string {
	if ext := filepath.Ext(strings.TrimSpace(blob.Name)); ext != "" {
		return strings.ToLower(ext)
	}
	mediaType := strings.ToLower(strings.TrimSpace(blob.MediaType))
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	return mediaExtensions[mediaType]
}
