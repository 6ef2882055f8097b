package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/zanmi-app/zanmi-go/internal/core/domain"
)

// FileRepository is the on-device mirror of list resources: one JSON
// document per resource carrying the items and the time they were
// fetched. It backs the local-first readers across process restarts.
type FileRepository struct {
	dir   string
	clock func() time.Time
	mu    sync.Mutex
}

type document[T any] struct {
	Items    []T       `json:"items"`
	CachedAt time.Time `json:"cachedAt"`
}

// NewFileRepository creates the repository rooted at dir (a "~/"
// prefix expands to the home directory). A nil clock defaults to
// time.Now.
func NewFileRepository(dir string, clock func() time.Time) (*FileRepository, error) {
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, dir[2:])
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create repository directory: %w", err)
	}
	if clock == nil {
		clock = time.Now
	}
	return &FileRepository{dir: dir, clock: clock}, nil
}

// GetPools returns the mirrored pool list, empty when none was saved.
func (r *FileRepository) GetPools(ctx context.Context) ([]domain.Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, err := readDocument[domain.Pool](r.poolsFile())
	if err != nil {
		return nil, err
	}
	return doc.Items, nil
}

// SavePools overwrites the mirrored pool list and stamps it now.
func (r *FileRepository) SavePools(ctx context.Context, pools []domain.Pool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return writeDocument(r.poolsFile(), document[domain.Pool]{
		Items:    pools,
		CachedAt: r.clock(),
	})
}

// PoolsCachedAt returns when the pool mirror was last written, zero
// when it never was.
func (r *FileRepository) PoolsCachedAt(ctx context.Context) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, err := readDocument[domain.Pool](r.poolsFile())
	if err != nil {
		return time.Time{}, err
	}
	return doc.CachedAt, nil
}

// GetEnrollments returns the mirrored enrollments for a scope.
func (r *FileRepository) GetEnrollments(ctx context.Context, scopeID string) ([]domain.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, err := readDocument[domain.Enrollment](r.enrollmentsFile(scopeID))
	if err != nil {
		return nil, err
	}
	return doc.Items, nil
}

// SaveEnrollments overwrites the mirrored enrollments for a scope.
func (r *FileRepository) SaveEnrollments(ctx context.Context, scopeID string, enrollments []domain.Enrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return writeDocument(r.enrollmentsFile(scopeID), document[domain.Enrollment]{
		Items:    enrollments,
		CachedAt: r.clock(),
	})
}

// EnrollmentsCachedAt returns when a scope's enrollment mirror was
// last written.
func (r *FileRepository) EnrollmentsCachedAt(ctx context.Context, scopeID string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, err := readDocument[domain.Enrollment](r.enrollmentsFile(scopeID))
	if err != nil {
		return time.Time{}, err
	}
	return doc.CachedAt, nil
}

func (r *FileRepository) poolsFile() string {
	return filepath.Join(r.dir, "pools.json")
}

func (r *FileRepository) enrollmentsFile(scopeID string) string {
	if scopeID == "" {
		return filepath.Join(r.dir, "enrollments.json")
	}
	return filepath.Join(r.dir, "enrollments-"+sanitizeScope(scopeID)+".json")
}

// sanitizeScope keeps scope-derived file names path-safe.
func sanitizeScope(scope string) string {
	return strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			return c
		default:
			return '_'
		}
	}, scope)
}

func readDocument[T any](path string) (document[T], error) {
	var doc document[T]
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("failed to unmarshal %s: %w", filepath.Base(path), err)
	}
	return doc, nil
}

func writeDocument[T any](path string, doc document[T]) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
