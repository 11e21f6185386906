// Package file provides file-based persistence for development and tests.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/salonkit/workflowd/pkg/persistence"
)

const (
	workflowsDir  = "workflows"
	executionsDir = "executions"
	outboxDir     = "outbox"
)

// Persistence implements the persistence.Persistence interface using the file system.
// One mutex serializes every repository so multi-file updates are never observed half-written.
type Persistence struct {
	root          string
	mu            *sync.Mutex
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
	outboxRepo    *OutboxRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	store := &jsonStore{root: cleanRoot}
	mu := &sync.Mutex{}

	return &Persistence{
		root:          cleanRoot,
		mu:            mu,
		workflowRepo:  &WorkflowRepository{store: store, mu: mu},
		executionRepo: &ExecutionRepository{store: store, mu: mu},
		outboxRepo:    &OutboxRepository{store: store, mu: mu},
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

func (fp *Persistence) OutboxRepository() persistence.OutboxRepository {
	return fp.outboxRepo
}

// jsonStore reads and writes one JSON document per record.
type jsonStore struct {
	root string
}

func (s *jsonStore) path(dir, id string) string {
	return filepath.Clean(path.Join(s.root, dir, id+".json"))
}

// read decodes the record into v. It reports false when the record does not exist.
func (s *jsonStore) read(dir, id string, v any) (bool, error) {
	body, err := os.ReadFile(s.path(dir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s/%s: %w", dir, id, err)
	}

	err = json.Unmarshal(body, v)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal %s/%s: %w", dir, id, err)
	}

	return true, nil
}

// write replaces the record through a temp file and rename.
func (s *jsonStore) write(dir, id string, v any) error {
	err := os.MkdirAll(path.Join(s.root, dir), 0750)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", dir, id, err)
	}

	target := s.path(dir, id)
	tmp := target + ".tmp"

	err = os.WriteFile(tmp, data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", dir, id, err)
	}

	return os.Rename(tmp, target)
}

// ids lists the record identifiers stored under dir.
func (s *jsonStore) ids(dir string) ([]string, error) {
	root := os.DirFS(path.Join(s.root, dir))

	files, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s files: %w", dir, err)
	}

	ids := make([]string, 0, len(files))
	for _, name := range files {
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}

	return ids, nil
}
