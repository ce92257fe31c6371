package descriptor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kikiluvv/framecull/pkg/util"
)

// Persister saves and restores named descriptor batches
type Persister interface {
	Save(ctx context.Context, name string, s *Store) error
	Load(ctx context.Context, name string) (*Store, error)
	Close()
}

type batchFile struct {
	BatchID   string    `json:"batch_id"`
	Name      string    `json:"name"`
	Dim       int       `json:"dim"`
	CreatedAt time.Time `json:"created_at"`
	Entries   []Entry   `json:"entries"`
}

// FileStore keeps one JSON document per batch under a directory
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := util.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create descriptor dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(name string) string {
	return filepath.Join(f.dir, name+".json")
}

// Save writes the batch atomically via a temp file and rename
func (f *FileStore) Save(ctx context.Context, name string, s *Store) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := batchFile{
		BatchID:   uuid.NewString(),
		Name:      name,
		Dim:       s.Dim(),
		CreatedAt: time.Now().UTC(),
		Entries:   s.Entries(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal descriptors: %w", err)
	}

	tmp := f.path(name) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write descriptors: %w", err)
	}
	return os.Rename(tmp, f.path(name))
}

// Load reads a batch written by Save
func (f *FileStore) Load(ctx context.Context, name string) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path(name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: batch %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read descriptors: %w", err)
	}

	var doc batchFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse descriptors: %w", err)
	}

	s, err := FromEntries(doc.Entries)
	if err != nil {
		return nil, err
	}
	if s.Len() > 0 && s.Dim() != doc.Dim {
		return nil, fmt.Errorf("batch %s declares dim %d, entries have %d", name, doc.Dim, s.Dim())
	}
	return s, nil
}

func (f *FileStore) Close() {}
