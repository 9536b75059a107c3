package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// StoreService is the core service name of the configured Store.
const StoreService = "decision.store"

// Store persists decisions keyed by alert id.
type Store interface {
	Save(ctx context.Context, d Decision) error
	Load(ctx context.Context, alertID string) (Decision, error)
}

// FileStore keeps one JSON document per alert under a directory.
type FileStore struct {
	dir string
}

// NewFileStore returns a store writing into dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the directory holding the documents.
func (s *FileStore) Dir() string { return s.dir }

// Save writes d atomically, replacing any previous decision for the alert.
func (s *FileStore) Save(_ context.Context, d Decision) error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("decision: %w", err)
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("decision: encode: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, ".decision-*")
	if err != nil {
		return fmt.Errorf("decision: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("decision: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("decision: write: %w", err)
	}
	return os.Rename(tmp.Name(), s.path(d.AlertID))
}

// Load reads the decision stored for alertID.
func (s *FileStore) Load(_ context.Context, alertID string) (Decision, error) {
	data, err := os.ReadFile(s.path(alertID))
	if errors.Is(err, fs.ErrNotExist) {
		return Decision{}, fmt.Errorf("%w: %s", ErrNotFound, alertID)
	}
	if err != nil {
		return Decision{}, fmt.Errorf("decision: %w", err)
	}
	var d Decision
	if err := json.Unmarshal(data, &d); err != nil {
		return Decision{}, fmt.Errorf("decision: decode %s: %w", alertID, err)
	}
	return d, nil
}

func (s *FileStore) path(alertID string) string {
	return filepath.Join(s.dir, SafeName(alertID)+".json")
}

// SafeName maps an alert id onto a file name, replacing every character
// outside [A-Za-z0-9._-] with an underscore.
func SafeName(alertID string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, alertID)
	if name == "" || strings.Trim(name, ".") == "" {
		return "_"
	}
	return name
}

var _ Store = (*FileStore)(nil)
