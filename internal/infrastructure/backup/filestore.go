package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vetiver-inc/vetiver/internal/domain/usage"
)

// Store persists each category's not-yet-committed delta batch on disk.
// The file is the recovery source when the process or the cache is lost
// between buffering and reconciliation, so every buffered write replaces
// the file with the full uncommitted set and only a committed
// reconciliation clears it.
type Store interface {
	// Write replaces the category's backup with the given entries.
	// Writing an empty set removes the file.
	Write(category usage.Category, entries [][]byte) error

	// Read returns the category's backed-up entries, or nil when no
	// backup exists.
	Read(category usage.Category) ([][]byte, error)

	// Clear removes the category's backup file.
	Clear(category usage.Category) error
}

// FileStore implements Store with one JSON file per category. Writes go
// through a temp file and rename so a crash mid-write never leaves a
// truncated backup behind.
type FileStore struct {
	dir string
}

// NewFileStore creates a file-backed store rooted at dir
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(category usage.Category) string {
	return filepath.Join(s.dir, "pending_"+category.String()+"_usage.json")
}

// Write replaces the category's backup with the given entries
func (s *FileStore) Write(category usage.Category, entries [][]byte) error {
	if len(entries) == 0 {
		return s.Clear(category)
	}

	raw := make([]json.RawMessage, 0, len(entries))
	for _, entry := range entries {
		raw = append(raw, json.RawMessage(entry))
	}

	content, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal %s backup: %w", category, err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create backup dir: %w", err)
	}

	target := s.path(category)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, content, 0o600); err != nil {
		return fmt.Errorf("failed to write %s backup: %w", category, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("failed to replace %s backup: %w", category, err)
	}

	return nil
}

// Read returns the category's backed-up entries, or nil when no backup exists
func (s *FileStore) Read(category usage.Category) ([][]byte, error) {
	content, err := os.ReadFile(s.path(category))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s backup: %w", category, err)
	}
	if len(content) == 0 {
		return nil, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s backup: %w", category, err)
	}

	entries := make([][]byte, 0, len(raw))
	for _, r := range raw {
		entries = append(entries, []byte(r))
	}
	return entries, nil
}

// Clear removes the category's backup file
func (s *FileStore) Clear(category usage.Category) error {
	if err := os.Remove(s.path(category)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear %s backup: %w", category, err)
	}
	return nil
}
