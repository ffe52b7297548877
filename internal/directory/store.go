package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Veraticus/fundwatch/internal/common"
	"github.com/Veraticus/fundwatch/internal/model"
)

// Store reads and writes the directory document at a fixed path.
type Store struct {
	path string
}

// NewStore returns a store for the document at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the document path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the directory. A missing file yields an empty directory.
func (s *Store) Load() (*model.FundDirectory, error) {
	dir := &model.FundDirectory{}
	found, err := ReadJSON(s.path, dir)
	if err != nil {
		return nil, err
	}
	if dir.Funds == nil {
		dir.Funds = []model.Fund{}
	}
	if dir.FeedHealth == nil {
		dir.FeedHealth = []model.FeedHealth{}
	}
	for i := range dir.Funds {
		if dir.Funds[i].Articles == nil {
			dir.Funds[i].Articles = []model.ArticleRef{}
		}
	}
	if !found || dir.Stats.ByCategory == nil {
		RecomputeStats(dir)
	}
	return dir, nil
}

// Save stamps generated_at, recomputes stats and atomically replaces the document.
func (s *Store) Save(dir *model.FundDirectory, now time.Time) error {
	dir.GeneratedAt = now.UTC()
	RecomputeStats(dir)
	return WriteJSON(s.path, dir)
}

// ReadJSON decodes the JSON document at path into v. It reports false without
// error when the file does not exist.
func ReadJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("%w: %s: %w", common.ErrCorruptDocument, path, err)
	}
	return true, nil
}

// WriteJSON pretty-prints v to a temp file beside path, fsyncs it and renames
// it over path. Readers see either the old or the new document.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
