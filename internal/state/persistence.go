package state

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrCorruptSave marks a persisted blob that could not be decoded. Callers
// get a fresh default state alongside it and should log and move on; a bad
// save must never prevent startup.
var ErrCorruptSave = errors.New("corrupt save data")

// Store owns the canonical World and the save file it round-trips through.
type Store struct {
	path  string
	world *World
	log   *slog.Logger
}

// NewStore opens (or initializes) the save at path. A missing file yields a
// default state; a corrupt one is discarded with a warning.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: path, log: logger}
	w, err := load(path)
	if err != nil {
		if errors.Is(err, ErrCorruptSave) {
			logger.Warn("discarding corrupt save", "path", path, "err", err)
		} else if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("save unreadable, starting fresh", "path", path, "err", err)
		}
		w = Default()
	}
	s.world = w
	return s
}

// World exposes the canonical state. The engine is the only caller and
// touches it from a single goroutine at a time.
func (s *Store) World() *World { return s.world }

// Reset replaces the state with defaults (new game).
func (s *Store) Reset() {
	s.world = Default()
}

// Save writes the state as one YAML blob, atomically via temp + rename.
func (s *Store) Save() error {
	data, err := yaml.Marshal(s.world)
	if err != nil {
		return fmt.Errorf("encode save: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create save dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".save-*")
	if err != nil {
		return fmt.Errorf("create temp save: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write save: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close save: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace save: %w", err)
	}
	return nil
}

// load reads a save blob and merges it over defaults, so fields added in
// later versions keep their default values when absent from old saves.
func load(path string) (*World, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	w := Default()
	if err := yaml.Unmarshal(data, w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSave, err)
	}
	w.Normalize()
	return w, nil
}
