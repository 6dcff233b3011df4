package statestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File names written by each pipeline stage
const (
	GatheredFile = "gathered_data.json"
	AnalysisFile = "analysis_results.json"
	RankedFile   = "ranked_results.json"
)

// producers maps a state file to the stage that writes it
var producers = map[string]string{
	GatheredFile: "gather",
	AnalysisFile: "analyze",
	RankedFile:   "rank",
}

// MissingStateError means a stage's input file has not been produced yet
type MissingStateError struct {
	Path  string
	Stage string
}

func (e *MissingStateError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("state file %s not found", e.Path)
	}
	return fmt.Sprintf("state file %s not found. Run stage '%s' first", e.Path, e.Stage)
}

func (e *MissingStateError) Unwrap() error {
	return os.ErrNotExist
}

// Store persists intermediate pipeline results as JSON files in a directory
type Store struct {
	mu  sync.Mutex
	dir string
}

// New creates a Store rooted at dir, creating the directory if needed
func New(dir string) (*Store, error) {
	if dir == "" {
		dir = "pipeline_state"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory the store writes to
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the full path of a state file
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Save writes v as indented JSON. The file is replaced atomically.
func (s *Store) Save(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), s.Path(name)); err != nil {
		return fmt.Errorf("failed to save %s: %w", name, err)
	}
	return nil
}

// Load reads a state file into v. A missing file is a *MissingStateError
// naming the stage that produces it.
func (s *Store) Load(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &MissingStateError{Path: path, Stage: producers[name]}
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
