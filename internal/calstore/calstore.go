// Package calstore persists array calibration vectors between runs.
package calstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/rjboer/gophaser/internal/phaser"
)

// ErrNotFound is returned when no calibration has been saved yet.
var ErrNotFound = errors.New("calibration not found")

// document is the on-disk layout. The version allows the layout to change
// without misreading older files.
type document struct {
	Version     int                      `yaml:"version"`
	Calibration phaser.CalibrationVector `yaml:"calibration"`
}

const currentVersion = 1

// FileStore keeps one calibration vector in a YAML file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store backed by path. The file is created on the
// first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// LoadCalibration reads and validates the stored vector. A missing file
// yields the default calibration and ErrNotFound.
func (s *FileStore) LoadCalibration(ctx context.Context) (phaser.CalibrationVector, error) {
	if err := ctx.Err(); err != nil {
		return phaser.CalibrationVector{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return phaser.DefaultCalibration(), fmt.Errorf("%s: %w", s.path, ErrNotFound)
	}
	if err != nil {
		return phaser.CalibrationVector{}, fmt.Errorf("read calibration: %w", err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return phaser.CalibrationVector{}, fmt.Errorf("parse calibration %s: %w", s.path, err)
	}
	if doc.Version != currentVersion {
		return phaser.CalibrationVector{}, fmt.Errorf("calibration %s has version %d, want %d", s.path, doc.Version, currentVersion)
	}
	if err := doc.Calibration.Validate(); err != nil {
		return phaser.CalibrationVector{}, fmt.Errorf("calibration %s: %w", s.path, err)
	}
	return doc.Calibration, nil
}

// SaveCalibration validates vec and replaces the file atomically.
func (s *FileStore) SaveCalibration(ctx context.Context, vec phaser.CalibrationVector) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := vec.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(document{Version: currentVersion, Calibration: vec})
	if err != nil {
		return fmt.Errorf("encode calibration: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create calibration dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".calibration-*.yaml")
	if err != nil {
		return fmt.Errorf("create calibration file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write calibration: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write calibration: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace calibration: %w", err)
	}
	return nil
}

// MemoryStore keeps the vector in memory. Useful for simulations and tests.
type MemoryStore struct {
	mu  sync.Mutex
	vec *phaser.CalibrationVector
}

// LoadCalibration returns the last saved vector or ErrNotFound.
func (m *MemoryStore) LoadCalibration(ctx context.Context) (phaser.CalibrationVector, error) {
	if err := ctx.Err(); err != nil {
		return phaser.CalibrationVector{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vec == nil {
		return phaser.DefaultCalibration(), ErrNotFound
	}
	return *m.vec, nil
}

// SaveCalibration validates and stores a copy of vec.
func (m *MemoryStore) SaveCalibration(ctx context.Context, vec phaser.CalibrationVector) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := vec.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.vec = &vec
	m.mu.Unlock()
	return nil
}

var (
	_ phaser.CalibrationStore = (*FileStore)(nil)
	_ phaser.CalibrationStore = (*MemoryStore)(nil)
)
