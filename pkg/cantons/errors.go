package cantons

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration is matched by every *ConfigError.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrDatasetLoad is matched by every *DatasetLoadError.
	ErrDatasetLoad = errors.New("dataset load failed")
	// ErrPersistence is matched by every *PersistenceError.
	ErrPersistence = errors.New("persistence failed")
	// ErrTileNotFound indicates a tile key with nothing stored.
	ErrTileNotFound = errors.New("tile not found")
)

// ConfigError indicates an unusable option value
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfiguration }

// DatasetLoadError indicates the source dataset could not be read or has no CRS
type DatasetLoadError struct {
	Path string
	Err  error
}

func (e *DatasetLoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("load dataset: %v", e.Err)
	}
	return fmt.Sprintf("load dataset %s: %v", e.Path, e.Err)
}

func (e *DatasetLoadError) Unwrap() []error { return []error{ErrDatasetLoad, e.Err} }

// PersistenceError indicates a tile, grid or mask could not be written or removed
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// persistErr wraps err as a *PersistenceError unless it already is one.
func persistErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Path: path, Err: err}
}
