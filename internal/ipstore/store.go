// Package ipstore persists the single current client IP address.
//
// All reads and writes go through one exclusive lock, so a reader never
// observes a partially written value and a read-compare-write done by
// Swap cannot interleave with another session.
package ipstore

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const fileMode = 0o644

// StorageError reports a failed read or write of the persisted IP.
type StorageError struct {
	Op   string // read, write
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("ip store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err is or wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// Store serializes access to the IP file at a fixed path.
type Store struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for self-heal events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a Store backed by the file at path. The file is not touched
// until Init, Read or Write is called.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:   path,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Init creates the backing file, empty, if it does not exist yet.
// Existing content is left untouched.
func (s *Store) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureFile(); err != nil {
		return &StorageError{Op: "init", Path: s.path, Err: err}
	}
	return nil
}

// Read returns the persisted IP, trimmed. An empty string means no IP
// has been recorded yet.
func (s *Store) Read() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readLocked()
}

// Write replaces the persisted IP with ip.
func (s *Store) Write(ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeLocked(ip)
}

// Swap reads the persisted IP and, when it differs from ip, overwrites it.
// The lock is held across the read, the comparison and the write, and is
// released before Swap returns. previous is the trimmed value found on disk.
func (s *Store) Swap(ip string) (previous string, changed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, err = s.readLocked()
	if err != nil {
		return "", false, err
	}

	ip = strings.TrimSpace(ip)
	if previous == ip {
		return previous, false, nil
	}

	if err := s.writeLocked(ip); err != nil {
		return previous, false, err
	}
	return previous, true, nil
}

// readLocked reads the file, recreating it once when the first read fails.
func (s *Store) readLocked() (string, error) {
	data, err := os.ReadFile(s.path)
	if err == nil {
		return strings.TrimSpace(string(data)), nil
	}

	s.logger.Warn("ip store unreadable, recreating",
		slog.String("path", s.path),
		slog.String("error", err.Error()),
	)
	if healErr := s.ensureFile(); healErr != nil {
		s.logger.Debug("ip store self-heal failed",
			slog.String("path", s.path),
			slog.String("error", healErr.Error()),
		)
	}

	data, err = os.ReadFile(s.path)
	if err != nil {
		return "", &StorageError{Op: "read", Path: s.path, Err: err}
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *Store) writeLocked(ip string) error {
	if err := s.mkdirParent(); err != nil {
		return &StorageError{Op: "write", Path: s.path, Err: err}
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fileMode)
	if err != nil {
		return &StorageError{Op: "write", Path: s.path, Err: err}
	}

	w := bufio.NewWriter(f)
	if _, err := w.WriteString(ip); err != nil {
		f.Close()
		return &StorageError{Op: "write", Path: s.path, Err: err}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return &StorageError{Op: "write", Path: s.path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &StorageError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}

// ensureFile creates the file and its parent directories without
// truncating existing content.
func (s *Store) ensureFile() error {
	if err := s.mkdirParent(); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY, fileMode)
	if err != nil {
		return err
	}
	return f.Close()
}

func (s *Store) mkdirParent() error {
	dir := filepath.Dir(s.path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
