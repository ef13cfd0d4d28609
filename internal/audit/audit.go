// Package audit writes the side log of IP changes and authentication failures.
//
// Entries are JSON lines appended to a single file.
package audit

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Log appends audit entries. A nil *Log discards every entry.
type Log struct {
	logger *slog.Logger
	closer io.Closer
	mu     sync.Mutex
}

// Open opens path for appending, creating it and its parent directories
// when missing. An empty path returns a nil *Log, which discards entries.
func Open(path string) (*Log, error) {
	if path == "" {
		return nil, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating audit log directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}

	l := New(f)
	l.closer = f
	return l, nil
}

// New creates a Log writing JSON lines to w.
func New(w io.Writer) *Log {
	return &Log{
		logger: slog.New(slog.NewJSONHandler(w, nil)),
	}
}

// IPChanged records a change of the persisted IP.
func (l *Log) IPChanged(previous, current, peer string) {
	if l == nil {
		return
	}
	l.logger.Info("ip changed",
		slog.String("old", previous),
		slog.String("new", current),
		slog.String("peer", peer),
	)
}

// AuthFailed records a rejected credential.
func (l *Log) AuthFailed(peer, transport string) {
	if l == nil {
		return
	}
	l.logger.Warn("auth failed",
		slog.String("peer", peer),
		slog.String("transport", transport),
	)
}

// Close closes the underlying file, if any.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	return err
}
