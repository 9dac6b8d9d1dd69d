package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RotationConfig bounds the size of teamwork.log.
type RotationConfig struct {
	// MaxSizeMB is the size at which the log is rotated (0 = never).
	MaxSizeMB int
	// MaxBackups is how many rotated files are kept as teamwork.log.1 to .N.
	MaxBackups int
}

// RotatingWriter appends to a file and rotates it once it would grow past
// the configured size. It is safe for concurrent use.
type RotatingWriter struct {
	mu sync.Mutex

	path       string
	maxBytes   int64
	maxBackups int

	file *os.File
	size int64
}

// NewRotatingWriter opens path for appending, creating its directory.
func NewRotatingWriter(path string, cfg RotationConfig) (*RotatingWriter, error) {
	rw := &RotatingWriter{
		path:       path,
		maxBytes:   int64(cfg.MaxSizeMB) << 20,
		maxBackups: cfg.MaxBackups,
	}
	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

func (rw *RotatingWriter) open() error {
	if err := os.MkdirAll(filepath.Dir(rw.path), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(rw.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	rw.file = f
	rw.size = info.Size()
	return nil
}

// Write appends p, rotating first when p would overflow the current file.
// A failed rotation keeps writing to the current file.
func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return 0, fmt.Errorf("log file is closed")
	}
	if rw.maxBytes > 0 && rw.size > 0 && rw.size+int64(len(p)) > rw.maxBytes {
		if err := rw.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "teamwork: log rotation failed: %v\n", err)
		}
	}
	n, err := rw.file.Write(p)
	rw.size += int64(n)
	return n, err
}

// rotate shifts teamwork.log.N-1 to .N, moves the live file to .1 and
// reopens it. Caller holds mu.
func (rw *RotatingWriter) rotate() error {
	if err := rw.file.Close(); err != nil {
		return err
	}
	rw.file = nil

	if rw.maxBackups <= 0 {
		_ = os.Remove(rw.path)
		return rw.open()
	}
	_ = os.Remove(BackupPath(rw.path, rw.maxBackups))
	for i := rw.maxBackups - 1; i >= 1; i-- {
		_ = os.Rename(BackupPath(rw.path, i), BackupPath(rw.path, i+1))
	}
	if err := os.Rename(rw.path, BackupPath(rw.path, 1)); err != nil {
		if openErr := rw.open(); openErr != nil {
			return openErr
		}
		return err
	}
	return rw.open()
}

// BackupPath returns the name of the n-th rotated copy of path.
func BackupPath(path string, n int) string {
	return fmt.Sprintf("%s.%d", path, n)
}

// Sync flushes the current file.
func (rw *RotatingWriter) Sync() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.file == nil {
		return nil
	}
	return rw.file.Sync()
}

// Close closes the current file. Further writes fail.
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.file == nil {
		return nil
	}
	err := rw.file.Close()
	rw.file = nil
	return err
}

// NewLoggerWithRotation is NewLogger with {dir}/teamwork.log rotated by
// size. An empty dir logs to stderr without rotation.
func NewLoggerWithRotation(dir, level string, cfg RotationConfig) (*Logger, error) {
	if dir == "" {
		return NewWithWriter(os.Stderr, level), nil
	}
	rw, err := NewRotatingWriter(filepath.Join(dir, LogFileName), cfg)
	if err != nil {
		return nil, err
	}
	l := NewWithWriter(rw, level)
	l.file = rw
	return l, nil
}
