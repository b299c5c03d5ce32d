package ovlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	DefaultMaxSize    = 10 * 1024 * 1024 // 10MB
	DefaultMaxBackups = 3
)

// RotationEvent describes one completed rotation, reported to an
// OnRotate callback. ovconfig drives MaxSize/MaxBackups per process
// (recorder vs webserver carry independent policies), so the event
// carries the path rather than assuming a single well-known log file.
type RotationEvent struct {
	Path       string
	MaxBackups int
	RotatedAt  time.Time
}

// RotatingFile is an io.WriteCloser that rotates log files once they exceed a size limit.
type RotatingFile struct {
	path       string
	maxSize    int64
	maxBackups int
	onRotate   func(RotationEvent)

	mu   sync.Mutex
	file *os.File
	size int64
}

type Option func(*RotatingFile)

func WithMaxSize(size int64) Option {
	return func(r *RotatingFile) {
		r.maxSize = size
	}
}

func WithMaxBackups(count int) Option {
	return func(r *RotatingFile) {
		r.maxBackups = count
	}
}

// WithOnRotate registers fn to be called every time the file rotates.
// The process's own slog handler writes through this file, so fn must
// not log back through that same handler: doing so would re-enter
// Write while r.mu is still held. Callers report rotations through a
// side channel instead (a metrics counter, or a logger backed by a
// different writer).
func WithOnRotate(fn func(RotationEvent)) Option {
	return func(r *RotatingFile) {
		r.onRotate = fn
	}
}

// NewRotatingFile creates a rotating log file writer at path.
func NewRotatingFile(path string, opts ...Option) (*RotatingFile, error) {
	r := &RotatingFile{
		path:       path,
		maxSize:    DefaultMaxSize,
		maxBackups: DefaultMaxBackups,
	}

	for _, opt := range opts {
		opt(r)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}

	if err := r.openFile(); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *RotatingFile) openFile() error {
	file, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}

	r.file = file
	r.size = info.Size()
	return nil
}

func (r *RotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size+int64(len(p)) > r.maxSize {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *RotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

func (r *RotatingFile) rotate() error {
	if err := r.file.Close(); err != nil {
		return err
	}

	oldest := fmt.Sprintf("%s.%d", r.path, r.maxBackups)
	_ = os.Remove(oldest)

	for i := r.maxBackups - 1; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", r.path, i)
		newPath := fmt.Sprintf("%s.%d", r.path, i+1)
		_ = os.Rename(oldPath, newPath)
	}

	if err := os.Rename(r.path, r.path+".1"); err != nil && !os.IsNotExist(err) {
		return err
	}

	r.size = 0
	if err := r.openFile(); err != nil {
		return err
	}
	if r.onRotate != nil {
		r.onRotate(RotationEvent{Path: r.path, MaxBackups: r.maxBackups, RotatedAt: time.Now()})
	}
	return nil
}
