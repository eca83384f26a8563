package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"mtf-screener/internal/model"
)

// File appends one JSON envelope per line.
type File struct {
	mu   sync.Mutex
	f    *os.File
	enc  *json.Encoder
	path string
}

// NewFile opens path for appending, creating parent directories.
func NewFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("signal file dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open signal file: %w", err)
	}
	return &File{f: f, enc: json.NewEncoder(f), path: path}, nil
}

// Path returns the file being written.
func (s *File) Path() string { return s.path }

func (s *File) EmitSignal(_ context.Context, sig model.Signal) error {
	return s.write(Envelope{Type: TypeSignal, Data: sig})
}

func (s *File) EmitAligned(_ context.Context, a model.AlignedSignal) error {
	return s.write(Envelope{Type: TypeAligned, Data: a})
}

func (s *File) write(e Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrClosed
	}
	return s.enc.Encode(e)
}

func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
