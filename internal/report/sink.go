package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sink stores rendered result files by name.
type Sink interface {
	Put(ctx context.Context, name string, data []byte) error
}

// DirSink writes files into a local directory.
type DirSink struct {
	Dir string
}

// NewDirSink creates dir if needed and returns a sink writing into it.
func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &DirSink{Dir: dir}, nil
}

// Put writes data to Dir/name.
func (s *DirSink) Put(_ context.Context, name string, data []byte) error {
	path := filepath.Join(s.Dir, filepath.Clean("/" + name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func (s *DirSink) String() string {
	return s.Dir
}

// MultiSink writes to every sink in order. All sinks are attempted; the
// joined error of the failed ones is returned.
type MultiSink []Sink

// Put implements Sink.
func (m MultiSink) Put(ctx context.Context, name string, data []byte) error {
	var errs []error
	for _, s := range m {
		if err := s.Put(ctx, name, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) String() string {
	names := make([]string, 0, len(m))
	for _, s := range m {
		names = append(names, fmt.Sprint(s))
	}
	return strings.Join(names, ", ")
}
