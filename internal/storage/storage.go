// Package storage keeps uploaded data sources on local disk until their job is done.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DefaultChunkSize is the read size used when none is configured.
const DefaultChunkSize = 4096

var (
	ErrNotFound    = errors.New("artifact not found")
	ErrOutsideRoot = errors.New("artifact path outside storage root")
)

// Store writes artifacts to randomly named files in a flat directory.
// It is safe for concurrent use; names never collide.
type Store struct {
	root      string
	chunkSize int
}

// New creates a Store rooted at root, creating the directory if needed.
func New(root string, chunkSize int) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Store{root: abs, chunkSize: chunkSize}, nil
}

// Root returns the absolute storage directory.
func (s *Store) Root() string {
	return s.root
}

// Save streams r to a new file in chunkSize pieces and returns its path.
// A partially written file is removed on failure.
func (s *Store) Save(ctx context.Context, r io.Reader) (string, error) {
	name := strings.ReplaceAll(uuid.NewString(), "-", "")
	path := filepath.Join(s.root, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create artifact: %w", err)
	}

	written, err := s.copyChunks(ctx, f, r)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close artifact: %w", cerr)
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}

	slog.Debug("artifact saved", "name", name, "bytes", written)
	return path, nil
}

func (s *Store) copyChunks(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, s.chunkSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, fmt.Errorf("write artifact: %w", werr)
			}
			written += int64(n)
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, fmt.Errorf("read upload: %w", rerr)
		}
	}
}

// Remove deletes the artifact at path. Missing files yield an error wrapping ErrNotFound.
func (s *Store) Remove(path string) error {
	clean := filepath.Clean(path)
	if filepath.Dir(clean) != s.root {
		return fmt.Errorf("remove artifact %q: %w", path, ErrOutsideRoot)
	}
	if err := os.Remove(clean); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove artifact %q: %w", path, ErrNotFound)
		}
		return fmt.Errorf("remove artifact %q: %w", path, err)
	}
	return nil
}
