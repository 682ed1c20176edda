package searchcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/shpitdev/leadfinder/pkg/places"
)

// FileStore keeps one JSON file per key under Dir.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

func (s *FileStore) path(k Key) string {
	return filepath.Join(s.Dir, k.Hash()+".json")
}

func (s *FileStore) Get(ctx context.Context, k Key) ([]places.Place, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(s.path(k))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}
	var e entry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, false, fmt.Errorf("parse cache entry %s: %w", filepath.Base(s.path(k)), err)
	}
	return e.Results, true, nil
}

// Put writes the entry through a temp file so readers never see a partial file.
func (s *FileStore) Put(ctx context.Context, k Key, results []places.Place) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(entry{Key: k.normalized(), Results: nonNil(results)})
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.Dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("create cache temp file: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path(k)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("commit cache entry: %w", err)
	}
	return nil
}

func nonNil(ps []places.Place) []places.Place {
	if ps == nil {
		return []places.Place{}
	}
	return ps
}
