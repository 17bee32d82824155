package receiver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/wudi/tagpdf/internal/yamlutil"
)

const itemExt = ".yaml"

// SpoolStore is an ItemStore keeping one YAML file per item in a
// directory. The item id is the file stem.
type SpoolStore struct {
	dir string
}

var _ ItemStore = (*SpoolStore)(nil)

// NewSpoolStore opens the spool directory, creating it if needed.
func NewSpoolStore(dir string) (*SpoolStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("receiver: empty spool directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &SpoolStore{dir: dir}, nil
}

func (s *SpoolStore) path(id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("%w: invalid id %q", ErrItemNotFound, id)
	}
	return filepath.Join(s.dir, id+itemExt), nil
}

// Enqueue stores item under a new id and returns the id.
func (s *SpoolStore) Enqueue(ctx context.Context, item Item) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	item.Error = ""
	if err := s.write(id, &item); err != nil {
		return "", err
	}
	return id, nil
}

func (s *SpoolStore) Get(ctx context.Context, id string) (*Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", ErrItemNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var item Item
	if err := yamlutil.UnmarshalStrict(data, &item); err != nil {
		return nil, fmt.Errorf("item %q: %w", id, err)
	}
	item.ID = id
	return &item, nil
}

func (s *SpoolStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %q", ErrItemNotFound, id)
		}
		return err
	}
	return nil
}

func (s *SpoolStore) SetError(ctx context.Context, id, message string) error {
	item, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	item.Error = message
	return s.write(id, item)
}

// Pending lists the ids of items without a recorded error, in id order.
func (s *SpoolStore) Pending(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != itemExt {
			continue
		}
		id := strings.TrimSuffix(e.Name(), itemExt)
		item, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if item.Error == "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *SpoolStore) write(id string, item *Item) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	data, err := yamlutil.Marshal(item)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
