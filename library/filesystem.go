package library

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/wudi/tagpdf/internal/yamlutil"
)

// FieldsSuffix is appended to a file name to form its field sidecar.
const FieldsSuffix = ".meta.yaml"

// FileSystem is a Sink backed by a directory tree: root/library/folder/file.
// Fields are kept in a YAML sidecar next to each file.
type FileSystem struct {
	root string
}

var _ Sink = (*FileSystem)(nil)

// NewFileSystem returns a sink rooted at root, creating it if needed.
func NewFileSystem(root string) (*FileSystem, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("%w: empty root", ErrInvalidName)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &FileSystem{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *FileSystem) Root() string { return s.root }

func (s *FileSystem) FolderExists(ctx context.Context, library, folder string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	dir, err := s.dir(library, folder)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// CreateFolder creates the folder, and the library directory if missing.
func (s *FileSystem) CreateFolder(ctx context.Context, library, folder string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.dir(library, folder)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return err
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrFolderExists, dir)
		}
		return err
	}
	return nil
}

func (s *FileSystem) Upload(ctx context.Context, library, folder, fileName string, content []byte, overwrite bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir, err := s.dir(library, folder)
	if err != nil {
		return "", err
	}
	if err := validName(fileName); err != nil {
		return "", err
	}
	if _, err := os.Stat(dir); err != nil {
		return "", fmt.Errorf("%w: folder %s", ErrNotFound, dir)
	}
	path := filepath.Join(dir, fileName)
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("%w: %s", fs.ErrExist, path)
		}
	}
	// Write to a temporary file first so readers never see partial content.
	tmp, err := os.CreateTemp(dir, "."+fileName+".*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return path, nil
}

// SetFields merges fields into the sidecar of the file at location.
func (s *FileSystem) SetFields(ctx context.Context, location string, fields map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.contains(location); err != nil {
		return err
	}
	if _, err := os.Stat(location); err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, location)
	}
	merged, err := s.Fields(location)
	if err != nil {
		return err
	}
	for k, v := range fields {
		merged[k] = v
	}
	data, err := yamlutil.Marshal(merged)
	if err != nil {
		return err
	}
	return os.WriteFile(location+FieldsSuffix, data, 0o644)
}

// Fields returns the fields recorded for the file at location. A file
// without a sidecar has no fields.
func (s *FileSystem) Fields(location string) (map[string]string, error) {
	fields := map[string]string{}
	data, err := os.ReadFile(location + FieldsSuffix)
	if errors.Is(err, fs.ErrNotExist) {
		return fields, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return fields, nil
	}
	if err := yamlutil.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// dir maps library and folder to a directory under the root. An empty
// folder is the library's root folder.
func (s *FileSystem) dir(library, folder string) (string, error) {
	if err := validName(library); err != nil {
		return "", err
	}
	dir := filepath.Join(s.root, library)
	if folder == "" {
		return dir, nil
	}
	for _, part := range strings.Split(filepath.ToSlash(folder), "/") {
		if err := validName(part); err != nil {
			return "", err
		}
	}
	dir = filepath.Join(dir, filepath.FromSlash(folder))
	return dir, s.contains(dir)
}

func (s *FileSystem) contains(path string) error {
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %q escapes the library root", ErrInvalidName, path)
	}
	return nil
}

func validName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	return nil
}
