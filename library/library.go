// Package library stores generated documents in a document library: a named
// collection of folders holding files with key/value fields.
package library

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wudi/tagpdf/metadata"
)

var (
	// ErrFolderExists is returned by Sink.CreateFolder when the folder is
	// already there.
	ErrFolderExists = errors.New("library: folder already exists")
	// ErrInvalidName is returned for empty names or names that would
	// escape their parent.
	ErrInvalidName = errors.New("library: invalid name")
	// ErrNotFound is returned for unknown libraries or files.
	ErrNotFound = errors.New("library: not found")
)

// Sink is a document library backend.
type Sink interface {
	FolderExists(ctx context.Context, library, folder string) (bool, error)
	CreateFolder(ctx context.Context, library, folder string) error
	// Upload stores content at library/folder/fileName and returns its
	// location. An existing file is replaced only when overwrite is set.
	Upload(ctx context.Context, library, folder, fileName string, content []byte, overwrite bool) (string, error)
	// SetFields merges fields into the file's field set.
	SetFields(ctx context.Context, location string, fields map[string]string) error
}

// Document is a file to add to a library. Metadata is in the
// "key~value#key~value" wire format.
type Document struct {
	Library  string
	Folder   string
	FileName string
	Content  []byte
	Metadata string
}

// EnsureFolder creates folder in library unless it already exists. A
// folder created concurrently between the check and the create counts as
// success.
func EnsureFolder(ctx context.Context, sink Sink, library, folder string) error {
	exists, err := sink.FolderExists(ctx, library, folder)
	if err != nil {
		return fmt.Errorf("checking folder %q: %w", folder, err)
	}
	if exists {
		return nil
	}
	if err := sink.CreateFolder(ctx, library, folder); err != nil && !errors.Is(err, ErrFolderExists) {
		return fmt.Errorf("creating folder %q: %w", folder, err)
	}
	return nil
}

// AddDocument ensures the target folder, uploads the content (replacing any
// previous file of the same name) and applies the decoded metadata fields.
// It returns the location of the stored file.
func AddDocument(ctx context.Context, sink Sink, doc Document) (string, error) {
	if strings.TrimSpace(doc.Library) == "" {
		return "", fmt.Errorf("%w: empty library name", ErrInvalidName)
	}
	if strings.TrimSpace(doc.FileName) == "" {
		return "", fmt.Errorf("%w: empty file name", ErrInvalidName)
	}
	if err := EnsureFolder(ctx, sink, doc.Library, doc.Folder); err != nil {
		return "", err
	}
	location, err := sink.Upload(ctx, doc.Library, doc.Folder, doc.FileName, doc.Content, true)
	if err != nil {
		return "", fmt.Errorf("uploading %q: %w", doc.FileName, err)
	}
	if doc.Metadata == "" {
		return location, nil
	}
	fields := metadata.Decode(doc.Metadata)
	if len(fields) == 0 {
		return location, nil
	}
	if err := sink.SetFields(ctx, location, fields); err != nil {
		return location, fmt.Errorf("setting fields on %q: %w", location, err)
	}
	return location, nil
}
