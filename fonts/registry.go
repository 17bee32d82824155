package fonts

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"
)

// Registry indexes loaded programs by normalised name. Lookups are safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	programs []*Program
	byKey    map[string]*Program
}

func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]*Program)}
}

// NormalizeName lower-cases name and folds spaces and underscores to dashes,
// so "Calibri Bold", "Calibri_Bold" and "Calibri-Bold" share a key.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	dash := false
	for _, r := range name {
		if r == ' ' || r == '_' || r == '-' {
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = true
			continue
		}
		dash = false
		b.WriteRune(r)
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Register indexes p under its PostScript name, "family-style" and any extra
// aliases. The first program registered under a key keeps it.
func (r *Registry) Register(p *Program, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs = append(r.programs, p)
	keys := append([]string{p.Name, p.Family + " " + p.Style}, aliases...)
	if p.Family != "" && (p.Style == "" || strings.EqualFold(p.Style, "regular")) {
		keys = append(keys, p.Family)
	}
	for _, k := range keys {
		k = NormalizeName(k)
		if k == "" {
			continue
		}
		if _, exists := r.byKey[k]; !exists {
			r.byKey[k] = p
		}
	}
}

// RegisterFS loads every .ttf and .otf file in dir of fsys, in file name
// order. The file stem is registered as an alias. It returns the number of
// fonts loaded.
func (r *Registry) RegisterFS(fsys fs.FS, dir string) (int, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(path.Ext(e.Name()))
		if ext != ".ttf" && ext != ".otf" {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return n, err
		}
		stem := strings.TrimSuffix(e.Name(), path.Ext(e.Name()))
		p, err := LoadTrueType(stem, data)
		if err != nil {
			return n, fmt.Errorf("%s: %w", e.Name(), err)
		}
		r.Register(p, stem)
		n++
	}
	return n, nil
}

// RegisterDirectory loads the fonts of a directory on disk.
func (r *Registry) RegisterDirectory(dir string) (int, error) {
	return r.RegisterFS(os.DirFS(dir), ".")
}

// Lookup finds a program by any of its registered names.
func (r *Registry) Lookup(name string) (*Program, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.byKey[NormalizeName(name)]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrFontNotFound, name)
}

// Programs returns the programs in registration order.
func (r *Registry) Programs() []*Program {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Program(nil), r.programs...)
}

// Select returns the first program matching the requested weight and
// slant, falling back to the first program registered.
func (r *Registry) Select(bold, italic bool) (*Program, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.programs) == 0 {
		return nil, ErrFontNotFound
	}
	for _, p := range r.programs {
		if p.Bold == bold && p.Italic == italic {
			return p, nil
		}
	}
	for _, p := range r.programs {
		if p.Bold == bold {
			return p, nil
		}
	}
	return r.programs[0], nil
}
