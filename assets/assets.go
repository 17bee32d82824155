// Package assets loads the branding resources used to decorate generated
// documents: the two header images and the font set.
package assets

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/png"
	"io/fs"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/wudi/tagpdf/builder"
	"github.com/wudi/tagpdf/fonts"
	"github.com/wudi/tagpdf/ir/semantic"
)

// Paths inside the asset root.
const (
	HeaderPageOnePath  = "images/HeaderPage1.jpg"
	HeaderAllPagesPath = "images/HeaderAllPages.jpg"
	FontsDir           = "fonts"

	// TitleFontName is the preferred face for the document title.
	TitleFontName = "calibri-bold"
)

// SourceDPI is the resolution header images are assumed to be authored at.
const SourceDPI = 96

var (
	ErrAssetNotFound = errors.New("asset not found")
	ErrInvalidImage  = errors.New("invalid image")
	ErrNoFonts       = errors.New("no fonts in asset set")
)

// ImageAsset is a decoded header image ready to be placed on a page.
type ImageAsset struct {
	PixelWidth  int
	PixelHeight int
	Image       *semantic.Image
}

// HeightPoints is the image height in points at SourceDPI.
func (a *ImageAsset) HeightPoints() float64 {
	return float64(a.PixelHeight) * 72 / SourceDPI
}

// Set is an immutable bundle of loaded assets. It is safe to share between
// concurrent conversions.
type Set struct {
	HeaderPageOne  *ImageAsset
	HeaderAllPages *ImageAsset
	Fonts          *fonts.Registry
	TitleFont      *fonts.Program
}

// Load reads an asset set from a directory on disk.
func Load(root string) (*Set, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrAssetNotFound, root)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %q is not a directory", ErrAssetNotFound, root)
	}
	return LoadFS(os.DirFS(root))
}

// LoadFS reads both header images and every font under fonts/.
func LoadFS(fsys fs.FS) (*Set, error) {
	one, err := loadImageFile(fsys, HeaderPageOnePath)
	if err != nil {
		return nil, err
	}
	all, err := loadImageFile(fsys, HeaderAllPagesPath)
	if err != nil {
		return nil, err
	}
	reg := fonts.NewRegistry()
	n, err := reg.RegisterFS(fsys, FontsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrAssetNotFound, FontsDir)
		}
		return nil, fmt.Errorf("loading fonts: %w", err)
	}
	if n == 0 {
		return nil, ErrNoFonts
	}
	return &Set{
		HeaderPageOne:  one,
		HeaderAllPages: all,
		Fonts:          reg,
		TitleFont:      titleFont(reg),
	}, nil
}

// Validate reports whether s can be used to decorate pages.
func (s *Set) Validate() error {
	switch {
	case s == nil:
		return errors.New("asset set is nil")
	case s.HeaderPageOne == nil || s.HeaderPageOne.Image == nil:
		return fmt.Errorf("%w: %q", ErrAssetNotFound, HeaderPageOnePath)
	case s.HeaderAllPages == nil || s.HeaderAllPages.Image == nil:
		return fmt.Errorf("%w: %q", ErrAssetNotFound, HeaderAllPagesPath)
	case s.Fonts == nil || len(s.Fonts.Programs()) == 0:
		return ErrNoFonts
	case s.TitleFont == nil:
		return fmt.Errorf("%w: no title font", ErrNoFonts)
	}
	return nil
}

// titleFont prefers TitleFontName, then the first bold face, then the first
// face registered.
func titleFont(reg *fonts.Registry) *fonts.Program {
	if p, err := reg.Lookup(TitleFontName); err == nil {
		return p
	}
	for _, p := range reg.Programs() {
		if p.Bold {
			return p
		}
	}
	p, _ := reg.Select(false, false)
	return p
}

func loadImageFile(fsys fs.FS, name string) (*ImageAsset, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrAssetNotFound, name)
	}
	a, err := LoadImage(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return a, nil
}

// LoadImage decodes image data. JPEG data is embedded as is; other formats
// are decoded and re-encoded as RGB with an optional soft mask.
func LoadImage(data []byte) (*ImageAsset, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}
	var img *semantic.Image
	if format == "jpeg" {
		img, err = builder.FromJPEG(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
		}
	} else {
		src, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
		}
		img = builder.FromImage(src)
	}
	return &ImageAsset{PixelWidth: cfg.Width, PixelHeight: cfg.Height, Image: img}, nil
}
