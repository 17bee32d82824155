// Package fonts loads TrueType/OpenType programs, shapes text with them and
// tracks per-document glyph usage for embedding as composite (Type0) fonts.
package fonts

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"

	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"github.com/wudi/tagpdf/ir/semantic"
)

var (
	// ErrEmptyFont is returned when font data is empty.
	ErrEmptyFont = errors.New("font data is empty")
	// ErrFontNotFound is returned when a registry lookup fails.
	ErrFontNotFound = errors.New("font not found")
)

// Font descriptor flags (PDF 32000-2 table 121).
const (
	flagFixedPitch  = 1 << 0
	flagSerif       = 1 << 1
	flagNonsymbolic = 1 << 5
	flagItalic      = 1 << 6
)

// Program is a parsed font file. It is immutable after LoadTrueType returns
// and may be shared between goroutines.
type Program struct {
	Name   string // PostScript name
	Family string
	Style  string
	Bold   bool
	Italic bool

	data         []byte
	font         *sfnt.Font
	upem         int
	cff          bool
	widths       map[int]int
	defaultWidth int
	descriptor   semantic.FontDescriptor
}

// LoadTrueType parses a TrueType or OpenType font and extracts the metrics
// needed for Type0/Identity-H embedding. name is used when the font carries
// no PostScript name.
func LoadTrueType(name string, data []byte) (*Program, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFont
	}
	f, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse truetype: %w", err)
	}
	unitsPerEm := f.UnitsPerEm()
	if unitsPerEm == 0 {
		return nil, fmt.Errorf("parse truetype: invalid unitsPerEm")
	}
	buf := &sfnt.Buffer{}
	ppem := fixed.Int26_6(unitsPerEm << 6)

	p := &Program{
		data: data,
		font: f,
		upem: int(unitsPerEm),
		cff:  bytes.HasPrefix(data, []byte("OTTO")),
	}
	p.Name = strings.TrimSpace(name)
	if ps, _ := f.Name(buf, sfnt.NameIDPostScript); ps != "" {
		p.Name = ps
	}
	if p.Name == "" {
		p.Name = "CustomTT"
	}
	p.Family, _ = f.Name(buf, sfnt.NameIDFamily)
	p.Style, _ = f.Name(buf, sfnt.NameIDSubfamily)
	if typo, _ := f.Name(buf, sfnt.NameIDTypographicFamily); typo != "" {
		p.Family = typo
		if sub, _ := f.Name(buf, sfnt.NameIDTypographicSubfamily); sub != "" {
			p.Style = sub
		}
	}
	style := strings.ToLower(p.Style + " " + p.Name)
	p.Bold = strings.Contains(style, "bold") || strings.Contains(style, "black") || strings.Contains(style, "heavy")
	p.Italic = strings.Contains(style, "italic") || strings.Contains(style, "oblique") || italicAngle(f) != 0

	p.widths = glyphWidths(f, buf, unitsPerEm, ppem)
	p.defaultWidth = p.widths[0]
	if p.defaultWidth == 0 {
		p.defaultWidth = 1000
	}

	metrics, _ := f.Metrics(buf, ppem, xfont.HintingNone)
	bounds, _ := f.Bounds(buf, ppem, xfont.HintingNone)
	capHeight := metrics.CapHeight
	if capHeight == 0 {
		capHeight = metrics.Ascent
	}
	flags := flagNonsymbolic
	if p.Italic {
		flags |= flagItalic
	}
	if post := f.PostTable(); post != nil && post.IsFixedPitch {
		flags |= flagFixedPitch
	}
	if strings.Contains(strings.ToLower(p.Family), "serif") && !strings.Contains(strings.ToLower(p.Family), "sans") {
		flags |= flagSerif
	}
	stemV := 80
	if p.Bold {
		stemV = 140
	}
	p.descriptor = semantic.FontDescriptor{
		FontName:    p.Name,
		Flags:       flags,
		ItalicAngle: italicAngle(f),
		Ascent:      scaleFixed(metrics.Ascent, unitsPerEm),
		Descent:     -scaleFixed(metrics.Descent, unitsPerEm),
		CapHeight:   scaleFixed(capHeight, unitsPerEm),
		StemV:       stemV,
		FontBBox: [4]float64{
			scaleFixed(bounds.Min.X, unitsPerEm),
			-scaleFixed(bounds.Max.Y, unitsPerEm),
			scaleFixed(bounds.Max.X, unitsPerEm),
			-scaleFixed(bounds.Min.Y, unitsPerEm),
		},
	}
	return p, nil
}

// Data returns the raw font file.
func (p *Program) Data() []byte { return p.data }

// IsCFF reports whether the program has CFF outlines.
func (p *Program) IsCFF() bool { return p.cff }

// Advance returns the advance width of gid in 1/1000 em.
func (p *Program) Advance(gid int) int {
	if w, ok := p.widths[gid]; ok {
		return w
	}
	return p.defaultWidth
}

// Ascent returns the typographic ascent in 1/1000 em.
func (p *Program) Ascent() float64 { return p.descriptor.Ascent }

// Descent returns the typographic descent in 1/1000 em, negative below the
// baseline.
func (p *Program) Descent() float64 { return p.descriptor.Descent }

// GlyphIndex maps r through the font's cmap. It returns 0 when the font has
// no glyph for r.
func (p *Program) GlyphIndex(r rune) int {
	var buf sfnt.Buffer
	gid, err := p.font.GlyphIndex(&buf, r)
	if err != nil {
		return 0
	}
	return int(gid)
}

// descriptorTemplate returns a copy of the descriptor without a font file.
func (p *Program) descriptorTemplate() semantic.FontDescriptor { return p.descriptor }

func glyphWidths(font *sfnt.Font, buf *sfnt.Buffer, unitsPerEm sfnt.Units, ppem fixed.Int26_6) map[int]int {
	glyphs := font.NumGlyphs()
	widths := make(map[int]int, glyphs)
	for i := 0; i < glyphs; i++ {
		adv, err := font.GlyphAdvance(buf, sfnt.GlyphIndex(i), ppem, xfont.HintingNone)
		if err != nil {
			continue
		}
		widths[i] = int(math.Round(scaleFixed(adv, unitsPerEm)))
	}
	return widths
}

func italicAngle(font *sfnt.Font) float64 {
	post := font.PostTable()
	if post == nil {
		return 0
	}
	return post.ItalicAngle
}

func scaleFixed(val fixed.Int26_6, unitsPerEm sfnt.Units) float64 {
	return float64(val) * 1000.0 / (64.0 * float64(unitsPerEm))
}
