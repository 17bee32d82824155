package fonts

import (
	"errors"
	"testing"
	"testing/fstest"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
)

func mustLoad(t *testing.T, name string, data []byte) *Program {
	t.Helper()
	p, err := LoadTrueType(name, data)
	if err != nil {
		t.Fatalf("LoadTrueType(%s): %v", name, err)
	}
	return p
}

func TestLoadTrueType(t *testing.T) {
	p := mustLoad(t, "goregular", goregular.TTF)
	if p.Name == "" || p.Name == "CustomTT" {
		t.Errorf("PostScript name not read: %q", p.Name)
	}
	if p.Bold || p.Italic {
		t.Errorf("regular face reported bold=%v italic=%v", p.Bold, p.Italic)
	}
	if p.IsCFF() {
		t.Errorf("Go fonts have TrueType outlines")
	}
	gid := p.GlyphIndex('A')
	if gid == 0 {
		t.Fatalf("no glyph for 'A'")
	}
	if w := p.Advance(gid); w <= 0 || w >= 1000 {
		t.Errorf("advance of 'A' = %d", w)
	}
	if p.Ascent() <= 0 || p.Descent() >= 0 {
		t.Errorf("ascent %v descent %v", p.Ascent(), p.Descent())
	}
	desc := p.descriptorTemplate()
	if desc.Flags&flagNonsymbolic == 0 {
		t.Errorf("expected nonsymbolic flag, got %d", desc.Flags)
	}
	if desc.FontBBox[1] >= 0 || desc.FontBBox[3] <= 0 {
		t.Errorf("bbox = %v", desc.FontBBox)
	}
}

func TestLoadTrueTypeStyles(t *testing.T) {
	if p := mustLoad(t, "gobold", gobold.TTF); !p.Bold {
		t.Errorf("gobold not detected as bold (style %q)", p.Style)
	}
	if p := mustLoad(t, "goitalic", goitalic.TTF); !p.Italic {
		t.Errorf("goitalic not detected as italic (style %q)", p.Style)
	}
}

func TestLoadTrueTypeErrors(t *testing.T) {
	if _, err := LoadTrueType("x", nil); !errors.Is(err, ErrEmptyFont) {
		t.Fatalf("expected ErrEmptyFont, got %v", err)
	}
	if _, err := LoadTrueType("x", []byte("not a font at all")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Calibri-Bold", "calibri-bold"},
		{"Calibri Bold", "calibri-bold"},
		{" calibri__bold ", "calibri-bold"},
		{"GoRegular", "goregular"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	regular := mustLoad(t, "goregular", goregular.TTF)
	bold := mustLoad(t, "gobold", gobold.TTF)
	r.Register(regular, "Body Text")
	r.Register(bold, "Calibri Bold")

	p, err := r.Lookup("calibri-bold")
	if err != nil || p != bold {
		t.Fatalf("Lookup(calibri-bold) = %v, %v", p, err)
	}
	if p, _ := r.Lookup("BODY_TEXT"); p != regular {
		t.Fatalf("alias lookup failed")
	}
	if p, _ := r.Lookup(bold.Name); p != bold {
		t.Fatalf("PostScript lookup failed")
	}
	if _, err := r.Lookup("missing"); !errors.Is(err, ErrFontNotFound) {
		t.Fatalf("expected ErrFontNotFound, got %v", err)
	}
	if p, _ := r.Select(true, false); p != bold {
		t.Fatalf("Select(bold) did not return the bold face")
	}
	if p, _ := r.Select(false, false); p != regular {
		t.Fatalf("Select(regular) did not return the regular face")
	}
	if got := len(r.Programs()); got != 2 {
		t.Fatalf("Programs() = %d, want 2", got)
	}
}

func TestRegistryEmptySelect(t *testing.T) {
	if _, err := NewRegistry().Select(true, false); !errors.Is(err, ErrFontNotFound) {
		t.Fatalf("expected ErrFontNotFound, got %v", err)
	}
}

func TestRegisterFS(t *testing.T) {
	fsys := fstest.MapFS{
		"fonts/body.ttf":   {Data: goregular.TTF},
		"fonts/Heavy.TTF":  {Data: gobold.TTF},
		"fonts/readme.txt": {Data: []byte("not a font")},
	}
	r := NewRegistry()
	n, err := r.RegisterFS(fsys, "fonts")
	if err != nil {
		t.Fatalf("RegisterFS: %v", err)
	}
	if n != 2 {
		t.Fatalf("loaded %d fonts, want 2", n)
	}
	if p, err := r.Lookup("heavy"); err != nil || !p.Bold {
		t.Fatalf("stem alias lookup failed: %v", err)
	}
	// ReadDir order puts "Heavy.TTF" before "body.ttf".
	if progs := r.Programs(); !progs[0].Bold {
		t.Fatalf("programs not in file name order")
	}
}

func TestRegisterFSBadFont(t *testing.T) {
	fsys := fstest.MapFS{"fonts/broken.ttf": {Data: []byte("garbage")}}
	if _, err := NewRegistry().RegisterFS(fsys, "fonts"); err == nil {
		t.Fatalf("expected error for broken font")
	}
}

func TestInstanceUseAndSubset(t *testing.T) {
	p := mustLoad(t, "goregular", goregular.TTF)
	in := NewInstance(p)
	glyphs, err := NewShaper("en-GB").Shape(p, "Tagged")
	if err != nil {
		t.Fatalf("Shape: %v", err)
	}
	codes := in.Use(glyphs)
	if len(codes) != 2*len(glyphs) {
		t.Fatalf("codes = %d bytes, want %d", len(codes), 2*len(glyphs))
	}
	font := in.Font()
	tGID := p.GlyphIndex('T')
	if got := font.ToUnicode[tGID]; string(got) != "T" {
		t.Errorf("ToUnicode[T] = %q", string(got))
	}
	if font.DescendantFont.W[tGID] != p.Advance(tGID) {
		t.Errorf("width of T not recorded")
	}

	if err := in.Finish(true); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	desc := font.DescendantFont.Descriptor
	if len(desc.FontFile) == 0 || len(desc.FontFile) >= len(goregular.TTF) {
		t.Fatalf("subset size %d, original %d", len(desc.FontFile), len(goregular.TTF))
	}
	if len(font.BaseFont) < 8 || font.BaseFont[6] != '+' {
		t.Errorf("subset name = %q", font.BaseFont)
	}
	if desc.FontFileType != "FontFile2" {
		t.Errorf("font file type = %q", desc.FontFileType)
	}
	sub, err := sfnt.Parse(desc.FontFile)
	if err != nil {
		t.Fatalf("subset does not parse: %v", err)
	}
	maxGID := 0
	for _, g := range glyphs {
		if g.ID > maxGID {
			maxGID = g.ID
		}
	}
	orig, _ := sfnt.Parse(goregular.TTF)
	if sub.NumGlyphs() < maxGID+1 || sub.NumGlyphs() >= orig.NumGlyphs() {
		t.Errorf("subset has %d glyphs, used max %d, original %d", sub.NumGlyphs(), maxGID, orig.NumGlyphs())
	}
}

func TestInstanceFinishWithoutSubset(t *testing.T) {
	p := mustLoad(t, "goregular", goregular.TTF)
	in := NewInstance(p)
	if err := in.Finish(false); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if got := in.Font().DescendantFont.Descriptor.FontFile; len(got) != len(goregular.TTF) {
		t.Fatalf("full font expected, got %d bytes", len(got))
	}
	if in.Font().BaseFont != p.Name {
		t.Fatalf("unexpected subset tag on %q", in.Font().BaseFont)
	}
}

func TestSubsetTrueTypeMalformed(t *testing.T) {
	if _, err := SubsetTrueType([]byte{0, 1}, map[int]bool{1: true}); !errors.Is(err, ErrMalformedFont) {
		t.Fatalf("expected ErrMalformedFont, got %v", err)
	}
}
