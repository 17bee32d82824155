package fonts

import (
	"bytes"
	"fmt"

	"github.com/go-text/typesetting/di"
	gofont "github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/math/fixed"
)

// Glyph is a shaped glyph with positioning in 1/1000 em.
type Glyph struct {
	ID       int
	Runes    []rune // text the glyph stands for, empty for trailing glyphs of a cluster
	XAdvance float64
	XOffset  float64
	YOffset  float64
}

// Shaper shapes text with HarfBuzz semantics. go-text faces are not safe for
// concurrent use, so a Shaper belongs to a single conversion.
type Shaper struct {
	lang   language.Language
	faces  map[*Program]*gofont.Face
	shaper shaping.HarfbuzzShaper
}

// NewShaper returns a shaper for the given BCP 47 language tag.
func NewShaper(lang string) *Shaper {
	l := language.DefaultLanguage()
	if lang != "" {
		l = language.NewLanguage(lang)
	}
	return &Shaper{lang: l, faces: make(map[*Program]*gofont.Face)}
}

func (s *Shaper) face(p *Program) (*gofont.Face, error) {
	if f, ok := s.faces[p]; ok {
		return f, nil
	}
	f, err := gofont.ParseTTF(bytes.NewReader(p.data))
	if err != nil {
		return nil, fmt.Errorf("shape %s: %w", p.Name, err)
	}
	s.faces[p] = f
	return f, nil
}

// Shape converts text into positioned glyphs of p.
func (s *Shaper) Shape(p *Program, text string) ([]Glyph, error) {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}
	face, err := s.face(p)
	if err != nil {
		return nil, err
	}
	script := DetectScript(runes)
	out := s.shaper.Shape(shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: scriptDirection(script),
		Face:      face,
		// 1000 units per em, so advances come back in text space units.
		Size:     fixed.I(1000),
		Script:   script,
		Language: s.lang,
	})

	glyphs := make([]Glyph, 0, len(out.Glyphs))
	seen := make(map[int]int, len(out.Glyphs))
	for _, g := range out.Glyphs {
		pos := seen[g.ClusterIndex]
		seen[g.ClusterIndex] = pos + 1
		glyphs = append(glyphs, Glyph{
			ID:       int(g.GlyphID),
			Runes:    clusterRunes(runes, g.ClusterIndex, g.RuneCount, g.GlyphCount, pos),
			XAdvance: float64(g.XAdvance) / 64,
			XOffset:  float64(g.XOffset) / 64,
			YOffset:  float64(g.YOffset) / 64,
		})
	}
	return glyphs, nil
}

// clusterRunes distributes the runes of a cluster over its glyphs: one rune
// per glyph when the counts match, otherwise everything on the first glyph.
func clusterRunes(runes []rune, start, runeCount, glyphCount, pos int) []rune {
	end := start + runeCount
	if start < 0 || end > len(runes) {
		return nil
	}
	if runeCount == glyphCount {
		return runes[start+pos : start+pos+1]
	}
	if pos == 0 {
		return runes[start:end]
	}
	return nil
}

// Width returns the advance of text set in p at size points.
func (s *Shaper) Width(p *Program, text string, size float64) (float64, error) {
	glyphs, err := s.Shape(p, text)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, g := range glyphs {
		total += g.XAdvance
	}
	return total * size / 1000, nil
}

func scriptDirection(script language.Script) di.Direction {
	switch script {
	case language.Arabic, language.Hebrew, language.Syriac, language.Thaana, language.Nko:
		return di.DirectionRTL
	default:
		return di.DirectionLTR
	}
}

// DetectScript returns the dominant strong script of runes, Latin when none
// is found. Ties keep the script seen first.
func DetectScript(runes []rune) language.Script {
	counts := make(map[language.Script]int)
	maxCount := 0
	bestScript := language.Latin
	for _, r := range runes {
		script := language.LookupScript(r)
		if !script.Strong() || script == language.Unknown {
			continue
		}
		counts[script]++
		if counts[script] > maxCount {
			maxCount = counts[script]
			bestScript = script
		}
	}
	return bestScript
}
