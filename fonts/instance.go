package fonts

import (
	"crypto/sha256"
	"sort"

	"github.com/wudi/tagpdf/ir/semantic"
)

// Instance is the per-document use of a Program. It records the glyphs a
// document shows so that the embedded font carries exact widths, a
// ToUnicode map and, for TrueType outlines, only the glyphs in use.
type Instance struct {
	prog *Program
	font *semantic.Font
	used map[int]bool
}

// NewInstance returns an Instance whose semantic font starts empty.
func NewInstance(p *Program) *Instance {
	desc := p.descriptorTemplate()
	cid := &semantic.CIDFont{
		Subtype:       "CIDFontType2",
		BaseFont:      p.Name,
		CIDSystemInfo: semantic.CIDSystemInfo{Registry: "Adobe", Ordering: "Identity"},
		DW:            p.defaultWidth,
		W:             make(map[int]int),
		Descriptor:    &desc,
	}
	if p.cff {
		cid.Subtype = "CIDFontType0"
	}
	return &Instance{
		prog: p,
		used: make(map[int]bool),
		font: &semantic.Font{
			Subtype:        "Type0",
			BaseFont:       p.Name,
			Encoding:       "Identity-H",
			ToUnicode:      make(map[int][]rune),
			DescendantFont: cid,
		},
	}
}

// Program returns the underlying font program.
func (in *Instance) Program() *Program { return in.prog }

// Font returns the semantic font resource.
func (in *Instance) Font() *semantic.Font { return in.font }

// Use records the glyphs and returns their Identity-H codes.
func (in *Instance) Use(glyphs []Glyph) []byte {
	codes := make([]byte, 0, 2*len(glyphs))
	for _, g := range glyphs {
		in.used[g.ID] = true
		in.font.DescendantFont.W[g.ID] = in.prog.Advance(g.ID)
		if _, ok := in.font.ToUnicode[g.ID]; !ok && len(g.Runes) > 0 {
			in.font.ToUnicode[g.ID] = append([]rune(nil), g.Runes...)
		}
		codes = append(codes, byte(g.ID>>8), byte(g.ID))
	}
	return codes
}

// Finish embeds the font file. With subset set, TrueType programs are cut
// down to the used glyphs and the font name gets a subset tag.
func (in *Instance) Finish(subset bool) error {
	desc := in.font.DescendantFont.Descriptor
	data := in.prog.data
	if in.prog.cff {
		desc.FontFileType = "FontFile3"
		desc.FontFileSubtype = "OpenType"
	} else {
		desc.FontFileType = "FontFile2"
		if subset && len(in.used) > 0 {
			out, err := SubsetTrueType(data, in.used)
			if err != nil {
				return err
			}
			data = out
			name := subsetTag(in.used) + "+" + in.prog.Name
			in.font.BaseFont = name
			in.font.DescendantFont.BaseFont = name
			desc.FontName = name
		}
	}
	desc.FontFile = data
	return nil
}

// subsetTag derives the six-letter subset prefix from the glyph set.
func subsetTag(used map[int]bool) string {
	gids := make([]int, 0, len(used))
	for gid := range used {
		gids = append(gids, gid)
	}
	sort.Ints(gids)
	h := sha256.New()
	for _, gid := range gids {
		h.Write([]byte{byte(gid >> 8), byte(gid)})
	}
	sum := h.Sum(nil)
	tag := make([]byte, 6)
	for i := range tag {
		tag[i] = 'A' + sum[i]%26
	}
	return string(tag)
}
