package builder

import (
	"fmt"
	"math"

	"github.com/wudi/tagpdf/fonts"
	"github.com/wudi/tagpdf/ir/semantic"
)

// Canvas appends operations to one content stream of a page. Methods chain;
// the first failure is kept and reported by Err, after which drawing is a
// no-op. Release closes whatever the canvas left open (text objects, marked
// content, saved graphics state) and detaches it from further drawing.
type Canvas struct {
	page     *Page
	ops      []semantic.Operation
	open     []string // closing operators, innermost last
	font     *fonts.Program
	fontSize float64
	released bool
	err      error
}

func newCanvas(p *Page) *Canvas {
	c := &Canvas{page: p}
	if p.closed {
		c.err = ErrPageFinished
	}
	return c
}

// Page returns the page the canvas draws on.
func (c *Canvas) Page() *Page { return c.page }

// Err returns the first error recorded by the canvas.
func (c *Canvas) Err() error { return c.err }

// Operations returns the operations written so far.
func (c *Canvas) Operations() []semantic.Operation { return c.ops }

// Release closes open scopes and stops further drawing.
func (c *Canvas) Release() {
	if c.released {
		return
	}
	for i := len(c.open) - 1; i >= 0; i-- {
		c.ops = append(c.ops, semantic.Operation{Operator: c.open[i]})
	}
	c.open = nil
	c.released = true
}

func (c *Canvas) ok() bool { return c.err == nil && !c.released }

func (c *Canvas) emit(op string, operands ...semantic.Operand) {
	c.ops = append(c.ops, semantic.Operation{Operator: op, Operands: operands})
}

func (c *Canvas) push(op, closer string, operands ...semantic.Operand) *Canvas {
	if !c.ok() {
		return c
	}
	c.emit(op, operands...)
	c.open = append(c.open, closer)
	return c
}

func (c *Canvas) pop(closer string) *Canvas {
	if !c.ok() {
		return c
	}
	if n := len(c.open); n == 0 || c.open[n-1] != closer {
		c.err = fmt.Errorf("unbalanced %s", closer)
		return c
	}
	c.open = c.open[:len(c.open)-1]
	c.emit(closer)
	return c
}

func nums(vals ...float64) []semantic.Operand {
	out := make([]semantic.Operand, len(vals))
	for i, v := range vals {
		out[i] = semantic.NumberOperand{Value: v}
	}
	return out
}

// SaveState pushes the graphics state (q).
func (c *Canvas) SaveState() *Canvas { return c.push("q", "Q") }

// RestoreState pops the graphics state (Q).
func (c *Canvas) RestoreState() *Canvas { return c.pop("Q") }

// SetFillOpacity selects an ExtGState with the given fill alpha.
func (c *Canvas) SetFillOpacity(alpha float64) *Canvas {
	if !c.ok() {
		return c
	}
	res := c.page.page.Resources
	name := ""
	for k, gs := range res.ExtGStates {
		if gs.FillAlpha != nil && *gs.FillAlpha == alpha && gs.StrokeAlpha == nil {
			name = k
			break
		}
	}
	if name == "" {
		name = fmt.Sprintf("GS%d", len(res.ExtGStates)+1)
		a := alpha
		res.ExtGStates[name] = &semantic.ExtGState{FillAlpha: &a}
	}
	c.emit("gs", semantic.NameOperand{Value: name})
	return c
}

// SetLineWidth sets the stroke width (w).
func (c *Canvas) SetLineWidth(w float64) *Canvas {
	if c.ok() {
		c.emit("w", nums(w)...)
	}
	return c
}

// SetFillColorRGB sets a DeviceRGB fill colour, components in 0..1.
func (c *Canvas) SetFillColorRGB(r, g, b float64) *Canvas {
	if c.ok() {
		c.emit("rg", nums(r, g, b)...)
	}
	return c
}

// SetStrokeColorRGB sets a DeviceRGB stroke colour, components in 0..1.
func (c *Canvas) SetStrokeColorRGB(r, g, b float64) *Canvas {
	if c.ok() {
		c.emit("RG", nums(r, g, b)...)
	}
	return c
}

// SetFillColorCMYK sets a DeviceCMYK fill colour, components in 0..1.
func (c *Canvas) SetFillColorCMYK(cy, m, y, k float64) *Canvas {
	if c.ok() {
		c.emit("k", nums(cy, m, y, k)...)
	}
	return c
}

// SetStrokeColorCMYK sets a DeviceCMYK stroke colour, components in 0..1.
func (c *Canvas) SetStrokeColorCMYK(cy, m, y, k float64) *Canvas {
	if c.ok() {
		c.emit("K", nums(cy, m, y, k)...)
	}
	return c
}

// MoveTo begins a subpath (m).
func (c *Canvas) MoveTo(x, y float64) *Canvas {
	if c.ok() {
		c.emit("m", nums(x, y)...)
	}
	return c
}

// LineTo appends a line segment (l).
func (c *Canvas) LineTo(x, y float64) *Canvas {
	if c.ok() {
		c.emit("l", nums(x, y)...)
	}
	return c
}

// Rectangle appends a rectangle subpath (re).
func (c *Canvas) Rectangle(x, y, w, h float64) *Canvas {
	if c.ok() {
		c.emit("re", nums(x, y, w, h)...)
	}
	return c
}

// Stroke strokes the current path (S).
func (c *Canvas) Stroke() *Canvas {
	if c.ok() {
		c.emit("S")
	}
	return c
}

// ClosePathStroke closes and strokes the current path (s).
func (c *Canvas) ClosePathStroke() *Canvas {
	if c.ok() {
		c.emit("s")
	}
	return c
}

// Fill fills the current path with the nonzero rule (f).
func (c *Canvas) Fill() *Canvas {
	if c.ok() {
		c.emit("f")
	}
	return c
}

// BeginLayer opens an optional content section for ocg (BDC /OC).
func (c *Canvas) BeginLayer(ocg *semantic.OptionalContentGroup) *Canvas {
	if !c.ok() {
		return c
	}
	if ocg == nil {
		c.err = fmt.Errorf("begin layer: nil group")
		return c
	}
	res := c.page.page.Resources
	name := ""
	for k, g := range res.Properties {
		if g == ocg {
			name = k
			break
		}
	}
	if name == "" {
		name = fmt.Sprintf("OC%d", len(res.Properties)+1)
		res.Properties[name] = ocg
	}
	return c.push("BDC", "EMC", semantic.NameOperand{Value: "OC"}, semantic.NameOperand{Value: name})
}

// EndLayer closes the section opened by BeginLayer.
func (c *Canvas) EndLayer() *Canvas { return c.pop("EMC") }

// Artifact describes an artifact marked-content sequence.
type Artifact struct {
	Type    string // Pagination, Layout, Page or Background
	Subtype string // Header, Footer, Watermark
	Alt     string
}

// BeginArtifact opens an /Artifact marked-content sequence. Artifacts stay
// out of the structure tree.
func (c *Canvas) BeginArtifact(a Artifact) *Canvas {
	props := map[string]semantic.Operand{}
	if a.Type != "" {
		props["Type"] = semantic.NameOperand{Value: a.Type}
	}
	if a.Subtype != "" {
		props["Subtype"] = semantic.NameOperand{Value: a.Subtype}
	}
	if a.Alt != "" {
		props["Alt"] = semantic.StringOperand{Value: []byte(a.Alt)}
	}
	if len(props) == 0 {
		return c.push("BMC", "EMC", semantic.NameOperand{Value: "Artifact"})
	}
	return c.push("BDC", "EMC", semantic.NameOperand{Value: "Artifact"}, semantic.DictOperand{Values: props})
}

// OpenTag opens a marked-content sequence for el and links it into the
// structure tree through a new MCID. The returned MCID is -1 on failure.
func (c *Canvas) OpenTag(el *semantic.StructureElement) int {
	if !c.ok() {
		return -1
	}
	if el == nil {
		c.err = fmt.Errorf("open tag: nil structure element")
		return -1
	}
	mcid := c.page.nextMCID()
	el.Pg = c.page.page
	el.AddMCID(c.page.page, mcid)
	c.push("BDC", "EMC",
		semantic.NameOperand{Value: el.S},
		semantic.DictOperand{Values: map[string]semantic.Operand{"MCID": semantic.NumberOperand{Value: float64(mcid)}}},
	)
	return mcid
}

// EndMarkedContent closes the innermost marked-content sequence (EMC).
func (c *Canvas) EndMarkedContent() *Canvas { return c.pop("EMC") }

// CloseTag is EndMarkedContent for sequences opened by OpenTag.
func (c *Canvas) CloseTag() *Canvas { return c.pop("EMC") }

// BeginText opens a text object (BT).
func (c *Canvas) BeginText() *Canvas { return c.push("BT", "ET") }

// EndText closes the text object (ET).
func (c *Canvas) EndText() *Canvas { return c.pop("ET") }

// SetFont selects p at size points (Tf), registering the font on the page.
func (c *Canvas) SetFont(p *fonts.Program, size float64) *Canvas {
	if !c.ok() {
		return c
	}
	if p == nil {
		c.err = fmt.Errorf("set font: nil font")
		return c
	}
	inst, name := c.page.doc.instance(p)
	c.page.page.Resources.Fonts[name] = inst.Font()
	c.font, c.fontSize = p, size
	c.emit("Tf", semantic.NameOperand{Value: name}, semantic.NumberOperand{Value: size})
	return c
}

// MoveText moves to the start of the next line offset by (x, y) (Td).
func (c *Canvas) MoveText(x, y float64) *Canvas {
	if c.ok() {
		c.emit("Td", nums(x, y)...)
	}
	return c
}

// ShowText shapes text with the current font and shows it (TJ). Shaped
// advances that differ from the embedded widths become TJ adjustments.
func (c *Canvas) ShowText(text string) *Canvas {
	if !c.ok() || text == "" {
		return c
	}
	if c.font == nil {
		c.err = fmt.Errorf("show text: no font selected")
		return c
	}
	glyphs, err := c.page.doc.shaper.Shape(c.font, text)
	if err != nil {
		c.err = err
		return c
	}
	inst, _ := c.page.doc.instance(c.font)
	codes := inst.Use(glyphs)
	var (
		parts []semantic.Operand
		run   []byte
	)
	for i, g := range glyphs {
		run = append(run, codes[2*i], codes[2*i+1])
		adj := float64(c.font.Advance(g.ID)) - g.XAdvance
		if math.Abs(adj) >= 0.5 && i < len(glyphs)-1 {
			parts = append(parts, semantic.StringOperand{Value: run, Hex: true}, semantic.NumberOperand{Value: math.Round(adj)})
			run = nil
		}
	}
	if len(run) > 0 {
		parts = append(parts, semantic.StringOperand{Value: run, Hex: true})
	}
	c.emit("TJ", semantic.ArrayOperand{Values: parts})
	return c
}

// TextWidth returns the width of text in the current font, in points.
func (c *Canvas) TextWidth(text string) (float64, error) {
	if c.font == nil {
		return 0, fmt.Errorf("text width: no font selected")
	}
	return c.page.doc.shaper.Width(c.font, text, c.fontSize)
}

// AddImage paints img with its lower-left corner at (x, y), scaled to width
// points and the height that keeps its aspect ratio.
func (c *Canvas) AddImage(img *semantic.Image, x, y, width float64) *Canvas {
	if !c.ok() {
		return c
	}
	if img == nil || img.Width <= 0 || img.Height <= 0 {
		c.err = fmt.Errorf("add image: empty image")
		return c
	}
	height := width * float64(img.Height) / float64(img.Width)
	name := c.page.doc.imageName(img)
	c.page.page.Resources.XObjects[name] = img
	c.emit("q")
	c.emit("cm", nums(width, 0, 0, height, x, y)...)
	c.emit("Do", semantic.NameOperand{Value: name})
	c.emit("Q")
	return c
}
