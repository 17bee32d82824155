// Package layout flows structured markup (HTML, Markdown) onto builder pages:
// word wrapping with shaped text widths, pagination and tagging of every
// block in the document structure tree.
package layout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wudi/tagpdf/builder"
	"github.com/wudi/tagpdf/fonts"
	"github.com/wudi/tagpdf/ir/semantic"
)

// ErrNoFont is returned when the engine has no regular font to set text in.
var ErrNoFont = errors.New("layout: no font available")

// Fonts are the faces used for body text.
type Fonts struct {
	Regular    *fonts.Program
	Bold       *fonts.Program
	Italic     *fonts.Program
	BoldItalic *fonts.Program
}

// FontsFrom selects the four body faces from a registry.
func FontsFrom(reg *fonts.Registry) (Fonts, error) {
	var f Fonts
	var err error
	if f.Regular, err = reg.Select(false, false); err != nil {
		return Fonts{}, err
	}
	f.Bold, _ = reg.Select(true, false)
	f.Italic, _ = reg.Select(false, true)
	f.BoldItalic, _ = reg.Select(true, true)
	return f, nil
}

func (f Fonts) pick(bold, italic bool) *fonts.Program {
	var p *fonts.Program
	switch {
	case bold && italic:
		p = f.BoldItalic
	case bold:
		p = f.Bold
	case italic:
		p = f.Italic
	}
	if p == nil {
		p = f.Regular
	}
	return p
}

// Engine handles the layout and rendering of structured content into pages.
type Engine struct {
	doc   *builder.Document
	fonts Fonts

	DefaultFontSize float64
	LineHeight      float64 // multiplier, e.g. 1.2
	Margins         Margins

	pageSize semantic.Rectangle
	page     *builder.Page
	cursorY  float64
	indent   float64
}

// Margins defines page margins in points.
type Margins struct {
	Top, Bottom, Left, Right float64
}

// Option defines a configuration option for the Engine.
type Option func(*Engine)

// WithDefaultFontSize sets the body font size.
func WithDefaultFontSize(size float64) Option {
	return func(e *Engine) {
		e.DefaultFontSize = size
	}
}

// WithLineHeight sets the line height multiplier.
func WithLineHeight(height float64) Option {
	return func(e *Engine) {
		e.LineHeight = height
	}
}

// WithMargins sets the page margins.
func WithMargins(margins Margins) Option {
	return func(e *Engine) {
		e.Margins = margins
	}
}

// WithPageSize sets the MediaBox of new pages.
func WithPageSize(size semantic.Rectangle) Option {
	return func(e *Engine) {
		e.pageSize = size
	}
}

// NewEngine creates a layout engine drawing into doc.
func NewEngine(doc *builder.Document, f Fonts, opts ...Option) *Engine {
	e := &Engine{
		doc:             doc,
		fonts:           f,
		DefaultFontSize: 12,
		LineHeight:      1.2,
		Margins:         Margins{Top: 36, Bottom: 36, Left: 36, Right: 36},
		pageSize:        doc.DefaultPageSize(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Pages returns the number of pages the engine started.
func (e *Engine) Pages() int { return len(e.doc.Pages()) }

func (e *Engine) top() float64 { return e.pageSize.URY - e.Margins.Top }

func (e *Engine) contentWidth() float64 {
	return e.pageSize.URX - e.pageSize.LLX - e.Margins.Left - e.Margins.Right - e.indent
}

func (e *Engine) left() float64 { return e.pageSize.LLX + e.Margins.Left + e.indent }

// ensurePage makes sure there is a current page.
func (e *Engine) ensurePage() {
	if e.page == nil {
		e.newPage()
	}
}

func (e *Engine) newPage() {
	e.page = e.doc.NewPage(e.pageSize)
	e.cursorY = e.top()
}

// checkPageBreak finishes the current page when height does not fit.
func (e *Engine) checkPageBreak(height float64) error {
	if e.page == nil {
		e.newPage()
		return nil
	}
	if e.cursorY-height < e.pageSize.LLY+e.Margins.Bottom && e.cursorY < e.top() {
		if err := e.page.Finish(); err != nil {
			return err
		}
		e.newPage()
	}
	return nil
}

// finish closes the last page, starting one if nothing was drawn.
func (e *Engine) finish() error {
	e.ensurePage()
	err := e.page.Finish()
	e.page = nil
	return err
}

// span is a run of inline text with one style. A "\n" span forces a break.
type span struct {
	Text   string
	Bold   bool
	Italic bool
}

// lineItem is a measured piece of a line.
type lineItem struct {
	text  string
	font  *fonts.Program
	width float64
}

type line struct {
	items []lineItem
	width float64
}

func (e *Engine) measure(p *fonts.Program, text string, size float64) (float64, error) {
	w, err := e.doc.Shaper().Width(p, text, size)
	if err != nil {
		return 0, fmt.Errorf("measure %q: %w", text, err)
	}
	return w, nil
}

// wrap breaks spans into lines no wider than maxWidth. Words longer than a
// line are split between characters.
func (e *Engine) wrap(spans []span, size, maxWidth float64) ([]line, error) {
	var (
		lines []line
		cur   line
	)
	flush := func() {
		for len(cur.items) > 0 && cur.items[len(cur.items)-1].text == " " {
			cur.width -= cur.items[len(cur.items)-1].width
			cur.items = cur.items[:len(cur.items)-1]
		}
		if len(cur.items) > 0 {
			lines = append(lines, cur)
		}
		cur = line{}
	}
	add := func(it lineItem) {
		cur.items = append(cur.items, it)
		cur.width += it.width
	}
	for _, sp := range spans {
		if sp.Text == "\n" {
			flush()
			continue
		}
		font := e.fonts.pick(sp.Bold, sp.Italic)
		if font == nil {
			return nil, ErrNoFont
		}
		spaceW, err := e.measure(font, " ", size)
		if err != nil {
			return nil, err
		}
		for _, token := range tokenize(sp.Text) {
			if token == " " {
				if len(cur.items) == 0 || cur.items[len(cur.items)-1].text == " " {
					continue
				}
				if cur.width+spaceW > maxWidth {
					flush()
					continue
				}
				add(lineItem{text: " ", font: font, width: spaceW})
				continue
			}
			w, err := e.measure(font, token, size)
			if err != nil {
				return nil, err
			}
			if cur.width+w <= maxWidth {
				add(lineItem{text: token, font: font, width: w})
				continue
			}
			if w <= maxWidth {
				flush()
				add(lineItem{text: token, font: font, width: w})
				continue
			}
			// Character-level wrapping
			flush()
			var sub strings.Builder
			subW := 0.0
			for _, r := range token {
				rw, err := e.measure(font, string(r), size)
				if err != nil {
					return nil, err
				}
				if subW+rw > maxWidth && sub.Len() > 0 {
					add(lineItem{text: sub.String(), font: font, width: subW})
					flush()
					sub.Reset()
					subW = 0
				}
				sub.WriteRune(r)
				subW += rw
			}
			if sub.Len() > 0 {
				add(lineItem{text: sub.String(), font: font, width: subW})
			}
		}
	}
	flush()
	return lines, nil
}

// tokenize splits text into words and single-space separators.
func tokenize(text string) []string {
	var (
		tokens []string
		word   strings.Builder
	)
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' || r == '\r' || r == '\f' {
			if word.Len() > 0 {
				tokens = append(tokens, word.String())
				word.Reset()
			}
			tokens = append(tokens, " ")
			continue
		}
		word.WriteRune(r)
	}
	if word.Len() > 0 {
		tokens = append(tokens, word.String())
	}
	return tokens
}

// drawLine shows one line with its baseline at y, tagged with el when the
// document is tagged.
func (e *Engine) drawLine(ln line, x, y, size float64, el *semantic.StructureElement) error {
	c := e.page.Canvas()
	if el != nil {
		c.OpenTag(el)
	}
	c.BeginText()
	var (
		cur   *fonts.Program
		run   strings.Builder
		runX  = x
		lineX float64
		first = true
	)
	flushRun := func() {
		if run.Len() == 0 {
			return
		}
		if first {
			c.MoveText(runX, y)
			first = false
		} else {
			c.MoveText(runX-lineX, 0)
		}
		lineX = runX
		c.SetFont(cur, size).ShowText(run.String())
		run.Reset()
	}
	pos := x
	for _, it := range ln.items {
		if it.font != cur {
			flushRun()
			cur = it.font
			runX = pos
		}
		run.WriteString(it.text)
		pos += it.width
	}
	flushRun()
	c.EndText()
	if el != nil {
		c.CloseTag()
	}
	return c.Err()
}

// renderLines lays out spans as a block at the current indent, starting on
// a new page when a line does not fit.
func (e *Engine) renderLines(spans []span, size float64, el *semantic.StructureElement) error {
	return e.renderLinesAt(spans, size, e.left(), e.contentWidth(), el)
}

func (e *Engine) renderLinesAt(spans []span, size, x, width float64, el *semantic.StructureElement) error {
	lines, err := e.wrap(spans, size, width)
	if err != nil {
		return err
	}
	lineHeight := size * e.LineHeight
	for _, ln := range lines {
		if err := e.checkPageBreak(lineHeight); err != nil {
			return err
		}
		if err := e.drawLine(ln, x, e.cursorY-size, size, el); err != nil {
			return err
		}
		e.cursorY -= lineHeight
	}
	return nil
}

func (e *Engine) renderParagraphSpacing() {
	if e.page != nil {
		e.cursorY -= e.DefaultFontSize * (e.LineHeight - 1) * 3
	}
}
