package layout

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"

	"github.com/wudi/tagpdf/builder"
	"github.com/wudi/tagpdf/ir/semantic"
)

const listIndent = 18.0

var artifactLayout = builder.Artifact{Type: "Layout"}

// RenderHTML lays out an HTML document and finishes its last page.
func (e *Engine) RenderHTML(source string) error {
	doc, err := html.Parse(strings.NewReader(source))
	if err != nil {
		return err
	}
	if e.fonts.Regular == nil {
		return ErrNoFont
	}
	if err := e.walkChildren(doc, nil); err != nil {
		return err
	}
	return e.finish()
}

// walkChildren renders the block children of n. Runs of inline content
// between blocks become anonymous paragraphs.
func (e *Engine) walkChildren(n *html.Node, parent *semantic.StructureElement) error {
	var pending []span
	flush := func() error {
		if !hasText(pending) {
			pending = nil
			return nil
		}
		err := e.renderBlock("P", pending, e.DefaultFontSize, parent)
		pending = nil
		return err
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if isInline(c) {
			pending = append(pending, collectSpans(c, false, false)...)
			continue
		}
		if err := flush(); err != nil {
			return err
		}
		if err := e.walkHTML(c, parent); err != nil {
			return err
		}
	}
	return flush()
}

func (e *Engine) walkHTML(n *html.Node, parent *semantic.StructureElement) error {
	if n.Type != html.ElementNode {
		return e.walkChildren(n, parent)
	}
	switch n.DataAtom {
	case atom.Head, atom.Script, atom.Style, atom.Template, atom.Noscript:
		return nil
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return e.renderHTMLHeader(n, parent)
	case atom.P:
		if err := e.renderBlock("P", collectSpans(n, false, false), e.DefaultFontSize, parent); err != nil {
			return err
		}
		e.renderParagraphSpacing()
		return nil
	case atom.Pre:
		return e.renderBlock("P", preSpans(n), e.DefaultFontSize, parent)
	case atom.Ul, atom.Ol:
		return e.renderList(n, parent)
	case atom.Table:
		return e.renderTable(n, parent)
	case atom.Hr:
		return e.renderRule()
	case atom.Blockquote:
		el := e.doc.AddElement(parent, "BlockQuote")
		e.indent += listIndent
		err := e.walkChildren(n, el)
		e.indent -= listIndent
		return err
	case atom.Section, atom.Article, atom.Aside, atom.Nav, atom.Main, atom.Header, atom.Footer:
		return e.walkChildren(n, e.doc.AddElement(parent, "Sect"))
	}
	return e.walkChildren(n, parent)
}

func (e *Engine) renderHTMLHeader(n *html.Node, parent *semantic.StructureElement) error {
	level := 1
	switch n.DataAtom {
	case atom.H2:
		level = 2
	case atom.H3:
		level = 3
	case atom.H4:
		level = 4
	case atom.H5:
		level = 5
	case atom.H6:
		level = 6
	}
	fontSize := e.DefaultFontSize * 1.1
	switch level {
	case 1:
		fontSize = e.DefaultFontSize * 2.0
	case 2:
		fontSize = e.DefaultFontSize * 1.5
	case 3:
		fontSize = e.DefaultFontSize * 1.25
	}
	spans := collectSpans(n, true, false)
	if !hasText(spans) {
		return nil
	}
	if err := e.renderBlock("H"+strconv.Itoa(level), spans, fontSize, parent); err != nil {
		return err
	}
	e.renderParagraphSpacing()
	return nil
}

// renderBlock tags spans as one structure element and lays them out.
func (e *Engine) renderBlock(role string, spans []span, size float64, parent *semantic.StructureElement) error {
	if !hasText(spans) {
		return nil
	}
	e.ensurePage()
	el := e.doc.AddElement(parent, role)
	return e.renderLines(spans, size, el)
}

func (e *Engine) renderList(n *html.Node, parent *semantic.StructureElement) error {
	list := e.doc.AddElement(parent, "L")
	ordered := n.DataAtom == atom.Ol
	number := 1
	if v, err := strconv.Atoi(attr(n, "start")); err == nil && ordered {
		number = v
	}
	e.indent += listIndent
	defer func() { e.indent -= listIndent }()
	for li := n.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.DataAtom != atom.Li {
			continue
		}
		marker := "•"
		if ordered {
			marker = strconv.Itoa(number) + "."
			number++
		}
		if err := e.renderListItem(li, marker, list); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) renderListItem(li *html.Node, marker string, list *semantic.StructureElement) error {
	item := e.doc.AddElement(list, "LI")
	e.ensurePage()
	size := e.DefaultFontSize
	if err := e.checkPageBreak(size * e.LineHeight); err != nil {
		return err
	}
	lbl := e.doc.AddElement(item, "Lbl")
	if err := e.drawLine(line{items: []lineItem{{text: marker, font: e.fonts.Regular}}}, e.left()-listIndent, e.cursorY-size, size, lbl); err != nil {
		return err
	}
	body := e.doc.AddElement(item, "LBody")
	page, startY := e.page, e.cursorY
	defer func() {
		if e.page == page && e.cursorY == startY {
			e.cursorY -= size * e.LineHeight
		}
	}()
	var pending []span
	flush := func() error {
		if !hasText(pending) {
			pending = nil
			return nil
		}
		err := e.renderLines(pending, size, body)
		pending = nil
		return err
	}
	for c := li.FirstChild; c != nil; c = c.NextSibling {
		if isInline(c) {
			pending = append(pending, collectSpans(c, false, false)...)
			continue
		}
		if err := flush(); err != nil {
			return err
		}
		if err := e.walkHTML(c, body); err != nil {
			return err
		}
	}
	return flush()
}

// renderTable lays out rows with equal column widths. Cell borders are
// drawn as layout artifacts.
func (e *Engine) renderTable(n *html.Node, parent *semantic.StructureElement) error {
	var rows []*html.Node
	var find func(*html.Node)
	find = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Tr:
				rows = append(rows, c)
			case atom.Thead, atom.Tbody, atom.Tfoot:
				find(c)
			}
		}
	}
	find(n)
	cols := 0
	for _, r := range rows {
		if k := len(cells(r)); k > cols {
			cols = k
		}
	}
	if cols == 0 {
		return nil
	}
	e.ensurePage()
	table := e.doc.AddElement(parent, "Table")
	const pad = 4.0
	size := e.DefaultFontSize
	lineHeight := size * e.LineHeight
	colWidth := e.contentWidth() / float64(cols)
	for _, r := range rows {
		if len(cells(r)) == 0 {
			continue
		}
		tr := e.doc.AddElement(table, "TR")
		var wrapped [][]line
		height := 0.0
		for _, cell := range cells(r) {
			lines, err := e.wrap(collectSpans(cell, cell.DataAtom == atom.Th, false), size, colWidth-2*pad)
			if err != nil {
				return err
			}
			wrapped = append(wrapped, lines)
			if h := float64(len(lines))*lineHeight + 2*pad; h > height {
				height = h
			}
		}
		if err := e.checkPageBreak(height); err != nil {
			return err
		}
		top := e.cursorY
		c := e.page.Canvas()
		c.BeginArtifact(artifactLayout).SetLineWidth(0.5)
		for i := 0; i < cols; i++ {
			c.Rectangle(e.left()+float64(i)*colWidth, top-height, colWidth, height)
		}
		c.Stroke().EndMarkedContent()
		for i, cell := range cells(r) {
			role := "TD"
			if cell.DataAtom == atom.Th {
				role = "TH"
			}
			el := e.doc.AddElement(tr, role)
			y := top - pad
			for _, ln := range wrapped[i] {
				if err := e.drawLine(ln, e.left()+float64(i)*colWidth+pad, y-size, size, el); err != nil {
					return err
				}
				y -= lineHeight
			}
		}
		e.cursorY = top - height
	}
	e.renderParagraphSpacing()
	return nil
}

func (e *Engine) renderRule() error {
	e.ensurePage()
	if err := e.checkPageBreak(e.DefaultFontSize); err != nil {
		return err
	}
	y := e.cursorY - e.DefaultFontSize/2
	c := e.page.Canvas()
	c.BeginArtifact(artifactLayout).
		SetLineWidth(0.5).
		MoveTo(e.left(), y).
		LineTo(e.left()+e.contentWidth(), y).
		Stroke().
		EndMarkedContent()
	e.cursorY -= e.DefaultFontSize
	if err := c.Err(); err != nil {
		return fmt.Errorf("rule: %w", err)
	}
	return nil
}

func cells(tr *html.Node) []*html.Node {
	var out []*html.Node
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
			out = append(out, c)
		}
	}
	return out
}

var inlineAtoms = map[atom.Atom]bool{
	atom.A: true, atom.Abbr: true, atom.B: true, atom.Br: true, atom.Cite: true,
	atom.Code: true, atom.Em: true, atom.Font: true, atom.I: true, atom.Img: true,
	atom.Kbd: true, atom.Label: true, atom.Mark: true, atom.Q: true, atom.S: true,
	atom.Small: true, atom.Span: true, atom.Strong: true, atom.Sub: true,
	atom.Sup: true, atom.Time: true, atom.U: true,
}

func isInline(n *html.Node) bool {
	switch n.Type {
	case html.TextNode:
		return true
	case html.ElementNode:
		return inlineAtoms[n.DataAtom]
	}
	return false
}

// collectSpans flattens the inline content of n into styled spans. Text is
// NFC-normalised.
func collectSpans(n *html.Node, bold, italic bool) []span {
	var out []span
	var walk func(*html.Node, bool, bool)
	walk = func(n *html.Node, bold, italic bool) {
		switch n.Type {
		case html.TextNode:
			if n.Data != "" {
				out = append(out, span{Text: norm.NFC.String(n.Data), Bold: bold, Italic: italic})
			}
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Br:
				out = append(out, span{Text: "\n"})
				return
			case atom.Script, atom.Style, atom.Img:
				return
			case atom.B, atom.Strong, atom.Th:
				bold = true
			case atom.I, atom.Em, atom.Cite:
				italic = true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, bold, italic)
		}
	}
	walk(n, bold, italic)
	return out
}

// preSpans keeps the line structure of preformatted text.
func preSpans(n *html.Node) []span {
	var text strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			text.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	var out []span
	for i, ln := range strings.Split(strings.TrimRight(norm.NFC.String(text.String()), "\n"), "\n") {
		if i > 0 {
			out = append(out, span{Text: "\n"})
		}
		out = append(out, span{Text: ln})
	}
	return out
}

func hasText(spans []span) bool {
	for _, s := range spans {
		if s.Text != "\n" && strings.TrimSpace(s.Text) != "" {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
