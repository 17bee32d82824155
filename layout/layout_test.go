package layout

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/net/html"

	"github.com/wudi/tagpdf/builder"
	"github.com/wudi/tagpdf/fonts"
	"github.com/wudi/tagpdf/ir/semantic"
)

func testFonts(t *testing.T) Fonts {
	t.Helper()
	reg := fonts.NewRegistry()
	for name, data := range map[string][]byte{"GoRegular": goregular.TTF, "GoBold": gobold.TTF} {
		p, err := fonts.LoadTrueType(name, data)
		if err != nil {
			t.Fatalf("load %s: %v", name, err)
		}
		reg.Register(p)
	}
	f, err := FontsFrom(reg)
	if err != nil {
		t.Fatalf("FontsFrom: %v", err)
	}
	if f.Regular == nil || f.Bold == nil || f.Regular == f.Bold {
		t.Fatalf("expected distinct regular and bold faces")
	}
	return f
}

func taggedDoc() *builder.Document {
	return builder.NewDocument(builder.Options{Language: "en-GB"}).SetTagged()
}

func roles(doc *builder.Document) []string {
	var out []string
	doc.StructureRoot().Walk(func(e *semantic.StructureElement) {
		out = append(out, e.S)
	})
	return out
}

func TestEngine_RenderHTML(t *testing.T) {
	doc := taggedDoc()
	engine := NewEngine(doc, testFonts(t))

	htmlStr := `<html><head><title>ignored</title><style>p{}</style></head><body>
<h1>Title</h1>
<h2>Sub<b>title</b></h2>
<p>This is a paragraph with <b>bold</b> and <i>italic</i> text.</p>
<ul>
	<li>List item 1</li>
	<li>List item 2</li>
</ul>
<table><tr><th>Name</th><th>Value</th></tr><tr><td>a</td><td>1</td></tr></table>
loose text
</body></html>`
	if err := engine.RenderHTML(htmlStr); err != nil {
		t.Fatalf("RenderHTML failed: %v", err)
	}
	want := []string{"Document", "H1", "H2", "P", "L", "LI", "Lbl", "LBody", "LI", "Lbl", "LBody", "Table", "TR", "TH", "TH", "TR", "TD", "TD", "P"}
	if got := roles(doc); !reflect.DeepEqual(got, want) {
		t.Fatalf("structure = %v\nwant %v", got, want)
	}
	sd, err := doc.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(sd.Pages) != 1 {
		t.Fatalf("expected one page, got %d", len(sd.Pages))
	}
	if len(sd.Pages[0].Resources.Fonts) != 2 {
		t.Fatalf("expected regular and bold fonts, got %d", len(sd.Pages[0].Resources.Fonts))
	}
	var artifacts int
	for _, op := range sd.Pages[0].Contents[0].Operations {
		if op.Operator == "BDC" && op.Operands[0].(semantic.NameOperand).Value == "Artifact" {
			artifacts++
		}
	}
	if artifacts != 2 {
		t.Fatalf("expected one border artifact per table row, got %d", artifacts)
	}
}

func TestEngine_Pagination(t *testing.T) {
	doc := taggedDoc()
	var fired []int
	doc.AddEndPageHandler(builder.EndPageFunc(func(ev builder.PageEvent) error {
		fired = append(fired, ev.Number)
		return nil
	}))
	engine := NewEngine(doc, testFonts(t))
	var sb strings.Builder
	for i := 0; i < 120; i++ {
		sb.WriteString("<p>Paragraph of body text that is repeated to fill several pages.</p>")
	}
	if err := engine.RenderHTML(sb.String()); err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	pages := engine.Pages()
	if pages < 2 {
		t.Fatalf("expected pagination, got %d pages", pages)
	}
	if len(fired) != pages {
		t.Fatalf("handler fired %d times for %d pages", len(fired), pages)
	}
	for i, n := range fired {
		if n != i+1 {
			t.Fatalf("pages finished out of order: %v", fired)
		}
	}
	if _, err := doc.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(fired) != pages {
		t.Fatalf("Build fired handlers again: %v", fired)
	}
}

func TestEngine_HandlerErrorStopsLayout(t *testing.T) {
	boom := errors.New("boom")
	doc := taggedDoc()
	doc.AddEndPageHandler(builder.EndPageFunc(func(builder.PageEvent) error { return boom }))
	engine := NewEngine(doc, testFonts(t))
	if err := engine.RenderHTML("<p>x</p>"); !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
}

func TestEngine_EmptyMarkupStillHasPage(t *testing.T) {
	doc := taggedDoc()
	engine := NewEngine(doc, testFonts(t))
	if err := engine.RenderHTML("   "); err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	if engine.Pages() != 1 {
		t.Fatalf("expected a single blank page, got %d", engine.Pages())
	}
}

func TestEngine_NoFont(t *testing.T) {
	engine := NewEngine(taggedDoc(), Fonts{})
	if err := engine.RenderHTML("<p>x</p>"); !errors.Is(err, ErrNoFont) {
		t.Fatalf("expected ErrNoFont, got %v", err)
	}
}

func TestEngine_RenderMarkdown(t *testing.T) {
	doc := taggedDoc()
	engine := NewEngine(doc, testFonts(t))
	md := `# Title
## Subtitle

This is a paragraph with some text.

1. First
2. Second

| a | b |
|---|---|
| 1 | 2 |
`
	if err := engine.RenderMarkdown(md); err != nil {
		t.Fatalf("RenderMarkdown failed: %v", err)
	}
	got := strings.Join(roles(doc), " ")
	for _, want := range []string{"H1", "H2", "P", "L LI Lbl LBody", "Table TR TH TH TR TD TD"} {
		if !strings.Contains(got, want) {
			t.Errorf("structure %q missing %q", got, want)
		}
	}
}

func TestEngine_Untagged(t *testing.T) {
	doc := builder.NewDocument(builder.Options{})
	engine := NewEngine(doc, testFonts(t))
	if err := engine.RenderHTML("<h1>Hi</h1><p>there</p>"); err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	sd, err := doc.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, op := range sd.Pages[0].Contents[0].Operations {
		if op.Operator == "BDC" {
			t.Fatalf("untagged document should not carry marked content")
		}
	}
}

func TestWrap(t *testing.T) {
	engine := NewEngine(taggedDoc(), testFonts(t))
	lines, err := engine.wrap([]span{{Text: "alpha beta gamma delta epsilon"}}, 12, 80)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if len(lines) < 2 {
		t.Fatalf("expected wrapping, got %d lines", len(lines))
	}
	for _, ln := range lines {
		if ln.width > 80 {
			t.Fatalf("line wider than limit: %v", ln.width)
		}
		if ln.items[0].text == " " || ln.items[len(ln.items)-1].text == " " {
			t.Fatalf("line should not start or end with a space")
		}
	}

	long, err := engine.wrap([]span{{Text: strings.Repeat("W", 40)}}, 12, 50)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if len(long) < 2 {
		t.Fatalf("expected long word to be split, got %d lines", len(long))
	}

	broken, err := engine.wrap([]span{{Text: "a"}, {Text: "\n"}, {Text: "b"}}, 12, 500)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if len(broken) != 2 {
		t.Fatalf("expected forced break, got %d lines", len(broken))
	}
}

func TestTokenize(t *testing.T) {
	got := tokenize("a  b\tc")
	want := []string{"a", " ", " ", "b", " ", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("tokenize = %q, want %q", got, want)
	}
}

func TestCollectSpans(t *testing.T) {
	doc, err := html.Parse(strings.NewReader("<p>Cafe\u0301 <strong>bold <em>both</em></strong><br>x</p>"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var p *html.Node
	var find func(*html.Node)
	find = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "p" {
			p = n
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)
	spans := collectSpans(p, false, false)
	want := []span{
		{Text: "Caf\u00e9 "},
		{Text: "bold ", Bold: true},
		{Text: "both", Bold: true, Italic: true},
		{Text: "\n"},
		{Text: "x"},
	}
	if !reflect.DeepEqual(spans, want) {
		t.Fatalf("spans = %+v\nwant %+v", spans, want)
	}
}
