package composer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/wudi/tagpdf/assets"
	"github.com/wudi/tagpdf/ir/semantic"
	"github.com/wudi/tagpdf/observability"
	"github.com/wudi/tagpdf/options"
)

func jpegData(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h)), nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func testAssets(t *testing.T) *assets.Set {
	t.Helper()
	set, err := assets.LoadFS(fstest.MapFS{
		assets.HeaderPageOnePath:  {Data: jpegData(t, 800, 192)},
		assets.HeaderAllPagesPath: {Data: jpegData(t, 800, 96)},
		"fonts/GoRegular.ttf":     {Data: goregular.TTF},
		"fonts/GoBold.ttf":        {Data: gobold.TTF},
	})
	if err != nil {
		t.Fatalf("LoadFS: %v", err)
	}
	return set
}

type entry struct {
	level string
	msg   string
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []entry
}

func (l *recordingLogger) log(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry{level, msg})
}

func (l *recordingLogger) Debug(msg string, _ ...observability.Field) { l.log("debug", msg) }
func (l *recordingLogger) Info(msg string, _ ...observability.Field)  { l.log("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...observability.Field)  { l.log("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...observability.Field) { l.log("error", msg) }
func (l *recordingLogger) With(...observability.Field) observability.Logger {
	return l
}

func (l *recordingLogger) count(level, msg string) int {
	n := 0
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			n++
		}
	}
	return n
}

type recordingTracer struct{ span *recordingSpan }

func (r *recordingTracer) StartSpan(ctx context.Context, _ string) (context.Context, observability.Span) {
	r.span = &recordingSpan{tags: map[string]interface{}{}}
	return ctx, r.span
}

type recordingSpan struct {
	tags     map[string]interface{}
	err      error
	finished bool
}

func (s *recordingSpan) SetTag(k string, v interface{}) { s.tags[k] = v }
func (s *recordingSpan) SetError(err error)             { s.err = err }
func (s *recordingSpan) Finish()                        { s.finished = true }

const body = `<h1>Quarterly report</h1><p>Revenue grew in every region.</p><ul><li>North</li><li>South</li></ul>`

var allFlags = options.DisplayTitle | options.AddHeaderPageOne | options.AddHeaderAllPages | options.AddLineBottomEachPage

func countOps(p *semantic.Page, operator string) int {
	n := 0
	for _, cs := range p.Contents {
		for _, op := range cs.Operations {
			if op.Operator == operator {
				n++
			}
		}
	}
	return n
}

func roles(sd *semantic.Document) []string {
	var out []string
	for _, root := range sd.StructTree.K {
		root.Walk(func(e *semantic.StructureElement) { out = append(out, e.S) })
	}
	return out
}

func TestCompose_WritesPDF(t *testing.T) {
	tracer := &recordingTracer{}
	c := New(testAssets(t), WithTracer(tracer))
	out, err := c.Compose(context.Background(), Request{Markup: body, Title: "Report", Flags: allFlags})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-2.0")) {
		t.Fatalf("unexpected header %q", out[:min(len(out), 16)])
	}
	if !bytes.Contains(out, []byte("%%EOF")) {
		t.Fatal("missing trailer")
	}
	if !tracer.span.finished || tracer.span.err != nil {
		t.Fatalf("span = %+v", tracer.span)
	}
	if tracer.span.tags[observability.TagPageCount] != 1 {
		t.Fatalf("page count tag = %v", tracer.span.tags[observability.TagPageCount])
	}
	if n, ok := tracer.span.tags[observability.TagWriteBytes].(int64); !ok || n <= 0 {
		t.Fatalf("write bytes tag = %v", tracer.span.tags[observability.TagWriteBytes])
	}
}

func TestBuild_DocumentEntries(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := New(testAssets(t), WithClock(func() time.Time { return at }))
	sd, err := c.build(context.Background(), Request{Markup: body, Title: "Report"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if sd.Lang != DefaultLanguage {
		t.Fatalf("Lang = %q", sd.Lang)
	}
	if sd.Info.Title != "Report" || sd.Info.Creator != DefaultCreator || sd.Info.Producer != Producer() {
		t.Fatalf("Info = %+v", sd.Info)
	}
	if !sd.Info.CreationDate.Equal(at) {
		t.Fatalf("CreationDate = %v", sd.Info.CreationDate)
	}
	if sd.ViewerPreferences == nil || !sd.ViewerPreferences.DisplayDocTitle {
		t.Fatal("DisplayDocTitle not set")
	}
	if !sd.Marked || sd.StructTree == nil {
		t.Fatal("document not tagged")
	}
	if sd.Metadata == nil || !bytes.Contains(sd.Metadata.Raw, []byte("<pdfuaid:part>1</pdfuaid:part>")) {
		t.Fatal("missing PDF/UA identification")
	}
}

func TestBuild_ZeroFlagsHasNoDecoration(t *testing.T) {
	c := New(testAssets(t))
	for _, raw := range []string{"", "0", "abc", "-3", "  "} {
		sd, err := c.build(context.Background(), Request{Markup: body, Title: "Report", Flags: options.Parse(raw)})
		if err != nil {
			t.Fatalf("build(%q): %v", raw, err)
		}
		for i, p := range sd.Pages {
			if n := countOps(p, "Do"); n != 0 {
				t.Fatalf("flags %q page %d: %d images", raw, i+1, n)
			}
			for _, cs := range p.Contents {
				for _, op := range cs.Operations {
					if op.Operator == "BDC" && op.Operands[0].(semantic.NameOperand).Value == "Artifact" {
						t.Fatalf("flags %q page %d: unexpected artifact", raw, i+1)
					}
				}
			}
		}
		for _, r := range roles(sd) {
			if r == "Title" {
				t.Fatalf("flags %q: unexpected Title element", raw)
			}
		}
		if len(sd.OptionalContent) != 0 {
			t.Fatalf("flags %q: unexpected layers", raw)
		}
	}
}

func longBody() string {
	var sb strings.Builder
	for i := 0; i < 150; i++ {
		sb.WriteString("<p>Paragraph of body text long enough to fill the page over and over.</p>")
	}
	return sb.String()
}

func TestBuild_MultiPageDecoration(t *testing.T) {
	c := New(testAssets(t))
	sd, err := c.build(context.Background(), Request{Markup: longBody(), Title: "Report", Flags: allFlags})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(sd.Pages) < 3 {
		t.Fatalf("expected several pages, got %d", len(sd.Pages))
	}
	for i, p := range sd.Pages {
		if n := countOps(p, "Do"); n != 1 {
			t.Fatalf("page %d: %d header images", i+1, n)
		}
		if n := countOps(p, "s"); n != 1 {
			t.Fatalf("page %d: %d bottom rules", i+1, n)
		}
	}
	titles := 0
	var titleEl *semantic.StructureElement
	for _, root := range sd.StructTree.K {
		root.Walk(func(e *semantic.StructureElement) {
			if e.S == "Title" {
				titles++
				titleEl = e
			}
		})
	}
	if titles != 1 || titleEl.Pg != sd.Pages[0] {
		t.Fatalf("expected one Title element on page 1, got %d", titles)
	}
	if first := sd.StructTree.K[0].K[0].Element; first != titleEl {
		t.Fatalf("Title should be the first element under the document root, got %+v", first)
	}
}

func TestBuild_EmptyTitleDrawsNothing(t *testing.T) {
	c := New(testAssets(t))
	sd, err := c.build(context.Background(), Request{Markup: body, Flags: options.DisplayTitle})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, r := range roles(sd) {
		if r == "Title" {
			t.Fatal("empty title must not be tagged")
		}
	}
}

func TestBuild_DecorationKeepsBodyGraphicsState(t *testing.T) {
	c := New(testAssets(t))
	sd, err := c.build(context.Background(), Request{
		Markup: "<p>Body paragraph</p><hr><p>More</p>",
		Title:  "Report",
		Flags:  options.DisplayTitle | options.AddLineBottomEachPage,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	page := sd.Pages[0]
	if len(page.Contents) != 2 {
		t.Fatalf("expected decoration and body streams, got %d", len(page.Contents))
	}
	// Graphics state carries across the streams of one page.
	var (
		depth        int
		saved        [][2]string
		fill, stroke string
		painted      int
	)
	for i, cs := range page.Contents {
		for _, op := range cs.Operations {
			switch op.Operator {
			case "q":
				saved = append(saved, [2]string{fill, stroke})
				depth++
			case "Q":
				if depth > 0 {
					depth--
					fill, stroke = saved[depth][0], saved[depth][1]
					saved = saved[:depth]
				}
			case "rg", "g", "k", "sc", "scn":
				fill = op.Operator
			case "RG", "G", "K", "SC", "SCN":
				stroke = op.Operator
			case "TJ", "Tj", "S":
				if i == 0 {
					continue
				}
				painted++
				if fill != "" || stroke != "" {
					t.Fatalf("body %s drawn with fill %q stroke %q at depth %d", op.Operator, fill, stroke, depth)
				}
			}
		}
	}
	if painted == 0 {
		t.Fatal("expected body text and rule operations")
	}
}

func TestBuild_Idempotent(t *testing.T) {
	c := New(testAssets(t))
	req := Request{Markup: longBody(), Title: "Report", Flags: allFlags}
	a, err := c.build(context.Background(), req)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	b, err := c.build(context.Background(), req)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(a.Pages) != len(b.Pages) {
		t.Fatalf("page count differs: %d vs %d", len(a.Pages), len(b.Pages))
	}
	if strings.Join(roles(a), " ") != strings.Join(roles(b), " ") {
		t.Fatal("structure tree differs")
	}
	for i := range a.Pages {
		for _, op := range []string{"Do", "s", "TJ", "BDC"} {
			if countOps(a.Pages[i], op) != countOps(b.Pages[i], op) {
				t.Fatalf("page %d: %s count differs", i+1, op)
			}
		}
	}
}

func TestBuild_Markdown(t *testing.T) {
	c := New(testAssets(t))
	sd, err := c.build(context.Background(), Request{Markup: "# Hello\n\nWorld", Format: FormatMarkdown})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	got := strings.Join(roles(sd), " ")
	if got != "Document H1 P" {
		t.Fatalf("roles = %q", got)
	}
}

func TestCompose_Errors(t *testing.T) {
	set := testAssets(t)
	broken := *set
	broken.HeaderPageOne = &assets.ImageAsset{PixelWidth: 1, PixelHeight: 1, Image: &semantic.Image{}}

	tests := []struct {
		name string
		c    *Composer
		req  Request
		want error
	}{
		{"empty markup", New(set), Request{Markup: " \n\t"}, ErrEmptyMarkup},
		{"nil assets", New(nil), Request{Markup: body}, ErrAssets},
		{"incomplete assets", New(&assets.Set{}), Request{Markup: body}, ErrAssets},
		{"decorator failure", New(&broken), Request{Markup: body, Flags: options.AddHeaderPageOne}, ErrLayout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &recordingLogger{}
			tt.c.logger = log
			out, err := tt.c.Compose(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if out != nil {
				t.Fatal("no bytes may be returned with an error")
			}
			if log.count("error", "composition failed") != 1 {
				t.Fatalf("failure not logged: %+v", log.entries)
			}
		})
	}
}

func TestCompose_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(testAssets(t)).Compose(ctx, Request{Markup: body}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCompose_CompliantReport(t *testing.T) {
	log := &recordingLogger{}
	c := New(testAssets(t), WithLogger(log))
	if _, err := c.ConvertToPdf(context.Background(), body, "Report", "15"); err != nil {
		t.Fatalf("ConvertToPdf: %v", err)
	}
	if n := log.count("warn", "pdf/ua violation"); n != 0 {
		t.Fatalf("expected a compliant document, got %d violations", n)
	}
	if log.count("debug", "pdf/ua validation passed") != 1 || log.count("info", "document composed") != 1 {
		t.Fatalf("unexpected log: %+v", log.entries)
	}
}

func TestCompose_UntitledReportsViolation(t *testing.T) {
	log := &recordingLogger{}
	c := New(testAssets(t), WithLogger(log))
	if _, err := c.ConvertToPdf(context.Background(), body, "", "0"); err != nil {
		t.Fatalf("ConvertToPdf: %v", err)
	}
	if log.count("warn", "pdf/ua violation") == 0 {
		t.Fatal("missing title should be reported")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatHTML, false},
		{"HTML", FormatHTML, false},
		{"md", FormatMarkdown, false},
		{"Markdown", FormatMarkdown, false},
		{"docx", FormatHTML, true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Fatalf("ParseFormat(%q) = %v, %v", tt.in, got, err)
		}
	}
}
