// Package builder assembles tagged semantic documents page by page. A
// Document hands out Pages; each Page owns one or more content streams that
// are drawn through a Canvas. Finished pages fire the registered end-of-page
// handlers exactly once, in page order.
package builder

import (
	"errors"
	"fmt"
	"sort"

	"github.com/wudi/tagpdf/fonts"
	"github.com/wudi/tagpdf/ir/semantic"
)

var (
	// ErrClosed is returned when a document is used after Build.
	ErrClosed = errors.New("document already built")
	// ErrNoPages is returned by Build for a document without pages.
	ErrNoPages = errors.New("document has no pages")
	// ErrPageFinished is returned when drawing into a finished page.
	ErrPageFinished = errors.New("page already finished")
)

// Common page sizes in points.
var (
	A4     = semantic.Rectangle{URX: 595, URY: 842}
	Letter = semantic.Rectangle{URX: 612, URY: 792}
	Legal  = semantic.Rectangle{URX: 612, URY: 1008}
)

// PageEvent describes a page at the moment it is finished. Handlers may draw
// into the page through new content streams but must not keep the event.
type PageEvent struct {
	Number int // 1-based
	Size   semantic.Rectangle
	Page   *Page
	Doc    *Document
}

// EndPageHandler is invoked once per page when the page is finished.
type EndPageHandler interface {
	HandleEndPage(ev PageEvent) error
}

// EndPageFunc adapts a function to EndPageHandler.
type EndPageFunc func(ev PageEvent) error

// HandleEndPage calls f(ev).
func (f EndPageFunc) HandleEndPage(ev PageEvent) error { return f(ev) }

// Options configures a Document.
type Options struct {
	// PageSize is the default MediaBox; zero means A4.
	PageSize semantic.Rectangle
	// Language is the document language (BCP 47), also used for shaping.
	Language string
	// FullFonts embeds complete font programs instead of subsets.
	FullFonts bool
}

// Document collects pages, fonts, images and the structure tree of a PDF
// under construction. It is not safe for concurrent use.
type Document struct {
	opts     Options
	pages    []*Page
	handlers []EndPageHandler

	info      *semantic.DocumentInfo
	lang      string
	xmp       []byte
	uaXMP     bool
	viewer    *semantic.ViewerPreferences
	layers    []*semantic.OptionalContentGroup
	structure *semantic.StructureTree
	root      *semantic.StructureElement

	shaper    *fonts.Shaper
	instances map[*fonts.Program]*fonts.Instance
	fontNames map[*fonts.Program]string
	images    map[*semantic.XObject]string
	built     bool
}

// NewDocument returns an empty document.
func NewDocument(opts Options) *Document {
	if opts.PageSize == (semantic.Rectangle{}) {
		opts.PageSize = A4
	}
	return &Document{
		opts:      opts,
		lang:      opts.Language,
		shaper:    fonts.NewShaper(opts.Language),
		instances: make(map[*fonts.Program]*fonts.Instance),
		fontNames: make(map[*fonts.Program]string),
		images:    make(map[*semantic.XObject]string),
	}
}

// DefaultPageSize returns the MediaBox used by NewPage(zero).
func (d *Document) DefaultPageSize() semantic.Rectangle { return d.opts.PageSize }

// Shaper returns the document's text shaper.
func (d *Document) Shaper() *fonts.Shaper { return d.shaper }

// AddEndPageHandler registers h. Handlers run in registration order.
func (d *Document) AddEndPageHandler(h EndPageHandler) *Document {
	if h != nil {
		d.handlers = append(d.handlers, h)
	}
	return d
}

// SetInfo sets the document information dictionary.
func (d *Document) SetInfo(info *semantic.DocumentInfo) *Document {
	d.info = info
	return d
}

// Info returns the document information, allocating it on first use.
func (d *Document) Info() *semantic.DocumentInfo {
	if d.info == nil {
		d.info = &semantic.DocumentInfo{}
	}
	return d.info
}

// SetLanguage sets the catalog /Lang.
func (d *Document) SetLanguage(lang string) *Document {
	d.lang = lang
	return d
}

// Language returns the catalog language.
func (d *Document) Language() string { return d.lang }

// SetMetadata stores a caller-provided XMP packet.
func (d *Document) SetMetadata(xmp []byte) *Document {
	d.xmp = append([]byte(nil), xmp...)
	d.uaXMP = false
	return d
}

// AddUAMetadata generates an XMP packet from the document info at build time,
// declaring PDF/UA-1 conformance.
func (d *Document) AddUAMetadata() *Document {
	d.uaXMP = true
	d.xmp = nil
	return d
}

// SetViewerPreferences sets the catalog viewer preferences.
func (d *Document) SetViewerPreferences(vp *semantic.ViewerPreferences) *Document {
	d.viewer = vp
	return d
}

// SetTagged enables the structure tree with a Document root element.
func (d *Document) SetTagged() *Document {
	if d.structure == nil {
		d.root = &semantic.StructureElement{S: "Document"}
		d.structure = &semantic.StructureTree{K: []*semantic.StructureElement{d.root}}
	}
	return d
}

// Tagged reports whether the document carries a structure tree.
func (d *Document) Tagged() bool { return d.structure != nil }

// StructureRoot returns the Document element, or nil when untagged.
func (d *Document) StructureRoot() *semantic.StructureElement { return d.root }

// AddElement appends a structure element with the given role under parent,
// or under the Document element when parent is nil. It returns nil when the
// document is not tagged.
func (d *Document) AddElement(parent *semantic.StructureElement, role string) *semantic.StructureElement {
	if d.structure == nil {
		return nil
	}
	if parent == nil {
		parent = d.root
	}
	el := &semantic.StructureElement{S: role}
	parent.AddChild(el)
	return el
}

// InsertElement is AddElement placing the new element at index i of the
// parent's kids.
func (d *Document) InsertElement(parent *semantic.StructureElement, i int, role string) *semantic.StructureElement {
	if d.structure == nil {
		return nil
	}
	if parent == nil {
		parent = d.root
	}
	el := &semantic.StructureElement{S: role}
	parent.InsertChild(i, el)
	return el
}

// AddLayer registers an optional content group.
func (d *Document) AddLayer(name string, on bool, pageElement string) *semantic.OptionalContentGroup {
	ocg := &semantic.OptionalContentGroup{Name: name, On: on, PageElement: pageElement}
	d.layers = append(d.layers, ocg)
	return ocg
}

// Pages returns the pages created so far.
func (d *Document) Pages() []*Page { return d.pages }

// NewPage appends a page. A zero size uses the document default.
func (d *Document) NewPage(size semantic.Rectangle) *Page {
	if size == (semantic.Rectangle{}) {
		size = d.opts.PageSize
	}
	p := &Page{
		doc:    d,
		number: len(d.pages) + 1,
		page: &semantic.Page{
			Index:     len(d.pages),
			MediaBox:  size,
			Resources: semantic.NewResources(),
		},
	}
	p.main = newCanvas(p)
	p.streams = []*Canvas{p.main}
	if d.built {
		p.err = ErrClosed
	}
	d.pages = append(d.pages, p)
	return p
}

// instance returns the per-document font instance and its resource name.
func (d *Document) instance(p *fonts.Program) (*fonts.Instance, string) {
	inst, ok := d.instances[p]
	if !ok {
		inst = fonts.NewInstance(p)
		d.instances[p] = inst
		d.fontNames[p] = fmt.Sprintf("F%d", len(d.fontNames)+1)
	}
	return inst, d.fontNames[p]
}

func (d *Document) imageName(img *semantic.XObject) string {
	name, ok := d.images[img]
	if !ok {
		name = fmt.Sprintf("Im%d", len(d.images)+1)
		d.images[img] = name
	}
	return name
}

// Build finishes every open page, embeds the fonts and returns the semantic
// document. The Document cannot be used afterwards.
func (d *Document) Build() (*semantic.Document, error) {
	if d.built {
		return nil, ErrClosed
	}
	if len(d.pages) == 0 {
		return nil, ErrNoPages
	}
	for _, p := range d.pages {
		if err := p.Finish(); err != nil {
			return nil, err
		}
	}
	d.built = true

	progs := make([]*fonts.Program, 0, len(d.instances))
	for p := range d.instances {
		progs = append(progs, p)
	}
	sort.Slice(progs, func(i, j int) bool { return d.fontNames[progs[i]] < d.fontNames[progs[j]] })
	for _, p := range progs {
		if err := d.instances[p].Finish(!d.opts.FullFonts); err != nil {
			return nil, fmt.Errorf("embed font %s: %w", p.Name, err)
		}
	}

	doc := &semantic.Document{
		Pages:             make([]*semantic.Page, 0, len(d.pages)),
		Info:              d.info,
		Lang:              d.lang,
		Marked:            d.structure != nil,
		StructTree:        d.structure,
		ViewerPreferences: d.viewer,
		OptionalContent:   d.layers,
	}
	for _, p := range d.pages {
		doc.Pages = append(doc.Pages, p.semanticPage())
	}
	switch {
	case d.uaXMP:
		doc.Metadata = &semantic.XMPMetadata{Raw: uaMetadata(d.info, d.lang)}
	case len(d.xmp) > 0:
		doc.Metadata = &semantic.XMPMetadata{Raw: d.xmp}
	}
	return doc, nil
}
