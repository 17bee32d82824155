package builder

import (
	"errors"

	"github.com/wudi/tagpdf/ir/semantic"
)

// Page is a page under construction. Its content is an ordered list of
// content streams; the main stream is created with the page and further
// streams can be placed before or after it.
type Page struct {
	doc      *Document
	page     *semantic.Page
	number   int
	main     *Canvas
	streams  []*Canvas
	mcid     int
	finished bool
	closed   bool
	err      error
}

// Number returns the 1-based page number.
func (p *Page) Number() int { return p.number }

// Size returns the page MediaBox.
func (p *Page) Size() semantic.Rectangle { return p.page.MediaBox }

// Document returns the owning document.
func (p *Page) Document() *Document { return p.doc }

// Canvas returns the canvas of the main content stream.
func (p *Page) Canvas() *Canvas { return p.main }

// Finished reports whether Finish has run.
func (p *Page) Finished() bool { return p.finished }

// NewContentStreamBefore returns a canvas on a new stream painted before all
// existing streams of the page.
func (p *Page) NewContentStreamBefore() *Canvas {
	c := newCanvas(p)
	p.streams = append([]*Canvas{c}, p.streams...)
	return c
}

// NewContentStreamAfter returns a canvas on a new stream painted after all
// existing streams of the page.
func (p *Page) NewContentStreamAfter() *Canvas {
	c := newCanvas(p)
	p.streams = append(p.streams, c)
	return c
}

func (p *Page) nextMCID() int {
	id := p.mcid
	p.mcid++
	return id
}

// Finish closes the main canvas and fires the document's end-of-page
// handlers. It runs at most once; later calls return the first result.
func (p *Page) Finish() error {
	if p.finished {
		return p.err
	}
	p.finished = true
	if p.err != nil {
		return p.err
	}
	p.main.Release()
	if err := p.main.Err(); err != nil {
		p.err = err
		return err
	}
	ev := PageEvent{Number: p.number, Size: p.page.MediaBox, Page: p, Doc: p.doc}
	for _, h := range p.doc.handlers {
		if err := h.HandleEndPage(ev); err != nil {
			p.err = err
			return err
		}
	}
	var errs []error
	for _, c := range p.streams {
		c.Release()
		if err := c.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	p.closed = true
	p.err = errors.Join(errs...)
	return p.err
}

func (p *Page) semanticPage() *semantic.Page {
	sp := p.page
	sp.Contents = sp.Contents[:0]
	for _, c := range p.streams {
		if len(c.ops) == 0 {
			continue
		}
		sp.Contents = append(sp.Contents, semantic.ContentStream{Operations: c.ops})
	}
	if p.doc.Tagged() {
		sp.Tabs = "S"
	}
	return sp
}
