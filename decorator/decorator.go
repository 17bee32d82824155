// Package decorator draws the branding of a generated document (header
// images, the title and the bottom rule) when each page is finished.
package decorator

import (
	"errors"

	"github.com/wudi/tagpdf/assets"
	"github.com/wudi/tagpdf/builder"
	"github.com/wudi/tagpdf/fonts"
	"github.com/wudi/tagpdf/options"
)

// Drawing constants, in points unless noted.
const (
	TitleFontSize = 28
	TitleX        = 42
	TitleDrop     = 150 // distance of the title baseline below the page top

	RuleY      = 36
	RuleStartX = 36
	RuleEndX   = 559

	LayerName = "main layer"
)

// Title colour in DeviceRGB.
var titleColor = [3]float64{85.0 / 255, 60.0 / 255, 116.0 / 255}

// Rule colour in DeviceCMYK.
var ruleColor = [4]float64{1, 0.25, 0, 0.39}

var (
	headerArtifact = builder.Artifact{Type: "Background", Alt: "Background header image"}
	footerArtifact = builder.Artifact{Type: "Pagination", Subtype: "Footer"}
)

// ErrMissingAsset is returned when a flag needs an image or font the state
// does not carry.
var ErrMissingAsset = errors.New("decorator: missing asset")

// State is everything the decorator draws from. It is built once per
// conversion and never modified.
type State struct {
	Flags          options.Flags
	Title          string
	HeaderPageOne  *assets.ImageAsset
	HeaderAllPages *assets.ImageAsset
	TitleFont      *fonts.Program
}

// Decorator implements builder.EndPageHandler.
type Decorator struct {
	state State
}

var _ builder.EndPageHandler = (*Decorator)(nil)

func New(state State) *Decorator {
	return &Decorator{state: state}
}

// State returns a copy of the captured state.
func (d *Decorator) State() State { return d.state }

// HandleEndPage paints the decoration of ev.Page into a content stream placed
// before the page body. Every drawing is bracketed by q/Q so the body starts
// from the default graphics state.
func (d *Decorator) HandleEndPage(ev builder.PageEvent) error {
	canvas := ev.Page.NewContentStreamBefore()
	defer canvas.Release()

	s := d.state
	top := ev.Size.URY
	width := ev.Size.URX - ev.Size.LLX

	if ev.Number == 1 {
		if s.Flags.Has(options.AddHeaderPageOne) {
			if err := drawHeader(ev, canvas, s.HeaderPageOne, top, width); err != nil {
				return err
			}
		}
		if s.Flags.Has(options.DisplayTitle) && s.Title != "" {
			if err := d.drawTitle(ev, canvas, top); err != nil {
				return err
			}
		}
	} else if s.Flags.Has(options.AddHeaderAllPages) {
		if err := drawHeader(ev, canvas, s.HeaderAllPages, top, width); err != nil {
			return err
		}
	}

	if s.Flags.Has(options.AddLineBottomEachPage) {
		canvas.SaveState().
			BeginArtifact(footerArtifact).
			SetStrokeColorCMYK(ruleColor[0], ruleColor[1], ruleColor[2], ruleColor[3]).
			MoveTo(RuleStartX, RuleY).
			LineTo(RuleEndX, RuleY).
			ClosePathStroke().
			EndMarkedContent().
			RestoreState()
	}
	return canvas.Err()
}

// drawHeader places img flush with the top-left corner at the full page
// width, inside a layer and marked as a background artifact.
func drawHeader(ev builder.PageEvent, canvas *builder.Canvas, img *assets.ImageAsset, top, width float64) error {
	if img == nil || img.Image == nil {
		return ErrMissingAsset
	}
	layer := ev.Doc.AddLayer(LayerName, true, "L")
	canvas.SaveState().
		SetFillOpacity(1).
		BeginLayer(layer).
		BeginArtifact(headerArtifact).
		AddImage(img.Image, ev.Size.LLX, top-img.HeightPoints(), width).
		EndMarkedContent().
		EndLayer().
		RestoreState()
	return canvas.Err()
}

// drawTitle shows the title on the first page as the content of a Title
// structure element, the first kid of the document root.
func (d *Decorator) drawTitle(ev builder.PageEvent, canvas *builder.Canvas, top float64) error {
	if d.state.TitleFont == nil {
		return ErrMissingAsset
	}
	el := ev.Doc.InsertElement(nil, 0, "Title")
	canvas.SaveState().
		BeginText().
		SetFillColorRGB(titleColor[0], titleColor[1], titleColor[2]).
		SetFont(d.state.TitleFont, TitleFontSize).
		MoveText(TitleX, top-TitleDrop)
	if el != nil {
		canvas.OpenTag(el)
		canvas.ShowText(d.state.Title).CloseTag()
	} else {
		canvas.ShowText(d.state.Title)
	}
	canvas.EndText().RestoreState()
	return canvas.Err()
}
