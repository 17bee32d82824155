// Package semantic is the document model the builder produces and the writer
// serializes: pages, content streams, resources, fonts, images and the
// logical structure.
package semantic

import "time"

// Document is the semantic representation of a PDF.
type Document struct {
	Pages             []*Page
	Info              *DocumentInfo
	Metadata          *XMPMetadata
	Lang              string
	Marked            bool
	StructTree        *StructureTree
	ViewerPreferences *ViewerPreferences
	OptionalContent   []*OptionalContentGroup
}

// Page models a single PDF page.
type Page struct {
	Index     int
	MediaBox  Rectangle
	Resources *Resources
	Contents  []ContentStream
	// Tabs is the annotation tab order; PDF/UA requires /S when tagged.
	Tabs string
}

// Width returns the MediaBox width.
func (p *Page) Width() float64 { return p.MediaBox.URX - p.MediaBox.LLX }

// Height returns the MediaBox height.
func (p *Page) Height() float64 { return p.MediaBox.URY - p.MediaBox.LLY }

// ContentStream is a sequence of operations on a page.
type ContentStream struct {
	Operations []Operation
}

// Operation represents a PDF operator and operands.
type Operation struct {
	Operator string
	Operands []Operand
}

// Operand is a type-safe operand value.
type Operand interface {
	operand()
	Type() string
}

type NumberOperand struct{ Value float64 }

func (NumberOperand) operand()     {}
func (NumberOperand) Type() string { return "number" }

type NameOperand struct{ Value string }

func (NameOperand) operand()     {}
func (NameOperand) Type() string { return "name" }

type StringOperand struct {
	Value []byte
	Hex   bool
}

func (StringOperand) operand()     {}
func (StringOperand) Type() string { return "string" }

type ArrayOperand struct{ Values []Operand }

func (ArrayOperand) operand()     {}
func (ArrayOperand) Type() string { return "array" }

type DictOperand struct{ Values map[string]Operand }

func (DictOperand) operand()     {}
func (DictOperand) Type() string { return "dict" }

// Resources holds the named resources of a page.
type Resources struct {
	Fonts      map[string]*Font
	ExtGStates map[string]*ExtGState
	XObjects   map[string]*XObject
	Properties map[string]*OptionalContentGroup
}

// NewResources returns a Resources value with every map allocated.
func NewResources() *Resources {
	return &Resources{
		Fonts:      make(map[string]*Font),
		ExtGStates: make(map[string]*ExtGState),
		XObjects:   make(map[string]*XObject),
		Properties: make(map[string]*OptionalContentGroup),
	}
}

// Font represents a font resource. Only composite (Type0) fonts are produced.
type Font struct {
	Subtype        string // Type0
	BaseFont       string
	Encoding       string // Identity-H
	ToUnicode      map[int][]rune
	DescendantFont *CIDFont
}

// CIDSystemInfo describes the registry/ordering of a CID font.
type CIDSystemInfo struct {
	Registry   string
	Ordering   string
	Supplement int
}

// CIDFont describes a descendant font for Type0 fonts.
type CIDFont struct {
	Subtype         string // CIDFontType2
	BaseFont        string
	CIDSystemInfo   CIDSystemInfo
	DW              int
	W               map[int]int // CID -> width
	CIDToGIDMapName string
	Descriptor      *FontDescriptor
}

// FontDescriptor carries metrics and font file embedding details.
type FontDescriptor struct {
	FontName     string
	Flags        int
	ItalicAngle  float64
	Ascent       float64
	Descent      float64
	CapHeight    float64
	StemV        int
	FontBBox     [4]float64
	FontFile     []byte
	FontFileType string // FontFile2 (TrueType) or FontFile3
	// FontFileSubtype is the /Subtype of a FontFile3 stream (OpenType).
	FontFileSubtype string
}

// ExtGState captures graphics state parameters.
type ExtGState struct {
	FillAlpha   *float64
	StrokeAlpha *float64
	BlendMode   string
}

// XObject describes an image XObject.
type XObject struct {
	Subtype          string // Image
	Width            int
	Height           int
	ColorSpace       string // DeviceRGB, DeviceGray, DeviceCMYK
	BitsPerComponent int
	Data             []byte
	Filter           string // DCTDecode for pass-through JPEG, empty to let the writer compress
	Decode           []float64
	Interpolate      bool
	SMask            *XObject
}

// Image is an alias for XObject for image convenience APIs.
type Image = XObject

// Rectangle represents a PDF rectangle.
type Rectangle struct {
	LLX, LLY, URX, URY float64
}

// DocumentInfo models /Info dictionary values.
type DocumentInfo struct {
	Title        string
	Author       string
	Subject      string
	Creator      string
	Producer     string
	Keywords     []string
	CreationDate time.Time
	ModDate      time.Time
}

type XMPMetadata struct {
	Raw []byte
}

// ViewerPreferences models the catalog /ViewerPreferences dictionary.
type ViewerPreferences struct {
	DisplayDocTitle bool
}

// OptionalContentGroup is a layer. On controls its state in the default
// configuration.
type OptionalContentGroup struct {
	Name   string
	Intent string
	On     bool
	// PageElement is the /Usage /PageElement subtype: HF, FG, BG or L.
	PageElement string
}
