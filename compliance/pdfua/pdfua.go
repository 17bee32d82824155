// Package pdfua checks the machine-verifiable parts of PDF/UA-1 on a
// semantic document.
package pdfua

import (
	"bytes"
	"strconv"

	"github.com/wudi/tagpdf/compliance"
	"github.com/wudi/tagpdf/ir/semantic"
)

type Level int

const (
	PDFUA1 Level = iota
)

func (l Level) String() string {
	switch l {
	case PDFUA1:
		return "PDF/UA-1"
	default:
		return "Unknown"
	}
}

type Enforcer interface {
	compliance.Validator
	Enforce(ctx compliance.Context, doc *semantic.Document, level Level) error
}

type enforcerImpl struct{}

func NewEnforcer() Enforcer { return &enforcerImpl{} }

// Enforce fills in the document-level entries PDF/UA requires when they are
// missing. Content is never rewritten.
func (e *enforcerImpl) Enforce(ctx compliance.Context, doc *semantic.Document, level Level) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc.Marked = true
	if doc.Info == nil {
		doc.Info = &semantic.DocumentInfo{}
	}
	if doc.Info.Title == "" {
		doc.Info.Title = "Untitled"
	}
	if doc.Lang == "" {
		doc.Lang = "en"
	}
	if doc.ViewerPreferences == nil {
		doc.ViewerPreferences = &semantic.ViewerPreferences{}
	}
	doc.ViewerPreferences.DisplayDocTitle = true
	if doc.StructTree == nil {
		doc.StructTree = &semantic.StructureTree{K: []*semantic.StructureElement{{S: "Document"}}}
	}
	return nil
}

func (e *enforcerImpl) Validate(ctx compliance.Context, doc *semantic.Document) (*compliance.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report := &compliance.Report{
		Standard:   PDFUA1.String(),
		Violations: []compliance.Violation{},
	}
	add := func(code, desc, loc string) {
		report.Violations = append(report.Violations, compliance.Violation{Code: code, Description: desc, Location: loc})
	}

	// 1. Tagged PDF (Marked=true and StructTree exists)
	if !doc.Marked {
		add("UA001", "Document must be marked (MarkInfo dictionary with Marked=true)", "Catalog")
	}
	if doc.StructTree == nil {
		add("UA002", "Document must be tagged (StructTree missing)", "Catalog")
	}

	// 2. Title required
	if doc.Info == nil || doc.Info.Title == "" {
		add("UA003", "Document title is required", "Info Dictionary")
	}

	// 3. Language required
	if doc.Lang == "" {
		add("UA004", "Document language is required", "Catalog")
	}

	// 4. Fonts must be embedded
	visitedFonts := make(map[*semantic.Font]bool)
	for i, p := range doc.Pages {
		if p.Resources == nil {
			continue
		}
		for name, font := range p.Resources.Fonts {
			if visitedFonts[font] {
				continue
			}
			visitedFonts[font] = true
			if !isFontEmbedded(font) {
				add("UA005", "Font must be embedded: "+font.BaseFont, "Page "+strconv.Itoa(i+1)+" Resource "+name)
			}
		}
	}

	// 5. Structure: Figure alt text, table and list nesting
	if doc.StructTree != nil {
		checkStructure(doc.StructTree.K, report)
	}

	// 6. Title shown in the window title bar
	if doc.ViewerPreferences == nil || !doc.ViewerPreferences.DisplayDocTitle {
		add("UA009", "ViewerPreferences must set DisplayDocTitle", "Catalog")
	}

	// 7. XMP identification
	if doc.Metadata == nil || !bytes.Contains(doc.Metadata.Raw, []byte("pdfuaid:part")) {
		add("UA010", "XMP metadata must carry the PDF/UA identifier", "Catalog Metadata")
	}

	// 8. Every shown string is either tagged or an artifact
	if doc.Marked {
		for i, p := range doc.Pages {
			if n := untaggedText(p); n > 0 {
				add("UA011", strconv.Itoa(n)+" text operation(s) outside tagged content or artifacts", "Page "+strconv.Itoa(i+1))
			}
		}
	}

	report.Compliant = len(report.Violations) == 0
	return report, nil
}

var allowedChildren = map[string]map[string]bool{
	"Table": {"TR": true, "THead": true, "TBody": true, "TFoot": true, "Caption": true},
	"THead": {"TR": true},
	"TBody": {"TR": true},
	"TFoot": {"TR": true},
	"TR":    {"TH": true, "TD": true},
	"L":     {"LI": true, "L": true, "Caption": true},
	"LI":    {"Lbl": true, "LBody": true},
}

func checkStructure(elements []*semantic.StructureElement, report *compliance.Report) {
	for _, elem := range elements {
		if elem == nil {
			continue
		}
		if elem.S == "Figure" && elem.Alt == "" {
			report.Violations = append(report.Violations, compliance.Violation{
				Code:        "UA006",
				Description: "Figure missing Alternative Text",
				Location:    "StructElem " + elem.S,
			})
		}

		var children []*semantic.StructureElement
		for _, item := range elem.K {
			if item.Element != nil {
				children = append(children, item.Element)
			}
		}
		if allowed, ok := allowedChildren[elem.S]; ok {
			for _, child := range children {
				if allowed[child.S] {
					continue
				}
				code := "UA007"
				if elem.S == "L" || elem.S == "LI" {
					code = "UA008"
				}
				report.Violations = append(report.Violations, compliance.Violation{
					Code:        code,
					Description: child.S + " is not a valid child of " + elem.S,
					Location:    "StructElem " + elem.S,
				})
			}
		}
		checkStructure(children, report)
	}
}

// untaggedText counts text-showing operators that are neither inside a
// marked-content sequence with an MCID nor inside an artifact.
func untaggedText(p *semantic.Page) int {
	count := 0
	for _, cs := range p.Contents {
		// each entry records whether the sequence covers its content
		var stack []bool
		covered := func() bool {
			for _, c := range stack {
				if c {
					return true
				}
			}
			return false
		}
		for _, op := range cs.Operations {
			switch op.Operator {
			case "BMC":
				stack = append(stack, isArtifact(op))
			case "BDC":
				stack = append(stack, isArtifact(op) || hasMCID(op))
			case "EMC":
				if len(stack) > 0 {
					stack = stack[:len(stack)-1]
				}
			case "Tj", "TJ", "'", "\"":
				if !covered() {
					count++
				}
			}
		}
	}
	return count
}

func isArtifact(op semantic.Operation) bool {
	if len(op.Operands) == 0 {
		return false
	}
	n, ok := op.Operands[0].(semantic.NameOperand)
	return ok && n.Value == "Artifact"
}

func hasMCID(op semantic.Operation) bool {
	if len(op.Operands) < 2 {
		return false
	}
	d, ok := op.Operands[1].(semantic.DictOperand)
	if !ok {
		return false
	}
	_, ok = d.Values["MCID"]
	return ok
}

func isFontEmbedded(f *semantic.Font) bool {
	if f == nil {
		return false
	}
	if f.Subtype == "Type0" && f.DescendantFont != nil {
		if f.DescendantFont.Descriptor != nil && len(f.DescendantFont.Descriptor.FontFile) > 0 {
			return true
		}
	}
	return false
}
