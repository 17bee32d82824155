package writer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wudi/tagpdf/ir/raw"
	"github.com/wudi/tagpdf/ir/semantic"
)

type objectBuilder struct {
	doc    *semantic.Document
	cfg    Config
	table  *raw.Table
	errors []error

	fontRefs    map[*semantic.Font]raw.ObjectRef
	xobjectRefs map[*semantic.XObject]raw.ObjectRef
	ocgRefs     map[*semantic.OptionalContentGroup]raw.ObjectRef
	pageRefs    map[*semantic.Page]raw.ObjectRef
}

func newObjectBuilder(doc *semantic.Document, cfg Config) *objectBuilder {
	return &objectBuilder{
		doc:         doc,
		cfg:         cfg,
		table:       raw.NewTable(),
		fontRefs:    make(map[*semantic.Font]raw.ObjectRef),
		xobjectRefs: make(map[*semantic.XObject]raw.ObjectRef),
		ocgRefs:     make(map[*semantic.OptionalContentGroup]raw.ObjectRef),
		pageRefs:    make(map[*semantic.Page]raw.ObjectRef),
	}
}

func (b *objectBuilder) nextRef() raw.ObjectRef { return b.table.Alloc() }

// addStream compresses s and stores it under a fresh reference.
func (b *objectBuilder) addStream(s *raw.StreamObj) raw.ObjectRef {
	if err := compressStream(s, b.cfg.Compression); err != nil {
		b.errors = append(b.errors, err)
	}
	return b.table.Add(s)
}

// Build converts the document into indirect objects and returns the table
// with the catalog and (optional) info references.
func (b *objectBuilder) Build() (*raw.Table, raw.ObjectRef, *raw.ObjectRef, error) {
	if len(b.doc.Pages) == 0 {
		return nil, raw.ObjectRef{}, nil, fmt.Errorf("document has no pages")
	}
	catalogRef := b.nextRef()
	pagesRef := b.nextRef()
	for _, p := range b.doc.Pages {
		b.pageRefs[p] = b.nextRef()
	}

	var infoRef *raw.ObjectRef
	if d := b.infoDict(); d != nil {
		ref := b.table.Add(d)
		infoRef = &ref
	}

	// XMP stays uncompressed so that metadata-only tools can read it.
	var metadataRef *raw.ObjectRef
	if b.doc.Metadata != nil && len(b.doc.Metadata.Raw) > 0 {
		dict := raw.TypedDict("Metadata")
		dict.Set("Subtype", raw.Name("XML"))
		ref := b.table.Add(raw.NewStream(dict, b.doc.Metadata.Raw))
		metadataRef = &ref
	}

	for _, ocg := range b.doc.OptionalContent {
		b.ensureOCG(ocg)
	}

	structParents := b.structParentKeys()
	kids := raw.NewArray()
	for _, p := range b.doc.Pages {
		ref := b.pageRefs[p]
		kids.Append(raw.Ref(ref))
		b.table.Put(ref, b.pageDict(p, pagesRef, structParents))
	}
	pages := raw.TypedDict("Pages")
	pages.Set("Kids", kids)
	pages.Set("Count", raw.Int(int64(len(b.doc.Pages))))
	b.table.Put(pagesRef, pages)

	catalog := raw.TypedDict("Catalog")
	catalog.Set("Pages", raw.Ref(pagesRef))
	if b.doc.Lang != "" {
		catalog.Set("Lang", textString(b.doc.Lang))
	}
	if b.doc.Marked {
		mark := raw.Dict()
		mark.Set("Marked", raw.Bool(true))
		catalog.Set("MarkInfo", mark)
	}
	if metadataRef != nil {
		catalog.Set("Metadata", raw.Ref(*metadataRef))
	}
	if vp := b.doc.ViewerPreferences; vp != nil {
		prefs := raw.Dict()
		prefs.Set("DisplayDocTitle", raw.Bool(vp.DisplayDocTitle))
		catalog.Set("ViewerPreferences", prefs)
	}
	if oc := b.ocProperties(); oc != nil {
		catalog.Set("OCProperties", oc)
	}
	if root := b.buildStructureTree(structParents); root != nil {
		catalog.Set("StructTreeRoot", raw.Ref(*root))
	}
	b.table.Put(catalogRef, catalog)

	if len(b.errors) > 0 {
		return nil, raw.ObjectRef{}, nil, b.errors[0]
	}
	return b.table, catalogRef, infoRef, nil
}

func (b *objectBuilder) infoDict() *raw.DictObj {
	info := b.doc.Info
	if info == nil {
		return nil
	}
	d := raw.Dict()
	if info.Title != "" {
		d.Set("Title", textString(info.Title))
	}
	if info.Author != "" {
		d.Set("Author", textString(info.Author))
	}
	if info.Subject != "" {
		d.Set("Subject", textString(info.Subject))
	}
	if len(info.Keywords) > 0 {
		d.Set("Keywords", textString(strings.Join(info.Keywords, ", ")))
	}
	if info.Creator != "" {
		d.Set("Creator", textString(info.Creator))
	}
	if info.Producer != "" {
		d.Set("Producer", textString(info.Producer))
	}
	if !info.CreationDate.IsZero() {
		d.Set("CreationDate", raw.Text(pdfDate(info.CreationDate)))
	}
	if !info.ModDate.IsZero() {
		d.Set("ModDate", raw.Text(pdfDate(info.ModDate)))
	}
	if d.Len() == 0 {
		return nil
	}
	return d
}

func (b *objectBuilder) pageDict(p *semantic.Page, parent raw.ObjectRef, structParents map[*semantic.Page]int) *raw.DictObj {
	d := raw.TypedDict("Page")
	d.Set("Parent", raw.Ref(parent))
	d.Set("MediaBox", rectArray(p.MediaBox))
	d.Set("Resources", b.resourcesDict(p.Resources))
	if p.Tabs != "" {
		d.Set("Tabs", raw.Name(p.Tabs))
	}
	if key, ok := structParents[p]; ok {
		d.Set("StructParents", raw.Int(int64(key)))
	}
	var contents []raw.ObjectRef
	for _, cs := range p.Contents {
		data := serializeContentStream(cs)
		if len(data) == 0 {
			continue
		}
		contents = append(contents, b.addStream(raw.NewStream(raw.Dict(), data)))
	}
	switch len(contents) {
	case 0:
	case 1:
		d.Set("Contents", raw.Ref(contents[0]))
	default:
		arr := raw.NewArray()
		for _, ref := range contents {
			arr.Append(raw.Ref(ref))
		}
		d.Set("Contents", arr)
	}
	return d
}

func (b *objectBuilder) resourcesDict(res *semantic.Resources) *raw.DictObj {
	d := raw.Dict()
	if res == nil {
		return d
	}
	if len(res.Fonts) > 0 {
		fonts := raw.Dict()
		for _, name := range sortedKeys(res.Fonts) {
			fonts.Set(name, raw.Ref(b.ensureFont(res.Fonts[name])))
		}
		d.Set("Font", fonts)
	}
	if len(res.XObjects) > 0 {
		xobjects := raw.Dict()
		for _, name := range sortedKeys(res.XObjects) {
			xobjects.Set(name, raw.Ref(b.ensureXObject(res.XObjects[name])))
		}
		d.Set("XObject", xobjects)
	}
	if len(res.ExtGStates) > 0 {
		states := raw.Dict()
		for name, gs := range res.ExtGStates {
			states.Set(name, extGStateDict(gs))
		}
		d.Set("ExtGState", states)
	}
	if len(res.Properties) > 0 {
		props := raw.Dict()
		for _, name := range sortedKeys(res.Properties) {
			props.Set(name, raw.Ref(b.ensureOCG(res.Properties[name])))
		}
		d.Set("Properties", props)
	}
	return d
}

func extGStateDict(gs *semantic.ExtGState) *raw.DictObj {
	d := raw.TypedDict("ExtGState")
	if gs.FillAlpha != nil {
		d.Set("ca", raw.Float(*gs.FillAlpha))
	}
	if gs.StrokeAlpha != nil {
		d.Set("CA", raw.Float(*gs.StrokeAlpha))
	}
	if gs.BlendMode != "" {
		d.Set("BM", raw.Name(gs.BlendMode))
	}
	return d
}

func (b *objectBuilder) ensureOCG(ocg *semantic.OptionalContentGroup) raw.ObjectRef {
	if ref, ok := b.ocgRefs[ocg]; ok {
		return ref
	}
	d := raw.TypedDict("OCG")
	d.Set("Name", textString(ocg.Name))
	if ocg.Intent != "" {
		d.Set("Intent", raw.Name(ocg.Intent))
	}
	if ocg.PageElement != "" {
		pe := raw.Dict()
		pe.Set("Subtype", raw.Name(ocg.PageElement))
		usage := raw.Dict()
		usage.Set("PageElement", pe)
		d.Set("Usage", usage)
	}
	ref := b.table.Add(d)
	b.ocgRefs[ocg] = ref
	return ref
}

// ocProperties builds the catalog /OCProperties entry. Groups referenced by
// pages but missing from the document list are included as well.
func (b *objectBuilder) ocProperties() *raw.DictObj {
	if len(b.ocgRefs) == 0 {
		return nil
	}
	groups := append([]*semantic.OptionalContentGroup(nil), b.doc.OptionalContent...)
	seen := make(map[*semantic.OptionalContentGroup]bool, len(groups))
	for _, g := range groups {
		seen[g] = true
	}
	for _, p := range b.doc.Pages {
		if p.Resources == nil {
			continue
		}
		for _, name := range sortedKeys(p.Resources.Properties) {
			g := p.Resources.Properties[name]
			if !seen[g] {
				seen[g] = true
				groups = append(groups, g)
			}
		}
	}
	all, on, off, order := raw.NewArray(), raw.NewArray(), raw.NewArray(), raw.NewArray()
	for _, g := range groups {
		ref := raw.Ref(b.ocgRefs[g])
		all.Append(ref)
		order.Append(ref)
		if g.On {
			on.Append(ref)
		} else {
			off.Append(ref)
		}
	}
	config := raw.Dict()
	config.Set("Name", raw.Text("Default"))
	config.Set("BaseState", raw.Name("ON"))
	config.Set("Order", order)
	if on.Len() > 0 {
		config.Set("ON", on)
	}
	if off.Len() > 0 {
		config.Set("OFF", off)
	}
	oc := raw.Dict()
	oc.Set("OCGs", all)
	oc.Set("D", config)
	return oc
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (b *objectBuilder) ensureFont(font *semantic.Font) raw.ObjectRef {
	if ref, ok := b.fontRefs[font]; ok {
		return ref
	}
	ref := b.nextRef()
	b.fontRefs[font] = ref
	fontDict := raw.TypedDict("Font")
	subtype := font.Subtype
	if subtype == "" {
		subtype = "Type0"
	}
	fontDict.Set("Subtype", raw.Name(subtype))
	fontDict.Set("BaseFont", raw.Name(font.BaseFont))
	encoding := font.Encoding
	if encoding == "" {
		encoding = "Identity-H"
	}
	fontDict.Set("Encoding", raw.Name(encoding))

	if desc := font.DescendantFont; desc != nil {
		descDict := raw.TypedDict("Font")
		descSubtype := desc.Subtype
		if descSubtype == "" {
			descSubtype = "CIDFontType2"
		}
		descDict.Set("Subtype", raw.Name(descSubtype))
		descBase := desc.BaseFont
		if descBase == "" {
			descBase = font.BaseFont
		}
		descDict.Set("BaseFont", raw.Name(descBase))
		csi := raw.Dict()
		reg, ord := desc.CIDSystemInfo.Registry, desc.CIDSystemInfo.Ordering
		if reg == "" {
			reg = "Adobe"
		}
		if ord == "" {
			ord = "Identity"
		}
		csi.Set("Registry", raw.Text(reg))
		csi.Set("Ordering", raw.Text(ord))
		csi.Set("Supplement", raw.Int(int64(desc.CIDSystemInfo.Supplement)))
		descDict.Set("CIDSystemInfo", csi)
		dw := desc.DW
		if dw <= 0 {
			dw = 1000
		}
		descDict.Set("DW", raw.Int(int64(dw)))
		if len(desc.W) > 0 {
			descDict.Set("W", encodeCIDWidths(desc.W))
		}
		if descSubtype == "CIDFontType2" {
			name := desc.CIDToGIDMapName
			if name == "" {
				name = "Identity"
			}
			descDict.Set("CIDToGIDMap", raw.Name(name))
		}
		if fd := b.addFontDescriptor(desc.Descriptor); fd != nil {
			descDict.Set("FontDescriptor", raw.Ref(*fd))
		}
		fontDict.Set("DescendantFonts", raw.NewArray(raw.Ref(b.table.Add(descDict))))
	}
	if cmap := buildToUnicodeCMap(font); len(cmap) > 0 {
		fontDict.Set("ToUnicode", raw.Ref(b.addStream(raw.NewStream(raw.Dict(), cmap))))
	}
	b.table.Put(ref, fontDict)
	return ref
}

func (b *objectBuilder) addFontDescriptor(fd *semantic.FontDescriptor) *raw.ObjectRef {
	if fd == nil {
		return nil
	}
	d := raw.TypedDict("FontDescriptor")
	name := fd.FontName
	if name == "" {
		name = "CustomFont"
	}
	d.Set("FontName", raw.Name(name))
	flags := fd.Flags
	if flags == 0 {
		flags = 32
	}
	d.Set("Flags", raw.Int(int64(flags)))
	d.Set("ItalicAngle", raw.Float(fd.ItalicAngle))
	d.Set("Ascent", raw.Float(fd.Ascent))
	d.Set("Descent", raw.Float(fd.Descent))
	d.Set("CapHeight", raw.Float(fd.CapHeight))
	stem := fd.StemV
	if stem == 0 {
		stem = 80
	}
	d.Set("StemV", raw.Int(int64(stem)))
	d.Set("FontBBox", raw.Floats(fd.FontBBox[0], fd.FontBBox[1], fd.FontBBox[2], fd.FontBBox[3]))
	if len(fd.FontFile) > 0 {
		streamDict := raw.Dict()
		key := fd.FontFileType
		if key == "" {
			key = "FontFile2"
		}
		if key == "FontFile2" {
			streamDict.Set("Length1", raw.Int(int64(len(fd.FontFile))))
		}
		if fd.FontFileSubtype != "" {
			streamDict.Set("Subtype", raw.Name(fd.FontFileSubtype))
		}
		d.Set(key, raw.Ref(b.addStream(raw.NewStream(streamDict, fd.FontFile))))
	}
	ref := b.table.Add(d)
	return &ref
}

func (b *objectBuilder) ensureXObject(xo *semantic.XObject) raw.ObjectRef {
	if ref, ok := b.xobjectRefs[xo]; ok {
		return ref
	}
	dict := raw.TypedDict("XObject")
	sub := xo.Subtype
	if sub == "" {
		sub = "Image"
	}
	dict.Set("Subtype", raw.Name(sub))
	dict.Set("Width", raw.Int(int64(xo.Width)))
	dict.Set("Height", raw.Int(int64(xo.Height)))
	color := xo.ColorSpace
	if color == "" {
		color = "DeviceRGB"
	}
	dict.Set("ColorSpace", raw.Name(color))
	bpc := xo.BitsPerComponent
	if bpc == 0 {
		bpc = 8
	}
	dict.Set("BitsPerComponent", raw.Int(int64(bpc)))
	if xo.Filter != "" {
		dict.Set("Filter", raw.Name(xo.Filter))
	}
	if len(xo.Decode) > 0 {
		dict.Set("Decode", raw.Floats(xo.Decode...))
	}
	if xo.Interpolate {
		dict.Set("Interpolate", raw.Bool(true))
	}
	if xo.SMask != nil {
		dict.Set("SMask", raw.Ref(b.ensureXObject(xo.SMask)))
	}
	ref := b.addStream(raw.NewStream(dict, xo.Data))
	b.xobjectRefs[xo] = ref
	return ref
}

// structParentKeys assigns a ParentTree key to each page that carries marked
// content referenced from the structure tree.
func (b *objectBuilder) structParentKeys() map[*semantic.Page]int {
	keys := make(map[*semantic.Page]int)
	used := make(map[*semantic.Page]bool)
	b.doc.StructTree.Walk(func(e *semantic.StructureElement) {
		for _, k := range e.K {
			if k.IsMCID() {
				pg := k.Pg
				if pg == nil {
					pg = e.Pg
				}
				if pg != nil {
					used[pg] = true
				}
			}
		}
	})
	next := 0
	for _, p := range b.doc.Pages {
		if used[p] {
			keys[p] = next
			next++
		}
	}
	return keys
}

func (b *objectBuilder) buildStructureTree(structParents map[*semantic.Page]int) *raw.ObjectRef {
	tree := b.doc.StructTree
	if tree == nil {
		return nil
	}
	rootRef := b.nextRef()
	parentTree := make(map[int]map[int]raw.ObjectRef)

	var buildElem func(elem *semantic.StructureElement, parent raw.ObjectRef) raw.ObjectRef
	buildElem = func(elem *semantic.StructureElement, parent raw.ObjectRef) raw.ObjectRef {
		ref := b.nextRef()
		dict := raw.TypedDict("StructElem")
		dict.Set("S", raw.Name(elem.S))
		dict.Set("P", raw.Ref(parent))
		if elem.Title != "" {
			dict.Set("T", textString(elem.Title))
		}
		if elem.Lang != "" {
			dict.Set("Lang", textString(elem.Lang))
		}
		if elem.Alt != "" {
			dict.Set("Alt", textString(elem.Alt))
		}
		if elem.ActualText != "" {
			dict.Set("ActualText", textString(elem.ActualText))
		}
		if elem.Pg != nil {
			if pg, ok := b.pageRefs[elem.Pg]; ok {
				dict.Set("Pg", raw.Ref(pg))
			}
		}
		kArr := raw.NewArray()
		for _, kid := range elem.K {
			if kid.Element != nil {
				kArr.Append(raw.Ref(buildElem(kid.Element, ref)))
				continue
			}
			pg := kid.Pg
			if pg == nil {
				pg = elem.Pg
			}
			pgRef, ok := b.pageRefs[pg]
			if !ok {
				continue
			}
			if pg == elem.Pg {
				kArr.Append(raw.Int(int64(kid.MCID)))
			} else {
				mcr := raw.TypedDict("MCR")
				mcr.Set("Pg", raw.Ref(pgRef))
				mcr.Set("MCID", raw.Int(int64(kid.MCID)))
				kArr.Append(mcr)
			}
			key := structParents[pg]
			if _, ok := parentTree[key]; !ok {
				parentTree[key] = make(map[int]raw.ObjectRef)
			}
			parentTree[key][kid.MCID] = ref
		}
		if kArr.Len() == 1 {
			dict.Set("K", kArr.Items[0])
		} else if kArr.Len() > 1 {
			dict.Set("K", kArr)
		}
		b.table.Put(ref, dict)
		return ref
	}

	kids := raw.NewArray()
	for _, kid := range tree.K {
		kids.Append(raw.Ref(buildElem(kid, rootRef)))
	}
	rootDict := raw.TypedDict("StructTreeRoot")
	if kids.Len() == 1 {
		rootDict.Set("K", kids.Items[0])
	} else if kids.Len() > 1 {
		rootDict.Set("K", kids)
	}
	if len(tree.RoleMap) > 0 {
		roleDict := raw.Dict()
		for k, v := range tree.RoleMap {
			roleDict.Set(k, raw.Name(v))
		}
		rootDict.Set("RoleMap", roleDict)
	}
	nums := raw.NewArray()
	for key := 0; key < len(structParents); key++ {
		nums.Append(raw.Int(int64(key)))
		arr := raw.NewArray()
		maxMCID := -1
		for mcid := range parentTree[key] {
			if mcid > maxMCID {
				maxMCID = mcid
			}
		}
		for i := 0; i <= maxMCID; i++ {
			if ref, ok := parentTree[key][i]; ok {
				arr.Append(raw.Ref(ref))
			} else {
				arr.Append(raw.NullObj{})
			}
		}
		nums.Append(raw.Ref(b.table.Add(arr)))
	}
	ptDict := raw.Dict()
	ptDict.Set("Nums", nums)
	rootDict.Set("ParentTree", raw.Ref(b.table.Add(ptDict)))
	rootDict.Set("ParentTreeNextKey", raw.Int(int64(len(structParents))))
	b.table.Put(rootRef, rootDict)
	return &rootRef
}
