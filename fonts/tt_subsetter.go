package fonts

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

// ErrMalformedFont is returned when a table directory cannot be read.
var ErrMalformedFont = errors.New("malformed font file")

// SubsetTrueType removes the outlines of unused glyphs from a TrueType font.
// Glyph IDs are preserved so Identity CID-to-GID mapping stays valid; only
// outline and metric tables are rewritten. Fonts without glyf
// outlines are returned unchanged.
func SubsetTrueType(data []byte, usedGIDs map[int]bool) ([]byte, error) {
	p := &ttParser{data: data}
	if err := p.parseDirectory(); err != nil {
		return nil, err
	}
	for _, tag := range []string{"glyf", "loca", "head", "maxp", "hmtx", "hhea"} {
		if !p.hasTable(tag) {
			return data, nil
		}
	}
	head, err := p.table("head")
	if err != nil {
		return nil, err
	}
	maxp, err := p.table("maxp")
	if err != nil {
		return nil, err
	}
	hhea, err := p.table("hhea")
	if err != nil {
		return nil, err
	}
	if len(head) < 54 || len(maxp) < 6 || len(hhea) < 36 {
		return nil, fmt.Errorf("%w: short head/maxp/hhea", ErrMalformedFont)
	}
	locFormat := int16(binary.BigEndian.Uint16(head[50:52]))
	numGlyphs := int(binary.BigEndian.Uint16(maxp[4:6]))

	closure := map[int]bool{0: true}
	for gid := range usedGIDs {
		if gid < numGlyphs {
			closure[gid] = true
		}
	}
	if err := p.componentClosure(closure, numGlyphs, locFormat); err != nil {
		return nil, err
	}
	newNumGlyphs := 0
	for gid := range closure {
		if gid+1 > newNumGlyphs {
			newNumGlyphs = gid + 1
		}
	}

	glyf, loca, err := p.rebuildGlyfLoca(closure, newNumGlyphs, locFormat)
	if err != nil {
		return nil, err
	}
	hmtx, err := p.rebuildHmtx(newNumGlyphs)
	if err != nil {
		return nil, err
	}

	// loca is always written in the long format.
	newHead := append([]byte(nil), head...)
	binary.BigEndian.PutUint16(newHead[50:52], 1)
	newMaxp := append([]byte(nil), maxp...)
	binary.BigEndian.PutUint16(newMaxp[4:6], uint16(newNumGlyphs))
	newHhea := append([]byte(nil), hhea...)
	binary.BigEndian.PutUint16(newHhea[34:36], uint16(newNumGlyphs))

	w := &ttWriter{}
	w.addTable("glyf", glyf)
	w.addTable("loca", loca)
	w.addTable("hmtx", hmtx)
	w.addTable("head", newHead)
	w.addTable("maxp", newMaxp)
	w.addTable("hhea", newHhea)
	if post, err := p.table("post"); err == nil && len(post) >= 32 {
		// Glyph names are dropped: format 3 carries none.
		newPost := append([]byte(nil), post[:32]...)
		binary.BigEndian.PutUint32(newPost[0:4], 0x00030000)
		w.addTable("post", newPost)
	}
	for _, tag := range []string{"cmap", "name", "OS/2", "cvt ", "fpgm", "prep", "gasp"} {
		if !p.hasTable(tag) {
			continue
		}
		t, err := p.table(tag)
		if err != nil {
			return nil, err
		}
		w.addTable(tag, t)
	}
	return w.bytes(), nil
}

type ttParser struct {
	data   []byte
	tables map[string]tableEntry
}

type tableEntry struct {
	offset uint32
	length uint32
}

func (p *ttParser) parseDirectory() error {
	if len(p.data) < 12 {
		return fmt.Errorf("%w: header truncated", ErrMalformedFont)
	}
	numTables := int(binary.BigEndian.Uint16(p.data[4:6]))
	p.tables = make(map[string]tableEntry, numTables)
	offset := 12
	for i := 0; i < numTables; i++ {
		if offset+16 > len(p.data) {
			return fmt.Errorf("%w: table directory truncated", ErrMalformedFont)
		}
		tag := string(p.data[offset : offset+4])
		p.tables[tag] = tableEntry{
			offset: binary.BigEndian.Uint32(p.data[offset+8 : offset+12]),
			length: binary.BigEndian.Uint32(p.data[offset+12 : offset+16]),
		}
		offset += 16
	}
	return nil
}

func (p *ttParser) hasTable(tag string) bool {
	_, ok := p.tables[tag]
	return ok
}

func (p *ttParser) table(tag string) ([]byte, error) {
	entry, ok := p.tables[tag]
	if !ok {
		return nil, fmt.Errorf("%w: table %q not found", ErrMalformedFont, tag)
	}
	end := uint64(entry.offset) + uint64(entry.length)
	if end > uint64(len(p.data)) {
		return nil, fmt.Errorf("%w: table %q out of bounds", ErrMalformedFont, tag)
	}
	return p.data[entry.offset:end], nil
}

func (p *ttParser) locator(numGlyphs int, locFormat int16) (func(gid int) (uint32, uint32, bool), []byte, error) {
	loca, err := p.table("loca")
	if err != nil {
		return nil, nil, err
	}
	glyf, err := p.table("glyf")
	if err != nil {
		return nil, nil, err
	}
	at := func(i int) (uint32, bool) {
		if locFormat == 0 {
			if (i+1)*2 > len(loca) {
				return 0, false
			}
			return uint32(binary.BigEndian.Uint16(loca[i*2:])) * 2, true
		}
		if (i+1)*4 > len(loca) {
			return 0, false
		}
		return binary.BigEndian.Uint32(loca[i*4:]), true
	}
	loc := func(gid int) (uint32, uint32, bool) {
		if gid < 0 || gid >= numGlyphs {
			return 0, 0, false
		}
		start, ok1 := at(gid)
		end, ok2 := at(gid + 1)
		if !ok1 || !ok2 || start > end || end > uint32(len(glyf)) {
			return 0, 0, false
		}
		return start, end, true
	}
	return loc, glyf, nil
}

// componentClosure adds the components of composite glyphs to closure.
func (p *ttParser) componentClosure(closure map[int]bool, numGlyphs int, locFormat int16) error {
	loc, glyf, err := p.locator(numGlyphs, locFormat)
	if err != nil {
		return err
	}
	queue := make([]int, 0, len(closure))
	for gid := range closure {
		queue = append(queue, gid)
	}
	for len(queue) > 0 {
		gid := queue[0]
		queue = queue[1:]
		start, end, ok := loc(gid)
		if !ok || end-start < 10 {
			continue
		}
		if int16(binary.BigEndian.Uint16(glyf[start:])) >= 0 {
			continue
		}
		offset := start + 10
		for offset+4 <= end {
			flags := binary.BigEndian.Uint16(glyf[offset:])
			sub := int(binary.BigEndian.Uint16(glyf[offset+2:]))
			if !closure[sub] && sub < numGlyphs {
				closure[sub] = true
				queue = append(queue, sub)
			}
			offset += 4
			if flags&0x0001 != 0 { // ARG_1_AND_2_ARE_WORDS
				offset += 4
			} else {
				offset += 2
			}
			switch {
			case flags&0x0008 != 0: // WE_HAVE_A_SCALE
				offset += 2
			case flags&0x0040 != 0: // WE_HAVE_AN_X_AND_Y_SCALE
				offset += 4
			case flags&0x0080 != 0: // WE_HAVE_A_TWO_BY_TWO
				offset += 8
			}
			if flags&0x0020 == 0 { // MORE_COMPONENTS
				break
			}
		}
	}
	return nil
}

func (p *ttParser) rebuildGlyfLoca(closure map[int]bool, numGlyphs int, locFormat int16) ([]byte, []byte, error) {
	loc, glyf, err := p.locator(numGlyphs, locFormat)
	if err != nil {
		return nil, nil, err
	}
	var newGlyf, newLoca bytes.Buffer
	for gid := 0; gid < numGlyphs; gid++ {
		binary.Write(&newLoca, binary.BigEndian, uint32(newGlyf.Len()))
		if !closure[gid] {
			continue
		}
		if start, end, ok := loc(gid); ok {
			newGlyf.Write(glyf[start:end])
			for newGlyf.Len()%4 != 0 {
				newGlyf.WriteByte(0)
			}
		}
	}
	binary.Write(&newLoca, binary.BigEndian, uint32(newGlyf.Len()))
	return newGlyf.Bytes(), newLoca.Bytes(), nil
}

// rebuildHmtx writes one full metric per glyph.
func (p *ttParser) rebuildHmtx(numGlyphs int) ([]byte, error) {
	hhea, err := p.table("hhea")
	if err != nil {
		return nil, err
	}
	hmtx, err := p.table("hmtx")
	if err != nil {
		return nil, err
	}
	numMetrics := int(binary.BigEndian.Uint16(hhea[34:36]))
	if numMetrics == 0 || numMetrics*4 > len(hmtx) {
		return nil, fmt.Errorf("%w: bad hmtx", ErrMalformedFont)
	}
	var out bytes.Buffer
	for gid := 0; gid < numGlyphs; gid++ {
		var adv, lsb uint16
		if gid < numMetrics {
			adv = binary.BigEndian.Uint16(hmtx[gid*4:])
			lsb = binary.BigEndian.Uint16(hmtx[gid*4+2:])
		} else {
			adv = binary.BigEndian.Uint16(hmtx[(numMetrics-1)*4:])
			if off := numMetrics*4 + (gid-numMetrics)*2; off+2 <= len(hmtx) {
				lsb = binary.BigEndian.Uint16(hmtx[off:])
			}
		}
		binary.Write(&out, binary.BigEndian, adv)
		binary.Write(&out, binary.BigEndian, lsb)
	}
	return out.Bytes(), nil
}

type ttWriter struct {
	tables []tableData
}

type tableData struct {
	tag  string
	data []byte
}

func (w *ttWriter) addTable(tag string, data []byte) {
	w.tables = append(w.tables, tableData{tag, data})
}

func (w *ttWriter) bytes() []byte {
	sort.Slice(w.tables, func(i, j int) bool { return w.tables[i].tag < w.tables[j].tag })
	numTables := len(w.tables)
	entrySelector := 0
	for (1 << (entrySelector + 1)) <= numTables {
		entrySelector++
	}
	searchRange := (1 << entrySelector) * 16

	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x01, 0x00, 0x00})
	binary.Write(&buf, binary.BigEndian, uint16(numTables))
	binary.Write(&buf, binary.BigEndian, uint16(searchRange))
	binary.Write(&buf, binary.BigEndian, uint16(entrySelector))
	binary.Write(&buf, binary.BigEndian, uint16(numTables*16-searchRange))

	headOffset := -1
	offset := 12 + 16*numTables
	for _, t := range w.tables {
		data := t.data
		if t.tag == "head" {
			// checksumAdjustment is computed over the finished file.
			data = append([]byte(nil), data...)
			binary.BigEndian.PutUint32(data[8:12], 0)
			headOffset = offset
		}
		buf.WriteString(t.tag)
		binary.Write(&buf, binary.BigEndian, calcChecksum(data))
		binary.Write(&buf, binary.BigEndian, uint32(offset))
		binary.Write(&buf, binary.BigEndian, uint32(len(data)))
		offset += (len(data) + 3) &^ 3
	}
	for _, t := range w.tables {
		data := t.data
		if t.tag == "head" {
			data = append([]byte(nil), data...)
			binary.BigEndian.PutUint32(data[8:12], 0)
		}
		buf.Write(data)
		for buf.Len()%4 != 0 {
			buf.WriteByte(0)
		}
	}
	out := buf.Bytes()
	if headOffset >= 0 {
		binary.BigEndian.PutUint32(out[headOffset+8:], 0xB1B0AFBA-calcChecksum(out))
	}
	return out
}

func calcChecksum(data []byte) uint32 {
	var sum uint32
	for i := 0; i < len(data); i += 4 {
		var word [4]byte
		copy(word[:], data[i:])
		sum += binary.BigEndian.Uint32(word[:])
	}
	return sum
}
