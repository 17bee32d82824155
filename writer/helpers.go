package writer

import (
	"bytes"
	"compress/zlib"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/wudi/tagpdf/ir/raw"
	"github.com/wudi/tagpdf/ir/semantic"
)

func pdfVersion(cfg Config) string {
	if cfg.Version == "" {
		return string(PDF20)
	}
	return string(cfg.Version)
}

func fileID(doc *semantic.Document, cfg Config) [2][]byte {
	seed := deterministicIDSeed(doc, cfg)
	if cfg.Deterministic {
		return [2][]byte{seed, seed}
	}
	id := make([]byte, 16)
	if _, err := rand.Read(id); err != nil {
		id = seed
	}
	idB := make([]byte, len(id))
	copy(idB, id)
	return [2][]byte{id, idB}
}

func deterministicIDSeed(doc *semantic.Document, cfg Config) []byte {
	h := sha256.New()
	h.Write([]byte(pdfVersion(cfg)))
	if doc.Info != nil {
		h.Write([]byte(doc.Info.Title))
		h.Write([]byte(doc.Info.Author))
		h.Write([]byte(doc.Info.Subject))
		h.Write([]byte(doc.Info.Creator))
		h.Write([]byte(doc.Info.Producer))
		h.Write([]byte(strings.Join(doc.Info.Keywords, ",")))
		h.Write([]byte(pdfDate(doc.Info.CreationDate)))
	}
	if doc.Metadata != nil {
		h.Write(doc.Metadata.Raw)
	}
	h.Write([]byte(doc.Lang))
	fmt.Fprintf(h, "%d", len(doc.Pages))
	for _, p := range doc.Pages {
		fmt.Fprintf(h, "%f-%f-%f-%f", p.MediaBox.LLX, p.MediaBox.LLY, p.MediaBox.URX, p.MediaBox.URY)
		for _, cs := range p.Contents {
			h.Write(serializeContentStream(cs))
		}
	}
	return h.Sum(nil)[:16]
}

func rectArray(r semantic.Rectangle) *raw.ArrayObj {
	return raw.NewArray(
		raw.Float(r.LLX),
		raw.Float(r.LLY),
		raw.Float(r.URX),
		raw.Float(r.URY),
	)
}

func flateEncode(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// compressStream Flate-encodes s in place unless compression is disabled or
// the stream already carries a filter.
func compressStream(s *raw.StreamObj, level int) error {
	if level == 0 {
		return nil
	}
	if _, ok := s.Dict.Get("Filter"); ok {
		return nil
	}
	enc, err := flateEncode(s.Data, level)
	if err != nil {
		return err
	}
	s.Data = enc
	s.Dict.Set("Filter", raw.Name("FlateDecode"))
	return nil
}

func buildToUnicodeCMap(font *semantic.Font) []byte {
	if font == nil || len(font.ToUnicode) == 0 {
		return nil
	}
	keys := make([]int, 0, len(font.ToUnicode))
	for cid := range font.ToUnicode {
		keys = append(keys, cid)
	}
	sort.Ints(keys)
	name := strings.ReplaceAll(font.BaseFont, " ", "")
	if name == "" {
		name = "ToUnicode"
	}
	var buf bytes.Buffer
	buf.WriteString("/CIDInit /ProcSet findresource begin\n")
	buf.WriteString("12 dict begin\n")
	buf.WriteString("begincmap\n")
	buf.WriteString("/CIDSystemInfo << /Registry (Adobe) /Ordering (UCS) /Supplement 0 >> def\n")
	fmt.Fprintf(&buf, "/CMapName /%s-UTF16 def\n", pdfNameLiteral(name))
	buf.WriteString("/CMapType 2 def\n")
	buf.WriteString("1 begincodespacerange\n<0000> <FFFF>\nendcodespacerange\n")
	for i := 0; i < len(keys); {
		chunk := len(keys) - i
		if chunk > 100 {
			chunk = 100
		}
		fmt.Fprintf(&buf, "%d beginbfchar\n", chunk)
		for j := 0; j < chunk; j++ {
			cid := keys[i+j]
			fmt.Fprintf(&buf, "<%04X> <%s>\n", cid, utf16Hex(font.ToUnicode[cid]))
		}
		buf.WriteString("endbfchar\n")
		i += chunk
	}
	buf.WriteString("endcmap\n")
	buf.WriteString("CMapName currentdict /CMap defineresource pop\n")
	buf.WriteString("end\nend\n")
	return buf.Bytes()
}

func utf16Hex(runes []rune) string {
	if len(runes) == 0 {
		return "FFFD"
	}
	var b strings.Builder
	for _, u := range utf16.Encode(runes) {
		fmt.Fprintf(&b, "%04X", u)
	}
	return b.String()
}

// encodeCIDWidths groups consecutive CIDs of equal width into
// "first last width" runs.
func encodeCIDWidths(widths map[int]int) *raw.ArrayObj {
	arr := raw.NewArray()
	if len(widths) == 0 {
		return arr
	}
	codes := make([]int, 0, len(widths))
	for c := range widths {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	start := codes[0]
	prev := codes[0]
	current := widths[codes[0]]
	for i := 1; i < len(codes); i++ {
		code := codes[i]
		w := widths[code]
		if w == current && code == prev+1 {
			prev = code
			continue
		}
		arr.Append(raw.Int(int64(start)))
		arr.Append(raw.Int(int64(prev)))
		arr.Append(raw.Int(int64(current)))
		start = code
		prev = code
		current = w
	}
	arr.Append(raw.Int(int64(start)))
	arr.Append(raw.Int(int64(prev)))
	arr.Append(raw.Int(int64(current)))
	return arr
}

// textString encodes s as a PDF text string: PDFDocEncoding-compatible ASCII
// stays literal, anything else becomes UTF-16BE with a byte order mark.
func textString(s string) raw.StringObj {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return raw.Text(s)
	}
	units := utf16.Encode([]rune(s))
	b := make([]byte, 0, 2+2*len(units))
	b = append(b, 0xFE, 0xFF)
	for _, u := range units {
		b = append(b, byte(u>>8), byte(u))
	}
	return raw.Str(b)
}

// pdfDate formats t as a PDF date string, D:YYYYMMDDHHmmSSOHH'mm'.
func pdfDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	_, offset := t.Zone()
	if offset == 0 {
		return "D:" + t.Format("20060102150405") + "Z"
	}
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("D:%s%c%02d'%02d'", t.Format("20060102150405"), sign, offset/3600, (offset%3600)/60)
}

func serializeContentStream(cs semantic.ContentStream) []byte {
	if len(cs.Operations) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, op := range cs.Operations {
		for i, operand := range op.Operands {
			if i > 0 {
				buf.WriteByte(' ')
			}
			buf.Write(serializeOperand(operand))
		}
		if len(op.Operands) > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(op.Operator)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func serializeOperand(op semantic.Operand) []byte {
	switch v := op.(type) {
	case semantic.NumberOperand:
		return []byte(formatNumber(v.Value))
	case semantic.NameOperand:
		return []byte("/" + pdfNameLiteral(v.Value))
	case semantic.StringOperand:
		if v.Hex {
			return hexString(v.Value)
		}
		return escapeLiteralString(v.Value)
	case semantic.ArrayOperand:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, it := range v.Values {
			if i > 0 {
				buf.WriteByte(' ')
			}
			buf.Write(serializeOperand(it))
		}
		buf.WriteByte(']')
		return buf.Bytes()
	case semantic.DictOperand:
		var buf bytes.Buffer
		buf.WriteString("<<")
		keys := make([]string, 0, len(v.Values))
		for k := range v.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			buf.WriteString("/" + pdfNameLiteral(k) + " ")
			buf.Write(serializeOperand(v.Values[k]))
		}
		buf.WriteString(">>")
		return buf.Bytes()
	default:
		return []byte("null")
	}
}

// formatNumber writes v without exponent notation, with at most four
// decimal places.
func formatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', 4, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" || s == "" {
		return "0"
	}
	return s
}

func hexString(b []byte) []byte {
	dst := make([]byte, hex.EncodedLen(len(b)))
	hex.Encode(dst, b)
	return []byte("<" + strings.ToUpper(string(dst)) + ">")
}

func escapeLiteralString(rawBytes []byte) []byte {
	var b bytes.Buffer
	b.WriteByte('(')
	for _, ch := range rawBytes {
		switch ch {
		case '\\', '(', ')':
			b.WriteByte('\\')
			b.WriteByte(ch)
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		case '\b':
			b.WriteString("\\b")
		case '\f':
			b.WriteString("\\f")
		default:
			if ch < 0x20 || ch >= 0x80 {
				fmt.Fprintf(&b, "\\%03o", ch)
			} else {
				b.WriteByte(ch)
			}
		}
	}
	b.WriteByte(')')
	return b.Bytes()
}

func buildTrailer(size int, catalogRef raw.ObjectRef, infoRef *raw.ObjectRef, ids [2][]byte) *raw.DictObj {
	trailer := raw.Dict()
	trailer.Set("Size", raw.Int(int64(size)))
	trailer.Set("Root", raw.Ref(catalogRef))
	if infoRef != nil {
		trailer.Set("Info", raw.Ref(*infoRef))
	}
	trailer.Set("ID", raw.NewArray(raw.HexStr(ids[0]), raw.HexStr(ids[1])))
	return trailer
}

// xrefEntry is one row of a cross-reference stream.
type xrefEntry struct {
	typ    int   // 0 free, 1 in file, 2 compressed
	field2 int64 // offset or containing object stream number
	field3 int   // generation or index within the object stream
}

func xrefStreamIndexAndEntries(entries map[int]xrefEntry) (*raw.ArrayObj, []byte) {
	entryCopy := make(map[int]xrefEntry, len(entries)+1)
	for k, v := range entries {
		entryCopy[k] = v
	}
	if _, ok := entryCopy[0]; !ok {
		entryCopy[0] = xrefEntry{typ: 0, field3: 65535}
	}
	keys := make([]int, 0, len(entryCopy))
	for k := range entryCopy {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	indexArr := raw.NewArray()
	var data []byte
	segStart := -1
	prev := -1
	for _, k := range keys {
		if segStart == -1 {
			segStart = k
		} else if k != prev+1 {
			indexArr.Append(raw.Int(int64(segStart)))
			indexArr.Append(raw.Int(int64(prev - segStart + 1)))
			segStart = k
		}
		prev = k
		data = appendXRefStreamEntry(data, entryCopy[k])
	}
	if segStart != -1 {
		indexArr.Append(raw.Int(int64(segStart)))
		indexArr.Append(raw.Int(int64(prev - segStart + 1)))
	}
	return indexArr, data
}

// appendXRefStreamEntry encodes e with field widths [1 4 2].
func appendXRefStreamEntry(buf []byte, e xrefEntry) []byte {
	buf = append(buf, byte(e.typ))
	f2 := uint32(e.field2)
	buf = append(buf, byte(f2>>24), byte(f2>>16), byte(f2>>8), byte(f2))
	return append(buf, byte(e.field3>>8), byte(e.field3))
}

func serializePrimitive(o raw.Object) []byte {
	switch v := o.(type) {
	case raw.NameObj:
		return []byte("/" + pdfNameLiteral(v.Value()))
	case raw.NumberObj:
		if v.IsInteger() {
			return []byte(strconv.FormatInt(v.Int(), 10))
		}
		return []byte(formatNumber(v.Float()))
	case raw.BoolObj:
		if v.Value() {
			return []byte("true")
		}
		return []byte("false")
	case raw.NullObj:
		return []byte("null")
	case raw.StringObj:
		if v.IsHex() {
			return hexString(v.Value())
		}
		return escapeLiteralString(v.Value())
	case *raw.ArrayObj:
		var b bytes.Buffer
		b.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.Write(serializePrimitive(it))
		}
		b.WriteByte(']')
		return b.Bytes()
	case *raw.DictObj:
		var b bytes.Buffer
		b.WriteString("<<")
		for _, k := range v.Keys() {
			b.WriteString("/" + pdfNameLiteral(k) + " ")
			b.Write(serializePrimitive(v.KV[k]))
		}
		b.WriteString(">>")
		return b.Bytes()
	case *raw.StreamObj:
		var b bytes.Buffer
		v.Dict.Set("Length", raw.Int(int64(len(v.Data))))
		b.Write(serializePrimitive(v.Dict))
		b.WriteString("\nstream\n")
		b.Write(v.Data)
		b.WriteString("\nendstream")
		return b.Bytes()
	case raw.RefObj:
		return []byte(v.Ref().String())
	default:
		return []byte("null")
	}
}

func pdfNameLiteral(value string) string {
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') || ch == '-' || ch == '_' || ch == '.' || ch == '+' || ch == ':' {
			b.WriteByte(ch)
			continue
		}
		fmt.Fprintf(&b, "#%02X", ch)
	}
	return b.String()
}
