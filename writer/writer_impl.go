package writer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/wudi/tagpdf/ir/raw"
	"github.com/wudi/tagpdf/ir/semantic"
)

// objectsPerStream caps how many objects are packed into one object stream.
const objectsPerStream = 100

type impl struct{ interceptors []Interceptor }

func (w *impl) Write(ctx context.Context, doc *semantic.Document, out io.Writer, cfg Config) error {
	if doc == nil {
		return fmt.Errorf("nil document")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	table, catalogRef, infoRef, err := newObjectBuilder(doc, cfg).Build()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ids := fileID(doc, cfg)

	var buf bytes.Buffer
	buf.WriteString("%PDF-" + pdfVersion(cfg) + "\n%\xE2\xE3\xCF\xD3\n")

	refs := table.Refs()
	if cfg.ObjectStreams || cfg.XRefStreams {
		entries := make(map[int]xrefEntry, len(refs))
		var packed []raw.ObjectRef
		for _, ref := range refs {
			obj, _ := table.Get(ref)
			if _, isStream := obj.(*raw.StreamObj); cfg.ObjectStreams && !isStream {
				packed = append(packed, ref)
				continue
			}
			entries[ref.Num] = xrefEntry{typ: 1, field2: int64(buf.Len())}
			writeIndirect(&buf, ref, obj)
		}
		for start := 0; start < len(packed); start += objectsPerStream {
			end := start + objectsPerStream
			if end > len(packed) {
				end = len(packed)
			}
			chunk := packed[start:end]
			stm, err := objectStream(table, chunk, cfg.Compression)
			if err != nil {
				return err
			}
			stmRef := table.Alloc()
			entries[stmRef.Num] = xrefEntry{typ: 1, field2: int64(buf.Len())}
			writeIndirect(&buf, stmRef, stm)
			for i, ref := range chunk {
				entries[ref.Num] = xrefEntry{typ: 2, field2: int64(stmRef.Num), field3: i}
			}
		}
		xrefRef := table.Alloc()
		xrefOffset := buf.Len()
		entries[xrefRef.Num] = xrefEntry{typ: 1, field2: int64(xrefOffset)}
		index, data := xrefStreamIndexAndEntries(entries)
		dict := buildTrailer(table.Size(), catalogRef, infoRef, ids)
		dict.Set("Type", raw.Name("XRef"))
		dict.Set("W", raw.NewArray(raw.Int(1), raw.Int(4), raw.Int(2)))
		dict.Set("Index", index)
		stream := raw.NewStream(dict, data)
		if err := compressStream(stream, cfg.Compression); err != nil {
			return err
		}
		writeIndirect(&buf, xrefRef, stream)
		buf.WriteString("startxref\n" + strconv.Itoa(xrefOffset) + "\n%%EOF\n")
	} else {
		offsets := make(map[int]int, len(refs))
		for _, ref := range refs {
			obj, _ := table.Get(ref)
			offsets[ref.Num] = buf.Len()
			writeIndirect(&buf, ref, obj)
		}
		xrefOffset := buf.Len()
		size := table.Size()
		fmt.Fprintf(&buf, "xref\n0 %d\n", size)
		buf.WriteString("0000000000 65535 f\r\n")
		for i := 1; i < size; i++ {
			if off, ok := offsets[i]; ok {
				fmt.Fprintf(&buf, "%010d 00000 n\r\n", off)
			} else {
				buf.WriteString("0000000000 00001 f\r\n")
			}
		}
		buf.WriteString("trailer\n")
		buf.Write(serializePrimitive(buildTrailer(size, catalogRef, infoRef, ids)))
		buf.WriteString("\nstartxref\n" + strconv.Itoa(xrefOffset) + "\n%%EOF\n")
	}

	n, err := out.Write(buf.Bytes())
	if err != nil {
		return err
	}
	for _, ic := range w.interceptors {
		if err := ic.AfterWrite(ctx, table.Len(), int64(n)); err != nil {
			return err
		}
	}
	return nil
}

func writeIndirect(buf *bytes.Buffer, ref raw.ObjectRef, obj raw.Object) {
	fmt.Fprintf(buf, "%d %d obj\n", ref.Num, ref.Gen)
	buf.Write(serializePrimitive(obj))
	buf.WriteString("\nendobj\n")
}

// objectStream packs refs into a single /ObjStm stream.
func objectStream(table *raw.Table, refs []raw.ObjectRef, level int) (*raw.StreamObj, error) {
	var header, body bytes.Buffer
	for i, ref := range refs {
		obj, _ := table.Get(ref)
		if i > 0 {
			header.WriteByte(' ')
		}
		fmt.Fprintf(&header, "%d %d", ref.Num, body.Len())
		body.Write(serializePrimitive(obj))
		body.WriteByte('\n')
	}
	header.WriteByte('\n')
	dict := raw.TypedDict("ObjStm")
	dict.Set("N", raw.Int(int64(len(refs))))
	dict.Set("First", raw.Int(int64(header.Len())))
	data := append(header.Bytes(), body.Bytes()...)
	stream := raw.NewStream(dict, data)
	if err := compressStream(stream, level); err != nil {
		return nil, err
	}
	return stream, nil
}
