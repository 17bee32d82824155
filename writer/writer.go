// Package writer serializes a semantic.Document into PDF bytes.
package writer

import (
	"context"
	"io"

	"github.com/wudi/tagpdf/ir/semantic"
)

type PDFVersion string

const (
	PDF17 PDFVersion = "1.7"
	PDF20 PDFVersion = "2.0"
)

// Config controls the file layout.
type Config struct {
	Version PDFVersion
	// Compression is the Flate level for streams; 0 disables compression.
	Compression int
	// XRefStreams writes a cross-reference stream instead of a table.
	XRefStreams bool
	// ObjectStreams packs non-stream objects into object streams. It
	// implies XRefStreams.
	ObjectStreams bool
	// Deterministic derives the file identifier from the document content.
	Deterministic bool
}

// FullCompression is the layout used for tagged output: PDF 2.0 with object
// streams, a cross-reference stream and Flate-compressed content.
func FullCompression() Config {
	return Config{Version: PDF20, Compression: 9, XRefStreams: true, ObjectStreams: true}
}

type Writer interface {
	Write(ctx context.Context, doc *semantic.Document, w io.Writer, cfg Config) error
}

// Interceptor observes objects as they are written.
type Interceptor interface {
	AfterWrite(ctx context.Context, objects int, bytesWritten int64) error
}

type WriterBuilder struct{ interceptors []Interceptor }

func (b *WriterBuilder) WithInterceptor(i Interceptor) *WriterBuilder {
	b.interceptors = append(b.interceptors, i)
	return b
}
func (b *WriterBuilder) Build() Writer { return &impl{interceptors: b.interceptors} }

// NewWriter returns a writer without interceptors.
func NewWriter() Writer { return (&WriterBuilder{}).Build() }
