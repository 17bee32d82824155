// Package composer turns markup into a tagged PDF/UA document, optionally
// decorated with header images, a title and a bottom rule.
package composer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wudi/tagpdf/assets"
	"github.com/wudi/tagpdf/builder"
	"github.com/wudi/tagpdf/compliance"
	"github.com/wudi/tagpdf/compliance/pdfua"
	"github.com/wudi/tagpdf/decorator"
	"github.com/wudi/tagpdf/ir/semantic"
	"github.com/wudi/tagpdf/layout"
	"github.com/wudi/tagpdf/observability"
	"github.com/wudi/tagpdf/options"
	"github.com/wudi/tagpdf/writer"
)

// Version is reported in the Producer entry. Release builds override it
// with -ldflags.
var Version = "0.1.0"

const (
	DefaultLanguage = "en-GB"
	DefaultCreator  = "tagpdf"
)

var (
	ErrEmptyMarkup = errors.New("composer: empty markup")
	ErrAssets      = errors.New("composer: assets unavailable")
	ErrLayout      = errors.New("composer: layout failed")
	ErrWrite       = errors.New("composer: write failed")
)

// Format selects how Request.Markup is interpreted.
type Format int

const (
	FormatHTML Format = iota
	FormatMarkdown
)

func (f Format) String() string {
	switch f {
	case FormatHTML:
		return "html"
	case FormatMarkdown:
		return "markdown"
	default:
		return "unknown"
	}
}

// ParseFormat accepts "html", "markdown" and "md", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "html", "htm":
		return FormatHTML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	}
	return FormatHTML, fmt.Errorf("unknown markup format %q", s)
}

// Request is one conversion.
type Request struct {
	Markup string
	Title  string
	Flags  options.Flags
	Format Format
}

// Composer holds the shared, read-only resources of conversions. It is safe
// for concurrent use.
type Composer struct {
	assets    *assets.Set
	language  string
	creator   string
	now       func() time.Time
	logger    observability.Logger
	tracer    observability.Tracer
	pageSize  semantic.Rectangle
	margins   *layout.Margins
	fontSize  float64
	validator compliance.Validator
	writer    writer.Writer
}

// Option configures a Composer.
type Option func(*Composer)

func WithLanguage(lang string) Option {
	return func(c *Composer) { c.language = lang }
}

func WithCreator(creator string) Option {
	return func(c *Composer) { c.creator = creator }
}

// WithClock replaces time.Now for the creation date.
func WithClock(now func() time.Time) Option {
	return func(c *Composer) { c.now = now }
}

func WithLogger(l observability.Logger) Option {
	return func(c *Composer) { c.logger = l }
}

func WithTracer(t observability.Tracer) Option {
	return func(c *Composer) { c.tracer = t }
}

func WithPageSize(size semantic.Rectangle) Option {
	return func(c *Composer) { c.pageSize = size }
}

func WithMargins(m layout.Margins) Option {
	return func(c *Composer) { c.margins = &m }
}

func WithFontSize(size float64) Option {
	return func(c *Composer) { c.fontSize = size }
}

// New returns a Composer drawing from set.
func New(set *assets.Set, opts ...Option) *Composer {
	c := &Composer{
		assets:    set,
		language:  DefaultLanguage,
		creator:   DefaultCreator,
		now:       time.Now,
		logger:    observability.NopLogger{},
		tracer:    observability.NopTracer(),
		pageSize:  builder.A4,
		validator: pdfua.NewEnforcer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.writer = (&writer.WriterBuilder{}).WithInterceptor(writeTagger{}).Build()
	return c
}

// Producer is the Producer string written into every document.
func Producer() string { return "tagpdf " + Version }

// ConvertToPdf converts HTML with the options given in their wire format.
// Malformed options mean no decoration.
func (c *Composer) ConvertToPdf(ctx context.Context, markup, title, flagsRaw string) ([]byte, error) {
	return c.Compose(ctx, Request{Markup: markup, Title: title, Flags: options.Parse(flagsRaw)})
}

// Compose builds the document for req. No bytes are returned with an error.
func (c *Composer) Compose(ctx context.Context, req Request) ([]byte, error) {
	ctx, span := c.tracer.StartSpan(ctx, "composer.Compose")
	defer span.Finish()
	ctx = context.WithValue(ctx, spanKey{}, span)
	span.SetTag(observability.TagFlags, req.Flags.String())

	out, err := c.compose(ctx, req)
	if err != nil {
		span.SetError(err)
		c.logger.Error("composition failed", observability.Error("error", err), observability.String("flags", req.Flags.String()))
		return nil, err
	}
	return out, nil
}

func (c *Composer) compose(ctx context.Context, req Request) ([]byte, error) {
	sd, err := c.build(ctx, req)
	if err != nil {
		return nil, err
	}
	c.report(ctx, sd)

	var buf bytes.Buffer
	if err := c.writer.Write(ctx, sd, &buf, writer.FullCompression()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	c.logger.Info("document composed",
		observability.Int("pages", len(sd.Pages)),
		observability.Int("bytes", buf.Len()),
		observability.String("flags", req.Flags.String()),
	)
	return buf.Bytes(), nil
}

// build lays out req into a semantic document ready to be written.
func (c *Composer) build(ctx context.Context, req Request) (*semantic.Document, error) {
	if strings.TrimSpace(req.Markup) == "" {
		return nil, ErrEmptyMarkup
	}
	if err := c.assets.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAssets, err)
	}
	bodyFonts, err := layout.FontsFrom(c.assets.Fonts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAssets, err)
	}

	doc := builder.NewDocument(builder.Options{PageSize: c.pageSize, Language: c.language})
	if req.Flags != 0 {
		doc.AddEndPageHandler(decorator.New(decorator.State{
			Flags:          req.Flags,
			Title:          req.Title,
			HeaderPageOne:  c.assets.HeaderPageOne,
			HeaderAllPages: c.assets.HeaderAllPages,
			TitleFont:      c.assets.TitleFont,
		}))
	}
	now := c.now()
	info := doc.Info()
	info.CreationDate = now
	info.ModDate = now
	info.Producer = Producer()
	info.Creator = c.creator
	if req.Title != "" {
		info.Title = req.Title
	}
	doc.SetLanguage(c.language).
		SetViewerPreferences(&semantic.ViewerPreferences{DisplayDocTitle: true}).
		AddUAMetadata().
		SetTagged()

	var engineOpts []layout.Option
	if c.margins != nil {
		engineOpts = append(engineOpts, layout.WithMargins(*c.margins))
	}
	if c.fontSize > 0 {
		engineOpts = append(engineOpts, layout.WithDefaultFontSize(c.fontSize))
	}
	engine := layout.NewEngine(doc, bodyFonts, engineOpts...)
	switch req.Format {
	case FormatMarkdown:
		err = engine.RenderMarkdown(req.Markup)
	default:
		err = engine.RenderHTML(req.Markup)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLayout, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sd, err := doc.Build()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLayout, err)
	}
	return sd, nil
}

// report logs the PDF/UA findings. They never fail a conversion.
func (c *Composer) report(ctx context.Context, sd *semantic.Document) {
	if span := spanFrom(ctx); span != nil {
		span.SetTag(observability.TagPageCount, len(sd.Pages))
	}
	rep, err := c.validator.Validate(ctx, sd)
	if err != nil {
		c.logger.Warn("pdf/ua validation skipped", observability.Error("error", err))
		return
	}
	if rep.Compliant {
		c.logger.Debug("pdf/ua validation passed", observability.String("standard", rep.Standard))
		return
	}
	for _, v := range rep.Violations {
		c.logger.Warn("pdf/ua violation",
			observability.String("code", v.Code),
			observability.String("description", v.Description),
			observability.String("location", v.Location),
		)
	}
}

type spanKey struct{}

func spanFrom(ctx context.Context) observability.Span {
	s, _ := ctx.Value(spanKey{}).(observability.Span)
	return s
}

// writeTagger records the output size on the composition span.
type writeTagger struct{}

func (writeTagger) AfterWrite(ctx context.Context, objects int, bytesWritten int64) error {
	if span := spanFrom(ctx); span != nil {
		span.SetTag(observability.TagObjectCount, objects)
		span.SetTag(observability.TagWriteBytes, bytesWritten)
	}
	return nil
}
