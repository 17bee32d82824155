// Package receiver processes queued conversion requests: each item is
// converted, stored in a document library and removed from the queue. A
// failed item stays queued with its error message and is not retried.
package receiver

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/wudi/tagpdf/library"
	"github.com/wudi/tagpdf/observability"
)

var (
	// ErrItemNotFound is returned by an ItemStore for unknown ids.
	ErrItemNotFound = errors.New("receiver: item not found")
	// ErrItemFailed wraps the error recorded on an item.
	ErrItemFailed = errors.New("receiver: item failed")
)

// Item is a queued conversion request.
type Item struct {
	ID       string `yaml:"-"`
	Title    string `yaml:"title"`
	HTML     string `yaml:"html"`
	Options  string `yaml:"options"`
	Library  string `yaml:"library"`
	Folder   string `yaml:"folder"`
	FileName string `yaml:"fileName"`
	Metadata string `yaml:"metadata,omitempty"`
	Error    string `yaml:"error,omitempty"`
}

// ItemStore is the queue of pending items.
type ItemStore interface {
	Get(ctx context.Context, id string) (*Item, error)
	Delete(ctx context.Context, id string) error
	SetError(ctx context.Context, id, message string) error
}

// Converter produces the document bytes for an item.
// *composer.Composer implements it.
type Converter interface {
	ConvertToPdf(ctx context.Context, markup, title, flagsRaw string) ([]byte, error)
}

// Processor handles item-added events.
type Processor struct {
	store       ItemStore
	converter   Converter
	sink        library.Sink
	logger      observability.Logger
	concurrency int
}

type Option func(*Processor)

func WithLogger(l observability.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// WithConcurrency bounds how many items HandleAll processes at once.
func WithConcurrency(n int) Option {
	return func(p *Processor) { p.concurrency = n }
}

func NewProcessor(store ItemStore, converter Converter, sink library.Sink, opts ...Option) *Processor {
	p := &Processor{
		store:       store,
		converter:   converter,
		sink:        sink,
		logger:      observability.NopLogger{},
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.concurrency < 1 {
		p.concurrency = 1
	}
	return p
}

// HandleItemAdded converts item id, adds the document to its library and
// deletes the item. On failure the error text is written to the item,
// which is kept, and the returned error wraps ErrItemFailed.
func (p *Processor) HandleItemAdded(ctx context.Context, id string) error {
	log := p.logger.With(observability.String("item", id))
	item, err := p.store.Get(ctx, id)
	if err != nil {
		log.Error("loading item", observability.Error("error", err))
		return fmt.Errorf("loading item %q: %w", id, err)
	}

	location, err := p.process(ctx, id, item)
	if err != nil {
		log.Warn("item failed", observability.Error("error", err))
		if serr := p.store.SetError(ctx, id, err.Error()); serr != nil {
			log.Error("recording item error", observability.Error("error", serr))
			return errors.Join(fmt.Errorf("%w: %w", ErrItemFailed, err), serr)
		}
		return fmt.Errorf("%w: %w", ErrItemFailed, err)
	}
	log.Info("item processed", observability.String("location", location))
	return nil
}

func (p *Processor) process(ctx context.Context, id string, item *Item) (string, error) {
	content, err := p.converter.ConvertToPdf(ctx, item.HTML, item.Title, item.Options)
	if err != nil {
		return "", err
	}
	location, err := library.AddDocument(ctx, p.sink, library.Document{
		Library:  item.Library,
		Folder:   item.Folder,
		FileName: item.FileName,
		Content:  content,
		Metadata: item.Metadata,
	})
	if err != nil {
		return "", err
	}
	if err := p.store.Delete(ctx, id); err != nil {
		return "", fmt.Errorf("deleting item: %w", err)
	}
	return location, nil
}

// HandleAll processes ids with bounded concurrency. Items are independent:
// a failure does not stop the others. The returned error joins every
// failure.
func (p *Processor) HandleAll(ctx context.Context, ids []string) error {
	errs := make([]error, len(ids))
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			errs[i] = p.HandleItemAdded(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
