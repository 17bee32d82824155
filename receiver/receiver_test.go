package receiver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/wudi/tagpdf/library"
)

type fakeConverter struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error // by title
}

func (f *fakeConverter) ConvertToPdf(_ context.Context, markup, title, flagsRaw string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, title+"|"+flagsRaw)
	f.mu.Unlock()
	if err := f.fail[title]; err != nil {
		return nil, err
	}
	return []byte("%PDF-2.0 " + markup), nil
}

func setup(t *testing.T) (*SpoolStore, *library.FileSystem) {
	t.Helper()
	store, err := NewSpoolStore(filepath.Join(t.TempDir(), "spool"))
	if err != nil {
		t.Fatalf("NewSpoolStore: %v", err)
	}
	sink, err := library.NewFileSystem(filepath.Join(t.TempDir(), "library"))
	if err != nil {
		t.Fatalf("NewFileSystem: %v", err)
	}
	return store, sink
}

func sampleItem(title string) Item {
	return Item{
		Title:    title,
		HTML:     "<p>" + title + "</p>",
		Options:  "9",
		Library:  "Reports",
		Folder:   "2024",
		FileName: strings.ToLower(title) + ".pdf",
		Metadata: "DocType~Report#LookupId~13",
	}
}

func TestHandleItemAdded_Success(t *testing.T) {
	ctx := context.Background()
	store, sink := setup(t)
	id, err := store.Enqueue(ctx, sampleItem("Annual"))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	conv := &fakeConverter{}
	p := NewProcessor(store, conv, sink)
	if err := p.HandleItemAdded(ctx, id); err != nil {
		t.Fatalf("HandleItemAdded: %v", err)
	}
	if diff := cmp.Diff([]string{"Annual|9"}, conv.calls); diff != "" {
		t.Fatalf("converter calls (-want +got):\n%s", diff)
	}
	loc := filepath.Join(sink.Root(), "Reports", "2024", "annual.pdf")
	data, err := os.ReadFile(loc)
	if err != nil {
		t.Fatalf("stored file: %v", err)
	}
	if string(data) != "%PDF-2.0 <p>Annual</p>" {
		t.Fatalf("content = %q", data)
	}
	fields, err := sink.Fields(loc)
	if err != nil {
		t.Fatalf("Fields: %v", err)
	}
	if diff := cmp.Diff(map[string]string{"DocType": "Report", "LookupId": "13"}, fields); diff != "" {
		t.Fatalf("fields (-want +got):\n%s", diff)
	}
	if _, err := store.Get(ctx, id); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("item should be deleted, got %v", err)
	}
}

func TestHandleItemAdded_FailureRecordsError(t *testing.T) {
	ctx := context.Background()
	store, sink := setup(t)
	id, err := store.Enqueue(ctx, sampleItem("Broken"))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	boom := errors.New("layout exploded")
	conv := &fakeConverter{fail: map[string]error{"Broken": boom}}
	p := NewProcessor(store, conv, sink)

	err = p.HandleItemAdded(ctx, id)
	if !errors.Is(err, ErrItemFailed) || !errors.Is(err, boom) {
		t.Fatalf("error = %v", err)
	}
	item, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("item should remain queued: %v", err)
	}
	if item.Error != "layout exploded" {
		t.Fatalf("recorded error = %q", item.Error)
	}
	want := sampleItem("Broken")
	want.ID = id
	want.Error = "layout exploded"
	if diff := cmp.Diff(want, *item); diff != "" {
		t.Fatalf("item (-want +got):\n%s", diff)
	}
	if len(conv.calls) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(conv.calls))
	}
	if _, err := os.Stat(filepath.Join(sink.Root(), "Reports")); !os.IsNotExist(err) {
		t.Fatalf("nothing should be stored on failure, stat err = %v", err)
	}

	pending, err := store.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("failed items are not pending: %v", pending)
	}
}

func TestHandleItemAdded_SinkFailure(t *testing.T) {
	ctx := context.Background()
	store, sink := setup(t)
	item := sampleItem("Escape")
	item.Folder = "../outside"
	id, _ := store.Enqueue(ctx, item)
	p := NewProcessor(store, &fakeConverter{}, sink)
	if err := p.HandleItemAdded(ctx, id); !errors.Is(err, library.ErrInvalidName) {
		t.Fatalf("error = %v", err)
	}
	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !strings.Contains(got.Error, "invalid name") {
		t.Fatalf("recorded error = %q", got.Error)
	}
}

func TestHandleItemAdded_UnknownItem(t *testing.T) {
	store, sink := setup(t)
	p := NewProcessor(store, &fakeConverter{}, sink)
	if err := p.HandleItemAdded(context.Background(), "missing"); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("error = %v", err)
	}
}

type countingConverter struct {
	inFlight, peak atomic.Int32
}

func (c *countingConverter) ConvertToPdf(_ context.Context, markup, _, _ string) ([]byte, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return []byte(markup), nil
}

func TestHandleAll(t *testing.T) {
	ctx := context.Background()
	store, sink := setup(t)
	var ids []string
	for _, title := range []string{"A", "B", "C", "D", "E"} {
		id, err := store.Enqueue(ctx, sampleItem(title))
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		ids = append(ids, id)
	}
	pending, err := store.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if diff := cmp.Diff(ids, pending, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Fatalf("pending (-want +got):\n%s", diff)
	}
	conv := &countingConverter{}
	p := NewProcessor(store, conv, sink, WithConcurrency(2))
	if err := p.HandleAll(ctx, append(ids, "missing")); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("HandleAll error = %v", err)
	}
	if peak := conv.peak.Load(); peak > 2 {
		t.Fatalf("concurrency limit exceeded: %d", peak)
	}
	entries, _ := os.ReadDir(filepath.Join(sink.Root(), "Reports", "2024"))
	pdfs := 0
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".pdf" {
			pdfs++
		}
	}
	if pdfs != 5 {
		t.Fatalf("expected 5 stored documents, got %d", pdfs)
	}
	if rest, _ := store.Pending(ctx); len(rest) != 0 {
		t.Fatalf("items left: %v", rest)
	}
}

func TestSpoolStore_RejectsBadIDs(t *testing.T) {
	store, _ := setup(t)
	for _, id := range []string{"", "..", "a/b"} {
		if _, err := store.Get(context.Background(), id); !errors.Is(err, ErrItemNotFound) {
			t.Fatalf("Get(%q) error = %v", id, err)
		}
	}
}

func TestSpoolStore_StrictDecoding(t *testing.T) {
	store, _ := setup(t)
	if err := os.WriteFile(filepath.Join(store.dir, "odd.yaml"), []byte("title: x\nunknown: y\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(context.Background(), "odd"); err == nil {
		t.Fatal("unknown fields should be rejected")
	}
}
