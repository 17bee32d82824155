package library

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type memorySink struct {
	folders    map[string]bool
	files      map[string][]byte
	fields     map[string]map[string]string
	creates    int
	raceCreate bool
	uploadErr  error
}

func newMemorySink() *memorySink {
	return &memorySink{
		folders: map[string]bool{},
		files:   map[string][]byte{},
		fields:  map[string]map[string]string{},
	}
}

func (m *memorySink) FolderExists(_ context.Context, library, folder string) (bool, error) {
	return m.folders[library+"/"+folder], nil
}

func (m *memorySink) CreateFolder(_ context.Context, library, folder string) error {
	m.creates++
	if m.raceCreate {
		m.folders[library+"/"+folder] = true
		return ErrFolderExists
	}
	m.folders[library+"/"+folder] = true
	return nil
}

func (m *memorySink) Upload(_ context.Context, library, folder, fileName string, content []byte, overwrite bool) (string, error) {
	if m.uploadErr != nil {
		return "", m.uploadErr
	}
	loc := library + "/" + folder + "/" + fileName
	if _, ok := m.files[loc]; ok && !overwrite {
		return "", errors.New("exists")
	}
	m.files[loc] = content
	return loc, nil
}

func (m *memorySink) SetFields(_ context.Context, location string, fields map[string]string) error {
	if m.fields[location] == nil {
		m.fields[location] = map[string]string{}
	}
	for k, v := range fields {
		m.fields[location][k] = v
	}
	return nil
}

func TestEnsureFolder_Idempotent(t *testing.T) {
	sink := newMemorySink()
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := EnsureFolder(ctx, sink, "Docs", "2024"); err != nil {
			t.Fatalf("EnsureFolder #%d: %v", i+1, err)
		}
	}
	if sink.creates != 1 {
		t.Fatalf("expected one create, got %d", sink.creates)
	}
}

func TestEnsureFolder_ConcurrentCreateIsSuccess(t *testing.T) {
	sink := newMemorySink()
	sink.raceCreate = true
	if err := EnsureFolder(context.Background(), sink, "Docs", "2024"); err != nil {
		t.Fatalf("EnsureFolder: %v", err)
	}
}

func TestAddDocument(t *testing.T) {
	sink := newMemorySink()
	ctx := context.Background()
	doc := Document{Library: "Docs", Folder: "Reports", FileName: "r.pdf", Content: []byte("v1"), Metadata: "DocType~Report#bad#LookupId~13"}
	loc, err := AddDocument(ctx, sink, doc)
	if err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	if loc != "Docs/Reports/r.pdf" {
		t.Fatalf("location = %q", loc)
	}
	want := map[string]string{"DocType": "Report", "LookupId": "13"}
	if !reflect.DeepEqual(sink.fields[loc], want) {
		t.Fatalf("fields = %v, want %v", sink.fields[loc], want)
	}

	doc.Content = []byte("v2")
	doc.Metadata = ""
	if _, err := AddDocument(ctx, sink, doc); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if string(sink.files[loc]) != "v2" {
		t.Fatalf("content = %q, want overwritten", sink.files[loc])
	}
	if sink.creates != 1 {
		t.Fatalf("folder created %d times", sink.creates)
	}
}

func TestAddDocument_NoValidFields(t *testing.T) {
	sink := newMemorySink()
	loc, err := AddDocument(context.Background(), sink, Document{Library: "Docs", FileName: "a.pdf", Metadata: "junk#also-junk"})
	if err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	if _, ok := sink.fields[loc]; ok {
		t.Fatal("no fields should be written for malformed metadata")
	}
}

func TestAddDocument_Errors(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		doc  Document
		sink func() *memorySink
		want error
	}{
		{"empty library", Document{FileName: "a.pdf"}, newMemorySink, ErrInvalidName},
		{"empty file name", Document{Library: "Docs"}, newMemorySink, ErrInvalidName},
		{"upload failure", Document{Library: "Docs", FileName: "a.pdf"}, func() *memorySink {
			s := newMemorySink()
			s.uploadErr = boom
			return s
		}, boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := AddDocument(context.Background(), tt.sink(), tt.doc); !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}
}
