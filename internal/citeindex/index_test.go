package citeindex

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/FocuswithJustin/versecite/core/cas"
	"github.com/FocuswithJustin/versecite/core/errors"
	"github.com/FocuswithJustin/versecite/core/refscan"
	"github.com/FocuswithJustin/versecite/internal/logging"
	"github.com/ulikunitz/xz"
)

const readingPlan = "Daily readings are Быт 1;Исх 1:2,4;1 Пет 5-8, 10.Also take a look in:\n Rev 2,4;John 1:2-4,7Gen 1:1-2 2:2,5"

func openTestIndex(t *testing.T, opts ...Option) *Index {
	t.Helper()
	ix, err := Open(filepath.Join(t.TempDir(), "cites.db"), nil, opts...)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { ix.Close() })
	return ix
}

func TestAddAndGet(t *testing.T) {
	ix := openTestIndex(t)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ix.now = func() time.Time { return fixed }
	ctx := context.Background()

	doc, err := ix.Add(ctx, "plan.txt", readingPlan)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if doc.ID != cas.Hash([]byte(readingPlan)) {
		t.Errorf("ID = %s, want BLAKE3 of the text", doc.ID)
	}
	if doc.RefCount != 6 || len(doc.References) != 6 {
		t.Errorf("RefCount = %d, references = %d, want 6", doc.RefCount, len(doc.References))
	}
	if doc.Size != len(readingPlan) {
		t.Errorf("Size = %d, want %d", doc.Size, len(readingPlan))
	}

	got, err := ix.Get(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !reflect.DeepEqual(got.References, doc.References) {
		t.Errorf("stored references differ:\n got %v\nwant %v", got.References, doc.References)
	}
	if !got.IndexedAt.Equal(fixed) {
		t.Errorf("IndexedAt = %v, want %v", got.IndexedAt, fixed)
	}
	if got.References[0].Locations[0].Verses != nil {
		t.Error("whole-chapter location should come back without verses")
	}
}

func TestAddSameTextReplaces(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()

	first, err := ix.Add(ctx, "a.txt", "Gen 1:1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := ix.Add(ctx, "b.txt", "Gen 1:1")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Fatal("same text should give the same ID")
	}

	docs, err := ix.Documents(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].Name != "b.txt" {
		t.Errorf("Documents() = %+v, want one document named b.txt", docs)
	}
	hits, err := ix.Query(ctx, "Gen", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Errorf("re-adding should not duplicate references, got %d hits", len(hits))
	}
}

func TestGetNotFound(t *testing.T) {
	ix := openTestIndex(t)
	_, err := ix.Get(context.Background(), "missing")
	var nf *errors.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Get() error = %v, want *NotFoundError", err)
	}
	if nf.Resource != "document" || nf.ID != "missing" {
		t.Errorf("NotFoundError = %+v", nf)
	}
}

func TestQuery(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()

	for name, text := range map[string]string{
		"one.txt":   "Read Gen 1:1-3 and Exo 2.",
		"two.txt":   "Gen 2:4; Gen 1",
		"three.txt": "gen 1:1",
	} {
		if _, err := ix.Add(ctx, name, text); err != nil {
			t.Fatalf("Add(%s) error = %v", name, err)
		}
	}

	tests := []struct {
		name    string
		book    string
		chapter int
		want    []string
	}{
		{"any chapter", "Gen", 0, []string{"one.txt", "two.txt", "two.txt"}},
		{"chapter one", "Gen", 1, []string{"one.txt", "two.txt"}},
		{"chapter two", "Gen", 2, []string{"two.txt"}},
		{"case sensitive", "gen", 0, []string{"three.txt"}},
		{"no match", "Rev", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := ix.Query(ctx, tt.book, tt.chapter)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			var names []string
			for _, h := range hits {
				names = append(names, h.DocumentName)
				if h.Reference.Book != tt.book {
					t.Errorf("hit book = %q", h.Reference.Book)
				}
			}
			if !reflect.DeepEqual(names, tt.want) {
				t.Errorf("Query(%q, %d) docs = %v, want %v", tt.book, tt.chapter, names, tt.want)
			}
		})
	}

	hits, _ := ix.Query(ctx, "Gen", 2)
	if len(hits) == 1 && hits[0].Reference.String() != "Gen 2:4" {
		t.Errorf("hit reference = %s, want Gen 2:4", hits[0].Reference)
	}
}

func TestQueryValidation(t *testing.T) {
	ix := openTestIndex(t)
	if _, err := ix.Query(context.Background(), "", 1); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("empty book error = %v", err)
	}
	if _, err := ix.Query(context.Background(), "Gen", -1); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("negative chapter error = %v", err)
	}
}

func TestRemove(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()

	doc, err := ix.Add(ctx, "a.txt", "Gen 1:1; Exo 2:3")
	if err != nil {
		t.Fatal(err)
	}
	if err := ix.Remove(ctx, doc.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if hits, _ := ix.Query(ctx, "Exo", 0); len(hits) != 0 {
		t.Errorf("references should be gone after Remove, got %d", len(hits))
	}
	var n int
	if err := ix.db.QueryRow(`SELECT COUNT(*) FROM location_chapters`).Scan(&n); err != nil || n != 0 {
		t.Errorf("location_chapters rows = %d (%v), want 0", n, err)
	}
	if err := ix.Remove(ctx, doc.ID); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("second Remove() error = %v, want ErrNotFound", err)
	}
}

func TestDocumentsEmpty(t *testing.T) {
	ix := openTestIndex(t)
	docs, err := ix.Documents(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if docs == nil || len(docs) != 0 {
		t.Errorf("Documents() = %v, want empty slice", docs)
	}
}

func TestDiagnosticCount(t *testing.T) {
	ix := openTestIndex(t)
	doc, err := ix.Add(context.Background(), "bad.txt", "7; Gen 5-3 1:1")
	if err != nil {
		t.Fatal(err)
	}
	if doc.DiagnosticCount != 2 || doc.RefCount != 1 {
		t.Errorf("counts = %d refs, %d diagnostics; want 1, 2", doc.RefCount, doc.DiagnosticCount)
	}
}

func TestExport(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()
	for _, text := range []string{"Gen 1:1", "Exo 2; Lev 3:4-5"} {
		if _, err := ix.Add(ctx, text+".txt", text); err != nil {
			t.Fatal(err)
		}
	}

	var buf bytes.Buffer
	if err := ix.Export(ctx, &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	xr, err := xz.NewReader(&buf)
	if err != nil {
		t.Fatalf("export is not xz: %v", err)
	}
	sc := bufio.NewScanner(xr)
	var docs []Document
	for sc.Scan() {
		var d Document
		if err := json.Unmarshal(sc.Bytes(), &d); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		docs = append(docs, d)
	}
	if err := sc.Err(); err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Fatalf("exported %d documents, want 2", len(docs))
	}
	if docs[1].Name != "Gen 1:1.txt" || docs[1].References[0].String() != "Gen 1:1" {
		t.Errorf("second document = %+v", docs[1])
	}
	if docs[0].RefCount != 2 || docs[0].References[1].String() != "Lev 3:4-5" {
		t.Errorf("first document = %+v", docs[0])
	}
}

func TestTextWithoutBlobStore(t *testing.T) {
	ix := openTestIndex(t)
	if _, err := ix.Text(context.Background(), "x"); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Text() error = %v, want ErrInvalidInput", err)
	}
	if _, err := ix.Reindex(context.Background()); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Reindex() error = %v, want ErrInvalidInput", err)
	}
}

func TestFailedAddLeavesNoBlob(t *testing.T) {
	dir := t.TempDir()
	store, err := cas.NewStore(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatal(err)
	}
	ix, err := Open(filepath.Join(dir, "cites.db"), nil, WithBlobStore(store))
	if err != nil {
		t.Fatal(err)
	}
	ix.Close()

	text := "See Gen 1:1"
	if _, err := ix.Add(context.Background(), "gen.txt", text); err == nil {
		t.Fatal("Add() on a closed index should fail")
	}
	if store.Exists(cas.Hash([]byte(text))) {
		t.Error("text was stored although the document was not indexed")
	}
}

func TestAddLogsDiagnostics(t *testing.T) {
	var buf bytes.Buffer
	logging.InitLoggerWithWriter(&buf, logging.LevelInfo, logging.FormatJSON)
	t.Cleanup(func() { logging.InitLogger(logging.LevelInfo, logging.FormatText) })

	ix := openTestIndex(t)
	doc, err := ix.Add(context.Background(), "notes.txt", "Gen 5-3 1:1")
	if err != nil {
		t.Fatal(err)
	}

	var found bool
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("invalid log line %q: %v", scanner.Text(), err)
		}
		if entry["msg"] != "scan_diagnostic" {
			continue
		}
		found = true
		if entry["source"] != "notes.txt" || entry["kind"] != "degenerate_range" ||
			entry["text"] != "5-3" || entry["document_id"] != doc.ID {
			t.Errorf("unexpected entry %v", entry)
		}
	}
	if !found {
		t.Error("expected a scan_diagnostic log entry")
	}
}

func TestBlobStoreAndReindex(t *testing.T) {
	dir := t.TempDir()
	store, err := cas.NewStore(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatal(err)
	}
	dbPath := filepath.Join(dir, "cites.db")
	ctx := context.Background()
	text := "See Song of Songs 2:1"

	ix, err := Open(dbPath, nil, WithBlobStore(store))
	if err != nil {
		t.Fatal(err)
	}
	doc, err := ix.Add(ctx, "song.txt", text)
	if err != nil {
		t.Fatal(err)
	}
	if doc.References[0].Book != "Songs" {
		t.Fatalf("default parser book = %q", doc.References[0].Book)
	}
	stored, err := ix.Text(ctx, doc.ID)
	if err != nil || stored != text {
		t.Fatalf("Text() = %q, %v", stored, err)
	}
	ix.Close()

	wide := refscan.NewParser(refscan.WithMaxBookWords(3))
	ix, err = Open(dbPath, wide, WithBlobStore(store))
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()

	n, err := ix.Reindex(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Reindex() = %d, %v", n, err)
	}
	hits, err := ix.Query(ctx, "Song of Songs", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Errorf("after reindex got %d hits for the three-word book", len(hits))
	}

	if err := ix.Remove(ctx, doc.ID); err != nil {
		t.Fatal(err)
	}
	if store.Exists(doc.ID) {
		t.Error("Remove should delete the stored text")
	}
}

func TestReindexHonoursContext(t *testing.T) {
	store, err := cas.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ix := openTestIndex(t, WithBlobStore(store))
	if _, err := ix.Add(context.Background(), "a", "Gen 1"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ix.Reindex(ctx); err == nil {
		t.Error("Reindex() with a cancelled context should fail")
	}
}

func TestBlobDir(t *testing.T) {
	tests := map[string]string{
		"":                  "",
		":memory:":          "",
		"file::memory:?c=1": "",
		"/var/lib/cites.db": "/var/lib/cites.db.blobs",
		"relative/index.db": "relative/index.db.blobs",
	}
	for in, want := range tests {
		if got := BlobDir(in); got != want {
			t.Errorf("BlobDir(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOpenWithTexts(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cites.db")
	ix, err := OpenWithTexts(dbPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()

	doc, err := ix.Add(context.Background(), "a", "Exo 3:14")
	if err != nil {
		t.Fatal(err)
	}
	text, err := ix.Text(context.Background(), doc.ID)
	if err != nil || text != "Exo 3:14" {
		t.Errorf("Text() = %q, %v", text, err)
	}
}

func TestOpenWithTextsInMemory(t *testing.T) {
	ix, err := OpenWithTexts(":memory:", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()
	if _, err := ix.Text(context.Background(), "x"); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("in-memory index should keep no texts, got %v", err)
	}
}
