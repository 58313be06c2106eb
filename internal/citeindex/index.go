// Package citeindex stores the citations found in documents in SQLite and
// answers "which documents cite this book and chapter" queries.
package citeindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/FocuswithJustin/versecite/core/cas"
	"github.com/FocuswithJustin/versecite/core/errors"
	"github.com/FocuswithJustin/versecite/core/refscan"
	"github.com/FocuswithJustin/versecite/core/sqlite"
	"github.com/FocuswithJustin/versecite/internal/logging"
	"github.com/ulikunitz/xz"
)

// DocumentInfo is the summary row of an indexed document.
type DocumentInfo struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Size            int       `json:"size"`
	IndexedAt       time.Time `json:"indexed_at"`
	RefCount        int       `json:"ref_count"`
	DiagnosticCount int       `json:"diagnostic_count"`
}

// Document is an indexed document with its references in citation order.
type Document struct {
	DocumentInfo
	References []refscan.BibleReference `json:"references"`
}

// Hit is one reference matching a Query.
type Hit struct {
	DocumentID   string                 `json:"document_id"`
	DocumentName string                 `json:"document_name"`
	Ordinal      int                    `json:"ordinal"`
	Reference    refscan.BibleReference `json:"reference"`
}

// Index is a citation index backed by SQLite. It is safe for concurrent use.
type Index struct {
	db     *sql.DB
	parser *refscan.Parser
	blobs  *cas.Store
	now    func() time.Time
}

// Option configures an Index.
type Option func(*Index)

// WithBlobStore keeps the source text of added documents in store, enabling
// Text and Reindex.
func WithBlobStore(store *cas.Store) Option {
	return func(ix *Index) {
		ix.blobs = store
	}
}

// Open opens or creates the index database at path. A nil parser means
// refscan defaults.
func Open(path string, p *refscan.Parser, opts ...Option) (*Index, error) {
	if p == nil {
		p = refscan.NewParser()
	}
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "creating index schema")
		}
	}

	ix := &Index{db: db, parser: p, now: time.Now}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// BlobDir returns where the source texts of the database at path are kept,
// or "" for in-memory databases.
func BlobDir(path string) string {
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file::memory:") {
		return ""
	}
	return path + ".blobs"
}

// OpenWithTexts opens the index at path with a blob store in BlobDir(path).
func OpenWithTexts(path string, p *refscan.Parser) (*Index, error) {
	dir := BlobDir(path)
	if dir == "" {
		return Open(path, p)
	}
	store, err := cas.NewStore(dir)
	if err != nil {
		return nil, err
	}
	return Open(path, p, WithBlobStore(store))
}

// Close closes the database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Add scans text and stores its references under the BLAKE3 hash of text.
// Adding the same text again replaces the earlier rows. The text goes to the
// blob store only once the rows are committed.
func (ix *Index) Add(ctx context.Context, name, text string) (*Document, error) {
	id := cas.Hash([]byte(text))
	doc := ix.scan(id, name, text)
	if err := ix.withTx(ctx, func(tx *sql.Tx) error {
		return writeDocument(ctx, tx, doc)
	}); err != nil {
		return nil, errors.Wrapf(err, "indexing %s", name)
	}

	if ix.blobs != nil {
		if _, err := ix.blobs.Put([]byte(text)); err != nil {
			return nil, errors.Wrapf(err, "storing text of %s", name)
		}
	}

	logging.IndexEvent("document_added", id,
		"name", name,
		"references", doc.RefCount,
		"diagnostics", doc.DiagnosticCount)
	return doc, nil
}

func (ix *Index) scan(id, name, text string) *Document {
	res := ix.parser.ParseDetailed(text)
	for _, d := range res.Diagnostics {
		logging.DiagnosticEvent(name, d.Kind.String(), d.Text, d.Offset, "document_id", id)
	}
	return &Document{
		DocumentInfo: DocumentInfo{
			ID:              id,
			Name:            name,
			Size:            len(text),
			IndexedAt:       ix.now().UTC(),
			RefCount:        len(res.References),
			DiagnosticCount: len(res.Diagnostics),
		},
		References: res.References,
	}
}

// Get returns a document with its references.
func (ix *Index) Get(ctx context.Context, id string) (*Document, error) {
	row := ix.db.QueryRowContext(ctx, `
		SELECT id, name, size, indexed_at, ref_count, diagnostic_count
		FROM documents WHERE id = ?`, id)
	info, err := scanInfo(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("document", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "loading document %s", id)
	}

	rows, err := ix.db.QueryContext(ctx,
		`SELECT id, book FROM refs WHERE doc_id = ? ORDER BY ord`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "loading references of %s", id)
	}
	type refRow struct {
		id   int64
		book string
	}
	var refRows []refRow
	for rows.Next() {
		var r refRow
		if err := rows.Scan(&r.id, &r.book); err != nil {
			rows.Close()
			return nil, err
		}
		refRows = append(refRows, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	doc := &Document{DocumentInfo: *info, References: make([]refscan.BibleReference, 0, len(refRows))}
	for _, r := range refRows {
		locs, err := ix.locations(ctx, r.id)
		if err != nil {
			return nil, err
		}
		doc.References = append(doc.References, refscan.BibleReference{Book: r.book, Locations: locs})
	}
	return doc, nil
}

// Documents lists all indexed documents by name.
func (ix *Index) Documents(ctx context.Context) ([]DocumentInfo, error) {
	rows, err := ix.db.QueryContext(ctx, `
		SELECT id, name, size, indexed_at, ref_count, diagnostic_count
		FROM documents ORDER BY name, id`)
	if err != nil {
		return nil, errors.Wrap(err, "listing documents")
	}
	defer rows.Close()

	docs := make([]DocumentInfo, 0)
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *info)
	}
	return docs, rows.Err()
}

// Query returns the references to book, restricted to chapter unless it is
// 0. Book names match exactly as written in the source text.
func (ix *Index) Query(ctx context.Context, book string, chapter int) ([]Hit, error) {
	if book == "" {
		return nil, errors.NewValidation("book", "must not be empty")
	}
	if chapter < 0 {
		return nil, errors.NewValidation("chapter", "must not be negative")
	}

	q := `SELECT r.id, r.doc_id, d.name, r.ord, r.book
		FROM refs r JOIN documents d ON d.id = r.doc_id
		WHERE r.book = ?`
	args := []any{book}
	if chapter > 0 {
		q += ` AND EXISTS (
			SELECT 1 FROM locations l
			JOIN location_chapters lc ON lc.location_id = l.id
			WHERE l.ref_id = r.id AND lc.chapter = ?)`
		args = append(args, chapter)
	}
	q += ` ORDER BY d.name, r.doc_id, r.ord`

	rows, err := ix.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s %d", book, chapter)
	}
	type hitRow struct {
		refID int64
		hit   Hit
	}
	var found []hitRow
	for rows.Next() {
		var h hitRow
		if err := rows.Scan(&h.refID, &h.hit.DocumentID, &h.hit.DocumentName, &h.hit.Ordinal, &h.hit.Reference.Book); err != nil {
			rows.Close()
			return nil, err
		}
		found = append(found, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(found))
	for _, h := range found {
		locs, err := ix.locations(ctx, h.refID)
		if err != nil {
			return nil, err
		}
		h.hit.Reference.Locations = locs
		hits = append(hits, h.hit)
	}
	return hits, nil
}

// Remove deletes a document and its references.
func (ix *Index) Remove(ctx context.Context, id string) error {
	res, err := ix.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "removing %s", id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NewNotFound("document", id)
	}
	if ix.blobs != nil {
		if err := ix.blobs.Delete(id); err != nil {
			return err
		}
	}
	logging.IndexEvent("document_removed", id)
	return nil
}

// Text returns the stored source text of a document.
func (ix *Index) Text(ctx context.Context, id string) (string, error) {
	if ix.blobs == nil {
		return "", errors.NewValidation("blob store", "index keeps no source text")
	}
	var exists int
	err := ix.db.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return "", errors.NewNotFound("document", id)
	}
	if err != nil {
		return "", err
	}
	data, err := ix.blobs.Get(id)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Reindex rescans every stored text with the index's parser and returns the
// number of documents rewritten.
func (ix *Index) Reindex(ctx context.Context) (int, error) {
	if ix.blobs == nil {
		return 0, errors.NewValidation("blob store", "index keeps no source text")
	}
	infos, err := ix.Documents(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		data, err := ix.blobs.Get(info.ID)
		if err != nil {
			return n, errors.Wrapf(err, "reading text of %s", info.Name)
		}
		doc := ix.scan(info.ID, info.Name, string(data))
		if err := ix.withTx(ctx, func(tx *sql.Tx) error {
			return writeDocument(ctx, tx, doc)
		}); err != nil {
			return n, errors.Wrapf(err, "reindexing %s", info.Name)
		}
		n++
	}
	logging.IndexEvent("reindexed", "", "documents", n)
	return n, nil
}

// Export writes every document as one JSON object per line, xz-compressed.
func (ix *Index) Export(ctx context.Context, w io.Writer) error {
	infos, err := ix.Documents(ctx)
	if err != nil {
		return err
	}

	xw, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("creating xz writer: %w", err)
	}
	enc := json.NewEncoder(xw)
	for _, info := range infos {
		doc, err := ix.Get(ctx, info.ID)
		if err != nil {
			return err
		}
		if err := enc.Encode(doc); err != nil {
			return errors.NewIO("write", "export", err)
		}
	}
	if err := xw.Close(); err != nil {
		return errors.NewIO("write", "export", err)
	}
	return nil
}

func (ix *Index) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (ix *Index) locations(ctx context.Context, refID int64) ([]refscan.VerseLocation, error) {
	rows, err := ix.db.QueryContext(ctx,
		`SELECT chapters, verses FROM locations WHERE ref_id = ? ORDER BY ord`, refID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locs []refscan.VerseLocation
	for rows.Next() {
		var chapters string
		var verses sql.NullString
		if err := rows.Scan(&chapters, &verses); err != nil {
			return nil, err
		}
		var loc refscan.VerseLocation
		if err := json.Unmarshal([]byte(chapters), &loc.Chapters); err != nil {
			return nil, &errors.ParseError{Format: "chapters column", Input: chapters, Message: err.Error(), Err: err}
		}
		if verses.Valid {
			if err := json.Unmarshal([]byte(verses.String), &loc.Verses); err != nil {
				return nil, &errors.ParseError{Format: "verses column", Input: verses.String, Message: err.Error(), Err: err}
			}
		}
		locs = append(locs, loc)
	}
	return locs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInfo(row rowScanner) (*DocumentInfo, error) {
	var info DocumentInfo
	var indexedAt string
	if err := row.Scan(&info.ID, &info.Name, &info.Size, &indexedAt, &info.RefCount, &info.DiagnosticCount); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, indexedAt)
	if err != nil {
		return nil, &errors.ParseError{Format: "indexed_at", Input: indexedAt, Message: err.Error(), Err: err}
	}
	info.IndexedAt = t
	return &info, nil
}

// writeDocument replaces the rows of doc inside tx.
func writeDocument(ctx context.Context, tx *sql.Tx, doc *Document) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, doc.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (id, name, size, indexed_at, ref_count, diagnostic_count)
		VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Name, doc.Size, doc.IndexedAt.Format(time.RFC3339Nano),
		doc.RefCount, doc.DiagnosticCount); err != nil {
		return err
	}

	for ord, ref := range doc.References {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO refs (doc_id, ord, book) VALUES (?, ?, ?)`, doc.ID, ord, ref.Book)
		if err != nil {
			return err
		}
		refID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for lord, loc := range ref.Locations {
			if err := writeLocation(ctx, tx, refID, lord, loc); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeLocation(ctx context.Context, tx *sql.Tx, refID int64, ord int, loc refscan.VerseLocation) error {
	chapters, err := json.Marshal(loc.Chapters)
	if err != nil {
		return err
	}
	var verses sql.NullString
	if loc.HasVerses() {
		b, err := json.Marshal(loc.Verses)
		if err != nil {
			return err
		}
		verses = sql.NullString{String: string(b), Valid: true}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO locations (ref_id, ord, chapters, verses) VALUES (?, ?, ?, ?)`,
		refID, ord, string(chapters), verses)
	if err != nil {
		return err
	}
	locID, err := res.LastInsertId()
	if err != nil {
		return err
	}
	for _, ch := range loc.Chapters {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO location_chapters (location_id, chapter) VALUES (?, ?)`, locID, ch); err != nil {
			return err
		}
	}
	return nil
}
