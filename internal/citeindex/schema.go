package citeindex

// schema is applied statement by statement on Open.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id               TEXT PRIMARY KEY,
		name             TEXT NOT NULL,
		size             INTEGER NOT NULL,
		indexed_at       TEXT NOT NULL,
		ref_count        INTEGER NOT NULL,
		diagnostic_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS refs (
		id     INTEGER PRIMARY KEY,
		doc_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		ord    INTEGER NOT NULL,
		book   TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS refs_doc ON refs(doc_id, ord)`,
	`CREATE INDEX IF NOT EXISTS refs_book ON refs(book)`,
	// chapters and verses hold the expanded lists as JSON arrays; verses is
	// NULL for whole-chapter locations.
	`CREATE TABLE IF NOT EXISTS locations (
		id       INTEGER PRIMARY KEY,
		ref_id   INTEGER NOT NULL REFERENCES refs(id) ON DELETE CASCADE,
		ord      INTEGER NOT NULL,
		chapters TEXT NOT NULL,
		verses   TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS locations_ref ON locations(ref_id, ord)`,
	`CREATE TABLE IF NOT EXISTS location_chapters (
		location_id INTEGER NOT NULL REFERENCES locations(id) ON DELETE CASCADE,
		chapter     INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS location_chapters_chapter ON location_chapters(chapter, location_id)`,
}
