package sqlite

// schema defines the document store tables. The documents table holds the
// current version of each document; document_history holds every committed
// version, which is what makes merges reversible.
const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id               TEXT PRIMARY KEY,
	content          TEXT NOT NULL,
	topics           TEXT NOT NULL DEFAULT '[]',
	confidence       REAL NOT NULL DEFAULT 0,
	status           TEXT NOT NULL DEFAULT 'draft',
	source_questions TEXT NOT NULL DEFAULT '[]',
	created_at       TIMESTAMP NOT NULL,
	updated_at       TIMESTAMP NOT NULL,
	version          INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS document_history (
	id               TEXT NOT NULL,
	version          INTEGER NOT NULL,
	content          TEXT NOT NULL,
	topics           TEXT NOT NULL DEFAULT '[]',
	confidence       REAL NOT NULL DEFAULT 0,
	status           TEXT NOT NULL DEFAULT 'draft',
	source_questions TEXT NOT NULL DEFAULT '[]',
	created_at       TIMESTAMP NOT NULL,
	updated_at       TIMESTAMP NOT NULL,
	PRIMARY KEY (id, version)
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_confidence ON documents(confidence);

CREATE TABLE IF NOT EXISTS config (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
