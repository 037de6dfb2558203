package archive

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id                 TEXT PRIMARY KEY,
	started_at         DATETIME NOT NULL,
	finished_at        DATETIME NOT NULL,
	emails_processed   INTEGER NOT NULL DEFAULT 0,
	emails_filtered    INTEGER NOT NULL DEFAULT 0,
	rows_added         INTEGER NOT NULL DEFAULT 0,
	emails_marked_read INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS run_rows (
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	message_id TEXT NOT NULL,
	sender     TEXT NOT NULL DEFAULT '',
	subject    TEXT NOT NULL DEFAULT '',
	sent_at    TEXT NOT NULL DEFAULT '',
	keywords   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, message_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_run_rows_message_id ON run_rows(message_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
