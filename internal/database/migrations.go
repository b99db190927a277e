package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "articles table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS articles (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    content TEXT NOT NULL,
    original_url TEXT UNIQUE NOT NULL,
    original_article_id TEXT,
    source TEXT NOT NULL DEFAULT 'original' CHECK(source IN ('original', 'updated')),
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_articles_created ON articles(created_at);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "one updated article per original",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE UNIQUE INDEX IF NOT EXISTS idx_articles_updated_original
    ON articles(original_article_id) WHERE source = 'updated';
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
