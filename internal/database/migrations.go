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
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS posts (
    id TEXT PRIMARY KEY,
    subreddit TEXT NOT NULL,
    title TEXT NOT NULL,
    body TEXT,
    author TEXT,
    url TEXT,
    permalink TEXT,
    score INTEGER DEFAULT 0,
    num_comments INTEGER DEFAULT 0,
    created_utc INTEGER NOT NULL,
    content TEXT,
    content_fetched INTEGER DEFAULT 0,
    fetched_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS comments (
    id TEXT PRIMARY KEY,
    post_id TEXT NOT NULL REFERENCES posts(id),
    body TEXT,
    author TEXT,
    score INTEGER DEFAULT 0,
    created_utc INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS classifications (
    post_id TEXT PRIMARY KEY REFERENCES posts(id),
    model_label TEXT NOT NULL,
    confidence REAL NOT NULL,
    method TEXT NOT NULL CHECK(method IN ('rule', 'model')),
    classifier_version INTEGER NOT NULL,
    classified_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT UNIQUE NOT NULL,
    window_start INTEGER NOT NULL,
    window_end INTEGER NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('pending', 'succeeded', 'failed', 'partial')),
    posts_ingested INTEGER DEFAULT 0,
    posts_classified INTEGER DEFAULT 0,
    error_detail TEXT,
    started_at TEXT DEFAULT (datetime('now')),
    finished_at TEXT
);

CREATE TABLE IF NOT EXISTS markers (
    name TEXT PRIMARY KEY,
    value INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS post_summaries (
    post_id TEXT PRIMARY KEY REFERENCES posts(id),
    period_start INTEGER NOT NULL,
    summary TEXT NOT NULL,
    themes TEXT,
    generated_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS weekly_metrics (
    period_start INTEGER NOT NULL,
    model_label TEXT NOT NULL,
    n_posts INTEGER DEFAULT 0,
    avg_score REAL DEFAULT 0,
    avg_comments REAL DEFAULT 0,
    PRIMARY KEY (period_start, model_label)
);

CREATE TABLE IF NOT EXISTS weekly_reports (
    period_start INTEGER PRIMARY KEY,
    body_markdown TEXT NOT NULL,
    post_count INTEGER DEFAULT 0,
    generated_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_posts_created ON posts(created_utc);
CREATE INDEX IF NOT EXISTS idx_posts_subreddit ON posts(subreddit);
CREATE INDEX IF NOT EXISTS idx_comments_post ON comments(post_id);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_summaries_period ON post_summaries(period_start);
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
