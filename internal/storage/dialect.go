package storage

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// dialect captures what differs between the supported SQL backends.
type dialect struct {
	name        string
	driver      string
	placeholder sq.PlaceholderFormat
	schema      string
}

var sqliteDialect = dialect{
	name:        "sqlite",
	driver:      "sqlite",
	placeholder: sq.Question,
	schema: `
	CREATE TABLE IF NOT EXISTS articles (
		id INTEGER PRIMARY KEY,
		link TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		body_digest TEXT,
		published_ref TEXT,
		recorded_at BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_articles_recorded_at ON articles(recorded_at);
	`,
}

var postgresDialect = dialect{
	name:        "postgres",
	driver:      "pgx",
	placeholder: sq.Dollar,
	schema: `
	CREATE TABLE IF NOT EXISTS articles (
		id BIGSERIAL PRIMARY KEY,
		link TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		body_digest TEXT,
		published_ref TEXT,
		recorded_at BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_articles_recorded_at ON articles(recorded_at);
	`,
}

func dialectFor(name string) (dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return sqliteDialect, nil
	case "postgres", "postgresql", "pgx":
		return postgresDialect, nil
	default:
		return dialect{}, fmt.Errorf("unsupported driver %q", name)
	}
}

// sqliteDSN turns a file path into a modernc DSN with a busy timeout so that
// a concurrent reader (e.g. a prune run) waits instead of failing.
func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") || strings.Contains(path, "?") {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"
}
