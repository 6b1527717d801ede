// Package storage is the history of published articles used for deduplication.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// RetentionWindow is how long published articles are remembered.
const RetentionWindow = 7 * 24 * time.Hour

// Article is one published entry.
type Article struct {
	Link         string
	Title        string
	BodyDigest   string
	PublishedRef string // empty when publication did not produce a reference
	RecordedAt   time.Time
}

// InsertResult is the outcome of Insert. A duplicate link is not an error.
type InsertResult int

const (
	Inserted InsertResult = iota
	AlreadyExists
)

func (r InsertResult) String() string {
	if r == AlreadyExists {
		return "already_exists"
	}
	return "inserted"
}

// Options selects and tunes the backend.
type Options struct {
	Driver string // sqlite | postgres
	DSN    string // file path for sqlite, connection string for postgres

	MaxOpenConns int
	ConnMaxLife  time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// Store keeps Article records in a single `articles` table keyed by link.
// Every call is a single statement on a pooled connection; the UNIQUE
// constraint on link is what keeps concurrent writers consistent.
type Store struct {
	db      *sql.DB
	dialect dialect
	builder sq.StatementBuilderType
	now     func() time.Time
	log     *slog.Logger
}

// Open connects to the configured backend and makes sure the schema exists.
func Open(ctx context.Context, opts Options) (*Store, error) {
	d, err := dialectFor(opts.Driver)
	if err != nil {
		return nil, err
	}
	if opts.DSN == "" {
		return nil, fmt.Errorf("%s: data source is required", d.name)
	}

	dsn := opts.DSN
	if d.name == sqliteDialect.name {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}

	switch {
	case opts.MaxOpenConns > 0:
		db.SetMaxOpenConns(opts.MaxOpenConns)
	case d.name == sqliteDialect.name:
		// one writer at a time avoids SQLITE_BUSY inside a single process
		db.SetMaxOpenConns(1)
	}
	if opts.ConnMaxLife > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLife)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.name, err)
	}

	s := New(db, d.name, opts.Logger, opts.Now)
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.log.Info("history store ready", "driver", d.name)
	return s, nil
}

// New wraps an already opened handle. driver selects the SQL dialect.
func New(db *sql.DB, driver string, log *slog.Logger, now func() time.Time) *Store {
	d, err := dialectFor(driver)
	if err != nil {
		d = sqliteDialect
	}
	if log == nil {
		log = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Store{
		db:      db,
		dialect: d,
		builder: sq.StatementBuilder.PlaceholderFormat(d.placeholder),
		now:     now,
		log:     log,
	}
}

func (s *Store) initSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(s.dialect.schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Exists reports whether link has already been recorded.
func (s *Store) Exists(ctx context.Context, link string) (bool, error) {
	query, args, err := s.builder.
		Select("1").
		From("articles").
		Where(sq.Eq{"link": link}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}

	var one int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check link: %w", err)
	}
	return true, nil
}

// RecentTitles returns up to limit titles, most recently recorded first.
func (s *Store) RecentTitles(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	query, args, err := s.builder.
		Select("title").
		From("articles").
		OrderBy("recorded_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build titles query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query titles: %w", err)
	}
	defer rows.Close()

	titles := make([]string, 0, limit)
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scan title: %w", err)
		}
		titles = append(titles, title)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return titles, nil
}

// Insert records a published article. Inserting a link that is already
// present leaves the existing record untouched and reports AlreadyExists.
func (s *Store) Insert(ctx context.Context, a Article) (InsertResult, error) {
	if a.Link == "" {
		return Inserted, fmt.Errorf("insert: link is required")
	}
	recordedAt := a.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = s.now()
	}

	query, args, err := s.builder.
		Insert("articles").
		Columns("link", "title", "body_digest", "published_ref", "recorded_at").
		Values(a.Link, a.Title, a.BodyDigest, nullString(a.PublishedRef), recordedAt.UTC().UnixMilli()).
		Suffix("ON CONFLICT (link) DO NOTHING").
		ToSql()
	if err != nil {
		return Inserted, fmt.Errorf("build insert: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return Inserted, fmt.Errorf("insert article: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return Inserted, fmt.Errorf("insert article: rows affected: %w", err)
	}
	if n == 0 {
		s.log.Info("article already recorded", "link", a.Link)
		return AlreadyExists, nil
	}
	return Inserted, nil
}

// EvictOlderThan deletes records whose recorded_at is strictly before now-age.
func (s *Store) EvictOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := s.now().Add(-age).UTC().UnixMilli()

	query, args, err := s.builder.
		Delete("articles").
		Where(sq.Lt{"recorded_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build evict: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("evict: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("evict: rows affected: %w", err)
	}
	if rows > 0 {
		s.log.Info("evicted old articles", "count", rows, "older_than", age)
	}
	return rows, nil
}

// Get loads a single record, mostly for audit and tests.
func (s *Store) Get(ctx context.Context, link string) (Article, bool, error) {
	query, args, err := s.builder.
		Select("link", "title", "body_digest", "published_ref", "recorded_at").
		From("articles").
		Where(sq.Eq{"link": link}).
		ToSql()
	if err != nil {
		return Article{}, false, fmt.Errorf("build get: %w", err)
	}

	var (
		a          Article
		digest     sql.NullString
		ref        sql.NullString
		recordedAt int64
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&a.Link, &a.Title, &digest, &ref, &recordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Article{}, false, nil
	}
	if err != nil {
		return Article{}, false, fmt.Errorf("get article: %w", err)
	}
	a.BodyDigest = digest.String
	a.PublishedRef = ref.String
	a.RecordedAt = time.UnixMilli(recordedAt).UTC()
	return a, true, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	query, args, err := s.builder.Select("COUNT(*)").From("articles").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return n, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
