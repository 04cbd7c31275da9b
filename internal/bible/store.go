package bible

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/verselink-labs/verselink-core/internal/config"
	_ "modernc.org/sqlite"
)

// VerseItem is one verse's number and text within a chapter.
type VerseItem struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Translation describes one Bible translation held in the store.
type Translation struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Year    int    `json:"year,omitempty"`
	Default bool   `json:"default"`
}

// Store wraps the SQLite Bible database. The schema mirrors the bundled
// database builder: translations, books and verses tables with a composite
// lookup index.
type Store struct {
	db  *sql.DB
	cfg config.BibleConfig
	log *slog.Logger
}

// Open opens (creating if necessary) the Bible database and ensures the
// schema and book metadata exist.
func Open(ctx context.Context, cfg config.BibleConfig, log *slog.Logger) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.seedBooks(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS translations (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    abbreviation TEXT NOT NULL,
    year INTEGER,
    is_default INTEGER DEFAULT 0
);
CREATE TABLE IF NOT EXISTS books (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    abbreviation TEXT NOT NULL,
    testament TEXT NOT NULL,
    chapters INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS verses (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    translation_id TEXT NOT NULL,
    book_id INTEGER NOT NULL,
    chapter INTEGER NOT NULL,
    verse INTEGER NOT NULL,
    text TEXT NOT NULL,
    FOREIGN KEY (translation_id) REFERENCES translations(id),
    FOREIGN KEY (book_id) REFERENCES books(id)
);
CREATE INDEX IF NOT EXISTS idx_verses_lookup ON verses(translation_id, book_id, chapter, verse);
CREATE INDEX IF NOT EXISTS idx_books_name ON books(name);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) seedBooks(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`).Scan(&count); err != nil {
		return fmt.Errorf("count books: %w", err)
	}
	if count > 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, b := range Books {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO books(id, name, abbreviation, testament, chapters) VALUES(?, ?, ?, ?, ?)`,
			b.ID, b.Name, b.Abbrev, b.Testament, b.Chapters); err != nil {
			tx.Rollback()
			return fmt.Errorf("seed books: %w", err)
		}
	}
	return tx.Commit()
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetVerses returns the verse texts for a reference in the given translation,
// ordered by verse number. An unresolved reference returns an empty slice,
// not an error.
func (s *Store) GetVerses(ctx context.Context, translation string, ref Reference) ([]VerseItem, error) {
	meta, ok := BookByName(ref.Book)
	if !ok {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT verse, text FROM verses
		 WHERE translation_id = ? AND book_id = ? AND chapter = ? AND verse BETWEEN ? AND ?
		 ORDER BY verse ASC`,
		translation, meta.ID, ref.Chapter, ref.VerseStart, ref.LastVerse())
	if err != nil {
		return nil, fmt.Errorf("query verses: %w", err)
	}
	defer rows.Close()

	var verses []VerseItem
	for rows.Next() {
		var v VerseItem
		if err := rows.Scan(&v.Number, &v.Text); err != nil {
			return nil, err
		}
		verses = append(verses, v)
	}
	return verses, rows.Err()
}

// Translations lists the translations present in the store.
func (s *Store) Translations(ctx context.Context) ([]Translation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(year, 0), is_default FROM translations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query translations: %w", err)
	}
	defer rows.Close()

	var out []Translation
	for rows.Next() {
		var t Translation
		var dflt int
		if err := rows.Scan(&t.ID, &t.Name, &t.Year, &dflt); err != nil {
			return nil, err
		}
		t.Default = dflt == 1
		out = append(out, t)
	}
	return out, rows.Err()
}

// AddTranslation registers a translation, replacing any existing row.
func (s *Store) AddTranslation(ctx context.Context, t Translation) error {
	dflt := 0
	if t.Default {
		dflt = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO translations(id, name, abbreviation, year, is_default) VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, year=excluded.year, is_default=excluded.is_default`,
		t.ID, t.Name, t.ID, t.Year, dflt)
	return err
}

// AddVerse inserts one verse row. Used by import tooling and tests.
func (s *Store) AddVerse(ctx context.Context, translation, book string, chapter, verse int, text string) error {
	meta, ok := BookByName(book)
	if !ok {
		return fmt.Errorf("unknown book %q", book)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO verses(translation_id, book_id, chapter, verse, text) VALUES(?, ?, ?, ?, ?)`,
		translation, meta.ID, chapter, verse, text)
	return err
}
