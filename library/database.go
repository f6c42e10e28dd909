package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

// Database owns the SQLite connection. The pool is capped at a single
// connection so every write serializes through it, which is the whole
// concurrency model of this system.
type Database struct {
	*sqlx.DB
}

// Open opens (or creates) the SQLite database at dbPath and applies any
// pending schema migrations.
func Open(dbPath string) (*Database, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// Immediate transactions take the write lock at BEGIN, so two
	// concurrent units of work queue instead of deadlocking mid-way.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_txlock=immediate", dbPath)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Database{DB: db}, nil
}

// WithTx runs fn inside one transaction: commit on nil, rollback on error.
// SQLITE_BUSY and SQLITE_LOCKED surface as ErrStorageBusy.
func (d *Database) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := d.BeginTxx(ctx, nil)
	if err != nil {
		return mapStorageErr(err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return mapStorageErr(err)
	}
	if err := tx.Commit(); err != nil {
		return mapStorageErr(err)
	}
	return nil
}

func mapStorageErr(err error) error {
	var serr sqlite3.Error
	if errors.As(err, &serr) && (serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %v", ErrStorageBusy, err)
	}
	return err
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

type migration struct {
	version int
	stmts   []string
}

// Migrations are linear and forward-only; each applied version is recorded
// in the meta table and never rerun.
var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS books (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                title TEXT NOT NULL,
                author TEXT NOT NULL,
                isbn TEXT NOT NULL DEFAULT '',
                total_copies INTEGER NOT NULL,
                available_copies INTEGER NOT NULL,
                CHECK (available_copies >= 0 AND available_copies <= total_copies)
            );`,
			`CREATE TABLE IF NOT EXISTS members (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                full_name TEXT NOT NULL,
                email TEXT NOT NULL DEFAULT '',
                card_number TEXT NOT NULL UNIQUE,
                status TEXT NOT NULL DEFAULT 'active',
                max_books INTEGER NOT NULL DEFAULT 5,
                pin_hash BLOB
            );`,
			`CREATE TABLE IF NOT EXISTS loans (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                member_id INTEGER NOT NULL REFERENCES members(id),
                book_id INTEGER NOT NULL REFERENCES books(id),
                issue_date DATETIME NOT NULL,
                due_date DATETIME NOT NULL,
                return_date DATETIME,
                status TEXT NOT NULL DEFAULT 'borrowed'
            );`,
			`CREATE INDEX IF NOT EXISTS idx_loans_open
                ON loans(member_id, book_id) WHERE return_date IS NULL;`,
			`CREATE TABLE IF NOT EXISTS reservations (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                member_id INTEGER NOT NULL REFERENCES members(id),
                book_id INTEGER NOT NULL REFERENCES books(id),
                reserved_at DATETIME NOT NULL,
                status TEXT NOT NULL DEFAULT 'active'
            );`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_active
                ON reservations(member_id, book_id) WHERE status = 'active';`,
		},
	},
	{
		version: 2,
		stmts: []string{
			`ALTER TABLE reservations ADD COLUMN fulfilled_at DATETIME;`,
		},
	},
}

// searchSchema is the FTS5 index over catalog metadata, kept in sync by
// triggers. It lives outside the linear migrations because the fts5 module
// is only present when mattn/go-sqlite3 is built with the sqlite_fts5 tag;
// every statement is IF NOT EXISTS so applying it on each open is a no-op.
var searchSchema = []string{
	`CREATE VIRTUAL TABLE IF NOT EXISTS books_fts USING fts5(
        title, author, isbn, content='books', content_rowid='id'
    );`,
	`CREATE TRIGGER IF NOT EXISTS trg_books_ai AFTER INSERT ON books BEGIN
        INSERT INTO books_fts(rowid,title,author,isbn) VALUES(new.id,new.title,new.author,new.isbn);
    END;`,
	`CREATE TRIGGER IF NOT EXISTS trg_books_ad AFTER DELETE ON books BEGIN
        INSERT INTO books_fts(books_fts, rowid, title, author, isbn) VALUES('delete',old.id,old.title,old.author,old.isbn);
    END;`,
	`CREATE TRIGGER IF NOT EXISTS trg_books_au AFTER UPDATE ON books BEGIN
        INSERT INTO books_fts(books_fts, rowid, title, author, isbn) VALUES('delete',old.id,old.title,old.author,old.isbn);
        INSERT INTO books_fts(rowid,title,author,isbn) VALUES(new.id,new.title,new.author,new.isbn);
    END;`,
}

func applyMigrations(db *sqlx.DB) error {
	// WAL improves write concurrency.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyMigration(db, m); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
	}

	// Search is an optional capability, not a schema version: without the
	// fts5 module the catalog and circulation still work and SearchBooks
	// reports ErrSearchUnavailable.
	if ftsAvailable(db) {
		for _, stmt := range searchSchema {
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("apply search schema: %w", err)
			}
		}
	}
	return nil
}

// ftsAvailable probes for the fts5 module by creating a throwaway virtual
// table. The module is compiled in only under the sqlite_fts5 build tag.
func ftsAvailable(db *sqlx.DB) bool {
	if _, err := db.Exec(`CREATE VIRTUAL TABLE temp.fts_probe USING fts5(probe);`); err != nil {
		return false
	}
	_, _ = db.Exec(`DROP TABLE temp.fts_probe;`)
	return true
}

func applyMigration(db *sqlx.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range m.stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
        ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, m.version); err != nil {
		return err
	}
	return tx.Commit()
}
