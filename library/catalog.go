package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3" // dialect import
	"github.com/jmoiron/sqlx"
)

var dialect = goqu.Dialect("sqlite3")

// CatalogStore persists book metadata and the available-copies counter.
// Methods take the caller's handle so counter updates can share the
// lending service's transaction.
type CatalogStore struct{}

// NewBook is the input for catalog registration.
type NewBook struct {
	Title  string
	Author string
	ISBN   string
	Total  int
}

// BookFilter narrows ListBooks. Zero fields are ignored.
type BookFilter struct {
	Title         string
	Author        string
	AvailableOnly bool
}

// AddBook registers a book with all copies available.
func (CatalogStore) AddBook(ctx context.Context, q sqlx.ExtContext, nb NewBook) (int64, error) {
	if strings.TrimSpace(nb.Title) == "" {
		return 0, fmt.Errorf("title is required")
	}
	if nb.Total < 1 {
		return 0, fmt.Errorf("total copies must be at least 1, got %d", nb.Total)
	}
	res, err := q.ExecContext(ctx,
		`INSERT INTO books(title,author,isbn,total_copies,available_copies) VALUES(?,?,?,?,?)`,
		nb.Title, nb.Author, nb.ISBN, nb.Total, nb.Total)
	if err != nil {
		return 0, fmt.Errorf("add book: %w", err)
	}
	return res.LastInsertId()
}

// Book fetches a single book.
func (CatalogStore) Book(ctx context.Context, q sqlx.ExtContext, id int64) (Book, error) {
	var b Book
	err := sqlx.GetContext(ctx, q, &b,
		`SELECT id,title,author,isbn,total_copies,available_copies FROM books WHERE id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Book{}, fmt.Errorf("book %d: %w", id, ErrBookNotFound)
	}
	if err != nil {
		return Book{}, err
	}
	return b, nil
}

// ListBooks returns books matching the filter, ordered by id.
func (CatalogStore) ListBooks(ctx context.Context, q sqlx.ExtContext, f BookFilter) ([]Book, error) {
	stmt := dialect.From("books").
		Select("id", "title", "author", "isbn", "total_copies", "available_copies").
		Order(goqu.C("id").Asc())
	if f.Title != "" {
		stmt = stmt.Where(goqu.C("title").Like("%" + f.Title + "%"))
	}
	if f.Author != "" {
		stmt = stmt.Where(goqu.C("author").Like("%" + f.Author + "%"))
	}
	if f.AvailableOnly {
		stmt = stmt.Where(goqu.C("available_copies").Gt(0))
	}

	query, args, err := stmt.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	books := []Book{}
	if err := sqlx.SelectContext(ctx, q, &books, query, args...); err != nil {
		return nil, err
	}
	return books, nil
}

// SearchBooks matches title, author and ISBN through the FTS index.
// The index only exists when the driver is built with the sqlite_fts5 tag.
func (CatalogStore) SearchBooks(ctx context.Context, q sqlx.ExtContext, query string) ([]Book, error) {
	if strings.TrimSpace(query) == "" {
		return []Book{}, nil
	}
	var indexed int
	err := sqlx.GetContext(ctx, q, &indexed,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='books_fts'`)
	if err != nil {
		return nil, err
	}
	if indexed == 0 {
		return nil, fmt.Errorf("no full-text index (build with -tags sqlite_fts5): %w", ErrSearchUnavailable)
	}
	books := []Book{}
	err = sqlx.SelectContext(ctx, q, &books, `
        SELECT b.id, b.title, b.author, b.isbn, b.total_copies, b.available_copies
        FROM books_fts fts
        JOIN books b ON b.id = fts.rowid
        WHERE books_fts MATCH ?
        ORDER BY rank;`, query)
	if err != nil {
		return nil, err
	}
	return books, nil
}

// DecrementAvailable takes one copy off the shelf. The guard in the WHERE
// clause makes check-and-decrement a single statement; it must run inside
// the caller's transaction, after the caller verified the book exists.
func (CatalogStore) DecrementAvailable(ctx context.Context, q sqlx.ExtContext, id int64) error {
	res, err := q.ExecContext(ctx,
		`UPDATE books SET available_copies = available_copies - 1 WHERE id = ? AND available_copies > 0`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("book %d: %w", id, ErrOutOfStock)
	}
	return nil
}

// IncrementAvailable puts one copy back, capped at the total. Hitting the
// cap means a prior write corrupted the counters; it is reported, not fixed.
func (CatalogStore) IncrementAvailable(ctx context.Context, q sqlx.ExtContext, id int64) error {
	res, err := q.ExecContext(ctx,
		`UPDATE books SET available_copies = available_copies + 1 WHERE id = ? AND available_copies < total_copies`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("book %d: available would exceed total: %w", id, ErrInvariantViolation)
	}
	return nil
}

// RetireCopy removes one copy from the inventory counts, for a copy that
// went out on loan and will not come back. The guard requires an
// outstanding copy, so the shelf count can never exceed the new total.
func (CatalogStore) RetireCopy(ctx context.Context, q sqlx.ExtContext, id int64) error {
	res, err := q.ExecContext(ctx,
		`UPDATE books SET total_copies = total_copies - 1 WHERE id = ? AND total_copies > available_copies`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("book %d: no outstanding copy to retire: %w", id, ErrInvariantViolation)
	}
	return nil
}
