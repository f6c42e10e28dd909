package library

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddBookValidation(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	var catalog CatalogStore

	_, err := catalog.AddBook(ctx, db, NewBook{Title: "  ", Total: 1})
	require.Error(t, err)

	_, err = catalog.AddBook(ctx, db, NewBook{Title: "Zero Copies", Total: 0})
	require.Error(t, err)

	id, err := catalog.AddBook(ctx, db, NewBook{Title: "Stocked", Author: "A", ISBN: "978-0", Total: 4})
	require.NoError(t, err)
	b := getBook(t, db, id)
	assert.Equal(t, 4, b.Total)
	assert.Equal(t, 4, b.Available)
	assert.Equal(t, "978-0", b.ISBN)
}

func TestBookNotFound(t *testing.T) {
	db := testDB(t)
	var catalog CatalogStore
	_, err := catalog.Book(context.Background(), db, 404)
	require.ErrorIs(t, err, ErrBookNotFound)
}

func TestListBooksFilters(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	var catalog CatalogStore

	_, err := catalog.AddBook(ctx, db, NewBook{Title: "The Hobbit", Author: "Tolkien", Total: 2})
	require.NoError(t, err)
	lotr, err := catalog.AddBook(ctx, db, NewBook{Title: "The Two Towers", Author: "Tolkien", Total: 1})
	require.NoError(t, err)
	_, err = catalog.AddBook(ctx, db, NewBook{Title: "Dune", Author: "Herbert", Total: 1})
	require.NoError(t, err)

	all, err := catalog.ListBooks(ctx, db, BookFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byAuthor, err := catalog.ListBooks(ctx, db, BookFilter{Author: "tolkien"})
	require.NoError(t, err)
	assert.Len(t, byAuthor, 2)

	byTitle, err := catalog.ListBooks(ctx, db, BookFilter{Title: "Towers"})
	require.NoError(t, err)
	require.Len(t, byTitle, 1)
	assert.Equal(t, lotr, byTitle[0].ID)

	combined, err := catalog.ListBooks(ctx, db, BookFilter{Author: "Tolkien", Title: "Hobbit"})
	require.NoError(t, err)
	assert.Len(t, combined, 1)

	// Drain the single Two Towers copy and filter on availability.
	require.NoError(t, catalog.DecrementAvailable(ctx, db, lotr))
	available, err := catalog.ListBooks(ctx, db, BookFilter{AvailableOnly: true})
	require.NoError(t, err)
	assert.Len(t, available, 2)
	for _, b := range available {
		assert.NotEqual(t, lotr, b.ID)
	}
}

func TestSearchBooks(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	var catalog CatalogStore

	_, err := catalog.AddBook(ctx, db, NewBook{Title: "A Wizard of Earthsea", Author: "Le Guin", Total: 1})
	require.NoError(t, err)
	_, err = catalog.AddBook(ctx, db, NewBook{Title: "The Dispossessed", Author: "Le Guin", Total: 1})
	require.NoError(t, err)

	hits, err := catalog.SearchBooks(ctx, db, "Earthsea")
	if errors.Is(err, ErrSearchUnavailable) {
		t.Skip("driver built without the sqlite_fts5 tag")
	}
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "A Wizard of Earthsea", hits[0].Title)

	hits, err = catalog.SearchBooks(ctx, db, "Guin")
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	empty, err := catalog.SearchBooks(ctx, db, "   ")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// Search is an optional capability: without the FTS index the catalog and
// circulation keep working and SearchBooks reports a specific error.
func TestSearchUnavailableWithoutIndex(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	// Mimic a driver built without the fts5 module: no index, no triggers.
	for _, stmt := range []string{
		`DROP TRIGGER IF EXISTS trg_books_ai`,
		`DROP TRIGGER IF EXISTS trg_books_ad`,
		`DROP TRIGGER IF EXISTS trg_books_au`,
		`DROP TABLE IF EXISTS books_fts`,
	} {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}

	var catalog CatalogStore
	_, err := catalog.SearchBooks(ctx, db, "anything")
	require.ErrorIs(t, err, ErrSearchUnavailable)

	// Catalog writes and reads do not depend on the index.
	id := addBook(t, db, "Still Works", 2)
	assert.Equal(t, 2, getBook(t, db, id).Available)
}

func TestRetireCopy(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	var catalog CatalogStore

	id, err := catalog.AddBook(ctx, db, NewBook{Title: "Retirable", Total: 2})
	require.NoError(t, err)

	// All copies on the shelf: nothing outstanding to retire.
	err = catalog.RetireCopy(ctx, db, id)
	require.ErrorIs(t, err, ErrInvariantViolation)

	require.NoError(t, catalog.DecrementAvailable(ctx, db, id))
	require.NoError(t, catalog.RetireCopy(ctx, db, id))

	b := getBook(t, db, id)
	assert.Equal(t, 1, b.Total)
	assert.Equal(t, 1, b.Available)
}

func TestCounterGuards(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	var catalog CatalogStore

	id, err := catalog.AddBook(ctx, db, NewBook{Title: "Guarded", Total: 1})
	require.NoError(t, err)

	// Full shelf: increment would exceed total.
	err = catalog.IncrementAvailable(ctx, db, id)
	require.ErrorIs(t, err, ErrInvariantViolation)
	assert.Equal(t, 1, getBook(t, db, id).Available)

	require.NoError(t, catalog.DecrementAvailable(ctx, db, id))
	assert.Equal(t, 0, getBook(t, db, id).Available)

	// Empty shelf: decrement is refused, the counter never goes negative.
	err = catalog.DecrementAvailable(ctx, db, id)
	require.ErrorIs(t, err, ErrOutOfStock)
	assert.Equal(t, 0, getBook(t, db, id).Available)

	require.NoError(t, catalog.IncrementAvailable(ctx, db, id))
	assert.Equal(t, 1, getBook(t, db, id).Available)
}
