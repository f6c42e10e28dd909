package library

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverdueIsDerivedOnRead(t *testing.T) {
	db, svc := testService(t)
	ctx := context.Background()

	bookID := addBook(t, db, "Tardy", 1)
	memberID := addMember(t, db, "Alice", 5)

	issued := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }
	loan, err := svc.Borrow(ctx, memberID, bookID, 7)
	require.NoError(t, err)

	var loans LoanStore

	// Before the due date nothing is overdue.
	early, err := loans.ListOverdue(ctx, db, issued.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Empty(t, early)

	// Past the due date the loan reports overdue...
	asOf := issued.AddDate(0, 0, 10)
	late, err := loans.ListOverdue(ctx, db, asOf)
	require.NoError(t, err)
	require.Len(t, late, 1)
	assert.Equal(t, loan.ID, late[0].ID)
	assert.Equal(t, LoanOverdue, late[0].Status)

	// ...but the stored row is untouched.
	stored, err := loans.Loan(ctx, db, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, LoanBorrowed, stored.Status)
	assert.Equal(t, LoanOverdue, stored.EffectiveStatus(asOf))
}

func TestLateReturnClosesAsReturned(t *testing.T) {
	db, svc := testService(t)
	ctx := context.Background()

	bookID := addBook(t, db, "Eventually Back", 1)
	memberID := addMember(t, db, "Alice", 5)

	issued := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }
	loan, err := svc.Borrow(ctx, memberID, bookID, 7)
	require.NoError(t, err)

	// Return three weeks late. Lateness shows in the timestamps, not in a
	// terminal overdue status.
	svc.now = func() time.Time { return issued.AddDate(0, 0, 28) }
	returned, err := svc.Return(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, LoanReturned, returned.Status)
	assert.True(t, returned.ReturnDate.After(returned.DueDate))

	var loans LoanStore
	overdue, err := loans.ListOverdue(ctx, db, issued.AddDate(0, 0, 40))
	require.NoError(t, err)
	assert.Empty(t, overdue)
}

func TestFindOpenLoan(t *testing.T) {
	db, svc := testService(t)
	ctx := context.Background()
	var loans LoanStore

	bookID := addBook(t, db, "Locatable", 1)
	memberID := addMember(t, db, "Alice", 5)

	none, err := loans.FindOpenLoan(ctx, db, memberID, bookID)
	require.NoError(t, err)
	assert.Nil(t, none)

	loan, err := svc.Borrow(ctx, memberID, bookID, 0)
	require.NoError(t, err)

	found, err := loans.FindOpenLoan(ctx, db, memberID, bookID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, loan.ID, found.ID)

	_, err = svc.Return(ctx, loan.ID)
	require.NoError(t, err)

	gone, err := loans.FindOpenLoan(ctx, db, memberID, bookID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestCloseLoanGuards(t *testing.T) {
	db, svc := testService(t)
	ctx := context.Background()
	var loans LoanStore

	err := loans.CloseLoan(ctx, db, 424242, time.Now().UTC())
	require.ErrorIs(t, err, ErrLoanNotFound)

	bookID := addBook(t, db, "Closable", 1)
	memberID := addMember(t, db, "Alice", 5)
	loan, err := svc.Borrow(ctx, memberID, bookID, 0)
	require.NoError(t, err)

	require.NoError(t, loans.CloseLoan(ctx, db, loan.ID, time.Now().UTC()))
	err = loans.CloseLoan(ctx, db, loan.ID, time.Now().UTC())
	require.ErrorIs(t, err, ErrAlreadyReturned)
}

func TestOpenLoansForMember(t *testing.T) {
	db, svc := testService(t)
	ctx := context.Background()
	var loans LoanStore

	memberID := addMember(t, db, "Alice", 5)
	b1 := addBook(t, db, "First", 1)
	b2 := addBook(t, db, "Second", 1)

	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	_, err := svc.Borrow(ctx, memberID, b1, 0)
	require.NoError(t, err)
	svc.now = func() time.Time { return base.Add(time.Hour) }
	_, err = svc.Borrow(ctx, memberID, b2, 0)
	require.NoError(t, err)

	open, err := loans.OpenLoansForMember(ctx, db, memberID)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, b1, open[0].BookID)
	assert.Equal(t, b2, open[1].BookID)
}
