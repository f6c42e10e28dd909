package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// LoanStore is the append-oriented lending ledger. Rows are closed, never
// deleted; who-has-what is answered by the open rows.
type LoanStore struct{}

const loanColumns = `id,member_id,book_id,issue_date,due_date,return_date,status`

// CreateLoan inserts a new open loan row.
func (LoanStore) CreateLoan(ctx context.Context, q sqlx.ExtContext, memberID, bookID int64, issuedAt, dueAt time.Time) (int64, error) {
	res, err := q.ExecContext(ctx,
		`INSERT INTO loans(member_id,book_id,issue_date,due_date,status) VALUES(?,?,?,?,?)`,
		memberID, bookID, issuedAt, dueAt, LoanBorrowed)
	if err != nil {
		return 0, fmt.Errorf("create loan: %w", err)
	}
	return res.LastInsertId()
}

// Loan fetches a single ledger row.
func (LoanStore) Loan(ctx context.Context, q sqlx.ExtContext, id int64) (Loan, error) {
	var l Loan
	err := sqlx.GetContext(ctx, q, &l, `SELECT `+loanColumns+` FROM loans WHERE id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Loan{}, fmt.Errorf("loan %d: %w", id, ErrLoanNotFound)
	}
	if err != nil {
		return Loan{}, err
	}
	return l, nil
}

// CloseLoan sets the return timestamp and flips the status to returned.
// The guard on return_date makes the close idempotent-safe: a second close
// reports ErrAlreadyReturned instead of overwriting the ledger.
func (s LoanStore) CloseLoan(ctx context.Context, q sqlx.ExtContext, loanID int64, returnedAt time.Time) error {
	res, err := q.ExecContext(ctx,
		`UPDATE loans SET return_date=?, status=? WHERE id=? AND return_date IS NULL`,
		returnedAt, LoanReturned, loanID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.Loan(ctx, q, loanID); err != nil {
			return err
		}
		return fmt.Errorf("loan %d: %w", loanID, ErrAlreadyReturned)
	}
	return nil
}

// MarkLost closes an open loan as lost. Like CloseLoan, the guard on
// return_date keeps a closed ledger row from being rewritten.
func (s LoanStore) MarkLost(ctx context.Context, q sqlx.ExtContext, loanID int64, at time.Time) error {
	res, err := q.ExecContext(ctx,
		`UPDATE loans SET return_date=?, status=? WHERE id=? AND return_date IS NULL`,
		at, LoanLost, loanID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.Loan(ctx, q, loanID); err != nil {
			return err
		}
		return fmt.Errorf("loan %d: %w", loanID, ErrAlreadyReturned)
	}
	return nil
}

// FindOpenLoan locates the member's open loan for a book, nil when none.
// Used to block double-borrowing and to find the row to close on return.
func (LoanStore) FindOpenLoan(ctx context.Context, q sqlx.ExtContext, memberID, bookID int64) (*Loan, error) {
	var l Loan
	err := sqlx.GetContext(ctx, q, &l,
		`SELECT `+loanColumns+` FROM loans WHERE member_id=? AND book_id=? AND return_date IS NULL`,
		memberID, bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// OpenLoansForMember returns the member's open loans, oldest first.
func (LoanStore) OpenLoansForMember(ctx context.Context, q sqlx.ExtContext, memberID int64) ([]Loan, error) {
	loans := []Loan{}
	err := sqlx.SelectContext(ctx, q, &loans,
		`SELECT `+loanColumns+` FROM loans WHERE member_id=? AND return_date IS NULL ORDER BY issue_date ASC`,
		memberID)
	if err != nil {
		return nil, err
	}
	return loans, nil
}

// ListOverdue returns open loans past due as of the given instant, with
// the derived overdue status set on the returned values. Nothing is
// written back; overdue is a read-time property.
func (LoanStore) ListOverdue(ctx context.Context, q sqlx.ExtContext, asOf time.Time) ([]Loan, error) {
	loans := []Loan{}
	err := sqlx.SelectContext(ctx, q, &loans,
		`SELECT `+loanColumns+` FROM loans WHERE return_date IS NULL AND due_date < ? ORDER BY due_date ASC`,
		asOf)
	if err != nil {
		return nil, err
	}
	for i := range loans {
		loans[i].Status = loans[i].EffectiveStatus(asOf)
	}
	return loans, nil
}
