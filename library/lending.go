package library

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

// DefaultLoanPeriodDays is used when a borrow request does not name one.
const DefaultLoanPeriodDays = 14

// LendingService orchestrates borrow, return and reserve as atomic,
// validated operations. It is stateless between calls; the database's own
// locking is the only concurrency primitive. Failures roll back the whole
// operation and are reported, never retried.
type LendingService struct {
	db      *Database
	catalog CatalogStore
	members MemberStore
	loans   LoanStore
	resv    ReservationStore

	now func() time.Time
	log zerolog.Logger
}

// NewLendingService wires the service to an open database.
func NewLendingService(db *Database, log zerolog.Logger) *LendingService {
	return &LendingService{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
		log: log,
	}
}

// Borrow checks out a book to a member for loanPeriodDays (the default
// period when <= 0). Validation and mutation happen in one transaction, so
// two simultaneous attempts at the last copy cannot both succeed.
func (s *LendingService) Borrow(ctx context.Context, memberID, bookID int64, loanPeriodDays int) (Loan, error) {
	if loanPeriodDays <= 0 {
		loanPeriodDays = DefaultLoanPeriodDays
	}

	var loan Loan
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		loan, err = s.borrowTx(ctx, tx, memberID, bookID, loanPeriodDays)
		return err
	})
	if err != nil {
		return Loan{}, err
	}

	s.log.Info().
		Int64("loan", loan.ID).
		Int64("member", memberID).
		Int64("book", bookID).
		Time("due", loan.DueDate).
		Msg("book borrowed")
	return loan, nil
}

// borrowTx runs the borrow validation chain and writes inside the caller's
// transaction. Shared by Borrow and FulfillReservation.
func (s *LendingService) borrowTx(ctx context.Context, tx *sqlx.Tx, memberID, bookID int64, loanPeriodDays int) (Loan, error) {
	member, err := s.members.Member(ctx, tx, memberID)
	if err != nil {
		return Loan{}, err
	}
	if member.Status != MemberActive {
		return Loan{}, fmt.Errorf("member %d is %s: %w", memberID, member.Status, ErrMemberNotActive)
	}

	book, err := s.catalog.Book(ctx, tx, bookID)
	if err != nil {
		return Loan{}, err
	}
	if book.Available <= 0 {
		return Loan{}, fmt.Errorf("%q: %w", book.Title, ErrOutOfStock)
	}

	open, err := s.members.CountOpenLoans(ctx, tx, memberID)
	if err != nil {
		return Loan{}, err
	}
	if open >= member.MaxBooks {
		return Loan{}, fmt.Errorf("member %d has %d open loans, limit is %d: %w",
			memberID, open, member.MaxBooks, ErrBorrowLimitReached)
	}

	existing, err := s.loans.FindOpenLoan(ctx, tx, memberID, bookID)
	if err != nil {
		return Loan{}, err
	}
	if existing != nil {
		return Loan{}, fmt.Errorf("member %d, %q: %w", memberID, book.Title, ErrAlreadyBorrowed)
	}

	if err := s.catalog.DecrementAvailable(ctx, tx, bookID); err != nil {
		return Loan{}, err
	}

	issuedAt := s.now()
	dueAt := issuedAt.AddDate(0, 0, loanPeriodDays)
	id, err := s.loans.CreateLoan(ctx, tx, memberID, bookID, issuedAt, dueAt)
	if err != nil {
		return Loan{}, err
	}

	return Loan{
		ID:        id,
		MemberID:  memberID,
		BookID:    bookID,
		IssueDate: issuedAt,
		DueDate:   dueAt,
		Status:    LoanBorrowed,
	}, nil
}

// Return closes an open loan and puts the copy back on the shelf. Calling
// it again for the same loan reports ErrAlreadyReturned without touching
// the availability counter. The loan closes as returned regardless of
// lateness; overdue is derived from the timestamps on read.
func (s *LendingService) Return(ctx context.Context, loanID int64) (Loan, error) {
	var loan Loan
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		l, err := s.loans.Loan(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if !l.Open() {
			return fmt.Errorf("loan %d: %w", loanID, ErrAlreadyReturned)
		}

		returnedAt := s.now()
		if err := s.loans.CloseLoan(ctx, tx, loanID, returnedAt); err != nil {
			return err
		}
		if err := s.catalog.IncrementAvailable(ctx, tx, l.BookID); err != nil {
			if errors.Is(err, ErrInvariantViolation) {
				s.log.Error().Err(err).Int64("book", l.BookID).Msg("availability counter corrupt")
			}
			return err
		}

		l.ReturnDate = &returnedAt
		l.Status = LoanReturned
		loan = l
		return nil
	})
	if err != nil {
		return Loan{}, err
	}

	s.log.Info().
		Int64("loan", loan.ID).
		Int64("member", loan.MemberID).
		Int64("book", loan.BookID).
		Bool("late", loan.ReturnDate.After(loan.DueDate)).
		Msg("book returned")
	return loan, nil
}

// Reserve places a claim on a book for future borrowing. Reservations are
// independent of the current availability count: no stock check and no
// implicit decrement. Duplicate active claims are rejected.
func (s *LendingService) Reserve(ctx context.Context, memberID, bookID int64) (Reservation, error) {
	var resv Reservation
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		member, err := s.members.Member(ctx, tx, memberID)
		if err != nil {
			return err
		}
		if member.Status != MemberActive {
			return fmt.Errorf("member %d is %s: %w", memberID, member.Status, ErrMemberNotActive)
		}

		book, err := s.catalog.Book(ctx, tx, bookID)
		if err != nil {
			return err
		}

		existing, err := s.resv.FindActive(ctx, tx, memberID, bookID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("member %d, %q: %w", memberID, book.Title, ErrDuplicateReservation)
		}

		at := s.now()
		id, err := s.resv.CreateReservation(ctx, tx, memberID, bookID, at)
		if err != nil {
			return err
		}
		resv = Reservation{ID: id, MemberID: memberID, BookID: bookID, ReservedAt: at, Status: ReservationActive}
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}

	s.log.Info().
		Int64("reservation", resv.ID).
		Int64("member", memberID).
		Int64("book", bookID).
		Msg("book reserved")
	return resv, nil
}

// CancelReservation cancels the member's active reservation for a book.
func (s *LendingService) CancelReservation(ctx context.Context, memberID, bookID int64) error {
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.resv.CancelActive(ctx, tx, memberID, bookID)
	})
	if err != nil {
		return err
	}

	s.log.Info().Int64("member", memberID).Int64("book", bookID).Msg("reservation cancelled")
	return nil
}

// FulfillReservation converts an active reservation into a loan. The
// holder goes through the full borrow validation, so a suspended member or
// one at their limit keeps the reservation and gets the specific error.
func (s *LendingService) FulfillReservation(ctx context.Context, reservationID int64, loanPeriodDays int) (Loan, error) {
	if loanPeriodDays <= 0 {
		loanPeriodDays = DefaultLoanPeriodDays
	}

	var loan Loan
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		r, err := s.resv.Reservation(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		if r.Status != ReservationActive {
			return fmt.Errorf("reservation %d is %s: %w", reservationID, r.Status, ErrReservationNotFound)
		}

		loan, err = s.borrowTx(ctx, tx, r.MemberID, r.BookID, loanPeriodDays)
		if err != nil {
			return err
		}
		return s.resv.MarkFulfilled(ctx, tx, reservationID, loan.IssueDate)
	})
	if err != nil {
		return Loan{}, err
	}

	s.log.Info().
		Int64("reservation", reservationID).
		Int64("loan", loan.ID).
		Int64("member", loan.MemberID).
		Int64("book", loan.BookID).
		Msg("reservation fulfilled")
	return loan, nil
}

// MarkLost closes an open loan as lost and retires the copy from the
// inventory counts: the shelf count is not incremented and the total drops
// by one, so the availability invariant keeps holding for the copies that
// actually exist.
func (s *LendingService) MarkLost(ctx context.Context, loanID int64) (Loan, error) {
	var loan Loan
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		l, err := s.loans.Loan(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if !l.Open() {
			return fmt.Errorf("loan %d: %w", loanID, ErrAlreadyReturned)
		}

		at := s.now()
		if err := s.loans.MarkLost(ctx, tx, loanID, at); err != nil {
			return err
		}
		if err := s.catalog.RetireCopy(ctx, tx, l.BookID); err != nil {
			if errors.Is(err, ErrInvariantViolation) {
				s.log.Error().Err(err).Int64("book", l.BookID).Msg("inventory counters corrupt")
			}
			return err
		}

		l.ReturnDate = &at
		l.Status = LoanLost
		loan = l
		return nil
	})
	if err != nil {
		return Loan{}, err
	}

	s.log.Warn().
		Int64("loan", loan.ID).
		Int64("member", loan.MemberID).
		Int64("book", loan.BookID).
		Msg("book marked lost")
	return loan, nil
}

// Overdue lists open loans past due right now. Read-only.
func (s *LendingService) Overdue(ctx context.Context) ([]Loan, error) {
	return s.loans.ListOverdue(ctx, s.db, s.now())
}
