package library

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// DefaultMaxBooks is the borrowing limit assigned to new members.
const DefaultMaxBooks = 5

// MemberStatus is the closed set of membership states. Only active members
// may borrow or reserve.
type MemberStatus string

const (
	MemberActive    MemberStatus = "active"
	MemberInactive  MemberStatus = "inactive"
	MemberSuspended MemberStatus = "suspended"
)

// ParseMemberStatus normalizes a stored or user-supplied status string.
func ParseMemberStatus(s string) (MemberStatus, error) {
	switch MemberStatus(strings.ToLower(strings.TrimSpace(s))) {
	case MemberActive:
		return MemberActive, nil
	case MemberInactive:
		return MemberInactive, nil
	case MemberSuspended:
		return MemberSuspended, nil
	}
	return "", fmt.Errorf("unknown member status %q", s)
}

func (s *MemberStatus) Scan(src any) error {
	parsed, err := ParseMemberStatus(asString(src))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s MemberStatus) Value() (driver.Value, error) { return string(s), nil }

// LoanStatus is the closed set of loan states. Transitions are monotonic:
// borrowed -> returned, or borrowed -> lost, never reversed (overdue is
// derived at read time, never stored).
type LoanStatus string

const (
	LoanBorrowed LoanStatus = "borrowed"
	LoanReturned LoanStatus = "returned"
	LoanOverdue  LoanStatus = "overdue"
	LoanLost     LoanStatus = "lost"
)

// ParseLoanStatus folds the legacy spellings that accumulated in old
// databases ("Issued", "Borrowed", "checked_out") into canonical values.
func ParseLoanStatus(s string) (LoanStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "borrowed", "issued", "checked_out":
		return LoanBorrowed, nil
	case "returned":
		return LoanReturned, nil
	case "overdue":
		return LoanOverdue, nil
	case "lost":
		return LoanLost, nil
	}
	return "", fmt.Errorf("unknown loan status %q", s)
}

func (s *LoanStatus) Scan(src any) error {
	parsed, err := ParseLoanStatus(asString(src))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s LoanStatus) Value() (driver.Value, error) { return string(s), nil }

// ReservationStatus is the closed set of reservation states.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationFulfilled ReservationStatus = "fulfilled"
	ReservationCancelled ReservationStatus = "cancelled"
)

func ParseReservationStatus(s string) (ReservationStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active":
		return ReservationActive, nil
	case "fulfilled":
		return ReservationFulfilled, nil
	case "cancelled", "canceled":
		return ReservationCancelled, nil
	}
	return "", fmt.Errorf("unknown reservation status %q", s)
}

func (s *ReservationStatus) Scan(src any) error {
	parsed, err := ParseReservationStatus(asString(src))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s ReservationStatus) Value() (driver.Value, error) { return string(s), nil }

func asString(src any) string {
	switch v := src.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", src)
	}
}

// Book holds catalog metadata and the copy counters. Available is mutated
// only by the lending service, always inside a transaction.
type Book struct {
	ID        int64  `db:"id"`
	Title     string `db:"title"`
	Author    string `db:"author"`
	ISBN      string `db:"isbn"`
	Total     int    `db:"total_copies"`
	Available int    `db:"available_copies"`
}

// Member is a registered library member.
type Member struct {
	ID         int64        `db:"id"`
	FullName   string       `db:"full_name"`
	Email      string       `db:"email"`
	CardNumber string       `db:"card_number"`
	Status     MemberStatus `db:"status"`
	MaxBooks   int          `db:"max_books"`
	PINHash    []byte       `db:"pin_hash"`
}

// Loan is one row of the lending ledger. A loan with a nil ReturnDate is
// open; ledger rows are never deleted.
type Loan struct {
	ID         int64      `db:"id"`
	MemberID   int64      `db:"member_id"`
	BookID     int64      `db:"book_id"`
	IssueDate  time.Time  `db:"issue_date"`
	DueDate    time.Time  `db:"due_date"`
	ReturnDate *time.Time `db:"return_date"`
	Status     LoanStatus `db:"status"`
}

// Open reports whether the book is still out.
func (l Loan) Open() bool { return l.ReturnDate == nil }

// EffectiveStatus derives the overdue state at read time. The stored status
// stays "borrowed" until the loan is closed.
func (l Loan) EffectiveStatus(asOf time.Time) LoanStatus {
	if l.Status == LoanBorrowed && l.ReturnDate == nil && asOf.After(l.DueDate) {
		return LoanOverdue
	}
	return l.Status
}

// Reservation is a member's claim on a book for future borrowing. At most
// one active reservation exists per (member, book) pair.
type Reservation struct {
	ID          int64             `db:"id"`
	MemberID    int64             `db:"member_id"`
	BookID      int64             `db:"book_id"`
	ReservedAt  time.Time         `db:"reserved_at"`
	FulfilledAt *time.Time        `db:"fulfilled_at"`
	Status      ReservationStatus `db:"status"`
}
