package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ReservationStore persists members' claims on future availability.
type ReservationStore struct{}

const reservationColumns = `id,member_id,book_id,reserved_at,fulfilled_at,status`

// CreateReservation inserts an active reservation. The partial unique
// index on (member_id, book_id) backs up the duplicate check the service
// performs in the same transaction.
func (ReservationStore) CreateReservation(ctx context.Context, q sqlx.ExtContext, memberID, bookID int64, at time.Time) (int64, error) {
	res, err := q.ExecContext(ctx,
		`INSERT INTO reservations(member_id,book_id,reserved_at,status) VALUES(?,?,?,?)`,
		memberID, bookID, at, ReservationActive)
	if err != nil {
		return 0, fmt.Errorf("create reservation: %w", err)
	}
	return res.LastInsertId()
}

// Reservation fetches a single reservation.
func (ReservationStore) Reservation(ctx context.Context, q sqlx.ExtContext, id int64) (Reservation, error) {
	var r Reservation
	err := sqlx.GetContext(ctx, q, &r, `SELECT `+reservationColumns+` FROM reservations WHERE id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Reservation{}, fmt.Errorf("reservation %d: %w", id, ErrReservationNotFound)
	}
	if err != nil {
		return Reservation{}, err
	}
	return r, nil
}

// FindActive locates the member's active reservation for a book, nil when none.
func (ReservationStore) FindActive(ctx context.Context, q sqlx.ExtContext, memberID, bookID int64) (*Reservation, error) {
	var r Reservation
	err := sqlx.GetContext(ctx, q, &r,
		`SELECT `+reservationColumns+` FROM reservations WHERE member_id=? AND book_id=? AND status=?`,
		memberID, bookID, ReservationActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// OldestActiveForBook returns the longest-waiting active reservation for a
// book, nil when none. Fulfillment order is first come, first served.
func (ReservationStore) OldestActiveForBook(ctx context.Context, q sqlx.ExtContext, bookID int64) (*Reservation, error) {
	var r Reservation
	err := sqlx.GetContext(ctx, q, &r,
		`SELECT `+reservationColumns+` FROM reservations WHERE book_id=? AND status=? ORDER BY reserved_at ASC LIMIT 1`,
		bookID, ReservationActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CancelActive cancels the member's active reservation for a book.
func (ReservationStore) CancelActive(ctx context.Context, q sqlx.ExtContext, memberID, bookID int64) error {
	res, err := q.ExecContext(ctx,
		`UPDATE reservations SET status=? WHERE member_id=? AND book_id=? AND status=?`,
		ReservationCancelled, memberID, bookID, ReservationActive)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("member %d, book %d: %w", memberID, bookID, ErrReservationNotFound)
	}
	return nil
}

// MarkFulfilled transitions an active reservation to fulfilled and records
// when the claim was converted.
func (ReservationStore) MarkFulfilled(ctx context.Context, q sqlx.ExtContext, id int64, at time.Time) error {
	res, err := q.ExecContext(ctx,
		`UPDATE reservations SET status=?, fulfilled_at=? WHERE id=? AND status=?`,
		ReservationFulfilled, at, id, ReservationActive)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("reservation %d: %w", id, ErrReservationNotFound)
	}
	return nil
}

// ActiveForBook returns active reservations for a book, oldest first.
func (ReservationStore) ActiveForBook(ctx context.Context, q sqlx.ExtContext, bookID int64) ([]Reservation, error) {
	rs := []Reservation{}
	err := sqlx.SelectContext(ctx, q, &rs,
		`SELECT `+reservationColumns+` FROM reservations WHERE book_id=? AND status=? ORDER BY reserved_at ASC`,
		bookID, ReservationActive)
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// ActiveForMember returns the member's active reservations, oldest first.
func (ReservationStore) ActiveForMember(ctx context.Context, q sqlx.ExtContext, memberID int64) ([]Reservation, error) {
	rs := []Reservation{}
	err := sqlx.SelectContext(ctx, q, &rs,
		`SELECT `+reservationColumns+` FROM reservations WHERE member_id=? AND status=? ORDER BY reserved_at ASC`,
		memberID, ReservationActive)
	if err != nil {
		return nil, err
	}
	return rs, nil
}
