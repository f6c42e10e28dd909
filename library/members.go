package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// MemberStore persists member records and status.
type MemberStore struct{}

// NewMember is the input for member registration.
type NewMember struct {
	FullName string
	Email    string
	MaxBooks int
}

// AddMember registers an active member and assigns a card number.
func (MemberStore) AddMember(ctx context.Context, q sqlx.ExtContext, nm NewMember) (int64, error) {
	if strings.TrimSpace(nm.FullName) == "" {
		return 0, fmt.Errorf("full name is required")
	}
	if nm.MaxBooks <= 0 {
		nm.MaxBooks = DefaultMaxBooks
	}
	res, err := q.ExecContext(ctx,
		`INSERT INTO members(full_name,email,card_number,status,max_books) VALUES(?,?,?,?,?)`,
		nm.FullName, nm.Email, uuid.NewString(), MemberActive, nm.MaxBooks)
	if err != nil {
		return 0, fmt.Errorf("add member: %w", err)
	}
	return res.LastInsertId()
}

// Member fetches a single member.
func (MemberStore) Member(ctx context.Context, q sqlx.ExtContext, id int64) (Member, error) {
	var m Member
	err := sqlx.GetContext(ctx, q, &m,
		`SELECT id,full_name,email,card_number,status,max_books,pin_hash FROM members WHERE id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Member{}, fmt.Errorf("member %d: %w", id, ErrMemberNotFound)
	}
	if err != nil {
		return Member{}, err
	}
	return m, nil
}

// ListMembers returns all members ordered by id.
func (MemberStore) ListMembers(ctx context.Context, q sqlx.ExtContext) ([]Member, error) {
	members := []Member{}
	err := sqlx.SelectContext(ctx, q, &members,
		`SELECT id,full_name,email,card_number,status,max_books,pin_hash FROM members ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return members, nil
}

// SetStatus changes a member's status.
func (MemberStore) SetStatus(ctx context.Context, q sqlx.ExtContext, id int64, status MemberStatus) error {
	res, err := q.ExecContext(ctx, `UPDATE members SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("member %d: %w", id, ErrMemberNotFound)
	}
	return nil
}

// CountOpenLoans counts the member's loans with no return date.
func (MemberStore) CountOpenLoans(ctx context.Context, q sqlx.ExtContext, memberID int64) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n,
		`SELECT COUNT(*) FROM loans WHERE member_id=? AND return_date IS NULL`, memberID)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// SetPIN stores a bcrypt hash of the member's PIN.
func (MemberStore) SetPIN(ctx context.Context, q sqlx.ExtContext, id int64, pin string) error {
	if len(pin) < 4 {
		return fmt.Errorf("PIN must be at least 4 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash PIN: %w", err)
	}
	res, err := q.ExecContext(ctx, `UPDATE members SET pin_hash=? WHERE id=?`, hash, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("member %d: %w", id, ErrMemberNotFound)
	}
	return nil
}

// VerifyPIN checks the member's PIN against the stored hash.
func (s MemberStore) VerifyPIN(ctx context.Context, q sqlx.ExtContext, id int64, pin string) error {
	m, err := s.Member(ctx, q, id)
	if err != nil {
		return err
	}
	if len(m.PINHash) == 0 {
		return fmt.Errorf("member %d has no PIN set: %w", id, ErrInvalidPIN)
	}
	if err := bcrypt.CompareHashAndPassword(m.PINHash, []byte(pin)); err != nil {
		return fmt.Errorf("member %d: %w", id, ErrInvalidPIN)
	}
	return nil
}
