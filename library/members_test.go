package library

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddMemberDefaults(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	var members MemberStore

	id, err := members.AddMember(ctx, db, NewMember{FullName: "Alice", Email: "alice@example.com"})
	require.NoError(t, err)

	m, err := members.Member(ctx, db, id)
	require.NoError(t, err)
	assert.Equal(t, MemberActive, m.Status)
	assert.Equal(t, DefaultMaxBooks, m.MaxBooks)
	assert.Empty(t, m.PINHash)

	// Card numbers are generated and unique per member.
	_, err = uuid.Parse(m.CardNumber)
	require.NoError(t, err)

	other, err := members.AddMember(ctx, db, NewMember{FullName: "Bob"})
	require.NoError(t, err)
	o, err := members.Member(ctx, db, other)
	require.NoError(t, err)
	assert.NotEqual(t, m.CardNumber, o.CardNumber)
}

func TestAddMemberRequiresName(t *testing.T) {
	db := testDB(t)
	var members MemberStore
	_, err := members.AddMember(context.Background(), db, NewMember{FullName: "   "})
	require.Error(t, err)
}

func TestSetStatus(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	var members MemberStore

	id := addMember(t, db, "Alice", 5)
	require.NoError(t, members.SetStatus(ctx, db, id, MemberSuspended))

	m, err := members.Member(ctx, db, id)
	require.NoError(t, err)
	assert.Equal(t, MemberSuspended, m.Status)

	err = members.SetStatus(ctx, db, 9999, MemberActive)
	require.ErrorIs(t, err, ErrMemberNotFound)
}

func TestCountOpenLoans(t *testing.T) {
	db, svc := testService(t)
	ctx := context.Background()
	var members MemberStore

	memberID := addMember(t, db, "Alice", 5)
	b1 := addBook(t, db, "One", 1)
	b2 := addBook(t, db, "Two", 1)

	n, err := members.CountOpenLoans(ctx, db, memberID)
	require.NoError(t, err)
	assert.Zero(t, n)

	loan, err := svc.Borrow(ctx, memberID, b1, 0)
	require.NoError(t, err)
	_, err = svc.Borrow(ctx, memberID, b2, 0)
	require.NoError(t, err)

	n, err = members.CountOpenLoans(ctx, db, memberID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Closed loans stay in the ledger but stop counting.
	_, err = svc.Return(ctx, loan.ID)
	require.NoError(t, err)
	n, err = members.CountOpenLoans(ctx, db, memberID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPINRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	var members MemberStore

	id := addMember(t, db, "Alice", 5)

	// Unset PIN never verifies.
	err := members.VerifyPIN(ctx, db, id, "1234")
	require.ErrorIs(t, err, ErrInvalidPIN)

	require.Error(t, members.SetPIN(ctx, db, id, "123"))
	require.NoError(t, members.SetPIN(ctx, db, id, "4711"))

	require.NoError(t, members.VerifyPIN(ctx, db, id, "4711"))
	err = members.VerifyPIN(ctx, db, id, "0000")
	require.ErrorIs(t, err, ErrInvalidPIN)

	err = members.VerifyPIN(ctx, db, 9999, "4711")
	require.ErrorIs(t, err, ErrMemberNotFound)
}
