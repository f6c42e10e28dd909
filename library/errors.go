package library

import "errors"

// Sentinel errors for the lending domain. Every operation rolls back and
// returns one of these wrapped with context; callers match with errors.Is
// and show the message verbatim.
var (
	ErrBookNotFound        = errors.New("book not found")
	ErrMemberNotFound      = errors.New("member not found")
	ErrLoanNotFound        = errors.New("loan not found")
	ErrReservationNotFound = errors.New("no active reservation found")

	ErrMemberNotActive      = errors.New("member is not active")
	ErrOutOfStock           = errors.New("no copies available")
	ErrBorrowLimitReached   = errors.New("borrowing limit reached")
	ErrAlreadyBorrowed      = errors.New("book already on loan to this member")
	ErrAlreadyReturned      = errors.New("loan already returned")
	ErrDuplicateReservation = errors.New("active reservation already exists")

	// ErrStorageBusy wraps SQLITE_BUSY / SQLITE_LOCKED. Transient; the
	// caller may retry, the service never does.
	ErrStorageBusy = errors.New("storage busy")

	// ErrInvariantViolation signals a bug or prior data corruption, such
	// as an availability count that would exceed the total. Never
	// silently corrected.
	ErrInvariantViolation = errors.New("invariant violation")

	ErrInvalidPIN = errors.New("invalid PIN")

	// ErrSearchUnavailable is reported when the full-text index does not
	// exist because the SQLite driver was built without the fts5 module
	// (the sqlite_fts5 build tag). Everything but search keeps working.
	ErrSearchUnavailable = errors.New("full-text search unavailable")
)
