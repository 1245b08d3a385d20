package domain

import "errors"

// Kind classifies an error for the transport boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindConflict
	KindUnauthenticated
	KindSessionExpired
	KindStoreUnavailable
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindSessionExpired:
		return "session_expired"
	case KindStoreUnavailable:
		return "store_unavailable"
	case KindInvalid:
		return "invalid"
	default:
		return "internal"
	}
}

// Error is a named failure with a taxonomy kind.
type Error struct {
	Kind Kind
	Code string
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

var (
	ErrNotFound       = newError(KindNotFound, "not_found", "not found")
	ErrWriterNotFound = newError(KindNotFound, "writer_not_found", "writer not found")
	ErrJobNotFound    = newError(KindNotFound, "job_not_found", "job not found")
	ErrBidNotFound    = newError(KindNotFound, "bid_not_found", "bid not found")
	ErrUserNotFound   = newError(KindNotFound, "user_not_found", "user not found")

	ErrForbidden = newError(KindForbidden, "forbidden", "forbidden")

	ErrDuplicate            = newError(KindConflict, "duplicate", "document already exists")
	ErrEmailTaken           = newError(KindConflict, "email_taken", "user with this email already exists")
	ErrAlreadyAccepted      = newError(KindConflict, "already_accepted", "this bid has already been accepted")
	ErrCannotCancelAccepted = newError(KindConflict, "cannot_cancel_accepted", "an accepted bid cannot be cancelled")
	ErrBidClosed            = newError(KindConflict, "bid_closed", "bid is no longer pending")
	ErrJobClosed            = newError(KindConflict, "job_closed", "job is not accepting bids")

	ErrUnauthenticated              = newError(KindUnauthenticated, "unauthenticated", "please log in to continue")
	ErrInvalidSession               = newError(KindUnauthenticated, "invalid_session", "invalid session, please log in again")
	ErrInvalidOrExpiredRefreshToken = newError(KindUnauthenticated, "invalid_refresh_token", "invalid, expired, or revoked refresh token")
	ErrInvalidCredentials           = newError(KindUnauthenticated, "invalid_credentials", "invalid email or password")
	ErrInvalidResetToken            = newError(KindUnauthenticated, "invalid_reset_token", "invalid or expired reset token")
	ErrSessionExpired               = newError(KindSessionExpired, "session_expired", "session expired, please refresh")

	ErrStoreUnavailable = newError(KindStoreUnavailable, "store_unavailable", "store unavailable")

	ErrInvalidInput = newError(KindInvalid, "invalid_input", "invalid input")
)

// KindOf returns the taxonomy kind of err, KindInternal when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the machine-readable code of err.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

// Invalid wraps ErrInvalidInput with a reason.
func Invalid(reason string) error {
	return &invalidError{reason: reason}
}

type invalidError struct{ reason string }

func (e *invalidError) Error() string { return e.reason }
func (e *invalidError) Unwrap() error { return ErrInvalidInput }
