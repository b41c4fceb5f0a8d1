package gate

import "errors"

// Sentinel errors returned by Gate.Authorize.
var (
	// ErrUnauthenticated is returned for the zero-value subject.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrNoProfile is returned when the subject has no membership.
	ErrNoProfile = errors.New("no profile for subject")
	// ErrForbidden is returned when the permission or the resource policy denies the action.
	ErrForbidden = errors.New("forbidden")
)
