package errors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalid      = errors.New("invalid")
	ErrConflict     = errors.New("conflict")
	ErrTooMany      = errors.New("too many requests")
	ErrInternal     = errors.New("internal")

	ErrEmptyQuery                = errors.New("empty query")
	ErrAdapterUnavailable        = errors.New("record source unavailable")
	ErrNoContext                 = errors.New("no grounding context")
	ErrSynthesisUnavailable      = errors.New("answer synthesis unavailable")
	ErrConversationWriteConflict = errors.New("conversation write conflict")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsRetryable reports whether the caller may retry the same request later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSynthesisUnavailable) || errors.Is(err, ErrConversationWriteConflict)
}
