package core

import "errors"

// ValidationReason names the rule a draft transaction broke.
type ValidationReason string

const (
	EmptyDescription  ValidationReason = "empty description"
	NonPositiveAmount ValidationReason = "non-positive amount"
	InvalidKind       ValidationReason = "invalid kind"
)

// ValidationError is returned before any storage call when a draft is rejected.
type ValidationError struct {
	Reason ValidationReason
}

func (e *ValidationError) Error() string {
	return "invalid transaction: " + string(e.Reason)
}

// Is matches any ValidationError carrying the same reason.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Reason == e.Reason
}

var (
	ErrEmptyDescription  error = &ValidationError{Reason: EmptyDescription}
	ErrNonPositiveAmount error = &ValidationError{Reason: NonPositiveAmount}
	ErrInvalidKind       error = &ValidationError{Reason: InvalidKind}

	ErrOwnerMismatch = errors.New("transaction belongs to another owner")
)

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
