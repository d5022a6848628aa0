package custom_errors

import (
	"github.com/cockroachdb/errors"
)

// Validation failures. Nothing is written when one of these is returned.
var (
	ErrDuplicateName   = errors.New("a recurring job with this name already exists")
	ErrInvalidInterval = errors.New("invalid interval")
	ErrInvalidCronSpec = errors.New("invalid cron spec")
)

// Lookup failures.
var (
	ErrJobNotFound           = errors.New("recurring job not found")
	ErrScheduledTaskNotFound = errors.New("scheduled task not found")
	ErrNotScheduled          = errors.New("recurring job has no pending tick")
)

// ErrTickIntegrity is returned by a tick whose job record does not point back
// at it. The tick is failed and not retried.
var ErrTickIntegrity = errors.New("tick integrity violation")

// ErrWriteConflict signals a lost serializable transaction or a stale record
// version. Callers do not retry it in-band.
var ErrWriteConflict = errors.New("write conflict")

// IsValidation reports whether err is one of the request validation errors.
func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.IsAny(err, ErrDuplicateName, ErrInvalidInterval, ErrInvalidCronSpec) || errors.As(err, &vErr)
}

// IsNotFound reports whether err is one of the lookup errors.
func IsNotFound(err error) bool {
	return errors.IsAny(err, ErrJobNotFound, ErrScheduledTaskNotFound, ErrNotScheduled)
}
