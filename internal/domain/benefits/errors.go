package benefits

import "errors"

var (
	ErrNotFound               = errors.New("benefit record not found")
	ErrEmployeeNotFound       = errors.New("employee not found")
	ErrInvalidDeduction       = errors.New("invalid deduction")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInvalidPeriod          = errors.New("invalid benefit period")
	ErrInvalidConfiguration   = errors.New("invalid benefit configuration")
	ErrInvalidKind            = errors.New("unknown benefit kind")
	ErrInvalidProviderStatus  = errors.New("invalid provider status")
	ErrInvalidFilter          = errors.New("invalid filter")
	ErrProviderFailure        = errors.New("disbursement provider failure")
	ErrRecordExists           = errors.New("benefit record already exists for employee and month")
	ErrConcurrentModification = errors.New("benefit record modified concurrently")
)

// skipCode maps a per-record failure to the code reported by batch operations.
func skipCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrEmployeeNotFound):
		return SkipNotFound
	case errors.Is(err, ErrInvalidStateTransition):
		return SkipInvalidState
	case errors.Is(err, ErrConcurrentModification):
		return SkipConflict
	case errors.Is(err, ErrProviderFailure):
		return SkipProvider
	default:
		return SkipError
	}
}
