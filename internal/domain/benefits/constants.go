package benefits

type Status string

const (
	StatusPending    Status = "Pending"
	StatusCalculated Status = "Calculated"
	StatusApproved   Status = "Approved"
	StatusPaid       Status = "Paid"
	StatusCancelled  Status = "Cancelled"
)

// ActiveStatuses lists every status counted by the statistics rollup.
var ActiveStatuses = []Status{StatusPending, StatusCalculated, StatusApproved, StatusPaid}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCalculated, StatusApproved, StatusPaid, StatusCancelled:
		return true
	}
	return false
}

type ProviderStatus string

const (
	ProviderStatusPending    ProviderStatus = "Pending"
	ProviderStatusProcessing ProviderStatus = "Processing"
	ProviderStatusCompleted  ProviderStatus = "Completed"
	ProviderStatusFailed     ProviderStatus = "Failed"
)

func (s ProviderStatus) Valid() bool {
	switch s {
	case ProviderStatusPending, ProviderStatusProcessing, ProviderStatusCompleted, ProviderStatusFailed:
		return true
	}
	return false
}

type DeductionType string

const (
	DeductionAbsence  DeductionType = "Absence"
	DeductionHoliday  DeductionType = "Holiday"
	DeductionVacation DeductionType = "Vacation"
	DeductionOther    DeductionType = "Other"
)

func (t DeductionType) Valid() bool {
	switch t {
	case DeductionAbsence, DeductionHoliday, DeductionVacation, DeductionOther:
		return true
	}
	return false
}

const (
	EventCalculated = "benefit.calculated"
	EventApproved   = "benefit.approved"
	EventSubmitted  = "benefit.submitted"
	EventPaid       = "benefit.paid"
	EventCancelled  = "benefit.cancelled"
	EventFailed     = "benefit.disbursement_failed"
)

const (
	EmployeeStatusActive = "active"

	EntityBenefitRecord = "benefit_record"
	EntityBenefitConfig = "employee_benefit_config"
)

const (
	SkipNotFound     = "not_found"
	SkipInvalidState = "invalid_state"
	SkipConflict     = "conflict"
	SkipProvider     = "provider_error"
	SkipError        = "error"
)
