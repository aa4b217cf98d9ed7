package benefits

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type MealVoucherConfig struct {
	Enabled             bool            `json:"enabled"`
	DailyValue          decimal.Decimal `json:"dailyValue"`
	BusinessDaysDefault int             `json:"businessDaysDefault"`
	IncludeSaturdays    bool            `json:"includeSaturdays"`
}

type TransportVoucherConfig struct {
	Enabled            bool            `json:"enabled"`
	FixedMonthlyAmount decimal.Decimal `json:"fixedMonthlyAmount"`
	DailyValue         decimal.Decimal `json:"dailyValue"`
}

type MobilityConfig struct {
	Enabled      bool            `json:"enabled"`
	MonthlyValue decimal.Decimal `json:"monthlyValue"`
}

// Configuration is the per-employee benefit setup owned by the employee record.
type Configuration struct {
	MealVoucher      MealVoucherConfig      `json:"valeRefeicao"`
	TransportVoucher TransportVoucherConfig `json:"valeTransporte"`
	Mobility         MobilityConfig         `json:"mobility"`
}

func (c Configuration) AnyEnabled() bool {
	return c.MealVoucher.Enabled || c.TransportVoucher.Enabled || c.Mobility.Enabled
}

func (c Configuration) Validate() error {
	if c.MealVoucher.DailyValue.IsNegative() {
		return fmt.Errorf("%w: valeRefeicao.dailyValue must not be negative", ErrInvalidConfiguration)
	}
	if c.MealVoucher.BusinessDaysDefault < 0 || c.MealVoucher.BusinessDaysDefault > 31 {
		return fmt.Errorf("%w: valeRefeicao.businessDaysDefault must be between 0 and 31", ErrInvalidConfiguration)
	}
	if c.TransportVoucher.FixedMonthlyAmount.IsNegative() {
		return fmt.Errorf("%w: valeTransporte.fixedMonthlyAmount must not be negative", ErrInvalidConfiguration)
	}
	if c.TransportVoucher.DailyValue.IsNegative() {
		return fmt.Errorf("%w: valeTransporte.dailyValue must not be negative", ErrInvalidConfiguration)
	}
	if c.Mobility.MonthlyValue.IsNegative() {
		return fmt.Errorf("%w: mobility.monthlyValue must not be negative", ErrInvalidConfiguration)
	}
	return nil
}

type Employee struct {
	ID         string        `json:"id"`
	TenantID   string        `json:"-"`
	FirstName  string        `json:"firstName"`
	LastName   string        `json:"lastName"`
	Email      string        `json:"email"`
	Department string        `json:"department"`
	Status     string        `json:"status"`
	Benefits   Configuration `json:"benefits"`
}

func (e Employee) FullName() string {
	if e.FirstName == "" && e.LastName == "" {
		return e.ID
	}
	if e.LastName == "" {
		return e.FirstName
	}
	return e.FirstName + " " + e.LastName
}

// Eligible reports whether the employee is active with the given kind enabled,
// or any benefit enabled when kind is empty.
func (e Employee) Eligible(kind Kind) bool {
	if e.Status != EmployeeStatusActive {
		return false
	}
	if ops, ok := kinds[kind]; ok {
		return ops.configured(e.Benefits)
	}
	return e.Benefits.AnyEnabled()
}

// Deduction is immutable once appended to a record.
type Deduction struct {
	ID         string          `json:"id"`
	Date       time.Time       `json:"date"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason"`
	Type       DeductionType   `json:"type"`
	RecordedBy string          `json:"recordedBy"`
	RecordedAt time.Time       `json:"recordedAt"`
}

type MealVoucher struct {
	Enabled      bool            `json:"enabled"`
	DailyValue   decimal.Decimal `json:"dailyValue"`
	BusinessDays int             `json:"businessDays"`
	Saturdays    int             `json:"saturdays"`
	TotalDays    int             `json:"totalDays"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	Deductions   []Deduction     `json:"deductions"`
	FinalAmount  decimal.Decimal `json:"finalAmount"`
}

type TransportVoucher struct {
	Enabled     bool            `json:"enabled"`
	FixedAmount decimal.Decimal `json:"fixedAmount"`
	DailyValue  decimal.Decimal `json:"dailyValue"`
	TotalDays   int             `json:"totalDays"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Deductions  []Deduction     `json:"deductions"`
	FinalAmount decimal.Decimal `json:"finalAmount"`
}

type Mobility struct {
	Enabled      bool            `json:"enabled"`
	MonthlyValue decimal.Decimal `json:"monthlyValue"`
}

type Disbursement struct {
	Submitted         bool           `json:"submitted"`
	SubmittedAt       *time.Time     `json:"submittedAt,omitempty"`
	SubmittedBy       string         `json:"submittedBy,omitempty"`
	ProviderReference string         `json:"providerReference,omitempty"`
	ProviderStatus    ProviderStatus `json:"providerStatus,omitempty"`
	ProviderResponse  string         `json:"providerResponse,omitempty"`
}

// Record is the benefit period record of one employee for one calendar month.
type Record struct {
	ID               string           `json:"id"`
	TenantID         string           `json:"-"`
	EmployeeID       string           `json:"employeeId"`
	Month            string           `json:"month"`
	MealVoucher      MealVoucher      `json:"valeRefeicao"`
	TransportVoucher TransportVoucher `json:"valeTransporte"`
	Mobility         Mobility         `json:"mobility"`
	PaymentStatus    Status           `json:"paymentStatus"`
	Disbursement     Disbursement     `json:"disbursement"`
	Version          int              `json:"version"`
	CalculatedAt     *time.Time       `json:"calculatedAt,omitempty"`
	ApprovedAt       *time.Time       `json:"approvedAt,omitempty"`
	ApprovedBy       string           `json:"approvedBy,omitempty"`
	PaidAt           *time.Time       `json:"paidAt,omitempty"`
	CancelledAt      *time.Time       `json:"cancelledAt,omitempty"`
	CancelledBy      string           `json:"cancelledBy,omitempty"`
	CancelReason     string           `json:"cancelReason,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

func (r Record) TotalBenefitAmount() decimal.Decimal {
	return TotalBenefitAmount(&r)
}

func (r Record) Clone() Record {
	out := r
	out.MealVoucher.Deductions = append([]Deduction(nil), r.MealVoucher.Deductions...)
	out.TransportVoucher.Deductions = append([]Deduction(nil), r.TransportVoucher.Deductions...)
	out.CalculatedAt = cloneTime(r.CalculatedAt)
	out.ApprovedAt = cloneTime(r.ApprovedAt)
	out.PaidAt = cloneTime(r.PaidAt)
	out.CancelledAt = cloneTime(r.CancelledAt)
	out.Disbursement.SubmittedAt = cloneTime(r.Disbursement.SubmittedAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// CalculationInput carries optional day counts; nil fields fall back to the
// employee configuration and the month calendar.
type CalculationInput struct {
	BusinessDays  *int `json:"businessDays,omitempty"`
	Saturdays     *int `json:"saturdays,omitempty"`
	TransportDays *int `json:"transportDays,omitempty"`
}

type DeductionInput struct {
	Date   time.Time       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
	Type   DeductionType   `json:"type"`
}

type RecordFilter struct {
	Month      string
	Status     Status
	EmployeeID string
	Limit      int
	Offset     int
}

type RecordPage struct {
	Records []Record `json:"records"`
	Total   int      `json:"total"`
}

type EmployeeFilter struct {
	Department string
	Kind       Kind
	Search     string
}

type SkippedItem struct {
	ID     string `json:"id"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// BatchResult reports a partial-success batch operation.
type BatchResult struct {
	Records      []Record      `json:"records"`
	Skipped      []SkippedItem `json:"skipped"`
	Processed    int           `json:"processed"`
	SkippedCount int           `json:"skippedCount"`
}

func (b *BatchResult) add(rec Record) {
	b.Records = append(b.Records, rec)
	b.Processed++
}

func (b *BatchResult) skip(id string, err error) {
	b.Skipped = append(b.Skipped, SkippedItem{ID: id, Code: skipCode(err), Reason: err.Error()})
	b.SkippedCount++
}

type BatchSummary struct {
	ID             string          `json:"id"`
	Reference      string          `json:"reference"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	EmployeeCount  int             `json:"employeeCount"`
	ProviderStatus ProviderStatus  `json:"providerStatus"`
}

type SubmitResult struct {
	BatchResult
	Batch *BatchSummary `json:"batch,omitempty"`
}

// Event is emitted to the notification layer on every workflow transition.
type Event struct {
	Type       string          `json:"type"`
	TenantID   string          `json:"tenantId"`
	RecordID   string          `json:"recordId"`
	EmployeeID string          `json:"employeeId"`
	Month      string          `json:"month"`
	Actor      string          `json:"actor"`
	Amount     decimal.Decimal `json:"amount"`
	Reference  string          `json:"reference,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}
