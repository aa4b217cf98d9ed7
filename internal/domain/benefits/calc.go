package benefits

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is a benefit that carries a deduction ledger.
type Kind string

const (
	KindVR Kind = "VR"
	KindVT Kind = "VT"
)

// Kinds is the calculation order.
var Kinds = []Kind{KindVR, KindVT}

type kindOps struct {
	configured func(Configuration) bool
	enabled    func(*Record) bool
	deductions func(*Record) *[]Deduction
	calculate  func(*Record)
}

var kinds = map[Kind]kindOps{
	KindVR: {
		configured: func(c Configuration) bool { return c.MealVoucher.Enabled },
		enabled:    func(r *Record) bool { return r.MealVoucher.Enabled },
		deductions: func(r *Record) *[]Deduction { return &r.MealVoucher.Deductions },
		calculate:  calculateVR,
	},
	KindVT: {
		configured: func(c Configuration) bool { return c.TransportVoucher.Enabled },
		enabled:    func(r *Record) bool { return r.TransportVoucher.Enabled },
		deductions: func(r *Record) *[]Deduction { return &r.TransportVoucher.Deductions },
		calculate:  calculateVT,
	},
}

func ParseKind(value string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(value)))
	if _, ok := kinds[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, value)
	}
	return k, nil
}

func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func sumDeductions(items []Deduction) decimal.Decimal {
	total := decimal.Zero
	for _, d := range items {
		total = total.Add(d.Amount)
	}
	return total
}

// netAmount never goes below zero.
func netAmount(total decimal.Decimal, deductions []Deduction) decimal.Decimal {
	net := total.Sub(sumDeductions(deductions))
	if net.IsNegative() {
		return decimal.Zero
	}
	return roundMoney(net)
}

func calculateVR(r *Record) {
	vr := &r.MealVoucher
	if !vr.Enabled {
		vr.TotalAmount = decimal.Zero
		vr.FinalAmount = decimal.Zero
		return
	}
	vr.TotalDays = vr.BusinessDays + vr.Saturdays
	vr.TotalAmount = roundMoney(vr.DailyValue.Mul(decimal.NewFromInt(int64(vr.TotalDays))))
	vr.FinalAmount = netAmount(vr.TotalAmount, vr.Deductions)
}

func calculateVT(r *Record) {
	vt := &r.TransportVoucher
	if !vt.Enabled {
		vt.TotalAmount = decimal.Zero
		vt.FinalAmount = decimal.Zero
		return
	}
	if vt.FixedAmount.IsPositive() {
		vt.TotalAmount = roundMoney(vt.FixedAmount)
	} else {
		vt.TotalAmount = roundMoney(vt.DailyValue.Mul(decimal.NewFromInt(int64(vt.TotalDays))))
	}
	vt.FinalAmount = netAmount(vt.TotalAmount, vt.Deductions)
}

func mobilityAmount(r *Record) decimal.Decimal {
	if !r.Mobility.Enabled {
		return decimal.Zero
	}
	return roundMoney(r.Mobility.MonthlyValue)
}

// TotalBenefitAmount sums the stored net amounts of every enabled benefit.
func TotalBenefitAmount(r *Record) decimal.Decimal {
	total := mobilityAmount(r)
	if r.MealVoucher.Enabled {
		total = total.Add(r.MealVoucher.FinalAmount)
	}
	if r.TransportVoucher.Enabled {
		total = total.Add(r.TransportVoucher.FinalAmount)
	}
	return total
}

func ensureCalculable(r *Record) error {
	switch r.PaymentStatus {
	case StatusApproved, StatusPaid, StatusCancelled:
		return fmt.Errorf("%w: record %s is %s and cannot be recalculated", ErrInvalidStateTransition, r.ID, r.PaymentStatus)
	}
	return nil
}

func markCalculated(r *Record, now time.Time) {
	r.PaymentStatus = StatusCalculated
	r.CalculatedAt = &now
}

// Recalculate recomputes every benefit kind from the values stored on the record.
func Recalculate(r *Record, now time.Time) error {
	if err := ensureCalculable(r); err != nil {
		return err
	}
	for _, k := range Kinds {
		kinds[k].calculate(r)
	}
	markCalculated(r, now)
	return nil
}

// RecalculateKind recomputes one kind and leaves the other untouched.
func RecalculateKind(r *Record, kind Kind, now time.Time) error {
	ops, ok := kinds[kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if err := ensureCalculable(r); err != nil {
		return err
	}
	ops.calculate(r)
	markCalculated(r, now)
	return nil
}

// snapshotRates copies enablement and rates from the configuration. Day counts
// and deductions are kept.
func snapshotRates(r *Record, cfg Configuration) {
	r.MealVoucher.Enabled = cfg.MealVoucher.Enabled
	r.MealVoucher.DailyValue = cfg.MealVoucher.DailyValue
	r.TransportVoucher.Enabled = cfg.TransportVoucher.Enabled
	r.TransportVoucher.FixedAmount = cfg.TransportVoucher.FixedMonthlyAmount
	r.TransportVoucher.DailyValue = cfg.TransportVoucher.DailyValue
	r.Mobility.Enabled = cfg.Mobility.Enabled
	r.Mobility.MonthlyValue = cfg.Mobility.MonthlyValue
}

// applyDays resolves day counts from the input, then the configuration, then
// the month calendar.
func applyDays(r *Record, cfg Configuration, period Period, in CalculationInput) {
	business := cfg.MealVoucher.BusinessDaysDefault
	if business == 0 {
		business = period.Weekdays()
	}
	if in.BusinessDays != nil {
		business = *in.BusinessDays
	}
	saturdays := 0
	if cfg.MealVoucher.IncludeSaturdays {
		saturdays = period.Saturdays()
	}
	if in.Saturdays != nil {
		saturdays = *in.Saturdays
	}
	r.MealVoucher.BusinessDays = business
	r.MealVoucher.Saturdays = saturdays
	r.MealVoucher.TotalDays = business + saturdays

	r.TransportVoucher.TotalDays = business + saturdays
	if in.TransportDays != nil {
		r.TransportVoucher.TotalDays = *in.TransportDays
	}
}

func validateInput(in CalculationInput) error {
	for name, v := range map[string]*int{
		"businessDays":  in.BusinessDays,
		"saturdays":     in.Saturdays,
		"transportDays": in.TransportDays,
	} {
		if v != nil && (*v < 0 || *v > 31) {
			return fmt.Errorf("%w: %s must be between 0 and 31", ErrInvalidConfiguration, name)
		}
	}
	return nil
}
