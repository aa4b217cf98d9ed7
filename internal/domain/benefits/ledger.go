package benefits

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AppendDeduction validates the input, appends it to the ledger of the given
// kind and recalculates that kind only, or the whole record while it is still
// Pending. The record is left untouched on error.
func AppendDeduction(r *Record, kind Kind, in DeductionInput, recordedBy string, now time.Time) (Deduction, error) {
	ops, ok := kinds[kind]
	if !ok {
		return Deduction{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if !in.Amount.IsPositive() {
		return Deduction{}, fmt.Errorf("%w: amount must be greater than zero", ErrInvalidDeduction)
	}
	if !in.Type.Valid() {
		return Deduction{}, fmt.Errorf("%w: unknown type %q", ErrInvalidDeduction, in.Type)
	}
	period, err := ParsePeriod(r.Month)
	if err != nil {
		return Deduction{}, err
	}
	if in.Date.IsZero() || !period.Contains(in.Date) {
		return Deduction{}, fmt.Errorf("%w: date must fall within %s", ErrInvalidDeduction, r.Month)
	}
	if !ops.enabled(r) {
		return Deduction{}, fmt.Errorf("%w: %s is not enabled on this record", ErrInvalidDeduction, kind)
	}
	if err := ensureCalculable(r); err != nil {
		return Deduction{}, err
	}

	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = string(in.Type)
	}
	d := Deduction{
		ID:         uuid.NewString(),
		Date:       in.Date.UTC(),
		Amount:     roundMoney(in.Amount),
		Reason:     reason,
		Type:       in.Type,
		RecordedBy: recordedBy,
		RecordedAt: now,
	}
	list := ops.deductions(r)
	*list = append(*list, d)
	// A Pending record has never been computed, so every kind is computed
	// before it can count as Calculated.
	if r.PaymentStatus == StatusPending {
		err = Recalculate(r, now)
	} else {
		err = RecalculateKind(r, kind, now)
	}
	if err != nil {
		*list = (*list)[:len(*list)-1]
		return Deduction{}, err
	}
	return d, nil
}
