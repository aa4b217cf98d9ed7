package benefits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deduction(amount string, day int) DeductionInput {
	return DeductionInput{
		Date:   time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC),
		Amount: money(amount),
		Reason: "Absence",
		Type:   DeductionAbsence,
	}
}

func calculatedVR(t *testing.T) Record {
	t.Helper()
	rec := vrRecord("25", 22, 0)
	require.NoError(t, Recalculate(&rec, testNow))
	return rec
}

func TestAppendDeductionReducesFinalAmountAndClamps(t *testing.T) {
	rec := calculatedVR(t)
	assertMoney(t, "550", rec.MealVoucher.FinalAmount)

	d, err := AppendDeduction(&rec, KindVR, deduction("100", 10), "hr-1", testNow)
	require.NoError(t, err)
	assert.NotEmpty(t, d.ID)
	assert.Equal(t, "hr-1", d.RecordedBy)
	assertMoney(t, "450", rec.MealVoucher.FinalAmount)

	_, err = AppendDeduction(&rec, KindVR, deduction("500", 11), "hr-1", testNow)
	require.NoError(t, err)
	assertMoney(t, "0", rec.MealVoucher.FinalAmount)
	assertMoney(t, "550", rec.MealVoucher.TotalAmount)
	require.Len(t, rec.MealVoucher.Deductions, 2)
	assertMoney(t, "100", rec.MealVoucher.Deductions[0].Amount)
	assertMoney(t, "500", rec.MealVoucher.Deductions[1].Amount)
}

func TestAppendDeductionNeverIncreasesFinalAmount(t *testing.T) {
	rec := calculatedVR(t)
	previous := rec.MealVoucher.FinalAmount
	for i, amount := range []string{"0.01", "12.5", "80", "1000", "3"} {
		_, err := AppendDeduction(&rec, KindVR, deduction(amount, i+1), "hr-1", testNow)
		require.NoError(t, err)
		assert.True(t, rec.MealVoucher.FinalAmount.LessThanOrEqual(previous))
		assert.False(t, rec.MealVoucher.FinalAmount.IsNegative())
		previous = rec.MealVoucher.FinalAmount
	}
}

func TestAppendDeductionVTLeavesVRUntouched(t *testing.T) {
	rec := calculatedVR(t)
	rec.TransportVoucher = TransportVoucher{Enabled: true, FixedAmount: money("300")}
	require.NoError(t, Recalculate(&rec, testNow))
	vrBefore := rec.MealVoucher

	_, err := AppendDeduction(&rec, KindVT, deduction("50", 3), "hr-1", testNow)
	require.NoError(t, err)
	assertMoney(t, "250", rec.TransportVoucher.FinalAmount)
	assert.True(t, vrBefore.FinalAmount.Equal(rec.MealVoucher.FinalAmount))
	assert.Empty(t, rec.MealVoucher.Deductions)
	assertMoney(t, "800", rec.TotalBenefitAmount())
}

func TestAppendDeductionValidation(t *testing.T) {
	cases := []struct {
		name string
		kind Kind
		in   DeductionInput
		want error
	}{
		{name: "zero amount", kind: KindVR, in: deduction("0", 5), want: ErrInvalidDeduction},
		{name: "negative amount", kind: KindVR, in: deduction("-5", 5), want: ErrInvalidDeduction},
		{name: "date before month", kind: KindVR, in: DeductionInput{Date: time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), Amount: money("5"), Type: DeductionAbsence}, want: ErrInvalidDeduction},
		{name: "date after month", kind: KindVR, in: DeductionInput{Date: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), Amount: money("5"), Type: DeductionAbsence}, want: ErrInvalidDeduction},
		{name: "missing date", kind: KindVR, in: DeductionInput{Amount: money("5"), Type: DeductionAbsence}, want: ErrInvalidDeduction},
		{name: "unknown type", kind: KindVR, in: DeductionInput{Date: time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC), Amount: money("5"), Type: "Sick"}, want: ErrInvalidDeduction},
		{name: "disabled kind", kind: KindVT, in: deduction("5", 5), want: ErrInvalidDeduction},
		{name: "unknown kind", kind: Kind("XX"), in: deduction("5", 5), want: ErrInvalidKind},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := calculatedVR(t)
			before := rec.Clone()
			_, err := AppendDeduction(&rec, tc.kind, tc.in, "hr-1", testNow)
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, before, rec)
		})
	}
}

func TestAppendDeductionRejectedOnApprovedRecord(t *testing.T) {
	rec := calculatedVR(t)
	require.NoError(t, approve(&rec, "mgr-1", testNow))
	_, err := AppendDeduction(&rec, KindVR, deduction("10", 5), "hr-1", testNow)
	require.ErrorIs(t, err, ErrInvalidStateTransition)
	assert.Empty(t, rec.MealVoucher.Deductions)
}

func TestAppendDeductionDefaultsReasonToType(t *testing.T) {
	rec := calculatedVR(t)
	in := deduction("10", 5)
	in.Reason = "  "
	in.Type = DeductionHoliday
	d, err := AppendDeduction(&rec, KindVR, in, "hr-1", testNow)
	require.NoError(t, err)
	assert.Equal(t, "Holiday", d.Reason)
	assert.Len(t, rec.MealVoucher.Deductions, 1)
}

func TestAppendDeductionOnPendingRecordComputesEveryKind(t *testing.T) {
	rec := vrRecord("25", 22, 0)
	rec.TransportVoucher = TransportVoucher{Enabled: true, FixedAmount: money("300")}

	_, err := AppendDeduction(&rec, KindVT, deduction("50", 3), "hr-1", testNow)
	require.NoError(t, err)
	assert.Equal(t, StatusCalculated, rec.PaymentStatus)
	assertMoney(t, "550", rec.MealVoucher.FinalAmount)
	assertMoney(t, "250", rec.TransportVoucher.FinalAmount)
	assertMoney(t, "800", rec.TotalBenefitAmount())
}
