package benefits

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)

func money(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, money(want).Equal(got), "expected %s, got %s", want, got.String())
}

func intPtr(v int) *int { return &v }

func vrRecord(daily string, business, saturdays int) Record {
	return Record{
		ID:            "rec-1",
		TenantID:      "tenant-1",
		EmployeeID:    "emp-1",
		Month:         "2025-03",
		PaymentStatus: StatusPending,
		MealVoucher: MealVoucher{
			Enabled:      true,
			DailyValue:   money(daily),
			BusinessDays: business,
			Saturdays:    saturdays,
		},
	}
}

func TestCalculateVR(t *testing.T) {
	rec := vrRecord("25", 22, 0)
	require.NoError(t, Recalculate(&rec, testNow))

	assert.Equal(t, 22, rec.MealVoucher.TotalDays)
	assertMoney(t, "550", rec.MealVoucher.TotalAmount)
	assertMoney(t, "550", rec.MealVoucher.FinalAmount)
	assert.Equal(t, StatusCalculated, rec.PaymentStatus)
	require.NotNil(t, rec.CalculatedAt)
}

func TestCalculateVRIncludesSaturdays(t *testing.T) {
	rec := vrRecord("30.50", 20, 4)
	require.NoError(t, Recalculate(&rec, testNow))
	assert.Equal(t, 24, rec.MealVoucher.TotalDays)
	assertMoney(t, "732", rec.MealVoucher.TotalAmount)
}

func TestDisabledBenefitsContributeZero(t *testing.T) {
	rec := Record{
		Month:         "2025-03",
		PaymentStatus: StatusPending,
		MealVoucher:   MealVoucher{Enabled: false, DailyValue: money("25"), BusinessDays: 22},
		TransportVoucher: TransportVoucher{
			Enabled:     false,
			FixedAmount: money("300"),
		},
		Mobility: Mobility{Enabled: false, MonthlyValue: money("200")},
	}
	require.NoError(t, Recalculate(&rec, testNow))
	assertMoney(t, "0", rec.MealVoucher.FinalAmount)
	assertMoney(t, "0", rec.TransportVoucher.FinalAmount)
	assertMoney(t, "0", rec.TotalBenefitAmount())
}

func TestCalculateVTFixedIgnoresDays(t *testing.T) {
	rec := Record{
		Month:         "2025-03",
		PaymentStatus: StatusPending,
		TransportVoucher: TransportVoucher{
			Enabled:     true,
			FixedAmount: money("300"),
			DailyValue:  money("12"),
			TotalDays:   5,
		},
	}
	require.NoError(t, Recalculate(&rec, testNow))
	assertMoney(t, "300", rec.TransportVoucher.TotalAmount)
	assertMoney(t, "300", rec.TransportVoucher.FinalAmount)
}

func TestCalculateVTDayRate(t *testing.T) {
	rec := Record{
		Month:         "2025-03",
		PaymentStatus: StatusPending,
		TransportVoucher: TransportVoucher{
			Enabled:    true,
			DailyValue: money("8.80"),
			TotalDays:  21,
		},
	}
	require.NoError(t, Recalculate(&rec, testNow))
	assertMoney(t, "184.80", rec.TransportVoucher.TotalAmount)
}

func TestFinalAmountNeverNegative(t *testing.T) {
	rec := vrRecord("10", 2, 0)
	rec.MealVoucher.Deductions = []Deduction{{Amount: money("15")}, {Amount: money("30")}}
	require.NoError(t, Recalculate(&rec, testNow))
	assertMoney(t, "20", rec.MealVoucher.TotalAmount)
	assertMoney(t, "0", rec.MealVoucher.FinalAmount)
}

func TestTotalBenefitAmountSumsEnabledKinds(t *testing.T) {
	rec := vrRecord("25", 22, 0)
	rec.TransportVoucher = TransportVoucher{Enabled: true, FixedAmount: money("300")}
	rec.Mobility = Mobility{Enabled: true, MonthlyValue: money("150")}
	require.NoError(t, Recalculate(&rec, testNow))
	assertMoney(t, "1000", rec.TotalBenefitAmount())

	rec.Mobility.Enabled = false
	assertMoney(t, "850", rec.TotalBenefitAmount())
}

func TestRecalculateIsIdempotent(t *testing.T) {
	rec := vrRecord("25", 22, 0)
	rec.TransportVoucher = TransportVoucher{Enabled: true, DailyValue: money("9.35"), TotalDays: 22}
	rec.MealVoucher.Deductions = []Deduction{{Amount: money("25")}}
	require.NoError(t, Recalculate(&rec, testNow))
	first := rec.Clone()

	require.NoError(t, Recalculate(&rec, testNow.Add(time.Hour)))
	assert.True(t, first.MealVoucher.FinalAmount.Equal(rec.MealVoucher.FinalAmount))
	assert.True(t, first.TransportVoucher.FinalAmount.Equal(rec.TransportVoucher.FinalAmount))
	assert.True(t, first.TotalBenefitAmount().Equal(rec.TotalBenefitAmount()))
}

func TestRecalculateRejectsTerminalStatuses(t *testing.T) {
	for _, status := range []Status{StatusApproved, StatusPaid, StatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			rec := vrRecord("25", 22, 0)
			rec.PaymentStatus = status
			err := Recalculate(&rec, testNow)
			require.ErrorIs(t, err, ErrInvalidStateTransition)
			assert.Equal(t, status, rec.PaymentStatus)
			assert.True(t, rec.MealVoucher.FinalAmount.IsZero())
		})
	}
}

func TestRecalculateKindLeavesOtherKindUntouched(t *testing.T) {
	rec := vrRecord("25", 22, 0)
	rec.TransportVoucher = TransportVoucher{Enabled: true, FixedAmount: money("300"), FinalAmount: money("123")}
	require.NoError(t, RecalculateKind(&rec, KindVR, testNow))
	assertMoney(t, "550", rec.MealVoucher.FinalAmount)
	assertMoney(t, "123", rec.TransportVoucher.FinalAmount)
}

func TestApplyDaysDefaults(t *testing.T) {
	period, err := NewPeriod(3, 2025)
	require.NoError(t, err)

	cfg := Configuration{MealVoucher: MealVoucherConfig{Enabled: true, DailyValue: money("25")}}
	var rec Record
	applyDays(&rec, cfg, period, CalculationInput{})
	assert.Equal(t, 21, rec.MealVoucher.BusinessDays)
	assert.Equal(t, 0, rec.MealVoucher.Saturdays)
	assert.Equal(t, 21, rec.TransportVoucher.TotalDays)

	cfg.MealVoucher.BusinessDaysDefault = 20
	cfg.MealVoucher.IncludeSaturdays = true
	applyDays(&rec, cfg, period, CalculationInput{})
	assert.Equal(t, 20, rec.MealVoucher.BusinessDays)
	assert.Equal(t, 5, rec.MealVoucher.Saturdays)
	assert.Equal(t, 25, rec.TransportVoucher.TotalDays)

	applyDays(&rec, cfg, period, CalculationInput{BusinessDays: intPtr(18), Saturdays: intPtr(0), TransportDays: intPtr(10)})
	assert.Equal(t, 18, rec.MealVoucher.BusinessDays)
	assert.Equal(t, 0, rec.MealVoucher.Saturdays)
	assert.Equal(t, 10, rec.TransportVoucher.TotalDays)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" vr ")
	require.NoError(t, err)
	assert.Equal(t, KindVR, k)

	_, err = ParseKind("mobility")
	require.ErrorIs(t, err, ErrInvalidKind)
}

func TestPeriod(t *testing.T) {
	p, err := ParsePeriod("2024-02")
	require.NoError(t, err)
	assert.Equal(t, "2024-02", p.String())
	assert.Equal(t, 21, p.Weekdays())
	assert.Equal(t, 4, p.Saturdays())
	assert.True(t, p.Contains(time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC)))
	assert.False(t, p.Contains(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))

	_, err = NewPeriod(13, 2024)
	require.ErrorIs(t, err, ErrInvalidPeriod)
	_, err = ParsePeriod("2024-2")
	require.ErrorIs(t, err, ErrInvalidPeriod)
}
