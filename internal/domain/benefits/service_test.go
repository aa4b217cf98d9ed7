package benefits

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tenant = "tenant-1"

type fakeProvider struct {
	mu        sync.Mutex
	batches   []Batch
	reference string
	submitErr error
	statuses  map[string]ProviderStatus
	statusErr error
	polled    []string
	ctxErrs   []error
}

func (p *fakeProvider) SubmitBatch(ctx context.Context, batch Batch) (BatchReceipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, batch)
	p.ctxErrs = append(p.ctxErrs, ctx.Err())
	if p.submitErr != nil {
		return BatchReceipt{}, p.submitErr
	}
	return BatchReceipt{Reference: p.reference, Status: ProviderStatusProcessing, Response: "accepted"}, nil
}

func (p *fakeProvider) BatchStatus(_ context.Context, reference string) (ProviderStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polled = append(p.polled, reference)
	if p.statusErr != nil {
		return "", p.statusErr
	}
	return p.statuses[reference], nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(_ context.Context, event Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingAuditor struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAuditor) Record(_ context.Context, _, _, action, _, _ string, _, _ any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
	return nil
}

type fixture struct {
	svc      *Service
	store    *MemoryStore
	provider *fakeProvider
	notifier *recordingNotifier
	auditor  *recordingAuditor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := NewMemoryStore()
	provider := &fakeProvider{reference: "PRV-1", statuses: map[string]ProviderStatus{}}
	notifier := &recordingNotifier{}
	auditor := &recordingAuditor{}
	svc := NewService(store, provider,
		WithNotifier(notifier),
		WithAuditor(auditor),
		WithClock(func() time.Time { return testNow }),
	)
	return &fixture{svc: svc, store: store, provider: provider, notifier: notifier, auditor: auditor}
}

func (f *fixture) employee(id string, cfg Configuration) {
	f.store.PutEmployee(Employee{
		ID:         id,
		TenantID:   tenant,
		FirstName:  "Emp",
		LastName:   id,
		Email:      id + "@example.com",
		Department: "Ops",
		Status:     EmployeeStatusActive,
		Benefits:   cfg,
	})
}

func vrConfig(daily string) Configuration {
	return Configuration{MealVoucher: MealVoucherConfig{Enabled: true, DailyValue: money(daily)}}
}

func (f *fixture) calculate(t *testing.T, employeeID string, business int) Record {
	t.Helper()
	rec, err := f.svc.Calculate(context.Background(), tenant, "hr-1", employeeID, 3, 2025, CalculationInput{BusinessDays: intPtr(business), Saturdays: intPtr(0)})
	require.NoError(t, err)
	return rec
}

func TestServiceCalculateScenario(t *testing.T) {
	f := newFixture(t)
	cfg := vrConfig("25")
	cfg.TransportVoucher = TransportVoucherConfig{Enabled: true, FixedMonthlyAmount: money("300")}
	f.employee("emp-1", cfg)
	ctx := context.Background()

	rec := f.calculate(t, "emp-1", 22)
	assertMoney(t, "550", rec.MealVoucher.TotalAmount)
	assertMoney(t, "550", rec.MealVoucher.FinalAmount)
	assert.Equal(t, StatusCalculated, rec.PaymentStatus)

	rec, err := f.svc.AddDeduction(ctx, tenant, "hr-1", rec.ID, KindVR, deduction("100", 4))
	require.NoError(t, err)
	assertMoney(t, "450", rec.MealVoucher.FinalAmount)

	rec, err = f.svc.AddDeduction(ctx, tenant, "hr-1", rec.ID, KindVR, deduction("500", 5))
	require.NoError(t, err)
	assertMoney(t, "0", rec.MealVoucher.FinalAmount)

	rec, err = f.svc.AddDeduction(ctx, tenant, "hr-1", rec.ID, KindVT, deduction("50", 6))
	require.NoError(t, err)
	assertMoney(t, "250", rec.TransportVoucher.FinalAmount)
	assertMoney(t, "250", rec.TotalBenefitAmount())

	stored, err := f.svc.Record(ctx, tenant, rec.ID)
	require.NoError(t, err)
	assert.Len(t, stored.MealVoucher.Deductions, 2)
	assert.Len(t, stored.TransportVoucher.Deductions, 1)
	assert.Equal(t, rec.Version, stored.Version)
}

func TestServiceGetOrCreateIsLazyAndUnique(t *testing.T) {
	f := newFixture(t)
	f.employee("emp-1", vrConfig("25"))
	ctx := context.Background()

	first, err := f.svc.GetOrCreate(ctx, tenant, "emp-1", 3, 2025)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, first.PaymentStatus)
	assert.Equal(t, "2025-03", first.Month)
	assert.Equal(t, 21, first.MealVoucher.BusinessDays)

	second, err := f.svc.GetOrCreate(ctx, tenant, "emp-1", 3, 2025)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = f.svc.GetOrCreate(ctx, tenant, "missing", 3, 2025)
	require.ErrorIs(t, err, ErrEmployeeNotFound)

	_, err = f.svc.GetOrCreate(ctx, tenant, "emp-1", 0, 2025)
	require.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestServiceConcurrentCreateResolvesToOneRecord(t *testing.T) {
	f := newFixture(t)
	f.employee("emp-1", vrConfig("25"))

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := f.svc.GetOrCreate(context.Background(), tenant, "emp-1", 3, 2025)
			if err == nil {
				ids[i] = rec.ID
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	_, total, err := f.store.ListRecords(context.Background(), tenant, RecordFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestServiceConcurrentDeductionsAreNotLost(t *testing.T) {
	f := newFixture(t)
	f.employee("emp-1", vrConfig("25"))
	rec := f.calculate(t, "emp-1", 22)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(day int) {
			defer wg.Done()
			_, _ = f.svc.AddDeduction(context.Background(), tenant, "hr-1", rec.ID, KindVR, deduction("10", day))
		}(i + 1)
	}
	wg.Wait()

	stored, err := f.svc.Record(context.Background(), tenant, rec.ID)
	require.NoError(t, err)
	n := len(stored.MealVoucher.Deductions)
	assert.Equal(t, rec.Version+n, stored.Version)
	expected := money("550").Sub(decimal.NewFromInt(int64(10 * n)))
	assert.True(t, expected.Equal(stored.MealVoucher.FinalAmount), "expected %s, got %s", expected, stored.MealVoucher.FinalAmount)
}

func TestServiceCalculateRejectsApprovedRecord(t *testing.T) {
	f := newFixture(t)
	f.employee("emp-1", vrConfig("25"))
	rec := f.calculate(t, "emp-1", 22)
	_, err := f.svc.Approve(context.Background(), tenant, "mgr-1", []string{rec.ID})
	require.NoError(t, err)

	_, err = f.svc.Calculate(context.Background(), tenant, "hr-1", "emp-1", 3, 2025, CalculationInput{BusinessDays: intPtr(10)})
	require.ErrorIs(t, err, ErrInvalidStateTransition)

	stored, err := f.svc.Record(context.Background(), tenant, rec.ID)
	require.NoError(t, err)
	assertMoney(t, "550", stored.MealVoucher.FinalAmount)
}

func TestServiceCalculateValidatesInput(t *testing.T) {
	f := newFixture(t)
	f.employee("emp-1", vrConfig("25"))
	_, err := f.svc.Calculate(context.Background(), tenant, "hr-1", "emp-1", 3, 2025, CalculationInput{BusinessDays: intPtr(-1)})
	require.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestServiceCalculateMonthSkipsTerminalRecords(t *testing.T) {
	f := newFixture(t)
	f.employee("emp-1", vrConfig("25"))
	f.employee("emp-2", vrConfig("30"))
	f.store.PutEmployee(Employee{ID: "emp-3", TenantID: tenant, Status: "terminated", Benefits: vrConfig("30")})
	f.store.PutEmployee(Employee{ID: "emp-4", TenantID: tenant, Status: EmployeeStatusActive})

	first := f.calculate(t, "emp-1", 22)
	_, err := f.svc.Cancel(context.Background(), tenant, "hr-1", first.ID, "left company")
	require.NoError(t, err)

	result, err := f.svc.CalculateMonth(context.Background(), tenant, "system", 3, 2025)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.SkippedCount)
	assert.Equal(t, "emp-1", result.Skipped[0].ID)
	assert.Equal(t, SkipInvalidState, result.Skipped[0].Code)
	assertMoney(t, "630", result.Records[0].MealVoucher.FinalAmount)
}

func TestServiceUpdateConfigurationResnapshotsOpenRecords(t *testing.T) {
	f := newFixture(t)
	f.employee("emp-1", vrConfig("25"))
	rec := f.calculate(t, "emp-1", 20)
	assertMoney(t, "500", rec.MealVoucher.FinalAmount)

	_, err := f.svc.UpdateConfiguration(context.Background(), tenant, "hr-1", "emp-1", Configuration{
		MealVoucher: MealVoucherConfig{Enabled: true, DailyValue: money("30")},
		Mobility:    MobilityConfig{Enabled: true, MonthlyValue: money("100")},
	})
	require.NoError(t, err)

	stored, err := f.svc.Record(context.Background(), tenant, rec.ID)
	require.NoError(t, err)
	assertMoney(t, "600", stored.MealVoucher.FinalAmount)
	assertMoney(t, "700", stored.TotalBenefitAmount())

	cfg, err := f.svc.Configuration(context.Background(), tenant, "emp-1")
	require.NoError(t, err)
	assert.True(t, cfg.Mobility.Enabled)

	_, err = f.svc.UpdateConfiguration(context.Background(), tenant, "hr-1", "emp-1", Configuration{
		MealVoucher: MealVoucherConfig{Enabled: true, DailyValue: money("-1")},
	})
	require.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestServiceListEligibleEmployees(t *testing.T) {
	f := newFixture(t)
	f.employee("emp-1", vrConfig("25"))
	f.employee("emp-2", Configuration{TransportVoucher: TransportVoucherConfig{Enabled: true, FixedMonthlyAmount: money("200")}})
	f.store.PutEmployee(Employee{ID: "emp-3", TenantID: tenant, Status: "inactive", Benefits: vrConfig("25")})

	all, err := f.svc.ListEligibleEmployees(context.Background(), tenant, EmployeeFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	vt, err := f.svc.ListEligibleEmployees(context.Background(), tenant, EmployeeFilter{Kind: KindVT})
	require.NoError(t, err)
	require.Len(t, vt, 1)
	assert.Equal(t, "emp-2", vt[0].ID)

	_, err = f.svc.ListEligibleEmployees(context.Background(), tenant, EmployeeFilter{Kind: "XX"})
	require.ErrorIs(t, err, ErrInvalidKind)
}

func TestServiceGetByMonthFilters(t *testing.T) {
	f := newFixture(t)
	f.employee("emp-1", vrConfig("25"))
	f.employee("emp-2", vrConfig("25"))
	f.calculate(t, "emp-1", 22)
	_, err := f.svc.GetOrCreate(context.Background(), tenant, "emp-2", 3, 2025)
	require.NoError(t, err)

	page, err := f.svc.GetByMonth(context.Background(), tenant, 3, 2025, RecordFilter{Status: StatusCalculated})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, "emp-1", page.Records[0].EmployeeID)

	page, err = f.svc.GetByMonth(context.Background(), tenant, 3, 2025, RecordFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Len(t, page.Records, 1)

	_, err = f.svc.GetByMonth(context.Background(), tenant, 3, 2025, RecordFilter{Status: "Draft"})
	require.ErrorIs(t, err, ErrInvalidFilter)
}

func TestServiceRecordNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.AddDeduction(context.Background(), tenant, "hr-1", "missing", KindVR, deduction("10", 1))
	require.True(t, errors.Is(err, ErrNotFound))
}
