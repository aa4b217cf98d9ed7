package benefits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// maxWriteAttempts bounds the optimistic retry loop of a single record write.
const maxWriteAttempts = 5

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

type Auditor interface {
	Record(ctx context.Context, tenantID, actorID, action, entityType, entityID string, before, after any) error
}

type Service struct {
	store    StoreAPI
	provider Provider
	notifier Notifier
	auditor  Auditor
	clock    func() time.Time
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

func NewService(store StoreAPI, provider Provider, opts ...Option) *Service {
	s := &Service{store: store, provider: provider, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) GetByMonth(ctx context.Context, tenantID string, month, year int, filter RecordFilter) (RecordPage, error) {
	period, err := NewPeriod(month, year)
	if err != nil {
		return RecordPage{}, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return RecordPage{}, fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, filter.Status)
	}
	filter.Month = period.String()
	records, total, err := s.store.ListRecords(ctx, tenantID, filter)
	if err != nil {
		return RecordPage{}, err
	}
	return RecordPage{Records: records, Total: total}, nil
}

func (s *Service) Record(ctx context.Context, tenantID, id string) (Record, error) {
	return s.store.Record(ctx, tenantID, id)
}

// GetOrCreate returns the employee's record for the month, creating a Pending
// one with the current configuration snapshot when none exists.
func (s *Service) GetOrCreate(ctx context.Context, tenantID, employeeID string, month, year int) (Record, error) {
	period, err := NewPeriod(month, year)
	if err != nil {
		return Record{}, err
	}
	rec, _, err := s.getOrCreate(ctx, tenantID, employeeID, period)
	return rec, err
}

func (s *Service) getOrCreate(ctx context.Context, tenantID, employeeID string, period Period) (Record, Employee, error) {
	emp, err := s.store.Employee(ctx, tenantID, employeeID)
	if err != nil {
		return Record{}, Employee{}, err
	}
	rec, err := s.store.RecordByEmployeeMonth(ctx, tenantID, employeeID, period.String())
	if err == nil {
		return rec, emp, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Record{}, Employee{}, err
	}

	now := s.now()
	fresh := Record{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		EmployeeID:    employeeID,
		Month:         period.String(),
		PaymentStatus: StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	snapshotRates(&fresh, emp.Benefits)
	applyDays(&fresh, emp.Benefits, period, CalculationInput{})
	created, err := s.store.CreateRecord(ctx, fresh)
	if errors.Is(err, ErrRecordExists) {
		rec, err = s.store.RecordByEmployeeMonth(ctx, tenantID, employeeID, period.String())
		return rec, emp, err
	}
	if err != nil {
		return Record{}, Employee{}, err
	}
	return created, emp, nil
}

// Calculate snapshots the employee configuration onto the month's record,
// resolves day counts and recomputes every benefit.
func (s *Service) Calculate(ctx context.Context, tenantID, actor, employeeID string, month, year int, in CalculationInput) (Record, error) {
	period, err := NewPeriod(month, year)
	if err != nil {
		return Record{}, err
	}
	if err := validateInput(in); err != nil {
		return Record{}, err
	}
	rec, emp, err := s.getOrCreate(ctx, tenantID, employeeID, period)
	if err != nil {
		return Record{}, err
	}
	before, after, err := s.mutate(ctx, tenantID, rec.ID, func(r *Record) error {
		if err := ensureCalculable(r); err != nil {
			return err
		}
		snapshotRates(r, emp.Benefits)
		applyDays(r, emp.Benefits, period, in)
		return Recalculate(r, s.now())
	})
	if err != nil {
		return Record{}, err
	}
	s.audit(ctx, tenantID, actor, "benefit.calculate", after.ID, before, after)
	s.emit(ctx, EventCalculated, actor, after)
	return after, nil
}

// CalculateMonth runs Calculate with default inputs for every eligible employee.
func (s *Service) CalculateMonth(ctx context.Context, tenantID, actor string, month, year int) (BatchResult, error) {
	if _, err := NewPeriod(month, year); err != nil {
		return BatchResult{}, err
	}
	employees, err := s.store.ListEligibleEmployees(ctx, tenantID, EmployeeFilter{})
	if err != nil {
		return BatchResult{}, err
	}
	result := BatchResult{}
	for _, emp := range employees {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		rec, err := s.Calculate(ctx, tenantID, actor, emp.ID, month, year, CalculationInput{})
		if err != nil {
			result.skip(emp.ID, err)
			continue
		}
		result.add(rec)
	}
	return result, nil
}

func (s *Service) AddDeduction(ctx context.Context, tenantID, actor, recordID string, kind Kind, in DeductionInput) (Record, error) {
	if !kind.Valid() {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	before, after, err := s.mutate(ctx, tenantID, recordID, func(r *Record) error {
		_, err := AppendDeduction(r, kind, in, actor, s.now())
		return err
	})
	if err != nil {
		return Record{}, err
	}
	s.audit(ctx, tenantID, actor, "benefit.deduction.add", recordID, before, after)
	return after, nil
}

func (s *Service) ListEligibleEmployees(ctx context.Context, tenantID string, filter EmployeeFilter) ([]Employee, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, filter.Kind)
	}
	return s.store.ListEligibleEmployees(ctx, tenantID, filter)
}

func (s *Service) Configuration(ctx context.Context, tenantID, employeeID string) (Configuration, error) {
	emp, err := s.store.Employee(ctx, tenantID, employeeID)
	if err != nil {
		return Configuration{}, err
	}
	return emp.Benefits, nil
}

// UpdateConfiguration stores the new configuration and re-snapshots it onto
// the employee's open records. Calculated records are recomputed.
func (s *Service) UpdateConfiguration(ctx context.Context, tenantID, actor, employeeID string, cfg Configuration) (Configuration, error) {
	if err := cfg.Validate(); err != nil {
		return Configuration{}, err
	}
	emp, err := s.store.Employee(ctx, tenantID, employeeID)
	if err != nil {
		return Configuration{}, err
	}
	if err := s.store.UpdateConfiguration(ctx, tenantID, employeeID, cfg); err != nil {
		return Configuration{}, err
	}
	s.audit(ctx, tenantID, actor, "benefit.config.update", employeeID, emp.Benefits, cfg)

	records, _, err := s.store.ListRecords(ctx, tenantID, RecordFilter{EmployeeID: employeeID})
	if err != nil {
		return cfg, err
	}
	for _, rec := range records {
		if rec.PaymentStatus != StatusPending && rec.PaymentStatus != StatusCalculated {
			continue
		}
		_, _, err := s.mutate(ctx, tenantID, rec.ID, func(r *Record) error {
			switch r.PaymentStatus {
			case StatusPending:
				snapshotRates(r, cfg)
				return nil
			case StatusCalculated:
				snapshotRates(r, cfg)
				return Recalculate(r, s.now())
			}
			return nil
		})
		if err != nil {
			slog.Warn("benefit record resnapshot failed", "recordId", rec.ID, "err", err)
		}
	}
	return cfg, nil
}

// mutate applies fn to a fresh copy of the record and writes it back guarded by
// the version read. Lost races are retried.
func (s *Service) mutate(ctx context.Context, tenantID, id string, fn func(*Record) error) (Record, Record, error) {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		current, err := s.store.Record(ctx, tenantID, id)
		if err != nil {
			return Record{}, Record{}, err
		}
		next := current.Clone()
		if err := fn(&next); err != nil {
			return Record{}, Record{}, err
		}
		next.UpdatedAt = s.now()
		saved, err := s.store.UpdateRecord(ctx, next, current.Version)
		if errors.Is(err, ErrConcurrentModification) {
			continue
		}
		if err != nil {
			return Record{}, Record{}, err
		}
		return current, saved, nil
	}
	return Record{}, Record{}, fmt.Errorf("%w: record %s after %d attempts", ErrConcurrentModification, id, maxWriteAttempts)
}

func (s *Service) emit(ctx context.Context, eventType, actor string, rec Record) {
	if s.notifier == nil {
		return
	}
	event := Event{
		Type:       eventType,
		TenantID:   rec.TenantID,
		RecordID:   rec.ID,
		EmployeeID: rec.EmployeeID,
		Month:      rec.Month,
		Actor:      actor,
		Amount:     rec.TotalBenefitAmount(),
		Reference:  rec.Disbursement.ProviderReference,
		OccurredAt: s.now(),
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		slog.Warn("benefit notification failed", "type", eventType, "recordId", rec.ID, "err", err)
	}
}

func (s *Service) audit(ctx context.Context, tenantID, actor, action, entityID string, before, after any) {
	if s.auditor == nil {
		return
	}
	entityType := EntityBenefitRecord
	if action == "benefit.config.update" {
		entityType = EntityBenefitConfig
	}
	if err := s.auditor.Record(ctx, tenantID, actor, action, entityType, entityID, before, after); err != nil {
		slog.Warn("audit record failed", "action", action, "entityId", entityID, "err", err)
	}
}
