package benefits

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Batch struct {
	ID            string
	TotalAmount   decimal.Decimal
	EmployeeCount int
}

type BatchReceipt struct {
	Reference string
	Status    ProviderStatus
	Response  string
}

// Provider is the external disbursement API.
type Provider interface {
	SubmitBatch(ctx context.Context, batch Batch) (BatchReceipt, error)
	BatchStatus(ctx context.Context, reference string) (ProviderStatus, error)
}

func approve(r *Record, actor string, now time.Time) error {
	if r.PaymentStatus != StatusCalculated {
		return fmt.Errorf("%w: record %s is %s, expected %s", ErrInvalidStateTransition, r.ID, r.PaymentStatus, StatusCalculated)
	}
	r.PaymentStatus = StatusApproved
	r.ApprovedAt = &now
	r.ApprovedBy = actor
	return nil
}

func markSubmitted(r *Record, actor, batchID string, now time.Time) error {
	if r.PaymentStatus != StatusApproved {
		return fmt.Errorf("%w: record %s is %s, expected %s", ErrInvalidStateTransition, r.ID, r.PaymentStatus, StatusApproved)
	}
	if r.Disbursement.Submitted {
		return fmt.Errorf("%w: record %s already submitted under %s", ErrInvalidStateTransition, r.ID, r.Disbursement.ProviderReference)
	}
	r.Disbursement = Disbursement{
		Submitted:         true,
		SubmittedAt:       &now,
		SubmittedBy:       actor,
		ProviderReference: batchID,
		ProviderStatus:    ProviderStatusProcessing,
	}
	return nil
}

// applyProviderStatus only touches the disbursement sub-document. Completed is final.
func applyProviderStatus(r *Record, status ProviderStatus, response string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidProviderStatus, status)
	}
	if !r.Disbursement.Submitted {
		return fmt.Errorf("%w: record %s was never submitted", ErrInvalidStateTransition, r.ID)
	}
	if r.Disbursement.ProviderStatus == ProviderStatusCompleted && status != ProviderStatusCompleted {
		return fmt.Errorf("%w: record %s disbursement already completed", ErrInvalidStateTransition, r.ID)
	}
	r.Disbursement.ProviderStatus = status
	if response != "" {
		r.Disbursement.ProviderResponse = response
	}
	return nil
}

func reconcile(r *Record, now time.Time) error {
	if r.PaymentStatus != StatusApproved || r.Disbursement.ProviderStatus != ProviderStatusCompleted {
		return fmt.Errorf("%w: record %s is %s with provider status %q", ErrInvalidStateTransition, r.ID, r.PaymentStatus, r.Disbursement.ProviderStatus)
	}
	r.PaymentStatus = StatusPaid
	r.PaidAt = &now
	return nil
}

func cancel(r *Record, actor, reason string, now time.Time) error {
	switch r.PaymentStatus {
	case StatusPending, StatusCalculated, StatusApproved:
	default:
		return fmt.Errorf("%w: record %s is %s and cannot be cancelled", ErrInvalidStateTransition, r.ID, r.PaymentStatus)
	}
	if r.Disbursement.Submitted {
		return fmt.Errorf("%w: record %s was submitted for disbursement", ErrInvalidStateTransition, r.ID)
	}
	r.PaymentStatus = StatusCancelled
	r.CancelledAt = &now
	r.CancelledBy = actor
	r.CancelReason = reason
	return nil
}

// Approve moves Calculated records to Approved. Records in any other state are
// reported as skipped.
func (s *Service) Approve(ctx context.Context, tenantID, actor string, ids []string) (BatchResult, error) {
	result := BatchResult{}
	for _, id := range dedupe(ids) {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		before, after, err := s.mutate(ctx, tenantID, id, func(r *Record) error {
			return approve(r, actor, s.now())
		})
		if err != nil {
			result.skip(id, err)
			continue
		}
		result.add(after)
		s.audit(ctx, tenantID, actor, "benefit.approve", id, before, after)
		s.emit(ctx, EventApproved, actor, after)
	}
	return result, nil
}

// SubmitBatch groups every eligible record into one provider call. Records are
// flagged as submitted before the call so the provider sees each record once.
//
// Once the first record is flagged the batch must reach the provider or be
// marked Failed, so the rest of the run ignores cancellation of ctx. Records
// not yet flagged when ctx is cancelled are reported as skipped and stay
// eligible for a later batch.
func (s *Service) SubmitBatch(ctx context.Context, tenantID, actor string, ids []string) (SubmitResult, error) {
	result := SubmitResult{}
	batchID := uuid.NewString()
	var marked []Record
	pending := dedupe(ids)
	for i, id := range pending {
		if err := ctx.Err(); err != nil {
			if len(marked) == 0 {
				return result, err
			}
			for _, rest := range pending[i:] {
				result.skip(rest, err)
			}
			break
		}
		_, after, err := s.mutate(ctx, tenantID, id, func(r *Record) error {
			return markSubmitted(r, actor, batchID, s.now())
		})
		if err != nil {
			result.skip(id, err)
			continue
		}
		marked = append(marked, after)
	}
	if len(marked) == 0 {
		return result, nil
	}
	ctx = context.WithoutCancel(ctx)

	total := decimal.Zero
	employees := map[string]struct{}{}
	for _, rec := range marked {
		total = total.Add(rec.TotalBenefitAmount())
		employees[rec.EmployeeID] = struct{}{}
	}
	batch := Batch{ID: batchID, TotalAmount: total, EmployeeCount: len(employees)}
	summary := &BatchSummary{ID: batchID, Reference: batchID, TotalAmount: total, EmployeeCount: batch.EmployeeCount}
	result.Batch = summary

	receipt, providerErr := s.provider.SubmitBatch(ctx, batch)
	if providerErr != nil {
		summary.ProviderStatus = ProviderStatusFailed
		for _, rec := range marked {
			_, after, err := s.mutate(ctx, tenantID, rec.ID, func(r *Record) error {
				r.Disbursement.ProviderStatus = ProviderStatusFailed
				r.Disbursement.ProviderResponse = providerErr.Error()
				return nil
			})
			if err != nil {
				after = rec
			}
			result.add(after)
			s.emit(ctx, EventFailed, actor, after)
		}
		return result, fmt.Errorf("%w: batch %s: %v", ErrProviderFailure, batchID, providerErr)
	}

	reference := receipt.Reference
	if reference == "" {
		reference = batchID
	}
	summary.Reference = reference
	summary.ProviderStatus = ProviderStatusProcessing
	for _, rec := range marked {
		before, after, err := s.mutate(ctx, tenantID, rec.ID, func(r *Record) error {
			r.Disbursement.ProviderReference = reference
			r.Disbursement.ProviderResponse = receipt.Response
			return nil
		})
		if err != nil {
			// The record stays submitted under the batch id; the reference can be
			// recovered from the provider.
			after = rec
		}
		result.add(after)
		s.audit(ctx, tenantID, actor, "benefit.submit", rec.ID, before, after)
		s.emit(ctx, EventSubmitted, actor, after)
	}
	return result, nil
}

// ApplyProviderStatus records an asynchronous provider update for every record
// sharing the reference. Payment status is not changed.
func (s *Service) ApplyProviderStatus(ctx context.Context, tenantID, actor, reference string, status ProviderStatus, response string) (BatchResult, error) {
	if !status.Valid() {
		return BatchResult{}, fmt.Errorf("%w: %q", ErrInvalidProviderStatus, status)
	}
	records, err := s.store.ListRecordsByReference(ctx, tenantID, reference)
	if err != nil {
		return BatchResult{}, err
	}
	if len(records) == 0 {
		return BatchResult{}, fmt.Errorf("%w: no records for reference %s", ErrNotFound, reference)
	}
	return s.applyStatus(ctx, tenantID, actor, records, status, response), nil
}

// RefreshProviderStatuses polls the provider once per distinct reference of the
// month's in-flight records.
func (s *Service) RefreshProviderStatuses(ctx context.Context, tenantID, actor string, month, year int) (BatchResult, error) {
	period, err := NewPeriod(month, year)
	if err != nil {
		return BatchResult{}, err
	}
	records, _, err := s.store.ListRecords(ctx, tenantID, RecordFilter{Month: period.String(), Status: StatusApproved})
	if err != nil {
		return BatchResult{}, err
	}
	groups := map[string][]Record{}
	var order []string
	for _, rec := range records {
		d := rec.Disbursement
		if !d.Submitted || d.ProviderStatus == ProviderStatusCompleted || d.ProviderStatus == ProviderStatusFailed {
			continue
		}
		if _, ok := groups[d.ProviderReference]; !ok {
			order = append(order, d.ProviderReference)
		}
		groups[d.ProviderReference] = append(groups[d.ProviderReference], rec)
	}

	result := BatchResult{}
	for _, reference := range order {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		status, err := s.provider.BatchStatus(ctx, reference)
		if err != nil {
			wrapped := fmt.Errorf("%w: status of %s: %v", ErrProviderFailure, reference, err)
			for _, rec := range groups[reference] {
				result.skip(rec.ID, wrapped)
			}
			continue
		}
		partial := s.applyStatus(ctx, tenantID, actor, groups[reference], status, "")
		result.Records = append(result.Records, partial.Records...)
		result.Skipped = append(result.Skipped, partial.Skipped...)
		result.Processed += partial.Processed
		result.SkippedCount += partial.SkippedCount
	}
	return result, nil
}

func (s *Service) applyStatus(ctx context.Context, tenantID, actor string, records []Record, status ProviderStatus, response string) BatchResult {
	result := BatchResult{}
	for _, rec := range records {
		before, after, err := s.mutate(ctx, tenantID, rec.ID, func(r *Record) error {
			return applyProviderStatus(r, status, response)
		})
		if err != nil {
			result.skip(rec.ID, err)
			continue
		}
		result.add(after)
		if before.Disbursement.ProviderStatus == after.Disbursement.ProviderStatus {
			continue
		}
		s.audit(ctx, tenantID, actor, "benefit.provider_status", rec.ID, before, after)
		if status == ProviderStatusFailed {
			s.emit(ctx, EventFailed, actor, after)
		}
	}
	return result
}

// Reconcile marks Approved records whose disbursement completed as Paid. It is
// the only path to Paid.
func (s *Service) Reconcile(ctx context.Context, tenantID, actor string, month, year int) (BatchResult, error) {
	period, err := NewPeriod(month, year)
	if err != nil {
		return BatchResult{}, err
	}
	records, _, err := s.store.ListRecords(ctx, tenantID, RecordFilter{Month: period.String(), Status: StatusApproved})
	if err != nil {
		return BatchResult{}, err
	}
	result := BatchResult{}
	for _, rec := range records {
		if rec.Disbursement.ProviderStatus != ProviderStatusCompleted {
			continue
		}
		before, after, err := s.mutate(ctx, tenantID, rec.ID, func(r *Record) error {
			return reconcile(r, s.now())
		})
		if err != nil {
			result.skip(rec.ID, err)
			continue
		}
		result.add(after)
		s.audit(ctx, tenantID, actor, "benefit.reconcile", rec.ID, before, after)
		s.emit(ctx, EventPaid, actor, after)
	}
	return result, nil
}

func (s *Service) Cancel(ctx context.Context, tenantID, actor, id, reason string) (Record, error) {
	before, after, err := s.mutate(ctx, tenantID, id, func(r *Record) error {
		return cancel(r, actor, reason, s.now())
	})
	if err != nil {
		return Record{}, err
	}
	s.audit(ctx, tenantID, actor, "benefit.cancel", id, before, after)
	s.emit(ctx, EventCancelled, actor, after)
	return after, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
