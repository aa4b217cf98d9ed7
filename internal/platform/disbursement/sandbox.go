package disbursement

import (
	"context"
	"fmt"
	"sync"

	"hrbenefits/internal/domain/benefits"
)

// Sandbox accepts every batch and reports it Completed on the first status
// poll. Used for development and the memory storage driver.
type Sandbox struct {
	mu      sync.Mutex
	batches map[string]benefits.Batch
}

func NewSandbox() *Sandbox {
	return &Sandbox{batches: map[string]benefits.Batch{}}
}

func (s *Sandbox) SubmitBatch(_ context.Context, batch benefits.Batch) (benefits.BatchReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reference := "SBX-" + batch.ID
	s.batches[reference] = batch
	return benefits.BatchReceipt{
		Reference: reference,
		Status:    benefits.ProviderStatusProcessing,
		Response:  fmt.Sprintf("sandbox accepted %d employees totalling %s", batch.EmployeeCount, batch.TotalAmount.StringFixed(2)),
	}, nil
}

func (s *Sandbox) BatchStatus(_ context.Context, reference string) (benefits.ProviderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[reference]; !ok {
		return "", fmt.Errorf("sandbox batch %s not found", reference)
	}
	return benefits.ProviderStatusCompleted, nil
}
