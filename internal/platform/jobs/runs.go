package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"hrbenefits/internal/platform/querier"
)

const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

type Run struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenantId"`
	JobType     string     `json:"jobType"`
	Status      string     `json:"status"`
	Details     []byte     `json:"-"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// RunStore persists one row per job execution.
type RunStore interface {
	Start(ctx context.Context, tenantID, jobType string) (string, error)
	Finish(ctx context.Context, id, status string, details []byte) error
}

type PGRunStore struct {
	DB querier.Querier
}

func NewPGRunStore(db querier.Querier) *PGRunStore {
	return &PGRunStore{DB: db}
}

func (s *PGRunStore) Start(ctx context.Context, tenantID, jobType string) (string, error) {
	var runID string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO job_runs (tenant_id, job_type, status)
    VALUES ($1,$2,$3)
    RETURNING id
  `, nullIfEmpty(tenantID), jobType, RunRunning).Scan(&runID)
	return runID, err
}

func (s *PGRunStore) Finish(ctx context.Context, id, status string, details []byte) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE job_runs
    SET status = $1, details_json = $2, completed_at = now()
    WHERE id = $3
  `, status, details, id)
	return err
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

type MemoryRunStore struct {
	mu   sync.Mutex
	runs []Run
}

func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{}
}

func (m *MemoryRunStore) Start(_ context.Context, tenantID, jobType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := Run{ID: uuid.NewString(), TenantID: tenantID, JobType: jobType, Status: RunRunning, StartedAt: time.Now().UTC()}
	m.runs = append(m.runs, run)
	return run.ID, nil
}

func (m *MemoryRunStore) Finish(_ context.Context, id, status string, details []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.runs {
		if m.runs[i].ID == id {
			now := time.Now().UTC()
			m.runs[i].Status = status
			m.runs[i].Details = append([]byte(nil), details...)
			m.runs[i].CompletedAt = &now
			return nil
		}
	}
	return nil
}

func (m *MemoryRunStore) Runs() []Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Run, len(m.runs))
	copy(out, m.runs)
	return out
}
