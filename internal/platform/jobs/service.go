package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"hrbenefits/internal/domain/benefits"
)

const (
	JobCalculateMonth = "benefits_calculate_month"
	JobStatusRefresh  = "benefits_status_refresh"

	systemActor = "system:scheduler"
)

// Runner is the part of the benefits service driven by the scheduler.
type Runner interface {
	CalculateMonth(ctx context.Context, tenantID, actor string, month, year int) (benefits.BatchResult, error)
	RefreshProviderStatuses(ctx context.Context, tenantID, actor string, month, year int) (benefits.BatchResult, error)
}

// TenantSource lists the tenants a scheduled run covers.
type TenantSource func(ctx context.Context) ([]string, error)

func StaticTenants(ids []string) TenantSource {
	return func(context.Context) ([]string, error) {
		return ids, nil
	}
}

type Schedules struct {
	Calculation   string
	StatusRefresh string
}

type Service struct {
	runner  Runner
	runs    RunStore
	tenants TenantSource
	cron    *cron.Cron
	queue   chan job
	now     func() time.Time
}

type job struct {
	Type     string
	TenantID string
	Run      func(context.Context) (any, error)
}

func New(runner Runner, runs RunStore, tenants TenantSource) *Service {
	if runs == nil {
		runs = NewMemoryRunStore()
	}
	return &Service{
		runner:  runner,
		runs:    runs,
		tenants: tenants,
		cron:    cron.New(),
		queue:   make(chan job, 128),
		now:     time.Now,
	}
}

// Start registers the configured schedules and runs the worker until ctx ends.
// Empty specs disable the corresponding schedule.
func (s *Service) Start(ctx context.Context, schedules Schedules) error {
	if schedules.Calculation != "" {
		if _, err := s.cron.AddFunc(schedules.Calculation, func() { s.scheduleCalculation(ctx) }); err != nil {
			return fmt.Errorf("invalid calculation schedule %q: %w", schedules.Calculation, err)
		}
	}
	if schedules.StatusRefresh != "" {
		if _, err := s.cron.AddFunc(schedules.StatusRefresh, func() { s.scheduleStatusRefresh(ctx) }); err != nil {
			return fmt.Errorf("invalid status refresh schedule %q: %w", schedules.StatusRefresh, err)
		}
	}
	go s.worker(ctx)
	s.cron.Start()
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
	}()
	return nil
}

func (s *Service) Enqueue(jobType, tenantID string, run func(context.Context) (any, error)) bool {
	select {
	case s.queue <- job{Type: jobType, TenantID: tenantID, Run: run}:
		return true
	default:
		slog.Warn("job queue full", "jobType", jobType, "tenantId", tenantID)
		return false
	}
}

func (s *Service) RunNow(ctx context.Context, jobType, tenantID string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, TenantID: tenantID, Run: run})
}

// CalculateMonth runs a bulk calculation immediately and records the run.
func (s *Service) CalculateMonth(ctx context.Context, tenantID string, period benefits.Period) (benefits.BatchResult, error) {
	out, err := s.RunNow(ctx, JobCalculateMonth, tenantID, s.calculateJob(tenantID, period))
	result, _ := out.(benefits.BatchResult)
	return result, err
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "tenantId", j.TenantID, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID, err := s.runs.Start(ctx, j.TenantID, j.Type)
	if err != nil {
		slog.Warn("job run insert failed", "jobType", j.Type, "err", err)
	}

	details, err := j.Run(ctx)
	status := RunCompleted
	if err != nil {
		status = RunFailed
	}
	detailsJSON, marshalErr := json.Marshal(runDetails{Result: details, Error: errString(err)})
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if runID != "" {
		if updErr := s.runs.Finish(ctx, runID, status, detailsJSON); updErr != nil {
			slog.Warn("job run update failed", "runId", runID, "err", updErr)
		}
	}
	return details, err
}

type runDetails struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (s *Service) calculateJob(tenantID string, period benefits.Period) func(context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		return s.runner.CalculateMonth(ctx, tenantID, systemActor, int(period.Month), period.Year)
	}
}

func (s *Service) refreshJob(tenantID string, periods []benefits.Period) func(context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		var combined benefits.BatchResult
		for _, period := range periods {
			result, err := s.runner.RefreshProviderStatuses(ctx, tenantID, systemActor, int(period.Month), period.Year)
			if err != nil {
				return combined, err
			}
			combined.Records = append(combined.Records, result.Records...)
			combined.Skipped = append(combined.Skipped, result.Skipped...)
			combined.Processed += result.Processed
			combined.SkippedCount += result.SkippedCount
		}
		return combined, nil
	}
}

// scheduleCalculation enqueues the current month for every tenant.
func (s *Service) scheduleCalculation(ctx context.Context) {
	tenants, err := s.tenants(ctx)
	if err != nil {
		slog.Warn("calculation scheduler tenant lookup failed", "err", err)
		return
	}
	period := currentPeriod(s.now())
	for _, tenantID := range tenants {
		s.Enqueue(JobCalculateMonth, tenantID, s.calculateJob(tenantID, period))
	}
}

// scheduleStatusRefresh polls the provider for the current and previous month,
// since batches submitted at month end settle in the next one.
func (s *Service) scheduleStatusRefresh(ctx context.Context) {
	tenants, err := s.tenants(ctx)
	if err != nil {
		slog.Warn("status refresh scheduler tenant lookup failed", "err", err)
		return
	}
	current := currentPeriod(s.now())
	periods := []benefits.Period{previousPeriod(current), current}
	for _, tenantID := range tenants {
		s.Enqueue(JobStatusRefresh, tenantID, s.refreshJob(tenantID, periods))
	}
}

func currentPeriod(now time.Time) benefits.Period {
	now = now.UTC()
	return benefits.Period{Year: now.Year(), Month: now.Month()}
}

func previousPeriod(p benefits.Period) benefits.Period {
	if p.Month == 1 {
		return benefits.Period{Year: p.Year - 1, Month: 12}
	}
	return benefits.Period{Year: p.Year, Month: p.Month - 1}
}
