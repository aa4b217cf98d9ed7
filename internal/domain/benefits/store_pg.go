package benefits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"hrbenefits/internal/platform/querier"
)

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

const recordColumns = `id, tenant_id, employee_id, month, meal_voucher, transport_voucher, mobility,
       payment_status, disbursement, version, calculated_at, approved_at, COALESCE(approved_by, ''),
       paid_at, cancelled_at, COALESCE(cancelled_by, ''), COALESCE(cancel_reason, ''), created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var mealJSON, transportJSON, mobilityJSON, disbursementJSON []byte
	if err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.EmployeeID, &rec.Month,
		&mealJSON, &transportJSON, &mobilityJSON,
		&rec.PaymentStatus, &disbursementJSON, &rec.Version,
		&rec.CalculatedAt, &rec.ApprovedAt, &rec.ApprovedBy,
		&rec.PaidAt, &rec.CancelledAt, &rec.CancelledBy, &rec.CancelReason,
		&rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return Record{}, err
	}
	for _, part := range []struct {
		raw  []byte
		dest any
	}{
		{mealJSON, &rec.MealVoucher},
		{transportJSON, &rec.TransportVoucher},
		{mobilityJSON, &rec.Mobility},
		{disbursementJSON, &rec.Disbursement},
	} {
		if len(part.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(part.raw, part.dest); err != nil {
			return Record{}, fmt.Errorf("decode benefit record %s: %w", rec.ID, err)
		}
	}
	return rec, nil
}

func encodeRecord(rec Record) ([4][]byte, error) {
	var out [4][]byte
	for i, part := range []any{rec.MealVoucher, rec.TransportVoucher, rec.Mobility, rec.Disbursement} {
		payload, err := json.Marshal(part)
		if err != nil {
			return out, err
		}
		out[i] = payload
	}
	return out, nil
}

func (s *Store) Record(ctx context.Context, tenantID, id string) (Record, error) {
	rec, err := scanRecord(s.DB.QueryRow(ctx, `
    SELECT `+recordColumns+`
    FROM benefit_records
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

func (s *Store) RecordByEmployeeMonth(ctx context.Context, tenantID, employeeID, month string) (Record, error) {
	rec, err := scanRecord(s.DB.QueryRow(ctx, `
    SELECT `+recordColumns+`
    FROM benefit_records
    WHERE tenant_id = $1 AND employee_id = $2 AND month = $3
  `, tenantID, employeeID, month))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

func (s *Store) CreateRecord(ctx context.Context, rec Record) (Record, error) {
	parts, err := encodeRecord(rec)
	if err != nil {
		return Record{}, err
	}
	created, err := scanRecord(s.DB.QueryRow(ctx, `
    INSERT INTO benefit_records (id, tenant_id, employee_id, month, meal_voucher, transport_voucher, mobility,
                                 payment_status, disbursement, provider_reference, version, created_at, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10, ''),1,$11,$12)
    ON CONFLICT (tenant_id, employee_id, month) DO NOTHING
    RETURNING `+recordColumns,
		rec.ID, rec.TenantID, rec.EmployeeID, rec.Month, parts[0], parts[1], parts[2],
		rec.PaymentStatus, parts[3], rec.Disbursement.ProviderReference, rec.CreatedAt, rec.UpdatedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordExists
	}
	return created, err
}

func (s *Store) UpdateRecord(ctx context.Context, rec Record, expectedVersion int) (Record, error) {
	parts, err := encodeRecord(rec)
	if err != nil {
		return Record{}, err
	}
	updated, err := scanRecord(s.DB.QueryRow(ctx, `
    UPDATE benefit_records
    SET meal_voucher = $3, transport_voucher = $4, mobility = $5, payment_status = $6,
        disbursement = $7, provider_reference = NULLIF($8, ''), calculated_at = $9,
        approved_at = $10, approved_by = NULLIF($11, ''), paid_at = $12, cancelled_at = $13,
        cancelled_by = NULLIF($14, ''), cancel_reason = NULLIF($15, ''), updated_at = $16,
        version = version + 1
    WHERE tenant_id = $1 AND id = $2 AND version = $17
    RETURNING `+recordColumns,
		rec.TenantID, rec.ID, parts[0], parts[1], parts[2], rec.PaymentStatus,
		parts[3], rec.Disbursement.ProviderReference, rec.CalculatedAt,
		rec.ApprovedAt, rec.ApprovedBy, rec.PaidAt, rec.CancelledAt,
		rec.CancelledBy, rec.CancelReason, rec.UpdatedAt, expectedVersion))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, lookupErr := s.Record(ctx, rec.TenantID, rec.ID); errors.Is(lookupErr, ErrNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, ErrConcurrentModification
	}
	return updated, err
}

func (s *Store) ListRecords(ctx context.Context, tenantID string, filter RecordFilter) ([]Record, int, error) {
	where := []string{"tenant_id = $1"}
	args := []any{tenantID}
	if filter.Month != "" {
		args = append(args, filter.Month)
		where = append(where, fmt.Sprintf("month = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("payment_status = $%d", len(args)))
	}
	if filter.EmployeeID != "" {
		args = append(args, filter.EmployeeID)
		where = append(where, fmt.Sprintf("employee_id = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM benefit_records WHERE "+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + recordColumns + " FROM benefit_records WHERE " + clause + " ORDER BY month DESC, employee_id, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

func (s *Store) ListRecordsByReference(ctx context.Context, tenantID, reference string) ([]Record, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+recordColumns+`
    FROM benefit_records
    WHERE tenant_id = $1 AND provider_reference = $2
    ORDER BY id
  `, tenantID, reference)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const employeeColumns = `e.id, e.tenant_id, e.first_name, e.last_name, e.email, COALESCE(e.department, ''), e.status,
       COALESCE(c.config, '{}'::jsonb)`

func scanEmployee(row rowScanner) (Employee, error) {
	var emp Employee
	var configJSON []byte
	if err := row.Scan(&emp.ID, &emp.TenantID, &emp.FirstName, &emp.LastName, &emp.Email, &emp.Department, &emp.Status, &configJSON); err != nil {
		return Employee{}, err
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &emp.Benefits); err != nil {
			return Employee{}, fmt.Errorf("decode benefit config of %s: %w", emp.ID, err)
		}
	}
	return emp, nil
}

func (s *Store) Employee(ctx context.Context, tenantID, employeeID string) (Employee, error) {
	emp, err := scanEmployee(s.DB.QueryRow(ctx, `
    SELECT `+employeeColumns+`
    FROM employees e
    LEFT JOIN employee_benefit_configs c ON c.tenant_id = e.tenant_id AND c.employee_id = e.id
    WHERE e.tenant_id = $1 AND e.id = $2
  `, tenantID, employeeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Employee{}, ErrEmployeeNotFound
	}
	return emp, err
}

func (s *Store) ListEligibleEmployees(ctx context.Context, tenantID string, filter EmployeeFilter) ([]Employee, error) {
	query := `
    SELECT ` + employeeColumns + `
    FROM employees e
    JOIN employee_benefit_configs c ON c.tenant_id = e.tenant_id AND c.employee_id = e.id
    WHERE e.tenant_id = $1 AND e.status = $2`
	args := []any{tenantID, EmployeeStatusActive}
	if filter.Department != "" {
		args = append(args, filter.Department)
		query += fmt.Sprintf(" AND lower(e.department) = lower($%d)", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		query += fmt.Sprintf(" AND (lower(e.first_name) LIKE $%[1]d OR lower(e.last_name) LIKE $%[1]d OR lower(e.email) LIKE $%[1]d)", len(args))
	}
	query += " ORDER BY e.last_name, e.id"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		if emp.Eligible(filter.Kind) {
			out = append(out, emp)
		}
	}
	return out, rows.Err()
}

func (s *Store) UpdateConfiguration(ctx context.Context, tenantID, employeeID string, cfg Configuration) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	tag, err := s.DB.Exec(ctx, `
    INSERT INTO employee_benefit_configs (tenant_id, employee_id, config)
    SELECT e.tenant_id, e.id, $3
    FROM employees e
    WHERE e.tenant_id = $1 AND e.id = $2
    ON CONFLICT (tenant_id, employee_id) DO UPDATE
      SET config = EXCLUDED.config,
          updated_at = now()
  `, tenantID, employeeID, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEmployeeNotFound
	}
	return nil
}
