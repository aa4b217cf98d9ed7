package benefits

import "context"

type RecordStore interface {
	Record(ctx context.Context, tenantID, id string) (Record, error)
	RecordByEmployeeMonth(ctx context.Context, tenantID, employeeID, month string) (Record, error)
	// CreateRecord returns ErrRecordExists when the (employee, month) pair is taken.
	CreateRecord(ctx context.Context, rec Record) (Record, error)
	// UpdateRecord writes rec only if the stored version still equals expectedVersion,
	// otherwise it returns ErrConcurrentModification.
	UpdateRecord(ctx context.Context, rec Record, expectedVersion int) (Record, error)
	ListRecords(ctx context.Context, tenantID string, filter RecordFilter) ([]Record, int, error)
	ListRecordsByReference(ctx context.Context, tenantID, reference string) ([]Record, error)
}

type EmployeeStore interface {
	Employee(ctx context.Context, tenantID, employeeID string) (Employee, error)
	ListEligibleEmployees(ctx context.Context, tenantID string, filter EmployeeFilter) ([]Employee, error)
	UpdateConfiguration(ctx context.Context, tenantID, employeeID string, cfg Configuration) error
}

type StoreAPI interface {
	RecordStore
	EmployeeStore
}
