package benefits

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps records and employees in process memory (tests and local dev).
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[string]Record
	byPeriod  map[periodKey]string
	employees map[employeeKey]Employee
}

type periodKey struct {
	TenantID   string
	EmployeeID string
	Month      string
}

type employeeKey struct {
	TenantID   string
	EmployeeID string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:   make(map[string]Record),
		byPeriod:  make(map[periodKey]string),
		employees: make(map[employeeKey]Employee),
	}
}

// PutEmployee inserts or replaces an employee read model.
func (m *MemoryStore) PutEmployee(emp Employee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[employeeKey{TenantID: emp.TenantID, EmployeeID: emp.ID}] = emp
}

func (m *MemoryStore) Record(_ context.Context, tenantID, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok || rec.TenantID != tenantID {
		return Record{}, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) RecordByEmployeeMonth(_ context.Context, tenantID, employeeID, month string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byPeriod[periodKey{TenantID: tenantID, EmployeeID: employeeID, Month: month}]
	if !ok {
		return Record{}, ErrNotFound
	}
	return m.records[id].Clone(), nil
}

func (m *MemoryStore) CreateRecord(_ context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := periodKey{TenantID: rec.TenantID, EmployeeID: rec.EmployeeID, Month: rec.Month}
	if _, ok := m.byPeriod[k]; ok {
		return Record{}, ErrRecordExists
	}
	rec.Version = 1
	m.records[rec.ID] = rec.Clone()
	m.byPeriod[k] = rec.ID
	return rec.Clone(), nil
}

func (m *MemoryStore) UpdateRecord(_ context.Context, rec Record, expectedVersion int) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.records[rec.ID]
	if !ok || current.TenantID != rec.TenantID {
		return Record{}, ErrNotFound
	}
	if current.Version != expectedVersion {
		return Record{}, ErrConcurrentModification
	}
	rec.Version = expectedVersion + 1
	m.records[rec.ID] = rec.Clone()
	return rec.Clone(), nil
}

func (m *MemoryStore) ListRecords(_ context.Context, tenantID string, filter RecordFilter) ([]Record, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []Record
	for _, rec := range m.records {
		if rec.TenantID != tenantID {
			continue
		}
		if filter.Month != "" && rec.Month != filter.Month {
			continue
		}
		if filter.Status != "" && rec.PaymentStatus != filter.Status {
			continue
		}
		if filter.EmployeeID != "" && rec.EmployeeID != filter.EmployeeID {
			continue
		}
		matched = append(matched, rec.Clone())
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Month != matched[j].Month {
			return matched[i].Month > matched[j].Month
		}
		if matched[i].EmployeeID != matched[j].EmployeeID {
			return matched[i].EmployeeID < matched[j].EmployeeID
		}
		return matched[i].ID < matched[j].ID
	})
	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []Record{}, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (m *MemoryStore) ListRecordsByReference(_ context.Context, tenantID, reference string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, rec := range m.records {
		if rec.TenantID == tenantID && rec.Disbursement.ProviderReference == reference {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) Employee(_ context.Context, tenantID, employeeID string) (Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	emp, ok := m.employees[employeeKey{TenantID: tenantID, EmployeeID: employeeID}]
	if !ok {
		return Employee{}, ErrEmployeeNotFound
	}
	return emp, nil
}

func (m *MemoryStore) ListEligibleEmployees(_ context.Context, tenantID string, filter EmployeeFilter) ([]Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	var out []Employee
	for k, emp := range m.employees {
		if k.TenantID != tenantID || !emp.Eligible(filter.Kind) {
			continue
		}
		if filter.Department != "" && !strings.EqualFold(emp.Department, filter.Department) {
			continue
		}
		if search != "" && !matchesSearch(emp, search) {
			continue
		}
		out = append(out, emp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) UpdateConfiguration(_ context.Context, tenantID, employeeID string, cfg Configuration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := employeeKey{TenantID: tenantID, EmployeeID: employeeID}
	emp, ok := m.employees[k]
	if !ok {
		return ErrEmployeeNotFound
	}
	emp.Benefits = cfg
	m.employees[k] = emp
	return nil
}

func matchesSearch(emp Employee, search string) bool {
	for _, field := range []string{emp.FirstName, emp.LastName, emp.Email} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}
