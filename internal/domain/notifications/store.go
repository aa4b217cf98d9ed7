package notifications

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"hrbenefits/internal/platform/querier"
)

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

func (s *Store) CreateNotification(ctx context.Context, n Notification) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO notifications (tenant_id, type, record_id, employee_id, title, body, payload)
    VALUES ($1,$2,$3,$4,$5,$6,$7)
  `, n.TenantID, n.Type, n.RecordID, n.EmployeeID, n.Title, n.Body, []byte(n.Payload))
	return err
}

func (s *Store) ListNotifications(ctx context.Context, tenantID string, limit, offset int) ([]Notification, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, tenant_id, type, COALESCE(record_id, ''), COALESCE(employee_id, ''), title, body, payload, created_at
    FROM notifications
    WHERE tenant_id = $1
    ORDER BY created_at DESC
    LIMIT $2 OFFSET $3
  `, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		var payload []byte
		if err := rows.Scan(&n.ID, &n.TenantID, &n.Type, &n.RecordID, &n.EmployeeID, &n.Title, &n.Body, &payload, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Payload = payload
		out = append(out, n)
	}
	return out, rows.Err()
}

// MemoryStore backs the memory storage driver.
type MemoryStore struct {
	mu    sync.Mutex
	items []Notification
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) CreateNotification(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	m.items = append(m.items, n)
	return nil
}

func (m *MemoryStore) ListNotifications(_ context.Context, tenantID string, limit, offset int) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Notification
	for _, n := range m.items {
		if n.TenantID == tenantID {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
