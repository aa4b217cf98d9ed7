package notifications

import (
	"encoding/json"
	"time"
)

type Notification struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenantId"`
	Type       string          `json:"type"`
	RecordID   string          `json:"recordId"`
	EmployeeID string          `json:"employeeId"`
	Title      string          `json:"title"`
	Body       string          `json:"body"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}
