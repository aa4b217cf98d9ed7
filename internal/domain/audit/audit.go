package audit

import (
	"context"
	"encoding/json"
	"time"

	"hrbenefits/internal/requestctx"
)

type Event struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"-"`
	ActorID    string          `json:"actorId"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	RequestID  string          `json:"requestId"`
	IP         string          `json:"ip"`
	CreatedAt  time.Time       `json:"createdAt"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
}

type Filter struct {
	Action     string
	EntityType string
	EntityID   string
}

type StoreAPI interface {
	Insert(ctx context.Context, evt Event) error
	List(ctx context.Context, tenantID string, filter Filter, limit, offset int) ([]Event, error)
}

// Service records before/after snapshots of benefit mutations together with
// the request id and client ip carried on the context.
type Service struct {
	store StoreAPI
	now   func() time.Time
}

func New(store StoreAPI) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) Record(ctx context.Context, tenantID, actorID, action, entityType, entityID string, before, after any) error {
	beforeJSON, err := marshalSnapshot(before)
	if err != nil {
		return err
	}
	afterJSON, err := marshalSnapshot(after)
	if err != nil {
		return err
	}
	return s.store.Insert(ctx, Event{
		TenantID:   tenantID,
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		RequestID:  requestctx.GetRequestID(ctx),
		IP:         requestctx.GetClientIP(ctx),
		CreatedAt:  s.now().UTC(),
		Before:     beforeJSON,
		After:      afterJSON,
	})
}

func (s *Service) List(ctx context.Context, tenantID string, filter Filter, limit, offset int) ([]Event, error) {
	return s.store.List(ctx, tenantID, filter, limit, offset)
}

func marshalSnapshot(value any) (json.RawMessage, error) {
	if value == nil {
		return nil, nil
	}
	return json.Marshal(value)
}
