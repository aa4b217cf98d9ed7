package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"hrbenefits/internal/domain/benefits"
)

type Mailer interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

// Service stores a notification for every benefit event and mails HR
// recipients about disbursement outcomes.
type Service struct {
	store      StoreAPI
	Mailer     Mailer
	From       string
	Recipients []string
}

func New(store StoreAPI, mailer Mailer, from string, recipients []string) *Service {
	if from == "" {
		from = "no-reply@example.com"
	}
	return &Service{store: store, Mailer: mailer, From: from, Recipients: recipients}
}

func (s *Service) Notify(ctx context.Context, event benefits.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	title := titles[event.Type]
	if title == "" {
		title = event.Type
	}
	n := Notification{
		TenantID:   event.TenantID,
		Type:       event.Type,
		RecordID:   event.RecordID,
		EmployeeID: event.EmployeeID,
		Title:      title,
		Body:       body(event),
		Payload:    payload,
		CreatedAt:  event.OccurredAt,
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return err
	}

	if s.Mailer == nil || !emailed[event.Type] {
		return nil
	}
	for _, to := range s.Recipients {
		if err := s.Mailer.Send(ctx, s.From, to, title, n.Body); err != nil {
			slog.Warn("notification email send failed", "to", to, "type", event.Type, "err", err)
		}
	}
	return nil
}

func (s *Service) List(ctx context.Context, tenantID string, limit, offset int) ([]Notification, error) {
	return s.store.ListNotifications(ctx, tenantID, limit, offset)
}

func body(event benefits.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Employee %s, month %s: %s.\n", event.EmployeeID, event.Month, event.Amount.StringFixed(2))
	if event.Reference != "" {
		fmt.Fprintf(&b, "Provider reference: %s\n", event.Reference)
	}
	if event.Actor != "" {
		fmt.Fprintf(&b, "By: %s\n", event.Actor)
	}
	fmt.Fprintf(&b, "Record: %s\n", event.RecordID)
	return b.String()
}
