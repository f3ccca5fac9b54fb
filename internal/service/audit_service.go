package service

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go-auth-service/internal/event"
	"go-auth-service/internal/model"
	"go-auth-service/pkg/apierror"
)

const auditWriteTimeout = 5 * time.Second

type AuditService struct {
	store AuditStore
}

func NewAuditService(store AuditStore) *AuditService {
	return &AuditService{store: store}
}

// Consume persists every event from the bus until ctx is cancelled or the channel
// is closed. Write failures are logged and do not stop the loop.
func (s *AuditService) Consume(ctx context.Context, events <-chan event.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			s.record(e)
		}
	}
}

func (s *AuditService) record(e event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()

	if err := s.store.Log(ctx, EntryFromEvent(e)); err != nil {
		slog.Error("audit write failed", "event_id", e.ID, "type", e.Type, "error", err)
	}
}

func EntryFromEvent(e event.Event) model.AuditEntry {
	status := "success"
	if e.Type.Failure() {
		status = "failure"
	}

	occurredAt := e.Timestamp
	if occurredAt == "" {
		occurredAt = time.Now().UTC().Format(time.RFC3339Nano)
	}

	entry := model.AuditEntry{
		ID:         e.ID,
		Action:     string(e.Type),
		OccurredAt: occurredAt,
		Actor: model.AuditActor{
			UserID: e.ActorID,
			Email:  e.ActorEmail,
			IP:     e.ClientIP,
		},
		Status: status,
	}
	if len(e.Payload) > 0 {
		entry.Details = e.Payload
	}
	return entry
}

func (s *AuditService) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	if !query.From.IsZero() && !query.To.IsZero() && query.To.Before(query.From) {
		return nil, model.Meta{}, apierror.New("BAD_REQUEST", "'to' must not be before 'from'", "", http.StatusBadRequest)
	}
	query.Action = strings.TrimSpace(query.Action)
	query.ActorID = strings.TrimSpace(query.ActorID)
	query.Status = strings.TrimSpace(query.Status)

	return s.store.Query(ctx, query.Normalize())
}

// ParseAuditTime accepts RFC 3339 with or without fractional seconds. Empty input
// yields the zero time.
func ParseAuditTime(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, nil
	}

	if value, err := time.Parse(time.RFC3339Nano, trimmed); err == nil {
		return value.UTC(), nil
	}

	value, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, err
	}
	return value.UTC(), nil
}
