package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-auth-service/internal/model"
)

type AuditStore struct {
	mu      sync.RWMutex
	entries []model.AuditEntry
}

func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

func (s *AuditStore) Log(_ context.Context, entry model.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
	return nil
}

func (s *AuditStore) Query(_ context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	query = query.Normalize()

	action := strings.ToLower(strings.TrimSpace(query.Action))
	status := strings.ToLower(strings.TrimSpace(query.Status))
	actorID := strings.TrimSpace(query.ActorID)

	s.mu.RLock()
	items := make([]model.AuditEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		if action != "" && strings.ToLower(entry.Action) != action {
			continue
		}
		if status != "" && strings.ToLower(entry.Status) != status {
			continue
		}
		if actorID != "" && entry.Actor.UserID != actorID {
			continue
		}

		at, err := time.Parse(time.RFC3339Nano, entry.OccurredAt)
		if err != nil {
			continue
		}
		if !query.From.IsZero() && at.Before(query.From) {
			continue
		}
		if !query.To.IsZero() && at.After(query.To) {
			continue
		}

		items = append(items, entry)
	}
	s.mu.RUnlock()

	sort.SliceStable(items, func(i int, j int) bool {
		left, _ := time.Parse(time.RFC3339Nano, items[i].OccurredAt)
		right, _ := time.Parse(time.RFC3339Nano, items[j].OccurredAt)
		return left.After(right)
	})

	total := len(items)
	start := min((query.Page-1)*query.Limit, total)
	end := min(start+query.Limit, total)

	return items[start:end], model.NewMeta(query.Page, query.Limit, total), nil
}
