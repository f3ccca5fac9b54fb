package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-auth-service/internal/event"
	"go-auth-service/internal/model"
	"go-auth-service/internal/repository/memory"
	"go-auth-service/pkg/apierror"
)

func TestAuditService_ConsumePersistsEvents(t *testing.T) {
	t.Parallel()

	store := memory.NewAuditStore()
	audit := NewAuditService(store)
	bus := event.NewBus()
	events, unsubscribe := bus.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		audit.Consume(ctx, events)
		close(done)
	}()

	bus.Publish(event.Event{
		Type:       event.TypeUserLoginFailed,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		ActorEmail: "alice@example.com",
		ClientIP:   "198.51.100.4",
		Payload:    map[string]any{"reason": "wrong_password"},
	})
	bus.Publish(event.Event{Type: event.TypeUserLoggedIn, ActorID: "u1"})

	require.Eventually(t, func() bool {
		_, meta, err := audit.Query(context.Background(), model.AuditQuery{})
		return err == nil && meta.Total == 2
	}, 2*time.Second, 10*time.Millisecond)

	items, _, err := audit.Query(context.Background(), model.AuditQuery{Status: "failure"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "user.login_failed", items[0].Action)
	assert.Equal(t, "198.51.100.4", items[0].Actor.IP)
	assert.Equal(t, "alice@example.com", items[0].Actor.Email)

	unsubscribe()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop after the channel closed")
	}
}

func TestAuditService_QueryValidatesRange(t *testing.T) {
	t.Parallel()

	audit := NewAuditService(memory.NewAuditStore())
	now := time.Now()

	_, _, err := audit.Query(context.Background(), model.AuditQuery{From: now, To: now.Add(-time.Hour)})
	var apiErr *apierror.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "BAD_REQUEST", apiErr.Code)
}

func TestEntryFromEvent(t *testing.T) {
	t.Parallel()

	entry := EntryFromEvent(event.Event{ID: "e1", Type: event.TypeTokenReuseDetected, ActorID: "u1"})
	assert.Equal(t, "e1", entry.ID)
	assert.Equal(t, "failure", entry.Status)
	assert.NotEmpty(t, entry.OccurredAt)
	assert.Nil(t, entry.Details)
}

func TestParseAuditTime(t *testing.T) {
	t.Parallel()

	zero, err := ParseAuditTime(" ")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	parsed, err := ParseAuditTime("2026-01-02T03:04:05+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 2, 1, 4, 5, 0, time.UTC), parsed)

	_, err = ParseAuditTime("yesterday")
	assert.Error(t, err)
}
