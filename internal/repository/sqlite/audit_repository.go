package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"go-auth-service/internal/model"
)

type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Log(ctx context.Context, entry model.AuditEntry) error {
	var details sql.NullString
	if entry.Details != nil {
		raw, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		details = sql.NullString{String: string(raw), Valid: true}
	}

	occurredAt, err := time.Parse(time.RFC3339Nano, entry.OccurredAt)
	if err != nil {
		occurredAt = time.Now()
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO audit_entries (id, action, occurred_at, actor_user_id, actor_email, actor_ip, status, details)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Action, formatTime(occurredAt),
		entry.Actor.UserID, entry.Actor.Email, entry.Actor.IP,
		entry.Status, details,
	)
	if err != nil {
		return storeErr("insert audit entry", err)
	}
	return nil
}

func (r *AuditRepository) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	query = query.Normalize()

	where := make([]string, 0)
	args := make([]any, 0)

	if action := strings.TrimSpace(query.Action); action != "" {
		where = append(where, "action = ? COLLATE NOCASE")
		args = append(args, action)
	}
	if actorID := strings.TrimSpace(query.ActorID); actorID != "" {
		where = append(where, "actor_user_id = ?")
		args = append(args, actorID)
	}
	if status := strings.TrimSpace(query.Status); status != "" {
		where = append(where, "status = ? COLLATE NOCASE")
		args = append(args, status)
	}
	if !query.From.IsZero() {
		where = append(where, "occurred_at >= ?")
		args = append(args, formatTime(query.From))
	}
	if !query.To.IsZero() {
		where = append(where, "occurred_at <= ?")
		args = append(args, formatTime(query.To))
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_entries "+whereClause, args...).Scan(&total); err != nil {
		return nil, model.Meta{}, storeErr("count audit entries", err)
	}
	meta := model.NewMeta(query.Page, query.Limit, total)

	rows, err := r.db.QueryContext(ctx, `
SELECT id, action, occurred_at, actor_user_id, actor_email, actor_ip, status, details
FROM audit_entries `+whereClause+`
ORDER BY occurred_at DESC
LIMIT ? OFFSET ?`,
		append(args, query.Limit, (query.Page-1)*query.Limit)...,
	)
	if err != nil {
		return nil, model.Meta{}, storeErr("query audit entries", err)
	}
	defer rows.Close()

	entries := make([]model.AuditEntry, 0)
	for rows.Next() {
		var e model.AuditEntry
		var occurredAt string
		var details sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &occurredAt, &e.Actor.UserID, &e.Actor.Email, &e.Actor.IP, &e.Status, &details); err != nil {
			return nil, model.Meta{}, storeErr("scan audit entry", err)
		}

		at, err := parseTime(occurredAt)
		if err != nil {
			return nil, model.Meta{}, err
		}
		e.OccurredAt = at.Format(time.RFC3339Nano)

		if details.Valid {
			var decoded any
			if jsonErr := json.Unmarshal([]byte(details.String), &decoded); jsonErr == nil {
				e.Details = decoded
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, model.Meta{}, storeErr("iterate audit entries", err)
	}

	return entries, meta, nil
}
