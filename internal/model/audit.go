package model

import "time"

type AuditActor struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	IP     string `json:"ip,omitempty"`
}

type AuditEntry struct {
	ID         string     `json:"id"`
	Action     string     `json:"action"`
	OccurredAt string     `json:"occurred_at"`
	Actor      AuditActor `json:"actor"`
	Status     string     `json:"status"`
	Details    any        `json:"details,omitempty"`
}

// AuditQuery filters the audit trail. Zero values disable a filter.
type AuditQuery struct {
	Action  string
	ActorID string
	Status  string
	From    time.Time
	To      time.Time
	Page    int
	Limit   int
}

// MaxAuditPage bounds the page number so the row offset cannot overflow.
const MaxAuditPage = 1_000_000

// Normalize clamps paging to the accepted range.
func (q AuditQuery) Normalize() AuditQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Page > MaxAuditPage {
		q.Page = MaxAuditPage
	}
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Limit > 200 {
		q.Limit = 200
	}
	return q
}

type AuditListData struct {
	Items []AuditEntry `json:"items"`
}
