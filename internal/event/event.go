package event

import "context"

type Type string

const (
	TypeUserRegistered     Type = "user.registered"
	TypeUserLoggedIn       Type = "user.logged_in"
	TypeUserLoginFailed    Type = "user.login_failed"
	TypeTokenRefreshed     Type = "token.refreshed"
	TypeTokenReuseDetected Type = "token.reuse_detected"
	TypeUserLoggedOut      Type = "user.logged_out"
	TypeUserLoggedOutAll   Type = "user.logged_out_all"
	TypePasswordChanged    Type = "user.password_changed"
	TypeUserStatusChanged  Type = "user.status_changed"
)

// Failure reports whether the event records a rejected or suspicious action.
func (t Type) Failure() bool {
	return t == TypeUserLoginFailed || t == TypeTokenReuseDetected
}

type Event struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	Payload    map[string]any `json:"payload,omitempty"`
	Timestamp  string         `json:"timestamp"`
	ActorID    string         `json:"actor_id,omitempty"` // Who triggered the event
	ActorEmail string         `json:"actor_email,omitempty"`
	ClientIP   string         `json:"client_ip,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}

type clientIPKey struct{}

// WithClientIP attaches the caller address so events raised deeper in the call chain can
// carry it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}
