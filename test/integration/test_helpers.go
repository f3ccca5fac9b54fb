//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go-auth-service/internal/config"
	"go-auth-service/internal/database"
	"go-auth-service/internal/event"
	"go-auth-service/internal/handler"
	"go-auth-service/internal/middleware"
	"go-auth-service/internal/model"
	"go-auth-service/internal/repository"
	"go-auth-service/internal/router"
	"go-auth-service/internal/security"
	"go-auth-service/internal/service"
	"go-auth-service/internal/token"
)

const (
	testSecret    = "integration-secret-integration-secret"
	adminEmail    = "admin@example.com"
	adminPassword = "admin-password"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *model.APIError `json:"error"`
	Meta    *model.Meta     `json:"meta"`
}

type harness struct {
	server *httptest.Server
	db     *database.DB
	auth   *service.AuthService
	tokens *repository.TokenRepository
	users  *repository.UserRepository
}

// openDatabase migrates and empties the database named by TEST_DATABASE_URL.
func openDatabase(t *testing.T) *database.DB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, database.MigratePostgres(ctx, url))
	db, err := database.New(ctx, url, 10, 1)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	_, err = db.Pool.Exec(ctx, `TRUNCATE audit_entries, refresh_tokens, users CASCADE`)
	require.NoError(t, err)

	return db
}

func newHarness(t *testing.T, revokeAllOnReuse bool) harness {
	t.Helper()

	db := openDatabase(t)

	hasher, err := security.NewPasswordHasher(security.HasherConfig{BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	codec, err := token.NewCodec(token.CodecConfig{Secret: testSecret, Issuer: "integration"})
	require.NoError(t, err)

	users := repository.NewUserRepository(db.Pool)
	tokens := repository.NewTokenRepository(db.Pool)
	bus := event.NewBus()
	authService := service.NewAuthService(users, tokens, hasher, codec, bus, service.AuthConfig{
		AccessTTL:        15 * time.Minute,
		RefreshTTL:       24 * time.Hour,
		RevokeAllOnReuse: revokeAllOnReuse,
	})
	require.NoError(t, authService.EnsureBootstrapAdmin(context.Background(), adminEmail, adminPassword))

	auditService := service.NewAuditService(repository.NewAuditRepository(db.Pool))
	events, unsubscribe := bus.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	go auditService.Consume(ctx, events)
	t.Cleanup(func() {
		cancel()
		unsubscribe()
	})

	cfg := &config.Config{
		RequestTimeout:   10 * time.Second,
		CORSOrigins:      []string{"http://localhost:3000"},
		RateLimitRPM:     1000,
		AuthRateLimitRPM: 1000,
	}
	server := httptest.NewServer(router.New(cfg, middleware.NewAuthMiddleware(authService), router.Handlers{
		Auth:   handler.NewAuthHandler(authService, handler.CookieConfig{}),
		User:   handler.NewUserHandler(authService),
		Audit:  handler.NewAuditHandler(auditService),
		Health: handler.NewHealthHandler("integration", map[string]service.Pinger{"database": db}),
	}))
	t.Cleanup(server.Close)

	return harness{server: server, db: db, auth: authService, tokens: tokens, users: users}
}

func doJSON(t *testing.T, method string, url string, body any, accessToken string) (*http.Response, envelope) {
	t.Helper()

	payload := []byte{}
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = raw
	}

	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var parsed envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	return resp, parsed
}

func decodePair(t *testing.T, env envelope) model.TokenPair {
	t.Helper()

	var pair model.TokenPair
	require.NoError(t, json.Unmarshal(env.Data, &pair))
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	return pair
}
