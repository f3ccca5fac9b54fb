//go:build integration

package integration

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-auth-service/internal/model"
	"go-auth-service/internal/security"
)

func TestAuthFlowOverPostgres(t *testing.T) {
	h := newHarness(t, false)

	resp, env := doJSON(t, http.MethodPost, h.server.URL+"/api/v1/auth/register", model.RegisterRequest{
		Email: "alice@example.com", Password: "correct-horse", Name: "Alice",
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	registered := decodePair(t, env)

	resp, env = doJSON(t, http.MethodPost, h.server.URL+"/api/v1/auth/login", model.LoginRequest{
		Email: "Alice@Example.com", Password: "correct-horse",
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pair := decodePair(t, env)
	assert.Equal(t, registered.User.ID, pair.User.ID)

	resp, _ = doJSON(t, http.MethodGet, h.server.URL+"/api/v1/auth/me", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env = doJSON(t, http.MethodPost, h.server.URL+"/api/v1/auth/refresh", model.RefreshRequest{RefreshToken: pair.RefreshToken}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated := decodePair(t, env)

	resp, _ = doJSON(t, http.MethodPost, h.server.URL+"/api/v1/auth/refresh", model.RefreshRequest{RefreshToken: pair.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, h.server.URL+"/api/v1/auth/logout", model.RefreshRequest{RefreshToken: rotated.RefreshToken}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodPost, h.server.URL+"/api/v1/auth/logout", model.RefreshRequest{RefreshToken: rotated.RefreshToken}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, h.server.URL+"/api/v1/auth/refresh", model.RefreshRequest{RefreshToken: rotated.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, h.server.URL+"/api/v1/auth/register", model.RegisterRequest{
		Email: "ALICE@example.com", Password: "another-password", Name: "Alice 2",
	}, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestStoredTokenIsHashed(t *testing.T) {
	h := newHarness(t, false)

	pair, err := h.auth.Login(context.Background(), adminEmail, adminPassword)
	require.NoError(t, err)

	var stored string
	err = h.db.Pool.QueryRow(context.Background(), `SELECT token_hash FROM refresh_tokens WHERE user_id = $1`, pair.User.ID).Scan(&stored)
	require.NoError(t, err)
	assert.Equal(t, security.HashToken(pair.RefreshToken), stored)
	assert.NotEqual(t, pair.RefreshToken, stored)
}

func TestConcurrentRefreshSingleWinnerOverPostgres(t *testing.T) {
	h := newHarness(t, false)

	pair, err := h.auth.Login(context.Background(), adminEmail, adminPassword)
	require.NoError(t, err)

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := h.auth.RefreshTokens(context.Background(), pair.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, model.ErrRefreshRejected):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, rejected)
}

func TestReuseCascadeOverPostgres(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	first, err := h.auth.Login(ctx, adminEmail, adminPassword)
	require.NoError(t, err)
	other, err := h.auth.Login(ctx, adminEmail, adminPassword)
	require.NoError(t, err)

	rotated, err := h.auth.RefreshTokens(ctx, first.RefreshToken)
	require.NoError(t, err)

	_, err = h.auth.RefreshTokens(ctx, first.RefreshToken)
	require.ErrorIs(t, err, model.ErrRefreshRejected)

	for _, raw := range []string{rotated.RefreshToken, other.RefreshToken} {
		_, err = h.auth.RefreshTokens(ctx, raw)
		assert.ErrorIs(t, err, model.ErrRefreshRejected)
	}
}

func TestTokenRepositoryPurgeOverPostgres(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	admin, err := h.users.FindByEmail(ctx, adminEmail)
	require.NoError(t, err)

	now := time.Now().UTC()
	expiredID, err := h.tokens.Create(ctx, admin.ID, "expired-hash", now.Add(-time.Minute))
	require.NoError(t, err)
	liveID, err := h.tokens.Create(ctx, admin.ID, "live-hash", now.Add(time.Hour))
	require.NoError(t, err)

	_, err = h.tokens.FindActiveByHash(ctx, "expired-hash")
	assert.ErrorIs(t, err, model.ErrTokenNotFound)

	purged, err := h.tokens.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	revoked, err := h.tokens.Revoke(ctx, expiredID)
	require.NoError(t, err)
	assert.False(t, revoked)

	revoked, err = h.tokens.Revoke(ctx, liveID)
	require.NoError(t, err)
	assert.True(t, revoked)
	revoked, err = h.tokens.Revoke(ctx, liveID)
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestUserRepositoryRejectsMalformedID(t *testing.T) {
	h := newHarness(t, false)

	_, err := h.users.FindByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, model.ErrUserNotFound)
}
