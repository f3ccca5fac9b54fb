package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"go-auth-service/internal/event"
	"go-auth-service/internal/model"
	"go-auth-service/internal/security"
	"go-auth-service/internal/util"
	"go-auth-service/pkg/apierror"
)

const (
	DefaultAccessTTL  = 30 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour

	minPasswordLength = 8
	maxPasswordLength = 72
)

type AuthConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// RevokeAllOnReuse revokes every refresh grant of a subject when one of its
	// already-used refresh tokens is presented again.
	RevokeAllOnReuse bool
	Now              func() time.Time
}

type AuthService struct {
	users  UserStore
	tokens RefreshTokenStore
	hasher PasswordHasher
	codec  TokenCodec
	bus    event.Bus
	cfg    AuthConfig
	now    func() time.Time
}

func NewAuthService(users UserStore, tokens RefreshTokenStore, hasher PasswordHasher, codec TokenCodec, bus event.Bus, cfg AuthConfig) *AuthService {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &AuthService{
		users:  users,
		tokens: tokens,
		hasher: hasher,
		codec:  codec,
		bus:    bus,
		cfg:    cfg,
		now:    now,
	}
}

func (s *AuthService) Register(ctx context.Context, email string, password string, name string) (model.User, error) {
	email = normalizeEmail(email)

	if err := validateEmail(email); err != nil {
		return model.User{}, err
	}
	name, err := util.SanitizeDisplayName(name)
	if err != nil {
		return model.User{}, err
	}
	if err := validatePassword(password); err != nil {
		return model.User{}, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         model.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return model.User{}, err
	}

	slog.Info("user registered", "user_id", user.ID)
	s.publish(ctx, event.TypeUserRegistered, user.ID, user.Email, nil)
	return user, nil
}

// Authenticate returns model.ErrInvalidCredentials for an unknown email, a wrong
// password and an inactive account alike. The hasher runs in every case.
func (s *AuthService) Authenticate(ctx context.Context, email string, password string) (model.AuthResult, error) {
	email = normalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		s.hasher.Verify(password, s.hasher.DummyHash())
		return model.AuthResult{Reason: "unknown_email"}, model.ErrInvalidCredentials
	}
	if err != nil {
		return model.AuthResult{}, err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return model.AuthResult{User: user, Reason: "wrong_password"}, model.ErrInvalidCredentials
	}
	if !user.IsActive {
		return model.AuthResult{User: user, Reason: "inactive"}, model.ErrInvalidCredentials
	}

	return model.AuthResult{Success: true, User: user}, nil
}

func (s *AuthService) IssueTokenPair(ctx context.Context, user model.User) (model.TokenPair, error) {
	access, accessExpiresAt, err := s.codec.Issue(user.ID, user.Role, model.TokenKindAccess, s.cfg.AccessTTL)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}

	refresh, refreshExpiresAt, err := s.codec.Issue(user.ID, user.Role, model.TokenKindRefresh, s.cfg.RefreshTTL)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}

	if _, err := s.tokens.Create(ctx, user.ID, security.HashToken(refresh), refreshExpiresAt); err != nil {
		return model.TokenPair{}, fmt.Errorf("persist refresh token: %w", err)
	}

	return model.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		ExpiresIn:        int64(s.cfg.AccessTTL.Seconds()),
		RefreshExpiresIn: int64(s.cfg.RefreshTTL.Seconds()),
		AccessExpiresAt:  accessExpiresAt,
		RefreshExpiresAt: refreshExpiresAt,
		User:             user.Public(),
	}, nil
}

func (s *AuthService) Login(ctx context.Context, email string, password string) (model.TokenPair, error) {
	result, err := s.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, model.ErrInvalidCredentials) {
			slog.Info("login rejected", "reason", result.Reason)
			s.publish(ctx, event.TypeUserLoginFailed, result.User.ID, normalizeEmail(email), map[string]any{"reason": result.Reason})
		}
		return model.TokenPair{}, err
	}

	pair, err := s.IssueTokenPair(ctx, result.User)
	if err != nil {
		return model.TokenPair{}, err
	}

	s.publish(ctx, event.TypeUserLoggedIn, result.User.ID, result.User.Email, nil)
	return pair, nil
}

// RefreshTokens exchanges a refresh token for a new pair and revokes the presented
// one. Every rejection is reported as model.ErrRefreshRejected; store outages are
// returned as they are.
func (s *AuthService) RefreshTokens(ctx context.Context, raw string) (model.TokenPair, error) {
	claims, err := s.codec.Verify(raw, model.TokenKindRefresh)
	if err != nil {
		logTokenFailure("refresh token rejected", err)
		return model.TokenPair{}, model.ErrRefreshRejected
	}

	record, err := s.tokens.FindActiveByHash(ctx, security.HashToken(raw))
	if errors.Is(err, model.ErrTokenNotFound) {
		s.handleReuse(ctx, claims)
		return model.TokenPair{}, model.ErrRefreshRejected
	}
	if err != nil {
		return model.TokenPair{}, err
	}
	if record.UserID != claims.UserID {
		slog.Warn("refresh token subject mismatch", "record_id", record.ID, "subject", claims.UserID)
		return model.TokenPair{}, model.ErrRefreshRejected
	}

	revoked, err := s.tokens.Revoke(ctx, record.ID)
	if err != nil {
		return model.TokenPair{}, err
	}
	if !revoked {
		slog.Info("refresh token lost rotation race", "record_id", record.ID, "user_id", record.UserID)
		return model.TokenPair{}, model.ErrRefreshRejected
	}

	user, err := s.users.FindByID(ctx, record.UserID)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.TokenPair{}, model.ErrRefreshRejected
	}
	if err != nil {
		return model.TokenPair{}, err
	}
	if !user.IsActive {
		slog.Info("refresh rejected for inactive user", "user_id", user.ID)
		return model.TokenPair{}, model.ErrRefreshRejected
	}

	pair, err := s.IssueTokenPair(ctx, user)
	if err != nil {
		return model.TokenPair{}, err
	}

	s.publish(ctx, event.TypeTokenRefreshed, user.ID, user.Email, map[string]any{"previous_token_id": record.ID})
	return pair, nil
}

// Logout revokes the grant behind raw. Unknown, invalid or already revoked tokens
// succeed without effect.
func (s *AuthService) Logout(ctx context.Context, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	claims, err := s.codec.Verify(raw, model.TokenKindRefresh)
	if err != nil {
		logTokenFailure("logout with unusable refresh token", err)
		return nil
	}

	record, err := s.tokens.FindActiveByHash(ctx, security.HashToken(raw))
	if errors.Is(err, model.ErrTokenNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	revoked, err := s.tokens.Revoke(ctx, record.ID)
	if err != nil {
		return err
	}
	if revoked {
		s.publish(ctx, event.TypeUserLoggedOut, claims.UserID, "", nil)
	}
	return nil
}

func (s *AuthService) LogoutAll(ctx context.Context, userID string) (int64, error) {
	count, err := s.tokens.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	slog.Info("all sessions revoked", "user_id", userID, "count", count)
	s.publish(ctx, event.TypeUserLoggedOutAll, userID, "", map[string]any{"revoked": count})
	return count, nil
}

// VerifyAccess gates protected routes. The specific codec failure is logged and
// collapsed to model.ErrUnauthorized.
func (s *AuthService) VerifyAccess(raw string) (model.AuthClaims, error) {
	claims, err := s.codec.Verify(raw, model.TokenKindAccess)
	if err != nil {
		logTokenFailure("access token rejected", err)
		return model.AuthClaims{}, model.ErrUnauthorized
	}
	return claims, nil
}

func (s *AuthService) GetUser(ctx context.Context, id string) (model.User, error) {
	return s.users.FindByID(ctx, strings.TrimSpace(id))
}

// ChangePassword also revokes every refresh grant of the user.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, current string, next string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	if !s.hasher.Verify(current, user.PasswordHash) {
		return model.ErrInvalidCredentials
	}
	if err := validatePassword(next); err != nil {
		return err
	}
	if current == next {
		return apierror.New("VALIDATION_ERROR", "new password must differ from the current one", "", http.StatusBadRequest)
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash, s.now().UTC()); err != nil {
		return err
	}

	if _, err := s.tokens.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}

	s.publish(ctx, event.TypePasswordChanged, user.ID, user.Email, nil)
	return nil
}

// SetActive soft-disables or re-enables an account. Deactivation revokes every
// refresh grant; access tokens already issued stay valid until they expire.
func (s *AuthService) SetActive(ctx context.Context, actorID string, userID string, active bool) (model.User, error) {
	if actorID == userID && !active {
		return model.User{}, apierror.New("VALIDATION_ERROR", "administrators cannot deactivate themselves", "", http.StatusBadRequest)
	}

	if err := s.users.SetActive(ctx, userID, active, s.now().UTC()); err != nil {
		return model.User{}, err
	}

	if !active {
		if _, err := s.tokens.RevokeAllForUser(ctx, userID); err != nil {
			return model.User{}, err
		}
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return model.User{}, err
	}

	s.publish(ctx, event.TypeUserStatusChanged, actorID, "", map[string]any{"user_id": userID, "is_active": active})
	return user, nil
}

func (s *AuthService) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	return s.tokens.PurgeExpired(ctx, s.now().UTC())
}

// StartCleanupTicker runs PurgeExpiredTokens on a regular interval until ctx is cancelled.
func (s *AuthService) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := s.PurgeExpiredTokens(ctx)
			if err != nil {
				slog.Error("refresh token cleanup failed", "error", err)
				continue
			}
			if purged > 0 {
				slog.Info("expired refresh tokens purged", "count", purged)
			}
		}
	}
}

// EnsureBootstrapAdmin creates the configured administrator when no account with
// that email exists yet.
func (s *AuthService) EnsureBootstrapAdmin(ctx context.Context, email string, password string) error {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}

	_, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, model.ErrUserNotFound) {
		return err
	}

	if err := validateEmail(email); err != nil {
		return err
	}
	if err := validatePassword(password); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	admin := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         "Administrator",
		PasswordHash: hash,
		Role:         model.RoleAdmin,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		if errors.Is(err, model.ErrUserAlreadyExists) {
			// another instance created it between the lookup and the insert
			return nil
		}
		return err
	}

	slog.Info("bootstrap administrator created", "email", email)
	return nil
}

func (s *AuthService) handleReuse(ctx context.Context, claims model.AuthClaims) {
	slog.Warn("refresh token replayed or unknown", "user_id", claims.UserID, "token_id", claims.TokenID)

	payload := map[string]any{"token_id": claims.TokenID, "cascade": s.cfg.RevokeAllOnReuse}
	if s.cfg.RevokeAllOnReuse {
		count, err := s.tokens.RevokeAllForUser(ctx, claims.UserID)
		if err != nil {
			slog.Error("reuse cascade revoke failed", "user_id", claims.UserID, "error", err)
		} else {
			payload["revoked"] = count
		}
	}

	s.publish(ctx, event.TypeTokenReuseDetected, claims.UserID, "", payload)
}

func (s *AuthService) publish(ctx context.Context, typ event.Type, actorID string, actorEmail string, payload map[string]any) {
	if s.bus == nil {
		return
	}

	s.bus.Publish(event.Event{
		ID:         uuid.NewString(),
		Type:       typ,
		Payload:    payload,
		Timestamp:  s.now().UTC().Format(time.RFC3339Nano),
		ActorID:    actorID,
		ActorEmail: actorEmail,
		ClientIP:   event.ClientIPFromContext(ctx),
	})
}

func logTokenFailure(msg string, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidSignature):
		slog.Warn(msg, "kind", "invalid_signature", "possible_tampering", true, "error", err)
	case errors.Is(err, model.ErrExpiredToken):
		slog.Debug(msg, "kind", "expired")
	case errors.Is(err, model.ErrWrongKind):
		slog.Info(msg, "kind", "wrong_kind", "error", err)
	default:
		slog.Info(msg, "kind", "malformed", "error", err)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	at := strings.Index(email, "@")
	if email == "" || at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t\r\n") {
		return apierror.New("VALIDATION_ERROR", "a valid email is required", email, http.StatusBadRequest)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apierror.New("VALIDATION_ERROR", fmt.Sprintf("password must be at least %d characters", minPasswordLength), "", http.StatusBadRequest)
	}
	if len(password) > maxPasswordLength {
		return apierror.New("VALIDATION_ERROR", fmt.Sprintf("password must be at most %d bytes", maxPasswordLength), "", http.StatusBadRequest)
	}
	return nil
}
