package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go-auth-service/internal/middleware"
	"go-auth-service/internal/model"
	"go-auth-service/internal/service"
	"go-auth-service/pkg/apierror"
)

// CookieConfig controls the attributes of the session cookies. HttpOnly and
// Path=/ are always set.
type CookieConfig struct {
	Secure   bool
	Domain   string
	SameSite http.SameSite
}

type AuthHandler struct {
	service *service.AuthService
	cookies CookieConfig
}

func NewAuthHandler(service *service.AuthService, cookies CookieConfig) *AuthHandler {
	if cookies.SameSite == 0 {
		cookies.SameSite = http.SameSiteLaxMode
	}
	return &AuthHandler{service: service, cookies: cookies}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.RegisterRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.service.Register(r.Context(), payload.Email, payload.Password, payload.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	pair, err := h.service.IssueTokenPair(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSessionCookies(w, pair)
	writeSuccess(w, http.StatusCreated, pair, nil)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.LoginRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	if strings.TrimSpace(payload.Email) == "" || payload.Password == "" {
		writeError(w, apierror.New("VALIDATION_ERROR", "email and password are required", "", http.StatusBadRequest))
		return
	}

	pair, err := h.service.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSessionCookies(w, pair)
	writeSuccess(w, http.StatusOK, pair, nil)
}

// Refresh takes the refresh token from its cookie, or from the JSON body for
// clients that do not keep cookies.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	raw, err := refreshTokenFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if raw == "" {
		writeError(w, apierror.New("BAD_REQUEST", "refresh_token is required", "refresh_token", http.StatusBadRequest))
		return
	}

	pair, err := h.service.RefreshTokens(r.Context(), raw)
	if err != nil {
		if errors.Is(err, model.ErrRefreshRejected) {
			h.clearSessionCookies(w)
		}
		writeError(w, err)
		return
	}

	h.setSessionCookies(w, pair)
	writeSuccess(w, http.StatusOK, pair, nil)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	raw, err := refreshTokenFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	h.clearSessionCookies(w)
	if err := h.service.Logout(r.Context(), raw); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"logged_out": true}, nil)
}

func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}

	revoked, err := h.service.LogoutAll(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.clearSessionCookies(w)
	writeSuccess(w, http.StatusOK, map[string]any{"revoked_sessions": revoked}, nil)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}

	user, err := h.service.GetUser(r.Context(), claims.UserID)
	if errors.Is(err, model.ErrUserNotFound) {
		writeError(w, model.ErrUnauthorized)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user.Public(), nil)
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}

	var payload model.ChangePasswordRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	if err := h.service.ChangePassword(r.Context(), claims.UserID, payload.CurrentPassword, payload.NewPassword); err != nil {
		writeError(w, err)
		return
	}

	h.clearSessionCookies(w)
	writeSuccess(w, http.StatusOK, map[string]any{"password_changed": true}, nil)
}

func (h *AuthHandler) setSessionCookies(w http.ResponseWriter, pair model.TokenPair) {
	http.SetCookie(w, h.cookie(model.AccessTokenCookie, pair.AccessToken, int(pair.ExpiresIn)))
	http.SetCookie(w, h.cookie(model.RefreshTokenCookie, pair.RefreshToken, int(pair.RefreshExpiresIn)))
}

func (h *AuthHandler) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{model.AccessTokenCookie, model.RefreshTokenCookie} {
		cookie := h.cookie(name, "", -1)
		cookie.Expires = time.Unix(0, 0)
		http.SetCookie(w, cookie)
	}
}

func (h *AuthHandler) cookie(name string, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.cookies.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: h.cookies.SameSite,
	}
}

// refreshTokenFromRequest prefers the cookie. The JSON body is optional.
func refreshTokenFromRequest(r *http.Request) (string, error) {
	if cookie, err := r.Cookie(model.RefreshTokenCookie); err == nil {
		if value := strings.TrimSpace(cookie.Value); value != "" {
			return value, nil
		}
	}

	var payload model.RefreshRequest
	if err := decodeOptionalJSON(r, &payload); err != nil {
		return "", err
	}
	return strings.TrimSpace(payload.RefreshToken), nil
}

// ParseSameSite maps a config value to a cookie SameSite mode. Unknown values
// fall back to Lax.
func ParseSameSite(raw string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
