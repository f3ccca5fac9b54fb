package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"go-auth-service/internal/middleware"
	"go-auth-service/internal/model"
	"go-auth-service/internal/service"
	"go-auth-service/pkg/apierror"
)

type UserHandler struct {
	service *service.AuthService
}

func NewUserHandler(service *service.AuthService) *UserHandler {
	return &UserHandler{service: service}
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "id"))
	if userID == "" {
		writeError(w, apierror.New("BAD_REQUEST", "user id is required", "id", http.StatusBadRequest))
		return
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user.Public(), nil)
}

func (h *UserHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}

	userID := strings.TrimSpace(chi.URLParam(r, "id"))
	if userID == "" {
		writeError(w, apierror.New("BAD_REQUEST", "user id is required", "id", http.StatusBadRequest))
		return
	}

	var payload model.UpdateUserStatusRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if payload.IsActive == nil {
		writeError(w, apierror.New("VALIDATION_ERROR", "is_active is required", "is_active", http.StatusBadRequest))
		return
	}

	user, err := h.service.SetActive(r.Context(), claims.UserID, userID, *payload.IsActive)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user.Public(), nil)
}
