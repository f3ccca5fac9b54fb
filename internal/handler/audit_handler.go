package handler

import (
	"net/http"
	"strings"

	"go-auth-service/internal/model"
	"go-auth-service/internal/service"
	"go-auth-service/pkg/apierror"
)

type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(service *service.AuditService) *AuditHandler {
	return &AuditHandler{service: service}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	from, err := service.ParseAuditTime(query.Get("from"))
	if err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid 'from' timestamp", "from must be RFC 3339", http.StatusBadRequest))
		return
	}
	to, err := service.ParseAuditTime(query.Get("to"))
	if err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid 'to' timestamp", "to must be RFC 3339", http.StatusBadRequest))
		return
	}

	items, meta, err := h.service.Query(r.Context(), model.AuditQuery{
		Action:  strings.TrimSpace(query.Get("action")),
		ActorID: strings.TrimSpace(query.Get("actor_id")),
		Status:  strings.TrimSpace(query.Get("status")),
		From:    from,
		To:      to,
		Page:    parseIntOrDefault(query.Get("page"), 1),
		Limit:   parseIntOrDefault(query.Get("limit"), 50),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.AuditListData{Items: items}, &meta)
}
