package user

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/prasetya/receiptbot/internal/transport"
	"github.com/prasetya/receiptbot/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	Service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger.L()),
		Service:     service,
	}
}

// Pending lists users waiting for an admin decision.
func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	users, err := h.Service.PendingUsers(r.Context())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"pending": users})
}

// Approve authorizes a pending or denied user.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.Service.Approve)
}

// Deny locks a user out.
func (h *Handler) Deny(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.Service.Deny)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, action func(context.Context, int64) (*User, error)) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	u, err := action(r.Context(), userID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, u)
}
