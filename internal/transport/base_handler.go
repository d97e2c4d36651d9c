package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prasetya/receiptbot/internal"
	"github.com/prasetya/receiptbot/pkg/logger"
)

// BaseHandler provides common functionality for HTTP handlers
type BaseHandler struct {
	Logger *slog.Logger
}

func NewBaseHandler(lg *slog.Logger) *BaseHandler {
	if lg == nil {
		lg = logger.L()
	}
	return &BaseHandler{Logger: lg}
}

// WriteJSON writes a JSON response
func (h *BaseHandler) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Error("failed to encode JSON response", "error", err)
	}
}

// WriteError writes a plain error response
func (h *BaseHandler) WriteError(w http.ResponseWriter, status int, message string) {
	h.Logger.Error("http error", "status", status, "message", message)
	h.WriteJSON(w, status, map[string]interface{}{
		"code":    status,
		"message": message,
	})
}

// HandleServiceError maps a service error onto the taxonomy and renders it.
func (h *BaseHandler) HandleServiceError(w http.ResponseWriter, err error) {
	appErr := internal.AsAppError(err)
	h.Logger.Error("service error",
		"type", appErr.Type,
		"code", appErr.Code,
		"error", appErr.Error())
	h.WriteJSON(w, appErr.StatusCode, appErr)
}
