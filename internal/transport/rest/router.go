package rest

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/prasetya/receiptbot/internal/receipt"
	"github.com/prasetya/receiptbot/internal/transport/middleware"
	"github.com/prasetya/receiptbot/internal/user"
	"github.com/prasetya/receiptbot/internal/workflow"
)

// RegisterAllRoutes wires the HTTP surface the chat frontend talks to.
// Admin routes require the caller to identify as the configured admin.
func RegisterAllRoutes(
	router *chi.Mux,
	db *sql.DB,
	workflowHandler *workflow.Handler,
	receiptHandler *receipt.Handler,
	userHandler *user.Handler,
	adminUserID int64,
	logger *slog.Logger,
) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.RequestID)
	router.Use(middleware.Logging)
	router.Use(middleware.RecoveryMiddleware(logger))

	router.Get("/ping", healthHandler.pingHandler)
	router.Get("/health", healthHandler.healthCheckHandler)

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/receipts", func(r chi.Router) {
			r.Post("/submit", workflowHandler.Submit)
			r.Post("/revise", workflowHandler.Revise)
			r.Post("/confirm", workflowHandler.Confirm)
			r.Post("/{id}/amend", workflowHandler.Amend)

			r.Get("/", receiptHandler.List)
			r.Get("/summary", receiptHandler.Summary)
			r.Get("/{id}", receiptHandler.Get)
			r.Delete("/{id}", receiptHandler.Delete)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(adminOnly(adminUserID))
			r.Get("/users/pending", userHandler.Pending)
			r.Post("/users/{id}/approve", userHandler.Approve)
			r.Post("/users/{id}/deny", userHandler.Deny)
		})
	})
}

// adminOnly gates admin routes on the relayed chat identity. The frontend is
// trusted to relay ids honestly; this keeps a misrouted user request from
// flipping authorization flags.
func adminOnly(adminUserID int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			callerID, err := strconv.ParseInt(r.Header.Get("X-Admin-ID"), 10, 64)
			if err != nil || callerID != adminUserID {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte(`{"code":403,"message":"admin access required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
