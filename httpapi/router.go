package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tutorflow/auth"
)

// NewRouter wires every route. Internal webhook routes are for the payment
// and scheduling collaborators and sit behind the same bearer auth.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeSuccess(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", h.register)
		r.Post("/auth/login", h.login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware)

			r.Post("/requests", h.createRequest)
			r.Get("/requests", h.listRequests)
			r.Get("/requests/{request_id}", h.getRequest)

			r.Post("/commitments", h.createCommitment)
			r.Get("/commitments/{commitment_id}", h.getCommitment)
			r.Post("/commitments/{commitment_id}/reject", h.rejectCommitment)
			r.Post("/commitments/{commitment_id}/cancellation", h.requestCancellation)
			r.Post("/commitments/{commitment_id}/cancellation/response", h.respondToCancellation)

			r.Post("/internal/payments", h.recordPayment)
			r.Post("/internal/sessions/completed", h.recordSessionCompleted)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(auth.RoleAdmin))
				r.Get("/admin/commitments/{commitment_id}/review", h.reviewCommitment)
				r.Post("/admin/commitments/{commitment_id}/resolve", h.resolveDispute)
				r.Post("/admin/commitments/{commitment_id}/close", h.closeCancellation)
			})
		})
	})
	return r
}
