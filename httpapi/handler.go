package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"tutorflow/arbitration"
	"tutorflow/attribution"
	"tutorflow/auth"
	"tutorflow/commitment"
	"tutorflow/party"
	"tutorflow/request"
)

// ReviewCache caches serialized review views. A nil cache disables caching.
type ReviewCache interface {
	Get(ctx context.Context, commitmentID string) ([]byte, error)
	Set(ctx context.Context, commitmentID string, body []byte) error
	Invalidate(ctx context.Context, commitmentID string) error
}

// Handler holds the service dependencies for all routes.
type Handler struct {
	auth        *auth.Service
	requests    *request.Service
	commitments *commitment.Service
	arbitration *arbitration.Service
	parties     *party.Service
	cache       ReviewCache
}

func NewHandler(
	authSvc *auth.Service,
	requests *request.Service,
	commitments *commitment.Service,
	arbitrationSvc *arbitration.Service,
	parties *party.Service,
	cache ReviewCache,
) *Handler {
	return &Handler{
		auth:        authSvc,
		requests:    requests,
		commitments: commitments,
		arbitration: arbitrationSvc,
		parties:     parties,
		cache:       cache,
	}
}

// actorFromClaims resolves the caller's commitment-side identity. Students
// and tutors must have a party profile; admins act without one.
func (h *Handler) actorFromClaims(ctx context.Context, claims auth.Claims) (commitment.Actor, error) {
	actor := commitment.Actor{UserID: claims.UserID}
	switch claims.Role {
	case auth.RoleStudent:
		actor.Role = commitment.RoleStudent
	case auth.RoleTutor:
		actor.Role = commitment.RoleTutor
	case auth.RoleAdmin:
		actor.Role = commitment.RoleAdmin
		return actor, nil
	}
	profile, err := h.parties.GetByUser(ctx, claims.UserID)
	if err != nil {
		return commitment.Actor{}, err
	}
	actor.PartyID = profile.ID
	return actor, nil
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error(), requestIDFromContext(r.Context()))
		return
	}
	user, err := h.auth.Register(r.Context(), req)
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{
		"id":        user.ID,
		"email":     user.Email,
		"full_name": user.FullName,
		"role":      user.Role,
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error(), requestIDFromContext(r.Context()))
		return
	}
	result, err := h.auth.Login(r.Context(), req)
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"token": result.Token,
		"user": map[string]any{
			"id":        result.User.ID,
			"email":     result.User.Email,
			"full_name": result.User.FullName,
			"role":      result.User.Role,
		},
	})
}

func (h *Handler) createRequest(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	var body struct {
		Subject string `json:"subject"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error(), requestIDFromContext(r.Context()))
		return
	}
	rec, err := h.requests.Create(r.Context(), claims.UserID, body.Subject)
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusCreated, requestPayload(rec))
}

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request) {
	f := request.Filters{
		CreatorUserID: r.URL.Query().Get("creator"),
		Status:        request.Status(r.URL.Query().Get("status")),
	}
	if page, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil {
		f.Page = page
	}
	if size, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil {
		f.PageSize = size
	}
	recs, total, err := h.requests.List(r.Context(), f)
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	items := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		items = append(items, requestPayload(rec))
	}
	writeSuccess(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (h *Handler) getRequest(w http.ResponseWriter, r *http.Request) {
	rec, err := h.requests.GetByID(r.Context(), chi.URLParam(r, "request_id"))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, requestPayload(rec))
}

func (h *Handler) createCommitment(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	actor, err := h.actorFromClaims(r.Context(), claims)
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	var body struct {
		RequestID      string `json:"request_id"`
		StudentPartyID string `json:"student_party_id"`
		TutorPartyID   string `json:"tutor_party_id"`
		TotalAmount    int64  `json:"total_amount_cents"`
		TotalSessions  int    `json:"total_sessions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error(), requestIDFromContext(r.Context()))
		return
	}
	rec, err := h.commitments.Create(r.Context(), actor, commitment.CreateParams{
		RequestID:      strings.TrimSpace(body.RequestID),
		StudentPartyID: strings.TrimSpace(body.StudentPartyID),
		TutorPartyID:   strings.TrimSpace(body.TutorPartyID),
		TotalAmount:    body.TotalAmount,
		TotalSessions:  body.TotalSessions,
	})
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusCreated, commitmentPayload(rec))
}

func (h *Handler) getCommitment(w http.ResponseWriter, r *http.Request) {
	rec, err := h.commitments.Get(r.Context(), chi.URLParam(r, "commitment_id"))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, commitmentPayload(rec))
}

func (h *Handler) rejectCommitment(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	actor, err := h.actorFromClaims(r.Context(), claims)
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	id := chi.URLParam(r, "commitment_id")
	rec, err := h.commitments.Reject(r.Context(), id, actor)
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	h.invalidate(r.Context(), id)
	writeSuccess(w, http.StatusOK, commitmentPayload(rec))
}

func (h *Handler) requestCancellation(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	actor, err := h.actorFromClaims(r.Context(), claims)
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	var body struct {
		Reason  string `json:"reason"`
		LinkURL string `json:"link_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error(), requestIDFromContext(r.Context()))
		return
	}
	id := chi.URLParam(r, "commitment_id")
	rec, err := h.commitments.RequestCancellation(r.Context(), id, actor, body.Reason, body.LinkURL)
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	h.invalidate(r.Context(), id)
	writeSuccess(w, http.StatusOK, commitmentPayload(rec))
}

func (h *Handler) respondToCancellation(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	actor, err := h.actorFromClaims(r.Context(), claims)
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	var body struct {
		Accept  bool   `json:"accept"`
		Reason  string `json:"reason"`
		LinkURL string `json:"link_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error(), requestIDFromContext(r.Context()))
		return
	}
	id := chi.URLParam(r, "commitment_id")
	rec, err := h.commitments.RespondToCancellation(r.Context(), id, actor, body.Accept, body.Reason, body.LinkURL)
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	h.invalidate(r.Context(), id)
	writeSuccess(w, http.StatusOK, commitmentPayload(rec))
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CommitmentID string `json:"commitment_id"`
		Amount       int64  `json:"amount_cents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error(), requestIDFromContext(r.Context()))
		return
	}
	rec, err := h.commitments.RecordPayment(r.Context(), body.CommitmentID, body.Amount)
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	h.invalidate(r.Context(), body.CommitmentID)
	writeSuccess(w, http.StatusOK, commitmentPayload(rec))
}

func (h *Handler) recordSessionCompleted(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CommitmentID string `json:"commitment_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error(), requestIDFromContext(r.Context()))
		return
	}
	rec, err := h.commitments.RecordSessionCompleted(r.Context(), body.CommitmentID)
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	h.invalidate(r.Context(), body.CommitmentID)
	writeSuccess(w, http.StatusOK, commitmentPayload(rec))
}

func (h *Handler) reviewCommitment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "commitment_id")
	if h.cache != nil {
		if cached, err := h.cache.Get(r.Context(), id); err == nil {
			writeSuccess(w, http.StatusOK, json.RawMessage(cached))
			return
		}
	}
	view, err := h.arbitration.Review(r.Context(), id)
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	payload := reviewPayload(view)
	if h.cache != nil {
		if body, err := json.Marshal(payload); err == nil {
			_ = h.cache.Set(r.Context(), id, body)
		}
	}
	writeSuccess(w, http.StatusOK, payload)
}

func (h *Handler) resolveDispute(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	var body struct {
		Approve bool   `json:"approve"`
		Notes   string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error(), requestIDFromContext(r.Context()))
		return
	}
	id := chi.URLParam(r, "commitment_id")
	rec, err := h.arbitration.Resolve(r.Context(), id, claims.UserID, body.Approve, body.Notes)
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	h.invalidate(r.Context(), id)
	writeSuccess(w, http.StatusOK, commitmentPayload(rec))
}

func (h *Handler) closeCancellation(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	var body struct {
		Approve bool   `json:"approve"`
		Notes   string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error(), requestIDFromContext(r.Context()))
		return
	}
	id := chi.URLParam(r, "commitment_id")
	rec, err := h.arbitration.Close(r.Context(), id, claims.UserID, body.Approve, body.Notes)
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	h.invalidate(r.Context(), id)
	writeSuccess(w, http.StatusOK, commitmentPayload(rec))
}

func (h *Handler) invalidate(ctx context.Context, commitmentID string) {
	if h.cache != nil {
		_ = h.cache.Invalidate(ctx, commitmentID)
	}
}

func requestPayload(rec request.Request) map[string]any {
	return map[string]any{
		"id":         rec.ID,
		"creator_id": rec.CreatorUserID,
		"subject":    rec.Subject,
		"status":     rec.Status,
		"created_at": rec.CreatedAt,
	}
}

func commitmentPayload(c commitment.Commitment) map[string]any {
	return map[string]any{
		"id":                        c.ID,
		"request_id":                c.RequestID,
		"student_party_id":          c.StudentPartyID,
		"tutor_party_id":            c.TutorPartyID,
		"total_amount_cents":        c.TotalAmount,
		"student_paid_amount_cents": c.StudentPaidAmount,
		"total_sessions":            c.TotalSessions,
		"completed_sessions":        c.CompletedSessions,
		"status":                    c.Status,
		"cancellation_decision":     c.CancellationDecision,
		"created_at":                c.CreatedAt,
		"updated_at":                c.UpdatedAt,
	}
}

func reviewPayload(view arbitration.ReviewView) map[string]any {
	decision := map[string]any{}
	switch {
	case view.Decision.Open != nil:
		decision["open"] = view.Decision.Open
	case view.Decision.Resolved != nil:
		decision["resolved"] = historyPayload(*view.Decision.Resolved)
	}

	history := make([]map[string]any, 0, len(view.History))
	for _, entry := range view.History {
		history = append(history, historyPayload(entry))
	}
	logs := make([]map[string]any, 0, len(view.DisputeLogs))
	for _, entry := range view.DisputeLogs {
		logs = append(logs, map[string]any{
			"id":         entry.ID,
			"action":     entry.Action,
			"handled_by": entry.HandledBy,
			"handled_at": entry.HandledAt,
			"notes":      entry.Notes,
			"snapshot":   entry.Snapshot,
		})
	}

	payload := map[string]any{
		"commitment_id": view.CommitmentID,
		"status":        view.Status,
		"decision":      decision,
		"history":       history,
		"dispute_logs":  logs,
	}
	if view.Statistics != nil {
		payload["statistics"] = statisticsPayload(*view.Statistics)
	}
	return payload
}

func historyPayload(entry commitment.HistoryEntry) map[string]any {
	return map[string]any{
		"id":          entry.ID,
		"seq":         entry.Seq,
		"resolved_at": entry.ResolvedAt,
		"decision":    entry.Decision,
	}
}

func statisticsPayload(stats attribution.Statistics) map[string]any {
	return map[string]any{
		"total_sessions": stats.TotalSessions(),
		"completed":      plainBucketPayload(stats.Completed),
		"cancelled":      attributedBucketPayload(stats.Cancelled),
		"not_conducted":  attributedBucketPayload(stats.NotConducted),
		"dispute":        plainBucketPayload(stats.Dispute),
		"rejected":       plainBucketPayload(stats.Rejected),
		"timeline":       sessionsPayload(stats.Timeline),
	}
}

func plainBucketPayload(b attribution.PlainBucket) map[string]any {
	return map[string]any{
		"total":    b.Total,
		"sessions": sessionsPayload(b.Sessions),
	}
}

func attributedBucketPayload(b attribution.AttributedBucket) map[string]any {
	return map[string]any{
		"total":    b.Total,
		"student":  b.Student,
		"tutor":    b.Tutor,
		"unknown":  b.Unknown,
		"sessions": sessionsPayload(b.Sessions),
	}
}

func sessionsPayload(sessions []attribution.ClassifiedSession) []map[string]any {
	out := make([]map[string]any, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, map[string]any{
			"id":             s.ID,
			"start_time":     s.StartTime,
			"end_time":       s.EndTime,
			"is_trial":       s.IsTrial,
			"status":         s.Status,
			"bucket":         s.Bucket,
			"responsibility": s.Responsibility,
		})
	}
	return out
}
