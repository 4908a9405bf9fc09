// Package api exposes HTTP handlers for the savings service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/PKL-SST-2025/be-tabungin/internal/auth"
	"github.com/PKL-SST-2025/be-tabungin/internal/domain"
	"github.com/PKL-SST-2025/be-tabungin/internal/persistence"
)

// Handler coordinates HTTP requests with the savings service.
type Handler struct {
	service *domain.SavingsService
	users   domain.UserDirectory
	clock   domain.Clock
	logger  logrus.FieldLogger
	seen    sync.Map
}

// Option configures a Handler.
type Option func(*Handler)

// WithUserDirectory registers callers on their first authenticated request.
func WithUserDirectory(users domain.UserDirectory) Option {
	return func(h *Handler) { h.users = users }
}

// WithClock overrides the clock used when registering users.
func WithClock(clock domain.Clock) Option {
	return func(h *Handler) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithLogger overrides the handler logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler builds a Handler.
func NewHandler(service *domain.SavingsService, opts ...Option) *Handler {
	h := &Handler{
		service: service,
		clock:   domain.SystemClock{},
		logger:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires endpoints to the router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/savings/targets", h.createTarget).Methods(http.MethodPost)
	v1.HandleFunc("/savings/targets", h.listTargets).Methods(http.MethodGet)
	v1.HandleFunc("/savings/targets/{id}", h.getTarget).Methods(http.MethodGet)
	v1.HandleFunc("/savings/targets/{id}", h.updateTarget).Methods(http.MethodPut)
	v1.HandleFunc("/savings/targets/{id}", h.deleteTarget).Methods(http.MethodDelete)
	v1.HandleFunc("/savings/targets/{id}/deposit", h.deposit).Methods(http.MethodPost)
	v1.HandleFunc("/savings/targets/{id}/withdraw", h.withdraw).Methods(http.MethodPost)

	v1.HandleFunc("/activities", h.listActivities).Methods(http.MethodGet)
	v1.HandleFunc("/activities/recent", h.listRecentActivities).Methods(http.MethodGet)

	v1.HandleFunc("/statistics", h.getStatistics).Methods(http.MethodGet)
	v1.HandleFunc("/statistics/streak", h.getStreak).Methods(http.MethodGet)
	v1.HandleFunc("/statistics/achievements", h.getAchievements).Methods(http.MethodGet)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// caller resolves the authenticated user and registers it on first sight.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if h.users == nil {
		return claims, true
	}
	if _, known := h.seen.Load(claims.UserID); known {
		return claims, true
	}
	if err := h.users.EnsureUser(r.Context(), claims.UserID, h.clock.Now().UTC()); err != nil {
		h.writeDomainError(w, err)
		return nil, false
	}
	h.seen.Store(claims.UserID, struct{}{})
	return claims, true
}

// targetID extracts the {id} path variable. Malformed ids cannot name a stored target.
func targetID(w http.ResponseWriter, r *http.Request) (string, bool) {
	parsed, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", domain.ErrTargetNotFound.Error())
		return "", false
	}
	return parsed.String(), true
}

func (h *Handler) createTarget(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req CreateTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	input, err := req.toInput(claims.UserID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	target, err := h.service.CreateTarget(r.Context(), input)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTargetView(*target))
}

func (h *Handler) listTargets(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.caller(w, r)
	if !ok {
		return
	}

	targets, err := h.service.ListTargets(r.Context(), claims.UserID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	items := make([]TargetView, 0, len(targets))
	for _, target := range targets {
		items = append(items, toTargetView(target))
	}
	writeJSON(w, http.StatusOK, ListTargetsResponse{Items: items})
}

func (h *Handler) getTarget(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := targetID(w, r)
	if !ok {
		return
	}

	target, err := h.service.GetTarget(r.Context(), claims.UserID, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTargetView(*target))
}

func (h *Handler) updateTarget(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := targetID(w, r)
	if !ok {
		return
	}

	var req UpdateTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	target, err := h.service.UpdateTarget(r.Context(), claims.UserID, id, patch)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTargetView(*target))
}

func (h *Handler) deleteTarget(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := targetID(w, r)
	if !ok {
		return
	}

	deleted, err := h.service.DeleteTarget(r.Context(), claims.UserID, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "not_found", domain.ErrTargetNotFound.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deposit(w http.ResponseWriter, r *http.Request) {
	h.moveFunds(w, r, h.service.Deposit)
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	h.moveFunds(w, r, h.service.Withdraw)
}

type fundsOperation func(ctx context.Context, userID, targetID string, amount decimal.Decimal) (*domain.SavingsTarget, error)

func (h *Handler) moveFunds(w http.ResponseWriter, r *http.Request, op fundsOperation) {
	claims, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := targetID(w, r)
	if !ok {
		return
	}

	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	amount, err := req.Amount.Positive()
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	target, err := op(r.Context(), claims.UserID, id, amount)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTargetView(*target))
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.caller(w, r)
	if !ok {
		return
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	activities, next, err := h.service.Activities().ListActivities(r.Context(), claims.UserID, cursor, queryInt(r, "limit"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{
		Items:      toActivityViews(activities),
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) listRecentActivities(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.caller(w, r)
	if !ok {
		return
	}
	if !claims.HasScope(auth.ScopeAdminRead) {
		writeError(w, http.StatusForbidden, "forbidden", "scope admin:read required")
		return
	}

	activities, err := h.service.Activities().ListAllRecentActivities(r.Context(), queryInt(r, "limit"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{Items: toActivityViews(activities)})
}

func (h *Handler) getStatistics(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.caller(w, r)
	if !ok {
		return
	}

	stats, err := h.service.Statistics().GetStatistics(r.Context(), claims.UserID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatisticsView(*stats))
}

func (h *Handler) getStreak(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.caller(w, r)
	if !ok {
		return
	}

	window, err := h.service.Statistics().ComputeStreakWindow(r.Context(), claims.UserID, queryInt(r, "days"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStreakView(*window))
}

func (h *Handler) getAchievements(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.caller(w, r)
	if !ok {
		return
	}

	achievements, err := h.service.Statistics().GetAchievements(r.Context(), claims.UserID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	items := make([]AchievementView, 0, len(achievements))
	for _, a := range achievements {
		items = append(items, toAchievementView(a))
	}
	writeJSON(w, http.StatusOK, ListAchievementsResponse{Items: items})
}

// queryInt returns a positive integer query parameter, or zero to select the default.
func queryInt(r *http.Request, key string) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0
	}
	return parsed
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "invalid_amount", err.Error())
	case errors.Is(err, domain.ErrTargetNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrAccessDenied):
		writeError(w, http.StatusForbidden, "access_denied", err.Error())
	default:
		h.logger.WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
