package dashboard

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/gigmarket/backend/internal/middleware"
	"github.com/gigmarket/backend/internal/models"
	"github.com/gigmarket/backend/internal/respond"
	"github.com/gigmarket/backend/internal/validation"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateProfile(ctx context.Context, u *models.User) error
}

type Hires interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Hire, error)
}

type Payments interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Payment, error)
}

type Notifications interface {
	ListByRecipient(ctx context.Context, recipientID uuid.UUID, limit int) ([]*models.Notification, error)
	MarkRead(ctx context.Context, id, recipientID uuid.UUID) (bool, error)
}

// Handler serves the caller's own account views: profile, balances, hire
// history, payments and notifications.
type Handler struct {
	users         Users
	hires         Hires
	payments      Payments
	notifications Notifications
	validator     *validation.Validator
	log           *slog.Logger
}

func NewHandler(users Users, hires Hires, payments Payments, notifications Notifications, validator *validation.Validator, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		users:         users,
		hires:         hires,
		payments:      payments,
		notifications: notifications,
		validator:     validator,
		log:           log,
	}
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		respond.Fail(w, http.StatusUnauthorized, "unauthorized")
		return uuid.Nil, false
	}
	return p.ID, true
}

// GET /api/v1/account/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.principal(w, r)
	if !ok {
		return
	}
	u, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		h.log.Error("get user failed", "user_id", userID, "error", err)
		respond.Fail(w, http.StatusNotFound, "account not found")
		return
	}
	respond.JSON(w, http.StatusOK, "", u)
}

// PATCH /api/v1/account/me
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.principal(w, r)
	if !ok {
		return
	}
	body, err := respond.ReadBody(w, r)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	var req struct {
		Name   *string  `json:"name"`
		Skills []string `json:"skills"`
	}
	if err := h.validator.Decode(validation.EditProfile, body, &req); err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	u, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		respond.Fail(w, http.StatusNotFound, "account not found")
		return
	}
	if req.Name != nil {
		u.Name = *req.Name
	}
	if req.Skills != nil {
		u.Skills = req.Skills
	}
	if err := h.users.UpdateProfile(r.Context(), u); err != nil {
		h.log.Error("update profile failed", "user_id", userID, "error", err)
		respond.Fail(w, http.StatusInternalServerError, "update failed")
		return
	}
	respond.JSON(w, http.StatusOK, "profile updated", u)
}

// GET /api/v1/account/hires
func (h *Handler) ListHires(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.principal(w, r)
	if !ok {
		return
	}
	hires, err := h.hires.ListByUser(r.Context(), userID)
	if err != nil {
		h.log.Error("list hires failed", "user_id", userID, "error", err)
		respond.Fail(w, http.StatusInternalServerError, "internal error")
		return
	}
	if hires == nil {
		hires = []*models.Hire{}
	}
	respond.JSON(w, http.StatusOK, "", hires)
}

// GET /api/v1/account/payments
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.principal(w, r)
	if !ok {
		return
	}
	payments, err := h.payments.ListByUser(r.Context(), userID)
	if err != nil {
		h.log.Error("list payments failed", "user_id", userID, "error", err)
		respond.Fail(w, http.StatusInternalServerError, "internal error")
		return
	}
	if payments == nil {
		payments = []*models.Payment{}
	}
	respond.JSON(w, http.StatusOK, "", payments)
}

// GET /api/v1/account/notifications?limit=N
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.principal(w, r)
	if !ok {
		return
	}
	limit := defaultNotificationLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			respond.Fail(w, http.StatusBadRequest, "limit must be a positive integer", "limit")
			return
		}
		limit = min(n, maxNotificationLimit)
	}
	list, err := h.notifications.ListByRecipient(r.Context(), userID, limit)
	if err != nil {
		h.log.Error("list notifications failed", "user_id", userID, "error", err)
		respond.Fail(w, http.StatusInternalServerError, "internal error")
		return
	}
	if list == nil {
		list = []*models.Notification{}
	}
	respond.JSON(w, http.StatusOK, "", list)
}

// POST /api/v1/account/notifications/{id}/read
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	found, err := h.notifications.MarkRead(r.Context(), id, userID)
	if err != nil {
		h.log.Error("mark notification read failed", "notification_id", id, "error", err)
		respond.Fail(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !found {
		respond.Fail(w, http.StatusNotFound, "notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
