package jobs

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/gigmarket/backend/internal/middleware"
	"github.com/gigmarket/backend/internal/models"
	"github.com/gigmarket/backend/internal/respond"
	"github.com/gigmarket/backend/internal/validation"
)

// Request structs match the embedded JSON schemas (snake_case JSON).

type CreateJobRequest struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Skills         []string `json:"skills"`
	BudgetCents    int64    `json:"budget_cents"`
	IsCrowdsourced bool     `json:"is_crowdsourced"`
	Roles          []struct {
		Title       string   `json:"title"`
		Skills      []string `json:"skills"`
		BudgetCents int64    `json:"budget_cents"`
	} `json:"roles"`
}

type PlaceBidRequest struct {
	AmountCents int64  `json:"amount_cents"`
	CoverLetter string `json:"cover_letter"`
	Milestones  []struct {
		Title       string `json:"title"`
		AmountCents int64  `json:"amount_cents"`
	} `json:"milestones"`
}

// Profiles resolves a freelancer's skills when the open-jobs query names none.
type Profiles interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type Handler struct {
	svc       Service
	profiles  Profiles
	validator *validation.Validator
	log       *slog.Logger
}

func NewHandler(svc Service, profiles Profiles, validator *validation.Validator, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, profiles: profiles, validator: validator, log: log}
}

func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		respond.Fail(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	body, err := respond.ReadBody(w, r)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	var req CreateJobRequest
	if err := h.validator.Decode(validation.CreateJob, body, &req); err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	in := CreateJobInput{
		Title:          req.Title,
		Description:    req.Description,
		Skills:         req.Skills,
		BudgetCents:    req.BudgetCents,
		IsCrowdsourced: req.IsCrowdsourced,
	}
	for _, role := range req.Roles {
		in.Roles = append(in.Roles, RoleInput{Title: role.Title, Skills: role.Skills, BudgetCents: role.BudgetCents})
	}
	job, err := h.svc.CreateJob(r.Context(), p.ID, in)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusCreated, "job created", job)
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	job, err := h.svc.GetJob(r.Context(), jobID)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, "", job)
}

// ListMine lists the caller's own jobs.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		respond.Fail(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	list, err := h.svc.ListByClient(r.Context(), p.ID)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	if list == nil {
		list = []*models.Job{}
	}
	respond.JSON(w, http.StatusOK, "", list)
}

// ListOpen lists open jobs, best skill fit first. Skills come from the
// comma separated skills query parameter, else from the caller's profile.
func (h *Handler) ListOpen(w http.ResponseWriter, r *http.Request) {
	var skills []string
	if q := r.URL.Query().Get("skills"); q != "" {
		skills = strings.Split(q, ",")
	} else if p, ok := middleware.PrincipalFrom(r.Context()); ok && p.Role == models.RoleFreelancer && h.profiles != nil {
		if u, err := h.profiles.GetByID(r.Context(), p.ID); err == nil {
			skills = u.Skills
		} else {
			h.log.Warn("load profile skills failed", "user_id", p.ID, "error", err)
		}
	}
	list, err := h.svc.ListOpen(r.Context(), skills)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	if list == nil {
		list = []*models.Job{}
	}
	respond.JSON(w, http.StatusOK, "", list)
}

func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		respond.Fail(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	jobID, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	body, err := respond.ReadBody(w, r)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	var req PlaceBidRequest
	if err := h.validator.Decode(validation.PlaceBid, body, &req); err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	in := PlaceBidInput{AmountCents: req.AmountCents, CoverLetter: req.CoverLetter}
	for _, m := range req.Milestones {
		in.Milestones = append(in.Milestones, BidMilestoneInput{Title: m.Title, AmountCents: m.AmountCents})
	}
	bid, err := h.svc.PlaceBid(r.Context(), p.ID, jobID, in)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusCreated, "bid placed", bid)
}

func (h *Handler) ListBids(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		respond.Fail(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	jobID, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	bids, err := h.svc.ListBids(r.Context(), p.ID, jobID)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	if bids == nil {
		bids = []*models.Bid{}
	}
	respond.JSON(w, http.StatusOK, "", bids)
}

func (h *Handler) WithdrawBid(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		respond.Fail(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	bidID, err := respond.PathID(r, "id")
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	bid, err := h.svc.WithdrawBid(r.Context(), p.ID, bidID)
	if err != nil {
		respond.Error(w, r, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, "bid withdrawn", bid)
}
