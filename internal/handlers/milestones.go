package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/gigmarket/backend/internal/milestones"
	"github.com/gigmarket/backend/internal/respond"
	"github.com/gigmarket/backend/internal/validation"
)

type addMilestoneRequest struct {
	milestoneBody
	FreelancerID string `json:"freelancer_id"`
	Role         string `json:"role"`
}

type submitRequest struct {
	Message     string   `json:"message"`
	Attachments []string `json:"attachments"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// MilestoneHandler serves /jobs/{id}/milestones endpoints.
type MilestoneHandler struct {
	Milestones milestones.Service
	Validator  *validation.Validator
	Logger     *slog.Logger
}

// --- POST /jobs/{id}/milestones ---

// Add lets the client add a milestone for a hired freelancer. freelancer_id
// may be omitted on a direct hire. role picks the team entry when the
// freelancer fills several roles on a crowdsourced job.
func (h *MilestoneHandler) Add(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	ids, ok := pathIDs(w, r, "id")
	if !ok {
		return
	}
	body, err := respond.ReadBody(w, r)
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	var req addMilestoneRequest
	if err := h.Validator.Decode(validation.AddMilestone, body, &req); err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	freelancerID := uuid.Nil
	if req.FreelancerID != "" {
		if freelancerID, err = uuid.Parse(req.FreelancerID); err != nil {
			respond.Fail(w, http.StatusBadRequest, "freelancer_id is not a valid id", "freelancer_id")
			return
		}
	}
	tmpl, err := req.template()
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	m, err := h.Milestones.Add(r.Context(), p.ID, ids[0], freelancerID, strings.TrimSpace(req.Role), tmpl)
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	respond.JSON(w, http.StatusCreated, "milestone added", m)
}

// --- POST /jobs/{id}/milestones/{mid}/start ---

func (h *MilestoneHandler) Start(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	ids, ok := pathIDs(w, r, "id", "mid")
	if !ok {
		return
	}
	m, err := h.Milestones.Start(r.Context(), p.ID, ids[0], ids[1])
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, "milestone started", m)
}

// --- POST /jobs/{id}/milestones/{mid}/submit ---

func (h *MilestoneHandler) Submit(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	ids, ok := pathIDs(w, r, "id", "mid")
	if !ok {
		return
	}
	body, err := respond.ReadBody(w, r)
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	var req submitRequest
	if err := h.Validator.Decode(validation.SubmitWork, body, &req); err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	m, err := h.Milestones.Submit(r.Context(), p.ID, ids[0], ids[1], req.Message, req.Attachments)
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, "work submitted", m)
}

// --- POST /jobs/{id}/milestones/{mid}/approve ---

func (h *MilestoneHandler) Approve(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	ids, ok := pathIDs(w, r, "id", "mid")
	if !ok {
		return
	}
	m, err := h.Milestones.Approve(r.Context(), p.ID, ids[0], ids[1])
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, "milestone approved", m)
}

// --- POST /jobs/{id}/milestones/{mid}/reject ---

func (h *MilestoneHandler) Reject(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	ids, ok := pathIDs(w, r, "id", "mid")
	if !ok {
		return
	}
	body, err := respond.ReadBody(w, r)
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	var req rejectRequest
	if len(body) > 0 {
		if err := h.Validator.Decode(validation.RejectWork, body, &req); err != nil {
			respond.Error(w, r, h.Logger, err)
			return
		}
	}
	m, err := h.Milestones.Reject(r.Context(), p.ID, ids[0], ids[1], req.Reason)
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, "milestone rejected", m)
}

// --- GET /jobs/{id}/milestones/{mid} ---

func (h *MilestoneHandler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := caller(w, r); !ok {
		return
	}
	ids, ok := pathIDs(w, r, "id", "mid")
	if !ok {
		return
	}
	m, err := h.Milestones.Get(r.Context(), ids[0], ids[1])
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, "", m)
}
