package handlers

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/gigmarket/backend/internal/hiring"
	"github.com/gigmarket/backend/internal/respond"
	"github.com/gigmarket/backend/internal/validation"
)

type createOfferRequest struct {
	BidID     string        `json:"bid_id"`
	Role      string        `json:"role"`
	Milestone milestoneBody `json:"milestone"`
}

// OfferHandler serves /jobs/{id}/offers endpoints.
type OfferHandler struct {
	Hiring    hiring.Service
	Validator *validation.Validator
	Logger    *slog.Logger
}

// --- POST /jobs/{id}/offers ---

func (h *OfferHandler) Create(w http.ResponseWriter, r *http.Request) {
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
	var req createOfferRequest
	if err := h.Validator.Decode(validation.CreateOffer, body, &req); err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	bidID, err := uuid.Parse(req.BidID)
	if err != nil {
		respond.Fail(w, http.StatusBadRequest, "bid_id is not a valid id", "bid_id")
		return
	}
	tmpl, err := req.Milestone.template()
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	offer, err := h.Hiring.CreateOffer(r.Context(), p.ID, ids[0], bidID, req.Role, tmpl)
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	respond.JSON(w, http.StatusCreated, "offer sent", offer)
}

// --- POST /jobs/{id}/offers/{offerID}/accept ---

func (h *OfferHandler) Accept(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	ids, ok := pathIDs(w, r, "id", "offerID")
	if !ok {
		return
	}
	res, err := h.Hiring.AcceptOffer(r.Context(), p.ID, ids[0], ids[1])
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, "offer accepted", res)
}

// --- POST /jobs/{id}/offers/{offerID}/reject ---

func (h *OfferHandler) Reject(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	ids, ok := pathIDs(w, r, "id", "offerID")
	if !ok {
		return
	}
	offer, err := h.Hiring.RejectOffer(r.Context(), p.ID, ids[0], ids[1])
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, "offer rejected", offer)
}
