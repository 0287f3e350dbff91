package handlers

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/gigmarket/backend/internal/escrow"
	"github.com/gigmarket/backend/internal/respond"
	"github.com/gigmarket/backend/internal/validation"
)

type createEscrowRequest struct {
	BidID          string `json:"bid_id"`
	BidMilestoneID string `json:"bid_milestone_id"`
}

// PaymentHandler serves /payments endpoints.
type PaymentHandler struct {
	Payments  Payments
	Validator *validation.Validator
	Logger    *slog.Logger
}

// --- POST /payments/escrow ---

func (h *PaymentHandler) CreateEscrow(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	body, err := respond.ReadBody(w, r)
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	var req createEscrowRequest
	if err := h.Validator.Decode(validation.CreateEscrow, body, &req); err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	var in escrow.DirectEscrowInput
	if in.BidID, err = uuid.Parse(req.BidID); err != nil {
		respond.Fail(w, http.StatusBadRequest, "bid_id is not a valid id", "bid_id")
		return
	}
	if req.BidMilestoneID != "" {
		id, err := uuid.Parse(req.BidMilestoneID)
		if err != nil {
			respond.Fail(w, http.StatusBadRequest, "bid_milestone_id is not a valid id", "bid_milestone_id")
			return
		}
		in.BidMilestoneID = &id
	}
	payment, err := h.Payments.CreateDirectEscrow(r.Context(), p.ID, in)
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	respond.JSON(w, http.StatusCreated, "payment held in escrow", payment)
}

// --- POST /payments/{id}/release ---

func (h *PaymentHandler) Release(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	ids, ok := pathIDs(w, r, "id")
	if !ok {
		return
	}
	payment, err := h.Payments.ReleasePayment(r.Context(), p.ID, ids[0])
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, "payment released", payment)
}
