package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Bid status enums.
const (
	BidPending   = "pending"
	BidAccepted  = "accepted"
	BidRejected  = "rejected"
	BidWithdrawn = "withdrawn"
)

type Bid struct {
	ID           uuid.UUID      `json:"id"`
	JobID        uuid.UUID      `json:"job_id"`
	FreelancerID uuid.UUID      `json:"freelancer_id"`
	AmountCents  int64          `json:"amount_cents"`
	CoverLetter  string         `json:"cover_letter"`
	Status       string         `json:"status"`
	Milestones   []BidMilestone `json:"milestones,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// BidMilestone is the milestone breakdown proposed on a bid. It follows its own
// pending -> in-progress -> approved lifecycle driven by direct escrow payments.
type BidMilestone struct {
	ID          uuid.UUID `json:"id"`
	BidID       uuid.UUID `json:"bid_id"`
	Title       string    `json:"title"`
	AmountCents int64     `json:"amount_cents"`
	Status      string    `json:"status"`
}

func (b *Bid) FindMilestone(id uuid.UUID) *BidMilestone {
	for i := range b.Milestones {
		if b.Milestones[i].ID == id {
			return &b.Milestones[i]
		}
	}
	return nil
}

// Notification type enums.
const (
	NotifyOffer             = "offer"
	NotifyOfferAccepted     = "offer_accepted"
	NotifyOfferRejected     = "offer_rejected"
	NotifyMilestoneAdded    = "milestone_added"
	NotifyMilestoneSubmit   = "milestone_submitted"
	NotifyMilestoneApproved = "milestone_approved"
	NotifyMilestoneRejected = "milestone_rejected"
	NotifyPayment           = "payment"
	NotifyFundsAvailable    = "funds_available"
)

type Notification struct {
	ID          uuid.UUID       `json:"id"`
	RecipientID uuid.UUID       `json:"recipient_id"`
	Type        string          `json:"type"`
	Title       string          `json:"title"`
	Message     string          `json:"message"`
	Data        json.RawMessage `json:"data,omitempty"`
	Read        bool            `json:"read"`
	CreatedAt   time.Time       `json:"created_at"`
}
