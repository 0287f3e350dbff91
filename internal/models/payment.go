package models

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// MaxAmountCents caps every money amount taken from a request. Fees and
// running totals over capped amounts stay far inside int64.
const MaxAmountCents int64 = 100_000_000_000

// ValidAmount reports whether cents is a positive amount within MaxAmountCents.
func ValidAmount(cents int64) bool { return cents > 0 && cents <= MaxAmountCents }

// Payment status enums.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
	PaymentRefunded  = "refunded"
	PaymentEscrow    = "escrow"
	PaymentReleased  = "released"
)

// Payment is one escrow reservation. Milestone payments reference a job
// milestone; direct escrow payments reference a bid and optionally one of its
// milestones.
type Payment struct {
	ID               uuid.UUID     `json:"id"`
	JobID            uuid.UUID     `json:"job_id"`
	MilestoneID      *uuid.UUID    `json:"milestone_id,omitempty"`
	BidID            *uuid.UUID    `json:"bid_id,omitempty"`
	BidMilestoneID   *uuid.UUID    `json:"bid_milestone_id,omitempty"`
	ClientID         uuid.UUID     `json:"client_id"`
	FreelancerID     uuid.UUID     `json:"freelancer_id"`
	AmountCents      int64         `json:"amount_cents"`
	ServiceFeeCents  int64         `json:"service_fee_cents"`
	TotalAmountCents int64         `json:"total_amount_cents"`
	FeePolicy        string        `json:"fee_policy"`
	Status           string        `json:"status"`
	Invoice          []InvoiceLine `json:"invoice,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

type InvoiceLine struct {
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
}

// FundRelease is a durable record of pending funds that become available at DueAt.
type FundRelease struct {
	ID           uuid.UUID  `json:"id"`
	FreelancerID uuid.UUID  `json:"freelancer_id"`
	JobID        uuid.UUID  `json:"job_id"`
	MilestoneID  uuid.UUID  `json:"milestone_id"`
	AmountCents  int64      `json:"amount_cents"`
	DueAt        time.Time  `json:"due_at"`
	ReleasedAt   *time.Time `json:"released_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ReleaseCursor is a keyset position in (due_at, id) order over fund
// releases. The zero value sorts before every release.
type ReleaseCursor struct {
	DueAt time.Time
	ID    uuid.UUID
}

// Compare orders cursors by due time, then by id bytes as Postgres orders uuids.
func (c ReleaseCursor) Compare(o ReleaseCursor) int {
	if n := c.DueAt.Compare(o.DueAt); n != 0 {
		return n
	}
	return bytes.Compare(c.ID[:], o.ID[:])
}
