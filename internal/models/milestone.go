package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Milestone status enums.
const (
	MilestonePending    = "pending"
	MilestoneInProgress = "in-progress"
	MilestoneSubmitted  = "submitted"
	MilestoneApproved   = "approved"
	MilestoneRejected   = "rejected"
	MilestonePaid       = "paid"
)

type Milestone struct {
	ID           uuid.UUID   `json:"id"`
	JobID        uuid.UUID   `json:"job_id"`
	TeamMemberID *uuid.UUID  `json:"team_member_id,omitempty"`
	FreelancerID uuid.UUID   `json:"freelancer_id"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	AmountCents  int64       `json:"amount_cents"`
	Deadline     time.Time   `json:"deadline"`
	Status       string      `json:"status"`
	PaymentID    *uuid.UUID  `json:"payment_id,omitempty"`
	Submission   *Submission `json:"submission,omitempty"`
	ApprovalDate *time.Time  `json:"approval_date,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Submission is the deliverable attached when a freelancer submits a milestone.
type Submission struct {
	Message     string    `json:"message"`
	Attachments []string  `json:"attachments"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// MilestoneTemplate is the embryonic milestone carried by an offer.
type MilestoneTemplate struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	AmountCents int64     `json:"amount_cents"`
	Deadline    time.Time `json:"deadline"`
}

// Missing returns the names of required template fields that are empty.
func (t MilestoneTemplate) Missing() []string {
	var out []string
	if strings.TrimSpace(t.Title) == "" {
		out = append(out, "title")
	}
	if !ValidAmount(t.AmountCents) {
		out = append(out, "amount")
	}
	if t.Deadline.IsZero() {
		out = append(out, "deadline")
	}
	return out
}
