package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles.
const (
	RoleClient     = "client"
	RoleFreelancer = "freelancer"
	RoleAdmin      = "admin"
)

// Hire sides: which party of the hire the owning user is.
const (
	HireSideClient     = "client"
	HireSideFreelancer = "freelancer"
)

// Payments holds the three running balance buckets of a user. A reserved
// milestone amount is counted in exactly one of them at any time.
type Payments struct {
	InProgressCents int64 `json:"in_progress_cents"`
	PendingCents    int64 `json:"pending_cents"`
	AvailableCents  int64 `json:"available_cents"`
}

type User struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	PasswordHash       string    `json:"-"`
	Role               string    `json:"role"`
	Skills             []string  `json:"skills"`
	Payments           Payments  `json:"payments"`
	TotalEarningsCents int64     `json:"total_earnings_cents"`
	TotalSpentCents    int64     `json:"total_spent_cents"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// HireKey identifies one hire history entry.
type HireKey struct {
	UserID        uuid.UUID
	JobID         uuid.UUID
	CounterpartID uuid.UUID
	Role          string
}

// Hire is one entry of a user's hire history. Freelancer-side entries use
// TotalBudgetCents/EarnedCents, client-side entries TotalPaidCents/PendingPaymentCents.
type Hire struct {
	ID                  uuid.UUID   `json:"id"`
	UserID              uuid.UUID   `json:"user_id"`
	Side                string      `json:"side"`
	JobID               uuid.UUID   `json:"job_id"`
	JobTitle            string      `json:"job_title"`
	JobBudgetCents      int64       `json:"job_budget_cents"`
	Role                string      `json:"role,omitempty"`
	CounterpartID       uuid.UUID   `json:"counterpart_id"`
	CounterpartName     string      `json:"counterpart_name"`
	CounterpartSkills   []string    `json:"counterpart_skills,omitempty"`
	ActiveMilestones    []uuid.UUID `json:"active_milestones"`
	ApprovedMilestones  []uuid.UUID `json:"approved_milestones"`
	TotalBudgetCents    int64       `json:"total_budget_cents"`
	EarnedCents         int64       `json:"earned_cents"`
	TotalPaidCents      int64       `json:"total_paid_cents"`
	PendingPaymentCents int64       `json:"pending_payment_cents"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

func (h *Hire) Key() HireKey {
	return HireKey{UserID: h.UserID, JobID: h.JobID, CounterpartID: h.CounterpartID, Role: h.Role}
}
