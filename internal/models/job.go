package models

import (
	"time"

	"github.com/google/uuid"
)

// Job status enums.
const (
	JobStatusOpen       = "open"
	JobStatusInProgress = "in-progress"
	JobStatusCompleted  = "completed"
	JobStatusCancelled  = "cancelled"
)

// Crowdsourcing role and team member status enums.
const (
	RoleStatusOpen   = "open"
	RoleStatusFilled = "filled"

	TeamMemberActive  = "active"
	TeamMemberRemoved = "removed"
)

// Offer status enums.
const (
	OfferStatusPending  = "pending"
	OfferStatusAccepted = "accepted"
	OfferStatusRejected = "rejected"
)

type Job struct {
	ID                uuid.UUID           `json:"id"`
	ClientID          uuid.UUID           `json:"client_id"`
	Title             string              `json:"title"`
	Description       string              `json:"description"`
	Skills            []string            `json:"skills"`
	BudgetCents       int64               `json:"budget_cents"`
	Status            string              `json:"status"`
	IsCrowdsourced    bool                `json:"is_crowdsourced"`
	HiredFreelancerID *uuid.UUID          `json:"hired_freelancer_id,omitempty"`
	PaidCents         int64               `json:"paid_cents"`
	PaymentVerified   bool                `json:"payment_verified"`
	Roles             []CrowdsourcingRole `json:"crowdsourcing_roles,omitempty"`
	Team              []TeamMember        `json:"team,omitempty"`
	Milestones        []Milestone         `json:"milestones,omitempty"`
	Offers            []Offer             `json:"offers,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// CrowdsourcingRole is one role slot of a crowdsourced job.
type CrowdsourcingRole struct {
	ID          uuid.UUID `json:"id"`
	JobID       uuid.UUID `json:"job_id"`
	Title       string    `json:"title"`
	Skills      []string  `json:"skills"`
	BudgetCents int64     `json:"budget_cents"`
	Status      string    `json:"status"`
}

// TeamMember is a freelancer filling a role of a crowdsourced job. Each member
// carries its own milestone list.
type TeamMember struct {
	ID           uuid.UUID   `json:"id"`
	JobID        uuid.UUID   `json:"job_id"`
	FreelancerID uuid.UUID   `json:"freelancer_id"`
	Role         string      `json:"role"`
	Skills       []string    `json:"skills"`
	Status       string      `json:"status"`
	Milestones   []Milestone `json:"milestones"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Offer is a hire offer sent against a bid. Team offers carry the role they fill.
type Offer struct {
	ID           uuid.UUID         `json:"id"`
	JobID        uuid.UUID         `json:"job_id"`
	BidID        uuid.UUID         `json:"bid_id"`
	FreelancerID uuid.UUID         `json:"freelancer_id"`
	Role         string            `json:"role,omitempty"`
	Status       string            `json:"status"`
	Milestone    MilestoneTemplate `json:"milestone"`
	CreatedAt    time.Time         `json:"created_at"`
	RespondedAt  *time.Time        `json:"responded_at,omitempty"`
}

func (o *Offer) IsTeamOffer() bool { return o.Role != "" }

// FindOffer returns the offer with the given id, or nil.
func (j *Job) FindOffer(id uuid.UUID) *Offer {
	for i := range j.Offers {
		if j.Offers[i].ID == id {
			return &j.Offers[i]
		}
	}
	return nil
}

// FindRole returns the crowdsourcing role with the given title, or nil.
func (j *Job) FindRole(title string) *CrowdsourcingRole {
	for i := range j.Roles {
		if j.Roles[i].Title == title {
			return &j.Roles[i]
		}
	}
	return nil
}

// ActiveMember returns the active team entry of the freelancer, or nil.
func (j *Job) ActiveMember(freelancerID uuid.UUID) *TeamMember {
	for i := range j.Team {
		if j.Team[i].FreelancerID == freelancerID && j.Team[i].Status == TeamMemberActive {
			return &j.Team[i]
		}
	}
	return nil
}

// OpenForBids reports whether freelancers may still bid. Crowdsourced jobs
// stay open for bids while running as long as a role is open.
func (j *Job) OpenForBids() bool {
	if j.Status == JobStatusOpen {
		return true
	}
	if !j.IsCrowdsourced || j.Status != JobStatusInProgress {
		return false
	}
	for _, r := range j.Roles {
		if r.Status == RoleStatusOpen {
			return true
		}
	}
	return false
}

// ActiveMembers returns every active team entry of the freelancer. One
// freelancer may fill several roles on the same job.
func (j *Job) ActiveMembers(freelancerID uuid.UUID) []*TeamMember {
	var out []*TeamMember
	for i := range j.Team {
		if j.Team[i].FreelancerID == freelancerID && j.Team[i].Status == TeamMemberActive {
			out = append(out, &j.Team[i])
		}
	}
	return out
}

// IsHired reports whether the freelancer works on the job, either as the
// hired freelancer or as an active team member.
func (j *Job) IsHired(freelancerID uuid.UUID) bool {
	if j.IsCrowdsourced {
		return j.ActiveMember(freelancerID) != nil
	}
	return j.HiredFreelancerID != nil && *j.HiredFreelancerID == freelancerID
}
