// Package hiring turns a bid into a running hire through an offer the
// freelancer accepts or rejects.
package hiring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gigmarket/backend/internal/apperr"
	"github.com/gigmarket/backend/internal/escrow"
	"github.com/gigmarket/backend/internal/ledger"
	"github.com/gigmarket/backend/internal/metrics"
	"github.com/gigmarket/backend/internal/models"
	"github.com/gigmarket/backend/internal/notify"
)

// JobStore is the subset of the job repository the hire workflow needs.
type JobStore interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Job, error)
	InsertOffer(ctx context.Context, tx pgx.Tx, o *models.Offer) error
	TransitionOffer(ctx context.Context, tx pgx.Tx, offerID uuid.UUID, from, to string) (bool, error)
	MarkInProgress(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, hired *uuid.UUID) error
	FillRole(ctx context.Context, tx pgx.Tx, roleID uuid.UUID) (bool, error)
	InsertTeamMember(ctx context.Context, tx pgx.Tx, t *models.TeamMember) error
	InsertMilestone(ctx context.Context, tx pgx.Tx, m *models.Milestone) error
}

type BidStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Bid, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) (bool, error)
}

type Escrow interface {
	CreateMilestonePayment(ctx context.Context, tx pgx.Tx, in escrow.MilestonePaymentInput) (*models.Payment, error)
}

type Ledger interface {
	ReserveMilestone(ctx context.Context, tx pgx.Tx, e ledger.Entry) error
}

type Announcer interface {
	Announce(ctx context.Context, msgs ...notify.Message)
}

type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AcceptResult is everything an accepted offer created.
type AcceptResult struct {
	Offer      *models.Offer      `json:"offer"`
	Milestone  *models.Milestone  `json:"milestone"`
	Payment    *models.Payment    `json:"payment"`
	TeamMember *models.TeamMember `json:"team_member,omitempty"`
}

type Service interface {
	CreateOffer(ctx context.Context, clientID, jobID, bidID uuid.UUID, role string, t models.MilestoneTemplate) (*models.Offer, error)
	AcceptOffer(ctx context.Context, freelancerID, jobID, offerID uuid.UUID) (*AcceptResult, error)
	RejectOffer(ctx context.Context, freelancerID, jobID, offerID uuid.UUID) (*models.Offer, error)
}

type Deps struct {
	Pool      TxBeginner
	Jobs      JobStore
	Bids      BidStore
	Escrow    Escrow
	Ledger    Ledger
	Announcer Announcer
	Logger    *slog.Logger
}

type service struct {
	Deps
}

func NewService(d Deps) *service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &service{Deps: d}
}

var _ Service = (*service)(nil)

func (s *service) lockJob(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (*models.Job, error) {
	job, err := s.Jobs.GetByIDForUpdate(ctx, tx, jobID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("job %s not found", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	return job, nil
}

// CreateOffer sends a hire offer against a pending bid. No funds move until
// the freelancer accepts.
func (s *service) CreateOffer(ctx context.Context, clientID, jobID, bidID uuid.UUID, role string, t models.MilestoneTemplate) (*models.Offer, error) {
	if missing := t.Missing(); len(missing) > 0 {
		return nil, apperr.Validation("missing required milestone fields", missing...)
	}
	role = strings.TrimSpace(role)

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	job, err := s.lockJob(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ClientID != clientID {
		return nil, apperr.Forbidden("only the job's client can send offers")
	}
	if !offerable(job) {
		return nil, apperr.InvalidState("job is %s, offers can no longer be sent", job.Status)
	}

	bid, err := s.Bids.GetByID(ctx, bidID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("bid %s not found", bidID)
	}
	if err != nil {
		return nil, fmt.Errorf("load bid: %w", err)
	}
	if bid.JobID != job.ID {
		return nil, apperr.Validation("bid does not belong to this job", "bid_id")
	}
	if bid.Status != models.BidPending {
		return nil, apperr.InvalidState("bid is %s, offers require a pending bid", bid.Status)
	}

	if job.IsCrowdsourced {
		if role == "" {
			return nil, apperr.Validation("role is required for crowdsourced jobs", "role")
		}
		r := job.FindRole(role)
		if r == nil {
			return nil, apperr.NotFound("role %q not found on job", role)
		}
		if r.Status != models.RoleStatusOpen {
			return nil, apperr.InvalidState("role %q is already filled", role)
		}
	} else if role != "" {
		return nil, apperr.Validation("role is only allowed on crowdsourced jobs", "role")
	}

	t.Title = strings.TrimSpace(t.Title)
	o := &models.Offer{
		ID:           uuid.New(),
		JobID:        job.ID,
		BidID:        bid.ID,
		FreelancerID: bid.FreelancerID,
		Role:         role,
		Status:       models.OfferStatusPending,
		Milestone:    t,
	}
	if err := s.Jobs.InsertOffer(ctx, tx, o); err != nil {
		return nil, fmt.Errorf("insert offer: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit offer: %w", err)
	}

	s.Logger.Info("offer sent", "job_id", job.ID, "offer_id", o.ID, "freelancer_id", o.FreelancerID, "role", role)
	s.Announcer.Announce(ctx, notify.Message{
		RecipientID: o.FreelancerID,
		Type:        models.NotifyOffer,
		Title:       "New job offer",
		Body:        fmt.Sprintf("You received an offer for %q starting with milestone %q.", job.Title, t.Title),
		Subject:     "You received a job offer",
		Data:        map[string]any{"job_id": job.ID, "offer_id": o.ID},
	})
	return o, nil
}

// offerable reports whether the job can receive offers. Direct hires need an
// open job; crowdsourced jobs keep hiring for their open roles while running.
func offerable(j *models.Job) bool {
	if j.Status == models.JobStatusOpen {
		return true
	}
	return j.IsCrowdsourced && j.Status == models.JobStatusInProgress
}

// AcceptOffer turns a pending offer into a hire: the job starts, the first
// milestone is created in progress, its escrow is reserved and both parties'
// ledgers are updated, all in one transaction.
func (s *service) AcceptOffer(ctx context.Context, freelancerID, jobID, offerID uuid.UUID) (*AcceptResult, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	job, err := s.lockJob(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	o := job.FindOffer(offerID)
	if o == nil {
		return nil, apperr.NotFound("offer %s not found", offerID)
	}
	if o.FreelancerID != freelancerID {
		return nil, apperr.Forbidden("offer was sent to another freelancer")
	}
	if o.Status != models.OfferStatusPending {
		return nil, apperr.InvalidState("offer is %s, only pending offers can be accepted", o.Status)
	}
	if !offerable(job) {
		return nil, apperr.InvalidState("job is %s, offers can no longer be accepted", job.Status)
	}

	var role *models.CrowdsourcingRole
	if o.IsTeamOffer() {
		role = job.FindRole(o.Role)
		if role == nil {
			return nil, apperr.NotFound("role %q not found on job", o.Role)
		}
		if role.Status != models.RoleStatusOpen {
			return nil, apperr.InvalidState("role %q is already filled", o.Role)
		}
	} else if job.HiredFreelancerID != nil && *job.HiredFreelancerID != freelancerID {
		return nil, apperr.InvalidState("job already has a hired freelancer")
	}

	ok, err := s.Jobs.TransitionOffer(ctx, tx, o.ID, models.OfferStatusPending, models.OfferStatusAccepted)
	if err != nil {
		return nil, fmt.Errorf("accept offer: %w", err)
	}
	if !ok {
		return nil, apperr.InvalidState("offer is no longer pending")
	}
	o.Status = models.OfferStatusAccepted
	res := &AcceptResult{Offer: o}

	m := &models.Milestone{
		ID:           uuid.New(),
		JobID:        job.ID,
		FreelancerID: freelancerID,
		Title:        o.Milestone.Title,
		Description:  o.Milestone.Description,
		AmountCents:  o.Milestone.AmountCents,
		Deadline:     o.Milestone.Deadline,
		Status:       models.MilestoneInProgress,
	}

	if role != nil {
		filled, err := s.Jobs.FillRole(ctx, tx, role.ID)
		if err != nil {
			return nil, fmt.Errorf("fill role: %w", err)
		}
		if !filled {
			return nil, apperr.InvalidState("role %q is already filled", role.Title)
		}
		tm := &models.TeamMember{
			ID:           uuid.New(),
			JobID:        job.ID,
			FreelancerID: freelancerID,
			Role:         role.Title,
			Skills:       role.Skills,
			Status:       models.TeamMemberActive,
		}
		if err := s.Jobs.InsertTeamMember(ctx, tx, tm); err != nil {
			return nil, fmt.Errorf("insert team member: %w", err)
		}
		m.TeamMemberID = &tm.ID
		res.TeamMember = tm
		if err := s.Jobs.MarkInProgress(ctx, tx, job.ID, nil); err != nil {
			return nil, fmt.Errorf("start job: %w", err)
		}
	} else if err := s.Jobs.MarkInProgress(ctx, tx, job.ID, &freelancerID); err != nil {
		return nil, fmt.Errorf("start job: %w", err)
	}

	bidAccepted, err := s.Bids.UpdateStatus(ctx, tx, o.BidID, models.BidPending, models.BidAccepted)
	if err != nil {
		return nil, fmt.Errorf("accept bid: %w", err)
	}
	if !bidAccepted {
		return nil, apperr.InvalidState("bid %s is no longer pending", o.BidID)
	}

	p, err := s.Escrow.CreateMilestonePayment(ctx, tx, escrow.MilestonePaymentInput{
		JobID:        job.ID,
		MilestoneID:  m.ID,
		ClientID:     job.ClientID,
		FreelancerID: freelancerID,
		AmountCents:  m.AmountCents,
		Title:        m.Title,
	})
	if err != nil {
		return nil, apperr.AsDownstream("escrow reservation failed", err)
	}
	m.PaymentID = &p.ID
	if err := s.Jobs.InsertMilestone(ctx, tx, m); err != nil {
		return nil, fmt.Errorf("insert milestone: %w", err)
	}
	if err := s.Ledger.ReserveMilestone(ctx, tx, ledger.Entry{
		JobID:          job.ID,
		JobTitle:       job.Title,
		JobBudgetCents: job.BudgetCents,
		ClientID:       job.ClientID,
		FreelancerID:   freelancerID,
		Role:           o.Role,
		MilestoneID:    m.ID,
		AmountCents:    m.AmountCents,
	}); err != nil {
		return nil, apperr.AsDownstream("ledger update failed", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit accept: %w", err)
	}
	res.Milestone = m
	res.Payment = p

	metrics.RecordOfferAccepted(o.IsTeamOffer())
	s.Logger.Info("offer accepted", "job_id", job.ID, "offer_id", o.ID, "milestone_id", m.ID, "payment_id", p.ID)
	data := map[string]any{"job_id": job.ID, "offer_id": o.ID, "milestone_id": m.ID}
	s.Announcer.Announce(ctx,
		notify.Message{
			RecipientID: job.ClientID,
			Type:        models.NotifyOfferAccepted,
			Title:       "Offer accepted",
			Body:        fmt.Sprintf("Your offer for %q was accepted. Milestone %q is in progress.", job.Title, m.Title),
			Subject:     "Your offer was accepted",
			Data:        data,
		},
		notify.Message{
			RecipientID: freelancerID,
			Type:        models.NotifyPayment,
			Title:       "Milestone funded",
			Body:        fmt.Sprintf("Milestone %q on %q is funded in escrow. You can start working.", m.Title, job.Title),
			Subject:     "You're hired",
			Data:        data,
		},
	)
	return res, nil
}

// RejectOffer declines a pending offer. Nothing else changes.
func (s *service) RejectOffer(ctx context.Context, freelancerID, jobID, offerID uuid.UUID) (*models.Offer, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	job, err := s.lockJob(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	o := job.FindOffer(offerID)
	if o == nil {
		return nil, apperr.NotFound("offer %s not found", offerID)
	}
	if o.FreelancerID != freelancerID {
		return nil, apperr.Forbidden("offer was sent to another freelancer")
	}
	if o.Status != models.OfferStatusPending {
		return nil, apperr.InvalidState("offer is %s, only pending offers can be rejected", o.Status)
	}
	ok, err := s.Jobs.TransitionOffer(ctx, tx, o.ID, models.OfferStatusPending, models.OfferStatusRejected)
	if err != nil {
		return nil, fmt.Errorf("reject offer: %w", err)
	}
	if !ok {
		return nil, apperr.InvalidState("offer is no longer pending")
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reject: %w", err)
	}
	o.Status = models.OfferStatusRejected

	s.Announcer.Announce(ctx, notify.Message{
		RecipientID: job.ClientID,
		Type:        models.NotifyOfferRejected,
		Title:       "Offer declined",
		Body:        fmt.Sprintf("Your offer for %q was declined.", job.Title),
		Subject:     "Your offer was declined",
		Data:        map[string]any{"job_id": job.ID, "offer_id": o.ID},
	})
	return o, nil
}
