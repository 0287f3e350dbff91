// Package milestones runs the milestone lifecycle of a running hire:
// pending -> in-progress -> submitted -> approved | rejected.
package milestones

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gigmarket/backend/internal/apperr"
	"github.com/gigmarket/backend/internal/escrow"
	"github.com/gigmarket/backend/internal/ledger"
	"github.com/gigmarket/backend/internal/metrics"
	"github.com/gigmarket/backend/internal/models"
	"github.com/gigmarket/backend/internal/notify"
	"github.com/gigmarket/backend/internal/release"
)

// JobStore is the subset of the job repository the milestone workflow needs.
type JobStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Job, error)
	InsertMilestone(ctx context.Context, tx pgx.Tx, m *models.Milestone) error
	TransitionMilestone(ctx context.Context, tx pgx.Tx, m *models.Milestone, from string) (bool, error)
	AddPaid(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, amountCents int64) error
}

type Escrow interface {
	CreateMilestonePayment(ctx context.Context, tx pgx.Tx, in escrow.MilestonePaymentInput) (*models.Payment, error)
	MarkReleased(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID) error
	MarkRefunded(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID) error
}

type Ledger interface {
	ReserveMilestone(ctx context.Context, tx pgx.Tx, e ledger.Entry) error
	SettleMilestone(ctx context.Context, tx pgx.Tx, e ledger.Entry) error
	RefundMilestone(ctx context.Context, tx pgx.Tx, e ledger.Entry) error
}

// Scheduler schedules the delayed pending -> available move.
type Scheduler interface {
	Schedule(ctx context.Context, tx pgx.Tx, in release.ScheduleInput) (*models.FundRelease, error)
}

type Announcer interface {
	Announce(ctx context.Context, msgs ...notify.Message)
}

type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Service interface {
	Add(ctx context.Context, clientID, jobID, freelancerID uuid.UUID, role string, t models.MilestoneTemplate) (*models.Milestone, error)
	Start(ctx context.Context, freelancerID, jobID, milestoneID uuid.UUID) (*models.Milestone, error)
	Submit(ctx context.Context, freelancerID, jobID, milestoneID uuid.UUID, message string, attachments []string) (*models.Milestone, error)
	Approve(ctx context.Context, clientID, jobID, milestoneID uuid.UUID) (*models.Milestone, error)
	Reject(ctx context.Context, clientID, jobID, milestoneID uuid.UUID, reason string) (*models.Milestone, error)
	Get(ctx context.Context, jobID, milestoneID uuid.UUID) (*models.Milestone, error)
}

// Deps bundles the collaborators of the milestone service.
type Deps struct {
	Pool      TxBeginner
	Jobs      JobStore
	Escrow    Escrow
	Ledger    Ledger
	Scheduler Scheduler
	Announcer Announcer
	Now       func() time.Time
	Logger    *slog.Logger
}

type service struct {
	Deps
}

func NewService(d Deps) *service {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &service{Deps: d}
}

var _ Service = (*service)(nil)

// located is a milestone found on a locked job.
type located struct {
	job       *models.Job
	container Container
	milestone *models.Milestone
	member    *models.TeamMember
}

func (l located) role() string {
	if l.member != nil {
		return l.member.Role
	}
	return ""
}

func (l located) entry() ledger.Entry {
	return ledger.Entry{
		JobID:          l.job.ID,
		JobTitle:       l.job.Title,
		JobBudgetCents: l.job.BudgetCents,
		ClientID:       l.job.ClientID,
		FreelancerID:   l.milestone.FreelancerID,
		Role:           l.role(),
		MilestoneID:    l.milestone.ID,
		AmountCents:    l.milestone.AmountCents,
	}
}

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

func (s *service) locate(ctx context.Context, tx pgx.Tx, jobID, milestoneID uuid.UUID) (located, error) {
	job, err := s.lockJob(ctx, tx, jobID)
	if err != nil {
		return located{}, err
	}
	c := ContainerFor(job)
	m, tm := c.Find(milestoneID)
	if m == nil {
		return located{}, apperr.NotFound("milestone %s not found", milestoneID)
	}
	return located{job: job, container: c, milestone: m, member: tm}, nil
}

// transition writes the milestone if it is still in from.
func (s *service) transition(ctx context.Context, tx pgx.Tx, m *models.Milestone, from string) error {
	ok, err := s.Jobs.TransitionMilestone(ctx, tx, m, from)
	if err != nil {
		return fmt.Errorf("update milestone: %w", err)
	}
	if !ok {
		return apperr.InvalidState("milestone is no longer %s", from)
	}
	return nil
}

// Add reserves escrow for a new milestone and attaches it to the freelancer.
// On crowdsourced jobs role selects the team entry; it may be empty when the
// freelancer fills a single role.
func (s *service) Add(ctx context.Context, clientID, jobID, freelancerID uuid.UUID, role string, t models.MilestoneTemplate) (*models.Milestone, error) {
	if missing := t.Missing(); len(missing) > 0 {
		return nil, apperr.Validation("missing required milestone fields", missing...)
	}
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
		return nil, apperr.Forbidden("only the job's client can add milestones")
	}
	if job.Status != models.JobStatusInProgress {
		return nil, apperr.InvalidState("job is %s, milestones can only be added to in-progress jobs", job.Status)
	}
	if freelancerID == uuid.Nil {
		if job.IsCrowdsourced || job.HiredFreelancerID == nil {
			return nil, apperr.Validation("freelancer_id is required for this job", "freelancer_id")
		}
		freelancerID = *job.HiredFreelancerID
	}
	if !job.IsHired(freelancerID) {
		return nil, apperr.InvalidState("freelancer %s is not hired on this job", freelancerID)
	}
	var member *models.TeamMember
	if job.IsCrowdsourced {
		if member, err = pickMember(job, freelancerID, role); err != nil {
			return nil, err
		}
	}

	m := &models.Milestone{
		ID:           uuid.New(),
		JobID:        job.ID,
		FreelancerID: freelancerID,
		Title:        strings.TrimSpace(t.Title),
		Description:  t.Description,
		AmountCents:  t.AmountCents,
		Deadline:     t.Deadline,
		Status:       models.MilestonePending,
	}
	if member != nil {
		id := member.ID
		m.TeamMemberID = &id
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
	e := located{job: job, milestone: m, member: member}.entry()
	if err := s.Ledger.ReserveMilestone(ctx, tx, e); err != nil {
		return nil, apperr.AsDownstream("ledger update failed", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit add milestone: %w", err)
	}

	s.Logger.Info("milestone added", "job_id", job.ID, "milestone_id", m.ID, "amount_cents", m.AmountCents)
	s.Announcer.Announce(ctx, notify.Message{
		RecipientID: freelancerID,
		Type:        models.NotifyMilestoneAdded,
		Title:       "New milestone",
		Body:        fmt.Sprintf("A new milestone %q was added to %q.", m.Title, job.Title),
		Subject:     "New milestone added",
		Data:        map[string]any{"job_id": job.ID, "milestone_id": m.ID},
	})
	return m, nil
}

// pickMember returns the active team entry the milestone belongs to.
func pickMember(job *models.Job, freelancerID uuid.UUID, role string) (*models.TeamMember, error) {
	members := job.ActiveMembers(freelancerID)
	if role == "" {
		if len(members) > 1 {
			return nil, apperr.Validation("freelancer fills several roles on this job, role is required", "role")
		}
		return members[0], nil
	}
	for _, tm := range members {
		if tm.Role == role {
			return tm, nil
		}
	}
	return nil, apperr.InvalidState("freelancer %s is not hired as %s on this job", freelancerID, role)
}

func (s *service) Start(ctx context.Context, freelancerID, jobID, milestoneID uuid.UUID) (*models.Milestone, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	loc, err := s.locate(ctx, tx, jobID, milestoneID)
	if err != nil {
		return nil, err
	}
	if !loc.container.Owns(freelancerID, milestoneID) {
		return nil, apperr.Forbidden("milestone belongs to another freelancer")
	}
	m := loc.milestone
	if m.Status != models.MilestonePending {
		return nil, apperr.InvalidState("milestone is %s, only pending milestones can be started", m.Status)
	}
	m.Status = models.MilestoneInProgress
	if err := s.transition(ctx, tx, m, models.MilestonePending); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit start milestone: %w", err)
	}
	return m, nil
}

func (s *service) Submit(ctx context.Context, freelancerID, jobID, milestoneID uuid.UUID, message string, attachments []string) (*models.Milestone, error) {
	if strings.TrimSpace(message) == "" {
		return nil, apperr.Validation("submission message is required", "message")
	}
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	loc, err := s.locate(ctx, tx, jobID, milestoneID)
	if err != nil {
		return nil, err
	}
	if !loc.container.Owns(freelancerID, milestoneID) {
		return nil, apperr.Forbidden("milestone belongs to another freelancer")
	}
	m := loc.milestone
	if m.Status != models.MilestoneInProgress {
		return nil, apperr.InvalidState("milestone is %s, only in-progress milestones can be submitted", m.Status)
	}
	if attachments == nil {
		attachments = []string{}
	}
	m.Status = models.MilestoneSubmitted
	m.Submission = &models.Submission{Message: message, Attachments: attachments, SubmittedAt: s.Now()}
	if err := s.transition(ctx, tx, m, models.MilestoneInProgress); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit submit milestone: %w", err)
	}

	s.Announcer.Announce(ctx, notify.Message{
		RecipientID: loc.job.ClientID,
		Type:        models.NotifyMilestoneSubmit,
		Title:       "Milestone submitted",
		Body:        fmt.Sprintf("Milestone %q on %q was submitted for review.", m.Title, loc.job.Title),
		Subject:     "Milestone submitted for review",
		Data:        map[string]any{"job_id": loc.job.ID, "milestone_id": m.ID},
	})
	return m, nil
}

func (s *service) Approve(ctx context.Context, clientID, jobID, milestoneID uuid.UUID) (*models.Milestone, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	loc, err := s.locate(ctx, tx, jobID, milestoneID)
	if err != nil {
		return nil, err
	}
	if loc.job.ClientID != clientID {
		return nil, apperr.Forbidden("only the job's client can approve milestones")
	}
	m := loc.milestone
	if m.Status != models.MilestoneSubmitted {
		return nil, apperr.InvalidState("milestone is %s, only submitted milestones can be approved", m.Status)
	}
	now := s.Now()
	m.Status = models.MilestoneApproved
	m.ApprovalDate = &now
	if err := s.transition(ctx, tx, m, models.MilestoneSubmitted); err != nil {
		return nil, err
	}
	if err := s.Ledger.SettleMilestone(ctx, tx, loc.entry()); err != nil {
		return nil, apperr.AsDownstream("ledger update failed", err)
	}
	if err := s.Jobs.AddPaid(ctx, tx, loc.job.ID, m.AmountCents); err != nil {
		return nil, fmt.Errorf("update job paid: %w", err)
	}
	if m.PaymentID != nil {
		if err := s.Escrow.MarkReleased(ctx, tx, *m.PaymentID); err != nil {
			return nil, apperr.AsDownstream("escrow release failed", err)
		}
	}
	if _, err := s.Scheduler.Schedule(ctx, tx, release.ScheduleInput{
		FreelancerID: m.FreelancerID,
		JobID:        loc.job.ID,
		MilestoneID:  m.ID,
		AmountCents:  m.AmountCents,
		ApprovedAt:   now,
	}); err != nil {
		return nil, apperr.AsDownstream("scheduling fund release failed", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit approve milestone: %w", err)
	}

	metrics.MilestonesApproved.Inc()
	s.Logger.Info("milestone approved", "job_id", loc.job.ID, "milestone_id", m.ID, "amount_cents", m.AmountCents)
	s.Announcer.Announce(ctx, notify.Message{
		RecipientID: m.FreelancerID,
		Type:        models.NotifyMilestoneApproved,
		Title:       "Milestone approved",
		Body:        fmt.Sprintf("Milestone %q on %q was approved. Funds become available in 3 days.", m.Title, loc.job.Title),
		Subject:     "Milestone approved",
		Data:        map[string]any{"job_id": loc.job.ID, "milestone_id": m.ID, "amount_cents": m.AmountCents},
		DedupKey:    "milestone_approved:" + m.ID.String(),
	})
	return m, nil
}

func (s *service) Reject(ctx context.Context, clientID, jobID, milestoneID uuid.UUID, reason string) (*models.Milestone, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	loc, err := s.locate(ctx, tx, jobID, milestoneID)
	if err != nil {
		return nil, err
	}
	if loc.job.ClientID != clientID {
		return nil, apperr.Forbidden("only the job's client can reject milestones")
	}
	m := loc.milestone
	if m.Status != models.MilestoneSubmitted {
		return nil, apperr.InvalidState("milestone is %s, only submitted milestones can be rejected", m.Status)
	}
	m.Status = models.MilestoneRejected
	if err := s.transition(ctx, tx, m, models.MilestoneSubmitted); err != nil {
		return nil, err
	}
	if err := s.Ledger.RefundMilestone(ctx, tx, loc.entry()); err != nil {
		return nil, apperr.AsDownstream("ledger update failed", err)
	}
	if m.PaymentID != nil {
		if err := s.Escrow.MarkRefunded(ctx, tx, *m.PaymentID); err != nil {
			return nil, apperr.AsDownstream("escrow refund failed", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reject milestone: %w", err)
	}

	body := fmt.Sprintf("Milestone %q on %q was rejected.", m.Title, loc.job.Title)
	if reason = strings.TrimSpace(reason); reason != "" {
		body += " Reason: " + reason
	}
	s.Announcer.Announce(ctx, notify.Message{
		RecipientID: m.FreelancerID,
		Type:        models.NotifyMilestoneRejected,
		Title:       "Milestone rejected",
		Body:        body,
		Subject:     "Milestone rejected",
		Data:        map[string]any{"job_id": loc.job.ID, "milestone_id": m.ID},
	})
	return m, nil
}

func (s *service) Get(ctx context.Context, jobID, milestoneID uuid.UUID) (*models.Milestone, error) {
	job, err := s.Jobs.GetByID(ctx, jobID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("job %s not found", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	m, _ := ContainerFor(job).Find(milestoneID)
	if m == nil {
		return nil, apperr.NotFound("milestone %s not found", milestoneID)
	}
	return m, nil
}
