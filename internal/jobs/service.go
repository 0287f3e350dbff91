package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gigmarket/backend/internal/apperr"
	"github.com/gigmarket/backend/internal/models"
)

const defaultOpenLimit = 50

// JobStore persists jobs. *Repository implements it.
type JobStore interface {
	Create(ctx context.Context, j *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Job, error)
	ListOpen(ctx context.Context, limit int) ([]*models.Job, error)
}

// BidStore persists bids.
type BidStore interface {
	Create(ctx context.Context, b *models.Bid) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Bid, error)
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Bid, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) (bool, error)
}

type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// RoleInput describes one crowdsourcing role of a new job.
type RoleInput struct {
	Title       string
	Skills      []string
	BudgetCents int64
}

type CreateJobInput struct {
	Title          string
	Description    string
	Skills         []string
	BudgetCents    int64
	IsCrowdsourced bool
	Roles          []RoleInput
}

type BidMilestoneInput struct {
	Title       string
	AmountCents int64
}

type PlaceBidInput struct {
	AmountCents int64
	CoverLetter string
	Milestones  []BidMilestoneInput
}

type Service interface {
	CreateJob(ctx context.Context, clientID uuid.UUID, in CreateJobInput) (*models.Job, error)
	GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Job, error)
	ListOpen(ctx context.Context, skills []string) ([]*models.Job, error)
	PlaceBid(ctx context.Context, freelancerID, jobID uuid.UUID, in PlaceBidInput) (*models.Bid, error)
	ListBids(ctx context.Context, clientID, jobID uuid.UUID) ([]*models.Bid, error)
	WithdrawBid(ctx context.Context, freelancerID, bidID uuid.UUID) (*models.Bid, error)
}

type Deps struct {
	Pool   TxBeginner
	Jobs   JobStore
	Bids   BidStore
	Logger *slog.Logger
}

type service struct {
	Deps
	log *slog.Logger
}

func NewService(d Deps) *service {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	return &service{Deps: d, log: log}
}

var _ Service = (*service)(nil)

func (s *service) CreateJob(ctx context.Context, clientID uuid.UUID, in CreateJobInput) (*models.Job, error) {
	if in.IsCrowdsourced && len(in.Roles) == 0 {
		return nil, apperr.Validation("a crowdsourced job needs at least one role", "roles")
	}
	if !in.IsCrowdsourced && len(in.Roles) > 0 {
		return nil, apperr.Validation("only crowdsourced jobs have roles", "roles")
	}
	if !models.ValidAmount(in.BudgetCents) {
		return nil, apperr.Validation("budget must be positive and at most the amount limit", "budget_cents")
	}
	j := &models.Job{
		ID:             uuid.New(),
		ClientID:       clientID,
		Title:          in.Title,
		Description:    in.Description,
		Skills:         normalizeSkills(in.Skills),
		BudgetCents:    in.BudgetCents,
		Status:         models.JobStatusOpen,
		IsCrowdsourced: in.IsCrowdsourced,
	}
	seen := map[string]bool{}
	for _, r := range in.Roles {
		if seen[r.Title] {
			return nil, apperr.Validation(fmt.Sprintf("duplicate role %q", r.Title), "roles")
		}
		seen[r.Title] = true
		if !models.ValidAmount(r.BudgetCents) {
			return nil, apperr.Validation(fmt.Sprintf("role %q budget is out of range", r.Title), "roles")
		}
		j.Roles = append(j.Roles, models.CrowdsourcingRole{
			ID:          uuid.New(),
			Title:       r.Title,
			Skills:      normalizeSkills(r.Skills),
			BudgetCents: r.BudgetCents,
			Status:      models.RoleStatusOpen,
		})
	}
	if err := s.Jobs.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.log.Info("job created", "job_id", j.ID, "client_id", clientID, "crowdsourced", j.IsCrowdsourced)
	return j, nil
}

func (s *service) GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	j, err := s.Jobs.GetByID(ctx, jobID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("job %s not found", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	return j, nil
}

func (s *service) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Job, error) {
	return s.Jobs.ListByClient(ctx, clientID)
}

func (s *service) ListOpen(ctx context.Context, skills []string) ([]*models.Job, error) {
	list, err := s.Jobs.ListOpen(ctx, defaultOpenLimit)
	if err != nil {
		return nil, fmt.Errorf("list open jobs: %w", err)
	}
	return RankForSkills(list, skills), nil
}

func (s *service) PlaceBid(ctx context.Context, freelancerID, jobID uuid.UUID, in PlaceBidInput) (*models.Bid, error) {
	if !models.ValidAmount(in.AmountCents) {
		return nil, apperr.Validation("bid amount must be positive and at most the amount limit", "amount_cents")
	}
	j, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.ClientID == freelancerID {
		return nil, apperr.Forbidden("cannot bid on your own job")
	}
	if !j.OpenForBids() {
		return nil, apperr.InvalidState("job is %s and no longer takes bids", j.Status)
	}
	existing, err := s.Bids.ListByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	for _, b := range existing {
		if b.FreelancerID == freelancerID && b.Status == models.BidPending {
			return nil, apperr.InvalidState("you already have a pending bid on this job")
		}
	}
	if len(in.Milestones) > 0 {
		var sum int64
		for _, m := range in.Milestones {
			if !models.ValidAmount(m.AmountCents) || m.Title == "" {
				return nil, apperr.Validation("bid milestones need a title and a positive amount", "milestones")
			}
			sum += m.AmountCents
		}
		if sum != in.AmountCents {
			return nil, apperr.Validation("bid milestones must add up to the bid amount", "milestones")
		}
	}

	b := &models.Bid{
		ID:           uuid.New(),
		JobID:        jobID,
		FreelancerID: freelancerID,
		AmountCents:  in.AmountCents,
		CoverLetter:  in.CoverLetter,
		Status:       models.BidPending,
	}
	for _, m := range in.Milestones {
		b.Milestones = append(b.Milestones, models.BidMilestone{
			ID:          uuid.New(),
			Title:       m.Title,
			AmountCents: m.AmountCents,
			Status:      models.MilestonePending,
		})
	}
	if err := s.Bids.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("create bid: %w", err)
	}
	s.log.Info("bid placed", "bid_id", b.ID, "job_id", jobID, "freelancer_id", freelancerID)
	return b, nil
}

func (s *service) ListBids(ctx context.Context, clientID, jobID uuid.UUID) ([]*models.Bid, error) {
	j, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.ClientID != clientID {
		return nil, apperr.Forbidden("only the job's client can see its bids")
	}
	return s.Bids.ListByJob(ctx, jobID)
}

func (s *service) WithdrawBid(ctx context.Context, freelancerID, bidID uuid.UUID) (*models.Bid, error) {
	b, err := s.Bids.GetByID(ctx, bidID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("bid %s not found", bidID)
	}
	if err != nil {
		return nil, fmt.Errorf("load bid: %w", err)
	}
	if b.FreelancerID != freelancerID {
		return nil, apperr.Forbidden("not your bid")
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	ok, err := s.Bids.UpdateStatus(ctx, tx, bidID, models.BidPending, models.BidWithdrawn)
	if err != nil {
		return nil, fmt.Errorf("withdraw bid: %w", err)
	}
	if !ok {
		return nil, apperr.InvalidState("bid is %s and cannot be withdrawn", b.Status)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	b.Status = models.BidWithdrawn
	b.UpdatedAt = time.Now()
	return b, nil
}
