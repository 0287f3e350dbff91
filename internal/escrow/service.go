package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gigmarket/backend/internal/apperr"
	"github.com/gigmarket/backend/internal/models"
)

// PaymentStore is the minimal payment repository interface for escrow.
type PaymentStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, p *models.Payment) error
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Payment, error)
	TransitionStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) (bool, error)
}

// BidStore is the subset of the bid repository used by direct escrow.
type BidStore interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Bid, error)
	TransitionMilestone(ctx context.Context, tx pgx.Tx, bidMilestoneID uuid.UUID, from, to string) (bool, error)
}

// JobStore is the subset of the job repository used by direct escrow.
type JobStore interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Job, error)
	SetPaymentVerified(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) error
}

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// MilestonePaymentInput reserves escrow for one job milestone.
type MilestonePaymentInput struct {
	JobID        uuid.UUID
	MilestoneID  uuid.UUID
	ClientID     uuid.UUID
	FreelancerID uuid.UUID
	AmountCents  int64
	Title        string
}

// DirectEscrowInput creates escrow against an accepted bid, optionally scoped
// to one of the bid's milestones.
type DirectEscrowInput struct {
	BidID          uuid.UUID
	BidMilestoneID *uuid.UUID
}

// Service manages escrow payment records.
type Service struct {
	Pool     TxBeginner
	Payments PaymentStore
	Bids     BidStore
	Jobs     JobStore
	Logger   *slog.Logger
}

func NewService(pool TxBeginner, payments PaymentStore, bids BidStore, jobs JobStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Pool: pool, Payments: payments, Bids: bids, Jobs: jobs, Logger: logger}
}

// CreateMilestonePayment reserves escrow for a job milestone under the
// milestone fee policy. Call within a transaction.
func (s *Service) CreateMilestonePayment(ctx context.Context, tx pgx.Tx, in MilestonePaymentInput) (*models.Payment, error) {
	if !models.ValidAmount(in.AmountCents) {
		return nil, apperr.Validation("milestone amount must be positive and at most the amount limit", "amount")
	}
	milestoneID := in.MilestoneID
	p := &models.Payment{
		ID:           uuid.New(),
		JobID:        in.JobID,
		MilestoneID:  &milestoneID,
		ClientID:     in.ClientID,
		FreelancerID: in.FreelancerID,
		Status:       models.PaymentEscrow,
	}
	MilestoneFeePolicy.apply(p, in.AmountCents)
	p.Invoice = MilestoneFeePolicy.Invoice("Milestone: "+in.Title, in.AmountCents)
	if err := s.Payments.CreateTx(ctx, tx, p); err != nil {
		return nil, fmt.Errorf("create milestone payment: %w", err)
	}
	return p, nil
}

// MarkReleased flips a milestone payment from escrow to released once the
// milestone is approved. Call within a transaction.
func (s *Service) MarkReleased(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID) error {
	return s.transition(ctx, tx, paymentID, models.PaymentEscrow, models.PaymentReleased)
}

// MarkRefunded flips a milestone payment from escrow to refunded. Call within a transaction.
func (s *Service) MarkRefunded(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID) error {
	return s.transition(ctx, tx, paymentID, models.PaymentEscrow, models.PaymentRefunded)
}

func (s *Service) transition(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID, from, to string) error {
	ok, err := s.Payments.TransitionStatus(ctx, tx, paymentID, from, to)
	if err != nil {
		return fmt.Errorf("payment %s %s->%s: %w", paymentID, from, to, err)
	}
	if !ok {
		return apperr.InvalidState("payment %s is not in %s", paymentID, from)
	}
	return nil
}

// CreateDirectEscrow reserves escrow against an accepted bid under the direct
// escrow fee policy, marks the job's payment as verified and starts the
// referenced bid milestone.
func (s *Service) CreateDirectEscrow(ctx context.Context, clientID uuid.UUID, in DirectEscrowInput) (*models.Payment, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	bid, err := s.Bids.GetByIDForUpdate(ctx, tx, in.BidID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("bid %s not found", in.BidID)
	}
	if err != nil {
		return nil, fmt.Errorf("load bid: %w", err)
	}
	job, err := s.Jobs.GetByIDForUpdate(ctx, tx, bid.JobID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("job %s not found", bid.JobID)
	}
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if job.ClientID != clientID {
		return nil, apperr.Forbidden("only the job's client can fund escrow")
	}
	if bid.Status != models.BidAccepted {
		return nil, apperr.InvalidState("bid is %s, escrow requires an accepted bid", bid.Status)
	}

	amount := bid.AmountCents
	description := "Bid: " + job.Title
	if in.BidMilestoneID != nil {
		bm := bid.FindMilestone(*in.BidMilestoneID)
		if bm == nil {
			return nil, apperr.NotFound("bid milestone %s not found", *in.BidMilestoneID)
		}
		amount = bm.AmountCents
		description = "Bid milestone: " + bm.Title
	}
	if !models.ValidAmount(amount) {
		return nil, apperr.Validation("escrow amount must be positive and at most the amount limit", "amount")
	}

	bidID := bid.ID
	p := &models.Payment{
		ID:             uuid.New(),
		JobID:          job.ID,
		BidID:          &bidID,
		BidMilestoneID: in.BidMilestoneID,
		ClientID:       clientID,
		FreelancerID:   bid.FreelancerID,
		Status:         models.PaymentEscrow,
	}
	DirectEscrowFeePolicy.apply(p, amount)
	p.Invoice = DirectEscrowFeePolicy.Invoice(description, amount)

	if err := s.Payments.CreateTx(ctx, tx, p); err != nil {
		return nil, fmt.Errorf("create escrow payment: %w", err)
	}
	if err := s.Jobs.SetPaymentVerified(ctx, tx, job.ID); err != nil {
		return nil, fmt.Errorf("mark payment verified: %w", err)
	}
	if in.BidMilestoneID != nil {
		ok, err := s.Bids.TransitionMilestone(ctx, tx, *in.BidMilestoneID, models.MilestonePending, models.MilestoneInProgress)
		if err != nil {
			return nil, fmt.Errorf("start bid milestone: %w", err)
		}
		if !ok {
			return nil, apperr.InvalidState("bid milestone %s is not pending", *in.BidMilestoneID)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit escrow: %w", err)
	}
	s.Logger.Info("direct escrow created", "payment_id", p.ID, "bid_id", bid.ID, "amount_cents", p.AmountCents, "fee_cents", p.ServiceFeeCents)
	return p, nil
}

// ReleasePayment completes a direct escrow payment and approves the bid
// milestone it funded. Milestone payments are released by milestone approval instead.
func (s *Service) ReleasePayment(ctx context.Context, clientID, paymentID uuid.UUID) (*models.Payment, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := s.Payments.GetByIDForUpdate(ctx, tx, paymentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("payment %s not found", paymentID)
	}
	if err != nil {
		return nil, fmt.Errorf("load payment: %w", err)
	}
	if p.ClientID != clientID {
		return nil, apperr.Forbidden("only the paying client can release this payment")
	}
	if p.FeePolicy != DirectEscrowFeePolicy.Name {
		return nil, apperr.InvalidState("milestone payments are released by approving the milestone")
	}
	if err := s.transition(ctx, tx, p.ID, models.PaymentEscrow, models.PaymentCompleted); err != nil {
		return nil, err
	}
	p.Status = models.PaymentCompleted
	if p.BidMilestoneID != nil {
		ok, err := s.Bids.TransitionMilestone(ctx, tx, *p.BidMilestoneID, models.MilestoneInProgress, models.MilestoneApproved)
		if err != nil {
			return nil, fmt.Errorf("approve bid milestone: %w", err)
		}
		if !ok {
			return nil, apperr.InvalidState("bid milestone %s is not in progress", *p.BidMilestoneID)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit release: %w", err)
	}
	s.Logger.Info("escrow released", "payment_id", p.ID, "amount_cents", p.AmountCents)
	return p, nil
}
