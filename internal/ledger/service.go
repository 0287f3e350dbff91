package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gigmarket/backend/internal/apperr"
	"github.com/gigmarket/backend/internal/models"
)

// UserStore is the minimal user repository interface for ledger updates.
type UserStore interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.User, error)
	UpdateBalances(ctx context.Context, tx pgx.Tx, u *models.User) error
}

// HireStore persists hire history entries. GetForUpdate returns nil, nil when
// no entry exists for the key.
type HireStore interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, key models.HireKey) (*models.Hire, error)
	Save(ctx context.Context, tx pgx.Tx, h *models.Hire) error
}

// Entry describes one milestone amount moving through both parties' ledgers.
type Entry struct {
	JobID          uuid.UUID
	JobTitle       string
	JobBudgetCents int64
	ClientID       uuid.UUID
	FreelancerID   uuid.UUID
	Role           string
	MilestoneID    uuid.UUID
	AmountCents    int64
}

// Service applies ledger primitives to user balances and hire entries inside
// the caller's transaction.
type Service struct {
	Users UserStore
	Hires HireStore
}

func NewService(users UserStore, hires HireStore) *Service {
	return &Service{Users: users, Hires: hires}
}

// ReserveMilestone counts a freshly escrowed milestone as in progress for the
// freelancer and as pending payment for the client.
func (s *Service) ReserveMilestone(ctx context.Context, tx pgx.Tx, e Entry) error {
	client, freelancer, err := s.lockParties(ctx, tx, e)
	if err != nil {
		return err
	}
	fh, ch, err := s.hires(ctx, tx, e, client, freelancer)
	if err != nil {
		return err
	}
	if !Activate(fh, e.MilestoneID) {
		return apperr.InvalidState("milestone %s is already reserved", e.MilestoneID)
	}
	Activate(ch, e.MilestoneID)
	fh.TotalBudgetCents += e.AmountCents
	ch.PendingPaymentCents += e.AmountCents

	Reserve(&freelancer.Payments, e.AmountCents)
	client.TotalSpentCents += e.AmountCents

	return s.save(ctx, tx, []*models.User{client, freelancer}, fh, ch)
}

// SettleMilestone moves an approved milestone from in progress to pending on
// the freelancer side and from pending payment to paid on the client side.
func (s *Service) SettleMilestone(ctx context.Context, tx pgx.Tx, e Entry) error {
	client, freelancer, err := s.lockParties(ctx, tx, e)
	if err != nil {
		return err
	}
	fh, ch, err := s.hires(ctx, tx, e, client, freelancer)
	if err != nil {
		return err
	}
	if !MarkApproved(fh, e.MilestoneID) {
		return apperr.InvalidState("milestone %s is already settled", e.MilestoneID)
	}
	MarkApproved(ch, e.MilestoneID)
	fh.EarnedCents += e.AmountCents
	ch.TotalPaidCents += e.AmountCents
	ch.PendingPaymentCents = floorSub(ch.PendingPaymentCents, e.AmountCents)

	Settle(&freelancer.Payments, e.AmountCents)
	freelancer.TotalEarningsCents += e.AmountCents

	return s.save(ctx, tx, []*models.User{client, freelancer}, fh, ch)
}

// RefundMilestone drops a reserved milestone that will not be paid.
func (s *Service) RefundMilestone(ctx context.Context, tx pgx.Tx, e Entry) error {
	client, freelancer, err := s.lockParties(ctx, tx, e)
	if err != nil {
		return err
	}
	fh, ch, err := s.hires(ctx, tx, e, client, freelancer)
	if err != nil {
		return err
	}
	if !Drop(fh, e.MilestoneID) {
		return apperr.InvalidState("milestone %s is not active", e.MilestoneID)
	}
	Drop(ch, e.MilestoneID)
	fh.TotalBudgetCents = floorSub(fh.TotalBudgetCents, e.AmountCents)
	ch.PendingPaymentCents = floorSub(ch.PendingPaymentCents, e.AmountCents)

	Refund(&freelancer.Payments, e.AmountCents)
	client.TotalSpentCents = floorSub(client.TotalSpentCents, e.AmountCents)

	return s.save(ctx, tx, []*models.User{client, freelancer}, fh, ch)
}

// ReleasePending makes a freelancer's pending funds available.
func (s *Service) ReleasePending(ctx context.Context, tx pgx.Tx, freelancerID uuid.UUID, amountCents int64) error {
	u, err := s.lock(ctx, tx, freelancerID)
	if err != nil {
		return err
	}
	Release(&u.Payments, amountCents)
	if err := s.Users.UpdateBalances(ctx, tx, u); err != nil {
		return fmt.Errorf("update balances %s: %w", u.ID, err)
	}
	return nil
}

// lockParties locks both user rows in deterministic order to avoid deadlock
// between concurrent workflows touching the same pair.
func (s *Service) lockParties(ctx context.Context, tx pgx.Tx, e Entry) (client, freelancer *models.User, err error) {
	if e.AmountCents <= 0 {
		return nil, nil, apperr.Validation("milestone amount must be positive", "amount")
	}
	ids := []uuid.UUID{e.ClientID, e.FreelancerID}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	locked := make(map[uuid.UUID]*models.User, 2)
	for _, id := range ids {
		u, err := s.lock(ctx, tx, id)
		if err != nil {
			return nil, nil, err
		}
		locked[id] = u
	}
	return locked[e.ClientID], locked[e.FreelancerID], nil
}

func (s *Service) lock(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.User, error) {
	u, err := s.Users.GetByIDForUpdate(ctx, tx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("user %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("lock user %s: %w", id, err)
	}
	return u, nil
}

// hires loads both hire entries for the entry, creating zeroed ones when absent.
func (s *Service) hires(ctx context.Context, tx pgx.Tx, e Entry, client, freelancer *models.User) (fh, ch *models.Hire, err error) {
	fh, err = s.Hires.GetForUpdate(ctx, tx, models.HireKey{UserID: freelancer.ID, JobID: e.JobID, CounterpartID: client.ID, Role: e.Role})
	if err != nil {
		return nil, nil, fmt.Errorf("load freelancer hire: %w", err)
	}
	if fh == nil {
		fh = &models.Hire{
			ID:              uuid.New(),
			UserID:          freelancer.ID,
			Side:            models.HireSideFreelancer,
			CounterpartID:   client.ID,
			CounterpartName: client.Name,
		}
	}
	ch, err = s.Hires.GetForUpdate(ctx, tx, models.HireKey{UserID: client.ID, JobID: e.JobID, CounterpartID: freelancer.ID, Role: e.Role})
	if err != nil {
		return nil, nil, fmt.Errorf("load client hire: %w", err)
	}
	if ch == nil {
		ch = &models.Hire{
			ID:                uuid.New(),
			UserID:            client.ID,
			Side:              models.HireSideClient,
			CounterpartID:     freelancer.ID,
			CounterpartName:   freelancer.Name,
			CounterpartSkills: freelancer.Skills,
		}
	}
	for _, h := range []*models.Hire{fh, ch} {
		h.JobID = e.JobID
		h.JobTitle = e.JobTitle
		h.JobBudgetCents = e.JobBudgetCents
		h.Role = e.Role
	}
	return fh, ch, nil
}

func (s *Service) save(ctx context.Context, tx pgx.Tx, users []*models.User, hires ...*models.Hire) error {
	for _, u := range users {
		if err := s.Users.UpdateBalances(ctx, tx, u); err != nil {
			return fmt.Errorf("update balances %s: %w", u.ID, err)
		}
	}
	for _, h := range hires {
		if err := s.Hires.Save(ctx, tx, h); err != nil {
			return fmt.Errorf("save hire %s: %w", h.ID, err)
		}
	}
	return nil
}
