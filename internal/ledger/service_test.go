package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gigmarket/backend/internal/apperr"
	"github.com/gigmarket/backend/internal/memstore"
	"github.com/gigmarket/backend/internal/models"
)

type fixture struct {
	db    *memstore.DB
	svc   *Service
	entry Entry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := memstore.New()
	client, freelancer := uuid.New(), uuid.New()
	db.Users.Put(&models.User{ID: client, Name: "Cleo", Role: models.RoleClient})
	db.Users.Put(&models.User{ID: freelancer, Name: "Fay", Role: models.RoleFreelancer, Skills: []string{"sql"}})
	return &fixture{
		db:  db,
		svc: NewService(db.Users, db.Hires),
		entry: Entry{
			JobID:          uuid.New(),
			JobTitle:       "Reporting",
			JobBudgetCents: 90000,
			ClientID:       client,
			FreelancerID:   freelancer,
			MilestoneID:    uuid.New(),
			AmountCents:    30000,
		},
	}
}

// run executes fn in its own committed transaction.
func (f *fixture) run(t *testing.T, fn func(ctx context.Context, tx pgx.Tx) error) error {
	t.Helper()
	ctx := context.Background()
	tx, err := f.db.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := fn(ctx, tx); err != nil {
		tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (f *fixture) hire(t *testing.T, userID uuid.UUID) models.Hire {
	t.Helper()
	hs := f.db.Hires.ForUser(userID)
	if len(hs) != 1 {
		t.Fatalf("hires for %s: got %d, want 1", userID, len(hs))
	}
	return hs[0]
}

func TestReserveMilestone_CreatesBothHireEntries(t *testing.T) {
	f := newFixture(t)
	if err := f.run(t, func(ctx context.Context, tx pgx.Tx) error { return f.svc.ReserveMilestone(ctx, tx, f.entry) }); err != nil {
		t.Fatalf("ReserveMilestone: %v", err)
	}

	fh := f.hire(t, f.entry.FreelancerID)
	if fh.Side != models.HireSideFreelancer || fh.CounterpartName != "Cleo" || fh.TotalBudgetCents != 30000 {
		t.Errorf("freelancer hire: %+v", fh)
	}
	ch := f.hire(t, f.entry.ClientID)
	if ch.Side != models.HireSideClient || ch.CounterpartSkills[0] != "sql" || ch.PendingPaymentCents != 30000 {
		t.Errorf("client hire: %+v", ch)
	}
	if p := f.db.Users.Get(f.entry.FreelancerID).Payments; p.InProgressCents != 30000 {
		t.Errorf("in progress: %d", p.InProgressCents)
	}
	if c := f.db.Users.Get(f.entry.ClientID); c.TotalSpentCents != 30000 {
		t.Errorf("client spent: %d", c.TotalSpentCents)
	}

	err := f.run(t, func(ctx context.Context, tx pgx.Tx) error { return f.svc.ReserveMilestone(ctx, tx, f.entry) })
	if !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("second reserve: got %v", err)
	}
}

func TestSettleMilestone_MovesOnce(t *testing.T) {
	f := newFixture(t)
	settle := func(ctx context.Context, tx pgx.Tx) error { return f.svc.SettleMilestone(ctx, tx, f.entry) }
	if err := f.run(t, func(ctx context.Context, tx pgx.Tx) error { return f.svc.ReserveMilestone(ctx, tx, f.entry) }); err != nil {
		t.Fatalf("ReserveMilestone: %v", err)
	}
	if err := f.run(t, settle); err != nil {
		t.Fatalf("SettleMilestone: %v", err)
	}
	if err := f.run(t, settle); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("second settle: got %v", err)
	}

	u := f.db.Users.Get(f.entry.FreelancerID)
	if u.Payments != (models.Payments{PendingCents: 30000}) || u.TotalEarningsCents != 30000 {
		t.Errorf("freelancer: %+v earnings %d", u.Payments, u.TotalEarningsCents)
	}
	ch := f.hire(t, f.entry.ClientID)
	if ch.TotalPaidCents != 30000 || ch.PendingPaymentCents != 0 || len(ch.ApprovedMilestones) != 1 {
		t.Errorf("client hire: %+v", ch)
	}
}

func TestRefundMilestone(t *testing.T) {
	f := newFixture(t)
	if err := f.run(t, func(ctx context.Context, tx pgx.Tx) error { return f.svc.ReserveMilestone(ctx, tx, f.entry) }); err != nil {
		t.Fatalf("ReserveMilestone: %v", err)
	}
	if err := f.run(t, func(ctx context.Context, tx pgx.Tx) error { return f.svc.RefundMilestone(ctx, tx, f.entry) }); err != nil {
		t.Fatalf("RefundMilestone: %v", err)
	}
	if p := f.db.Users.Get(f.entry.FreelancerID).Payments; p != (models.Payments{}) {
		t.Errorf("freelancer balances: %+v", p)
	}
	if fh := f.hire(t, f.entry.FreelancerID); len(fh.ActiveMilestones) != 0 || fh.TotalBudgetCents != 0 {
		t.Errorf("freelancer hire: %+v", fh)
	}
}

func TestLedger_Guards(t *testing.T) {
	f := newFixture(t)

	e := f.entry
	e.AmountCents = 0
	err := f.run(t, func(ctx context.Context, tx pgx.Tx) error { return f.svc.ReserveMilestone(ctx, tx, e) })
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("zero amount: got %v", err)
	}

	e = f.entry
	e.FreelancerID = uuid.New()
	err = f.run(t, func(ctx context.Context, tx pgx.Tx) error { return f.svc.ReserveMilestone(ctx, tx, e) })
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown freelancer: got %v", err)
	}
}

func TestReserveMilestone_SaveFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.db.Fail("hires.save", errors.New("disk full"))
	err := f.run(t, func(ctx context.Context, tx pgx.Tx) error { return f.svc.ReserveMilestone(ctx, tx, f.entry) })
	if err == nil {
		t.Fatal("expected error")
	}
	if p := f.db.Users.Get(f.entry.FreelancerID).Payments; p.InProgressCents != 0 {
		t.Errorf("balances after rollback: %+v", p)
	}
}

func TestRoleSeparatesHireEntries(t *testing.T) {
	f := newFixture(t)
	design, dev := f.entry, f.entry
	design.Role, dev.Role = "designer", "developer"
	dev.MilestoneID = uuid.New()
	for _, e := range []Entry{design, dev} {
		if err := f.run(t, func(ctx context.Context, tx pgx.Tx) error { return f.svc.ReserveMilestone(ctx, tx, e) }); err != nil {
			t.Fatalf("ReserveMilestone %s: %v", e.Role, err)
		}
	}
	if n := len(f.db.Hires.ForUser(f.entry.FreelancerID)); n != 2 {
		t.Errorf("freelancer hires: got %d, want 2", n)
	}
}
