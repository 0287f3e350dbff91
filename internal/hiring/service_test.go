package hiring

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gigmarket/backend/internal/apperr"
	"github.com/gigmarket/backend/internal/escrow"
	"github.com/gigmarket/backend/internal/ledger"
	"github.com/gigmarket/backend/internal/memstore"
	"github.com/gigmarket/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

type fixture struct {
	db        *memstore.DB
	svc       *service
	announcer *memstore.Announcer
	client    uuid.UUID
	job       uuid.UUID
}

func newFixture(t *testing.T, crowdsourced bool, roles ...string) *fixture {
	t.Helper()
	db := memstore.New()
	f := &fixture{
		db:        db,
		announcer: &memstore.Announcer{},
		client:    uuid.New(),
		job:       uuid.New(),
	}
	db.Users.Put(&models.User{ID: f.client, Name: "Cleo", Role: models.RoleClient})
	j := &models.Job{
		ID:             f.job,
		ClientID:       f.client,
		Title:          "Landing page",
		BudgetCents:    500000,
		Status:         models.JobStatusOpen,
		IsCrowdsourced: crowdsourced,
	}
	for _, r := range roles {
		j.Roles = append(j.Roles, models.CrowdsourcingRole{
			ID: uuid.New(), Title: r, Skills: []string{r + "-skill"}, Status: models.RoleStatusOpen,
		})
	}
	db.Jobs.Put(j)

	f.svc = NewService(Deps{
		Pool:      db,
		Jobs:      db.Jobs,
		Bids:      db.Bids,
		Escrow:    escrow.NewService(db, db.Payments, db.Bids, db.Jobs, nil),
		Ledger:    ledger.NewService(db.Users, db.Hires),
		Announcer: f.announcer,
	})
	return f
}

// bidder adds a freelancer with a pending bid on the fixture job.
func (f *fixture) bidder(t *testing.T, name string) (freelancer, bid uuid.UUID) {
	t.Helper()
	freelancer, bid = uuid.New(), uuid.New()
	f.db.Users.Put(&models.User{ID: freelancer, Name: name, Role: models.RoleFreelancer})
	f.db.Bids.Put(&models.Bid{ID: bid, JobID: f.job, FreelancerID: freelancer, AmountCents: 50000, Status: models.BidPending})
	return freelancer, bid
}

func template(amount int64) models.MilestoneTemplate {
	return models.MilestoneTemplate{
		Title:       "Kickoff",
		Description: "First cut",
		AmountCents: amount,
		Deadline:    time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) offer(t *testing.T, bid uuid.UUID, role string, amount int64) *models.Offer {
	t.Helper()
	o, err := f.svc.CreateOffer(context.Background(), f.client, f.job, bid, role, template(amount))
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	return o
}

func wantKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("error: got %v, want kind %v", err, kind)
	}
}

// assertUntouched checks that no hire side effects were persisted.
func (f *fixture) assertUntouched(t *testing.T, freelancer, offerID uuid.UUID) {
	t.Helper()
	j := f.db.Jobs.Get(f.job)
	if j.Status != models.JobStatusOpen || j.HiredFreelancerID != nil {
		t.Errorf("job: status %q hired %v", j.Status, j.HiredFreelancerID)
	}
	if len(j.Milestones) != 0 || len(j.Team) != 0 {
		t.Errorf("job children: milestones %d team %d", len(j.Milestones), len(j.Team))
	}
	if o := j.FindOffer(offerID); o == nil || o.Status != models.OfferStatusPending {
		t.Errorf("offer: got %+v", o)
	}
	if len(f.db.Payments.All()) != 0 {
		t.Errorf("payments: got %d", len(f.db.Payments.All()))
	}
	if p := f.db.Users.Get(freelancer).Payments; p != (models.Payments{}) {
		t.Errorf("freelancer balances: %+v", p)
	}
	if len(f.db.Hires.ForUser(freelancer)) != 0 {
		t.Error("hire entries were written")
	}
}

// ---------------------------------------------------------------------------
// 1. CreateOffer
// ---------------------------------------------------------------------------

func TestCreateOffer_NotifiesFreelancer(t *testing.T) {
	f := newFixture(t, false)
	fl, bid := f.bidder(t, "Fay")
	o := f.offer(t, bid, "", 10000)

	if o.Status != models.OfferStatusPending || o.FreelancerID != fl {
		t.Errorf("offer: %+v", o)
	}
	if msgs := f.announcer.To(fl); len(msgs) != 1 || msgs[0].Type != models.NotifyOffer {
		t.Errorf("notifications: %+v", msgs)
	}
	if len(f.db.Payments.All()) != 0 {
		t.Error("offer must not move funds")
	}
}

func TestCreateOffer_Guards(t *testing.T) {
	f := newFixture(t, false)
	_, bid := f.bidder(t, "Fay")
	ctx := context.Background()

	_, err := f.svc.CreateOffer(ctx, f.client, f.job, bid, "", models.MilestoneTemplate{Title: "x"})
	wantKind(t, err, apperr.ErrValidation)

	_, err = f.svc.CreateOffer(ctx, uuid.New(), f.job, bid, "", template(100))
	wantKind(t, err, apperr.ErrForbidden)

	_, err = f.svc.CreateOffer(ctx, f.client, f.job, uuid.New(), "", template(100))
	wantKind(t, err, apperr.ErrNotFound)

	_, err = f.svc.CreateOffer(ctx, f.client, f.job, bid, "designer", template(100))
	wantKind(t, err, apperr.ErrValidation)

	other := uuid.New()
	f.db.Bids.Put(&models.Bid{ID: other, JobID: uuid.New(), FreelancerID: uuid.New(), Status: models.BidPending})
	_, err = f.svc.CreateOffer(ctx, f.client, f.job, other, "", template(100))
	wantKind(t, err, apperr.ErrValidation)
}

func TestCreateOffer_CrowdsourcedNeedsOpenRole(t *testing.T) {
	f := newFixture(t, true, "designer")
	_, bid := f.bidder(t, "Fay")
	ctx := context.Background()

	_, err := f.svc.CreateOffer(ctx, f.client, f.job, bid, "", template(100))
	wantKind(t, err, apperr.ErrValidation)

	_, err = f.svc.CreateOffer(ctx, f.client, f.job, bid, "tester", template(100))
	wantKind(t, err, apperr.ErrNotFound)

	if o := f.offer(t, bid, "designer", 100); !o.IsTeamOffer() {
		t.Error("expected team offer")
	}
}

// ---------------------------------------------------------------------------
// 2. AcceptOffer
// ---------------------------------------------------------------------------

func TestAcceptOffer_StartsHire(t *testing.T) {
	f := newFixture(t, false)
	fl, bid := f.bidder(t, "Fay")
	o := f.offer(t, bid, "", 20000)

	res, err := f.svc.AcceptOffer(context.Background(), fl, f.job, o.ID)
	if err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}

	j := f.db.Jobs.Get(f.job)
	if j.Status != models.JobStatusInProgress || j.HiredFreelancerID == nil || *j.HiredFreelancerID != fl {
		t.Errorf("job: status %q hired %v", j.Status, j.HiredFreelancerID)
	}
	if got := j.FindOffer(o.ID); got.Status != models.OfferStatusAccepted || got.RespondedAt == nil {
		t.Errorf("offer: %+v", got)
	}
	if len(j.Milestones) != 1 || j.Milestones[0].Status != models.MilestoneInProgress || j.Milestones[0].ID != res.Milestone.ID {
		t.Fatalf("milestones: %+v", j.Milestones)
	}
	if res.Payment.Status != models.PaymentEscrow || res.Payment.TotalAmountCents != 22000 {
		t.Errorf("payment: %+v", res.Payment)
	}
	if res.Milestone.PaymentID == nil || *res.Milestone.PaymentID != res.Payment.ID {
		t.Error("milestone not linked to payment")
	}
	if b := f.db.Bids.Get(bid); b.Status != models.BidAccepted {
		t.Errorf("bid status: %q", b.Status)
	}
	if p := f.db.Users.Get(fl).Payments; p.InProgressCents != 20000 {
		t.Errorf("in progress: %d", p.InProgressCents)
	}
	if c := f.db.Users.Get(f.client); c.TotalSpentCents != 20000 {
		t.Errorf("client spent: %d", c.TotalSpentCents)
	}
	hs := f.db.Hires.ForUser(fl)
	if len(hs) != 1 || len(hs[0].ActiveMilestones) != 1 || hs[0].CounterpartID != f.client {
		t.Errorf("freelancer hires: %+v", hs)
	}
	if len(f.announcer.To(f.client)) != 1 || len(f.announcer.Messages(models.NotifyPayment)) != 1 {
		t.Errorf("notifications: %+v", f.announcer.Messages(""))
	}
}

func TestAcceptOffer_Twice(t *testing.T) {
	f := newFixture(t, false)
	fl, bid := f.bidder(t, "Fay")
	o := f.offer(t, bid, "", 1000)
	ctx := context.Background()

	if _, err := f.svc.AcceptOffer(ctx, fl, f.job, o.ID); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	_, err := f.svc.AcceptOffer(ctx, fl, f.job, o.ID)
	wantKind(t, err, apperr.ErrInvalidState)

	if n := len(f.db.Payments.All()); n != 1 {
		t.Errorf("payments: got %d, want 1", n)
	}
	if p := f.db.Users.Get(fl).Payments; p.InProgressCents != 1000 {
		t.Errorf("in progress: got %d, want 1000", p.InProgressCents)
	}
}

func TestAcceptOffer_Guards(t *testing.T) {
	f := newFixture(t, false)
	fl, bid := f.bidder(t, "Fay")
	o := f.offer(t, bid, "", 1000)
	ctx := context.Background()

	_, err := f.svc.AcceptOffer(ctx, uuid.New(), f.job, o.ID)
	wantKind(t, err, apperr.ErrForbidden)

	_, err = f.svc.AcceptOffer(ctx, fl, f.job, uuid.New())
	wantKind(t, err, apperr.ErrNotFound)

	_, err = f.svc.AcceptOffer(ctx, fl, uuid.New(), o.ID)
	wantKind(t, err, apperr.ErrNotFound)

	f.assertUntouched(t, fl, o.ID)
}

func TestAcceptOffer_EscrowFailureRollsBack(t *testing.T) {
	f := newFixture(t, false)
	fl, bid := f.bidder(t, "Fay")
	o := f.offer(t, bid, "", 1000)
	f.db.Fail("payments.create", errors.New("connection reset by peer"))

	_, err := f.svc.AcceptOffer(context.Background(), fl, f.job, o.ID)
	wantKind(t, err, apperr.ErrDownstream)
	if msg := apperr.PublicMessage(err); msg != "escrow reservation failed" {
		t.Errorf("public message: %q", msg)
	}
	f.assertUntouched(t, fl, o.ID)
	if b := f.db.Bids.Get(bid); b.Status != models.BidPending {
		t.Errorf("bid status: %q", b.Status)
	}
	if n := len(f.announcer.Messages(models.NotifyOfferAccepted)); n != 0 {
		t.Errorf("notified on failed accept: %d", n)
	}

	f.db.Fail("payments.create", nil)
	if _, err := f.svc.AcceptOffer(context.Background(), fl, f.job, o.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestAcceptOffer_LedgerFailureRollsBack(t *testing.T) {
	f := newFixture(t, false)
	fl, bid := f.bidder(t, "Fay")
	o := f.offer(t, bid, "", 1000)
	f.db.Fail("users.update_balances", errors.New("deadlock detected"))

	_, err := f.svc.AcceptOffer(context.Background(), fl, f.job, o.ID)
	wantKind(t, err, apperr.ErrDownstream)
	f.assertUntouched(t, fl, o.ID)
}

// ---------------------------------------------------------------------------
// 3. Team offers
// ---------------------------------------------------------------------------

func TestAcceptTeamOffer_FillsRole(t *testing.T) {
	f := newFixture(t, true, "designer", "developer")
	fl, bid := f.bidder(t, "Fay")
	o := f.offer(t, bid, "designer", 3000)

	res, err := f.svc.AcceptOffer(context.Background(), fl, f.job, o.ID)
	if err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}
	if res.TeamMember == nil || res.TeamMember.Role != "designer" || res.TeamMember.Skills[0] != "designer-skill" {
		t.Fatalf("team member: %+v", res.TeamMember)
	}

	j := f.db.Jobs.Get(f.job)
	if j.Status != models.JobStatusInProgress || j.HiredFreelancerID != nil {
		t.Errorf("job: status %q hired %v", j.Status, j.HiredFreelancerID)
	}
	if r := j.FindRole("designer"); r.Status != models.RoleStatusFilled {
		t.Errorf("designer role: %q", r.Status)
	}
	if r := j.FindRole("developer"); r.Status != models.RoleStatusOpen {
		t.Errorf("developer role: %q", r.Status)
	}
	if len(j.Milestones) != 0 || len(j.Team) != 1 || len(j.Team[0].Milestones) != 1 {
		t.Errorf("milestone placement: job %d team %+v", len(j.Milestones), j.Team)
	}
	if hs := f.db.Hires.ForUser(fl); len(hs) != 1 || hs[0].Role != "designer" {
		t.Errorf("hires: %+v", hs)
	}

	// the developer role can still be hired while the job runs
	dev, devBid := f.bidder(t, "Dev")
	devOffer := f.offer(t, devBid, "developer", 2000)
	if _, err := f.svc.AcceptOffer(context.Background(), dev, f.job, devOffer.ID); err != nil {
		t.Fatalf("developer accept: %v", err)
	}
}

func TestAcceptTeamOffer_RoleAlreadyFilled(t *testing.T) {
	f := newFixture(t, true, "designer")
	a, bidA := f.bidder(t, "Ana")
	b, bidB := f.bidder(t, "Ben")
	offerA := f.offer(t, bidA, "designer", 1000)
	offerB := f.offer(t, bidB, "designer", 1000)
	ctx := context.Background()

	if _, err := f.svc.AcceptOffer(ctx, a, f.job, offerA.ID); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	_, err := f.svc.AcceptOffer(ctx, b, f.job, offerB.ID)
	wantKind(t, err, apperr.ErrInvalidState)

	j := f.db.Jobs.Get(f.job)
	if len(j.Team) != 1 || j.Team[0].FreelancerID != a {
		t.Errorf("team: %+v", j.Team)
	}
	if p := f.db.Users.Get(b).Payments; p != (models.Payments{}) {
		t.Errorf("second freelancer balances: %+v", p)
	}
	if o := j.FindOffer(offerB.ID); o.Status != models.OfferStatusPending {
		t.Errorf("second offer: %q", o.Status)
	}
}

func TestAcceptTeamOffer_ConcurrentAcceptsFillOnce(t *testing.T) {
	f := newFixture(t, true, "designer")
	type cand struct{ fl, offer uuid.UUID }
	var cands []cand
	for _, name := range []string{"Ana", "Ben", "Cal", "Dee"} {
		fl, bid := f.bidder(t, name)
		cands = append(cands, cand{fl, f.offer(t, bid, "designer", 1000).ID})
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for _, c := range cands {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.AcceptOffer(context.Background(), c.fl, f.job, c.offer); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("successful accepts: got %d, want 1", wins)
	}
	if j := f.db.Jobs.Get(f.job); len(j.Team) != 1 {
		t.Errorf("team size: %d", len(j.Team))
	}
	if n := len(f.db.Payments.All()); n != 1 {
		t.Errorf("payments: %d", n)
	}
}

// ---------------------------------------------------------------------------
// 4. RejectOffer
// ---------------------------------------------------------------------------

func TestRejectOffer(t *testing.T) {
	f := newFixture(t, false)
	fl, bid := f.bidder(t, "Fay")
	o := f.offer(t, bid, "", 1000)
	ctx := context.Background()

	_, err := f.svc.RejectOffer(ctx, uuid.New(), f.job, o.ID)
	wantKind(t, err, apperr.ErrForbidden)

	got, err := f.svc.RejectOffer(ctx, fl, f.job, o.ID)
	if err != nil {
		t.Fatalf("RejectOffer: %v", err)
	}
	if got.Status != models.OfferStatusRejected {
		t.Errorf("status: %q", got.Status)
	}
	j := f.db.Jobs.Get(f.job)
	if j.Status != models.JobStatusOpen || len(j.Milestones) != 0 {
		t.Errorf("job changed: %+v", j)
	}
	if msgs := f.announcer.Messages(models.NotifyOfferRejected); len(msgs) != 1 || msgs[0].RecipientID != f.client {
		t.Errorf("notifications: %+v", msgs)
	}

	_, err = f.svc.RejectOffer(ctx, fl, f.job, o.ID)
	wantKind(t, err, apperr.ErrInvalidState)
	_, err = f.svc.AcceptOffer(ctx, fl, f.job, o.ID)
	wantKind(t, err, apperr.ErrInvalidState)
}
