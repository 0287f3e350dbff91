package ledger

import (
	"testing"

	"github.com/google/uuid"

	"github.com/gigmarket/backend/internal/models"
)

func TestBuckets_AmountLivesInOneBucket(t *testing.T) {
	var p models.Payments
	Reserve(&p, 300)
	if p != (models.Payments{InProgressCents: 300}) {
		t.Fatalf("after reserve: %+v", p)
	}
	Settle(&p, 300)
	if p != (models.Payments{PendingCents: 300}) {
		t.Fatalf("after settle: %+v", p)
	}
	Release(&p, 300)
	if p != (models.Payments{AvailableCents: 300}) {
		t.Fatalf("after release: %+v", p)
	}
}

func TestBuckets_NeverNegative(t *testing.T) {
	cases := []struct {
		name string
		op   func(*models.Payments, int64)
		want models.Payments
	}{
		{"settle without reserve", Settle, models.Payments{PendingCents: 50}},
		{"release without settle", Release, models.Payments{AvailableCents: 50}},
		{"refund without reserve", Refund, models.Payments{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var p models.Payments
			tc.op(&p, 50)
			if p != tc.want {
				t.Errorf("got %+v, want %+v", p, tc.want)
			}
		})
	}
}

func TestHireLists(t *testing.T) {
	var h models.Hire
	id := uuid.New()

	if !Activate(&h, id) {
		t.Fatal("first activate should succeed")
	}
	if Activate(&h, id) {
		t.Error("activate is not idempotent")
	}
	if !MarkApproved(&h, id) {
		t.Fatal("first approve should succeed")
	}
	if MarkApproved(&h, id) {
		t.Error("approve twice should report false")
	}
	if len(h.ActiveMilestones) != 0 || len(h.ApprovedMilestones) != 1 {
		t.Errorf("lists: active %v approved %v", h.ActiveMilestones, h.ApprovedMilestones)
	}
	if Activate(&h, id) {
		t.Error("approved milestone must not be reactivated")
	}
	if Drop(&h, id) {
		t.Error("drop of a non-active milestone should report false")
	}
}
