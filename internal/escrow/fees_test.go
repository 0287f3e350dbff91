package escrow

import (
	"testing"

	"github.com/gigmarket/backend/internal/models"
)

func TestFeePolicies(t *testing.T) {
	cases := []struct {
		name   string
		policy FeePolicy
		amount int64
		fee    int64
	}{
		{"milestone 10%", MilestoneFeePolicy, 30000, 3000},
		{"direct escrow 5%", DirectEscrowFeePolicy, 30000, 1500},
		{"rounds down", MilestoneFeePolicy, 999, 99},
		{"tiny amount", DirectEscrowFeePolicy, 19, 0},
		{"amount limit", MilestoneFeePolicy, models.MaxAmountCents, models.MaxAmountCents / 10},
		{"remainder keeps rounding", MilestoneFeePolicy, 4_000_000_000_000_000_099, 400_000_000_000_000_009},
		{"large amount", DirectEscrowFeePolicy, 8_000_000_000_000_000_000, 400_000_000_000_000_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var p models.Payment
			tc.policy.apply(&p, tc.amount)
			if p.ServiceFeeCents != tc.fee || p.TotalAmountCents != tc.amount+tc.fee || p.FeePolicy != tc.policy.Name {
				t.Errorf("got %+v", p)
			}
		})
	}
}

func TestInvoice(t *testing.T) {
	lines := MilestoneFeePolicy.Invoice("Milestone: Design", 20000)
	if len(lines) != 2 {
		t.Fatalf("lines: %d", len(lines))
	}
	if lines[0].AmountCents != 20000 || lines[1].Description != "Service fee" || lines[1].AmountCents != 2000 {
		t.Errorf("invoice: %+v", lines)
	}
}
