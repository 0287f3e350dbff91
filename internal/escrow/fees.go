package escrow

import "github.com/gigmarket/backend/internal/models"

// FeePolicy is a named service fee percentage. The two policies below are
// separate business rules.
type FeePolicy struct {
	Name    string
	Percent int64
}

var (
	// MilestoneFeePolicy applies to escrow reserved when a hire offer is accepted
	// or a milestone is added to a running hire.
	MilestoneFeePolicy = FeePolicy{Name: "milestone", Percent: 10}
	// DirectEscrowFeePolicy applies to escrow created directly against an accepted bid.
	DirectEscrowFeePolicy = FeePolicy{Name: "direct_escrow", Percent: 5}
)

// Fee returns the service fee for amountCents, rounded down to the cent.
// Whole hundreds and the remainder are scaled separately so the product
// cannot overflow.
func (f FeePolicy) Fee(amountCents int64) int64 {
	return amountCents/100*f.Percent + amountCents%100*f.Percent/100
}

// Invoice builds the line-item breakdown of a payment: principal plus fee.
func (f FeePolicy) Invoice(description string, amountCents int64) []models.InvoiceLine {
	return []models.InvoiceLine{
		{Description: description, AmountCents: amountCents},
		{Description: "Service fee", AmountCents: f.Fee(amountCents)},
	}
}

// apply fills the amount, fee and total fields of p under the policy.
func (f FeePolicy) apply(p *models.Payment, amountCents int64) {
	p.AmountCents = amountCents
	p.ServiceFeeCents = f.Fee(amountCents)
	p.TotalAmountCents = amountCents + p.ServiceFeeCents
	p.FeePolicy = f.Name
}
