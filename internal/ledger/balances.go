package ledger

import (
	"slices"

	"github.com/google/uuid"

	"github.com/gigmarket/backend/internal/models"
)

// floorSub subtracts b from a without going below zero. Out-of-order
// operations must never drive a bucket negative.
func floorSub(a, b int64) int64 {
	if b >= a {
		return 0
	}
	return a - b
}

// Reserve counts a newly escrowed milestone amount as in progress.
func Reserve(p *models.Payments, amount int64) {
	p.InProgressCents += amount
}

// Settle moves an approved milestone amount from in progress to pending.
func Settle(p *models.Payments, amount int64) {
	p.InProgressCents = floorSub(p.InProgressCents, amount)
	p.PendingCents += amount
}

// Release makes pending funds available.
func Release(p *models.Payments, amount int64) {
	p.PendingCents = floorSub(p.PendingCents, amount)
	p.AvailableCents += amount
}

// Refund drops a reserved amount that will not be paid out.
func Refund(p *models.Payments, amount int64) {
	p.InProgressCents = floorSub(p.InProgressCents, amount)
}

// Activate records the milestone as active on the hire entry. No-op if it is
// already tracked in either list.
func Activate(h *models.Hire, milestoneID uuid.UUID) bool {
	if slices.Contains(h.ActiveMilestones, milestoneID) || slices.Contains(h.ApprovedMilestones, milestoneID) {
		return false
	}
	h.ActiveMilestones = append(h.ActiveMilestones, milestoneID)
	return true
}

// MarkApproved moves the milestone from the active to the approved list.
// Returns false if it was already approved.
func MarkApproved(h *models.Hire, milestoneID uuid.UUID) bool {
	h.ActiveMilestones = remove(h.ActiveMilestones, milestoneID)
	if slices.Contains(h.ApprovedMilestones, milestoneID) {
		return false
	}
	h.ApprovedMilestones = append(h.ApprovedMilestones, milestoneID)
	return true
}

// Drop removes the milestone from the active list.
func Drop(h *models.Hire, milestoneID uuid.UUID) bool {
	n := len(h.ActiveMilestones)
	h.ActiveMilestones = remove(h.ActiveMilestones, milestoneID)
	return len(h.ActiveMilestones) != n
}

func remove(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
