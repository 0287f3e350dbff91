// Package handlers serves the hire, milestone and payment workflows over HTTP.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/gigmarket/backend/internal/apperr"
	"github.com/gigmarket/backend/internal/escrow"
	"github.com/gigmarket/backend/internal/middleware"
	"github.com/gigmarket/backend/internal/models"
	"github.com/gigmarket/backend/internal/respond"
)

// Payments is the subset of the escrow service exposed over HTTP.
type Payments interface {
	CreateDirectEscrow(ctx context.Context, clientID uuid.UUID, in escrow.DirectEscrowInput) (*models.Payment, error)
	ReleasePayment(ctx context.Context, clientID, paymentID uuid.UUID) (*models.Payment, error)
}

var _ Payments = (*escrow.Service)(nil)

type milestoneBody struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	Deadline    string `json:"deadline"`
}

func (b milestoneBody) template() (models.MilestoneTemplate, error) {
	deadline, err := parseDeadline(b.Deadline)
	if err != nil {
		return models.MilestoneTemplate{}, err
	}
	return models.MilestoneTemplate{
		Title:       b.Title,
		Description: b.Description,
		AmountCents: b.AmountCents,
		Deadline:    deadline,
	}, nil
}

// parseDeadline accepts RFC 3339 timestamps and plain dates.
func parseDeadline(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, apperr.Validation("deadline must be an RFC 3339 timestamp or a YYYY-MM-DD date", "deadline")
}

// caller returns the authenticated principal or writes 401.
func caller(w http.ResponseWriter, r *http.Request) (middleware.Principal, bool) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		respond.Fail(w, http.StatusUnauthorized, "unauthorized")
	}
	return p, ok
}

// pathIDs parses the named path wildcards, writing 400 on the first bad one.
func pathIDs(w http.ResponseWriter, r *http.Request, names ...string) ([]uuid.UUID, bool) {
	ids := make([]uuid.UUID, len(names))
	for i, name := range names {
		id, err := respond.PathID(r, name)
		if err != nil {
			respond.Error(w, r, nil, err)
			return nil, false
		}
		ids[i] = id
	}
	return ids, true
}
