package release

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigmarket/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, fr *models.FundRelease) error {
	return tx.QueryRow(ctx, `
		INSERT INTO fund_releases (id, freelancer_id, job_id, milestone_id, amount_cents, due_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, fr.ID, fr.FreelancerID, fr.JobID, fr.MilestoneID, fr.AmountCents, fr.DueAt).Scan(&fr.CreatedAt)
}

// Claim marks the release as released if it is due and still unreleased.
// Returns nil, nil when another worker already claimed it or it is not due.
func (r *Repository) Claim(ctx context.Context, tx pgx.Tx, id uuid.UUID, now time.Time) (*models.FundRelease, error) {
	var fr models.FundRelease
	err := tx.QueryRow(ctx, `
		UPDATE fund_releases SET released_at = $2
		WHERE id = $1 AND released_at IS NULL AND due_at <= $2
		RETURNING id, freelancer_id, job_id, milestone_id, amount_cents, due_at, released_at, created_at
	`, id, now).Scan(&fr.ID, &fr.FreelancerID, &fr.JobID, &fr.MilestoneID, &fr.AmountCents, &fr.DueAt, &fr.ReleasedAt, &fr.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &fr, nil
}

// Get returns the release, or nil, nil if it does not exist.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.FundRelease, error) {
	var fr models.FundRelease
	err := r.pool.QueryRow(ctx, `
		SELECT id, freelancer_id, job_id, milestone_id, amount_cents, due_at, released_at, created_at
		FROM fund_releases WHERE id = $1
	`, id).Scan(&fr.ID, &fr.FreelancerID, &fr.JobID, &fr.MilestoneID, &fr.AmountCents, &fr.DueAt, &fr.ReleasedAt, &fr.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &fr, nil
}

// ListDue returns unreleased releases due at or before now that sort after
// the cursor, in (due_at, id) order.
func (r *Repository) ListDue(ctx context.Context, now time.Time, after models.ReleaseCursor, limit int) ([]models.ReleaseCursor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT due_at, id FROM fund_releases
		WHERE released_at IS NULL AND due_at <= $1 AND (due_at, id) > ($2, $3)
		ORDER BY due_at, id LIMIT $4
	`, now, after.DueAt, after.ID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[models.ReleaseCursor])
}
