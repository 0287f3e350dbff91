package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigmarket/backend/internal/models"
)

const hireColumns = `id, user_id, side, job_id, job_title, job_budget_cents, role, counterpart_id, counterpart_name,
	counterpart_skills, active_milestones, approved_milestones, total_budget_cents, earned_cents, total_paid_cents,
	pending_payment_cents, created_at, updated_at`

// Repository stores hire history entries in user_hires.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanHire(row pgx.Row) (*models.Hire, error) {
	var h models.Hire
	err := row.Scan(&h.ID, &h.UserID, &h.Side, &h.JobID, &h.JobTitle, &h.JobBudgetCents, &h.Role, &h.CounterpartID,
		&h.CounterpartName, &h.CounterpartSkills, &h.ActiveMilestones, &h.ApprovedMilestones, &h.TotalBudgetCents,
		&h.EarnedCents, &h.TotalPaidCents, &h.PendingPaymentCents, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// GetForUpdate locks the hire entry for the key. Returns nil, nil if none exists.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, key models.HireKey) (*models.Hire, error) {
	h, err := scanHire(tx.QueryRow(ctx, `
		SELECT `+hireColumns+`
		FROM user_hires
		WHERE user_id = $1 AND job_id = $2 AND counterpart_id = $3 AND role = $4
		FOR UPDATE
	`, key.UserID, key.JobID, key.CounterpartID, key.Role))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return h, err
}

// Save upserts the hire entry inside the given transaction.
func (r *Repository) Save(ctx context.Context, tx pgx.Tx, h *models.Hire) error {
	return tx.QueryRow(ctx, `
		INSERT INTO user_hires (id, user_id, side, job_id, job_title, job_budget_cents, role, counterpart_id,
			counterpart_name, counterpart_skills, active_milestones, approved_milestones, total_budget_cents,
			earned_cents, total_paid_cents, pending_payment_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (user_id, job_id, counterpart_id, role) DO UPDATE SET
			job_title = EXCLUDED.job_title,
			job_budget_cents = EXCLUDED.job_budget_cents,
			counterpart_name = EXCLUDED.counterpart_name,
			counterpart_skills = EXCLUDED.counterpart_skills,
			active_milestones = EXCLUDED.active_milestones,
			approved_milestones = EXCLUDED.approved_milestones,
			total_budget_cents = EXCLUDED.total_budget_cents,
			earned_cents = EXCLUDED.earned_cents,
			total_paid_cents = EXCLUDED.total_paid_cents,
			pending_payment_cents = EXCLUDED.pending_payment_cents,
			updated_at = now()
		RETURNING created_at, updated_at
	`, h.ID, h.UserID, h.Side, h.JobID, h.JobTitle, h.JobBudgetCents, h.Role, h.CounterpartID, h.CounterpartName,
		nonNil(h.CounterpartSkills), nonNilIDs(h.ActiveMilestones), nonNilIDs(h.ApprovedMilestones), h.TotalBudgetCents,
		h.EarnedCents, h.TotalPaidCents, h.PendingPaymentCents).Scan(&h.CreatedAt, &h.UpdatedAt)
}

// ListByUser returns the user's hire history, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Hire, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+hireColumns+`
		FROM user_hires WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Hire
	for rows.Next() {
		h, err := scanHire(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, h)
	}
	return list, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilIDs(s []uuid.UUID) []uuid.UUID {
	if s == nil {
		return []uuid.UUID{}
	}
	return s
}
