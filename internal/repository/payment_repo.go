package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigmarket/backend/internal/models"
)

const paymentColumns = `id, job_id, milestone_id, bid_id, bid_milestone_id, client_id, freelancer_id, amount_cents,
	service_fee_cents, total_amount_cents, fee_policy, status, invoice, created_at, updated_at`

type PaymentRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentRepo(pool *pgxpool.Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	err := row.Scan(&p.ID, &p.JobID, &p.MilestoneID, &p.BidID, &p.BidMilestoneID, &p.ClientID, &p.FreelancerID,
		&p.AmountCents, &p.ServiceFeeCents, &p.TotalAmountCents, &p.FeePolicy, &p.Status, &p.Invoice,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateTx inserts a payment inside the given transaction.
func (r *PaymentRepo) CreateTx(ctx context.Context, tx pgx.Tx, p *models.Payment) error {
	return tx.QueryRow(ctx, `
		INSERT INTO payments (id, job_id, milestone_id, bid_id, bid_milestone_id, client_id, freelancer_id,
			amount_cents, service_fee_cents, total_amount_cents, fee_policy, status, invoice)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`, p.ID, p.JobID, p.MilestoneID, p.BidID, p.BidMilestoneID, p.ClientID, p.FreelancerID, p.AmountCents,
		p.ServiceFeeCents, p.TotalAmountCents, p.FeePolicy, p.Status, p.Invoice).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *PaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

// GetByIDForUpdate locks the payment row. Call within a transaction.
func (r *PaymentRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Payment, error) {
	return scanPayment(tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id))
}

// TransitionStatus moves the payment from one status to another. Returns
// false if the payment was not in the expected status.
func (r *PaymentRepo) TransitionStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE payments SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListByUser returns payments where the user is either party, newest first.
func (r *PaymentRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments WHERE client_id = $1 OR freelancer_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}
