package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigmarket/backend/internal/models"
)

const bidColumns = `id, job_id, freelancer_id, amount_cents, cover_letter, status, created_at, updated_at`

type BidRepo struct {
	pool *pgxpool.Pool
}

func NewBidRepo(pool *pgxpool.Pool) *BidRepo {
	return &BidRepo{pool: pool}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanBid(row pgx.Row) (*models.Bid, error) {
	var b models.Bid
	if err := row.Scan(&b.ID, &b.JobID, &b.FreelancerID, &b.AmountCents, &b.CoverLetter, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// Create inserts the bid and its milestone breakdown in one transaction.
func (r *BidRepo) Create(ctx context.Context, b *models.Bid) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO bids (id, job_id, freelancer_id, amount_cents, cover_letter, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, b.ID, b.JobID, b.FreelancerID, b.AmountCents, b.CoverLetter, b.Status).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return err
	}
	for i := range b.Milestones {
		m := &b.Milestones[i]
		m.BidID = b.ID
		if _, err := tx.Exec(ctx, `
			INSERT INTO bid_milestones (id, bid_id, title, amount_cents, status)
			VALUES ($1, $2, $3, $4, $5)
		`, m.ID, m.BidID, m.Title, m.AmountCents, m.Status); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *BidRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	return r.load(ctx, r.pool, `SELECT `+bidColumns+` FROM bids WHERE id = $1`, id)
}

// GetByIDForUpdate locks the bid row. Call within a transaction.
func (r *BidRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Bid, error) {
	return r.load(ctx, tx, `SELECT `+bidColumns+` FROM bids WHERE id = $1 FOR UPDATE`, id)
}

func (r *BidRepo) load(ctx context.Context, q querier, sql string, id uuid.UUID) (*models.Bid, error) {
	b, err := scanBid(q.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, `
		SELECT id, bid_id, title, amount_cents, status
		FROM bid_milestones WHERE bid_id = $1 ORDER BY title
	`, b.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m models.BidMilestone
		if err := rows.Scan(&m.ID, &m.BidID, &m.Title, &m.AmountCents, &m.Status); err != nil {
			return nil, err
		}
		b.Milestones = append(b.Milestones, m)
	}
	return b, rows.Err()
}

func (r *BidRepo) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Bid, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+bidColumns+` FROM bids WHERE job_id = $1 ORDER BY created_at DESC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

// UpdateStatus moves the bid from one status to another. Returns false if the
// bid was not in the expected status.
func (r *BidRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE bids SET status = $3, updated_at = now() WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// TransitionMilestone moves a bid milestone between statuses. Returns false if
// it was not in the expected status.
func (r *BidRepo) TransitionMilestone(ctx context.Context, tx pgx.Tx, bidMilestoneID uuid.UUID, from, to string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE bid_milestones SET status = $3 WHERE id = $1 AND status = $2
	`, bidMilestoneID, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
