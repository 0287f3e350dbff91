package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigmarket/backend/internal/models"
)

const userColumns = `id, name, email, password_hash, role, skills, in_progress_cents, pending_cents, available_cents,
	total_earnings_cents, total_spent_cents, created_at, updated_at`

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Skills, &u.Payments.InProgressCents,
		&u.Payments.PendingCents, &u.Payments.AvailableCents, &u.TotalEarningsCents, &u.TotalSpentCents,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) Create(ctx context.Context, u *models.User) error {
	if u.Skills == nil {
		u.Skills = []string{}
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, skills)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.Skills).Scan(&u.CreatedAt, &u.UpdatedAt)
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// GetByIDForUpdate locks the user row for update. Call within a transaction.
func (r *UserRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.User, error) {
	return scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
}

// UpdateBalances writes the balance buckets and totals. Call after
// GetByIDForUpdate in the same tx.
func (r *UserRepo) UpdateBalances(ctx context.Context, tx pgx.Tx, u *models.User) error {
	_, err := tx.Exec(ctx, `
		UPDATE users SET in_progress_cents = $2, pending_cents = $3, available_cents = $4,
			total_earnings_cents = $5, total_spent_cents = $6, updated_at = now()
		WHERE id = $1
	`, u.ID, u.Payments.InProgressCents, u.Payments.PendingCents, u.Payments.AvailableCents,
		u.TotalEarningsCents, u.TotalSpentCents)
	return err
}

// UpdateProfile writes the editable profile fields.
func (r *UserRepo) UpdateProfile(ctx context.Context, u *models.User) error {
	if u.Skills == nil {
		u.Skills = []string{}
	}
	return r.pool.QueryRow(ctx, `
		UPDATE users SET name = $2, skills = $3, updated_at = now() WHERE id = $1
		RETURNING updated_at
	`, u.ID, u.Name, u.Skills).Scan(&u.UpdatedAt)
}
