package jobs

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigmarket/backend/internal/models"
)

const (
	jobColumns = `id, client_id, title, description, skills, budget_cents, status, is_crowdsourced, hired_freelancer_id,
	paid_cents, payment_verified, created_at, updated_at`
	milestoneColumns = `id, job_id, team_member_id, freelancer_id, title, description, amount_cents, deadline, status,
	payment_id, submission, approval_date, created_at, updated_at`
)

// Repository stores the job aggregate: the job row plus its roles, team,
// milestones and offers.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.ClientID, &j.Title, &j.Description, &j.Skills, &j.BudgetCents, &j.Status, &j.IsCrowdsourced,
		&j.HiredFreelancerID, &j.PaidCents, &j.PaymentVerified, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// Create inserts the job and its crowdsourcing roles.
func (r *Repository) Create(ctx context.Context, j *models.Job) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if j.Skills == nil {
		j.Skills = []string{}
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO jobs (id, client_id, title, description, skills, budget_cents, status, is_crowdsourced)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, j.ID, j.ClientID, j.Title, j.Description, j.Skills, j.BudgetCents, j.Status, j.IsCrowdsourced).Scan(&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return err
	}
	for i := range j.Roles {
		role := &j.Roles[i]
		role.JobID = j.ID
		if role.Skills == nil {
			role.Skills = []string{}
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO job_roles (id, job_id, title, skills, budget_cents, status)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, role.ID, role.JobID, role.Title, role.Skills, role.BudgetCents, role.Status); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// GetByID loads the full job aggregate. Returns pgx.ErrNoRows if the job does not exist.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return r.load(ctx, r.pool, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
}

// GetByIDForUpdate locks the job row and loads the aggregate. Call within a transaction.
func (r *Repository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Job, error) {
	return r.load(ctx, tx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id)
}

func (r *Repository) load(ctx context.Context, q querier, sql string, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(q.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, err
	}
	if j.Roles, err = loadRoles(ctx, q, j.ID); err != nil {
		return nil, err
	}
	if j.Team, err = loadTeam(ctx, q, j.ID); err != nil {
		return nil, err
	}
	if j.Offers, err = loadOffers(ctx, q, j.ID); err != nil {
		return nil, err
	}
	milestones, err := loadMilestones(ctx, q, j.ID)
	if err != nil {
		return nil, err
	}
	for _, m := range milestones {
		if m.TeamMemberID == nil {
			j.Milestones = append(j.Milestones, m)
			continue
		}
		for i := range j.Team {
			if j.Team[i].ID == *m.TeamMemberID {
				j.Team[i].Milestones = append(j.Team[i].Milestones, m)
			}
		}
	}
	return j, nil
}

func loadRoles(ctx context.Context, q querier, jobID uuid.UUID) ([]models.CrowdsourcingRole, error) {
	rows, err := q.Query(ctx, `
		SELECT id, job_id, title, skills, budget_cents, status
		FROM job_roles WHERE job_id = $1 ORDER BY title
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.CrowdsourcingRole
	for rows.Next() {
		var c models.CrowdsourcingRole
		if err := rows.Scan(&c.ID, &c.JobID, &c.Title, &c.Skills, &c.BudgetCents, &c.Status); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func loadTeam(ctx context.Context, q querier, jobID uuid.UUID) ([]models.TeamMember, error) {
	rows, err := q.Query(ctx, `
		SELECT id, job_id, freelancer_id, role, skills, status, created_at
		FROM team_members WHERE job_id = $1 ORDER BY created_at
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.TeamMember
	for rows.Next() {
		var t models.TeamMember
		if err := rows.Scan(&t.ID, &t.JobID, &t.FreelancerID, &t.Role, &t.Skills, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

func loadOffers(ctx context.Context, q querier, jobID uuid.UUID) ([]models.Offer, error) {
	rows, err := q.Query(ctx, `
		SELECT id, job_id, bid_id, freelancer_id, role, status, milestone_title, milestone_description,
			milestone_amount_cents, milestone_deadline, created_at, responded_at
		FROM job_offers WHERE job_id = $1 ORDER BY created_at
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Offer
	for rows.Next() {
		var o models.Offer
		if err := rows.Scan(&o.ID, &o.JobID, &o.BidID, &o.FreelancerID, &o.Role, &o.Status, &o.Milestone.Title,
			&o.Milestone.Description, &o.Milestone.AmountCents, &o.Milestone.Deadline, &o.CreatedAt, &o.RespondedAt); err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	return list, rows.Err()
}

func loadMilestones(ctx context.Context, q querier, jobID uuid.UUID) ([]models.Milestone, error) {
	rows, err := q.Query(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE job_id = $1 ORDER BY created_at`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Milestone
	for rows.Next() {
		var m models.Milestone
		if err := rows.Scan(&m.ID, &m.JobID, &m.TeamMemberID, &m.FreelancerID, &m.Title, &m.Description, &m.AmountCents,
			&m.Deadline, &m.Status, &m.PaymentID, &m.Submission, &m.ApprovalDate, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func (r *Repository) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Job, error) {
	return r.list(ctx, `SELECT `+jobColumns+` FROM jobs WHERE client_id = $1 ORDER BY created_at DESC`, clientID)
}

// ListOpen returns jobs that still take bids, newest first, with their
// crowdsourcing roles: open jobs and running crowdsourced jobs with an open role.
func (r *Repository) ListOpen(ctx context.Context, limit int) ([]*models.Job, error) {
	list, err := r.list(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status = 'open'
		   OR (is_crowdsourced AND status = 'in-progress'
		       AND EXISTS (SELECT 1 FROM job_roles jr WHERE jr.job_id = jobs.id AND jr.status = 'open'))
		ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	for _, j := range list {
		if !j.IsCrowdsourced {
			continue
		}
		if j.Roles, err = loadRoles(ctx, r.pool, j.ID); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func (r *Repository) list(ctx context.Context, sql string, args ...any) ([]*models.Job, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, j)
	}
	return list, rows.Err()
}

// InsertOffer adds a pending offer to the job.
func (r *Repository) InsertOffer(ctx context.Context, tx pgx.Tx, o *models.Offer) error {
	return tx.QueryRow(ctx, `
		INSERT INTO job_offers (id, job_id, bid_id, freelancer_id, role, status, milestone_title,
			milestone_description, milestone_amount_cents, milestone_deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`, o.ID, o.JobID, o.BidID, o.FreelancerID, o.Role, o.Status, o.Milestone.Title, o.Milestone.Description,
		o.Milestone.AmountCents, o.Milestone.Deadline).Scan(&o.CreatedAt)
}

// TransitionOffer moves the offer from one status to another and stamps the
// response time. Returns false if the offer was not in the expected status.
func (r *Repository) TransitionOffer(ctx context.Context, tx pgx.Tx, offerID uuid.UUID, from, to string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE job_offers SET status = $3, responded_at = now() WHERE id = $1 AND status = $2
	`, offerID, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkInProgress moves the job to in-progress. A non-nil freelancer is recorded
// as the hired freelancer.
func (r *Repository) MarkInProgress(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, hired *uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE jobs SET status = 'in-progress', hired_freelancer_id = COALESCE($2, hired_freelancer_id), updated_at = now()
		WHERE id = $1
	`, jobID, hired)
	return err
}

// FillRole marks an open role filled. Returns false if it was already filled.
func (r *Repository) FillRole(ctx context.Context, tx pgx.Tx, roleID uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `UPDATE job_roles SET status = 'filled' WHERE id = $1 AND status = 'open'`, roleID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) InsertTeamMember(ctx context.Context, tx pgx.Tx, t *models.TeamMember) error {
	if t.Skills == nil {
		t.Skills = []string{}
	}
	return tx.QueryRow(ctx, `
		INSERT INTO team_members (id, job_id, freelancer_id, role, skills, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, t.ID, t.JobID, t.FreelancerID, t.Role, t.Skills, t.Status).Scan(&t.CreatedAt)
}

func (r *Repository) InsertMilestone(ctx context.Context, tx pgx.Tx, m *models.Milestone) error {
	return tx.QueryRow(ctx, `
		INSERT INTO milestones (id, job_id, team_member_id, freelancer_id, title, description, amount_cents,
			deadline, status, payment_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, m.ID, m.JobID, m.TeamMemberID, m.FreelancerID, m.Title, m.Description, m.AmountCents, m.Deadline,
		m.Status, m.PaymentID).Scan(&m.CreatedAt, &m.UpdatedAt)
}

// TransitionMilestone writes the milestone's status, submission and approval
// date if it is still in status from. Returns false otherwise.
func (r *Repository) TransitionMilestone(ctx context.Context, tx pgx.Tx, m *models.Milestone, from string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE milestones SET status = $3, submission = $4, approval_date = $5, updated_at = now()
		WHERE id = $1 AND status = $2
	`, m.ID, from, m.Status, m.Submission, m.ApprovalDate)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AddPaid adds an approved milestone amount to the job's paid total.
func (r *Repository) AddPaid(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, amountCents int64) error {
	_, err := tx.Exec(ctx, `UPDATE jobs SET paid_cents = paid_cents + $2, updated_at = now() WHERE id = $1`, jobID, amountCents)
	return err
}

func (r *Repository) SetPaymentVerified(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) error {
	_, err := tx.Exec(ctx, `UPDATE jobs SET payment_verified = true, updated_at = now() WHERE id = $1`, jobID)
	return err
}
