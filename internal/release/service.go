// Package release makes approved milestone funds available to the freelancer
// after a holding period. Each pending release is a durable row processed by a
// scheduled job, with a periodic sweep catching anything the job missed.
package release

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gigmarket/backend/internal/metrics"
	"github.com/gigmarket/backend/internal/models"
	"github.com/gigmarket/backend/internal/notify"
)

const (
	// DefaultDelay is how long approved funds stay pending.
	DefaultDelay = 72 * time.Hour
	sweepBatch   = 100
	minRecheck   = time.Second
)

// Store persists fund releases. Claim marks a due, unreleased row as released
// and returns it, or returns nil if there is nothing to claim. Get returns
// nil, nil for an unknown id.
type Store interface {
	Insert(ctx context.Context, tx pgx.Tx, r *models.FundRelease) error
	Claim(ctx context.Context, tx pgx.Tx, id uuid.UUID, now time.Time) (*models.FundRelease, error)
	Get(ctx context.Context, id uuid.UUID) (*models.FundRelease, error)
	ListDue(ctx context.Context, now time.Time, after models.ReleaseCursor, limit int) ([]models.ReleaseCursor, error)
}

// Ledger moves funds from pending to available.
type Ledger interface {
	ReleasePending(ctx context.Context, tx pgx.Tx, freelancerID uuid.UUID, amountCents int64) error
}

type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Announcer interface {
	Announce(ctx context.Context, msgs ...notify.Message)
}

// InsertJobTxFunc enqueues a ReleaseFunds job scheduled at dueAt within the
// given transaction. Provided by main using river.Client.InsertTx.
type InsertJobTxFunc func(ctx context.Context, tx pgx.Tx, args ReleaseFundsArgs, dueAt time.Time) error

// ScheduleInput describes an approved milestone amount to release later.
type ScheduleInput struct {
	FreelancerID uuid.UUID
	JobID        uuid.UUID
	MilestoneID  uuid.UUID
	AmountCents  int64
	ApprovedAt   time.Time
}

type Service struct {
	Pool      TxBeginner
	Store     Store
	Ledger    Ledger
	Announcer Announcer
	InsertJob InsertJobTxFunc
	Delay     time.Duration
	BatchSize int
	Now       func() time.Time
	Logger    *slog.Logger
}

func NewService(pool TxBeginner, store Store, ledger Ledger, announcer Announcer, insertJob InsertJobTxFunc, delay time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Service{
		Pool:      pool,
		Store:     store,
		Ledger:    ledger,
		Announcer: announcer,
		InsertJob: insertJob,
		Delay:     delay,
		BatchSize: sweepBatch,
		Now:       time.Now,
		Logger:    logger,
	}
}

// Schedule records a pending release due Delay after approval and enqueues
// the job that will process it. Call within the approval transaction.
func (s *Service) Schedule(ctx context.Context, tx pgx.Tx, in ScheduleInput) (*models.FundRelease, error) {
	r := &models.FundRelease{
		ID:           uuid.New(),
		FreelancerID: in.FreelancerID,
		JobID:        in.JobID,
		MilestoneID:  in.MilestoneID,
		AmountCents:  in.AmountCents,
		DueAt:        in.ApprovedAt.Add(s.Delay),
	}
	if err := s.Store.Insert(ctx, tx, r); err != nil {
		return nil, fmt.Errorf("insert fund release: %w", err)
	}
	if s.InsertJob != nil {
		if err := s.InsertJob(ctx, tx, ReleaseFundsArgs{ReleaseID: r.ID}, r.DueAt); err != nil {
			return nil, fmt.Errorf("enqueue fund release: %w", err)
		}
	}
	return r, nil
}

// ReleaseOne makes the release's funds available if it is due and not yet
// released. It reports whether funds moved. Safe to call repeatedly and
// concurrently for the same release.
func (s *Service) ReleaseOne(ctx context.Context, id uuid.UUID) (bool, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	r, err := s.Store.Claim(ctx, tx, id, s.Now())
	if err != nil {
		return false, fmt.Errorf("claim fund release %s: %w", id, err)
	}
	if r == nil {
		return false, nil
	}
	if err := s.Ledger.ReleasePending(ctx, tx, r.FreelancerID, r.AmountCents); err != nil {
		return false, fmt.Errorf("release pending funds: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit fund release: %w", err)
	}

	metrics.RecordFundsReleased(r.AmountCents)
	s.Logger.Info("funds available", "release_id", r.ID, "freelancer_id", r.FreelancerID, "amount_cents", r.AmountCents)
	if s.Announcer != nil {
		s.Announcer.Announce(ctx, notify.Message{
			RecipientID: r.FreelancerID,
			Type:        models.NotifyFundsAvailable,
			Title:       "Funds available",
			Body:        fmt.Sprintf("%s from an approved milestone is now available for withdrawal.", formatCents(r.AmountCents)),
			Subject:     "Your funds are available",
			Data:        map[string]any{"job_id": r.JobID, "milestone_id": r.MilestoneID, "amount_cents": r.AmountCents},
			DedupKey:    "funds_available:" + r.ID.String(),
		})
	}
	return true, nil
}

// Pending reports whether the release is still unreleased and, if so, how
// long until it is due by this service's clock, floored at one second.
func (s *Service) Pending(ctx context.Context, id uuid.UUID) (time.Duration, bool, error) {
	r, err := s.Store.Get(ctx, id)
	if err != nil {
		return 0, false, fmt.Errorf("get fund release %s: %w", id, err)
	}
	if r == nil || r.ReleasedAt != nil {
		return 0, false, nil
	}
	return max(r.DueAt.Sub(s.Now()), minRecheck), true, nil
}

// Sweep releases every due release. It returns how many releases moved funds.
// Failures of single releases are logged and left for the next sweep; the
// sweep pages past them in (due_at, id) order so they never hide later rows.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	batch := s.BatchSize
	if batch <= 0 {
		batch = sweepBatch
	}
	now := s.Now()
	var (
		cursor   models.ReleaseCursor
		released int
		tried    int
		errs     []error
	)
	for {
		due, err := s.Store.ListDue(ctx, now, cursor, batch)
		if err != nil {
			return released, fmt.Errorf("list due releases: %w", err)
		}
		for _, d := range due {
			tried++
			ok, err := s.ReleaseOne(ctx, d.ID)
			if err != nil {
				s.Logger.Error("fund release failed", "release_id", d.ID, "error", err)
				errs = append(errs, err)
				continue
			}
			if ok {
				released++
			}
		}
		if len(due) < batch {
			break
		}
		cursor = due[len(due)-1]
	}
	if len(errs) == tried && len(errs) > 0 {
		return 0, errors.Join(errs...)
	}
	return released, nil
}

func formatCents(c int64) string {
	return fmt.Sprintf("$%d.%02d", c/100, c%100)
}
