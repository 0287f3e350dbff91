package release

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

type ReleaseFundsArgs struct {
	ReleaseID uuid.UUID `json:"release_id"`
}

func (ReleaseFundsArgs) Kind() string { return "release_funds" }

type SweepArgs struct{}

func (SweepArgs) Kind() string { return "sweep_fund_releases" }

// Releaser is the contract the workers need.
type Releaser interface {
	ReleaseOne(ctx context.Context, id uuid.UUID) (bool, error)
	Pending(ctx context.Context, id uuid.UUID) (time.Duration, bool, error)
	Sweep(ctx context.Context) (int, error)
}

type ReleaseFundsWorker struct {
	river.WorkerDefaults[ReleaseFundsArgs]
	releaser Releaser
}

func NewReleaseFundsWorker(r Releaser) *ReleaseFundsWorker {
	return &ReleaseFundsWorker{releaser: r}
}

// Work releases the funds. A job that runs before the release is due by the
// service clock snoozes until then instead of completing.
func (w *ReleaseFundsWorker) Work(ctx context.Context, job *river.Job[ReleaseFundsArgs]) error {
	id := job.Args.ReleaseID
	ok, err := w.releaser.ReleaseOne(ctx, id)
	if err != nil {
		return fmt.Errorf("release funds %s: %w", id, err)
	}
	if ok {
		return nil
	}
	wait, pending, err := w.releaser.Pending(ctx, id)
	if err != nil {
		return fmt.Errorf("release funds %s: %w", id, err)
	}
	if pending {
		return river.JobSnooze(wait)
	}
	return nil
}

type SweepWorker struct {
	river.WorkerDefaults[SweepArgs]
	releaser Releaser
}

func NewSweepWorker(r Releaser) *SweepWorker {
	return &SweepWorker{releaser: r}
}

func (w *SweepWorker) Work(ctx context.Context, _ *river.Job[SweepArgs]) error {
	_, err := w.releaser.Sweep(ctx)
	return err
}

// PeriodicSweep runs the sweep every interval and once at startup.
func PeriodicSweep(interval time.Duration) *river.PeriodicJob {
	return river.NewPeriodicJob(
		river.PeriodicInterval(interval),
		func() (river.JobArgs, *river.InsertOpts) {
			return SweepArgs{}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: true},
	)
}
