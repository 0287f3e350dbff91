package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigmarket/backend/internal/auth"
	"github.com/gigmarket/backend/internal/config"
	"github.com/gigmarket/backend/internal/dashboard"
	"github.com/gigmarket/backend/internal/escrow"
	"github.com/gigmarket/backend/internal/handlers"
	"github.com/gigmarket/backend/internal/hiring"
	"github.com/gigmarket/backend/internal/jobs"
	"github.com/gigmarket/backend/internal/ledger"
	"github.com/gigmarket/backend/internal/milestones"
	"github.com/gigmarket/backend/internal/notify"
	"github.com/gigmarket/backend/internal/release"
	"github.com/gigmarket/backend/internal/repository"
	"github.com/gigmarket/backend/internal/router"
	"github.com/gigmarket/backend/internal/validation"
)

// buildRouter wires repositories into the workflow services and mounts their
// handlers.
func buildRouter(
	cfg *config.Config,
	pool *pgxpool.Pool,
	users *repository.UserRepo,
	notifications *repository.NotificationRepo,
	ledgerSvc *ledger.Service,
	releaseSvc *release.Service,
	dispatcher *notify.Dispatcher,
	logger *slog.Logger,
) http.Handler {
	validator, err := validation.New()
	if err != nil {
		slog.Error("Failed to compile request schemas", "error", err)
		os.Exit(1)
	}

	jobRepo := jobs.NewRepository(pool)
	bidRepo := repository.NewBidRepo(pool)
	paymentRepo := repository.NewPaymentRepo(pool)
	hireRepo := ledger.NewRepository(pool)

	escrowSvc := escrow.NewService(pool, paymentRepo, bidRepo, jobRepo, logger)
	authSvc := auth.NewService(users, cfg.JWTSecret, cfg.TokenTTL)

	h := router.Handlers{
		Auth: auth.NewHandler(authSvc, validator, logger),
		Jobs: jobs.NewHandler(
			jobs.NewService(jobs.Deps{Pool: pool, Jobs: jobRepo, Bids: bidRepo, Logger: logger}),
			users, validator, logger,
		),
		Offers: &handlers.OfferHandler{
			Hiring: hiring.NewService(hiring.Deps{
				Pool: pool, Jobs: jobRepo, Bids: bidRepo, Escrow: escrowSvc, Ledger: ledgerSvc,
				Announcer: dispatcher, Logger: logger,
			}),
			Validator: validator,
			Logger:    logger,
		},
		Milestones: &handlers.MilestoneHandler{
			Milestones: milestones.NewService(milestones.Deps{
				Pool: pool, Jobs: jobRepo, Escrow: escrowSvc, Ledger: ledgerSvc, Scheduler: releaseSvc,
				Announcer: dispatcher, Logger: logger,
			}),
			Validator: validator,
			Logger:    logger,
		},
		Payments: &handlers.PaymentHandler{Payments: escrowSvc, Validator: validator, Logger: logger},
		Account:  dashboard.NewHandler(users, hireRepo, paymentRepo, notifications, validator, logger),
	}
	return router.New(h, authSvc, pool)
}
