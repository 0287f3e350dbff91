// Package router assembles the HTTP surface: public auth routes, the
// authenticated /api/v1 marketplace routes, and the operational endpoints.
package router

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gigmarket/backend/internal/auth"
	"github.com/gigmarket/backend/internal/dashboard"
	"github.com/gigmarket/backend/internal/handlers"
	"github.com/gigmarket/backend/internal/jobs"
	"github.com/gigmarket/backend/internal/middleware"
	"github.com/gigmarket/backend/internal/models"
	"github.com/gigmarket/backend/internal/respond"
)

const base = "/api/v1"

// Handlers groups every HTTP handler the router mounts.
type Handlers struct {
	Auth       *auth.Handler
	Jobs       *jobs.Handler
	Offers     *handlers.OfferHandler
	Milestones *handlers.MilestoneHandler
	Payments   *handlers.PaymentHandler
	Account    *dashboard.Handler
}

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New returns the root handler. Routes are registered on a single mux so the
// metrics middleware can label requests with the matched pattern.
func New(h Handlers, tokens middleware.TokenValidator, db Pinger) http.Handler {
	mux := http.NewServeMux()

	authed := middleware.Authenticate(tokens)
	user := func(fn http.HandlerFunc) http.Handler { return authed(fn) }
	client := func(fn http.HandlerFunc) http.Handler {
		return authed(middleware.RequireRole(models.RoleClient)(fn))
	}
	freelancer := func(fn http.HandlerFunc) http.Handler {
		return authed(middleware.RequireRole(models.RoleFreelancer)(fn))
	}

	mux.HandleFunc("POST "+base+"/auth/register", h.Auth.Register)
	mux.HandleFunc("POST "+base+"/auth/login", h.Auth.Login)

	mux.Handle("POST "+base+"/jobs", client(h.Jobs.CreateJob))
	mux.Handle("GET "+base+"/jobs", client(h.Jobs.ListMine))
	mux.Handle("GET "+base+"/jobs/open", user(h.Jobs.ListOpen))
	mux.Handle("GET "+base+"/jobs/{id}", user(h.Jobs.GetJob))
	mux.Handle("POST "+base+"/jobs/{id}/bids", freelancer(h.Jobs.PlaceBid))
	mux.Handle("GET "+base+"/jobs/{id}/bids", client(h.Jobs.ListBids))
	mux.Handle("POST "+base+"/bids/{id}/withdraw", freelancer(h.Jobs.WithdrawBid))

	mux.Handle("POST "+base+"/jobs/{id}/offers", client(h.Offers.Create))
	mux.Handle("POST "+base+"/jobs/{id}/offers/{offerID}/accept", freelancer(h.Offers.Accept))
	mux.Handle("POST "+base+"/jobs/{id}/offers/{offerID}/reject", freelancer(h.Offers.Reject))

	mux.Handle("POST "+base+"/jobs/{id}/milestones", client(h.Milestones.Add))
	mux.Handle("GET "+base+"/jobs/{id}/milestones/{mid}", user(h.Milestones.Get))
	mux.Handle("POST "+base+"/jobs/{id}/milestones/{mid}/start", freelancer(h.Milestones.Start))
	mux.Handle("POST "+base+"/jobs/{id}/milestones/{mid}/submit", freelancer(h.Milestones.Submit))
	mux.Handle("POST "+base+"/jobs/{id}/milestones/{mid}/approve", client(h.Milestones.Approve))
	mux.Handle("POST "+base+"/jobs/{id}/milestones/{mid}/reject", client(h.Milestones.Reject))

	mux.Handle("POST "+base+"/payments/escrow", client(h.Payments.CreateEscrow))
	mux.Handle("POST "+base+"/payments/{id}/release", client(h.Payments.Release))

	mux.Handle("GET "+base+"/account/me", user(h.Account.GetMe))
	mux.Handle("PATCH "+base+"/account/me", user(h.Account.UpdateProfile))
	mux.Handle("GET "+base+"/account/hires", user(h.Account.ListHires))
	mux.Handle("GET "+base+"/account/payments", user(h.Account.ListPayments))
	mux.Handle("GET "+base+"/account/notifications", user(h.Account.ListNotifications))
	mux.Handle("POST "+base+"/account/notifications/{id}/read", user(h.Account.MarkNotificationRead))

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", healthz(db))

	return middleware.Metrics(mux)
}

func healthz(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				respond.Fail(w, http.StatusServiceUnavailable, "database unreachable")
				return
			}
		}
		respond.JSON(w, http.StatusOK, "ok", nil)
	}
}
