package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/gigmarket/backend/internal/escrow"
	"github.com/gigmarket/backend/internal/hiring"
	"github.com/gigmarket/backend/internal/ledger"
	"github.com/gigmarket/backend/internal/memstore"
	"github.com/gigmarket/backend/internal/middleware"
	"github.com/gigmarket/backend/internal/milestones"
	"github.com/gigmarket/backend/internal/models"
	"github.com/gigmarket/backend/internal/release"
	"github.com/gigmarket/backend/internal/validation"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []string        `json:"errors"`
}

type fixture struct {
	db         *memstore.DB
	mux        *http.ServeMux
	client     uuid.UUID
	freelancer uuid.UUID
	job        uuid.UUID
	bid        uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := memstore.New()
	f := &fixture{db: db, client: uuid.New(), freelancer: uuid.New(), job: uuid.New(), bid: uuid.New()}
	db.Users.Put(&models.User{ID: f.client, Name: "Cleo", Role: models.RoleClient})
	db.Users.Put(&models.User{ID: f.freelancer, Name: "Fay", Role: models.RoleFreelancer})
	db.Jobs.Put(&models.Job{ID: f.job, ClientID: f.client, Title: "Shop", BudgetCents: 90000, Status: models.JobStatusOpen})
	db.Bids.Put(&models.Bid{
		ID: f.bid, JobID: f.job, FreelancerID: f.freelancer, AmountCents: 60000, Status: models.BidPending,
		Milestones: []models.BidMilestone{{ID: uuid.New(), BidID: f.bid, Title: "all", AmountCents: 60000, Status: models.MilestonePending}},
	})

	v, err := validation.New()
	if err != nil {
		t.Fatalf("validation.New: %v", err)
	}
	announcer := &memstore.Announcer{}
	esc := escrow.NewService(db, db.Payments, db.Bids, db.Jobs, nil)
	led := ledger.NewService(db.Users, db.Hires)
	rel := release.NewService(db, db.Releases, led, announcer, nil, 0, nil)

	offers := &OfferHandler{
		Hiring: hiring.NewService(hiring.Deps{
			Pool: db, Jobs: db.Jobs, Bids: db.Bids, Escrow: esc, Ledger: led, Announcer: announcer,
		}),
		Validator: v,
	}
	ms := &MilestoneHandler{
		Milestones: milestones.NewService(milestones.Deps{
			Pool: db, Jobs: db.Jobs, Escrow: esc, Ledger: led, Scheduler: rel, Announcer: announcer,
		}),
		Validator: v,
	}
	pay := &PaymentHandler{Payments: esc, Validator: v}

	f.mux = http.NewServeMux()
	f.mux.HandleFunc("POST /jobs/{id}/offers", offers.Create)
	f.mux.HandleFunc("POST /jobs/{id}/offers/{offerID}/accept", offers.Accept)
	f.mux.HandleFunc("POST /jobs/{id}/offers/{offerID}/reject", offers.Reject)
	f.mux.HandleFunc("POST /jobs/{id}/milestones", ms.Add)
	f.mux.HandleFunc("GET /jobs/{id}/milestones/{mid}", ms.Get)
	f.mux.HandleFunc("POST /jobs/{id}/milestones/{mid}/start", ms.Start)
	f.mux.HandleFunc("POST /jobs/{id}/milestones/{mid}/submit", ms.Submit)
	f.mux.HandleFunc("POST /jobs/{id}/milestones/{mid}/approve", ms.Approve)
	f.mux.HandleFunc("POST /jobs/{id}/milestones/{mid}/reject", ms.Reject)
	f.mux.HandleFunc("POST /payments/escrow", pay.CreateEscrow)
	f.mux.HandleFunc("POST /payments/{id}/release", pay.Release)
	return f
}

// do sends a request as the given user. A nil uuid sends it unauthenticated.
func (f *fixture) do(t *testing.T, as uuid.UUID, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if as != uuid.Nil {
		role := models.RoleFreelancer
		if as == f.client {
			role = models.RoleClient
		}
		req = req.WithContext(middleware.WithPrincipal(req.Context(), middleware.Principal{ID: as, Role: role}))
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s %s: %v (%s)", method, path, err, rec.Body.String())
	}
	return rec.Code, env
}

func (f *fixture) offerBody() map[string]any {
	return map[string]any{
		"bid_id": f.bid.String(),
		"milestone": map[string]any{
			"title": "Kickoff", "amount_cents": 20000, "deadline": "2026-06-01",
		},
	}
}

func dataID(t *testing.T, env envelope, key string) string {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(env.Data, &m); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if key != "" {
		m, _ = m[key].(map[string]any)
	}
	id, _ := m["id"].(string)
	if id == "" {
		t.Fatalf("no id in %s", env.Data)
	}
	return id
}

// ---------------------------------------------------------------------------
// End to end
// ---------------------------------------------------------------------------

func TestHireToApprovalFlow(t *testing.T) {
	f := newFixture(t)
	jobPath := "/jobs/" + f.job.String()

	code, env := f.do(t, f.client, http.MethodPost, jobPath+"/offers", f.offerBody())
	if code != http.StatusCreated {
		t.Fatalf("create offer: %d %+v", code, env)
	}
	offerID := dataID(t, env, "")

	code, env = f.do(t, f.freelancer, http.MethodPost, jobPath+"/offers/"+offerID+"/accept", nil)
	if code != http.StatusOK {
		t.Fatalf("accept: %d %+v", code, env)
	}
	mid := dataID(t, env, "milestone")

	code, env = f.do(t, f.freelancer, http.MethodPost, jobPath+"/milestones/"+mid+"/submit",
		map[string]any{"message": "done", "attachments": []string{"https://files.example/v1.zip"}})
	if code != http.StatusOK {
		t.Fatalf("submit: %d %+v", code, env)
	}

	code, env = f.do(t, f.client, http.MethodPost, jobPath+"/milestones/"+mid+"/approve", nil)
	if code != http.StatusOK {
		t.Fatalf("approve: %d %+v", code, env)
	}

	p := f.db.Users.Get(f.freelancer).Payments
	if p.InProgressCents != 0 || p.PendingCents != 20000 || p.AvailableCents != 0 {
		t.Errorf("freelancer balances: %+v", p)
	}

	code, env = f.do(t, f.client, http.MethodPost, jobPath+"/milestones/"+mid+"/approve", nil)
	if code != http.StatusBadRequest {
		t.Errorf("second approve: %d %+v", code, env)
	}
	if got := f.db.Users.Get(f.freelancer).Payments.PendingCents; got != 20000 {
		t.Errorf("second approve moved funds: pending %d", got)
	}

	code, env = f.do(t, f.client, http.MethodGet, jobPath+"/milestones/"+mid, nil)
	if code != http.StatusOK {
		t.Errorf("get: %d %+v", code, env)
	}
}

func TestWrongCallerIsForbidden(t *testing.T) {
	f := newFixture(t)
	jobPath := "/jobs/" + f.job.String()
	stranger := uuid.New()

	code, _ := f.do(t, stranger, http.MethodPost, jobPath+"/offers", f.offerBody())
	if code != http.StatusForbidden {
		t.Errorf("stranger creates offer: %d", code)
	}

	_, env := f.do(t, f.client, http.MethodPost, jobPath+"/offers", f.offerBody())
	offerID := dataID(t, env, "")
	code, _ = f.do(t, stranger, http.MethodPost, jobPath+"/offers/"+offerID+"/accept", nil)
	if code != http.StatusForbidden {
		t.Errorf("stranger accepts offer: %d", code)
	}

	_, env = f.do(t, f.freelancer, http.MethodPost, jobPath+"/offers/"+offerID+"/accept", nil)
	mid := dataID(t, env, "milestone")
	code, _ = f.do(t, stranger, http.MethodPost, jobPath+"/milestones/"+mid+"/submit", map[string]any{"message": "mine"})
	if code != http.StatusForbidden {
		t.Errorf("stranger submits: %d", code)
	}

	f.do(t, f.freelancer, http.MethodPost, jobPath+"/milestones/"+mid+"/submit", map[string]any{"message": "done"})
	code, _ = f.do(t, f.freelancer, http.MethodPost, jobPath+"/milestones/"+mid+"/approve", nil)
	if code != http.StatusForbidden {
		t.Errorf("freelancer approves own work: %d", code)
	}
	if got := f.db.Users.Get(f.freelancer).Payments.PendingCents; got != 0 {
		t.Errorf("forbidden approve moved funds: pending %d", got)
	}
}

func TestRejectOfferAndMilestone(t *testing.T) {
	f := newFixture(t)
	jobPath := "/jobs/" + f.job.String()

	_, env := f.do(t, f.client, http.MethodPost, jobPath+"/offers", f.offerBody())
	offerID := dataID(t, env, "")
	code, env := f.do(t, f.freelancer, http.MethodPost, jobPath+"/offers/"+offerID+"/reject", nil)
	if code != http.StatusOK {
		t.Fatalf("reject offer: %d %+v", code, env)
	}
	code, _ = f.do(t, f.freelancer, http.MethodPost, jobPath+"/offers/"+offerID+"/accept", nil)
	if code != http.StatusBadRequest {
		t.Errorf("accept after reject: %d", code)
	}

	_, env = f.do(t, f.client, http.MethodPost, jobPath+"/offers", f.offerBody())
	offerID = dataID(t, env, "")
	_, env = f.do(t, f.freelancer, http.MethodPost, jobPath+"/offers/"+offerID+"/accept", nil)
	mid := dataID(t, env, "milestone")
	f.do(t, f.freelancer, http.MethodPost, jobPath+"/milestones/"+mid+"/submit", map[string]any{"message": "v1"})

	code, env = f.do(t, f.client, http.MethodPost, jobPath+"/milestones/"+mid+"/reject", map[string]any{"reason": "incomplete"})
	if code != http.StatusOK {
		t.Fatalf("reject milestone: %d %+v", code, env)
	}
	if got := f.db.Users.Get(f.freelancer).Payments.InProgressCents; got != 0 {
		t.Errorf("reserved funds not returned: in progress %d", got)
	}
}

func TestAddAndStartMilestone(t *testing.T) {
	f := newFixture(t)
	jobPath := "/jobs/" + f.job.String()
	_, env := f.do(t, f.client, http.MethodPost, jobPath+"/offers", f.offerBody())
	f.do(t, f.freelancer, http.MethodPost, jobPath+"/offers/"+dataID(t, env, "")+"/accept", nil)

	code, env := f.do(t, f.client, http.MethodPost, jobPath+"/milestones",
		map[string]any{"title": "Phase 2", "amount_cents": 15000, "deadline": "2026-07-01T00:00:00Z"})
	if code != http.StatusCreated {
		t.Fatalf("add: %d %+v", code, env)
	}
	mid := dataID(t, env, "")
	code, env = f.do(t, f.freelancer, http.MethodPost, jobPath+"/milestones/"+mid+"/start", nil)
	if code != http.StatusOK {
		t.Fatalf("start: %d %+v", code, env)
	}
	if got := f.db.Users.Get(f.freelancer).Payments.InProgressCents; got != 35000 {
		t.Errorf("in progress: got %d, want 35000", got)
	}
}

func TestDirectEscrowAndRelease(t *testing.T) {
	f := newFixture(t)
	b := f.db.Bids.Get(f.bid)
	b.Status = models.BidAccepted
	f.db.Bids.Put(&b)

	code, env := f.do(t, f.client, http.MethodPost, "/payments/escrow", map[string]any{
		"bid_id": f.bid.String(), "bid_milestone_id": b.Milestones[0].ID.String(),
	})
	if code != http.StatusCreated {
		t.Fatalf("escrow: %d %+v", code, env)
	}
	paymentID := dataID(t, env, "")

	code, _ = f.do(t, f.freelancer, http.MethodPost, "/payments/"+paymentID+"/release", nil)
	if code != http.StatusForbidden {
		t.Errorf("freelancer releases: %d", code)
	}
	code, env = f.do(t, f.client, http.MethodPost, "/payments/"+paymentID+"/release", nil)
	if code != http.StatusOK {
		t.Fatalf("release: %d %+v", code, env)
	}
	code, _ = f.do(t, f.client, http.MethodPost, "/payments/"+paymentID+"/release", nil)
	if code != http.StatusBadRequest {
		t.Errorf("second release: %d", code)
	}
}

// ---------------------------------------------------------------------------
// Request validation
// ---------------------------------------------------------------------------

func TestRequestValidation(t *testing.T) {
	f := newFixture(t)
	jobPath := "/jobs/" + f.job.String()
	cases := []struct {
		name   string
		as     uuid.UUID
		method string
		path   string
		body   any
		want   int
	}{
		{"unauthenticated", uuid.Nil, http.MethodPost, jobPath + "/offers", f.offerBody(), http.StatusUnauthorized},
		{"bad job id", f.client, http.MethodPost, "/jobs/nope/offers", f.offerBody(), http.StatusBadRequest},
		{"offer without milestone", f.client, http.MethodPost, jobPath + "/offers", map[string]any{"bid_id": f.bid.String()}, http.StatusBadRequest},
		{"bad deadline", f.client, http.MethodPost, jobPath + "/offers", map[string]any{
			"bid_id": f.bid.String(), "milestone": map[string]any{"title": "x", "amount_cents": 1, "deadline": "next tuesday"},
		}, http.StatusBadRequest},
		{"bad bid id", f.client, http.MethodPost, jobPath + "/offers", map[string]any{
			"bid_id": "zzzzzzzz-zzzz-zzzz-zzzz-zzzzzzzzzzzz", "milestone": map[string]any{"title": "x", "amount_cents": 1, "deadline": "2026-01-01"},
		}, http.StatusBadRequest},
		{"unknown field", f.client, http.MethodPost, "/payments/escrow", map[string]any{"bid_id": f.bid.String(), "amount": 5}, http.StatusBadRequest},
		{"empty submission", f.freelancer, http.MethodPost, jobPath + "/milestones/" + uuid.NewString() + "/submit", `{}`, http.StatusBadRequest},
		{"unknown milestone", f.client, http.MethodGet, jobPath + "/milestones/" + uuid.NewString(), nil, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, env := f.do(t, tc.as, tc.method, tc.path, tc.body)
			if code != tc.want {
				t.Errorf("got %d, want %d: %+v", code, tc.want, env)
			}
			if env.Success {
				t.Error("failure reported as success")
			}
		})
	}
}

func TestParseDeadline(t *testing.T) {
	for _, s := range []string{"2026-06-01", "2026-06-01T09:30:00Z", "2026-06-01T09:30:00+02:00"} {
		if _, err := parseDeadline(s); err != nil {
			t.Errorf("%q: %v", s, err)
		}
	}
	if _, err := parseDeadline("06/01/2026"); err == nil {
		t.Error("expected error for US date")
	}
}
