// Package memstore is an in-memory implementation of the marketplace stores
// for tests. Transactions are serialized and roll back to a snapshot.
package memstore

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gigmarket/backend/internal/models"
)

type state struct {
	users         map[uuid.UUID]models.User
	hires         map[models.HireKey]models.Hire
	jobs          map[uuid.UUID]models.Job
	roles         []models.CrowdsourcingRole
	team          []models.TeamMember
	milestones    []models.Milestone
	offers        []models.Offer
	bids          map[uuid.UUID]models.Bid
	payments      map[uuid.UUID]models.Payment
	releases      []models.FundRelease
	notifications []models.Notification
}

func (s *state) clone() *state {
	c := &state{
		users:         make(map[uuid.UUID]models.User, len(s.users)),
		hires:         make(map[models.HireKey]models.Hire, len(s.hires)),
		jobs:          make(map[uuid.UUID]models.Job, len(s.jobs)),
		roles:         slices.Clone(s.roles),
		team:          slices.Clone(s.team),
		milestones:    slices.Clone(s.milestones),
		offers:        slices.Clone(s.offers),
		bids:          make(map[uuid.UUID]models.Bid, len(s.bids)),
		payments:      make(map[uuid.UUID]models.Payment, len(s.payments)),
		releases:      slices.Clone(s.releases),
		notifications: slices.Clone(s.notifications),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.hires {
		v.ActiveMilestones = slices.Clone(v.ActiveMilestones)
		v.ApprovedMilestones = slices.Clone(v.ApprovedMilestones)
		c.hires[k] = v
	}
	for k, v := range s.jobs {
		c.jobs[k] = v
	}
	for k, v := range s.bids {
		v.Milestones = slices.Clone(v.Milestones)
		c.bids[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	return c
}

// DB holds all collections. Use the typed sub-stores to access them.
type DB struct {
	txMu sync.Mutex

	mu     sync.Mutex
	st     *state
	faults map[string]error

	Users         *Users
	Hires         *Hires
	Jobs          *Jobs
	Bids          *Bids
	Payments      *Payments
	Releases      *Releases
	Notifications *Notifications
}

func New() *DB {
	db := &DB{
		st: &state{
			users:    map[uuid.UUID]models.User{},
			hires:    map[models.HireKey]models.Hire{},
			jobs:     map[uuid.UUID]models.Job{},
			bids:     map[uuid.UUID]models.Bid{},
			payments: map[uuid.UUID]models.Payment{},
		},
		faults: map[string]error{},
	}
	db.Users = &Users{db}
	db.Hires = &Hires{db}
	db.Jobs = &Jobs{db}
	db.Bids = &Bids{db}
	db.Payments = &Payments{db}
	db.Releases = &Releases{db}
	db.Notifications = &Notifications{db}
	return db
}

// Fail makes every call of op return err until cleared with Fail(op, nil).
// Ops are named "<collection>.<method>", e.g. "payments.create".
func (db *DB) Fail(op string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err == nil {
		delete(db.faults, op)
		return
	}
	db.faults[op] = err
}

// lock acquires the data mutex and returns the injected fault for op, if any.
func (db *DB) lock(op string) error {
	db.mu.Lock()
	return db.faults[op]
}

// Begin starts a transaction. Transactions are serialized.
func (db *DB) Begin(ctx context.Context) (pgx.Tx, error) {
	db.txMu.Lock()
	db.mu.Lock()
	snap := db.st.clone()
	db.mu.Unlock()
	return &Tx{db: db, snapshot: snap}, nil
}

// Tx satisfies pgx.Tx. Only Commit and Rollback do anything.
type Tx struct {
	db       *DB
	snapshot *state
	done     bool
}

func (t *Tx) Commit(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.db.txMu.Unlock()
	return nil
}

func (t *Tx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.db.mu.Lock()
	t.db.st = t.snapshot
	t.db.mu.Unlock()
	t.db.txMu.Unlock()
	return nil
}

func (t *Tx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("nested transactions unsupported")
}
func (t *Tx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *Tx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (t *Tx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (t *Tx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *Tx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *Tx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *Tx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *Tx) Conn() *pgx.Conn { return nil }

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

type Users struct{ db *DB }

// Put inserts or replaces a user.
func (s *Users) Put(u *models.User) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cp := *u
	cp.Skills = slices.Clone(u.Skills)
	s.db.st.users[u.ID] = cp
}

func (s *Users) Create(_ context.Context, u *models.User) error {
	err := s.db.lock("users.create")
	defer s.db.mu.Unlock()
	if err != nil {
		return err
	}
	for _, existing := range s.db.st.users {
		if existing.Email == u.Email {
			return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint \"users_email_key\""}
		}
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	s.db.st.users[u.ID] = *u
	return nil
}

func (s *Users) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.st.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func (s *Users) GetByEmail(_ context.Context, email string) (*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, u := range s.db.st.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *Users) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.User, error) {
	return s.GetByID(ctx, id)
}

func (s *Users) UpdateBalances(_ context.Context, _ pgx.Tx, u *models.User) error {
	err := s.db.lock("users.update_balances")
	defer s.db.mu.Unlock()
	if err != nil {
		return err
	}
	cur, ok := s.db.st.users[u.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	cur.Payments = u.Payments
	cur.TotalEarningsCents = u.TotalEarningsCents
	cur.TotalSpentCents = u.TotalSpentCents
	s.db.st.users[u.ID] = cur
	return nil
}

func (s *Users) UpdateProfile(_ context.Context, u *models.User) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur, ok := s.db.st.users[u.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	cur.Name = u.Name
	cur.Skills = slices.Clone(u.Skills)
	cur.UpdatedAt = time.Now()
	u.UpdatedAt = cur.UpdatedAt
	s.db.st.users[u.ID] = cur
	return nil
}

// Get returns a copy of the stored user, or the zero value.
func (s *Users) Get(id uuid.UUID) models.User {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.st.users[id]
}

// ---------------------------------------------------------------------------
// Hires
// ---------------------------------------------------------------------------

type Hires struct{ db *DB }

func (s *Hires) GetForUpdate(_ context.Context, _ pgx.Tx, key models.HireKey) (*models.Hire, error) {
	err := s.db.lock("hires.get")
	defer s.db.mu.Unlock()
	if err != nil {
		return nil, err
	}
	h, ok := s.db.st.hires[key]
	if !ok {
		return nil, nil
	}
	h.ActiveMilestones = slices.Clone(h.ActiveMilestones)
	h.ApprovedMilestones = slices.Clone(h.ApprovedMilestones)
	return &h, nil
}

func (s *Hires) Save(_ context.Context, _ pgx.Tx, h *models.Hire) error {
	err := s.db.lock("hires.save")
	defer s.db.mu.Unlock()
	if err != nil {
		return err
	}
	cp := *h
	cp.ActiveMilestones = slices.Clone(h.ActiveMilestones)
	cp.ApprovedMilestones = slices.Clone(h.ApprovedMilestones)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.UpdatedAt = time.Now()
	s.db.st.hires[h.Key()] = cp
	return nil
}

func (s *Hires) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.Hire, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*models.Hire
	for _, h := range s.db.st.hires {
		if h.UserID == userID {
			cp := h
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ForUser returns every hire entry owned by the user.
func (s *Hires) ForUser(userID uuid.UUID) []models.Hire {
	list, _ := s.ListByUser(context.Background(), userID)
	out := make([]models.Hire, 0, len(list))
	for _, h := range list {
		out = append(out, *h)
	}
	return out
}

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

type Jobs struct{ db *DB }

// Put stores the job row plus its roles, team, milestones and offers,
// replacing whatever was stored for the job before.
func (s *Jobs) Put(j *models.Job) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	st := s.db.st
	st.roles = slices.DeleteFunc(st.roles, func(r models.CrowdsourcingRole) bool { return r.JobID == j.ID })
	st.team = slices.DeleteFunc(st.team, func(t models.TeamMember) bool { return t.JobID == j.ID })
	st.milestones = slices.DeleteFunc(st.milestones, func(m models.Milestone) bool { return m.JobID == j.ID })
	st.offers = slices.DeleteFunc(st.offers, func(o models.Offer) bool { return o.JobID == j.ID })
	row := *j
	row.Roles, row.Team, row.Milestones, row.Offers = nil, nil, nil, nil
	s.db.st.jobs[j.ID] = row
	for _, r := range j.Roles {
		r.JobID = j.ID
		s.db.st.roles = append(s.db.st.roles, r)
	}
	for _, t := range j.Team {
		for _, m := range t.Milestones {
			id := t.ID
			m.TeamMemberID = &id
			m.JobID = j.ID
			s.db.st.milestones = append(s.db.st.milestones, m)
		}
		t.Milestones = nil
		t.JobID = j.ID
		s.db.st.team = append(s.db.st.team, t)
	}
	for _, m := range j.Milestones {
		m.JobID = j.ID
		s.db.st.milestones = append(s.db.st.milestones, m)
	}
	for _, o := range j.Offers {
		o.JobID = j.ID
		s.db.st.offers = append(s.db.st.offers, o)
	}
}

func (s *Jobs) Create(_ context.Context, j *models.Job) error {
	err := s.db.lock("jobs.create")
	s.db.mu.Unlock()
	if err != nil {
		return err
	}
	j.CreatedAt = time.Now()
	j.UpdatedAt = j.CreatedAt
	for i := range j.Roles {
		j.Roles[i].JobID = j.ID
	}
	s.Put(j)
	return nil
}

func (s *Jobs) GetByID(_ context.Context, id uuid.UUID) (*models.Job, error) {
	err := s.db.lock("jobs.get")
	defer s.db.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.assemble(id)
}

func (s *Jobs) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Job, error) {
	return s.GetByID(ctx, id)
}

// assemble builds the aggregate. Caller holds db.mu.
func (s *Jobs) assemble(id uuid.UUID) (*models.Job, error) {
	row, ok := s.db.st.jobs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	j := row
	for _, r := range s.db.st.roles {
		if r.JobID == id {
			j.Roles = append(j.Roles, r)
		}
	}
	for _, t := range s.db.st.team {
		if t.JobID == id {
			j.Team = append(j.Team, t)
		}
	}
	for _, o := range s.db.st.offers {
		if o.JobID == id {
			j.Offers = append(j.Offers, o)
		}
	}
	for _, m := range s.db.st.milestones {
		if m.JobID != id {
			continue
		}
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
	return &j, nil
}

func (s *Jobs) ListByClient(_ context.Context, clientID uuid.UUID) ([]*models.Job, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*models.Job
	for _, j := range s.db.st.jobs {
		if j.ClientID == clientID {
			cp := j
			out = append(out, &cp)
		}
	}
	sortNewest(out)
	return out, nil
}

func (s *Jobs) ListOpen(_ context.Context, limit int) ([]*models.Job, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*models.Job
	for id := range s.db.st.jobs {
		cp, _ := s.assemble(id)
		if !cp.OpenForBids() {
			continue
		}
		cp.Team, cp.Milestones, cp.Offers = nil, nil, nil
		out = append(out, cp)
	}
	sortNewest(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortNewest(jobs []*models.Job) {
	slices.SortFunc(jobs, func(a, b *models.Job) int { return b.CreatedAt.Compare(a.CreatedAt) })
}

func (s *Jobs) InsertOffer(_ context.Context, _ pgx.Tx, o *models.Offer) error {
	err := s.db.lock("offers.insert")
	defer s.db.mu.Unlock()
	if err != nil {
		return err
	}
	o.CreatedAt = time.Now()
	s.db.st.offers = append(s.db.st.offers, *o)
	return nil
}

func (s *Jobs) TransitionOffer(_ context.Context, _ pgx.Tx, offerID uuid.UUID, from, to string) (bool, error) {
	err := s.db.lock("offers.transition")
	defer s.db.mu.Unlock()
	if err != nil {
		return false, err
	}
	for i := range s.db.st.offers {
		o := &s.db.st.offers[i]
		if o.ID == offerID && o.Status == from {
			now := time.Now()
			o.Status = to
			o.RespondedAt = &now
			return true, nil
		}
	}
	return false, nil
}

func (s *Jobs) MarkInProgress(_ context.Context, _ pgx.Tx, jobID uuid.UUID, hired *uuid.UUID) error {
	err := s.db.lock("jobs.mark_in_progress")
	defer s.db.mu.Unlock()
	if err != nil {
		return err
	}
	j, ok := s.db.st.jobs[jobID]
	if !ok {
		return pgx.ErrNoRows
	}
	j.Status = models.JobStatusInProgress
	if hired != nil {
		id := *hired
		j.HiredFreelancerID = &id
	}
	s.db.st.jobs[jobID] = j
	return nil
}

func (s *Jobs) FillRole(_ context.Context, _ pgx.Tx, roleID uuid.UUID) (bool, error) {
	err := s.db.lock("roles.fill")
	defer s.db.mu.Unlock()
	if err != nil {
		return false, err
	}
	for i := range s.db.st.roles {
		r := &s.db.st.roles[i]
		if r.ID == roleID && r.Status == models.RoleStatusOpen {
			r.Status = models.RoleStatusFilled
			return true, nil
		}
	}
	return false, nil
}

func (s *Jobs) InsertTeamMember(_ context.Context, _ pgx.Tx, t *models.TeamMember) error {
	err := s.db.lock("team.insert")
	defer s.db.mu.Unlock()
	if err != nil {
		return err
	}
	for _, existing := range s.db.st.team {
		if existing.JobID == t.JobID && existing.Role == t.Role && existing.Status == models.TeamMemberActive {
			return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint \"team_members_active_role\""}
		}
	}
	t.CreatedAt = time.Now()
	cp := *t
	cp.Milestones = nil
	s.db.st.team = append(s.db.st.team, cp)
	return nil
}

func (s *Jobs) InsertMilestone(_ context.Context, _ pgx.Tx, m *models.Milestone) error {
	err := s.db.lock("milestones.insert")
	defer s.db.mu.Unlock()
	if err != nil {
		return err
	}
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt
	s.db.st.milestones = append(s.db.st.milestones, *m)
	return nil
}

func (s *Jobs) TransitionMilestone(_ context.Context, _ pgx.Tx, m *models.Milestone, from string) (bool, error) {
	err := s.db.lock("milestones.transition")
	defer s.db.mu.Unlock()
	if err != nil {
		return false, err
	}
	for i := range s.db.st.milestones {
		cur := &s.db.st.milestones[i]
		if cur.ID == m.ID && cur.Status == from {
			cur.Status = m.Status
			cur.Submission = m.Submission
			cur.ApprovalDate = m.ApprovalDate
			cur.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (s *Jobs) AddPaid(_ context.Context, _ pgx.Tx, jobID uuid.UUID, amountCents int64) error {
	err := s.db.lock("jobs.add_paid")
	defer s.db.mu.Unlock()
	if err != nil {
		return err
	}
	j, ok := s.db.st.jobs[jobID]
	if !ok {
		return pgx.ErrNoRows
	}
	j.PaidCents += amountCents
	s.db.st.jobs[jobID] = j
	return nil
}

func (s *Jobs) SetPaymentVerified(_ context.Context, _ pgx.Tx, jobID uuid.UUID) error {
	err := s.db.lock("jobs.set_payment_verified")
	defer s.db.mu.Unlock()
	if err != nil {
		return err
	}
	j, ok := s.db.st.jobs[jobID]
	if !ok {
		return pgx.ErrNoRows
	}
	j.PaymentVerified = true
	s.db.st.jobs[jobID] = j
	return nil
}

// Get returns the assembled job or nil.
func (s *Jobs) Get(id uuid.UUID) *models.Job {
	j, _ := s.GetByID(context.Background(), id)
	return j
}

// ---------------------------------------------------------------------------
// Bids
// ---------------------------------------------------------------------------

type Bids struct{ db *DB }

func (s *Bids) Put(b *models.Bid) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cp := *b
	cp.Milestones = slices.Clone(b.Milestones)
	s.db.st.bids[b.ID] = cp
}

func (s *Bids) Create(_ context.Context, b *models.Bid) error {
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	for i := range b.Milestones {
		b.Milestones[i].BidID = b.ID
	}
	s.Put(b)
	return nil
}

func (s *Bids) GetByID(_ context.Context, id uuid.UUID) (*models.Bid, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	b, ok := s.db.st.bids[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	b.Milestones = slices.Clone(b.Milestones)
	return &b, nil
}

func (s *Bids) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Bid, error) {
	return s.GetByID(ctx, id)
}

func (s *Bids) ListByJob(_ context.Context, jobID uuid.UUID) ([]*models.Bid, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*models.Bid
	for _, b := range s.db.st.bids {
		if b.JobID == jobID {
			cp := b
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *models.Bid) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (s *Bids) UpdateStatus(_ context.Context, _ pgx.Tx, id uuid.UUID, from, to string) (bool, error) {
	err := s.db.lock("bids.update_status")
	defer s.db.mu.Unlock()
	if err != nil {
		return false, err
	}
	b, ok := s.db.st.bids[id]
	if !ok || b.Status != from {
		return false, nil
	}
	b.Status = to
	s.db.st.bids[id] = b
	return true, nil
}

func (s *Bids) TransitionMilestone(_ context.Context, _ pgx.Tx, bidMilestoneID uuid.UUID, from, to string) (bool, error) {
	err := s.db.lock("bids.transition_milestone")
	defer s.db.mu.Unlock()
	if err != nil {
		return false, err
	}
	for id, b := range s.db.st.bids {
		for i := range b.Milestones {
			if b.Milestones[i].ID != bidMilestoneID {
				continue
			}
			if b.Milestones[i].Status != from {
				return false, nil
			}
			b.Milestones = slices.Clone(b.Milestones)
			b.Milestones[i].Status = to
			s.db.st.bids[id] = b
			return true, nil
		}
	}
	return false, nil
}

// Get returns a copy of the stored bid, or the zero value.
func (s *Bids) Get(id uuid.UUID) models.Bid {
	b, _ := s.GetByID(context.Background(), id)
	if b == nil {
		return models.Bid{}
	}
	return *b
}

// ---------------------------------------------------------------------------
// Payments
// ---------------------------------------------------------------------------

type Payments struct{ db *DB }

func (s *Payments) CreateTx(_ context.Context, _ pgx.Tx, p *models.Payment) error {
	err := s.db.lock("payments.create")
	defer s.db.mu.Unlock()
	if err != nil {
		return err
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	s.db.st.payments[p.ID] = *p
	return nil
}

func (s *Payments) GetByID(_ context.Context, id uuid.UUID) (*models.Payment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.st.payments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &p, nil
}

func (s *Payments) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Payment, error) {
	return s.GetByID(ctx, id)
}

func (s *Payments) TransitionStatus(_ context.Context, _ pgx.Tx, id uuid.UUID, from, to string) (bool, error) {
	err := s.db.lock("payments.transition")
	defer s.db.mu.Unlock()
	if err != nil {
		return false, err
	}
	p, ok := s.db.st.payments[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	p.UpdatedAt = time.Now()
	s.db.st.payments[id] = p
	return true, nil
}

func (s *Payments) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.Payment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*models.Payment
	for _, p := range s.db.st.payments {
		if p.ClientID == userID || p.FreelancerID == userID {
			cp := p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// All returns every stored payment.
func (s *Payments) All() []models.Payment {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]models.Payment, 0, len(s.db.st.payments))
	for _, p := range s.db.st.payments {
		out = append(out, p)
	}
	return out
}

// ---------------------------------------------------------------------------
// Releases
// ---------------------------------------------------------------------------

type Releases struct{ db *DB }

func (s *Releases) Insert(_ context.Context, _ pgx.Tx, r *models.FundRelease) error {
	err := s.db.lock("releases.insert")
	defer s.db.mu.Unlock()
	if err != nil {
		return err
	}
	for _, existing := range s.db.st.releases {
		if existing.MilestoneID == r.MilestoneID {
			return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint \"fund_releases_milestone_id_key\""}
		}
	}
	r.CreatedAt = time.Now()
	s.db.st.releases = append(s.db.st.releases, *r)
	return nil
}

func (s *Releases) Claim(_ context.Context, _ pgx.Tx, id uuid.UUID, now time.Time) (*models.FundRelease, error) {
	err := s.db.lock("releases.claim")
	defer s.db.mu.Unlock()
	if err != nil {
		return nil, err
	}
	for i := range s.db.st.releases {
		r := &s.db.st.releases[i]
		if r.ID != id || r.ReleasedAt != nil || r.DueAt.After(now) {
			continue
		}
		at := now
		r.ReleasedAt = &at
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (s *Releases) Get(_ context.Context, id uuid.UUID) (*models.FundRelease, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, r := range s.db.st.releases {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, nil
}

func (s *Releases) ListDue(_ context.Context, now time.Time, after models.ReleaseCursor, limit int) ([]models.ReleaseCursor, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.ReleaseCursor
	for _, r := range s.db.st.releases {
		c := models.ReleaseCursor{DueAt: r.DueAt, ID: r.ID}
		if r.ReleasedAt == nil && !r.DueAt.After(now) && c.Compare(after) > 0 {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, models.ReleaseCursor.Compare)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every stored release.
func (s *Releases) All() []models.FundRelease {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return slices.Clone(s.db.st.releases)
}

// ---------------------------------------------------------------------------
// Notifications
// ---------------------------------------------------------------------------

type Notifications struct{ db *DB }

func (s *Notifications) Create(_ context.Context, n *models.Notification) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	n.CreatedAt = time.Now()
	s.db.st.notifications = append(s.db.st.notifications, *n)
	return nil
}

func (s *Notifications) MarkRead(_ context.Context, id, recipientID uuid.UUID) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for i := range s.db.st.notifications {
		if n := &s.db.st.notifications[i]; n.ID == id && n.RecipientID == recipientID {
			n.Read = true
			return true, nil
		}
	}
	return false, nil
}

func (s *Notifications) ListByRecipient(_ context.Context, recipientID uuid.UUID, limit int) ([]*models.Notification, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*models.Notification
	for i := len(s.db.st.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		if n := s.db.st.notifications[i]; n.RecipientID == recipientID {
			out = append(out, &n)
		}
	}
	return out, nil
}
