package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/goleak"

	"github.com/gigmarket/backend/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeNotifier struct {
	mu    sync.Mutex
	items []*models.Notification
	err   error
}

func (f *fakeNotifier) Notify(_ context.Context, n *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, n)
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []Email
}

func (f *fakeMailer) SendEmail(_ context.Context, e Email) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, e)
	return nil
}

type fakeRecipients map[uuid.UUID]*models.User

func (f fakeRecipients) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, errors.New("no such user")
	}
	return u, nil
}

type memDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memDeduper) AcquireOnce(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[key] {
		return false
	}
	d.seen[key] = true
	return true
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return nil
}

type memCreator struct{ n int }

func (c *memCreator) Create(_ context.Context, _ *models.Notification) error {
	c.n++
	return nil
}

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

func TestDispatcher_DeliversNotificationAndEmail(t *testing.T) {
	user := &models.User{ID: uuid.New(), Email: "dev@example.com"}
	notifier := &fakeNotifier{}
	mailer := &fakeMailer{}
	d := NewDispatcher(2, 8, notifier, mailer, fakeRecipients{user.ID: user}, nil, nil)

	d.Announce(context.Background(),
		Message{RecipientID: user.ID, Type: models.NotifyOffer, Title: "New offer", Body: "hi", Subject: "New offer"},
		Message{RecipientID: user.ID, Type: models.NotifyPayment, Title: "Payment", Body: "in-app only"},
	)
	d.Close()

	if got := notifier.count(); got != 2 {
		t.Errorf("notifications: got %d, want 2", got)
	}
	if len(mailer.sent) != 1 || mailer.sent[0].To != "dev@example.com" {
		t.Errorf("emails: got %+v", mailer.sent)
	}
}

func TestDispatcher_NotifierErrorDoesNotStopEmail(t *testing.T) {
	user := &models.User{ID: uuid.New(), Email: "c@example.com"}
	notifier := &fakeNotifier{err: errors.New("db down")}
	mailer := &fakeMailer{}
	d := NewDispatcher(1, 4, notifier, mailer, fakeRecipients{user.ID: user}, nil, nil)

	d.Announce(context.Background(), Message{RecipientID: user.ID, Type: models.NotifyOfferAccepted, Subject: "Accepted"})
	d.Close()

	if len(mailer.sent) != 1 {
		t.Errorf("emails: got %d, want 1", len(mailer.sent))
	}
}

func TestDispatcher_Dedup(t *testing.T) {
	id := uuid.New()
	notifier := &fakeNotifier{}
	d := NewDispatcher(1, 4, notifier, nil, nil, &memDeduper{seen: map[string]bool{}}, nil)

	msg := Message{RecipientID: id, Type: models.NotifyMilestoneApproved, DedupKey: "approved:m1:" + id.String()}
	d.Announce(context.Background(), msg, msg)
	d.Close()

	if got := notifier.count(); got != 1 {
		t.Errorf("notifications: got %d, want 1", got)
	}
}

func TestDispatcher_AnnounceAfterCloseIsDropped(t *testing.T) {
	notifier := &fakeNotifier{}
	d := NewDispatcher(1, 1, notifier, nil, nil, nil, nil)
	d.Close()
	d.Close()

	d.Announce(context.Background(), Message{RecipientID: uuid.New(), Type: models.NotifyOffer})
	if got := notifier.count(); got != 0 {
		t.Errorf("notifications after close: got %d", got)
	}
}

// ---------------------------------------------------------------------------
// Channels
// ---------------------------------------------------------------------------

func TestStoreNotifier_PersistsThenPublishes(t *testing.T) {
	store := &memCreator{}
	pub := &recordingPublisher{}
	n := &StoreNotifier{Store: store, Publisher: pub}

	if err := n.Notify(context.Background(), &models.Notification{ID: uuid.New()}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if store.n != 1 {
		t.Errorf("stored: got %d", store.n)
	}
	if len(pub.keys) != 1 || pub.keys[0] != RoutingNotificationCreated {
		t.Errorf("published: got %v", pub.keys)
	}
}

func TestMQMailer(t *testing.T) {
	pub := &recordingPublisher{}
	m := NewMQMailer(pub, 100, 1)

	if err := m.SendEmail(context.Background(), Email{Subject: "x"}); err == nil {
		t.Error("expected error for missing recipient")
	}
	if err := m.SendEmail(context.Background(), Email{To: "a@example.com", Subject: "x"}); err != nil {
		t.Fatalf("SendEmail: %v", err)
	}
	if len(pub.keys) != 1 || pub.keys[0] != RoutingEmailSend {
		t.Errorf("published: got %v", pub.keys)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewMQMailer(pub, 0.001, 0).SendEmail(ctx, Email{To: "a@example.com"}); err == nil {
		t.Error("expected throttle error on cancelled context")
	}
}
