// Package notify fans workflow events out to in-app notifications and email.
// Delivery happens after the workflow commits and never fails it.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gigmarket/backend/internal/models"
)

const deliveryTimeout = 10 * time.Second

// Message is one event addressed to one user. A non-empty Subject also sends
// an email to the recipient.
type Message struct {
	RecipientID uuid.UUID
	Type        string
	Title       string
	Body        string
	Subject     string
	Data        map[string]any
	// DedupKey suppresses repeated deliveries of the same event.
	DedupKey string
}

type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// Notifier persists an in-app notification.
type Notifier interface {
	Notify(ctx context.Context, n *models.Notification) error
}

// Mailer sends an email.
type Mailer interface {
	SendEmail(ctx context.Context, e Email) error
}

// Recipients resolves the recipient's email address.
type Recipients interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Deduper reports whether key is seen for the first time.
type Deduper interface {
	AcquireOnce(ctx context.Context, key string) bool
}

// Dispatcher delivers messages on a fixed pool of workers.
type Dispatcher struct {
	Notifier   Notifier
	Mailer     Mailer
	Recipients Recipients
	Deduper    Deduper
	Logger     *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Message
	wg     sync.WaitGroup
}

// NewDispatcher starts workers goroutines draining a queue of queueSize messages.
func NewDispatcher(workers, queueSize int, notifier Notifier, mailer Mailer, recipients Recipients, deduper Deduper, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	d := &Dispatcher{
		Notifier:   notifier,
		Mailer:     mailer,
		Recipients: recipients,
		Deduper:    deduper,
		Logger:     logger,
		queue:      make(chan Message, queueSize),
	}
	for range workers {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

// Announce queues messages for delivery. Messages are dropped, with a
// warning, when the queue is full or the dispatcher is closed.
func (d *Dispatcher) Announce(ctx context.Context, msgs ...Message) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, m := range msgs {
		if d.closed {
			d.Logger.Warn("notification dropped, dispatcher closed", "type", m.Type, "recipient_id", m.RecipientID)
			continue
		}
		select {
		case d.queue <- m:
		default:
			d.Logger.Warn("notification dropped, queue full", "type", m.Type, "recipient_id", m.RecipientID)
		}
	}
}

// Close stops accepting messages, drains the queue and waits for workers.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for m := range d.queue {
		d.deliver(m)
	}
}

func (d *Dispatcher) deliver(m Message) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	if m.DedupKey != "" && d.Deduper != nil && !d.Deduper.AcquireOnce(ctx, m.DedupKey) {
		d.Logger.Info("skipped duplicate notification", "dedup_key", m.DedupKey)
		return
	}

	n := &models.Notification{
		ID:          uuid.New(),
		RecipientID: m.RecipientID,
		Type:        m.Type,
		Title:       m.Title,
		Message:     m.Body,
	}
	if len(m.Data) > 0 {
		data, err := json.Marshal(m.Data)
		if err == nil {
			n.Data = data
		}
	}
	if d.Notifier != nil {
		if err := d.Notifier.Notify(ctx, n); err != nil {
			d.Logger.Error("notification failed", "type", m.Type, "recipient_id", m.RecipientID, "error", err)
		}
	}

	if m.Subject == "" || d.Mailer == nil || d.Recipients == nil {
		return
	}
	u, err := d.Recipients.GetByID(ctx, m.RecipientID)
	if err != nil {
		d.Logger.Error("email recipient lookup failed", "recipient_id", m.RecipientID, "error", err)
		return
	}
	if err := d.Mailer.SendEmail(ctx, Email{To: u.Email, Subject: m.Subject, Text: m.Body}); err != nil {
		d.Logger.Error("email failed", "type", m.Type, "recipient_id", m.RecipientID, "error", err)
	}
}
