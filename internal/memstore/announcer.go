package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/gigmarket/backend/internal/notify"
)

// Announcer records announced messages instead of delivering them.
type Announcer struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (a *Announcer) Announce(_ context.Context, msgs ...notify.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, msgs...)
}

// Messages returns recorded messages, optionally filtered by type.
func (a *Announcer) Messages(typ string) []notify.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []notify.Message
	for _, m := range a.msgs {
		if typ == "" || m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

// To returns the messages addressed to recipient.
func (a *Announcer) To(recipient uuid.UUID) []notify.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []notify.Message
	for _, m := range a.msgs {
		if m.RecipientID == recipient {
			out = append(out, m)
		}
	}
	return out
}
