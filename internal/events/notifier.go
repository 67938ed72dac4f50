// Package events delivers fire-and-forget notifications about ledger
// mutations. Subscribers observe state after the fact; a subscriber failure
// is logged and never aborts the originating operation.
package events

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type enumerates the observable ledger mutations.
type Type string

const (
	AccountCreated   Type = "AccountCreated"
	AccountDeleted   Type = "AccountDeleted"
	CreditAdded      Type = "CreditAdded"
	DebitAdded       Type = "DebitAdded"
	EntryCanceled    Type = "EntryCanceled"
	EntriesCommitted Type = "EntriesCommitted"
)

// Event carries the identifiers of a completed mutation. Fields beyond Type
// and AccountGUID are populated per event type.
type Event struct {
	Type        Type
	AccountGUID uuid.UUID
	// EntryGUID identifies the entry for single-entry events.
	EntryGUID uuid.UUID
	// BalanceGUID and EntryGUIDs describe a commit: the new Balance entry
	// and the credits/debits it folded in.
	BalanceGUID      uuid.UUID
	EntryGUIDs       []uuid.UUID
	CommittedBalance decimal.Decimal
}

// Subscriber receives post-commit notifications. Subscribers must not mutate
// ledger state from their callback.
type Subscriber func(Event)

// Notifier multicasts events to registered subscribers.
type Notifier struct {
	mu   sync.RWMutex
	subs []Subscriber
	log  *slog.Logger
}

// NewNotifier constructs a notifier logging subscriber failures to log.
func NewNotifier(log *slog.Logger) *Notifier {
	return &Notifier{log: log}
}

// Subscribe registers a callback. Registration order is delivery order.
func (n *Notifier) Subscribe(fn Subscriber) {
	n.mu.Lock()
	n.subs = append(n.subs, fn)
	n.mu.Unlock()
}

// Emit delivers the event to every subscriber. Panics are recovered and
// logged so a misbehaving subscriber cannot surface as an operation error.
func (n *Notifier) Emit(ev Event) {
	n.mu.RLock()
	subs := n.subs
	n.mu.RUnlock()
	for _, fn := range subs {
		n.deliver(fn, ev)
	}
}

func (n *Notifier) deliver(fn Subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error("event subscriber panicked", "event", string(ev.Type), "account", ev.AccountGUID.String(), "panic", r)
		}
	}()
	fn(ev)
}
