// Package lock provides the per-account mutual exclusion table used by the
// ledger core. A key's lock is created on first use and lives for the
// process lifetime; the table is bounded in practice by the number of
// accounts.
package lock

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Keyed is a table of per-key exclusive locks safe for concurrent insertion
// of new keys. Acquisition is a cancellation point.
type Keyed struct {
	mu    sync.Mutex
	locks map[uuid.UUID]chan struct{}
}

// NewKeyed constructs an empty lock table.
func NewKeyed() *Keyed {
	return &Keyed{locks: make(map[uuid.UUID]chan struct{})}
}

func (k *Keyed) get(key uuid.UUID) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	ch, ok := k.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.locks[key] = ch
	}
	return ch
}

// Acquire blocks until the key's lock is held or ctx is done. On success the
// caller must Release with the same key.
func (k *Keyed) Acquire(ctx context.Context, key uuid.UUID) error {
	ch := k.get(key)
	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the key's lock. Calling Release without a matching Acquire
// is a programming error and panics.
func (k *Keyed) Release(key uuid.UUID) {
	ch := k.get(key)
	select {
	case <-ch:
	default:
		panic("lock: release of unheld key " + key.String())
	}
}
