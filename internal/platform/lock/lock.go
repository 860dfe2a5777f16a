// Package lock serializes critical sections by key, such as the
// check-then-insert of one doctor's appointments.
package lock

import (
	"context"
	"errors"
)

// ErrNotAcquired means the key stayed held by someone else for the whole
// wait budget.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker runs fn while holding the lock for key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}
