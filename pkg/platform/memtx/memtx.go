// Package memtx gives in-memory stores the same all-or-nothing commit the
// PostgreSQL backend gets from a SQL transaction.
//
// Stores sharing a Lock take its read side for queries. Writes made with a
// context produced by Transactor.RunInTx are staged in a journal; at commit the
// journal's checks all run first (version checks, uniqueness), then every
// apply runs, all under the write side of the lock. Readers therefore observe
// either none or all of a unit's writes.
//
// Staged writes are not visible to reads inside the same unit.
package memtx

import (
	"context"
	"errors"
	"sync"
	"time"

	dErrors "crm/pkg/domain-errors"
)

// Lock is the commit lock shared by every store taking part in a unit of work.
type Lock struct {
	sync.RWMutex
}

// NewLock returns a fresh commit lock.
func NewLock() *Lock {
	return &Lock{}
}

type op struct {
	check func() error
	apply func()
}

// Journal collects staged writes for one unit of work.
type Journal struct {
	lock *Lock
	ops  []op
}

type journalKey struct{}

// ErrForeignLock is returned when a store bound to a different Lock writes
// inside a unit of work.
var ErrForeignLock = errors.New("memtx: store is not bound to this transaction's lock")

// From extracts the journal of the enclosing unit of work, if any.
func From(ctx context.Context) (*Journal, bool) {
	j, ok := ctx.Value(journalKey{}).(*Journal)
	return j, ok
}

// Write stages a write in the context's journal, or applies it immediately
// under the write lock when no unit of work is active. check may be nil.
func Write(ctx context.Context, lock *Lock, check func() error, apply func()) error {
	if j, ok := From(ctx); ok {
		if j.lock != lock {
			return ErrForeignLock
		}
		j.ops = append(j.ops, op{check: check, apply: apply})
		return nil
	}

	lock.Lock()
	defer lock.Unlock()
	if check != nil {
		if err := check(); err != nil {
			return err
		}
	}
	apply()
	return nil
}

// Transactor implements tx.Transactor for in-memory stores.
type Transactor struct {
	lock    *Lock
	timeout time.Duration
}

const defaultTimeout = 5 * time.Second

// NewTransactor binds a transactor to the stores' shared lock.
func NewTransactor(lock *Lock, timeout time.Duration) *Transactor {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Transactor{lock: lock, timeout: timeout}
}

func (t *Transactor) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, ok := From(ctx); ok {
		return fn(ctx)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	j := &Journal{lock: t.lock}
	if err := fn(context.WithValue(ctx, journalKey{}, j)); err != nil {
		return err
	}
	return t.commit(ctx, j)
}

func (t *Transactor) commit(ctx context.Context, j *Journal) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	for _, o := range j.ops {
		if o.check == nil {
			continue
		}
		if err := o.check(); err != nil {
			return err
		}
	}
	for _, o := range j.ops {
		o.apply()
	}
	return nil
}
