package storage

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

type heldLease struct {
	id      string
	expires time.Time
}

// leaseTable tracks blob leases for stores without a native lease
// primitive. Keys are "container/name".
type leaseTable struct {
	mu     sync.Mutex
	now    func() time.Time
	leases map[string]heldLease
}

func newLeaseTable(now func() time.Time) *leaseTable {
	if now == nil {
		now = time.Now
	}
	return &leaseTable{now: now, leases: make(map[string]heldLease)}
}

func (t *leaseTable) active(key string) (heldLease, bool) {
	l, ok := t.leases[key]
	if !ok {
		return heldLease{}, false
	}
	if !t.now().Before(l.expires) {
		delete(t.leases, key)
		return heldLease{}, false
	}
	return l, true
}

// acquire grants a lease on key. A live lease held under a different id
// is a conflict; re-acquiring with the holder's id renews it.
func (t *leaseTable) acquire(key string, duration time.Duration, proposedID string) (string, error) {
	if err := validateLeaseDuration(duration); err != nil {
		return "", err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if held, ok := t.active(key); ok && held.id != proposedID {
		return "", newStatusError(http.StatusConflict, "LeaseAlreadyPresent")
	}
	id := proposedID
	if id == "" {
		id = uuid.NewString()
	}
	t.leases[key] = heldLease{id: id, expires: t.now().Add(duration)}
	return id, nil
}

// checkWrite applies the lease rules to a write carrying cond.
func (t *leaseTable) checkWrite(key string, cond Condition) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	held, leased := t.active(key)
	switch {
	case leased && cond.Kind != CondLease:
		return &StatusError{Status: http.StatusPreconditionFailed, Code: "LeaseIdMissing", Err: errPreconditionFailed}
	case leased && held.id != cond.Value:
		return &StatusError{Status: http.StatusPreconditionFailed, Code: "LeaseIdMismatchWithBlobOperation", Err: errPreconditionFailed}
	case !leased && cond.Kind == CondLease:
		return &StatusError{Status: http.StatusPreconditionFailed, Code: "LeaseNotPresentWithBlobOperation", Err: errPreconditionFailed}
	}
	return nil
}

func (t *leaseTable) release(key, leaseID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	held, ok := t.active(key)
	if !ok {
		return newStatusError(http.StatusConflict, "LeaseNotPresentWithLeaseOperation")
	}
	if held.id != leaseID {
		return newStatusError(http.StatusConflict, "LeaseIdMismatchWithLeaseOperation")
	}
	delete(t.leases, key)
	return nil
}

func (t *leaseTable) isLeased(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.active(key)
	return ok
}
