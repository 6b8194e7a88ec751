package photos

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"photostore/internal/storage"
)

// LeaseUpdater writes a blob while holding an exclusive lease on it.
type LeaseUpdater struct {
	store          storage.Backend
	resolver       *Resolver
	logger         *slog.Logger
	observer       Observer
	duration       time.Duration
	release        bool
	releaseTimeout time.Duration
}

func NewLeaseUpdater(store storage.Backend, opts ...Option) *LeaseUpdater {
	o := buildOptions(opts)
	return &LeaseUpdater{
		store:          store,
		resolver:       NewResolver(store),
		logger:         o.logger,
		observer:       o.observer,
		duration:       o.leaseDuration,
		release:        o.releaseLease,
		releaseTimeout: o.releaseTimeout,
	}
}

// Update acquires a lease on an existing blob, writes with the lease id
// as precondition and waits for the write. The lease is then released
// when release is enabled; expiry covers every path where it is not.
func (u *LeaseUpdater) Update(ctx context.Context, container, fileName string, data []byte) (Receipt, error) {
	const op = "update_lease"

	name, err := BlobName(fileName)
	if err != nil {
		return Receipt{}, err
	}
	if _, err := u.resolver.Resolve(ctx, container); err != nil {
		return Receipt{}, err
	}

	leaseID, err := u.store.AcquireLease(ctx, container, name, u.duration, "")
	if err != nil {
		switch storage.StatusCode(err) {
		case http.StatusNotFound, http.StatusConflict, http.StatusPreconditionFailed:
			return Receipt{}, newError(KindLeaseConflict, op, container, name, err)
		default:
			return Receipt{}, transportError(op, container, name, err)
		}
	}
	if u.release {
		defer u.releaseLease(ctx, container, name, leaseID)
	}

	res, err := u.store.Upload(ctx, container, name, data, storage.UploadOptions{
		ContentType: contentTypeFor(name),
		Condition:   storage.WithLease(leaseID),
	})
	if err != nil {
		if storage.IsPreconditionFailed(err) {
			e := newError(KindLeaseConflict, op, container, name, err)
			e.LeaseID = leaseID
			return Receipt{}, e
		}
		return Receipt{}, transportError(op, container, name, err)
	}
	return receipt(u.store, container, name, res.ETag), nil
}

// releaseLease runs after the write even when ctx is already done. Its
// failure never changes the write's outcome.
func (u *LeaseUpdater) releaseLease(ctx context.Context, container, name, leaseID string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.releaseTimeout)
	defer cancel()

	if err := u.store.ReleaseLease(rctx, container, name, leaseID); err != nil {
		u.observer.ObserveLeaseReleaseFailure()
		u.logger.Warn("lease release failed; lease left to expire",
			"container", container,
			"blob", name,
			"lease_id", leaseID,
			"err", err,
		)
	}
}
