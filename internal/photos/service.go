package photos

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"photostore/internal/metrics"
	"photostore/internal/storage"
)

// Operation names used in logs and metrics.
const (
	OpResolve          = "resolve"
	OpList             = "list"
	OpUpload           = "upload"
	OpUpdateOptimistic = "update_optimistic"
	OpUpdateIfMatch    = "update_if_match"
	OpUpdateLease      = "update_lease"
	OpFetch            = "fetch"
)

// Service exposes every photo operation over one store and records each
// call's outcome.
type Service struct {
	store      storage.Backend
	resolver   *Resolver
	catalog    *Catalog
	uploader   *Uploader
	optimistic *OptimisticUpdater
	leases     *LeaseUpdater
	reader     *Reader
	logger     *slog.Logger
	observer   Observer
}

func NewService(store storage.Backend, opts ...Option) *Service {
	o := buildOptions(opts)
	return &Service{
		store:      store,
		resolver:   NewResolver(store),
		catalog:    NewCatalog(store, opts...),
		uploader:   NewUploader(store),
		optimistic: NewOptimisticUpdater(store),
		leases:     NewLeaseUpdater(store, opts...),
		reader:     NewReader(store),
		logger:     o.logger,
		observer:   o.observer,
	}
}

// Backend names the store the service talks to.
func (s *Service) Backend() string { return s.store.Name() }

func (s *Service) Resolve(ctx context.Context, container string) (c Container, err error) {
	defer s.finish(OpResolve, container, "", time.Now(), &err)
	return s.resolver.Resolve(ctx, container)
}

func (s *Service) List(ctx context.Context, container string) (out []BlobSummary, err error) {
	defer s.finish(OpList, container, "", time.Now(), &err)
	return s.catalog.List(ctx, container)
}

func (s *Service) Upload(ctx context.Context, container, fileName string, data []byte) (r Receipt, err error) {
	defer s.finish(OpUpload, container, fileName, time.Now(), &err)
	return s.uploader.Upload(ctx, container, fileName, data)
}

func (s *Service) UpdateOptimistic(ctx context.Context, container, fileName string, data []byte) (r Receipt, err error) {
	defer s.finish(OpUpdateOptimistic, container, fileName, time.Now(), &err)
	return s.optimistic.Update(ctx, container, fileName, data)
}

func (s *Service) UpdateIfMatch(ctx context.Context, container, fileName string, data []byte, etag storage.ETag) (r Receipt, err error) {
	defer s.finish(OpUpdateIfMatch, container, fileName, time.Now(), &err)
	return s.optimistic.UpdateIfMatch(ctx, container, fileName, data, etag)
}

func (s *Service) UpdateWithLease(ctx context.Context, container, fileName string, data []byte) (r Receipt, err error) {
	defer s.finish(OpUpdateLease, container, fileName, time.Now(), &err)
	return s.leases.Update(ctx, container, fileName, data)
}

func (s *Service) Fetch(ctx context.Context, container, fileName string) (p Photo, err error) {
	defer s.finish(OpFetch, container, fileName, time.Now(), &err)
	return s.reader.Fetch(ctx, container, fileName)
}

func (s *Service) finish(op, container, fileName string, start time.Time, errp *error) {
	elapsed := time.Since(start)
	outcome := Outcome(*errp)
	s.observer.ObserveOperation(op, outcome, elapsed)

	switch outcome {
	case metrics.OutcomeOK:
		s.logger.Debug("photo operation", "op", op, "container", container, "file", fileName, "elapsed", elapsed)
	case KindTransport.String():
		s.logger.Error("photo operation failed", "op", op, "container", container, "file", fileName, "err", *errp)
	default:
		s.logger.Info("photo operation rejected", "op", op, "container", container, "file", fileName, "outcome", outcome, "err", *errp)
	}
}

// Outcome labels err for logs and metrics: "ok", "invalid", or the Kind.
func Outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrInvalidName), errors.Is(err, ErrInvalidToken):
		return metrics.OutcomeInvalid
	}
	if k := KindOf(err); k != 0 {
		return k.String()
	}
	return KindTransport.String()
}
