package photos

import (
	"context"
	"fmt"
	"net/http"

	"photostore/internal/storage"
)

// OptimisticUpdater writes a blob only while its version token is unchanged.
// The store compares tokens atomically; this type only classifies the answer.
type OptimisticUpdater struct {
	store    storage.Backend
	resolver *Resolver
}

func NewOptimisticUpdater(store storage.Backend) *OptimisticUpdater {
	return &OptimisticUpdater{store: store, resolver: NewResolver(store)}
}

// Update reads the blob's current token and writes guarded by it. A blob
// that does not exist yet is created only if nobody else creates it first.
func (u *OptimisticUpdater) Update(ctx context.Context, container, fileName string, data []byte) (Receipt, error) {
	name, err := BlobName(fileName)
	if err != nil {
		return Receipt{}, err
	}
	if _, err := u.resolver.Resolve(ctx, container); err != nil {
		return Receipt{}, err
	}

	cond := storage.IfNotExists()
	props, err := u.store.Properties(ctx, container, name)
	switch {
	case err == nil:
		cond = storage.IfMatch(props.ETag)
	case !storage.IsNotFound(err):
		return Receipt{}, transportError("update_optimistic", container, name, err)
	}
	return u.write(ctx, "update_optimistic", container, name, data, cond)
}

// UpdateIfMatch writes guarded by a token the caller observed earlier, so
// a change made at any point after that read is detected.
func (u *OptimisticUpdater) UpdateIfMatch(ctx context.Context, container, fileName string, data []byte, etag storage.ETag) (Receipt, error) {
	if etag == "" {
		return Receipt{}, fmt.Errorf("%w: empty etag", ErrInvalidToken)
	}
	name, err := BlobName(fileName)
	if err != nil {
		return Receipt{}, err
	}
	if _, err := u.resolver.Resolve(ctx, container); err != nil {
		return Receipt{}, err
	}
	return u.write(ctx, "update_if_match", container, name, data, storage.IfMatch(etag))
}

func (u *OptimisticUpdater) write(ctx context.Context, op, container, name string, data []byte, cond storage.Condition) (Receipt, error) {
	res, err := u.store.Upload(ctx, container, name, data, storage.UploadOptions{
		ContentType: contentTypeFor(name),
		Condition:   cond,
	})
	if err == nil {
		return receipt(u.store, container, name, res.ETag), nil
	}

	if isTokenMismatch(cond, err) {
		e := newError(KindOptimisticConflict, op, container, name, err)
		if cond.Kind == storage.CondIfMatch {
			e.ETag = storage.ETag(cond.Value)
		}
		return Receipt{}, e
	}
	return Receipt{}, transportError(op, container, name, err)
}

// isTokenMismatch reports whether err is the store rejecting cond. A
// create-only write that loses the race is answered with 409 by some
// stores and 412 by others.
func isTokenMismatch(cond storage.Condition, err error) bool {
	switch storage.StatusCode(err) {
	case http.StatusPreconditionFailed:
		return true
	case http.StatusConflict:
		return cond.Kind == storage.CondIfNoneMatch
	default:
		return false
	}
}
