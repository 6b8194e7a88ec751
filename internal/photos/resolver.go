package photos

import (
	"context"
	"strings"

	"photostore/internal/storage"
)

// Container is a resolved container handle.
type Container struct {
	Name string
	URL  string
}

// Resolver provisions containers with public blob access. It never caches:
// every call goes to the store.
type Resolver struct {
	store storage.Backend
}

func NewResolver(store storage.Backend) *Resolver {
	return &Resolver{store: store}
}

// Resolve creates the container when missing and makes its blobs publicly
// readable. Repeated calls converge on the same state.
func (r *Resolver) Resolve(ctx context.Context, name string) (Container, error) {
	if err := validateContainer(name); err != nil {
		return Container{}, err
	}
	if err := r.store.EnsureContainer(ctx, name); err != nil {
		return Container{}, transportError("resolve", name, "", err)
	}
	if err := r.store.SetPublicBlobAccess(ctx, name); err != nil {
		return Container{}, transportError("resolve", name, "", err)
	}
	return Container{
		Name: name,
		URL:  strings.TrimSuffix(r.store.BlobURL(name, ""), "/"),
	}, nil
}
