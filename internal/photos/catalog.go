package photos

import (
	"context"
	"log/slog"

	"photostore/internal/storage"
)

type BlobSummary struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Catalog lists the block and page blobs of a container.
type Catalog struct {
	store    storage.Backend
	resolver *Resolver
	logger   *slog.Logger
}

func NewCatalog(store storage.Backend, opts ...Option) *Catalog {
	o := buildOptions(opts)
	return &Catalog{store: store, resolver: NewResolver(store), logger: o.logger}
}

// List returns a snapshot of the container in the store's enumeration
// order. Append blobs and kinds the store did not identify are skipped.
func (c *Catalog) List(ctx context.Context, container string) ([]BlobSummary, error) {
	if _, err := c.resolver.Resolve(ctx, container); err != nil {
		return nil, err
	}
	items, err := c.store.ListBlobs(ctx, container)
	if err != nil {
		return nil, transportError("list", container, "", err)
	}

	out := make([]BlobSummary, 0, len(items))
	for _, item := range items {
		switch item.Kind {
		case storage.KindBlock, storage.KindPage:
			out = append(out, BlobSummary{Name: item.Name, URL: item.URL})
		case storage.KindAppend, storage.KindUnknown:
			c.logger.Debug("skipping blob", "container", container, "blob", item.Name, "kind", item.Kind.String())
		}
	}
	return out, nil
}
