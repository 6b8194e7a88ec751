package photos

import (
	"context"

	"photostore/internal/storage"
)

// Photo is a downloaded blob.
type Photo struct {
	Name        string
	URL         string
	ETag        storage.ETag
	ContentType string
	Data        []byte
}

// Reader downloads blobs. It does not resolve the container, so reading
// never creates anything.
type Reader struct {
	store storage.Backend
}

func NewReader(store storage.Backend) *Reader {
	return &Reader{store: store}
}

func (r *Reader) Fetch(ctx context.Context, container, fileName string) (Photo, error) {
	if err := validateContainer(container); err != nil {
		return Photo{}, err
	}
	name, err := BlobName(fileName)
	if err != nil {
		return Photo{}, err
	}
	res, err := r.store.Download(ctx, container, name)
	if err != nil {
		return Photo{}, transportError("fetch", container, name, err)
	}
	return Photo{
		Name:        name,
		URL:         r.store.BlobURL(container, name),
		ETag:        res.ETag,
		ContentType: res.ContentType,
		Data:        res.Data,
	}, nil
}
