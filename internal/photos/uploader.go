package photos

import (
	"context"

	"photostore/internal/storage"
)

// Receipt describes a blob after a successful write.
type Receipt struct {
	Container string       `json:"container"`
	Name      string       `json:"name"`
	URL       string       `json:"url"`
	ETag      storage.ETag `json:"etag"`
}

// Uploader writes blobs without any precondition. Concurrent writers race
// and the last one wins.
type Uploader struct {
	store    storage.Backend
	resolver *Resolver
}

func NewUploader(store storage.Backend) *Uploader {
	return &Uploader{store: store, resolver: NewResolver(store)}
}

func (u *Uploader) Upload(ctx context.Context, container, fileName string, data []byte) (Receipt, error) {
	name, err := BlobName(fileName)
	if err != nil {
		return Receipt{}, err
	}
	if _, err := u.resolver.Resolve(ctx, container); err != nil {
		return Receipt{}, err
	}
	res, err := u.store.Upload(ctx, container, name, data, storage.UploadOptions{ContentType: contentTypeFor(name)})
	if err != nil {
		return Receipt{}, transportError("upload", container, name, err)
	}
	return receipt(u.store, container, name, res.ETag), nil
}

func receipt(store storage.Backend, container, name string, etag storage.ETag) Receipt {
	return Receipt{
		Container: container,
		Name:      name,
		URL:       store.BlobURL(container, name),
		ETag:      etag,
	}
}
