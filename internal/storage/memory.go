package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

const defaultMemoryBaseURL = "memory://photostore"

// MemoryStore is an in-memory Backend with the conditional-write and lease
// rules of a real blob service. Safe for concurrent use.
type MemoryStore struct {
	mu         sync.Mutex
	baseURL    string
	now        func() time.Time
	seq        uint64
	containers map[string]*memContainer
	leases     *leaseTable
}

type memContainer struct {
	publicBlobAccess bool
	blobs            map[string]*memBlob
}

type memBlob struct {
	data        []byte
	etag        ETag
	contentType string
	kind        BlobKind
	modified    time.Time
}

// ContainerInfo describes a container held by a MemoryStore.
type ContainerInfo struct {
	PublicBlobAccess bool
	Blobs            int
}

type MemoryOption func(*MemoryStore)

// WithClock overrides the time source used for lease expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.now = now }
}

func WithBaseURL(base string) MemoryOption {
	return func(m *MemoryStore) { m.baseURL = strings.TrimRight(base, "/") }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		baseURL:    defaultMemoryBaseURL,
		now:        time.Now,
		containers: make(map[string]*memContainer),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.leases = newLeaseTable(func() time.Time { return m.now() })
	return m
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) EnsureContainer(_ context.Context, container string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.containers[container]; ok {
		return nil
	}
	m.containers[container] = &memContainer{blobs: make(map[string]*memBlob)}
	return nil
}

func (m *MemoryStore) SetPublicBlobAccess(_ context.Context, container string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.container(container)
	if err != nil {
		return err
	}
	c.publicBlobAccess = true
	return nil
}

func (m *MemoryStore) ListBlobs(_ context.Context, container string) ([]BlobItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.container(container)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(c.blobs))
	for name := range c.blobs {
		names = append(names, name)
	}
	sort.Strings(names)

	items := make([]BlobItem, 0, len(names))
	for _, name := range names {
		b := c.blobs[name]
		items = append(items, BlobItem{
			Name: name,
			URL:  m.BlobURL(container, name),
			Kind: b.kind,
			ETag: b.etag,
			Size: int64(len(b.data)),
		})
	}
	return items, nil
}

func (m *MemoryStore) BlobURL(container, name string) string {
	return m.baseURL + "/" + url.PathEscape(container) + "/" + url.PathEscape(name)
}

func (m *MemoryStore) Properties(_ context.Context, container, name string) (BlobProperties, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.blob(container, name)
	if err != nil {
		return BlobProperties{}, err
	}
	return BlobProperties{
		ETag:         b.etag,
		Size:         int64(len(b.data)),
		ContentType:  b.contentType,
		LastModified: b.modified,
		Leased:       m.leases.isLeased(leaseKey(container, name)),
	}, nil
}

func (m *MemoryStore) Upload(_ context.Context, container, name string, data []byte, opts UploadOptions) (UploadResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.container(container)
	if err != nil {
		return UploadResult{}, err
	}
	existing := c.blobs[name]
	switch opts.Condition.Kind {
	case CondIfMatch:
		if existing == nil || string(existing.etag) != opts.Condition.Value {
			return UploadResult{}, &StatusError{Status: http.StatusPreconditionFailed, Code: "ConditionNotMet", Err: errPreconditionFailed}
		}
	case CondIfNoneMatch:
		if existing != nil {
			return UploadResult{}, newStatusError(http.StatusConflict, "BlobAlreadyExists")
		}
	}
	if err := m.leases.checkWrite(leaseKey(container, name), opts.Condition); err != nil {
		return UploadResult{}, err
	}

	blob := &memBlob{
		data:        append([]byte(nil), data...),
		etag:        m.nextETag(),
		contentType: opts.ContentType,
		kind:        KindBlock,
		modified:    m.now().UTC(),
	}
	c.blobs[name] = blob
	return UploadResult{ETag: blob.etag}, nil
}

func (m *MemoryStore) Download(_ context.Context, container, name string) (DownloadResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.blob(container, name)
	if err != nil {
		return DownloadResult{}, err
	}
	return DownloadResult{
		Data:        append([]byte(nil), b.data...),
		ETag:        b.etag,
		ContentType: b.contentType,
	}, nil
}

func (m *MemoryStore) AcquireLease(_ context.Context, container, name string, duration time.Duration, proposedID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.blob(container, name); err != nil {
		return "", err
	}
	return m.leases.acquire(leaseKey(container, name), duration, proposedID)
}

func (m *MemoryStore) ReleaseLease(_ context.Context, container, name, leaseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.blob(container, name); err != nil {
		return err
	}
	return m.leases.release(leaseKey(container, name), leaseID)
}

// PutBlob seeds a blob of an arbitrary kind, bypassing every precondition.
func (m *MemoryStore) PutBlob(container, name string, kind BlobKind, data []byte) ETag {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.containers[container]
	if !ok {
		c = &memContainer{blobs: make(map[string]*memBlob)}
		m.containers[container] = c
	}
	b := &memBlob{data: append([]byte(nil), data...), etag: m.nextETag(), kind: kind, modified: m.now().UTC()}
	c.blobs[name] = b
	return b.etag
}

func (m *MemoryStore) ContainerInfo(container string) (ContainerInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.containers[container]
	if !ok {
		return ContainerInfo{}, false
	}
	return ContainerInfo{PublicBlobAccess: c.publicBlobAccess, Blobs: len(c.blobs)}, true
}

func (m *MemoryStore) container(name string) (*memContainer, error) {
	c, ok := m.containers[name]
	if !ok {
		return nil, &StatusError{Status: http.StatusNotFound, Code: "ContainerNotFound", Err: errNotFound}
	}
	return c, nil
}

func (m *MemoryStore) blob(container, name string) (*memBlob, error) {
	c, err := m.container(container)
	if err != nil {
		return nil, err
	}
	b, ok := c.blobs[name]
	if !ok {
		return nil, &StatusError{Status: http.StatusNotFound, Code: "BlobNotFound", Err: errNotFound}
	}
	return b, nil
}

func (m *MemoryStore) nextETag() ETag {
	m.seq++
	return ETag(fmt.Sprintf("\"0x%016X\"", m.seq))
}

func leaseKey(container, name string) string {
	return container + "/" + name
}
