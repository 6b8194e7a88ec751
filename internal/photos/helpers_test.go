package photos

import (
	"context"
	"sync"
	"time"

	"photostore/internal/storage"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newMemory() (*storage.MemoryStore, *testClock) {
	clock := newTestClock()
	return storage.NewMemoryStore(storage.WithClock(clock.Now)), clock
}

// faultyStore wraps a backend and injects failures or side effects.
type faultyStore struct {
	storage.Backend

	mu            sync.Mutex
	ensureErr     error
	listErr       error
	propertiesErr error
	uploadErr     error
	acquireErr    error
	releaseErr    error
	beforeUpload  func()
	releaseCtxErr error
	ensures       int
	releases      int
	acquired      []string
}

func (f *faultyStore) EnsureContainer(ctx context.Context, container string) error {
	f.mu.Lock()
	f.ensures++
	err := f.ensureErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Backend.EnsureContainer(ctx, container)
}

func (f *faultyStore) ListBlobs(ctx context.Context, container string) ([]storage.BlobItem, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.Backend.ListBlobs(ctx, container)
}

func (f *faultyStore) Properties(ctx context.Context, container, name string) (storage.BlobProperties, error) {
	if f.propertiesErr != nil {
		return storage.BlobProperties{}, f.propertiesErr
	}
	return f.Backend.Properties(ctx, container, name)
}

func (f *faultyStore) Upload(ctx context.Context, container, name string, data []byte, opts storage.UploadOptions) (storage.UploadResult, error) {
	if f.beforeUpload != nil {
		hook := f.beforeUpload
		f.beforeUpload = nil
		hook()
	}
	if f.uploadErr != nil {
		return storage.UploadResult{}, f.uploadErr
	}
	return f.Backend.Upload(ctx, container, name, data, opts)
}

func (f *faultyStore) AcquireLease(ctx context.Context, container, name string, d time.Duration, proposedID string) (string, error) {
	if f.acquireErr != nil {
		return "", f.acquireErr
	}
	id, err := f.Backend.AcquireLease(ctx, container, name, d, proposedID)
	if err == nil {
		f.mu.Lock()
		f.acquired = append(f.acquired, id)
		f.mu.Unlock()
	}
	return id, err
}

func (f *faultyStore) lastLease() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.acquired) == 0 {
		return ""
	}
	return f.acquired[len(f.acquired)-1]
}

func (f *faultyStore) ReleaseLease(ctx context.Context, container, name, leaseID string) error {
	f.mu.Lock()
	f.releases++
	f.releaseCtxErr = ctx.Err()
	err := f.releaseErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Backend.ReleaseLease(ctx, container, name, leaseID)
}

func (f *faultyStore) releaseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releases
}

type recordedOp struct {
	op      string
	outcome string
}

type recordingObserver struct {
	mu              sync.Mutex
	ops             []recordedOp
	releaseFailures int
}

func (r *recordingObserver) ObserveOperation(op, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, recordedOp{op: op, outcome: outcome})
}

func (r *recordingObserver) ObserveLeaseReleaseFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseFailures++
}
