package photos

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photostore/internal/storage"
)

func TestLeaseUpdateOnMissingBlobIsLeaseConflict(t *testing.T) {
	mem, _ := newMemory()
	ctx := context.Background()

	_, err := NewLeaseUpdater(mem).Update(ctx, "pics", "ghost.png", []byte("x"))
	require.ErrorIs(t, err, ErrLeaseConflict)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, http.StatusNotFound, StatusOf(err))

	_, err = NewReader(mem).Fetch(ctx, "pics", "ghost.png")
	assert.True(t, IsNotFound(err), "a failed lease must not create the blob")
}

func TestLeaseUpdateWritesAndReleases(t *testing.T) {
	mem, _ := newMemory()
	ctx := context.Background()
	t0 := mem.PutBlob("pics", "cat.png", storage.KindBlock, []byte("v0"))
	store := &faultyStore{Backend: mem}

	receipt, err := NewLeaseUpdater(store).Update(ctx, "pics", "a/b/cat.png", []byte("v1"))
	require.NoError(t, err)
	assert.NotEqual(t, t0, receipt.ETag)
	assert.Equal(t, 1, store.releaseCount())

	props, err := mem.Properties(ctx, "pics", "cat.png")
	require.NoError(t, err)
	assert.False(t, props.Leased, "lease should be released after the write")

	_, err = NewUploader(mem).Upload(ctx, "pics", "cat.png", []byte("next"))
	require.NoError(t, err, "released blob accepts unleased writes")
}

func TestLeaseUpdateWithoutReleaseLeavesLeaseToExpire(t *testing.T) {
	mem, clock := newMemory()
	ctx := context.Background()
	mem.PutBlob("pics", "cat.png", storage.KindBlock, []byte("v0"))
	store := &faultyStore{Backend: mem}
	u := NewLeaseUpdater(store, WithLeaseRelease(false))

	_, err := u.Update(ctx, "pics", "cat.png", []byte("v1"))
	require.NoError(t, err)
	assert.Zero(t, store.releaseCount())

	_, err = u.Update(ctx, "pics", "cat.png", []byte("v2"))
	require.ErrorIs(t, err, ErrLeaseConflict, "second writer is blocked until expiry")
	assert.Equal(t, http.StatusConflict, StatusOf(err))

	clock.Advance(DefaultLeaseDuration)
	_, err = u.Update(ctx, "pics", "cat.png", []byte("v3"))
	require.NoError(t, err)
}

func TestLeaseUpdateExpiredBeforeWriteIsLeaseConflict(t *testing.T) {
	mem, clock := newMemory()
	ctx := context.Background()
	mem.PutBlob("pics", "cat.png", storage.KindBlock, []byte("v0"))

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	obs := &recordingObserver{}
	store := &faultyStore{Backend: mem}
	store.beforeUpload = func() { clock.Advance(16 * time.Second) }

	_, err := NewLeaseUpdater(store, WithLogger(logger), WithObserver(obs)).Update(ctx, "pics", "cat.png", []byte("late"))
	require.ErrorIs(t, err, ErrLeaseConflict)

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusPreconditionFailed, pe.Status)
	assert.NotEmpty(t, pe.LeaseID)

	assert.Equal(t, 1, obs.releaseFailures, "releasing an expired lease fails and is only reported")
	assert.Contains(t, logs.String(), "lease release failed")

	photo, err := NewReader(mem).Fetch(ctx, "pics", "cat.png")
	require.NoError(t, err)
	assert.Equal(t, "v0", string(photo.Data))
}

func TestLeaseUpdateMismatchedLeaseIsLeaseConflict(t *testing.T) {
	mem, _ := newMemory()
	ctx := context.Background()
	mem.PutBlob("pics", "cat.png", storage.KindBlock, []byte("v0"))

	store := &faultyStore{Backend: mem}
	store.beforeUpload = func() {
		require.NoError(t, mem.ReleaseLease(ctx, "pics", "cat.png", store.lastLease()))
		_, err := mem.AcquireLease(ctx, "pics", "cat.png", 30*time.Second, "intruder")
		require.NoError(t, err)
	}

	_, err := NewLeaseUpdater(store, WithLeaseRelease(false)).Update(ctx, "pics", "cat.png", []byte("mine"))
	require.ErrorIs(t, err, ErrLeaseConflict)
	assert.Equal(t, http.StatusPreconditionFailed, StatusOf(err))

	photo, err := NewReader(mem).Fetch(ctx, "pics", "cat.png")
	require.NoError(t, err)
	assert.Equal(t, "v0", string(photo.Data))
}

func TestLeaseUpdateReleaseFailureDoesNotOverrideSuccess(t *testing.T) {
	mem, _ := newMemory()
	mem.PutBlob("pics", "cat.png", storage.KindBlock, []byte("v0"))
	obs := &recordingObserver{}
	store := &faultyStore{Backend: mem, releaseErr: errors.New("network down")}

	receipt, err := NewLeaseUpdater(store, WithObserver(obs)).Update(context.Background(), "pics", "cat.png", []byte("v1"))
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.ETag)
	assert.Equal(t, 1, obs.releaseFailures)
}

func TestLeaseReleaseRunsAfterCallerCancels(t *testing.T) {
	mem, _ := newMemory()
	mem.PutBlob("pics", "cat.png", storage.KindBlock, []byte("v0"))

	ctx, cancel := context.WithCancel(context.Background())
	store := &faultyStore{Backend: mem}
	store.beforeUpload = cancel

	_, _ = NewLeaseUpdater(store).Update(ctx, "pics", "cat.png", []byte("v1"))
	require.Equal(t, 1, store.releaseCount())
	assert.NoError(t, store.releaseCtxErr, "release must not inherit the caller's cancellation")

	props, err := mem.Properties(context.Background(), "pics", "cat.png")
	require.NoError(t, err)
	assert.False(t, props.Leased)
}

func TestLeaseAcquireClassification(t *testing.T) {
	mem, _ := newMemory()
	mem.PutBlob("pics", "cat.png", storage.KindBlock, []byte("v0"))

	for _, tc := range []struct {
		status int
		want   error
	}{
		{status: http.StatusNotFound, want: ErrLeaseConflict},
		{status: http.StatusConflict, want: ErrLeaseConflict},
		{status: http.StatusPreconditionFailed, want: ErrLeaseConflict},
		{status: http.StatusInternalServerError, want: ErrTransport},
		{status: http.StatusBadRequest, want: ErrTransport},
	} {
		store := &faultyStore{Backend: mem, acquireErr: &storage.StatusError{Status: tc.status}}
		_, err := NewLeaseUpdater(store).Update(context.Background(), "pics", "cat.png", []byte("x"))
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
		assert.Zero(t, store.releaseCount(), "nothing to release when acquisition failed")
	}
}

func TestLeaseUpdateUsesConfiguredDuration(t *testing.T) {
	mem, clock := newMemory()
	ctx := context.Background()
	mem.PutBlob("pics", "cat.png", storage.KindBlock, []byte("v0"))
	u := NewLeaseUpdater(mem, WithLeaseDuration(45*time.Second), WithLeaseRelease(false))

	_, err := u.Update(ctx, "pics", "cat.png", []byte("v1"))
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	props, err := mem.Properties(ctx, "pics", "cat.png")
	require.NoError(t, err)
	assert.True(t, props.Leased)

	clock.Advance(15 * time.Second)
	props, err = mem.Properties(ctx, "pics", "cat.png")
	require.NoError(t, err)
	assert.False(t, props.Leased)
}
