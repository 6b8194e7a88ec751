package photos

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "photostore/internal/config"
	"photostore/internal/storage"
)

func TestServiceRunsEveryOperation(t *testing.T) {
	mem, _ := newMemory()
	obs := &recordingObserver{}
	svc := NewService(mem, WithObserver(obs), WithLeaseDuration(20*time.Second))
	ctx := context.Background()

	assert.Equal(t, "memory", svc.Backend())

	_, err := svc.Resolve(ctx, "pics")
	require.NoError(t, err)

	first, err := svc.Upload(ctx, "pics", "x/y/cat.png", []byte{1, 2, 3})
	require.NoError(t, err)

	second, err := svc.UpdateOptimistic(ctx, "pics", "cat.png", []byte{4})
	require.NoError(t, err)

	_, err = svc.UpdateIfMatch(ctx, "pics", "cat.png", []byte{5}, first.ETag)
	require.ErrorIs(t, err, ErrOptimisticConflict)

	_, err = svc.UpdateIfMatch(ctx, "pics", "cat.png", []byte{6}, second.ETag)
	require.NoError(t, err)

	_, err = svc.UpdateWithLease(ctx, "pics", "cat.png", []byte{7})
	require.NoError(t, err)

	list, err := svc.List(ctx, "pics")
	require.NoError(t, err)
	assert.Equal(t, []BlobSummary{{Name: "cat.png", URL: "memory://photostore/pics/cat.png"}}, list)

	photo, err := svc.Fetch(ctx, "pics", "cat.png")
	require.NoError(t, err)
	assert.Equal(t, []byte{7}, photo.Data)

	_, err = svc.Upload(ctx, "pics", "", nil)
	require.ErrorIs(t, err, ErrInvalidName)

	assert.Equal(t, []recordedOp{
		{op: OpResolve, outcome: "ok"},
		{op: OpUpload, outcome: "ok"},
		{op: OpUpdateOptimistic, outcome: "ok"},
		{op: OpUpdateIfMatch, outcome: "optimistic_conflict"},
		{op: OpUpdateIfMatch, outcome: "ok"},
		{op: OpUpdateLease, outcome: "ok"},
		{op: OpList, outcome: "ok"},
		{op: OpFetch, outcome: "ok"},
		{op: OpUpload, outcome: "invalid"},
	}, obs.ops)
}

func TestServiceLogsFailuresByOutcome(t *testing.T) {
	mem, _ := newMemory()
	var logs bytes.Buffer
	svc := NewService(mem, WithLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	ctx := context.Background()
	mem.PutBlob("pics", "cat.png", storage.KindAppend, []byte("log"))

	_, err := svc.Fetch(ctx, "pics", "missing.png")
	require.Error(t, err)
	_, err = svc.UpdateWithLease(ctx, "pics", "missing.png", []byte("x"))
	require.ErrorIs(t, err, ErrLeaseConflict)
	_, err = svc.List(ctx, "pics")
	require.NoError(t, err)

	out := logs.String()
	assert.Contains(t, out, "level=ERROR msg=\"photo operation failed\" op=fetch")
	assert.Contains(t, out, "level=INFO msg=\"photo operation rejected\" op=update_lease")
	assert.Contains(t, out, "outcome=lease_conflict")
	assert.Contains(t, out, "msg=\"skipping blob\"")
	assert.Contains(t, out, "kind=append")
}

func TestConfigOptionsCarryLeaseSettings(t *testing.T) {
	cfg := appconfig.DefaultConfig()
	cfg.Lease.Duration = appconfig.Duration{Duration: 45 * time.Second}
	release := false
	cfg.Lease.Release = &release

	o := buildOptions(ConfigOptions(cfg))
	assert.Equal(t, 45*time.Second, o.leaseDuration)
	assert.False(t, o.releaseLease)
}
