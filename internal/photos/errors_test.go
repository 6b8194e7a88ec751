package photos

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"photostore/internal/metrics"
	"photostore/internal/storage"
)

func TestErrorMatchesSentinelByKind(t *testing.T) {
	storeErr := &storage.StatusError{Status: http.StatusPreconditionFailed, Code: "ConditionNotMet"}
	cases := map[Kind]error{
		KindTransport:          ErrTransport,
		KindOptimisticConflict: ErrOptimisticConflict,
		KindLeaseConflict:      ErrLeaseConflict,
	}
	for kind, sentinel := range cases {
		err := fmt.Errorf("outer: %w", newError(kind, "op", "pics", "cat.png", storeErr))
		assert.ErrorIs(t, err, sentinel, kind.String())
		assert.ErrorIs(t, err, storeErr, kind.String())
		for other, otherSentinel := range cases {
			if other != kind {
				assert.NotErrorIs(t, err, otherSentinel, "%s must not match %s", kind, other)
			}
		}
	}
}

func TestErrorMessage(t *testing.T) {
	err := newError(KindOptimisticConflict, "update_if_match", "pics", "cat.png",
		&storage.StatusError{Status: http.StatusPreconditionFailed, Code: "ConditionNotMet"})
	assert.Equal(t,
		"photos: update_if_match pics/cat.png: blob changed since its version token was read (status 412): store status 412 (ConditionNotMet)",
		err.Error())

	bare := &Error{Kind: KindTransport, Op: "list"}
	assert.Equal(t, "photos: list: store transport failure", bare.Error())
}

func TestTransportErrorKeepsClassifiedErrors(t *testing.T) {
	classified := newError(KindLeaseConflict, "update_lease", "pics", "cat.png", errors.New("x"))
	assert.Same(t, classified, transportError("other", "c", "b", classified))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "invalid", Outcome(fmt.Errorf("%w: empty", ErrInvalidName)))
	assert.Equal(t, "invalid", Outcome(fmt.Errorf("%w: empty", ErrInvalidToken)))
	assert.Equal(t, "optimistic_conflict", Outcome(newError(KindOptimisticConflict, "op", "", "", nil)))
	assert.Equal(t, "lease_conflict", Outcome(newError(KindLeaseConflict, "op", "", "", nil)))
	assert.Equal(t, "transport", Outcome(errors.New("unclassified")))
}

func TestOutcomeLabelsMatchMetrics(t *testing.T) {
	assert.Equal(t, metrics.OutcomeOK, Outcome(nil))
	assert.Equal(t, metrics.OutcomeInvalid, Outcome(ErrInvalidName))
	assert.Equal(t, metrics.OutcomeTransport, KindTransport.String())
	assert.Equal(t, metrics.OutcomeOptimisticConflict, KindOptimisticConflict.String())
	assert.Equal(t, metrics.OutcomeLeaseConflict, KindLeaseConflict.String())
}

func TestStatusOf(t *testing.T) {
	assert.Zero(t, StatusOf(errors.New("plain")))
	assert.Equal(t, http.StatusNotFound, StatusOf(&storage.StatusError{Status: http.StatusNotFound}))
	assert.Equal(t, http.StatusConflict, StatusOf(newError(KindLeaseConflict, "op", "", "", &storage.StatusError{Status: http.StatusConflict})))
}
