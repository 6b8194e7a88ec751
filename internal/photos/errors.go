package photos

import (
	"errors"
	"fmt"
	"strings"

	"photostore/internal/metrics"
	"photostore/internal/storage"
)

// Kind classifies a failed photo operation.
type Kind int

const (
	// KindTransport is any store or network failure not classified below.
	KindTransport Kind = iota + 1
	// KindOptimisticConflict means the blob changed after its token was read.
	KindOptimisticConflict
	// KindLeaseConflict means exclusive write permission could not be
	// obtained or was lost before the write landed.
	KindLeaseConflict
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return metrics.OutcomeTransport
	case KindOptimisticConflict:
		return metrics.OutcomeOptimisticConflict
	case KindLeaseConflict:
		return metrics.OutcomeLeaseConflict
	default:
		return "unknown"
	}
}

var (
	ErrTransport          = errors.New("store transport failure")
	ErrOptimisticConflict = errors.New("blob changed since its version token was read")
	ErrLeaseConflict      = errors.New("could not obtain or keep the blob lease")

	ErrInvalidName  = errors.New("invalid name")
	ErrInvalidToken = errors.New("invalid version token")
)

// Error is returned by every photo operation that reached the store.
// errors.Is matches it against ErrTransport, ErrOptimisticConflict and
// ErrLeaseConflict by Kind; Unwrap yields the store error.
type Error struct {
	Kind      Kind
	Op        string
	Container string
	Blob      string
	// Status is the HTTP status the store answered, 0 when it never answered.
	Status  int
	ETag    storage.ETag
	LeaseID string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("photos: ")
	b.WriteString(e.Op)
	if e.Container != "" {
		b.WriteString(" ")
		b.WriteString(e.Container)
		if e.Blob != "" {
			b.WriteString("/")
			b.WriteString(e.Blob)
		}
	}
	b.WriteString(": ")
	b.WriteString(e.sentinel().Error())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return target == e.sentinel()
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindOptimisticConflict:
		return ErrOptimisticConflict
	case KindLeaseConflict:
		return ErrLeaseConflict
	default:
		return ErrTransport
	}
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}

// IsNotFound reports whether err carries a store 404.
func IsNotFound(err error) bool {
	return storage.IsNotFound(err)
}

func newError(kind Kind, op, container, blob string, err error) *Error {
	return &Error{
		Kind:      kind,
		Op:        op,
		Container: container,
		Blob:      blob,
		Status:    storage.StatusCode(err),
		Err:       err,
	}
}

// transportError wraps err unless it is already a classified *Error.
func transportError(op, container, blob string, err error) error {
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return newError(KindTransport, op, container, blob, err)
}

// StatusOf returns the store HTTP status behind err, or 0.
func StatusOf(err error) int {
	var pe *Error
	if errors.As(err, &pe) && pe.Status != 0 {
		return pe.Status
	}
	return storage.StatusCode(err)
}
