package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ETag is the opaque version token a store assigns to blob content.
type ETag string

// BlobKind is the concrete variant of a stored blob.
type BlobKind int

const (
	KindUnknown BlobKind = iota
	KindBlock
	KindPage
	KindAppend
)

func (k BlobKind) String() string {
	switch k {
	case KindBlock:
		return "block"
	case KindPage:
		return "page"
	case KindAppend:
		return "append"
	default:
		return "unknown"
	}
}

// BlobItem is one entry of a container enumeration.
type BlobItem struct {
	Name string
	URL  string
	Kind BlobKind
	ETag ETag
	Size int64
}

type BlobProperties struct {
	ETag         ETag
	Size         int64
	ContentType  string
	LastModified time.Time
	Leased       bool
}

// ConditionKind selects the precondition attached to an upload.
type ConditionKind int

const (
	CondNone ConditionKind = iota
	CondIfMatch
	CondIfNoneMatch
	CondLease
)

// Condition is the write guard sent with an upload. At most one guard is
// ever sent.
type Condition struct {
	Kind  ConditionKind
	Value string
}

func IfMatch(etag ETag) Condition { return Condition{Kind: CondIfMatch, Value: string(etag)} }

// IfNotExists guards a write so it only lands when no blob exists yet.
func IfNotExists() Condition { return Condition{Kind: CondIfNoneMatch, Value: "*"} }

func WithLease(leaseID string) Condition { return Condition{Kind: CondLease, Value: leaseID} }

type UploadOptions struct {
	ContentType string
	Condition   Condition
}

type UploadResult struct {
	ETag ETag
}

type DownloadResult struct {
	Data        []byte
	ETag        ETag
	ContentType string
}

// Backend is the object-store client every photo operation goes through.
// Implementations report store-side failures as errors carrying an HTTP
// status, see StatusCode.
type Backend interface {
	Name() string
	EnsureContainer(ctx context.Context, container string) error
	SetPublicBlobAccess(ctx context.Context, container string) error
	ListBlobs(ctx context.Context, container string) ([]BlobItem, error)
	BlobURL(container, name string) string
	Properties(ctx context.Context, container, name string) (BlobProperties, error)
	Upload(ctx context.Context, container, name string, data []byte, opts UploadOptions) (UploadResult, error)
	Download(ctx context.Context, container, name string) (DownloadResult, error)
	AcquireLease(ctx context.Context, container, name string, duration time.Duration, proposedID string) (string, error)
	ReleaseLease(ctx context.Context, container, name, leaseID string) error
}

const (
	MinLeaseDuration = 15 * time.Second
	MaxLeaseDuration = 60 * time.Second
)

// StatusError is a store failure with the HTTP status the store answered.
type StatusError struct {
	Status int
	Code   string
	Err    error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store status %d (%s): %v", e.Status, e.Code, e.Err)
	}
	return fmt.Sprintf("store status %d (%s)", e.Status, e.Code)
}

func (e *StatusError) Unwrap() error { return e.Err }

func (e *StatusError) StatusCode() int { return e.Status }

func newStatusError(status int, code string) *StatusError {
	return &StatusError{Status: status, Code: code}
}

var (
	errPreconditionFailed = errors.New("precondition failed")
	errNotFound           = errors.New("not found")
)

// StatusCode extracts the HTTP status carried by err, or 0 when err does
// not come from a store response.
func StatusCode(err error) int {
	var coded interface{ StatusCode() int }
	if errors.As(err, &coded) {
		return coded.StatusCode()
	}
	var httpCoded interface{ HTTPStatusCode() int }
	if errors.As(err, &httpCoded) {
		return httpCoded.HTTPStatusCode()
	}
	return 0
}

func IsPreconditionFailed(err error) bool {
	return StatusCode(err) == http.StatusPreconditionFailed
}

func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

func IsConflict(err error) bool {
	return StatusCode(err) == http.StatusConflict
}

func validateLeaseDuration(d time.Duration) error {
	if d < MinLeaseDuration || d > MaxLeaseDuration {
		return &StatusError{
			Status: http.StatusBadRequest,
			Code:   "InvalidLeaseDuration",
			Err:    fmt.Errorf("lease duration %s outside [%s, %s]", d, MinLeaseDuration, MaxLeaseDuration),
		}
	}
	return nil
}
