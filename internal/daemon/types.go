package daemon

import "time"

// EnvAuthToken holds the comma separated write tokens for photostored.
const EnvAuthToken = "PHOTOSTORE_TOKEN"

// Write modes accepted by PUT /v1/containers/{container}/blobs/{name}.
const (
	modeOverwrite  = "overwrite"
	modeOptimistic = "optimistic"
	modeLease      = "lease"
)

type daemonStatus struct {
	StartedAt   time.Time
	LastError   string
	LastErrorAt time.Time
}

type statusResponse struct {
	Backend       string `json:"backend"`
	StartedAt     string `json:"started_at"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	LastError     string `json:"last_error,omitempty"`
	LastErrorAt   string `json:"last_error_at,omitempty"`
}

type containerResponse struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type blobSummary struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type listResponse struct {
	Container string        `json:"container"`
	Blobs     []blobSummary `json:"blobs"`
}

type receiptResponse struct {
	Container string `json:"container"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	ETag      string `json:"etag"`
	Mode      string `json:"mode"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
