package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"photostore/internal/metrics"
	"photostore/internal/photos"
	"photostore/internal/storage"
)

func newTestDaemon(t *testing.T) (*Daemon, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	return newTestDaemonWith(t, store, nil), store
}

func newTestDaemonWith(t *testing.T, backend storage.Backend, m *metrics.Metrics) *Daemon {
	t.Helper()
	var opts []photos.Option
	if m != nil {
		opts = append(opts, photos.WithObserver(m))
	}
	return New(photos.NewService(backend, opts...), m, nil)
}

func doRequest(t *testing.T, d *Daemon, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	d.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeErrorResponse(t *testing.T, rr *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v body=%s", err, rr.Body.String())
	}
	return resp
}

func decodeReceipt(t *testing.T, rr *httptest.ResponseRecorder) receiptResponse {
	t.Helper()
	var resp receiptResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode receipt: %v body=%s", err, rr.Body.String())
	}
	return resp
}

// unavailableStore fails every listing and download with a 503.
type unavailableStore struct {
	storage.Backend
}

func (unavailableStore) ListBlobs(context.Context, string) ([]storage.BlobItem, error) {
	return nil, &storage.StatusError{Status: http.StatusServiceUnavailable, Code: "ServerBusy"}
}

func (unavailableStore) Download(context.Context, string, string) (storage.DownloadResult, error) {
	return storage.DownloadResult{}, &storage.StatusError{Status: http.StatusServiceUnavailable, Code: "ServerBusy"}
}
