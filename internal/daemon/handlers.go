package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"photostore/internal/photos"
	"photostore/internal/storage"
)

const maxUploadBodyBytes = 64 << 20

func (d *Daemon) newHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/status", d.handleStatus)
	mux.HandleFunc("/v1/containers/{container}", d.handleContainer)
	mux.HandleFunc("/v1/containers/{container}/blobs", d.handleListBlobs)
	mux.HandleFunc("/v1/containers/{container}/blobs/{name}", d.handleBlob)
	if d.metrics != nil {
		mux.Handle("/metrics", d.metrics.Handler())
	}
	return mux
}

func (d *Daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		d.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	d.writeJSON(w, http.StatusOK, d.snapshot())
}

func (d *Daemon) handleContainer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		d.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	d.requireToken(d.resolveContainer)(w, r)
}

func (d *Daemon) resolveContainer(w http.ResponseWriter, r *http.Request) {
	c, err := d.svc.Resolve(r.Context(), r.PathValue("container"))
	if err != nil {
		d.writePhotoError(w, err)
		return
	}
	d.writeJSON(w, http.StatusOK, containerResponse{Name: c.Name, URL: c.URL})
}

// handleListBlobs is token guarded: listing resolves the container, which
// creates it and opens it to public reads when it is missing.
func (d *Daemon) handleListBlobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		d.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	d.requireToken(d.listBlobs)(w, r)
}

func (d *Daemon) listBlobs(w http.ResponseWriter, r *http.Request) {
	container := r.PathValue("container")
	blobs, err := d.svc.List(r.Context(), container)
	if err != nil {
		d.writePhotoError(w, err)
		return
	}

	resp := listResponse{
		Container: container,
		Blobs:     make([]blobSummary, 0, len(blobs)),
	}
	for _, b := range blobs {
		resp.Blobs = append(resp.Blobs, blobSummary{Name: b.Name, URL: b.URL})
	}
	d.writeJSON(w, http.StatusOK, resp)
}

func (d *Daemon) handleBlob(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		d.fetchBlob(w, r)
	case http.MethodPut:
		d.requireToken(d.putBlob)(w, r)
	default:
		d.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (d *Daemon) fetchBlob(w http.ResponseWriter, r *http.Request) {
	photo, err := d.svc.Fetch(r.Context(), r.PathValue("container"), r.PathValue("name"))
	if err != nil {
		d.writePhotoError(w, err)
		return
	}

	contentType := photo.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("ETag", string(photo.ETag))
	w.Header().Set("Content-Length", strconv.Itoa(len(photo.Data)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(photo.Data)
	}
}

func (d *Daemon) putBlob(w http.ResponseWriter, r *http.Request) {
	mode := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("mode")))
	if mode == "" {
		mode = modeOverwrite
	}
	ifMatch := strings.TrimSpace(r.Header.Get("If-Match"))
	if ifMatch != "" && mode != modeOptimistic {
		d.writeError(w, http.StatusBadRequest, "invalid_request", "If-Match is only accepted with mode=optimistic")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodyBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			d.writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit))
			return
		}
		d.writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("read body: %v", err))
		return
	}

	ctx := r.Context()
	container, name := r.PathValue("container"), r.PathValue("name")

	var receipt photos.Receipt
	switch mode {
	case modeOverwrite:
		receipt, err = d.svc.Upload(ctx, container, name, data)
	case modeOptimistic:
		if ifMatch != "" {
			receipt, err = d.svc.UpdateIfMatch(ctx, container, name, data, storage.ETag(ifMatch))
		} else {
			receipt, err = d.svc.UpdateOptimistic(ctx, container, name, data)
		}
	case modeLease:
		receipt, err = d.svc.UpdateWithLease(ctx, container, name, data)
	default:
		d.writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("unknown mode %q", mode))
		return
	}
	if err != nil {
		d.writePhotoError(w, err)
		return
	}

	w.Header().Set("ETag", string(receipt.ETag))
	d.writeJSON(w, http.StatusOK, receiptResponse{
		Container: receipt.Container,
		Name:      receipt.Name,
		URL:       receipt.URL,
		ETag:      string(receipt.ETag),
		Mode:      mode,
	})
}

// writePhotoError maps a photo operation failure onto an HTTP error.
// Conflict kinds take precedence over not-found: a lease conflict can
// carry a store 404.
func (d *Daemon) writePhotoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, photos.ErrInvalidName), errors.Is(err, photos.ErrInvalidToken):
		d.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, photos.ErrOptimisticConflict):
		d.writeError(w, http.StatusPreconditionFailed, "etag_mismatch", err.Error())
	case errors.Is(err, photos.ErrLeaseConflict):
		d.writeError(w, http.StatusConflict, "lease_conflict", err.Error())
	case photos.IsNotFound(err):
		d.writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		d.setLastError(err.Error())
		d.writeError(w, http.StatusBadGateway, "store_unavailable", err.Error())
	}
}

func (d *Daemon) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (d *Daemon) writeError(w http.ResponseWriter, status int, code string, message string) {
	d.writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}
