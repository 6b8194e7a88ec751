package daemon

import "time"

func (d *Daemon) setLastError(lastError string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status.LastError = lastError
	d.status.LastErrorAt = d.now().UTC()
}

func (d *Daemon) snapshot() statusResponse {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now().UTC()
	resp := statusResponse{
		Backend:       d.svc.Backend(),
		StartedAt:     d.status.StartedAt.Format(time.RFC3339),
		UptimeSeconds: int64(now.Sub(d.status.StartedAt) / time.Second),
		LastError:     d.status.LastError,
	}
	if !d.status.LastErrorAt.IsZero() {
		resp.LastErrorAt = d.status.LastErrorAt.Format(time.RFC3339)
	}
	return resp
}
