package daemon

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"
)

func TestNewHTTPServerAppliesSecurityLimits(t *testing.T) {
	d, _ := newTestDaemon(t)
	srv := d.newHTTPServer()

	if srv.ReadHeaderTimeout != serverReadHeaderTimeout {
		t.Fatalf("read header timeout: got %s want %s", srv.ReadHeaderTimeout, serverReadHeaderTimeout)
	}
	if srv.ReadTimeout != serverReadTimeout {
		t.Fatalf("read timeout: got %s want %s", srv.ReadTimeout, serverReadTimeout)
	}
	if srv.WriteTimeout != serverWriteTimeout {
		t.Fatalf("write timeout: got %s want %s", srv.WriteTimeout, serverWriteTimeout)
	}
	if srv.IdleTimeout != serverIdleTimeout {
		t.Fatalf("idle timeout: got %s want %s", srv.IdleTimeout, serverIdleTimeout)
	}
	if srv.MaxHeaderBytes != serverMaxHeaderBytes {
		t.Fatalf("max header bytes: got %d want %d", srv.MaxHeaderBytes, serverMaxHeaderBytes)
	}
}

func TestSetAddressIgnoresEmpty(t *testing.T) {
	d, _ := newTestDaemon(t)
	d.SetAddress("127.0.0.1:9999")
	d.SetAddress("")
	if got := d.newHTTPServer().Addr; got != "127.0.0.1:9999" {
		t.Fatalf("addr: got %q", got)
	}
}

func TestServeStopsWhenContextIsCancelled(t *testing.T) {
	d, _ := newTestDaemon(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/v1/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	var status statusResponse
	err = json.NewDecoder(resp.Body).Decode(&status)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Backend != "memory" {
		t.Fatalf("backend: got %q want memory", status.Backend)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}
