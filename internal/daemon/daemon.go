package daemon

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"photostore/internal/config"
	"photostore/internal/logging"
	"photostore/internal/metrics"
	"photostore/internal/photos"
)

const (
	serverReadHeaderTimeout = 5 * time.Second
	serverReadTimeout       = 30 * time.Second
	serverWriteTimeout      = 60 * time.Second
	serverIdleTimeout       = 60 * time.Second
	serverMaxHeaderBytes    = 1 << 20
	serverShutdownTimeout   = 5 * time.Second
)

// Daemon serves the photo operations over HTTP.
type Daemon struct {
	svc       *photos.Service
	metrics   *metrics.Metrics
	logger    *slog.Logger
	clockNow  func() time.Time
	tokens    tokenSet
	addr      string
	mu        sync.Mutex
	status    daemonStatus
	handler   http.Handler
}

// New wires a daemon around svc. m may be nil, in which case /metrics is
// not served.
func New(svc *photos.Service, m *metrics.Metrics, logger *slog.Logger) *Daemon {
	d := &Daemon{
		svc:      svc,
		metrics:  m,
		logger:   logging.OrDiscard(logger),
		clockNow: time.Now,
		addr:     config.DefaultServerAddr,
	}
	d.status.StartedAt = d.now().UTC()
	d.handler = d.newHandler()
	return d
}

func (d *Daemon) SetAddress(addr string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if addr != "" {
		d.addr = addr
	}
}

// SetAuthToken sets the comma separated tokens required by routes that can
// change the store. An empty value disables the check.
func (d *Daemon) SetAuthToken(raw string) {
	tokens := parseTokenSet(raw)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens = tokens
}

func (d *Daemon) Handler() http.Handler {
	return d.handler
}

// Run listens on the configured address until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	d.mu.Lock()
	addr := d.addr
	d.mu.Unlock()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return d.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts the server
// down gracefully.
func (d *Daemon) Serve(ctx context.Context, ln net.Listener) error {
	srv := d.newHTTPServer()
	d.logger.Info("photostored listening", "addr", ln.Addr().String(), "backend", d.svc.Backend())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (d *Daemon) newHTTPServer() *http.Server {
	d.mu.Lock()
	addr := d.addr
	d.mu.Unlock()
	return &http.Server{
		Addr:              addr,
		Handler:           d.Handler(),
		ReadHeaderTimeout: serverReadHeaderTimeout,
		ReadTimeout:       serverReadTimeout,
		WriteTimeout:      serverWriteTimeout,
		IdleTimeout:       serverIdleTimeout,
		MaxHeaderBytes:    serverMaxHeaderBytes,
	}
}

func (d *Daemon) now() time.Time {
	if d.clockNow == nil {
		return time.Now()
	}
	return d.clockNow()
}
