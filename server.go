package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

var ErrServerClosed = errors.New("server closed")

const (
	DefaultAddr           = "127.0.0.1"
	DefaultPort           = 8080
	DefaultWorkers        = 4
	DefaultQueueSize      = 64
	DefaultMaxRequestLine = 8192
	DefaultLingerTimeout  = 500 * time.Millisecond

	maxAcceptDelay = time.Second
)

type HTTPServerOpts struct {
	Addr string
	Port int

	Workers      int
	// Zero means DefaultQueueSize; negative means no queue, each Submit
	// waits for a worker to take the connection.
	QueueSize    int
	Backpressure Backpressure

	MaxRequestLine int

	// Zero disables the deadline.
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	// Zero means DefaultLingerTimeout; negative skips the post-response drain.
	LingerTimeout time.Duration

	ReusePort bool

	Logger *slog.Logger
}

func (o *HTTPServerOpts) setDefaults() error {
	if o.Addr == "" {
		o.Addr = DefaultAddr
	}
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	if o.Workers == 0 {
		o.Workers = DefaultWorkers
	}
	if o.QueueSize == 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.MaxRequestLine == 0 {
		o.MaxRequestLine = DefaultMaxRequestLine
	}
	if o.LingerTimeout == 0 {
		o.LingerTimeout = DefaultLingerTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	switch {
	case o.Port < 0 || o.Port > 65535:
		return fmt.Errorf("port %d out of range", o.Port)
	case o.Workers < 0:
		return fmt.Errorf("workers must be positive, got %d", o.Workers)
	case o.MaxRequestLine < len("GET / HTTP/1.1"):
		return fmt.Errorf("max request line %d too small", o.MaxRequestLine)
	case o.ReadTimeout < 0 || o.WriteTimeout < 0:
		return fmt.Errorf("read and write timeouts must not be negative")
	}
	return nil
}

// HTTPServer accepts connections on one goroutine and hands each one to a
// fixed WorkerPool.
type HTTPServer struct {
	Addr string
	Port int

	reusePort bool

	pool    *WorkerPool
	handler *Handler
	log     *slog.Logger

	mu        sync.Mutex
	ln        net.Listener
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func NewHTTPServer(opts *HTTPServerOpts, routes *RouteTable) (*HTTPServer, error) {
	if routes == nil {
		return nil, errors.New("nil route table")
	}
	o := *opts
	if err := o.setDefaults(); err != nil {
		return nil, err
	}

	pool, err := NewWorkerPool(WorkerPoolOpts{
		Size:         o.Workers,
		QueueSize:    max(o.QueueSize, 0),
		Backpressure: o.Backpressure,
		Logger:       o.Logger,
	})
	if err != nil {
		return nil, err
	}

	h := NewHandler(routes, o.MaxRequestLine, o.Logger)
	h.ReadTimeout = o.ReadTimeout
	h.WriteTimeout = o.WriteTimeout
	h.LingerTimeout = o.LingerTimeout

	return &HTTPServer{
		Addr:      o.Addr,
		Port:      o.Port,
		reusePort: o.ReusePort,
		pool:      pool,
		handler:   h,
		log:       o.Logger,
	}, nil
}

// Listen binds the configured address.
func (s *HTTPServer) Listen(ctx context.Context) (net.Listener, error) {
	lc := net.ListenConfig{Control: listenControl(s.reusePort)}
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(s.Addr, strconv.Itoa(s.Port)))
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	return ln, nil
}

// ListenAndServe binds and serves until ctx is done or Close is called.
func (s *HTTPServer) ListenAndServe(ctx context.Context) error {
	ln, err := s.Listen(ctx)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-done:
		}
	}()

	err = s.Serve(ln)
	if errors.Is(err, ErrServerClosed) {
		s.Close()
	}
	return err
}

// Serve accepts connections on ln until the server is closed. It always
// returns a non-nil error, ErrServerClosed after Close.
func (s *HTTPServer) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.ln = ln
	s.mu.Unlock()

	s.log.Info("server online", "addr", ln.Addr().String(), "workers", s.pool.N)

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closed.Load() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay = min(2*delay, maxAcceptDelay)
			}
			s.log.Warn("error accepting new connection", "err", err, "retry_in", delay)
			time.Sleep(delay)
			continue
		}
		delay = 0
		s.log.Debug("connection established", "remote", conn.RemoteAddr().String())

		if err := s.pool.Submit(context.Background(), func() { s.serveConn(conn) }); err != nil {
			s.log.Warn("dropping connection", "remote", conn.RemoteAddr().String(), "err", err)
			conn.Close()
		}
	}
}

func (s *HTTPServer) serveConn(c net.Conn) {
	defer c.Close()

	err := s.handler.ServeConn(c)
	if err == nil {
		return
	}
	var ue *UnhandledRouteError
	if errors.As(err, &ue) {
		s.log.Error("unhandled route", "remote", c.RemoteAddr().String(), "path", ue.Path, "route", ue.Pattern, "verb", ue.Verb)
		return
	}
	s.log.Warn("connection error", "remote", c.RemoteAddr().String(), "err", err)
}

// ListenAddr is the bound address, or nil before Serve.
func (s *HTTPServer) ListenAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *HTTPServer) Stats() PoolStats {
	return s.pool.Stats()
}

// Close stops accepting connections and waits for in-flight ones to finish.
// Every caller blocks until shutdown is complete.
func (s *HTTPServer) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		if s.ln != nil {
			s.closeErr = s.ln.Close()
		}
		s.mu.Unlock()

		s.pool.Shutdown()
		s.log.Info("server closed", "stats", s.pool.Stats())
	})
	return s.closeErr
}
