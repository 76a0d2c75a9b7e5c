package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/toastsandwich/routefs/pkg/pool"
)

// UnhandledRouteError means a request matched a route whose verb does nothing.
// The connection gets no response.
type UnhandledRouteError struct {
	Path    string
	Pattern string
	Verb    string
}

func (e *UnhandledRouteError) Error() string {
	return fmt.Sprintf("route %q matched %s but verb %q has no handler", e.Pattern, e.Path, e.Verb)
}

// Handler answers a single request on a connection using a shared RouteTable.
type Handler struct {
	Routes *RouteTable

	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	LingerTimeout time.Duration

	buffers *pool.BufferPool
	log     *slog.Logger
}

// NewHandler returns a Handler whose request lines may be at most maxLine bytes.
func NewHandler(routes *RouteTable, maxLine int, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Routes:  routes,
		buffers: pool.NewBufferPool(maxLine, false),
		log:     logger,
	}
}

// ServeConn reads one request line from c, answers it, and half-closes c.
// It does not close c. Unparseable or non-GET requests get no response and
// no error.
func (h *Handler) ServeConn(c net.Conn) error {
	if h.ReadTimeout > 0 {
		c.SetReadDeadline(time.Now().Add(h.ReadTimeout))
	}

	buf := h.buffers.GetBuffer()
	defer h.buffers.PutBuffer(buf)

	line, err := readRequestLine(c, buf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("read request line: %w", err)
	}
	defer h.closeWrite(c)
	h.log.Debug("request", "remote", c.RemoteAddr(), "line", string(line))

	req, err := parseRequestLine(line)
	if err != nil || !req.servable() {
		h.log.Debug("ignoring request", "remote", c.RemoteAddr(), "line", string(line), "err", err)
		return nil
	}

	res, err := h.Resolve(req.Path)
	if err != nil {
		return err
	}

	if h.WriteTimeout > 0 {
		c.SetWriteDeadline(time.Now().Add(h.WriteTimeout))
	}
	w := bufio.NewWriter(c)
	if _, err := res.WriteTo(w); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush response: %w", err)
	}
	return nil
}

// Resolve turns a request path into a Result. It only fails for routes
// with an unhandled action.
func (h *Handler) Resolve(path string) (Result, error) {
	route, ok := h.Routes.Match(path)
	if !ok {
		return NotFound(fmt.Sprintf("Route at %s, not found!", path)), nil
	}

	switch a := route.Action.(type) {
	case Open:
		h.log.Debug("serving file", "route", route.Pattern.String(), "file", a.Path)
		return h.serveFile(a.Path), nil
	case Unhandled:
		return Result{}, &UnhandledRouteError{Path: path, Pattern: route.Pattern.String(), Verb: a.Verb}
	default:
		return Result{}, &UnhandledRouteError{Path: path, Pattern: route.Pattern.String()}
	}
}

func (h *Handler) serveFile(path string) Result {
	p, err := os.ReadFile(path)
	if err != nil {
		h.log.Warn("error reading file", "file", path, "err", err)
		return ServerError(fmt.Sprintf("File %s not found!", path))
	}
	return Ok(p)
}

// closeWrite sends FIN and discards whatever the client still sends, so
// unread request bytes do not turn the final close into a reset that cuts
// off the response.
func (h *Handler) closeWrite(c net.Conn) {
	cw, ok := c.(interface{ CloseWrite() error })
	if !ok || h.LingerTimeout <= 0 {
		return
	}
	if err := cw.CloseWrite(); err != nil {
		return
	}
	c.SetReadDeadline(time.Now().Add(h.LingerTimeout))
	io.Copy(io.Discard, c)
}
