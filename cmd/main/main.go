package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	server "github.com/toastsandwich/routefs"
	"golang.org/x/sys/unix"
)

func main() {
	var (
		routesPath = flag.String("routes", "routes.txt", "route definition file")
		addr       = flag.String("addr", server.DefaultAddr, "listen address")
		port       = flag.Int("port", server.DefaultPort, "listen port")
		workers    = flag.Int("workers", server.DefaultWorkers, "number of workers")
		queue      = flag.Int("queue", server.DefaultQueueSize, "pending connection queue size, negative for a direct hand-off to a free worker")
		policy     = flag.String("backpressure", "block", "what to do when the queue is full: block or reject")
		maxLine    = flag.Int("max-request-line", server.DefaultMaxRequestLine, "longest accepted request line in bytes")
		readTO     = flag.Duration("read-timeout", 0, "per-connection read timeout, 0 for none")
		writeTO    = flag.Duration("write-timeout", 0, "per-connection write timeout, 0 for none")
		linger     = flag.Duration("linger", server.DefaultLingerTimeout, "how long to drain a client after responding, negative to skip")
		reusePort  = flag.Bool("reuseport", false, "set SO_REUSEPORT on the listener")
		logLevel   = flag.String("log-level", "info", "debug, info, warn or error")
	)
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintln(os.Stderr, "bad -log-level:", err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	bp, err := server.ParseBackpressure(*policy)
	ifErrExit(err, "bad -backpressure")

	routes, err := server.LoadRoutes(*routesPath)
	ifErrExit(err, "error loading routes")
	for _, r := range routes.Routes() {
		logger.Info("route loaded", "route", r.String())
	}

	s, err := server.NewHTTPServer(&server.HTTPServerOpts{
		Addr: *addr,
		Port: *port,

		Workers:      *workers,
		QueueSize:    *queue,
		Backpressure: bp,

		MaxRequestLine: *maxLine,

		ReadTimeout:   *readTO,
		WriteTimeout:  *writeTO,
		LingerTimeout: *linger,

		ReusePort: *reusePort,
		Logger:    logger,
	}, routes)
	ifErrExit(err, "error creating server")

	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer stop()

	if err := s.ListenAndServe(ctx); err != nil && !errors.Is(err, server.ErrServerClosed) {
		stop()
		ifErrExit(err, "server stopped")
	}
}

func ifErrExit(err error, msg string) {
	if err != nil {
		slog.Error(msg, "err", err)
		os.Exit(1)
	}
}
