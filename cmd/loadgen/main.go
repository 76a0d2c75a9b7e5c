package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

type tally struct {
	mu     sync.Mutex
	status map[string]int
	errs   int
}

func (t *tally) add(status string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.errs++
		return
	}
	t.status[status]++
}

// get sends one request and returns the status line, or "" when the server
// closed the connection without answering.
func get(addr, path string, timeout time.Duration) (string, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return "", fmt.Errorf("error dialing: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	if _, err := fmt.Fprintf(conn, "GET %s HTTP/1.1\r\nHost: %s\r\n\r\n", path, addr); err != nil {
		return "", fmt.Errorf("error writing request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		return "", nil
	}
	return strings.TrimSpace(line), nil
}

func main() {
	var (
		addr     = flag.String("addr", "127.0.0.1:8080", "server address")
		clients  = flag.Int("clients", 100, "concurrent clients")
		requests = flag.Int("requests", 10, "requests per client")
		paths    = flag.String("paths", "/", "comma separated paths, used round robin")
		timeout  = flag.Duration("timeout", 5*time.Second, "per request timeout")
	)
	flag.Parse()

	ps := strings.Split(*paths, ",")
	t := &tally{status: make(map[string]int)}
	wg := &sync.WaitGroup{}

	start := time.Now()
	for c := range *clients {
		wg.Go(func() {
			for i := range *requests {
				status, err := get(*addr, ps[(c+i)%len(ps)], *timeout)
				if err != nil {
					slog.Debug("request failed", "client", c, "err", err)
				}
				t.add(status, err)
			}
		})
	}
	wg.Wait()
	elapsed := time.Since(start)

	keys := make([]string, 0, len(t.status))
	for k := range t.status {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	total := *clients * *requests
	fmt.Printf("%d requests in %s (%.0f req/s)\n", total, elapsed.Round(time.Millisecond), float64(total)/elapsed.Seconds())
	for _, k := range keys {
		name := k
		if name == "" {
			name = "<no response>"
		}
		fmt.Printf("  %-24s %d\n", name, t.status[k])
	}
	if t.errs > 0 {
		fmt.Printf("  %-24s %d\n", "<error>", t.errs)
		os.Exit(1)
	}
}
