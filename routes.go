package server

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// ruleLine is a single route declaration:
//
//	"^/hello$" : open "static/hello.txt"
var ruleLine = regexp.MustCompile(`(?i)^\s*"(?P<route>[^"]+)"\s+:\s+(?P<verb>\w+)\s*"(?P<arg>[^"]+)"\s*$`)

// Action is what a matched route does. It is either Open or Unhandled.
type Action interface {
	action()
}

// Open serves the file at Path.
type Open struct {
	Path string
}

// Unhandled is a route whose verb has no behaviour. Matching one is an
// error for that connection.
type Unhandled struct {
	Verb string
	Arg  string
}

func (Open) action()      {}
func (Unhandled) action() {}

type Route struct {
	Pattern *regexp.Regexp
	Action  Action
}

func (r Route) String() string {
	switch a := r.Action.(type) {
	case Open:
		return fmt.Sprintf("%q : open %q", r.Pattern.String(), a.Path)
	case Unhandled:
		return fmt.Sprintf("%q : %s %q (unhandled)", r.Pattern.String(), a.Verb, a.Arg)
	default:
		return fmt.Sprintf("%q : <nil>", r.Pattern.String())
	}
}

// RouteTable is an ordered list of routes. It is never modified after
// ParseRoutes returns, so it is safe to share between workers without locking.
type RouteTable struct {
	routes []Route
}

// Match returns the first route, in declaration order, whose pattern matches path.
func (rt *RouteTable) Match(path string) (Route, bool) {
	for _, r := range rt.routes {
		if r.Pattern.MatchString(path) {
			return r, true
		}
	}
	return Route{}, false
}

func (rt *RouteTable) Len() int {
	return len(rt.routes)
}

// Routes returns a copy of the table in declaration order.
func (rt *RouteTable) Routes() []Route {
	out := make([]Route, len(rt.routes))
	copy(out, rt.routes)
	return out
}

// ConfigError reports a route file that cannot be turned into a RouteTable.
// Line is 1-based, or 0 when the error is not tied to a line.
type ConfigError struct {
	Line int
	Text string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("route config: %v", e.Err)
	}
	return fmt.Sprintf("route config line %d (%s): %v", e.Line, e.Text, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ParseRoutes builds a RouteTable from route file text. Lines that are not
// rules are skipped; non-blank ones that are not '#' comments are logged.
// Every rule's pattern must compile, otherwise no table is returned.
func ParseRoutes(text string) (*RouteTable, error) {
	rt := &RouteTable{}

	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 4096), 1<<20)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		m := ruleLine.FindStringSubmatch(line)
		if m == nil {
			slog.Warn(`skipping route line, expected "<pattern>" : <verb> "<argument>"`, "line", lineNo, "text", trimmed)
			continue
		}
		pattern, verb, arg := m[ruleLine.SubexpIndex("route")], m[ruleLine.SubexpIndex("verb")], m[ruleLine.SubexpIndex("arg")]

		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, &ConfigError{Line: lineNo, Text: trimmed, Err: fmt.Errorf("bad route pattern: %w", err)}
		}

		var a Action
		if strings.EqualFold(verb, "open") {
			a = Open{Path: arg}
		} else {
			a = Unhandled{Verb: verb, Arg: arg}
		}
		rt.routes = append(rt.routes, Route{Pattern: re, Action: a})
	}
	if err := sc.Err(); err != nil {
		return nil, &ConfigError{Line: lineNo + 1, Err: err}
	}
	return rt, nil
}

// LoadRoutes reads and parses the route file at path.
func LoadRoutes(path string) (*RouteTable, error) {
	p, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	return ParseRoutes(string(p))
}
