package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

var ErrRequestLineTooLong = errors.New("request line too long")

// Request holds the parts of a request line. Headers and bodies are never read.
type Request struct {
	Method  string
	Path    string
	Version string
}

/*
GET /hello.txt HTTP/1.1\r\n
User-Agent: TestClient\r\n
\r\n
*/

// readRequestLine reads from r until the first '\n' and returns the line
// without its terminator. buf bounds the line length; a line that does not
// fit returns ErrRequestLineTooLong. A partial line followed by EOF is
// returned as is.
func readRequestLine(r io.Reader, buf []byte) ([]byte, error) {
	n := 0
	for {
		if n == len(buf) {
			return fullLine(r, buf)
		}
		m, err := r.Read(buf[n:])
		if i := bytes.IndexByte(buf[n:n+m], '\n'); i >= 0 {
			return bytes.TrimSuffix(buf[:n+i], []byte("\r")), nil
		}
		n += m
		if err != nil {
			if errors.Is(err, io.EOF) && n > 0 {
				return bytes.TrimSuffix(buf[:n], []byte("\r")), nil
			}
			return nil, err
		}
	}
}

// fullLine decides what a full buffer holds: the whole line if the next
// byte is '\n' or the reader is at EOF, otherwise an overlong line.
func fullLine(r io.Reader, buf []byte) ([]byte, error) {
	var next [1]byte
	for {
		m, err := r.Read(next[:])
		if m == 1 {
			if next[0] == '\n' {
				return bytes.TrimSuffix(buf, []byte("\r")), nil
			}
			return nil, ErrRequestLineTooLong
		}
		if errors.Is(err, io.EOF) {
			return bytes.TrimSuffix(buf, []byte("\r")), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func parseRequestLine(line []byte) (Request, error) {
	method, rest, found := bytes.Cut(line, []byte(" "))
	if !found || len(method) == 0 {
		return Request{}, fmt.Errorf("error parsing (no method)")
	}

	path, version, found := bytes.Cut(rest, []byte(" "))
	if !found || len(path) == 0 {
		return Request{}, fmt.Errorf("error parsing (no path)")
	}

	if len(version) == 0 || bytes.IndexByte(version, ' ') != -1 {
		return Request{}, fmt.Errorf("error parsing (bad version)")
	}

	return Request{
		Method:  string(method),
		Path:    string(path),
		Version: string(version),
	}, nil
}

// servable reports whether req is the only kind of request this server answers.
func (req Request) servable() bool {
	return req.Method == "GET" && req.Version == "HTTP/1.1" && req.Path[0] == '/'
}
