package server

import (
	"bytes"
	"fmt"
	"io"
)

// Status is one of the three answers the server gives. The zero value is
// not a status and cannot be rendered.
type Status int

const (
	StatusOK Status = iota + 1
	StatusNotFound
	StatusServerError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "200 Ok"
	case StatusNotFound:
		return "404 Not Found"
	case StatusServerError:
		return "500 Server Error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result is the outcome of one request. It is rendered without headers; the
// body runs until the connection closes.
type Result struct {
	Status Status
	Body   []byte
}

func Ok(body []byte) Result {
	return Result{Status: StatusOK, Body: body}
}

func NotFound(msg string) Result {
	return Result{Status: StatusNotFound, Body: []byte(msg)}
}

func ServerError(msg string) Result {
	return Result{Status: StatusServerError, Body: []byte(msg)}
}

func (s Status) valid() bool {
	return s >= StatusOK && s <= StatusServerError
}

// WriteTo writes "HTTP/1.1 <status>\r\n\r\n<body>" to w. A Result without
// a valid Status writes nothing.
func (r Result) WriteTo(w io.Writer) (int64, error) {
	if !r.Status.valid() {
		return 0, fmt.Errorf("render %v: invalid status", r.Status)
	}
	n, err := io.WriteString(w, "HTTP/1.1 "+r.Status.String()+"\r\n\r\n")
	if err != nil {
		return int64(n), err
	}
	m, err := w.Write(r.Body)
	return int64(n + m), err
}

// Bytes is the rendered response, or nil when Status is invalid.
func (r Result) Bytes() []byte {
	var buf bytes.Buffer
	if _, err := r.WriteTo(&buf); err != nil {
		return nil
	}
	return buf.Bytes()
}
